package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Product ---

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Stock       int             `json:"stock" binding:"min=0"`
	Category    string          `json:"category" binding:"omitempty,oneof=Charging Laptops Accessories Phones"`
	Images      []string        `json:"images" binding:"required,min=1,dive,uri"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Category    *string          `json:"category"`
	Images      []string         `json:"images"`
}

type ListProductsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search   string `form:"search"`
	Category string `form:"category" binding:"omitempty,oneof=Charging Laptops Accessories Phones"`
	Sort     string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	// Zero or negative removes the line.
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	ID       uuid.UUID          `json:"id"`
	Items    []CartItemResponse `json:"items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

// CartItemResponse joins the line against the live catalog. When the product
// has been deleted, ProductMissing is true, the display fields are zero and
// the line is excluded from the cart subtotal.
type CartItemResponse struct {
	ProductID         uuid.UUID       `json:"product_id"`
	Name              string          `json:"name,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity"`
	Images            []string        `json:"images,omitempty"`
	Stock             int             `json:"stock"`
	ProductMissing    bool            `json:"product_missing"`
	InsufficientStock bool            `json:"insufficient_stock"`
}

// --- Order ---

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=Pending Processing Shipped Delivered"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required,oneof=Paid"`
}

type ListOrdersRequest struct {
	UserID string `form:"user_id" binding:"omitempty,uuid"`
	Status string `form:"status" binding:"omitempty,oneof=Pending Processing Shipped Delivered"`
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
}

type OrderResponse struct {
	ID            uuid.UUID           `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"payment_status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Items         []OrderItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// OrderItemResponse renders the frozen snapshot; Images come from a
// best-effort live join and are empty when the product is gone.
type OrderItemResponse struct {
	ProductID      uuid.UUID       `json:"product_id"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Images         []string        `json:"images,omitempty"`
	ProductMissing bool            `json:"product_missing"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// --- Dashboard ---

type DashboardStats struct {
	TotalSales decimal.Decimal `json:"total_sales"`
	Orders     int             `json:"orders"`
	Products   int             `json:"products"`
	Users      int             `json:"users"`
}

type RecentOrder struct {
	ID     uuid.UUID       `json:"id"`
	UserID uuid.UUID       `json:"user_id"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

type TopProduct struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	UnitsSold int       `json:"units_sold"`
}

type DashboardResponse struct {
	Stats        DashboardStats `json:"stats"`
	RecentOrders []RecentOrder  `json:"recent_orders"`
	TopProducts  []TopProduct   `json:"top_products"`
}
