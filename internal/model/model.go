package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category is the product category. The set is fixed; anything else is
// rejected at the boundary.
type Category string

const (
	CategoryCharging    Category = "Charging"
	CategoryLaptops     Category = "Laptops"
	CategoryAccessories Category = "Accessories"
	CategoryPhones      Category = "Phones"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCharging, CategoryLaptops, CategoryAccessories, CategoryPhones:
		return true
	}
	return false
}

// Product carries live price and stock. Both change over time, so orders
// never point back here for money values.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    Category
	Images      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem references the live product; it holds no price snapshot. At most
// one item per (cart, product) exists, enforced by a unique constraint.
type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatus is the fulfillment state. Transitions are forward-only, one
// step at a time.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// PaymentStatus is an independent axis from OrderStatus; a shipped order can
// legitimately be unpaid (invoice/COD flows).
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "Unpaid"
	PaymentStatusPaid   PaymentStatus = "Paid"
)

// Order is immutable after checkout except for Status and PaymentStatus.
// TotalAmount is computed once from the item snapshots and never recomputed.
type Order struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Status        OrderStatus
	PaymentStatus PaymentStatus
	TotalAmount   decimal.Decimal
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem holds a weak reference to the product plus the name and unit
// price snapshotted at checkout, so the order still renders after the
// product is deleted or repriced.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ProductSales is a dashboard aggregate: units sold per product across all
// order items.
type ProductSales struct {
	ProductID uuid.UUID
	Name      string
	UnitsSold int
}

// OrderPlacedMessage is published to RabbitMQ after a checkout commits.
type OrderPlacedMessage struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
