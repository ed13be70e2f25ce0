package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voltmart/commerce-api/internal/model"
	"github.com/voltmart/commerce-api/internal/repository"
)

var (
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
)

// CartLineView is a cart line joined against the live catalog. Product is
// nil when the referenced product has been deleted; such lines never count
// toward Subtotal.
type CartLineView struct {
	Item    model.CartItem
	Product *model.Product
}

func (v CartLineView) ProductMissing() bool { return v.Product == nil }

// InsufficientStock flags a line whose quantity exceeds current stock. It is
// a display warning only; stock is enforced at checkout.
func (v CartLineView) InsufficientStock() bool {
	return v.Product != nil && v.Product.Stock < v.Item.Quantity
}

type CartView struct {
	Cart     *model.Cart
	Lines    []CartLineView
	Subtotal decimal.Decimal
}

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

// GetCart returns the user's cart with each line joined against the live
// catalog. Cart totals therefore reflect current prices and may differ from
// the frozen total of any order placed earlier.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	cart, err = s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("join products: %w", err)
	}

	view := &CartView{Cart: cart, Subtotal: decimal.Zero}
	for _, item := range cart.Items {
		line := CartLineView{Item: item, Product: products[item.ProductID]}
		if line.Product != nil {
			view.Subtotal = view.Subtotal.Add(line.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

// AddItem merges quantity into an existing line for the same product, or
// creates a new line. Stock is deliberately not checked here; there is no
// reservation system, so enforcement happens at checkout.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartView, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if err := s.cartRepo.UpsertItem(ctx, &model.CartItem{
		CartID:    cart.ID,
		ProductID: productID,
		Quantity:  quantity,
	}); err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	return s.GetCart(ctx, userID)
}

// UpdateItemQuantity sets an absolute quantity for an existing line; a
// quantity of zero or less removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartView, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if quantity <= 0 {
		if err := s.cartRepo.DeleteItem(ctx, cart.ID, productID); err != nil {
			return nil, fmt.Errorf("remove item: %w", err)
		}
		return s.GetCart(ctx, userID)
	}

	found, err := s.cartRepo.SetItemQuantity(ctx, cart.ID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if !found {
		return nil, ErrCartItemNotFound
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem is idempotent: removing a line that is already gone returns the
// unchanged cart, which keeps client retries simple.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartView, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	if err := s.cartRepo.DeleteItem(ctx, cart.ID, productID); err != nil {
		return nil, fmt.Errorf("remove item: %w", err)
	}
	return s.GetCart(ctx, userID)
}

// ClearCart empties the cart; clearing an empty cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get or create cart: %w", err)
	}
	if err := s.cartRepo.ClearCart(ctx, cart.ID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
