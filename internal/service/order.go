package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/voltmart/commerce-api/internal/model"
	"github.com/voltmart/commerce-api/internal/repository"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrStatusConflict    = errors.New("order changed concurrently, retry")
)

// nextStatus encodes the forward-only fulfillment workflow. A status absent
// from the map is terminal.
var nextStatus = map[model.OrderStatus]model.OrderStatus{
	model.OrderStatusPending:    model.OrderStatusProcessing,
	model.OrderStatusProcessing: model.OrderStatusShipped,
	model.OrderStatusShipped:    model.OrderStatusDelivered,
}

// OrderLineView is an order line plus a best-effort live product join for
// display. Product is nil when the product has since been deleted; the
// stored name and unit price snapshots still render the line.
type OrderLineView struct {
	Item    model.OrderItem
	Product *model.Product
}

func (v OrderLineView) ProductMissing() bool { return v.Product == nil }

type OrderView struct {
	Order *model.Order
	Lines []OrderLineView
}

type ListOrdersQuery struct {
	UserID *uuid.UUID
	Status *model.OrderStatus
	Page   int
	Limit  int
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	amqpCh      *amqp.Channel
}

func NewOrderService(orderRepo repository.OrderRepository, cartRepo repository.CartRepository, productRepo repository.ProductRepository, amqpCh *amqp.Channel) *OrderService {
	return &OrderService{orderRepo: orderRepo, cartRepo: cartRepo, productRepo: productRepo, amqpCh: amqpCh}
}

// Checkout converts the user's cart into an order. Prices and names are
// snapshotted from a fresh catalog read, and the commit (order insert, per
// product conditional stock decrement, cart clear) happens in a single
// database transaction, so either the whole order exists with every
// decrement applied or nothing does.
func (s *OrderService) Checkout(ctx context.Context, userID uuid.UUID) (*model.Order, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	cart, err = s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		product, err := s.productRepo.GetByID(ctx, ci.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return nil, fmt.Errorf("product %s: %w", ci.ProductID, ErrProductNotFound)
		}
		item := model.OrderItem{
			ProductID: ci.ProductID,
			Name:      product.Name,
			Quantity:  ci.Quantity,
			UnitPrice: product.Price,
		}
		total = total.Add(item.Subtotal())
		items = append(items, item)
	}

	order := &model.Order{
		UserID:        userID,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		TotalAmount:   total,
		Items:         items,
	}
	if err := s.orderRepo.CreateFromCart(ctx, order, cart.ID); err != nil {
		var stockErr *repository.InsufficientStockError
		if errors.As(err, &stockErr) {
			return nil, stockErr
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.publishOrderPlaced(ctx, order)
	return order, nil
}

// publishOrderPlaced hands the order to the fulfillment worker. Delivery is
// best effort: the order is already durable, so a publish failure only
// delays fulfillment.
func (s *OrderService) publishOrderPlaced(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, err := json.Marshal(model.OrderPlacedMessage{OrderID: order.ID, UserID: order.UserID})
	if err != nil {
		return
	}
	_ = s.amqpCh.PublishWithContext(ctx, "", "orders.placed", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
}

// GetOrder returns the order for its owner or an admin, with each line
// joined against the live catalog for display.
func (s *OrderService) GetOrder(ctx context.Context, orderID, actingUserID uuid.UUID, actingRole string) (*OrderView, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if err := authorizeOwnerOrAdmin(actingUserID, actingRole, order.UserID); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("join products: %w", err)
	}

	view := &OrderView{Order: order}
	for _, item := range order.Items {
		view.Lines = append(view.Lines, OrderLineView{Item: item, Product: products[item.ProductID]})
	}
	return view, nil
}

// ListOrders returns a page of orders with the total count. Admins may
// filter by any user; everyone else is pinned to their own orders.
func (s *OrderService) ListOrders(ctx context.Context, actingUserID uuid.UUID, actingRole string, q ListOrdersQuery) ([]model.Order, int, error) {
	if actingRole != model.RoleAdmin {
		q.UserID = &actingUserID
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
	return s.orderRepo.List(ctx, repository.OrderFilter{
		UserID: q.UserID,
		Status: q.Status,
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	})
}

// UpdateStatus advances the fulfillment status by exactly one step
// (Pending -> Processing -> Shipped -> Delivered). Backward moves, skips and
// repeats are rejected. The repository applies the change as a
// compare-and-set, so of two racing updates only one wins.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus model.OrderStatus, actingRole string) (*model.Order, error) {
	if err := authorizeAdmin(actingRole); err != nil {
		return nil, err
	}
	if !newStatus.Valid() {
		return nil, ErrInvalidStatus
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	next, ok := nextStatus[order.Status]
	if !ok || next != newStatus {
		return nil, fmt.Errorf("%s -> %s: %w", order.Status, newStatus, ErrInvalidTransition)
	}

	applied, err := s.orderRepo.UpdateStatus(ctx, orderID, order.Status, newStatus)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !applied {
		return nil, ErrStatusConflict
	}
	order.Status = newStatus
	return order, nil
}

// SetPaymentStatus applies the external payment signal. The only accepted
// target is Paid; orders are never un-paid. Marking an already paid order
// paid again is a no-op, so payment webhooks can retry safely.
func (s *OrderService) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, target model.PaymentStatus, actingRole string) (*model.Order, error) {
	if err := authorizeAdmin(actingRole); err != nil {
		return nil, err
	}
	if target != model.PaymentStatusPaid {
		return nil, fmt.Errorf("payment status %s: %w", target, ErrInvalidTransition)
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.PaymentStatus == model.PaymentStatusPaid {
		return order, nil
	}

	applied, err := s.orderRepo.UpdatePaymentStatus(ctx, orderID, model.PaymentStatusUnpaid, model.PaymentStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	if !applied {
		// Lost a race against another payment update; the order is paid
		// either way.
		order.PaymentStatus = model.PaymentStatusPaid
		return order, nil
	}
	order.PaymentStatus = model.PaymentStatusPaid
	return order, nil
}

// DeleteOrder hard-deletes an order. Admin-only and rare; callers log it.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID uuid.UUID, actingRole string) error {
	if err := authorizeAdmin(actingRole); err != nil {
		return err
	}
	if err := s.orderRepo.Delete(ctx, orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}
