package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmart/commerce-api/internal/model"
	"github.com/voltmart/commerce-api/internal/repository"
)

type mockOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*model.Order
	products *mockProductRepo
	carts    *mockCartRepo
}

func newMockOrderRepo(products *mockProductRepo, carts *mockCartRepo) *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order), products: products, carts: carts}
}

// CreateFromCart mirrors the real implementation's all-or-nothing contract:
// the stock check and every decrement happen under one lock, so either all
// lines commit or none do.
func (m *mockOrderRepo) CreateFromCart(_ context.Context, order *model.Order, cartID uuid.UUID) error {
	m.products.mu.Lock()
	var short []uuid.UUID
	for _, item := range order.Items {
		p, ok := m.products.products[item.ProductID]
		if !ok || p.Stock < item.Quantity {
			short = append(short, item.ProductID)
		}
	}
	if len(short) > 0 {
		m.products.mu.Unlock()
		return &repository.InsufficientStockError{ProductIDs: short}
	}
	for _, item := range order.Items {
		m.products.products[item.ProductID].Stock -= item.Quantity
	}
	m.products.mu.Unlock()

	m.mu.Lock()
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = append([]model.OrderItem(nil), order.Items...)
	m.orders[order.ID] = &stored
	m.mu.Unlock()

	return m.carts.ClearCart(context.Background(), cartID)
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, f repository.OrderFilter) ([]model.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Order
	for _, o := range m.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		all = append(all, *o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *mockOrderRepo) UpdatePaymentStatus(_ context.Context, id uuid.UUID, from, to model.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = to
	return true, nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.orders, id)
	return nil
}

func (m *mockOrderRepo) TotalSales(_ context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, o := range m.orders {
		total = total.Add(o.TotalAmount)
	}
	return total, nil
}

func (m *mockOrderRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), nil
}

func (m *mockOrderRepo) Recent(_ context.Context, n int) ([]model.Order, error) {
	all, _, err := m.List(context.Background(), repository.OrderFilter{Limit: n})
	return all, err
}

func (m *mockOrderRepo) TopProducts(_ context.Context, n int) ([]model.ProductSales, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	units := make(map[uuid.UUID]*model.ProductSales)
	for _, o := range m.orders {
		for _, item := range o.Items {
			ps, ok := units[item.ProductID]
			if !ok {
				ps = &model.ProductSales{ProductID: item.ProductID, Name: item.Name}
				units[item.ProductID] = ps
			}
			ps.UnitsSold += item.Quantity
		}
	}
	var out []model.ProductSales
	for _, ps := range units {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitsSold > out[j].UnitsSold })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

type orderFixture struct {
	productRepo *mockProductRepo
	cartRepo    *mockCartRepo
	orderRepo   *mockOrderRepo
	cartSvc     *CartService
	orderSvc    *OrderService
}

func newOrderFixture() *orderFixture {
	productRepo := newMockProductRepo()
	cartRepo := newMockCartRepo()
	orderRepo := newMockOrderRepo(productRepo, cartRepo)
	return &orderFixture{
		productRepo: productRepo,
		cartRepo:    cartRepo,
		orderRepo:   orderRepo,
		cartSvc:     NewCartService(cartRepo, productRepo),
		orderSvc:    NewOrderService(orderRepo, cartRepo, productRepo, nil),
	}
}

func TestOrderService_Checkout(t *testing.T) {
	fx := newOrderFixture()
	productA := seedProduct(fx.productRepo, "laptop", 100, 10)
	productB := seedProduct(fx.productRepo, "sleeve", 50, 10)
	userID := uuid.New()

	_, err := fx.cartSvc.AddItem(context.Background(), userID, productA.ID, 2)
	require.NoError(t, err)
	_, err = fx.cartSvc.AddItem(context.Background(), userID, productB.ID, 1)
	require.NoError(t, err)

	order, err := fx.orderSvc.Checkout(context.Background(), userID)
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.PaymentStatusUnpaid, order.PaymentStatus)
	require.Len(t, order.Items, 2)

	// totalAmount always equals the sum of the frozen line subtotals.
	sum := decimal.Zero
	for _, item := range order.Items {
		sum = sum.Add(item.Subtotal())
	}
	assert.True(t, order.TotalAmount.Equal(sum))

	a, _ := fx.productRepo.GetByID(context.Background(), productA.ID)
	b, _ := fx.productRepo.GetByID(context.Background(), productB.ID)
	assert.Equal(t, 8, a.Stock)
	assert.Equal(t, 9, b.Stock)

	view, err := fx.cartSvc.GetCart(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestOrderService_Checkout_EmptyCart(t *testing.T) {
	fx := newOrderFixture()
	_, err := fx.orderSvc.Checkout(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestOrderService_Checkout_InsufficientStock(t *testing.T) {
	fx := newOrderFixture()
	inStock := seedProduct(fx.productRepo, "cable", 10, 100)
	scarce := seedProduct(fx.productRepo, "gpu", 900, 1)
	userID := uuid.New()

	_, err := fx.cartSvc.AddItem(context.Background(), userID, inStock.ID, 2)
	require.NoError(t, err)
	_, err = fx.cartSvc.AddItem(context.Background(), userID, scarce.ID, 3)
	require.NoError(t, err)

	_, err = fx.orderSvc.Checkout(context.Background(), userID)
	var stockErr *repository.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, []uuid.UUID{scarce.ID}, stockErr.ProductIDs)

	// Nothing committed: stocks untouched, cart intact, no order stored.
	p, _ := fx.productRepo.GetByID(context.Background(), inStock.ID)
	assert.Equal(t, 100, p.Stock)
	s, _ := fx.productRepo.GetByID(context.Background(), scarce.ID)
	assert.Equal(t, 1, s.Stock)

	view, err := fx.cartSvc.GetCart(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 2)

	count, _ := fx.orderRepo.Count(context.Background())
	assert.Zero(t, count)
}

func TestOrderService_Checkout_TotalFrozenAfterPriceChange(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "monitor", 200, 10)
	userID := uuid.New()

	_, err := fx.cartSvc.AddItem(context.Background(), userID, p.ID, 1)
	require.NoError(t, err)
	order, err := fx.orderSvc.Checkout(context.Background(), userID)
	require.NoError(t, err)

	// Reprice the live product; the order must not move.
	live, _ := fx.productRepo.GetByID(context.Background(), p.ID)
	live.Price = decimal.NewFromInt(999)
	require.NoError(t, fx.productRepo.Update(context.Background(), live))

	view, err := fx.orderSvc.GetOrder(context.Background(), order.ID, userID, model.RoleCustomer)
	require.NoError(t, err)
	assert.True(t, view.Order.TotalAmount.Equal(decimal.NewFromInt(200)))
	require.Len(t, view.Lines, 1)
	assert.True(t, view.Lines[0].Item.UnitPrice.Equal(decimal.NewFromInt(200)))
}

func TestOrderService_Checkout_Concurrent(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "console", 400, 5)

	userA := uuid.New()
	userB := uuid.New()
	_, err := fx.cartSvc.AddItem(context.Background(), userA, p.ID, 3)
	require.NoError(t, err)
	_, err = fx.cartSvc.AddItem(context.Background(), userB, p.ID, 3)
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, uid := range []uuid.UUID{userA, userB} {
		wg.Add(1)
		go func(uid uuid.UUID) {
			defer wg.Done()
			_, err := fx.orderSvc.Checkout(context.Background(), uid)
			results <- err
		}(uid)
	}
	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var stockErr *repository.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		failures++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)

	live, _ := fx.productRepo.GetByID(context.Background(), p.ID)
	assert.Equal(t, 2, live.Stock)
	assert.GreaterOrEqual(t, live.Stock, 0)
}

func checkoutOrder(t *testing.T, fx *orderFixture, userID uuid.UUID, productID uuid.UUID, qty int) *model.Order {
	t.Helper()
	_, err := fx.cartSvc.AddItem(context.Background(), userID, productID, qty)
	require.NoError(t, err)
	order, err := fx.orderSvc.Checkout(context.Background(), userID)
	require.NoError(t, err)
	return order
}

func TestOrderService_UpdateStatus(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "tablet", 300, 10)
	order := checkoutOrder(t, fx, uuid.New(), p.ID, 1)

	updated, err := fx.orderSvc.UpdateStatus(context.Background(), order.ID, model.OrderStatusProcessing, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, updated.Status)

	updated, err = fx.orderSvc.UpdateStatus(context.Background(), order.ID, model.OrderStatusShipped, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, updated.Status)
}

func TestOrderService_UpdateStatus_NotFound(t *testing.T) {
	fx := newOrderFixture()
	_, err := fx.orderSvc.UpdateStatus(context.Background(), uuid.New(), model.OrderStatusShipped, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_UpdateStatus_NonAdmin(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "router", 70, 10)
	order := checkoutOrder(t, fx, uuid.New(), p.ID, 1)

	_, err := fx.orderSvc.UpdateStatus(context.Background(), order.ID, model.OrderStatusProcessing, model.RoleCustomer)
	assert.ErrorIs(t, err, ErrAdminOnly)
}

func TestOrderService_UpdateStatus_RejectsSkipAndBackward(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "drive", 110, 10)
	order := checkoutOrder(t, fx, uuid.New(), p.ID, 1)

	// Pending -> Shipped skips Processing.
	_, err := fx.orderSvc.UpdateStatus(context.Background(), order.ID, model.OrderStatusShipped, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = fx.orderSvc.UpdateStatus(context.Background(), order.ID, model.OrderStatusProcessing, model.RoleAdmin)
	require.NoError(t, err)

	// Processing -> Pending walks backward.
	_, err = fx.orderSvc.UpdateStatus(context.Background(), order.ID, model.OrderStatusPending, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderService_SetPaymentStatus(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "speaker", 85, 10)
	order := checkoutOrder(t, fx, uuid.New(), p.ID, 1)

	paid, err := fx.orderSvc.SetPaymentStatus(context.Background(), order.ID, model.PaymentStatusPaid, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, paid.PaymentStatus)

	// Applying the signal again is a safe no-op.
	paid, err = fx.orderSvc.SetPaymentStatus(context.Background(), order.ID, model.PaymentStatusPaid, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, paid.PaymentStatus)

	// There is no way back to Unpaid.
	_, err = fx.orderSvc.SetPaymentStatus(context.Background(), order.ID, model.PaymentStatusUnpaid, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = fx.orderSvc.SetPaymentStatus(context.Background(), order.ID, model.PaymentStatusPaid, model.RoleCustomer)
	assert.ErrorIs(t, err, ErrAdminOnly)
}

func TestOrderService_GetOrder_Authorization(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "headset", 150, 10)
	owner := uuid.New()
	order := checkoutOrder(t, fx, owner, p.ID, 1)

	_, err := fx.orderSvc.GetOrder(context.Background(), order.ID, owner, model.RoleCustomer)
	require.NoError(t, err)

	_, err = fx.orderSvc.GetOrder(context.Background(), order.ID, uuid.New(), model.RoleCustomer)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = fx.orderSvc.GetOrder(context.Background(), order.ID, uuid.New(), model.RoleAdmin)
	require.NoError(t, err)
}

func TestOrderService_GetOrder_ToleratesDeletedProduct(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "lamp", 35, 10)
	owner := uuid.New()
	order := checkoutOrder(t, fx, owner, p.ID, 2)

	require.NoError(t, fx.productRepo.Delete(context.Background(), p.ID))

	view, err := fx.orderSvc.GetOrder(context.Background(), order.ID, owner, model.RoleCustomer)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.True(t, view.Lines[0].ProductMissing())
	// The snapshot still renders the line.
	assert.Equal(t, "lamp", view.Lines[0].Item.Name)
	assert.True(t, view.Lines[0].Item.UnitPrice.Equal(decimal.NewFromInt(35)))
}

func TestOrderService_ListOrders_CustomerPinnedToOwn(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "case", 20, 100)
	alice := uuid.New()
	bob := uuid.New()
	checkoutOrder(t, fx, alice, p.ID, 1)
	checkoutOrder(t, fx, bob, p.ID, 1)

	// A customer asking for another user's orders still only sees their own.
	orders, total, err := fx.orderSvc.ListOrders(context.Background(), alice, model.RoleCustomer, ListOrdersQuery{UserID: &bob})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, alice, orders[0].UserID)

	// Admin sees everything.
	_, total, err = fx.orderSvc.ListOrders(context.Background(), uuid.New(), model.RoleAdmin, ListOrdersQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestOrderService_DeleteOrder(t *testing.T) {
	fx := newOrderFixture()
	p := seedProduct(fx.productRepo, "fan", 15, 10)
	order := checkoutOrder(t, fx, uuid.New(), p.ID, 1)

	err := fx.orderSvc.DeleteOrder(context.Background(), order.ID, model.RoleCustomer)
	assert.ErrorIs(t, err, ErrAdminOnly)

	require.NoError(t, fx.orderSvc.DeleteOrder(context.Background(), order.ID, model.RoleAdmin))

	err = fx.orderSvc.DeleteOrder(context.Background(), order.ID, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
