package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmart/commerce-api/internal/dto"
	"github.com/voltmart/commerce-api/internal/model"
	"github.com/voltmart/commerce-api/internal/repository"
)

type mockProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*model.Product
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: make(map[uuid.UUID]*model.Product)}
}

func (m *mockProductRepo) Create(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *mockProductRepo) List(_ context.Context, _, _ int, _ string, _ model.Category, _, _ string) ([]model.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Product
	for _, p := range m.products {
		all = append(all, *p)
	}
	return all, len(all), nil
}

func (m *mockProductRepo) Update(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	return nil
}

func (m *mockProductRepo) DecrementStock(_ context.Context, _ pgx.Tx, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Stock < quantity {
		return fmt.Errorf("product %s: %w", id, repository.ErrStockConflict)
	}
	p.Stock -= quantity
	return nil
}

func (m *mockProductRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products), nil
}

func TestProductService_Create(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil)

	resp, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name: "USB-C Charger", Description: "65W GaN",
		Price: decimal.NewFromFloat(39.99), Stock: 25,
		Category: "Charging", Images: []string{"https://cdn.example.com/charger.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Charging", resp.Category)
	assert.Equal(t, 25, resp.Stock)
}

func TestProductService_Create_DefaultCategory(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil)

	resp, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name: "Ultrabook", Description: "13 inch",
		Price: decimal.NewFromInt(999), Stock: 5,
		Images: []string{"https://cdn.example.com/laptop.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.CategoryLaptops), resp.Category)
}

func TestProductService_Create_InvalidCategory(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil)

	_, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name: "Widget", Description: "n/a",
		Price: decimal.NewFromInt(1), Stock: 1, Category: "Gadgets",
	})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestProductService_GetByID_NotFound(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil)
	_, err := svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductService_Update(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil)

	created, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name: "Phone", Description: "base model",
		Price: decimal.NewFromInt(500), Stock: 10,
		Category: "Phones", Images: []string{"https://cdn.example.com/phone.jpg"},
	})
	require.NoError(t, err)

	newPrice := decimal.NewFromInt(450)
	updated, err := svc.Update(context.Background(), created.ID, dto.UpdateProductRequest{Price: &newPrice})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(newPrice))
	assert.Equal(t, "Phone", updated.Name)
}
