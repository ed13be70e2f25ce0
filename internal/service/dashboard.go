package service

import (
	"context"
	"fmt"

	"github.com/voltmart/commerce-api/internal/dto"
	"github.com/voltmart/commerce-api/internal/repository"
)

const (
	recentOrdersCount = 4
	topProductsCount  = 4
)

// DashboardService is a read-only reporting layer over the core's own data.
// It never mutates anything.
type DashboardService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
}

func NewDashboardService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, userRepo repository.UserRepository) *DashboardService {
	return &DashboardService{orderRepo: orderRepo, productRepo: productRepo, userRepo: userRepo}
}

func (s *DashboardService) Stats(ctx context.Context, actingRole string) (*dto.DashboardResponse, error) {
	if err := authorizeAdmin(actingRole); err != nil {
		return nil, err
	}

	totalSales, err := s.orderRepo.TotalSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("total sales: %w", err)
	}
	orderCount, err := s.orderRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	productCount, err := s.productRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	userCount, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	recent, err := s.orderRepo.Recent(ctx, recentOrdersCount)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	top, err := s.orderRepo.TopProducts(ctx, topProductsCount)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}

	resp := &dto.DashboardResponse{
		Stats: dto.DashboardStats{
			TotalSales: totalSales,
			Orders:     orderCount,
			Products:   productCount,
			Users:      userCount,
		},
	}
	for _, o := range recent {
		resp.RecentOrders = append(resp.RecentOrders, dto.RecentOrder{
			ID:     o.ID,
			UserID: o.UserID,
			Total:  o.TotalAmount,
			Status: string(o.Status),
		})
	}
	for _, p := range top {
		resp.TopProducts = append(resp.TopProducts, dto.TopProduct{
			ProductID: p.ProductID,
			Name:      p.Name,
			UnitsSold: p.UnitsSold,
		})
	}
	return resp, nil
}
