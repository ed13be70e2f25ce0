package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voltmart/commerce-api/internal/dto"
	"github.com/voltmart/commerce-api/internal/middleware"
	"github.com/voltmart/commerce-api/internal/model"
	"github.com/voltmart/commerce-api/internal/repository"
	"github.com/voltmart/commerce-api/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
	log          *slog.Logger
}

func NewOrderHandler(orderService *service.OrderService, log *slog.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, log: log}
}

func (h *OrderHandler) Checkout(c *gin.Context) {
	userID := middleware.GetUserID(c)

	order, err := h.orderService.Checkout(c.Request.Context(), userID)
	if err != nil {
		var stockErr *repository.InsufficientStockError
		switch {
		case errors.Is(err, service.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"code": "EMPTY_CART", "error": "cart is empty"})
		case errors.As(err, &stockErr):
			c.JSON(http.StatusConflict, gin.H{
				"code":        "INSUFFICIENT_STOCK",
				"error":       "insufficient stock",
				"product_ids": stockErr.ProductIDs,
			})
		case errors.Is(err, service.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "product no longer available"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "invalid order id"})
		return
	}

	view, err := h.orderService.GetOrder(c.Request.Context(), orderID, middleware.GetUserID(c), middleware.GetUserRole(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "order not found"})
		case errors.Is(err, service.ErrAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "access denied"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, toOrderViewResponse(view))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
		return
	}

	q := service.ListOrdersQuery{Page: req.Page, Limit: req.Limit}
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "invalid user id"})
			return
		}
		q.UserID = &uid
	}
	if req.Status != "" {
		status := model.OrderStatus(req.Status)
		q.Status = &status
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), middleware.GetUserID(c), middleware.GetUserRole(c), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrderResponse(&o))
	}
	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: total, Page: req.Page, Limit: req.Limit})
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "invalid order id"})
		return
	}
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, model.OrderStatus(req.Status), middleware.GetUserRole(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAdminOnly):
			c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "admin only"})
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "order not found"})
		case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
		case errors.Is(err, service.ErrStatusConflict):
			c.JSON(http.StatusConflict, gin.H{"code": "CONFLICT", "error": "order changed concurrently, retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) UpdatePaymentStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "invalid order id"})
		return
	}
	var req dto.UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
		return
	}

	order, err := h.orderService.SetPaymentStatus(c.Request.Context(), orderID, model.PaymentStatus(req.PaymentStatus), middleware.GetUserRole(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAdminOnly):
			c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "admin only"})
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "order not found"})
		case errors.Is(err, service.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "invalid order id"})
		return
	}

	err = h.orderService.DeleteOrder(c.Request.Context(), orderID, middleware.GetUserRole(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAdminOnly):
			c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "admin only"})
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "order not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		}
		return
	}

	// Hard deletes are rare and worth a trace.
	h.log.Warn("order deleted", "order_id", orderID, "admin_id", middleware.GetUserID(c))
	c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	var items []dto.OrderItemResponse
	for _, item := range order.Items {
		items = append(items, dto.OrderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
		})
	}
	return dto.OrderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   order.TotalAmount,
		Items:         items,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func toOrderViewResponse(view *service.OrderView) dto.OrderResponse {
	resp := toOrderResponse(view.Order)
	resp.Items = nil
	for _, line := range view.Lines {
		item := dto.OrderItemResponse{
			ProductID:      line.Item.ProductID,
			Name:           line.Item.Name,
			Quantity:       line.Item.Quantity,
			UnitPrice:      line.Item.UnitPrice,
			Subtotal:       line.Item.Subtotal(),
			ProductMissing: line.ProductMissing(),
		}
		if line.Product != nil {
			item.Images = line.Product.Images
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
