package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voltmart/commerce-api/internal/dto"
	"github.com/voltmart/commerce-api/internal/middleware"
	"github.com/voltmart/commerce-api/internal/service"
)

type CartHandler struct {
	svc *service.CartService
}

func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	view, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
		return
	}
	view, err := h.svc.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "product not found"})
		case errors.Is(err, service.ErrInvalidQuantity):
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "quantity must be positive"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "invalid product id"})
		return
	}
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": err.Error()})
		return
	}
	view, err := h.svc.UpdateItemQuantity(c.Request.Context(), middleware.GetUserID(c), productID, req.Quantity)
	if err != nil {
		if errors.Is(err, service.ErrCartItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "cart item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// RemoveItem is idempotent: removing an absent line still returns 200 with
// the current cart.
func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "error": "invalid product id"})
		return
	}
	view, err := h.svc.RemoveItem(c.Request.Context(), middleware.GetUserID(c), productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.svc.ClearCart(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cart cleared"})
}

func toCartResponse(view *service.CartView) dto.CartResponse {
	resp := dto.CartResponse{ID: view.Cart.ID, Subtotal: view.Subtotal, Items: make([]dto.CartItemResponse, 0, len(view.Lines))}
	for _, line := range view.Lines {
		item := dto.CartItemResponse{
			ProductID:      line.Item.ProductID,
			Quantity:       line.Item.Quantity,
			ProductMissing: line.ProductMissing(),
		}
		if line.Product != nil {
			item.Name = line.Product.Name
			item.Price = line.Product.Price
			item.Images = line.Product.Images
			item.Stock = line.Product.Stock
			item.InsufficientStock = line.InsufficientStock()
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
