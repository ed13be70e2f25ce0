package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltmart/commerce-api/internal/middleware"
	"github.com/voltmart/commerce-api/internal/service"
)

type DashboardHandler struct {
	dashboardService *service.DashboardService
}

func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

func (h *DashboardHandler) Stats(c *gin.Context) {
	resp, err := h.dashboardService.Stats(c.Request.Context(), middleware.GetUserRole(c))
	if err != nil {
		if errors.Is(err, service.ErrAdminOnly) {
			c.JSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "admin only"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
