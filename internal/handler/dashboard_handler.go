package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Serrius/Educore-sub002/internal/service"
	"github.com/Serrius/Educore-sub002/pkg/response"
)

// DashboardHandler exposes the admin overview snapshot.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates the handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Active-year dashboard snapshot
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cache_hit": cacheHit})
}
