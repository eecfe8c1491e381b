package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Serrius/Educore-sub002/internal/models"
	"github.com/Serrius/Educore-sub002/internal/service"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
	"github.com/Serrius/Educore-sub002/pkg/response"
)

// LedgerHandler exposes event bookkeeping endpoints.
type LedgerHandler struct {
	service *service.LedgerService
}

// NewLedgerHandler creates the handler.
func NewLedgerHandler(svc *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: svc}
}

// List godoc
// @Summary List ledger entries
// @Tags Ledger
// @Produce json
// @Param org_id query int false "Organization ID"
// @Param entry_type query string false "CREDIT or DEBIT"
// @Param event query string false "Filter by event name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /ledger [get]
func (h *LedgerHandler) List(c *gin.Context) {
	filter := models.LedgerFilter{
		OrgID:     queryInt64(c, "org_id"),
		EntryType: models.LedgerEntryType(c.Query("entry_type")),
		EventName: c.Query("event"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
	}
	entries, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Record godoc
// @Summary Append a credit or debit line
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body service.RecordLedgerEntryRequest true "Ledger payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /ledger [post]
func (h *LedgerHandler) Record(c *gin.Context) {
	var req service.RecordLedgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ledger payload"))
		return
	}
	entry, err := h.service.Record(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Balance godoc
// @Summary Running balance for an organization
// @Tags Ledger
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {object} response.Envelope
// @Router /organizations/{id}/balance [get]
func (h *LedgerHandler) Balance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid organization id"))
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}
