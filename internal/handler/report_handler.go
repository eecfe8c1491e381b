package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Serrius/Educore-sub002/internal/service"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
	"github.com/Serrius/Educore-sub002/pkg/response"
)

// ReportHandler serves CSV/PDF exports of fee collections and ledgers.
type ReportHandler struct {
	service *service.ExportService
}

// NewReportHandler creates the handler.
func NewReportHandler(svc *service.ExportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Collections godoc
// @Summary Export an organization's fee collection report
// @Tags Reports
// @Produce octet-stream
// @Param id path int true "Organization ID"
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /reports/organizations/{id}/collections [get]
func (h *ReportHandler) Collections(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid organization id"))
		return
	}
	result, err := h.service.CollectionReport(c.Request.Context(), id, service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// Ledger godoc
// @Summary Export an organization's event ledger
// @Tags Reports
// @Produce octet-stream
// @Param id path int true "Organization ID"
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /reports/organizations/{id}/ledger [get]
func (h *ReportHandler) Ledger(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid organization id"))
		return
	}
	result, err := h.service.LedgerReport(c.Request.Context(), id, service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

func serveExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(200, result.ContentType, result.Data)
}
