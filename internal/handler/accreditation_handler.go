package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Serrius/Educore-sub002/internal/models"
	"github.com/Serrius/Educore-sub002/internal/service"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
	"github.com/Serrius/Educore-sub002/pkg/response"
)

// AccreditationHandler exposes document intake and the review engine.
type AccreditationHandler struct {
	accreditation *service.AccreditationService
	review        *service.ReviewService
	metrics       *service.MetricsService
}

// NewAccreditationHandler creates the handler.
func NewAccreditationHandler(accreditation *service.AccreditationService, review *service.ReviewService, metrics *service.MetricsService) *AccreditationHandler {
	return &AccreditationHandler{accreditation: accreditation, review: review, metrics: metrics}
}

// Submit godoc
// @Summary Upload an accreditation document
// @Tags Accreditation
// @Accept multipart/form-data
// @Produce json
// @Param org_id formData int true "Organization ID"
// @Param doc_group formData string true "Submission cycle (new or reaccreditation)"
// @Param doc_type formData string true "Document type"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /accreditation/documents [post]
func (h *AccreditationHandler) Submit(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file upload is required"))
		return
	}

	req := service.SubmitDocumentRequest{
		OrgID:    queryOrFormInt64(c, "org_id"),
		DocGroup: models.DocGroup(c.PostForm("doc_group")),
		DocType:  c.PostForm("doc_type"),
		Filename: header.Filename,
		Size:     header.Size,
	}

	file, err := h.accreditation.Submit(c.Request.Context(), req, header, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// Resubmit godoc
// @Summary Replace a declined or pending document
// @Tags Accreditation
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "File ID"
// @Param file formData file true "Replacement file"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /accreditation/documents/{id} [put]
func (h *AccreditationHandler) Resubmit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid file id"))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file upload is required"))
		return
	}
	file, err := h.accreditation.Resubmit(c.Request.Context(), id, header, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// List godoc
// @Summary List accreditation documents
// @Tags Accreditation
// @Produce json
// @Param org_id query int false "Organization ID"
// @Param doc_group query string false "Submission cycle"
// @Param status query string false "Document status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /accreditation/documents [get]
func (h *AccreditationHandler) List(c *gin.Context) {
	filter := models.AccreditationFileFilter{
		OrgID:    queryInt64(c, "org_id"),
		DocGroup: models.DocGroup(c.Query("doc_group")),
		Status:   models.FileStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	files, pagination, err := h.accreditation.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, pagination)
}

// Requirements godoc
// @Summary Requirement checklist progress for an organization
// @Tags Accreditation
// @Produce json
// @Param id path int true "Organization ID"
// @Param doc_group query string true "Submission cycle"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accreditation/organizations/{id}/requirements [get]
func (h *AccreditationHandler) Requirements(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid organization id"))
		return
	}
	progress, err := h.accreditation.Requirements(c.Request.Context(), id, models.DocGroup(c.Query("doc_group")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Review godoc
// @Summary Apply a review decision to a document
// @Tags Accreditation
// @Accept json
// @Produce json
// @Param id path int true "File ID"
// @Param payload body service.ReviewDocumentRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /accreditation/documents/{id}/review [post]
func (h *AccreditationHandler) Review(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid file id"))
		return
	}
	var req service.ReviewDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	req.FileID = id

	result, err := h.review.ReviewDocument(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ObserveReviewDecision(string(req.Action))
	response.JSON(c, http.StatusOK, result, nil)
}

// Finalize godoc
// @Summary Manually finalize an organization's accreditation status
// @Tags Accreditation
// @Accept json
// @Produce json
// @Param payload body service.FinalizeRequest true "Finalize payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accreditation/finalize [post]
func (h *AccreditationHandler) Finalize(c *gin.Context) {
	var req service.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid finalize payload"))
		return
	}
	org, err := h.review.Finalize(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, org, nil)
}

// SignDownload godoc
// @Summary Issue a signed download token for a document
// @Tags Accreditation
// @Produce json
// @Param id path int true "File ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accreditation/documents/{id}/download-token [post]
func (h *AccreditationHandler) SignDownload(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid file id"))
		return
	}
	grant, err := h.accreditation.SignDownload(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grant, nil)
}

// Download godoc
// @Summary Stream a document via signed token
// @Tags Accreditation
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /accreditation/download [get]
func (h *AccreditationHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "download token required"))
		return
	}
	reader, filename, err := h.accreditation.OpenSigned(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

func queryOrFormInt64(c *gin.Context, name string) int64 {
	if v := queryInt64(c, name); v > 0 {
		return v
	}
	id, err := strconv.ParseInt(c.PostForm(name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
