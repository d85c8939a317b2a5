package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ledger-backoffice/internal/application/service"
	"github.com/garyjia/ledger-backoffice/internal/classify"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/domain/workflow"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps          Dependencies
	maxUploadSize int64
	logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, maxUploadSize int64, logger Logger) *Handlers {
	return &Handlers{
		deps:          deps,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Version   string      `json:"version"`
	Providers interface{} `json:"providers,omitempty"`
}

// ReferenceRequest is the body of PUT .../entries/:id/reference
type ReferenceRequest struct {
	Reference string `json:"reference" binding:"required"`
}

// JustificationRequestBody is the body of POST .../entries/:id/justifications
type JustificationRequestBody struct {
	Type string `json:"type"`
}

// UpdateRequestBody is the body of PATCH /api/justifications/:id.
// A received status with a reference also records the reference on the entry.
type UpdateRequestBody struct {
	Status    string `json:"status" binding:"required"`
	Reference string `json:"reference"`
}

// ClearResponse reports a cleared ledger
type ClearResponse struct {
	Deleted int `json:"deleted"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	status := http.StatusOK
	if h.deps.Health != nil {
		healthy, providers := h.deps.Health(c.Request.Context())
		response.Providers = providers
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ImportLedger handles POST /api/clients/:clientID/ledgers/:variant/import
func (h *Handlers) ImportLedger(c *gin.Context) {
	variant, ok := h.variant(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	header, err := c.FormFile("file")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "file is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", "filename", header.Filename, "error", err)
		h.fail(c, http.StatusBadRequest, "failed to read upload")
		return
	}
	defer file.Close()

	report, err := h.deps.Import.ImportFile(c.Request.Context(), c.Param("clientID"), variant, header.Filename, file, c.PostForm("sheet"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// ListEntries handles GET /api/clients/:clientID/ledgers/:variant/entries
func (h *Handlers) ListEntries(c *gin.Context) {
	variant, ok := h.variant(c)
	if !ok {
		return
	}

	list, err := h.deps.Ledger.ListEntries(c.Request.Context(), c.Param("clientID"), variant, c.Query("bucket"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// ClearLedger handles DELETE /api/clients/:clientID/ledgers/:variant/entries
func (h *Handlers) ClearLedger(c *gin.Context) {
	variant, ok := h.variant(c)
	if !ok {
		return
	}

	n, err := h.deps.Import.ClearLedger(c.Request.Context(), c.Param("clientID"), variant)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: ClearResponse{Deleted: n}})
}

// ClassifyEntry handles GET .../entries/:id/classification
func (h *Handlers) ClassifyEntry(c *gin.Context) {
	variant, ok := h.variant(c)
	if !ok {
		return
	}

	view, err := h.deps.Ledger.ClassifyEntry(c.Request.Context(), c.Param("clientID"), variant, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// UpdateReference handles PUT .../entries/:id/reference
func (h *Handlers) UpdateReference(c *gin.Context) {
	variant, ok := h.variant(c)
	if !ok {
		return
	}

	var req ReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "reference is required")
		return
	}

	entry, err := h.deps.Ledger.UpdateReference(c.Request.Context(), c.Param("clientID"), variant, c.Param("id"), req.Reference)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entry})
}

// RequestJustification handles POST .../entries/:id/justifications
func (h *Handlers) RequestJustification(c *gin.Context) {
	variant, ok := h.variant(c)
	if !ok {
		return
	}

	var body JustificationRequestBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.fail(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	req, err := h.deps.Justification.RequestJustification(c.Request.Context(), c.Param("clientID"), variant, c.Param("id"), body.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// Suggestions handles GET .../suggestions
func (h *Handlers) Suggestions(c *gin.Context) {
	variant, ok := h.variant(c)
	if !ok {
		return
	}

	suggestions, err := h.deps.Ledger.Suggestions(c.Request.Context(), c.Param("clientID"), variant)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: suggestions})
}

// ListRequests handles GET /api/clients/:clientID/justifications
func (h *Handlers) ListRequests(c *gin.Context) {
	requests, err := h.deps.Justification.ListRequests(c.Request.Context(), c.Param("clientID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if requests == nil {
		requests = []*entity.JustificationRequest{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetRequest handles GET /api/justifications/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.deps.Justification.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// UpdateRequest handles PATCH /api/justifications/:id
func (h *Handlers) UpdateRequest(c *gin.Context) {
	var body UpdateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, http.StatusBadRequest, "status is required")
		return
	}

	var (
		req *entity.JustificationRequest
		err error
	)
	ctx := c.Request.Context()
	if body.Status == entity.RequestStatusReceived && body.Reference != "" {
		req, err = h.deps.Justification.ReceiveJustification(ctx, c.Param("id"), body.Reference)
	} else {
		req, err = h.deps.Justification.UpdateRequestStatus(ctx, c.Param("id"), body.Status)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// RemoveRequest handles DELETE /api/justifications/:id
func (h *Handlers) RemoveRequest(c *gin.Context) {
	if err := h.deps.Justification.RemoveRequest(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CacheStats handles GET /api/cache/stats
func (h *Handlers) CacheStats(c *gin.Context) {
	if h.deps.CacheStats == nil {
		c.JSON(http.StatusOK, Response{Success: true, Data: []interface{}{}})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: h.deps.CacheStats()})
}

func (h *Handlers) variant(c *gin.Context) (entity.Variant, bool) {
	v, err := entity.ParseVariant(c.Param("variant"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return "", false
	}
	return v, true
}

func (h *Handlers) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as an internal error without details.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrEntryNotFound), errors.Is(err, entity.ErrRequestNotFound):
		h.fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, entity.ErrInvalidVariant),
		errors.Is(err, entity.ErrMissingClientID),
		errors.Is(err, entity.ErrEmptyReference),
		errors.Is(err, entity.ErrInvalidRequestType),
		errors.Is(err, classify.ErrUnknownBucket),
		errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, ingest.ErrUnsupportedFile),
		errors.Is(err, ingest.ErrNoHeaderRow),
		errors.Is(err, ingest.ErrEmptySheet):
		h.fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, entity.ErrStaleRequest):
		h.fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrLedgerUnavailable):
		h.fail(c, http.StatusServiceUnavailable, "ledger temporarily unavailable")
	default:
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		h.fail(c, http.StatusInternalServerError, "internal error")
	}
}
