package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shelfscout/backend/internal/domain"
	"github.com/shelfscout/backend/internal/infrastructure/csvexport"
	"github.com/shelfscout/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	runs        *usecase.RunService
	trends      *usecase.TrendService
	defaultTopK int
	logger      zerolog.Logger
}

// NewHandler creates a new HTTP handler. Nil services answer 501.
func NewHandler(runs *usecase.RunService, trends *usecase.TrendService, defaultTopK int, logger zerolog.Logger) *Handler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Handler{
		runs:        runs,
		trends:      trends,
		defaultTopK: defaultTopK,
		logger:      logger.With().Str("component", "http").Logger(),
	}
}

// RunRequest is the body of a pipeline run over caller-supplied records
type RunRequest struct {
	Listings []domain.RawListing `json:"listings" binding:"required"`
}

// RunResponse is a stored run with an optional warning
type RunResponse struct {
	*domain.RunSnapshot
	Warning string `json:"warning,omitempty"`
}

// RunReportResponse is the report view of one run
type RunReportResponse struct {
	RunID     string           `json:"runId"`
	CreatedAt time.Time        `json:"createdAt"`
	Report    domain.RunReport `json:"report"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelfscout-backend",
		"version": "1.0.0",
	})
}

// CreateRun runs the pipeline over the listings in the request body
func (h *Handler) CreateRun(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	snapshot, err := h.runs.Run(c.Request.Context(), req.Listings)
	h.respondRun(c, snapshot, err)
}

// CollectRun fetches every configured source, then runs the pipeline
func (h *Handler) CollectRun(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	snapshot, err := h.runs.Collect(c.Request.Context())
	h.respondRun(c, snapshot, err)
}

func (h *Handler) respondRun(c *gin.Context, snapshot *domain.RunSnapshot, err error) {
	if errors.Is(err, domain.ErrEmptyInputRun) && snapshot != nil {
		c.JSON(http.StatusOK, RunResponse{RunSnapshot: snapshot, Warning: err.Error()})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RunResponse{RunSnapshot: snapshot})
}

// ListRuns returns run history, newest first
func (h *Handler) ListRuns(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(c, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidRequest))
			return
		}
		limit = n
	}

	summaries, err := h.runs.History(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": summaries})
}

// GetRun returns the report of one run; "latest" addresses the newest run
func (h *Handler) GetRun(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	snapshot, err := h.runs.Snapshot(c.Request.Context(), c.Param("runId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RunReportResponse{
		RunID:     snapshot.RunID,
		CreatedAt: snapshot.CreatedAt,
		Report:    snapshot.Report,
	})
}

// GetRankings returns the top k products of every category of a run
func (h *Handler) GetRankings(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}
	k, ok := h.topK(c)
	if !ok {
		return
	}

	rankings, err := h.runs.Rankings(c.Request.Context(), c.Param("runId"), k)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": c.Param("runId"), "rankings": rankings})
}

// GetCategoryRanking returns the top k products of one category of a run
func (h *Handler) GetCategoryRanking(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}
	k, ok := h.topK(c)
	if !ok {
		return
	}

	ranking, err := h.runs.TopK(c.Request.Context(), c.Param("runId"), c.Param("category"), k)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

// ListGroups returns every product group of a run
func (h *Handler) ListGroups(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	snapshot, err := h.runs.Snapshot(c.Request.Context(), c.Param("runId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": snapshot.RunID, "groups": snapshot.Groups})
}

// GetGroup returns one scored product group of a run
func (h *Handler) GetGroup(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	product, err := h.runs.Group(c.Request.Context(), c.Param("runId"), c.Param("groupId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// GetSimilar returns the same-category groups most similar to a group
func (h *Handler) GetSimilar(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}
	k, ok := h.topK(c)
	if !ok {
		return
	}

	similar, err := h.runs.Similar(c.Request.Context(), c.Param("runId"), c.Param("groupId"), k)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupId": c.Param("groupId"), "similar": similar})
}

// SearchProducts finds products of a run by name, category or brand
func (h *Handler) SearchProducts(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}
	k, ok := h.topK(c)
	if !ok {
		return
	}

	query := usecase.SearchQuery{
		Text:     c.Query("q"),
		Mode:     strings.TrimSpace(c.Query("mode")),
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    k,
	}
	var err error
	if query.MinPrice, err = priceParam(c, "min_price"); err != nil {
		h.respondError(c, err)
		return
	}
	if query.MaxPrice, err = priceParam(c, "max_price"); err != nil {
		h.respondError(c, err)
		return
	}
	if err := query.Validate(); err != nil {
		h.respondError(c, err)
		return
	}

	hits, err := h.runs.Search(c.Request.Context(), c.Param("runId"), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query.Text, "mode": query.Mode, "results": hits})
}

// DeleteRun removes a stored run
func (h *Handler) DeleteRun(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	runID, err := h.runs.Delete(c.Request.Context(), c.Param("runId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": runID, "deleted": true})
}

// GetCategories returns the taxonomy runs are categorized with
func (h *Handler) GetCategories(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}
	c.JSON(http.StatusOK, h.runs.Categories())
}

// ExportCSV streams the scored products of a run as a CSV download
func (h *Handler) ExportCSV(c *gin.Context) {
	if !h.runsConfigured(c) {
		return
	}

	snapshot, err := h.runs.Snapshot(c.Request.Context(), c.Param("runId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="scored-%s.csv"`, snapshot.RunID))
	c.Status(http.StatusOK)
	if err := csvexport.Write(c.Writer, usecase.SnapshotRows(snapshot)); err != nil {
		h.logger.Error().Err(err).Str("run_id", snapshot.RunID).Msg("csv export failed")
	}
}

// GetTrending returns the top k trending products per category
func (h *Handler) GetTrending(c *gin.Context) {
	if h.trends == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "trend service not configured"})
		return
	}
	k, ok := h.topK(c)
	if !ok {
		return
	}

	trends, err := h.trends.Trending(c.Request.Context(), k)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": trends})
}

func (h *Handler) runsConfigured(c *gin.Context) bool {
	if h.runs == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "run service not configured"})
		return false
	}
	return true
}

// topK reads the k query parameter, falling back to the configured default
func (h *Handler) topK(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("k"))
	if raw == "" {
		return h.defaultTopK, true
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: k must be an integer", domain.ErrInvalidRequest))
		return 0, false
	}
	return k, true
}

// priceParam reads an optional decimal query parameter
func priceParam(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidRequest, name)
	}
	return &d, nil
}

// respondError maps domain errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidTopK):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrGroupNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSourceFailure):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
