package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
	defaultAuditLimit  = 50
	maxAuditLimit      = 500
	queryTimeout       = 3 * time.Second
)

// queryHandler exposes read-only store endpoints.
type queryHandler struct {
	store   scraper.Store
	sources []scraper.Source
	timeout time.Duration
	logger  *zap.Logger
}

func newQueryHandler(store scraper.Store, sources []scraper.Source, logger *zap.Logger) *queryHandler {
	return &queryHandler{
		store:   store,
		sources: sources,
		timeout: queryTimeout,
		logger:  logger,
	}
}

// ListRecords handles GET /v1/records?source=&category=&active_only=&limit=.
// It returns {"records": [...]} on success, 400 for invalid filters, or 500
// if the store call fails.
func (h *queryHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scraper.RecordFilter{Source: strings.TrimSpace(q.Get("source"))}
	if raw := q.Get("category"); raw != "" {
		category, err := scraper.ParseCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Category = category
	}
	if raw := q.Get("active_only"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active_only")
			return
		}
		filter.ActiveOnly = active
	}
	limit, err := parseLimit(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = limit

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	records, err := h.store.QueryRecords(ctx, filter)
	if err != nil {
		h.logger.Error("query records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query records")
		return
	}
	if records == nil {
		records = []scraper.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// Statistics handles GET /v1/statistics.
func (h *queryHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	stats, err := h.store.Statistics(ctx)
	if err != nil {
		h.logger.Error("statistics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListAudit handles GET /v1/audit?limit=, newest first.
func (h *queryHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultAuditLimit, maxAuditLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	entries, err := h.store.RecentAudit(ctx, limit)
	if err != nil {
		h.logger.Error("list audit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []scraper.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// GetPageState handles GET /v1/page-states/{source}. It returns 404 when the
// source has never been fetched successfully.
func (h *queryHandler) GetPageState(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	state, err := h.store.GetPageState(ctx, source)
	if err != nil {
		h.logger.Error("get page state failed", zap.String("source", source), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load page state")
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "page state not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page_state": state})
}

// ListSources handles GET /v1/sources.
func (h *queryHandler) ListSources(w http.ResponseWriter, _ *http.Request) {
	sources := h.sources
	if sources == nil {
		sources = []scraper.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
