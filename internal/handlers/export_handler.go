package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/loraworks/ttn-export/internal/archive"
	"github.com/loraworks/ttn-export/internal/history"
	"github.com/loraworks/ttn-export/internal/logging"
	"github.com/loraworks/ttn-export/internal/metrics"
	"github.com/loraworks/ttn-export/internal/ratelimit"
	"github.com/loraworks/ttn-export/internal/service"
	"github.com/loraworks/ttn-export/internal/ttn"
)

// Fetcher retrieves stored uplinks from the TTN storage API.
type Fetcher interface {
	FetchUplinks(ctx context.Context, appID string, last time.Duration) ([]byte, error)
}

// ExportHandler serves the processing, deduplication, and fetch endpoints.
type ExportHandler struct {
	service  *service.ExportService
	fetcher  Fetcher
	limiter  ratelimit.RateLimiter
	logger   *logging.Logger
	maxBytes int64
}

func NewExportHandler(svc *service.ExportService, fetcher Fetcher, limiter ratelimit.RateLimiter, logger *logging.Logger, maxBytes int64) *ExportHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ExportHandler{
		service:  svc,
		fetcher:  fetcher,
		limiter:  limiter,
		logger:   logger,
		maxBytes: maxBytes,
	}
}

type fetchRequest struct {
	ApplicationID string `json:"application_id"`
	Last          string `json:"last"`
}

// HandleProcess accepts a JSON-lines batch and returns per-device CSV
// files. ?format=zip returns a single archive instead of the JSON summary.
func (h *ExportHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allow(w, r) {
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	defer body.Close()

	result, err := h.service.ProcessBatch(r.Context(), body)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "batch processing failed", logging.Err(err))
		h.sendError(w, "could not process batch", http.StatusBadRequest)
		return
	}

	metrics.BatchesTotal.WithLabelValues("upload").Inc()
	h.writeBatchResult(w, r, result)
}

// HandleDedup accepts one CSV file and returns it with duplicate rows
// removed. The identity fields come from ?fields=a,b (default
// f_cnt,received_at); row counts are reported in response headers.
func (h *ExportHandler) HandleDedup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allow(w, r) {
		return
	}

	keySpec, err := parseKeySpec(r.URL.Query().Get("fields"), r.URL.Query().Has("fields"))
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		h.sendError(w, "could not read request body", http.StatusBadRequest)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "data.csv"
	}

	result, err := h.service.DeduplicateCSV(r.Context(), filename, data, keySpec)
	if err != nil {
		if errors.Is(err, service.ErrEmptyKeySpec) {
			h.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(r.Context(), "deduplication failed", logging.Err(err))
		h.sendError(w, "could not deduplicate file", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("X-Original-Count", strconv.Itoa(result.OriginalCount))
	w.Header().Set("X-Unique-Count", strconv.Itoa(result.UniqueCount))
	w.Header().Set("X-Duplicates-Removed", strconv.Itoa(result.DuplicatesRemoved))
	w.Write(result.Data)
}

// HandleFetch pulls stored uplinks from the TTN storage API and processes
// them in one step. The lookback window is bounded; out-of-range requests
// fail before any network call.
func (h *ExportHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allow(w, r) {
		return
	}
	if h.fetcher == nil {
		h.sendError(w, "storage fetch is not configured", http.StatusServiceUnavailable)
		return
	}

	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	last, err := time.ParseDuration(req.Last)
	if err != nil {
		h.sendError(w, "invalid lookback duration", http.StatusBadRequest)
		return
	}
	if err := ttn.ValidateWindow(last); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := h.fetcher.FetchUplinks(r.Context(), req.ApplicationID, last)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("error").Inc()
		h.logger.ErrorContext(r.Context(), "storage fetch failed", logging.Err(err))
		h.sendError(w, "could not fetch data from storage api", http.StatusBadGateway)
		return
	}
	metrics.FetchesTotal.WithLabelValues("ok").Inc()

	result, err := h.service.ProcessBatch(r.Context(), strings.NewReader(string(data)))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "batch processing failed", logging.Err(err))
		h.sendError(w, "could not process fetched batch", http.StatusInternalServerError)
		return
	}

	metrics.BatchesTotal.WithLabelValues("fetch").Inc()
	h.writeBatchResult(w, r, result)
}

// HandleRuns lists recent processing runs from the history store. With
// history disabled the list is empty.
func (h *ExportHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.sendError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "run listing failed", logging.Err(err))
		h.sendError(w, "could not list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*history.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"runs": runs,
	})
}

func (h *ExportHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func (h *ExportHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ready",
	})
}

// writeBatchResult renders a processed batch as either a zip archive or
// the default JSON summary, depending on ?format.
func (h *ExportHandler) writeBatchResult(w http.ResponseWriter, r *http.Request, result *service.BatchResult) {
	if r.URL.Query().Get("format") == "zip" {
		data, err := archive.Build(result.Files)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "archive packaging failed", logging.Err(err))
			h.sendError(w, "could not build archive", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.DefaultName))
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// allow applies per-client rate limiting. A limiter backend error fails
// open: the request proceeds.
func (h *ExportHandler) allow(w http.ResponseWriter, r *http.Request) bool {
	allowed, err := h.limiter.Allow(r.Context(), getClientIP(r))
	if err != nil {
		h.logger.WarnContext(r.Context(), "rate limiter unavailable", logging.Err(err))
		return true
	}
	if !allowed {
		h.sendError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return false
	}
	return true
}

// parseKeySpec turns the ?fields query parameter into a key spec. An
// absent parameter selects the default spec (nil); a present but empty one
// is a caller error surfaced before the deduplicator runs.
func parseKeySpec(raw string, present bool) ([]string, error) {
	if !present {
		return nil, nil
	}

	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil, service.ErrEmptyKeySpec
	}
	return fields, nil
}

func (h *ExportHandler) sendError(w http.ResponseWriter, msg string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
