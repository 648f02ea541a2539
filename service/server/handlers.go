package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/db"
	"github.com/jackc/pgx/v5"
)

const (
	maxRequestBodySize = 1 << 16 // a digest request is tiny
	defaultListLimit   = 50
	maxListLimit       = 1000
)

type analyzeRequest struct {
	Digest string `json:"digest"`
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// handleAnalyze returns a handler that analyzes the digest in the request body.
// POST /api/v1/analyze {"digest": "..."}
func handleAnalyze(svc AnalysisService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxErr):
				writeError(w, "request body too large", http.StatusBadRequest)
			case errors.Is(err, io.EOF):
				writeError(w, "request body is required", http.StatusBadRequest)
			default:
				writeError(w, "invalid request body", http.StatusBadRequest)
			}
			return
		}

		analyze(w, r, svc, req.Digest, logger)
	})
}

// handleAnalyzeDigest returns a handler that analyzes the digest in the path.
// GET /api/v1/analyze/{digest}
func handleAnalyzeDigest(svc AnalysisService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		analyze(w, r, svc, r.PathValue("digest"), logger)
	})
}

func analyze(w http.ResponseWriter, r *http.Request, svc AnalysisService, digest string, logger *slog.Logger) {
	requestID := r.Header.Get(RequestIDHeader)

	result, err := svc.Analyze(r.Context(), digest)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The client went away; nobody is left to read a reply.
			logger.DebugContext(r.Context(), "client cancelled analysis", "digest", digest, "request_id", requestID)
			return
		}
		writeAnalysisError(w, err, logger.With("digest", digest, "request_id", requestID))
		return
	}

	logger.DebugContext(r.Context(), "analysis served",
		"digest", result.Digest,
		"summary_source", result.SummarySource,
		"request_id", requestID,
	)
	writeJSON(w, result, http.StatusOK)
}

// handleInvalidate returns a handler that drops one cached analysis.
// DELETE /api/v1/cache/{digest}
func handleInvalidate(svc AnalysisService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		digest := r.PathValue("digest")
		if digest == "" {
			writeError(w, "digest is required", http.StatusBadRequest)
			return
		}

		removed := svc.Invalidate(digest)
		logger.DebugContext(r.Context(), "cache invalidation", "digest", digest, "removed", removed)

		writeJSON(w, messageResponse{
			Message: fmt.Sprintf("Cache cleared for %s", digest),
		}, http.StatusOK)
	})
}

// handleClearCache returns a handler that drops every cached analysis.
// DELETE /api/v1/cache
func handleClearCache(svc AnalysisService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := svc.ClearCache()
		writeJSON(w, messageResponse{
			Message: fmt.Sprintf("Cleared %d cached transactions", n),
		}, http.StatusOK)
	})
}

type healthResponse struct {
	Status          string  `json:"status"`
	CacheSize       int     `json:"cache_size"`
	CacheTTLSeconds float64 `json:"cache_ttl_seconds"`
	CacheMaxEntries int     `json:"cache_max_entries"`
	RPCURL          string  `json:"rpc_url"`
}

// handleHealth reports liveness together with cache statistics.
// GET /health
func handleHealth(svc AnalysisService, rpcURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := svc.CacheStats()
		writeJSON(w, healthResponse{
			Status:          "healthy",
			CacheSize:       stats.Count,
			CacheTTLSeconds: stats.DefaultTTL.Seconds(),
			CacheMaxEntries: stats.MaxEntries,
			RPCURL:          rpcURL,
		}, http.StatusOK)
	})
}

// analysisRecordResponse is the JSON response format for a journaled analysis.
type analysisRecordResponse struct {
	Digest        string          `json:"digest"`
	Sender        string          `json:"sender"`
	Status        string          `json:"status"`
	GasUsed       string          `json:"gas_used"`
	Summary       string          `json:"summary"`
	SummarySource string          `json:"summary_source"`
	NodeCount     int32           `json:"node_count"`
	EdgeCount     int32           `json:"edge_count"`
	Checkpoint    *int64          `json:"checkpoint,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	AnalyzedAt    time.Time       `json:"analyzed_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func analysisToResponse(a *db.Analysis, withResult bool) analysisRecordResponse {
	resp := analysisRecordResponse{
		Digest:        a.Digest,
		Sender:        a.Sender,
		Status:        a.Status,
		GasUsed:       a.GasUsed,
		Summary:       a.Summary,
		SummarySource: a.SummarySource,
		NodeCount:     a.NodeCount,
		EdgeCount:     a.EdgeCount,
		Checkpoint:    a.Checkpoint,
		AnalyzedAt:    a.AnalyzedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if withResult {
		resp.Result = a.Result
	}
	return resp
}

// handleGetAnalysis returns a handler that reads one journaled analysis.
// GET /api/v1/analyses/{digest}
func handleGetAnalysis(journal AnalysisJournal, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		digest := r.PathValue("digest")

		a, err := journal.GetAnalysis(r.Context(), digest)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, "analysis not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get analysis", "digest", digest, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, analysisToResponse(a, true), http.StatusOK)
	})
}

// handleListAnalyses returns a handler that lists journaled analyses, newest first.
// GET /api/v1/analyses?sender=ADDRESS&limit=N&offset=N
func handleListAnalyses(journal AnalysisJournal, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit, err := parseBoundedInt(query.Get("limit"), defaultListLimit, 1, maxListLimit)
		if err != nil {
			writeError(w, "invalid limit parameter: "+err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseBoundedInt(query.Get("offset"), 0, 0, -1)
		if err != nil {
			writeError(w, "invalid offset parameter: "+err.Error(), http.StatusBadRequest)
			return
		}

		params := db.ListAnalysesParams{
			Limit:  int32(limit),
			Offset: int32(offset),
		}
		if sender := query.Get("sender"); sender != "" {
			params.Sender = &sender
		}

		analyses, err := journal.ListRecentAnalyses(r.Context(), params)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list analyses", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]analysisRecordResponse, len(analyses))
		for i, a := range analyses {
			resp[i] = analysisToResponse(a, false)
		}

		writeJSON(w, map[string]interface{}{
			"analyses": resp,
			"count":    len(resp),
			"limit":    limit,
			"offset":   offset,
		}, http.StatusOK)
	})
}

// parseBoundedInt parses an optional integer query value. A negative max
// disables the upper bound.
func parseBoundedInt(s string, def, lo, hi int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < lo {
		return 0, fmt.Errorf("must be at least %d", lo)
	}
	if hi >= 0 && n > hi {
		return 0, fmt.Errorf("cannot exceed %d", hi)
	}
	return n, nil
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind analysis.ErrorKind) int {
	switch kind {
	case analysis.InvalidInput:
		return http.StatusBadRequest
	case analysis.NotFound:
		return http.StatusNotFound
	case analysis.MalformedRecord:
		return http.StatusUnprocessableEntity
	case analysis.Upstream:
		return http.StatusBadGateway
	case analysis.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeAnalysisError writes the error reply for a failed analysis. Internal
// errors are logged and their detail withheld.
func writeAnalysisError(w http.ResponseWriter, err error, logger *slog.Logger) {
	kind := analysis.KindOf(err)
	status := statusForKind(kind)

	resp := errorResponse{Error: string(kind), Detail: err.Error()}
	switch {
	case kind == analysis.Internal:
		logger.Error("analysis failed", "error", err)
		resp.Detail = ""
	case status >= 500:
		logger.Warn("analysis failed", "kind", kind, "error", err)
	default:
		logger.Debug("analysis rejected", "kind", kind, "error", err)
	}

	writeJSON(w, resp, status)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, errorResponse{Error: message}, statusCode)
}
