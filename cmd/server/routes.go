package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quayside/llmrelay/internal/config"
	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/types"
)

func newHandler(clients *clientHolder, cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/generate", handleGenerate(clients, logger))
	mux.HandleFunc("POST /v1/generate/all", handleGenerateAll(clients, logger))
	mux.HandleFunc("GET /v1/stats", handleStats(clients))
	mux.HandleFunc("GET /healthz", handleHealthz(clients))

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(cfg.RateLimit)(handler)
	handler = authMiddleware(cfg.Auth)(handler)
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(logger)(handler)
	return handler
}

func handleGenerate(clients *clientHolder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := clients.Get().Generate(r.Context(), &req)
		if err != nil {
			status, message := errorStatus(err)
			logger.Warn("generate failed", "status", status, "error", err)
			writeError(w, status, message)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGenerateAll(clients *clientHolder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		results, err := clients.Get().GenerateAll(r.Context(), &req)
		if err != nil && len(results) == 0 {
			status, message := errorStatus(err)
			logger.Warn("generate all failed", "status", status, "error", err)
			writeError(w, status, message)
			return
		}

		body := map[string]any{"results": results}
		if err != nil {
			body["partial_error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func handleStats(clients *clientHolder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, clients.Get().Stats())
	}
}

func handleHealthz(clients *clientHolder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := clients.Get().Stats()
		status := http.StatusOK
		state := "ok"
		if stats.ActiveProviders == 0 {
			status = http.StatusServiceUnavailable
			state = "no healthy providers"
		}
		writeJSON(w, status, map[string]any{
			"status":           state,
			"active_providers": stats.ActiveProviders,
		})
	}
}

// errorStatus maps a dispatch error to an HTTP status and client message.
func errorStatus(err error) (int, string) {
	var de *llmerrors.DispatchError
	switch {
	case errors.Is(err, llmerrors.ErrNoHealthyProviders):
		return http.StatusServiceUnavailable, "no healthy providers"
	case errors.As(err, &de):
		switch de.Type {
		case llmerrors.TypeInvalidRequest:
			return http.StatusBadRequest, de.Message
		case llmerrors.TypeRateLimit:
			return http.StatusTooManyRequests, de.Message
		case llmerrors.TypeTimeout:
			return http.StatusGatewayTimeout, de.Message
		default:
			return http.StatusBadGateway, de.Message
		}
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
