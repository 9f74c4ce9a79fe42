package main

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/quayside/llmrelay/internal/config"
	"github.com/quayside/llmrelay/internal/observability"
	"github.com/quayside/llmrelay/internal/resilience"
)

type middleware func(http.Handler) http.Handler

// requestIDMiddleware assigns each request an ID, honoring a caller-supplied
// X-Request-ID header when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := observability.RequestIDFromHeader(r)
		if id == "" {
			id = observability.GenerateRequestID()
		}
		w.Header().Set(observability.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.ContextWithRequestID(r.Context(), id)))
	})
}

func loggingMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"request_id", observability.RequestIDFromContext(r.Context()),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// authMiddleware validates bearer API keys. Validated keys are remembered
// in a TTL store so the configured key set is only scanned on first sight.
func authMiddleware(cfg config.AuthConfig) middleware {
	if !cfg.Enabled {
		return passthrough
	}

	ttl := cfg.KeyTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	validated := gocache.New(ttl, 2*ttl)

	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys[k] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := bearerToken(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			if _, ok := validated.Get(key); !ok {
				if _, known := keys[key]; !known {
					writeError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				validated.SetDefault(key, struct{}{})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware enforces a whole-gateway shed followed by a per-key
// request rate. Per-key limiters live in a TTL store so idle keys stop
// occupying memory.
func rateLimitMiddleware(cfg config.RateLimitConfig) middleware {
	if !cfg.Enabled {
		return passthrough
	}

	var global *resilience.RateLimiter
	if cfg.GlobalRPM > 0 {
		globalBurst := cfg.BurstSize
		if globalBurst <= 0 {
			globalBurst = cfg.GlobalRPM
		}
		global = resilience.NewRateLimiter(float64(cfg.GlobalRPM)/60.0, globalBurst)
	}

	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	limiters := gocache.New(10*time.Minute, 20*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if global != nil && !global.Allow() {
				writeError(w, http.StatusTooManyRequests, "gateway rate limit exceeded")
				return
			}

			key := bearerToken(r)
			if key == "" {
				key = r.RemoteAddr
			}

			var limiter *rate.Limiter
			if v, ok := limiters.Get(key); ok {
				limiter = v.(*rate.Limiter)
			} else {
				limiter = rate.NewLimiter(perSecond, burst)
				limiters.SetDefault(key, limiter)
			}

			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// exempt paths skip auth and rate limiting.
func exempt(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}
