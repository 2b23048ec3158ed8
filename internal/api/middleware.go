// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/travisgrayraven/ravenbridge/internal/audit"
	"github.com/travisgrayraven/ravenbridge/internal/auth"
	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
)

// MiddlewareConfig holds middleware settings.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string

	// RateLimitRequests per window per client IP.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// DefaultMiddlewareConfig returns a secure default. CORS origins are
// empty by default so a deployment must configure them explicitly.
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		CORSAllowedOrigins: []string{},
		RateLimitRequests:  120,
		RateLimitWindow:    time.Minute,
	}
}

// Middleware provides the router's middleware factories.
type Middleware struct {
	config *MiddlewareConfig
	cors   func(http.Handler) http.Handler
	jwt    *auth.JWTManager
}

// NewMiddleware creates the factories.
func NewMiddleware(config *MiddlewareConfig, jwt *auth.JWTManager) *Middleware {
	if config == nil {
		config = DefaultMiddlewareConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return &Middleware{
		config: config,
		cors:   corsHandler,
		jwt:    jwt,
	}
}

// CORS returns the CORS middleware.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns IP-based rate limiting via go-chi/httprate.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
	)
}

// RateLimitLogin returns the stricter limit applied to the login
// endpoint to slow brute forcing.
func (m *Middleware) RateLimitLogin() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		5,
		5*time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues("/api/v1/auth/login").Inc()
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many login attempts", nil)
		}),
	)
}

// RequestID assigns each request an ID, propagates it through the
// context for audit correlation, and echoes it in X-Request-ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := audit.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogging logs each request and records Prometheus metrics.
// Chi's WrapResponseWriter is used so websocket upgrades keep access to
// http.Hijacker through the wrapper.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.APIActiveRequests.Inc()
		defer metrics.APIActiveRequests.Dec()

		rec := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		status := rec.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveAPIRequest(r.Method, r.URL.Path, status, duration)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Str("request_id", w.Header().Get("X-Request-ID")).
			Msg("request handled")
	})
}

// claimsKey is the context key for validated operator claims.
type claimsKey struct{}

// ClaimsFromContext returns the operator claims set by Authenticate.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok
}

// Authenticate requires a valid operator bearer token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
			return
		}

		claims, err := m.jwt.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
