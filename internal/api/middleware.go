package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mukhtiarDev/personal-health-monitor/internal/auth"
)

type contextKey int

const identityCtxKey contextKey = iota

// identityFromContext extracts the authenticated operator from the request context.
func identityFromContext(ctx context.Context) *auth.Identity {
	v, _ := ctx.Value(identityCtxKey).(*auth.Identity)
	return v
}

// authMiddleware validates the operator bearer token and injects the
// identity into the request context.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Auth == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Operator authentication not configured"})
			return
		}

		id, err := d.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrAuthUnavailable):
			d.Logger.Error("operator auth unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Authentication temporarily unavailable"})
			return
		case errors.Is(err, auth.ErrMissingToken):
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		default:
			d.Logger.Warn("auth failed", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid operator token"})
			return
		}

		ctx := context.WithValue(r.Context(), identityCtxKey, id)
		next(w, r.WithContext(ctx))
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// --- Request logging ---

// probePaths are polled by load balancers and scrapers; they log at debug.
var probePaths = map[string]bool{"/healthz": true, "/metrics": true}

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		level := zapcore.InfoLevel
		switch {
		case sw.status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case probePaths[r.URL.Path]:
			level = zapcore.DebugLevel
		}
		if ce := logger.Check(level, "http request"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		}
	})
}

// statusWriter records the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// --- CORS ---

// corsMiddleware lets the browser dashboard call the API from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
