package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
)

// authTokenHeader carries the session token. A "Bearer " prefix is
// accepted and stripped so generic HTTP clients work unchanged.
const authTokenHeader = "auth-token"

type ctxKey string

const userIDKey ctxKey = "userID"
const tokenKey ctxKey = "token"

// UserIDFromContext returns the authenticated user's ID, set by the auth
// middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// tokenFromContext returns the raw session token of the request.
func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

func extractToken(r *http.Request) string {
	value := r.Header.Get(authTokenHeader)
	if after, found := strings.CutPrefix(value, "Bearer "); found {
		return after
	}
	return value
}

// authMiddleware resolves the auth-token header to a user ID and injects
// both into the request context. Requests without a valid token get 401.
func (s *RestServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			s.writeError(r.Context(), w, http.StatusUnauthorized, "missing token")
			return
		}

		userID, err := s.auth.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, common.ErrorUnauthorized) {
				s.writeError(r.Context(), w, http.StatusUnauthorized, "invalid token")
				return
			}
			s.logger.Error(r.Context(), "token resolution failed", "error", err)
			s.writeError(r.Context(), w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *RestServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *RestServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.collector.RecordRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
