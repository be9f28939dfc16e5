// Package rest exposes the public HTTP API: authentication, file upload
// and download, listing, rename, and delete. It also serves the
// Prometheus scrape endpoint.
package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// AuthService is the authentication surface the handlers need.
type AuthService interface {
	Register(ctx context.Context, login, password string) (*models.User, error)
	Login(ctx context.Context, login, password string) (string, error)
	Resolve(ctx context.Context, value string) (string, error)
	Revoke(ctx context.Context, value string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// FileService is the file storage surface the handlers need.
type FileService interface {
	Upload(ctx context.Context, userID string, content io.Reader, declaredName, requestedName string) (*models.FileRecord, error)
	Download(ctx context.Context, userID, filename string) (*models.FileRecord, io.ReadCloser, error)
	List(ctx context.Context, userID string, limit int) ([]models.FileInfo, error)
	Rename(ctx context.Context, userID, oldName, newName string) (*models.FileRecord, error)
	Delete(ctx context.Context, userID, filename string) error
}

type RestServer struct {
	address   string
	logger    logging.Logger
	auth      AuthService
	files     FileService
	collector metrics.MetricsCollector
	registry  *prometheus.Registry
	limiter   *RateLimiter
}

func NewRestServer(a string, l logging.Logger, auth AuthService, files FileService) *RestServer {
	registry := prometheus.NewRegistry()
	return &RestServer{
		address:   a,
		logger:    l.With("module", "rest_server"),
		auth:      auth,
		files:     files,
		collector: metrics.NewCollector(registry),
		registry:  registry,
		limiter:   NewRateLimiter(DefaultRateLimiterConfig()),
	}
}

// Router builds the route tree. Login and registration sit outside the
// session middleware; everything under the authenticated group resolves
// the auth-token header first.
func (s *RestServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware())
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/logout", s.handleLogout)
		r.Post("/password", s.handleChangePassword)
		r.Get("/list", s.handleList)
		r.Post("/file", s.handleUpload)
		r.Get("/file", s.handleDownload)
		r.Put("/file", s.handleRename)
		r.Delete("/file", s.handleDelete)
	})

	r.Get("/metrics", metrics.Handler(s.registry).ServeHTTP)

	return r
}

func (s *RestServer) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
		s.limiter.Stop()
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
