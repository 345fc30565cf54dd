// Пакет server — локальный HTTP-сервер readflow с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/readflow/internal/api/handlers"
	"github.com/bigkaa/readflow/internal/api/middleware"
	"github.com/bigkaa/readflow/internal/config"
)

// Handlers — набор обработчиков, монтируемых в роутер.
type Handlers struct {
	Import      *handlers.ImportHandler
	Files       *handlers.FilesHandler
	Books       *handlers.BooksHandler
	System      *handlers.SystemHandler
	Maintenance *handlers.MaintenanceHandler
	Health      *handlers.HealthHandler
}

// Server — HTTP-сервер readflow.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth == nil — API без аутентификации (секрет не задан).
func New(cfg *config.Config, logger *slog.Logger, h Handlers, auth *middleware.TokenAuth) *Server {
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      NewRouter(logger, h, auth),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер.
// Health и metrics публичны, /api/v1 закрыт токеном, если auth задан.
func NewRouter(logger *slog.Logger, h Handlers, auth *middleware.TokenAuth) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	scope := func(string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}
	if auth != nil {
		scope = middleware.RequireScope
	}

	router.Route("/api/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware())
		}

		r.Group(func(r chi.Router) {
			r.Use(scope(middleware.ScopeRead))

			r.Get("/books", h.Books.List)
			r.Get("/books/deleted", h.Books.ListDeleted)
			r.Get("/books/{id}", h.Books.Get)
			r.Get("/books/{id}/content", h.Books.Content)
			r.Get("/info", h.System.GetInfo)
			r.Post("/files/hash", h.Files.HashFile)
			r.Post("/files/read-base64", h.Files.ReadBase64)
		})

		r.Group(func(r chi.Router) {
			r.Use(scope(middleware.ScopeWrite))

			r.Post("/import/paths", h.Import.ImportPaths)
			r.Post("/import/payloads", h.Import.ImportPayloads)
			r.Post("/library/import", h.Import.LibraryImport)
			r.Post("/files/remove", h.Files.Remove)
			r.Delete("/books/{id}", h.Books.Delete)
			r.Post("/books/{id}/restore", h.Books.Restore)
			r.Put("/books/{id}/position", h.Books.SetPosition)
			r.Post("/maintenance/reconcile", h.Maintenance.Reconcile)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с таймаутом
// cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
