package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/readflow/internal/api/handlers"
	"github.com/bigkaa/readflow/internal/api/middleware"
	"github.com/bigkaa/readflow/internal/config"
	"github.com/bigkaa/readflow/internal/server"
	"github.com/bigkaa/readflow/internal/storage/catalog"
	"github.com/bigkaa/readflow/internal/watcher"
)

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить локальный HTTP API",
		Long: `Запускает HTTP API на loopback-адресе RF_LISTEN_ADDR вместе с фоновыми
процессами: периодической сверкой, очисткой корзины и, если задан
RF_INBOX_DIR, наблюдением за входящей директорией.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c.cfg, c.logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("readflow запускается",
		slog.String("version", config.Version),
		slog.String("listen_addr", cfg.ListenAddr),
		slog.Bool("auth", cfg.AuthEnabled()),
	)

	a, err := openApp(ctx, cfg, logger, cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Библиотека готова",
		slog.String("library_root", a.libraryRoot),
		slog.String("catalog", a.catalogPath),
	)

	// Фоновые процессы
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.reconcile.Start(bgCtx)
	defer a.reconcile.Stop()

	a.trash.Start(bgCtx)
	defer a.trash.Stop()

	if cfg.InboxDir != "" {
		w, err := watcher.New(cfg.InboxDir, cfg.InboxSettle, a.library, logger)
		if err != nil {
			return err
		}
		if err := w.Start(bgCtx); err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	// Аутентификация только при заданном секрете
	var auth *middleware.TokenAuth
	if cfg.AuthEnabled() {
		auth, err = middleware.NewTokenAuth(cfg.APISecret, cfg.JWTLeeway, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("RF_API_SECRET не задан, API работает без аутентификации")
	}

	h := server.Handlers{
		Import:      handlers.NewImportHandler(a.importer, a.library, cfg.MaxRequestSize),
		Files:       handlers.NewFilesHandler(a.importer, a.store, cfg.MaxRequestSize),
		Books:       handlers.NewBooksHandler(a.library, a.content, cfg.MaxRequestSize),
		System:      handlers.NewSystemHandler(cfg.AppID, a.libraryRoot, a.library, handlers.DiskUsage(a.libraryRoot)).WithReconcile(a.reconcile),
		Maintenance: handlers.NewMaintenanceHandler(a.reconcile),
		Health:      handlers.NewHealthHandler(a.dataDir, a.journal.Dir(), catalog.NewReadinessChecker(a.db)),
	}

	if err := server.New(cfg, logger, h, auth).Run(ctx); err != nil {
		return err
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}
