package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/bigkaa/readflow/internal/config"
	"github.com/bigkaa/readflow/internal/instance"
	"github.com/bigkaa/readflow/internal/service"
	"github.com/bigkaa/readflow/internal/storage/catalog"
	"github.com/bigkaa/readflow/internal/storage/filestore"
	"github.com/bigkaa/readflow/internal/storage/journal"
	"github.com/bigkaa/readflow/internal/storage/libdir"
)

// app — собранные компоненты библиотеки.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	dataDir     string
	libraryRoot string
	catalogPath string

	lock      *instance.Lock
	resolver  *libdir.Resolver
	store     *filestore.FileStore
	journal   *journal.Journal
	db        *sql.DB
	books     catalog.BookRepository
	importer  *service.Importer
	library   *service.LibraryService
	content   *service.ContentService
	reconcile *service.ReconcileService
	trash     *service.TrashService
}

// openApp инициализирует компоненты в порядке зависимостей:
// корень библиотеки → блокировка директории данных → журнал
// (откат прерванных пакетов) → миграции → каталог → сервисы.
// Непустой serveAddr сообщается следующим запускам как адрес сервера.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, serveAddr string) (_ *app, err error) {
	fs := afero.NewOsFs()

	// 1. Директория данных и корень библиотеки
	resolver := libdir.New(fs, cfg.DataDir, cfg.AppID)
	dataDir, err := resolver.AppDataDir()
	if err != nil {
		return nil, err
	}
	root, err := resolver.Resolve()
	if err != nil {
		return nil, err
	}

	// 2. Монопольный доступ: откат журнала при живом сервере
	// уничтожил бы его текущий пакет
	lock, err := instance.Acquire(dataDir, serveAddr, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			lock.Release()
		}
	}()

	// 3. Журнал пакетов импорта
	store := filestore.New(fs)
	jrn, err := journal.New(fs, cfg.JournalPath(dataDir), logger)
	if err != nil {
		return nil, err
	}
	recovered, err := jrn.RecoverPending()
	if err != nil {
		return nil, fmt.Errorf("ошибка восстановления журнала: %w", err)
	}
	if recovered > 0 {
		logger.Warn("Откачены незавершённые пакеты импорта", slog.Int("count", recovered))
	}

	// 4. Каталог
	catalogPath := cfg.CatalogFile(dataDir, catalog.DefaultFileName)
	if _, err := catalog.Migrate(catalogPath, logger); err != nil {
		return nil, err
	}
	db, err := catalog.Open(ctx, catalogPath, logger)
	if err != nil {
		return nil, err
	}

	// 5. Сервисы
	books := catalog.NewBookRepository(db)
	importer := service.NewImporter(resolver, store, jrn, logger)
	library := service.NewLibraryService(importer, store, resolver, books,
		catalog.NewTxRunner(db), service.NewBookCache(cfg.CacheSize, cfg.CacheTTL), logger)
	library.RefreshMetrics(ctx)

	return &app{
		cfg:         cfg,
		logger:      logger,
		lock:        lock,
		dataDir:     dataDir,
		libraryRoot: root,
		catalogPath: catalogPath,
		resolver:    resolver,
		store:       store,
		journal:     jrn,
		db:          db,
		books:       books,
		importer:    importer,
		library:     library,
		content:     service.NewContentService(library, logger),
		reconcile: service.NewReconcileService(resolver, store, books, jrn, service.ReconcileOptions{
			Interval:    cfg.ReconcileInterval,
			Cleanup:     cfg.ReconcileCleanup,
			OrphanGrace: cfg.OrphanGrace,
		}, logger),
		trash: service.NewTrashService(library, jrn, cfg.GCInterval, cfg.TrashRetention, logger),
	}, nil
}

// Close закрывает каталог и освобождает директорию данных.
func (a *app) Close() error {
	err := a.db.Close()
	a.lock.Release()
	return err
}
