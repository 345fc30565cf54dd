// reconcile.go — сервис фоновой сверки (Reconciliation) библиотеки с каталогом.
//
// Reconciliation сравнивает:
//   - Директории элементов в корне библиотеки со строками каталога
//   - Строки каталога с файлами на диске
//   - Размеры файлов с file_size каталога
//
// Обнаруживает проблемы:
//   - orphaned_dir: директория без строки каталога и без pending-пакета журнала
//   - missing_file: строка каталога, но файла нет
//   - size_mismatch: размер файла не совпадает с каталогом
//
// Сирот старше grace-периода можно удалять (RF_RECONCILE_CLEANUP).
// Запускается как горутина с периодическим тикером (RF_RECONCILE_INTERVAL).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/readflow/internal/storage/catalog"
	"github.com/bigkaa/readflow/internal/storage/filestore"
	"github.com/bigkaa/readflow/internal/storage/journal"
	"github.com/bigkaa/readflow/internal/storage/libdir"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rf_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rf_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	// reconcileRemovedTotal — количество удалённых директорий-сирот.
	reconcileRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rf_reconcile_removed_dirs_total",
		Help: "Общее количество директорий-сирот, удалённых reconciliation",
	})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rf_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// IssueType — тип проблемы, найденной сверкой.
type IssueType string

const (
	IssueOrphanedDir  IssueType = "orphaned_dir"
	IssueMissingFile  IssueType = "missing_file"
	IssueSizeMismatch IssueType = "size_mismatch"
)

// ReconcileIssue — одна найденная проблема.
type ReconcileIssue struct {
	Type        IssueType `json:"type"`
	BookID      *string   `json:"book_id,omitempty"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	// Removed — директория-сирота удалена в этом запуске
	Removed bool `json:"removed,omitempty"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	Ok             int `json:"ok"`
	OrphanedDirs   int `json:"orphaned_dirs"`
	MissingFiles   int `json:"missing_files"`
	SizeMismatches int `json:"size_mismatches"`
	RemovedDirs    int `json:"removed_dirs"`
}

// ReconcileResult — результат одного запуска сверки.
type ReconcileResult struct {
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	BooksChecked int              `json:"books_checked"`
	DirsChecked  int              `json:"dirs_checked"`
	Issues       []ReconcileIssue `json:"issues"`
	Summary      ReconcileSummary `json:"summary"`
}

// ReconcileOptions — параметры сверки.
type ReconcileOptions struct {
	// Interval — период фонового запуска
	Interval time.Duration
	// Cleanup — удалять директории-сироты старше OrphanGrace
	Cleanup bool
	// OrphanGrace — минимальный возраст сироты для удаления
	OrphanGrace time.Duration
}

// ReconcileService — сервис фоновой сверки библиотеки.
type ReconcileService struct {
	resolver *libdir.Resolver
	store    *filestore.FileStore
	books    catalog.BookRepository
	journal  *journal.Journal
	opts     ReconcileOptions
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис reconciliation.
func NewReconcileService(
	resolver *libdir.Resolver,
	store *filestore.FileStore,
	books catalog.BookRepository,
	jrn *journal.Journal,
	opts ReconcileOptions,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		resolver: resolver,
		store:    store,
		books:    books,
		journal:  jrn,
		opts:     opts,
		logger:   logger.With(slog.String("component", "reconcile")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину reconciliation с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.opts.Interval.String()),
		slog.Bool("cleanup", rs.opts.Cleanup),
	)
}

// Stop останавливает фоновой процесс reconciliation.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx); err != nil {
				rs.logger.Error("Ошибка reconciliation", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileResult, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := rs.now().UTC()
	rs.logger.Info("Reconciliation начата")

	result, err := rs.reconcile(ctx)
	if err != nil {
		return nil, false, err
	}

	result.StartedAt = startedAt
	result.CompletedAt = rs.now().UTC()
	duration := result.CompletedAt.Sub(startedAt)

	for _, issue := range result.Issues {
		switch issue.Type {
		case IssueOrphanedDir:
			result.Summary.OrphanedDirs++
			if issue.Removed {
				result.Summary.RemovedDirs++
			}
		case IssueMissingFile:
			result.Summary.MissingFiles++
		case IssueSizeMismatch:
			result.Summary.SizeMismatches++
		}
	}
	result.Summary.Ok = result.BooksChecked - result.Summary.MissingFiles - result.Summary.SizeMismatches

	// Обновляем Prometheus метрики
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	reconcileRemovedTotal.Add(float64(result.Summary.RemovedDirs))
	for _, issue := range result.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}

	rs.logger.Info("Reconciliation завершена",
		slog.Int("books_checked", result.BooksChecked),
		slog.Int("dirs_checked", result.DirsChecked),
		slog.Int("issues", len(result.Issues)),
		slog.Int("removed_dirs", result.Summary.RemovedDirs),
		slog.Duration("duration", duration),
	)
	return result, false, nil
}

// reconcile выполняет сверку корня библиотеки с каталогом.
func (rs *ReconcileService) reconcile(ctx context.Context) (*ReconcileResult, error) {
	root, err := rs.resolver.Resolve()
	if err != nil {
		return nil, err
	}

	books, err := rs.books.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}

	// Директории незавершённых пакетов принадлежат журналу
	pending, err := rs.journal.PendingItemDirs()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}

	dirs, err := rs.store.ListDirs(root)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		BooksChecked: len(books),
		DirsChecked:  len(dirs),
		Issues:       []ReconcileIssue{},
	}

	known := make(map[string]struct{}, len(books))
	for _, b := range books {
		known[b.ID] = struct{}{}
	}

	// 1. Директории без строки каталога (orphaned_dir)
	now := rs.now()
	for _, d := range dirs {
		if _, ok := known[d.Name()]; ok {
			continue
		}
		path := filepath.Join(root, d.Name())
		if _, ok := pending[filepath.Clean(path)]; ok {
			continue
		}

		issue := ReconcileIssue{
			Type:        IssueOrphanedDir,
			Path:        path,
			Description: "Директория в библиотеке без записи в каталоге",
		}
		if rs.opts.Cleanup && now.Sub(d.ModTime()) >= rs.opts.OrphanGrace {
			if err := rs.store.Remove(path); err != nil {
				rs.logger.Error("Ошибка удаления директории-сироты",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			} else {
				issue.Removed = true
				rs.logger.Info("Директория-сирота удалена", slog.String("path", path))
			}
		}
		result.Issues = append(result.Issues, issue)
	}

	// 2. Строки каталога: наличие и размер файла
	for _, b := range books {
		id := b.ID
		size, _, err := rs.store.Probe(b.FilePath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				rs.logger.Warn("Ошибка получения размера файла",
					slog.String("id", id),
					slog.String("error", err.Error()),
				)
			}
			result.Issues = append(result.Issues, ReconcileIssue{
				Type:        IssueMissingFile,
				BookID:      &id,
				Path:        b.FilePath,
				Description: "Запись каталога без файла на диске",
			})
			continue
		}

		if size != b.FileSize {
			result.Issues = append(result.Issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				BookID:      &id,
				Path:        b.FilePath,
				Description: fmt.Sprintf("Размер файла на диске (%d) не совпадает с каталогом (%d)", size, b.FileSize),
			})
		}
	}

	return result, nil
}
