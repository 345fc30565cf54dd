// trash.go — сервис фоновой очистки корзины и журнала.
//
// Сервис выполняет две задачи:
//  1. Безвозвратно удаляет книги, пролежавшие в корзине дольше retention
//     (строка каталога + директория <root>/<id>)
//  2. Удаляет из журнала записи завершённых пакетов
//
// Запускается как горутина с периодическим тикером (RF_GC_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/readflow/internal/storage/journal"
)

// Prometheus метрики очистки
var (
	// gcRunsTotal — количество запусков очистки.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rf_gc_runs_total",
		Help: "Общее количество запусков очистки корзины",
	})

	// gcBooksPurgedTotal — количество книг, удалённых из корзины.
	gcBooksPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rf_gc_books_purged_total",
		Help: "Общее количество книг, безвозвратно удалённых из корзины",
	})

	// gcJournalCleanedTotal — количество удалённых записей журнала.
	gcJournalCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rf_gc_journal_cleaned_total",
		Help: "Общее количество удалённых записей завершённых пакетов",
	})

	// gcDurationSeconds — длительность выполнения очистки.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rf_gc_duration_seconds",
		Help:    "Длительность выполнения очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// TrashResult — результат одного запуска очистки.
type TrashResult struct {
	// PurgedCount — количество книг, удалённых из корзины
	PurgedCount int
	// JournalCleaned — количество удалённых записей журнала
	JournalCleaned int
	// Errors — количество ошибок при обработке книг
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// TrashService — сервис фоновой очистки корзины.
type TrashService struct {
	library   *LibraryService
	journal   *journal.Journal
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewTrashService создаёт сервис очистки.
// retention = 0 отключает удаление книг из корзины; журнал чистится всегда.
func NewTrashService(
	library *LibraryService,
	jrn *journal.Journal,
	interval, retention time.Duration,
	logger *slog.Logger,
) *TrashService {
	return &TrashService{
		library:   library,
		journal:   jrn,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "gc")),
		now:       time.Now,
	}
}

// Start запускает фоновую горутину очистки с периодическим тикером.
func (ts *TrashService) Start(ctx context.Context) {
	tsCtx, cancel := context.WithCancel(ctx)
	ts.cancel = cancel

	go ts.run(tsCtx)

	ts.logger.Info("Очистка корзины запущена",
		slog.String("interval", ts.interval.String()),
		slog.String("retention", ts.retention.String()),
	)
}

// Stop останавливает фоновый процесс очистки.
func (ts *TrashService) Stop() {
	if ts.cancel != nil {
		ts.cancel()
	}
	ts.logger.Info("Очистка корзины остановлена")
}

// run — основной цикл фоновой горутины.
func (ts *TrashService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	ts.RunOnce(ctx)

	ticker := time.NewTicker(ts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (ts *TrashService) RunOnce(ctx context.Context) *TrashResult {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	start := time.Now()
	result := &TrashResult{}

	ts.logger.Debug("Очистка начата")

	if ts.retention > 0 {
		result.PurgedCount, result.Errors = ts.purgeExpired(ctx)
	}

	cleaned, err := ts.journal.CleanCompleted()
	if err != nil {
		ts.logger.Error("Ошибка очистки журнала", slog.String("error", err.Error()))
		result.Errors++
	}
	result.JournalCleaned = cleaned

	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	gcRunsTotal.Inc()
	gcBooksPurgedTotal.Add(float64(result.PurgedCount))
	gcJournalCleanedTotal.Add(float64(result.JournalCleaned))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	ts.logger.Info("Очистка завершена",
		slog.Int("purged", result.PurgedCount),
		slog.Int("journal_cleaned", result.JournalCleaned),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}

// purgeExpired удаляет книги, помещённые в корзину раньше now - retention.
func (ts *TrashService) purgeExpired(ctx context.Context) (purged, errors int) {
	deleted, err := ts.library.ListDeleted(ctx)
	if err != nil {
		ts.logger.Error("Ошибка чтения корзины", slog.String("error", err.Error()))
		return 0, 1
	}

	cutoff := ts.now().Add(-ts.retention).UnixMilli()
	for _, b := range deleted {
		if b.DeletedAt == nil || *b.DeletedAt > cutoff {
			continue
		}

		if err := ts.library.Purge(ctx, b.ID); err != nil {
			ts.logger.Error("Ошибка удаления книги из корзины",
				slog.String("id", b.ID),
				slog.String("error", err.Error()),
			)
			errors++
			continue
		}

		ts.logger.Debug("Книга удалена из корзины",
			slog.String("id", b.ID),
			slog.String("title", b.Title),
		)
		purged++
	}
	return purged, errors
}
