// Пакет watcher — автоматический импорт файлов из inbox-директории.
//
// Watcher следит за директорией через fsnotify. Обычный файл, который
// перестал изменяться на время settle, импортируется через сервис
// библиотеки. Источник не изменяется: повторное появление того же
// содержимого отсекается дедупликацией по хэшу.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bigkaa/readflow/internal/service"
)

// LibraryImporter — импорт в библиотеку с дедупликацией.
type LibraryImporter interface {
	Import(ctx context.Context, req service.ImportRequest) (*service.ImportResult, error)
}

// Watcher — наблюдатель inbox-директории.
type Watcher struct {
	dir     string
	settle  time.Duration
	library LibraryImporter
	logger  *slog.Logger

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New создаёт наблюдатель для существующей директории dir.
func New(dir string, settle time.Duration, library LibraryImporter, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка определения пути inbox: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("inbox-директория недоступна: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox %s не является директорией", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ошибка создания fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:     abs,
		settle:  settle,
		library: library,
		logger:  logger.With(slog.String("component", "inbox_watcher")),
		fsw:     fsw,
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Start начинает наблюдение. Файлы, уже лежащие в inbox, тоже
// ставятся в очередь импорта.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("ошибка подписки на %s: %w", w.dir, err)
	}

	wCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(wCtx)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("ошибка чтения inbox: %w", err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			w.schedule(wCtx, filepath.Join(w.dir, e.Name()))
		}
	}

	w.logger.Info("Наблюдение за inbox запущено",
		slog.String("dir", w.dir),
		slog.Duration("settle", w.settle),
	)
	return nil
}

// Stop прекращает наблюдение и ждёт завершения текущих импортов.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()

	w.logger.Info("Наблюдение за inbox остановлено")
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Ошибка fsnotify", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.unschedule(event.Name)
	}
}

// ignored — скрытые и временные файлы (в том числе незавершённые загрузки).
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".crdownload")
}

// schedule (пере)запускает таймер settle для пути.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if ignored(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		delete(w.timers, path)
		w.wg.Add(1)
		w.mu.Unlock()

		defer w.wg.Done()
		w.importFile(ctx, path)
	})
}

func (w *Watcher) unschedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Ошибка чтения файла inbox",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	res, err := w.library.Import(ctx, service.ImportRequest{Paths: []string{path}})
	if err != nil {
		w.logger.Error("Ошибка импорта из inbox",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("Файл из inbox обработан",
		slog.String("path", path),
		slog.Int("imported", res.Summary.Imported),
		slog.Int("deduped", res.Summary.Deduped),
	)
}
