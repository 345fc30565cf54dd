// library.go — сервис библиотеки: импорт с дедупликацией по SHA-256
// и жизненный цикл книг в каталоге.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/readflow/internal/api/middleware"
	"github.com/bigkaa/readflow/internal/domain/model"
	"github.com/bigkaa/readflow/internal/storage/catalog"
	"github.com/bigkaa/readflow/internal/storage/filestore"
	"github.com/bigkaa/readflow/internal/storage/libdir"
)

// Причины дедупликации (лейбл метрик).
const (
	dedupBatch   = "batch"
	dedupCatalog = "catalog"
)

// ImportRequest — входные данные импорта в библиотеку.
type ImportRequest struct {
	Paths []string            `json:"paths"`
	Files []model.FilePayload `json:"files"`
}

// ImportResult — итог импорта: книги в порядке обработки и сводка.
type ImportResult struct {
	Books   []*model.Book       `json:"books"`
	Summary model.ImportSummary `json:"summary"`
}

// LibraryStats — счётчики каталога.
type LibraryStats struct {
	Active  int `json:"active"`
	Deleted int `json:"deleted"`
}

// LibraryService — импорт с дедупликацией и операции над каталогом.
type LibraryService struct {
	importer *Importer
	store    *filestore.FileStore
	resolver *libdir.Resolver
	books    catalog.BookRepository
	tx       *catalog.TxRunner
	cache    *BookCache
	logger   *slog.Logger
	now      func() time.Time
}

// NewLibraryService создаёт сервис библиотеки.
func NewLibraryService(
	importer *Importer,
	store *filestore.FileStore,
	resolver *libdir.Resolver,
	books catalog.BookRepository,
	tx *catalog.TxRunner,
	cache *BookCache,
	logger *slog.Logger,
) *LibraryService {
	return &LibraryService{
		importer: importer,
		store:    store,
		resolver: resolver,
		books:    books,
		tx:       tx,
		cache:    cache,
		logger:   logger.With(slog.String("component", "library_service")),
		now:      time.Now,
	}
}

// dedupState — состояние дедупликации одного вызова Import.
type dedupState struct {
	seen     map[string]struct{}
	books    []*model.Book
	restore  []string
	deduped  int
	imported int
}

// Import импортирует файлы с дедупликацией.
//
// Каждый источник сначала хэшируется. Повтор хэша внутри запроса и
// хэш, уже известный каталогу, считаются дубликатами и не копируются;
// удалённая в корзину книга с тем же хэшем восстанавливается.
// Остальные файлы проходят конвейер импорта и регистрируются в каталоге
// одной транзакцией. При любой ошибке скопированные файлы удаляются.
func (s *LibraryService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	st := &dedupState{seen: make(map[string]struct{})}

	var pathsToCopy []string
	for i, path := range req.Paths {
		hashed, err := s.importer.HashFile(path)
		if err != nil {
			return nil, &ItemError{Index: i, Source: path, Err: err}
		}
		dup, err := s.dedupe(ctx, st, hashed.FileHash)
		if err != nil {
			return nil, err
		}
		if !dup {
			pathsToCopy = append(pathsToCopy, path)
		}
	}

	var payloadsToCopy []model.FilePayload
	for i, file := range req.Files {
		data, err := decodePayload(file.DataBase64)
		if err != nil {
			return nil, &ItemError{Index: i, Source: file.Name, Err: err}
		}
		dup, err := s.dedupe(ctx, st, filestore.HashBytes(data))
		if err != nil {
			return nil, err
		}
		if !dup {
			payloadsToCopy = append(payloadsToCopy, file)
		}
	}

	var records []model.ImportRecord
	if len(pathsToCopy) > 0 {
		fromPaths, err := s.importer.ImportPaths(pathsToCopy)
		if err != nil {
			return nil, err
		}
		records = append(records, fromPaths...)
	}
	if len(payloadsToCopy) > 0 {
		fromPayloads, err := s.importer.ImportPayloads(payloadsToCopy)
		if err != nil {
			s.discard(records)
			return nil, err
		}
		records = append(records, fromPayloads...)
	}

	created := make([]*model.Book, 0, len(records))
	for _, rec := range records {
		created = append(created, model.NewBookFromRecord(rec))
	}

	err := s.tx.RunInTx(ctx, func(tx catalog.DBTX) error {
		repo := catalog.NewBookRepository(tx)
		for _, id := range st.restore {
			if err := repo.Restore(ctx, id); err != nil {
				return fmt.Errorf("ошибка восстановления книги %s: %w", id, err)
			}
		}
		for _, b := range created {
			if err := repo.Register(ctx, b); err != nil {
				if errors.Is(err, catalog.ErrConflict) {
					return fmt.Errorf("%w: %s", ErrDuplicate, b.FileHash)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discard(records)
		middleware.OperationsTotal.WithLabelValues("library_import", "error").Inc()
		return nil, err
	}

	for _, id := range st.restore {
		s.cache.Delete(id)
	}
	st.books = append(st.books, created...)
	st.imported = len(created)
	s.refreshGauges(ctx)

	middleware.OperationsTotal.WithLabelValues("library_import", "success").Inc()
	s.logger.Info("Импорт в библиотеку завершён",
		slog.Int("imported", st.imported),
		slog.Int("deduped", st.deduped),
		slog.Int("restored", len(st.restore)),
	)

	return &ImportResult{
		Books:   st.books,
		Summary: model.ImportSummary{Imported: st.imported, Deduped: st.deduped},
	}, nil
}

// dedupe возвращает true, если хэш уже встречался в запросе или есть в каталоге.
func (s *LibraryService) dedupe(ctx context.Context, st *dedupState, hash string) (bool, error) {
	if _, ok := st.seen[hash]; ok {
		st.deduped++
		middleware.DedupedItemsTotal.WithLabelValues(dedupBatch).Inc()
		return true, nil
	}
	st.seen[hash] = struct{}{}

	existing, err := s.books.FindByHash(ctx, hash)
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if existing.IsDeleted() {
		st.restore = append(st.restore, existing.ID)
		existing.DeletedAt = nil
	}
	st.books = append(st.books, existing)
	st.deduped++
	middleware.DedupedItemsTotal.WithLabelValues(dedupCatalog).Inc()
	return true, nil
}

// discard удаляет директории импортированных, но не зарегистрированных книг.
func (s *LibraryService) discard(records []model.ImportRecord) {
	for _, rec := range records {
		dir := filepath.Dir(rec.FilePath)
		if err := s.store.Remove(dir); err != nil {
			s.logger.Error("Ошибка удаления незарегистрированной книги",
				slog.String("id", rec.ID),
				slog.String("path", dir),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Get возвращает книгу по идентификатору (через LRU-кэш).
func (s *LibraryService) Get(ctx context.Context, id string) (*model.Book, error) {
	if b, ok := s.cache.Get(id); ok {
		return b, nil
	}

	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(b)
	return b, nil
}

// List возвращает активные книги, недавно открытые первыми.
func (s *LibraryService) List(ctx context.Context) ([]*model.Book, error) {
	return s.books.List(ctx, false)
}

// ListDeleted возвращает книги в корзине, недавно удалённые первыми.
func (s *LibraryService) ListDeleted(ctx context.Context) ([]*model.Book, error) {
	return s.books.List(ctx, true)
}

// SoftDelete перемещает книгу в корзину. Файл остаётся на диске.
func (s *LibraryService) SoftDelete(ctx context.Context, id string) error {
	if err := s.books.SoftDelete(ctx, id, s.now().UnixMilli()); err != nil {
		return err
	}
	s.cache.Delete(id)
	s.refreshGauges(ctx)
	middleware.OperationsTotal.WithLabelValues("soft_delete", "success").Inc()

	s.logger.Info("Книга перемещена в корзину", slog.String("id", id))
	return nil
}

// Restore возвращает книгу из корзины.
func (s *LibraryService) Restore(ctx context.Context, id string) error {
	if err := s.books.Restore(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(id)
	s.refreshGauges(ctx)
	middleware.OperationsTotal.WithLabelValues("restore", "success").Inc()

	s.logger.Info("Книга восстановлена", slog.String("id", id))
	return nil
}

// Purge удаляет строку каталога, затем директорию книги <root>/<id>.
func (s *LibraryService) Purge(ctx context.Context, id string) error {
	root, err := s.resolver.Resolve()
	if err != nil {
		return err
	}

	if err := s.books.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(id)

	dir := filepath.Join(root, id)
	if err := s.store.Remove(dir); err != nil {
		middleware.OperationsTotal.WithLabelValues("purge", "error").Inc()
		return fmt.Errorf("строка каталога удалена, но файлы книги остались: %w", err)
	}

	s.refreshGauges(ctx)
	middleware.OperationsTotal.WithLabelValues("purge", "success").Inc()
	s.logger.Info("Книга удалена безвозвратно",
		slog.String("id", id),
		slog.String("path", dir),
	)
	return nil
}

// OpenContent открывает сохранённый файл книги и отмечает время открытия.
// Вызывающий код обязан закрыть файл.
func (s *LibraryService) OpenContent(ctx context.Context, id string) (afero.File, *model.Book, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.store.Open(b.FilePath)
	if err != nil {
		return nil, nil, err
	}

	if err := s.books.TouchOpened(ctx, id, s.now().UnixMilli()); err != nil {
		s.logger.Warn("Не удалось обновить last_opened_at",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
	s.cache.Delete(id)
	return f, b, nil
}

// readPosition — формат позиции чтения, сохраняемой reader-ом.
type readPosition struct {
	Page    *float64 `json:"page"`
	ScrollY *float64 `json:"scroll_y,omitempty"`
	Zoom    *float64 `json:"zoom,omitempty"`
	FitMode *string  `json:"fit_mode,omitempty"`
}

// SetReadPosition сохраняет позицию чтения книги.
// Позиция — JSON-объект с обязательным числовым page.
func (s *LibraryService) SetReadPosition(ctx context.Context, id string, raw json.RawMessage) error {
	var pos readPosition
	if err := json.Unmarshal(raw, &pos); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	if pos.Page == nil {
		return fmt.Errorf("%w: отсутствует page", ErrInvalidPosition)
	}
	if pos.FitMode != nil {
		switch *pos.FitMode {
		case "manual", "fitWidth", "fitPage":
		default:
			return fmt.Errorf("%w: неизвестный fit_mode %q", ErrInvalidPosition, *pos.FitMode)
		}
	}

	normalized, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("ошибка сериализации позиции: %w", err)
	}
	if err := s.books.UpdateReadPosition(ctx, id, string(normalized)); err != nil {
		return err
	}
	s.cache.Delete(id)
	return nil
}

// Stats возвращает число активных и удалённых книг.
func (s *LibraryService) Stats(ctx context.Context) (*LibraryStats, error) {
	active, err := s.books.Count(ctx, false)
	if err != nil {
		return nil, err
	}
	deleted, err := s.books.Count(ctx, true)
	if err != nil {
		return nil, err
	}
	return &LibraryStats{Active: active, Deleted: deleted}, nil
}

// refreshGauges обновляет rf_books_total по данным каталога.
func (s *LibraryService) refreshGauges(ctx context.Context) {
	stats, err := s.Stats(ctx)
	if err != nil {
		s.logger.Warn("Не удалось обновить метрики каталога", slog.String("error", err.Error()))
		return
	}
	middleware.BooksTotal.WithLabelValues("active").Set(float64(stats.Active))
	middleware.BooksTotal.WithLabelValues("deleted").Set(float64(stats.Deleted))
}

// RefreshMetrics выставляет метрики каталога при старте.
func (s *LibraryService) RefreshMetrics(ctx context.Context) {
	s.refreshGauges(ctx)
}
