// importer.go — конвейер импорта файлов в библиотеку.
package service

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/readflow/internal/api/middleware"
	"github.com/bigkaa/readflow/internal/domain/model"
	"github.com/bigkaa/readflow/internal/storage/filestore"
	"github.com/bigkaa/readflow/internal/storage/journal"
	"github.com/bigkaa/readflow/internal/storage/libdir"
)

// Источники импорта (лейбл метрик).
const (
	sourcePath    = "path"
	sourcePayload = "payload"
)

// Importer — конвейер импорта: каждый элемент получает новый UUID,
// собственную директорию <root>/<id>/ и файл original.<format>.
//
// Пакет обрабатывается строго последовательно. Первая ошибка прерывает
// пакет, и все директории, уже созданные этим пакетом, удаляются через
// журнал. Пакеты независимы и могут выполняться параллельно.
type Importer struct {
	resolver *libdir.Resolver
	store    *filestore.FileStore
	journal  *journal.Journal
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewImporter создаёт конвейер импорта.
func NewImporter(
	resolver *libdir.Resolver,
	store *filestore.FileStore,
	jrn *journal.Journal,
	logger *slog.Logger,
) *Importer {
	return &Importer{
		resolver: resolver,
		store:    store,
		journal:  jrn,
		logger:   logger.With(slog.String("component", "importer")),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// batch — состояние одного пакета импорта.
type batch struct {
	root string
	txID string
}

// ImportPaths копирует файлы по путям в библиотеку.
//
// Для каждого пути: проверка имени → stat источника → формат →
// новый UUID → Mkdir <root>/<id> → потоковое копирование с SHA-256.
// Хэш считается по тем же байтам, что записываются на диск.
func (im *Importer) ImportPaths(paths []string) ([]model.ImportRecord, error) {
	return im.run(journal.OpImportPaths, sourcePath, len(paths), func(b *batch, i int) (model.ImportRecord, error) {
		rec, err := im.importPath(b, paths[i])
		if err != nil {
			return rec, &ItemError{Index: i, Source: paths[i], Err: err}
		}
		return rec, nil
	})
}

// ImportPayloads записывает в библиотеку файлы, переданные в памяти
// в стандартной base64. Хэш считается по декодированному буферу целиком.
func (im *Importer) ImportPayloads(files []model.FilePayload) ([]model.ImportRecord, error) {
	return im.run(journal.OpImportPayloads, sourcePayload, len(files), func(b *batch, i int) (model.ImportRecord, error) {
		rec, err := im.importPayload(b, files[i])
		if err != nil {
			return rec, &ItemError{Index: i, Source: files[i].Name, Err: err}
		}
		return rec, nil
	})
}

// HashFile возвращает отпечаток и метаданные файла без копирования.
func (im *Importer) HashFile(path string) (*model.HashResult, error) {
	name, err := filestore.FileName(path)
	if err != nil {
		return nil, err
	}

	hash, _, err := im.store.HashFile(path)
	if err != nil {
		return nil, err
	}

	size, mtime, err := im.store.Probe(path)
	if err != nil {
		return nil, err
	}

	return &model.HashResult{
		FileName: name,
		FileHash: hash,
		FileSize: size,
		Mtime:    mtime,
		Format:   filestore.InferFormat(name),
	}, nil
}

// run выполняет пакет: корень библиотеки → транзакция журнала →
// элементы по порядку → commit или откат.
func (im *Importer) run(
	op journal.OperationType,
	source string,
	n int,
	item func(b *batch, i int) (model.ImportRecord, error),
) ([]model.ImportRecord, error) {
	root, err := im.resolver.Resolve()
	if err != nil {
		return nil, err
	}

	records := make([]model.ImportRecord, 0, n)
	if n == 0 {
		return records, nil
	}

	entry, err := im.journal.Begin(op)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала пакета импорта: %w", err)
	}
	b := &batch{root: root, txID: entry.TransactionID}

	for i := 0; i < n; i++ {
		rec, err := item(b, i)
		if err != nil {
			im.abort(b, op, len(records), err)
			return nil, err
		}
		records = append(records, rec)
	}

	if err := im.journal.Commit(b.txID); err != nil {
		im.abort(b, op, len(records), err)
		return nil, fmt.Errorf("ошибка завершения пакета импорта: %w", err)
	}

	var total int64
	for _, rec := range records {
		total += rec.FileSize
		middleware.ImportedItemsTotal.WithLabelValues(source, rec.Format).Inc()
	}
	middleware.ImportedBytesTotal.Add(float64(total))
	middleware.OperationsTotal.WithLabelValues(string(op), "success").Inc()

	im.logger.Info("Пакет импортирован",
		slog.String("tx_id", b.txID),
		slog.String("operation", string(op)),
		slog.Int("items", len(records)),
		slog.Int64("bytes", total),
	)
	return records, nil
}

// abort откатывает пакет после ошибки элемента.
func (im *Importer) abort(b *batch, op journal.OperationType, done int, cause error) {
	middleware.OperationsTotal.WithLabelValues(string(op), "error").Inc()

	im.logger.Error("Пакет импорта прерван",
		slog.String("tx_id", b.txID),
		slog.String("operation", string(op)),
		slog.Int("completed_items", done),
		slog.String("error", cause.Error()),
	)

	if err := im.journal.Rollback(b.txID); err != nil {
		// Транзакция остаётся pending и будет откачена при следующем старте
		im.logger.Error("Ошибка отката пакета импорта",
			slog.String("tx_id", b.txID),
			slog.String("error", err.Error()),
		)
	}
}

// allocate выдаёт новую идентичность и создаёт её директорию.
// В журнал попадает только директория, созданная этим пакетом:
// при коллизии id чужая директория не должна откатываться.
// Падение между Mkdir и AddItem оставляет пустую директорию,
// её находит сверка как orphaned_dir.
func (im *Importer) allocate(b *batch) (id, dir string, err error) {
	id = im.newID()

	dir, err = im.store.MakeItemDir(b.root, id)
	if err != nil {
		return "", "", err
	}
	if err := im.journal.AddItem(b.txID, dir); err != nil {
		_ = im.store.Remove(dir)
		return "", "", err
	}
	return id, dir, nil
}

func (im *Importer) importPath(b *batch, path string) (model.ImportRecord, error) {
	name, err := filestore.FileName(path)
	if err != nil {
		return model.ImportRecord{}, err
	}

	_, mtime, err := im.store.Probe(path)
	if err != nil {
		return model.ImportRecord{}, err
	}
	format := filestore.InferFormat(name)

	src, err := im.store.Open(path)
	if err != nil {
		return model.ImportRecord{}, err
	}
	defer src.Close()

	id, dir, err := im.allocate(b)
	if err != nil {
		return model.ImportRecord{}, err
	}

	res, err := im.store.WriteStream(filestore.ItemFilePath(dir, format), src)
	if err != nil {
		return model.ImportRecord{}, err
	}

	im.logger.Debug("Файл скопирован в библиотеку",
		slog.String("id", id),
		slog.String("source", path),
		slog.Int64("size", res.Size),
	)

	return model.ImportRecord{
		ID:       id,
		FileName: name,
		FilePath: res.Path,
		FileHash: res.Checksum,
		FileSize: res.Size,
		Mtime:    mtime,
		Format:   format,
		AddedAt:  im.now().UnixMilli(),
	}, nil
}

func (im *Importer) importPayload(b *batch, file model.FilePayload) (model.ImportRecord, error) {
	if file.Name == "" {
		return model.ImportRecord{}, filestore.ErrInvalidName
	}

	// Декодирование до создания директории: битый payload не оставляет следов
	data, err := decodePayload(file.DataBase64)
	if err != nil {
		return model.ImportRecord{}, err
	}
	format := filestore.InferFormat(file.Name)

	id, dir, err := im.allocate(b)
	if err != nil {
		return model.ImportRecord{}, err
	}

	res, err := im.store.WriteBytes(filestore.ItemFilePath(dir, format), data)
	if err != nil {
		return model.ImportRecord{}, err
	}

	// У payload нет источника на диске: mtime берётся у записанной копии
	size, mtime, err := im.store.Probe(res.Path)
	if err != nil {
		return model.ImportRecord{}, err
	}

	return model.ImportRecord{
		ID:       id,
		FileName: file.Name,
		FilePath: res.Path,
		FileHash: res.Checksum,
		FileSize: size,
		Mtime:    mtime,
		Format:   format,
		AddedAt:  im.now().UnixMilli(),
	}, nil
}

// decodePayload декодирует стандартную base64 (с паддингом).
func decodePayload(data string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return decoded, nil
}
