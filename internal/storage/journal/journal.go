package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrNotPending — транзакция уже завершена.
var ErrNotPending = errors.New("транзакция журнала не в статусе pending")

// Journal — журнал пакетов импорта.
// Порядок работы пакета: Begin → AddItem перед каждым Mkdir →
// Commit или Rollback. При рестарте RecoverPending откатывает пакеты,
// прерванные на середине.
type Journal struct {
	fs     afero.Fs
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт журнал в директории dir, создавая её при необходимости,
// и проверяет доступность на запись.
func New(fs afero.Fs, dir string, logger *slog.Logger) (*Journal, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".journal_write_test")
	if err := afero.WriteFile(fs, testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория журнала %s недоступна для записи: %w", dir, err)
	}
	_ = fs.Remove(testFile)

	return &Journal{
		fs:     fs,
		dir:    dir,
		logger: logger.With(slog.String("component", "journal")),
		now:    time.Now,
	}, nil
}

// Dir возвращает путь к директории журнала.
func (j *Journal) Dir() string {
	return j.dir
}

// Begin открывает транзакцию для нового пакета.
func (j *Journal) Begin(op OperationType) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     op,
		Status:        StatusPending,
		ItemDirs:      []string{},
		StartedAt:     j.now().UTC(),
	}

	if err := j.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось создать запись журнала: %w", err)
	}

	j.logger.Debug("Пакет начат",
		slog.String("tx_id", entry.TransactionID),
		slog.String("operation", string(op)),
	)
	return entry, nil
}

// AddItem добавляет директорию элемента в транзакцию.
// Вызывается сразу после создания директории пакетом: откат
// удаляет только записанные здесь директории.
func (j *Journal) AddItem(txID, itemDir string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.pendingEntry(txID)
	if err != nil {
		return err
	}

	entry.ItemDirs = append(entry.ItemDirs, itemDir)
	if err := j.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить запись журнала %s: %w", txID, err)
	}
	return nil
}

// Commit помечает пакет как успешно завершённый.
func (j *Journal) Commit(txID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.pendingEntry(txID)
	if err != nil {
		return err
	}

	now := j.now().UTC()
	entry.Status = StatusCommitted
	entry.CompletedAt = &now

	if err := j.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить запись журнала %s: %w", txID, err)
	}

	j.logger.Debug("Пакет завершён",
		slog.String("tx_id", txID),
		slog.Int("items", len(entry.ItemDirs)),
		slog.Duration("duration", now.Sub(entry.StartedAt)),
	)
	return nil
}

// Rollback удаляет все директории элементов пакета и помечает его
// как отменённый. Если какую-то директорию удалить не удалось,
// транзакция остаётся pending, чтобы откат повторился при рестарте.
func (j *Journal) Rollback(txID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.pendingEntry(txID)
	if err != nil {
		return err
	}
	return j.rollback(entry)
}

func (j *Journal) rollback(entry *Entry) error {
	var errs []error
	for i := len(entry.ItemDirs) - 1; i >= 0; i-- {
		dir := entry.ItemDirs[i]
		if err := j.fs.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("ошибка удаления директории %s: %w", dir, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("откат пакета %s не завершён: %w", entry.TransactionID, errors.Join(errs...))
	}

	now := j.now().UTC()
	entry.Status = StatusRolledBack
	entry.CompletedAt = &now

	if err := j.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить запись журнала %s: %w", entry.TransactionID, err)
	}

	j.logger.Info("Пакет отменён",
		slog.String("tx_id", entry.TransactionID),
		slog.Int("removed_dirs", len(entry.ItemDirs)),
	)
	return nil
}

// Pending возвращает все незавершённые транзакции.
func (j *Journal) Pending() ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.pending()
}

// RecoverPending откатывает пакеты, прерванные на середине
// (например, падением процесса). Возвращает число откаченных пакетов.
// Вызывается при старте до приёма новых запросов.
func (j *Journal) RecoverPending() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	pending, err := j.pending()
	if err != nil {
		return 0, err
	}

	recovered := 0
	var errs []error
	for _, entry := range pending {
		j.logger.Warn("Обнаружен незавершённый пакет импорта",
			slog.String("tx_id", entry.TransactionID),
			slog.String("operation", string(entry.Operation)),
			slog.Int("items", len(entry.ItemDirs)),
			slog.Time("started_at", entry.StartedAt),
		)
		if err := j.rollback(entry); err != nil {
			errs = append(errs, err)
			continue
		}
		recovered++
	}
	return recovered, errors.Join(errs...)
}

// PendingItemDirs возвращает множество директорий, принадлежащих
// незавершённым пакетам.
func (j *Journal) PendingItemDirs() (map[string]struct{}, error) {
	pending, err := j.Pending()
	if err != nil {
		return nil, err
	}

	dirs := make(map[string]struct{})
	for _, entry := range pending {
		for _, d := range entry.ItemDirs {
			dirs[filepath.Clean(d)] = struct{}{}
		}
	}
	return dirs, nil
}

// CleanCompleted удаляет записи committed и rolled_back.
func (j *Journal) CleanCompleted() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths, err := afero.Glob(j.fs, filepath.Join(j.dir, "*"+fileSuffix))
	if err != nil {
		return 0, fmt.Errorf("не удалось сканировать директорию журнала: %w", err)
	}

	cleaned := 0
	for _, path := range paths {
		entry, err := j.readEntry(strings.TrimSuffix(filepath.Base(path), fileSuffix))
		if err != nil || entry.Status == StatusPending {
			continue
		}
		if err := j.fs.Remove(path); err != nil {
			j.logger.Warn("Не удалось удалить завершённую запись журнала",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		j.logger.Info("Очистка журнала завершена", slog.Int("cleaned", cleaned))
	}
	return cleaned, nil
}

func (j *Journal) pending() ([]*Entry, error) {
	paths, err := afero.Glob(j.fs, filepath.Join(j.dir, "*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("не удалось сканировать директорию журнала: %w", err)
	}

	var pending []*Entry
	for _, path := range paths {
		entry, err := j.readEntry(strings.TrimSuffix(filepath.Base(path), fileSuffix))
		if err != nil {
			j.logger.Warn("Не удалось прочитать запись журнала",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if entry.Status == StatusPending {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

func (j *Journal) pendingEntry(txID string) (*Entry, error) {
	entry, err := j.readEntry(txID)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать запись журнала %s: %w", txID, err)
	}
	if entry.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s имеет статус %s", ErrNotPending, txID, entry.Status)
	}
	return entry, nil
}

// writeEntry атомарно записывает запись: temp файл → fsync → rename.
func (j *Journal) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	targetPath := filepath.Join(j.dir, entryFileName(entry.TransactionID))
	tmpPath := targetPath + ".tmp"

	f, err := j.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = j.fs.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = j.fs.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = j.fs.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := j.fs.Rename(tmpPath, targetPath); err != nil {
		_ = j.fs.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

func (j *Journal) readEntry(txID string) (*Entry, error) {
	data, err := afero.ReadFile(j.fs, filepath.Join(j.dir, entryFileName(txID)))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}
	return &entry, nil
}
