// Пакет filestore — операции с физическими файлами библиотеки.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// чтение, удаление и получение метаданных файлов.
//
// Все операции выполняются через afero.Fs: в рабочем режиме это
// afero.OsFs, в тестах — afero.MemMapFs.
package filestore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// OriginalBaseName — имя сохранённого файла внутри директории элемента
// (без расширения): <library_root>/<id>/original.<format>.
const OriginalBaseName = "original"

// tmpSuffix — суффикс временного файла при атомарной записи.
const tmpSuffix = ".tmp"

// FileStore — управление физическими файлами библиотеки.
type FileStore struct {
	fs  afero.Fs
	now func() time.Time
}

// WriteResult — результат записи файла на диск.
type WriteResult struct {
	// Path — абсолютный путь записанного файла
	Path string
	// Size — число записанных байт
	Size int64
	// Checksum — SHA-256 записанного содержимого
	Checksum string
}

// New создаёт FileStore поверх указанной файловой системы.
func New(fs afero.Fs) *FileStore {
	return NewWithClock(fs, time.Now)
}

// NewWithClock создаёт FileStore с заданным источником текущего времени.
// Часы используются как замена недоступному mtime.
func NewWithClock(fs afero.Fs, now func() time.Time) *FileStore {
	return &FileStore{fs: fs, now: now}
}

// ItemFilePath возвращает путь сохранённого файла внутри директории элемента.
func ItemFilePath(itemDir, format string) string {
	return filepath.Join(itemDir, OriginalBaseName+"."+format)
}

// MakeItemDir создаёт директорию элемента <root>/<id>.
// Используется Mkdir, а не MkdirAll: существующая директория —
// ошибка, два импорта никогда не делят одну директорию.
func (s *FileStore) MakeItemDir(root, id string) (string, error) {
	dir := filepath.Join(root, id)
	if err := s.fs.Mkdir(dir, 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания директории книги %s: %w", dir, err)
	}
	return dir, nil
}

// WriteStream записывает данные из reader в dst с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *FileStore) WriteStream(dst string, reader io.Reader) (*WriteResult, error) {
	tmpPath := dst + tmpSuffix

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла назначения: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.CopyBuffer(f, tee, make([]byte, ChunkSize))
	if err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка копирования файла: %w", err)
	}

	if err := s.finish(f, tmpPath, dst); err != nil {
		return nil, err
	}

	return &WriteResult{
		Path:     dst,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// WriteBytes атомарно записывает уже материализованный буфер в dst.
// Checksum считается одним вызовом по всему буферу.
func (s *FileStore) WriteBytes(dst string, data []byte) (*WriteResult, error) {
	tmpPath := dst + tmpSuffix

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла назначения: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи файла: %w", err)
	}

	if err := s.finish(f, tmpPath, dst); err != nil {
		return nil, err
	}

	return &WriteResult{
		Path:     dst,
		Size:     int64(len(data)),
		Checksum: HashBytes(data),
	}, nil
}

// finish выполняет fsync, закрытие и атомарный rename временного файла.
func (s *FileStore) finish(f afero.File, tmpPath, dst string) error {
	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("ошибка сброса файла на диск: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(tmpPath, dst); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(path string) (afero.File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("файл не найден: %s: %w", path, err)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	return f, nil
}

// ReadBase64 читает файл целиком и возвращает его в стандартной base64.
func (s *FileStore) ReadBase64(path string) (string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Remove удаляет файл или директорию со всем содержимым.
// Возвращает nil, если путь не существует.
// С каталогом не сверяется: согласованность — забота вызывающего.
func (s *FileStore) Remove(path string) error {
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка получения информации о пути %s: %w", path, err)
	}

	if info.IsDir() {
		if err := s.fs.RemoveAll(path); err != nil {
			return fmt.Errorf("ошибка удаления директории %s: %w", path, err)
		}
		return nil
	}

	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return nil
}

// ListDirs возвращает поддиректории root (не рекурсивно).
func (s *FileStore) ListDirs(root string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования директории %s: %w", root, err)
	}

	dirs := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		}
	}
	return dirs, nil
}
