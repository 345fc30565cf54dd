// Пакет instance — монопольный доступ к директории данных readflow
// через flock().
//
// Держатель блокировки — единственный процесс, который меняет
// библиотеку и журнал. Сервер дополнительно записывает свой адрес
// в .readflow.info, чтобы второй запуск мог сообщить, куда обращаться.
package instance

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

const (
	// lockFileName — имя файла блокировки в директории данных.
	lockFileName = ".readflow.lock"
	// infoFileName — имя файла с адресом запущенного сервера.
	infoFileName = ".readflow.info"
)

// ErrAlreadyRunning — директория данных занята другим процессом.
var ErrAlreadyRunning = errors.New("директория данных используется другим процессом readflow")

// Lock — захваченная блокировка директории данных.
type Lock struct {
	dataDir string
	file    *os.File
	infoSet bool
	logger  *slog.Logger
}

// Acquire захватывает эксклюзивную блокировку dataDir без ожидания.
// Непустой addr записывается в .readflow.info (атомарно).
// Если блокировка занята, возвращает ошибку ErrAlreadyRunning
// с адресом держателя, если он известен.
func Acquire(dataDir, addr string, logger *slog.Logger) (*Lock, error) {
	lockPath := filepath.Join(dataDir, lockFileName)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть lock-файл %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if running := RunningAddr(dataDir); running != "" {
			return nil, fmt.Errorf("%w: сервер слушает %s", ErrAlreadyRunning, running)
		}
		return nil, ErrAlreadyRunning
	}

	l := &Lock{
		dataDir: dataDir,
		file:    f,
		logger:  logger.With(slog.String("component", "instance")),
	}

	if addr != "" {
		if err := writeInfo(dataDir, addr); err != nil {
			l.logger.Error("Ошибка записи .readflow.info", slog.String("error", err.Error()))
		} else {
			l.infoSet = true
		}
	}

	l.logger.Debug("Директория данных захвачена", slog.String("data_dir", dataDir))
	return l, nil
}

// Release снимает блокировку. Повторный вызов — no-op.
func (l *Lock) Release() {
	if l.file == nil {
		return
	}

	// .readflow.info удаляется до снятия flock: иначе можно стереть
	// адрес следующего держателя
	if l.infoSet {
		_ = os.Remove(filepath.Join(l.dataDir, infoFileName))
	}

	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
	l.logger.Debug("Директория данных освобождена")
}

// RunningAddr возвращает адрес сервера, держащего dataDir.
// Пустая строка — адрес неизвестен.
func RunningAddr(dataDir string) string {
	data, err := os.ReadFile(filepath.Join(dataDir, infoFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// writeInfo атомарно записывает адрес сервера.
func writeInfo(dataDir, addr string) error {
	infoPath := filepath.Join(dataDir, infoFileName)
	tmpPath := infoPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(addr), 0o640); err != nil {
		return fmt.Errorf("ошибка записи temp .readflow.info: %w", err)
	}
	if err := os.Rename(tmpPath, infoPath); err != nil {
		return fmt.Errorf("ошибка переименования .readflow.info: %w", err)
	}
	return nil
}
