// Пакет catalog — каталог книг в SQLite (modernc.org/sqlite, без cgo),
// применение миграций (golang-migrate) и проверка готовности.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultFileName — имя файла каталога внутри директории данных приложения.
const DefaultFileName = "settings.db"

// driverName — имя database/sql драйвера modernc.org/sqlite.
const driverName = "sqlite"

// dsn формирует строку подключения: внешние ключи включены,
// ожидание блокировки вместо немедленного SQLITE_BUSY.
func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Open открывает файл каталога, создавая родительскую директорию.
// Выполняет ping для проверки доступности.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории каталога: %w", err)
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия каталога: %w", err)
	}
	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка подключения к каталогу %s: %w", path, err)
	}

	logger.Info("Каталог открыт", slog.String("path", path))
	return db, nil
}

// Migrate применяет SQL-миграции из embedded FS к файлу каталога.
// Каждая версия применяется ровно один раз; повторный запуск — no-op.
// Возвращает итоговую версию схемы.
func Migrate(path string, logger *slog.Logger) (uint, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("ошибка создания директории каталога: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+path)
	if err != nil {
		return 0, fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("схема каталога в состоянии dirty на версии %d", version)
	}

	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
	)
	return version, nil
}

// ReadinessChecker — проверка готовности каталога для health endpoint.
type ReadinessChecker struct {
	db *sql.DB
}

// NewReadinessChecker создаёт проверку готовности каталога.
func NewReadinessChecker(db *sql.DB) *ReadinessChecker {
	return &ReadinessChecker{db: db}
}

// CheckReady проверяет доступность каталога через ping.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return "fail", fmt.Sprintf("каталог недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
