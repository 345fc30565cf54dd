// Пакет config — загрузка и валидация конфигурации readflow
// из переменных окружения и .env файла.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// DefaultAppID — идентификатор приложения, имя директории данных.
const DefaultAppID = "com.readflow.app"

// minSecretLen — минимальная длина секрета HS256.
const minSecretLen = 32

// Config содержит все параметры конфигурации readflow.
type Config struct {
	// Идентификатор приложения (подкаталог платформенной директории данных)
	AppID string
	// Явная директория данных; пусто — платформенная директория для AppID
	DataDir string
	// Путь к файлу каталога SQLite; пусто — <data_dir>/settings.db
	CatalogPath string
	// Директория журнала пакетов импорта; пусто — <data_dir>/journal
	JournalDir string

	// Адрес HTTP API (только loopback)
	ListenAddr string
	// Максимальный размер тела запроса в байтах
	MaxRequestSize int64
	// Секрет подписи токенов HS256; пусто — аутентификация выключена
	APISecret string
	// Допуск по времени при проверке exp/nbf токена
	JWTLeeway time.Duration
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Файл логов с ротацией; пусто — только stdout
	LogFile string
	// Размер файла логов до ротации, МБ
	LogMaxSizeMB int
	// Количество хранимых ротированных файлов
	LogMaxBackups int

	// Интервал автоматической сверки библиотеки с каталогом
	ReconcileInterval time.Duration
	// Удалять директории-сироты при сверке
	ReconcileCleanup bool
	// Минимальный возраст директории-сироты для удаления
	OrphanGrace time.Duration

	// Интервал очистки корзины и журнала
	GCInterval time.Duration
	// Срок хранения книг в корзине; 0 — не удалять
	TrashRetention time.Duration

	// Размер LRU-кэша книг
	CacheSize int
	// TTL записи LRU-кэша
	CacheTTL time.Duration

	// Inbox-директория для автоматического импорта; пусто — выключено
	InboxDir string
	// Время без изменений, после которого файл inbox импортируется
	InboxSettle time.Duration
}

// Load загружает конфигурацию: сначала .env (RF_ENV_FILE, по умолчанию
// ./.env; реальные переменные окружения не перезаписываются), затем
// переменные окружения RF_*. Возвращает Config или ошибку валидации.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// RF_APP_ID — идентификатор приложения
	cfg.AppID = getEnvDefault("RF_APP_ID", DefaultAppID)
	if strings.ContainsAny(cfg.AppID, `/\`) {
		return nil, fmt.Errorf("RF_APP_ID: значение %q не должно содержать разделителей пути", cfg.AppID)
	}

	cfg.DataDir = getEnvDefault("RF_DATA_DIR", "")
	cfg.CatalogPath = getEnvDefault("RF_CATALOG_PATH", "")
	cfg.JournalDir = getEnvDefault("RF_JOURNAL_DIR", "")

	// RF_LISTEN_ADDR — адрес HTTP API (по умолчанию 127.0.0.1:8420)
	cfg.ListenAddr = getEnvDefault("RF_LISTEN_ADDR", "127.0.0.1:8420")
	if err := validateLoopback(cfg.ListenAddr); err != nil {
		return nil, fmt.Errorf("RF_LISTEN_ADDR: %w", err)
	}

	// RF_MAX_REQUEST_SIZE — лимит тела запроса (по умолчанию 512 MB)
	cfg.MaxRequestSize, err = getEnvInt64("RF_MAX_REQUEST_SIZE", 512<<20)
	if err != nil {
		return nil, fmt.Errorf("RF_MAX_REQUEST_SIZE: %w", err)
	}
	if cfg.MaxRequestSize <= 0 {
		return nil, fmt.Errorf("RF_MAX_REQUEST_SIZE: значение должно быть положительным")
	}

	// RF_API_SECRET — секрет HS256 (опционально, не короче 32 байт)
	cfg.APISecret = getEnvDefault("RF_API_SECRET", "")
	if cfg.APISecret != "" && len(cfg.APISecret) < minSecretLen {
		return nil, fmt.Errorf("RF_API_SECRET: длина секрета должна быть не меньше %d байт", minSecretLen)
	}

	// RF_JWT_LEEWAY — допуск по времени для токенов (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("RF_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RF_JWT_LEEWAY: %w", err)
	}

	// RF_HTTP_*_TIMEOUT — таймауты сервера
	if cfg.HTTPReadTimeout, err = getEnvDuration("RF_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("RF_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("RF_HTTP_WRITE_TIMEOUT", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("RF_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("RF_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("RF_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// RF_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("RF_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RF_SHUTDOWN_TIMEOUT: %w", err)
	}

	// RF_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RF_LOG_LEVEL: %w", err)
	}

	// RF_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.LogFile = getEnvDefault("RF_LOG_FILE", "")
	if cfg.LogMaxSizeMB, err = getEnvInt("RF_LOG_MAX_SIZE_MB", 100); err != nil {
		return nil, fmt.Errorf("RF_LOG_MAX_SIZE_MB: %w", err)
	}
	if cfg.LogMaxBackups, err = getEnvInt("RF_LOG_MAX_BACKUPS", 3); err != nil {
		return nil, fmt.Errorf("RF_LOG_MAX_BACKUPS: %w", err)
	}
	if cfg.LogMaxSizeMB <= 0 || cfg.LogMaxBackups < 0 {
		return nil, fmt.Errorf("RF_LOG_MAX_SIZE_MB/RF_LOG_MAX_BACKUPS: некорректные параметры ротации")
	}

	// RF_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h)
	cfg.ReconcileInterval, err = getEnvDuration("RF_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RF_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("RF_RECONCILE_INTERVAL: значение должно быть положительным")
	}

	// RF_RECONCILE_CLEANUP — удаление сирот (по умолчанию выключено)
	cfg.ReconcileCleanup, err = getEnvBool("RF_RECONCILE_CLEANUP", false)
	if err != nil {
		return nil, fmt.Errorf("RF_RECONCILE_CLEANUP: %w", err)
	}

	// RF_ORPHAN_GRACE — возраст сироты для удаления (по умолчанию 24h)
	cfg.OrphanGrace, err = getEnvDuration("RF_ORPHAN_GRACE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RF_ORPHAN_GRACE: %w", err)
	}
	if err := cfg.ValidateOrphanGrace(); err != nil {
		return nil, err
	}

	// RF_GC_INTERVAL — интервал очистки (по умолчанию 1h)
	cfg.GCInterval, err = getEnvDuration("RF_GC_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RF_GC_INTERVAL: %w", err)
	}
	if cfg.GCInterval <= 0 {
		return nil, fmt.Errorf("RF_GC_INTERVAL: значение должно быть положительным")
	}

	// RF_TRASH_RETENTION — срок хранения в корзине (по умолчанию 30 суток)
	cfg.TrashRetention, err = getEnvDuration("RF_TRASH_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RF_TRASH_RETENTION: %w", err)
	}
	if cfg.TrashRetention < 0 {
		return nil, fmt.Errorf("RF_TRASH_RETENTION: значение не может быть отрицательным")
	}

	// RF_CACHE_SIZE / RF_CACHE_TTL — LRU-кэш книг
	if cfg.CacheSize, err = getEnvInt("RF_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("RF_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("RF_CACHE_SIZE: значение должно быть положительным")
	}
	if cfg.CacheTTL, err = getEnvDuration("RF_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("RF_CACHE_TTL: %w", err)
	}

	// RF_INBOX_DIR / RF_INBOX_SETTLE — автоматический импорт
	cfg.InboxDir = getEnvDefault("RF_INBOX_DIR", "")
	cfg.InboxSettle, err = getEnvDuration("RF_INBOX_SETTLE", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RF_INBOX_SETTLE: %w", err)
	}

	return cfg, nil
}

// CatalogFile возвращает путь файла каталога для директории данных.
func (c *Config) CatalogFile(dataDir, defaultName string) string {
	if c.CatalogPath != "" {
		return c.CatalogPath
	}
	return filepath.Join(dataDir, defaultName)
}

// JournalPath возвращает директорию журнала для директории данных.
func (c *Config) JournalPath(dataDir string) string {
	if c.JournalDir != "" {
		return c.JournalDir
	}
	return filepath.Join(dataDir, "journal")
}

// AuthEnabled — задан ли секрет токенов.
func (c *Config) AuthEnabled() bool {
	return c.APISecret != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// При заданном RF_LOG_FILE записи дублируются в файл с ротацией;
// возвращаемый io.Closer закрывает этот файл.
func SetupLogger(cfg *Config) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// --- Вспомогательные функции ---

// loadEnvFile загружает .env. Отсутствие файла по умолчанию не ошибка,
// отсутствие явно указанного RF_ENV_FILE — ошибка.
func loadEnvFile() error {
	path, explicit := os.LookupEnv("RF_ENV_FILE")
	if !explicit || path == "" {
		path = ".env"
		explicit = false
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("RF_ENV_FILE: ошибка загрузки %s: %w", path, err)
	}
	return nil
}

// validateLoopback проверяет, что адрес слушает только loopback.
func validateLoopback(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("некорректный адрес %q: %w", addr, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("некорректный порт %q", port)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("адрес %q не является loopback", host)
	}
	return nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// ValidateOrphanGrace требует положительный grace при включённой очистке.
func (c *Config) ValidateOrphanGrace() error {
	if c.ReconcileCleanup && c.OrphanGrace <= 0 {
		return fmt.Errorf("RF_ORPHAN_GRACE: значение должно быть положительным при RF_RECONCILE_CLEANUP=true")
	}
	return nil
}
