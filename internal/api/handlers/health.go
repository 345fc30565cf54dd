// health.go — обработчики health endpoints: /health/live, /health/ready.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/readflow/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// CatalogReadinessChecker — проверка готовности каталога.
type CatalogReadinessChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints.
type HealthHandler struct {
	version string
	// dataDir — директория данных приложения (проверка записи)
	dataDir string
	// journalDir — директория журнала импорта (проверка записи)
	journalDir string
	catalog    CatalogReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// Пустые пути и nil catalog отключают соответствующие проверки.
func NewHealthHandler(dataDir, journalDir string, catalog CatalogReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		dataDir:    dataDir,
		journalDir: journalDir,
		catalog:    catalog,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Зависимости не проверяет.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "readflow",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Недоступность каталога или директории данных — fail (503),
// недоступность журнала — degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := checkWritable(h.dataDir, "Директория данных")
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	journalCheck := checkWritable(h.journalDir, "Директория журнала")
	if journalCheck["status"] != "ok" && overallStatus != statusFail {
		overallStatus = "degraded"
	}

	catalogCheck := map[string]any{"status": "ok"}
	if h.catalog != nil {
		status, message := h.catalog.CheckReady()
		catalogCheck["status"] = status
		if message != "" {
			catalogCheck["message"] = message
		}
		if status != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "readflow",
		"checks": map[string]any{
			"filesystem": fsCheck,
			"journal":    journalCheck,
			"catalog":    catalogCheck,
		},
	})
}

// checkWritable проверяет доступность директории на запись.
func checkWritable(dir, title string) map[string]any {
	if dir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": title + " недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{"status": "ok"}
}
