// system.go — обработчик GET /api/v1/info: корень библиотеки,
// счётчики каталога, ёмкость диска и состояние сверки.
package handlers

import (
	"context"
	"net/http"

	"github.com/bigkaa/readflow/internal/config"
	"github.com/bigkaa/readflow/internal/service"
)

// DiskUsageFunc возвращает ёмкость файловой системы в байтах.
type DiskUsageFunc func() (total, used, available int64, err error)

// StatsProvider — источник счётчиков каталога.
type StatsProvider interface {
	Stats(ctx context.Context) (*service.LibraryStats, error)
}

// ReconcileStatus сообщает, выполняется ли сейчас сверка.
type ReconcileStatus interface {
	IsInProgress() bool
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	appID       string
	libraryRoot string
	stats       StatsProvider
	diskUsage   DiskUsageFunc
	reconcile   ReconcileStatus
}

// NewSystemHandler создаёт обработчик системных endpoints.
// diskUsage может быть nil: тогда блок capacity в ответе отсутствует.
func NewSystemHandler(appID, libraryRoot string, stats StatsProvider, diskUsage DiskUsageFunc) *SystemHandler {
	return &SystemHandler{
		appID:       appID,
		libraryRoot: libraryRoot,
		stats:       stats,
		diskUsage:   diskUsage,
	}
}

// WithReconcile подключает состояние сверки к ответу info.
func (h *SystemHandler) WithReconcile(rs ReconcileStatus) *SystemHandler {
	h.reconcile = rs
	return h
}

type capacityInfo struct {
	TotalBytes     int64 `json:"total_bytes"`
	UsedBytes      int64 `json:"used_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

type infoResponse struct {
	AppID        string        `json:"app_id"`
	Version      string        `json:"version"`
	LibraryRoot  string        `json:"library_root"`
	BooksActive  int           `json:"books_active"`
	BooksDeleted int           `json:"books_deleted"`
	Capacity     *capacityInfo `json:"capacity,omitempty"`

	ReconcileInProgress *bool `json:"reconcile_in_progress,omitempty"`
}

// GetInfo обрабатывает GET /api/v1/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := infoResponse{
		AppID:        h.appID,
		Version:      config.Version,
		LibraryRoot:  h.libraryRoot,
		BooksActive:  stats.Active,
		BooksDeleted: stats.Deleted,
	}

	// Ошибка statfs не мешает отдать остальную информацию
	if h.diskUsage != nil {
		if total, used, available, err := h.diskUsage(); err == nil {
			resp.Capacity = &capacityInfo{
				TotalBytes:     total,
				UsedBytes:      used,
				AvailableBytes: available,
			}
		}
	}

	if h.reconcile != nil {
		inProgress := h.reconcile.IsInProgress()
		resp.ReconcileInProgress = &inProgress
	}

	writeJSON(w, http.StatusOK, resp)
}
