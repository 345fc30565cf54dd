// import.go — HTTP handlers импорта: конвейер без каталога
// (import/paths, import/payloads) и импорт в библиотеку с дедупликацией.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/readflow/internal/api/errors"
	"github.com/bigkaa/readflow/internal/api/middleware"
	"github.com/bigkaa/readflow/internal/domain/model"
	"github.com/bigkaa/readflow/internal/service"
)

// ImportHandler — обработчик endpoints импорта.
type ImportHandler struct {
	importer       *service.Importer
	library        *service.LibraryService
	maxRequestSize int64
}

// NewImportHandler создаёт обработчик endpoints импорта.
func NewImportHandler(importer *service.Importer, library *service.LibraryService, maxRequestSize int64) *ImportHandler {
	return &ImportHandler{
		importer:       importer,
		library:        library,
		maxRequestSize: maxRequestSize,
	}
}

type importPathsRequest struct {
	Paths []string `json:"paths"`
}

type importPayloadsRequest struct {
	Files []model.FilePayload `json:"files"`
}

// ImportPaths обрабатывает POST /api/v1/import/paths.
// Возвращает записи импорта в порядке входных путей.
func (h *ImportHandler) ImportPaths(w http.ResponseWriter, r *http.Request) {
	var req importPathsRequest
	if !decodeJSON(w, r, h.maxRequestSize, &req) {
		return
	}

	records, err := h.importer.ImportPaths(req.Paths)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, records)
}

// ImportPayloads обрабатывает POST /api/v1/import/payloads.
func (h *ImportHandler) ImportPayloads(w http.ResponseWriter, r *http.Request) {
	var req importPayloadsRequest
	if !decodeJSON(w, r, h.maxRequestSize, &req) {
		return
	}

	records, err := h.importer.ImportPayloads(req.Files)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, records)
}

// LibraryImport обрабатывает POST /api/v1/library/import.
// Пути и payload-ы дедуплицируются по SHA-256 и регистрируются в каталоге.
func (h *ImportHandler) LibraryImport(w http.ResponseWriter, r *http.Request) {
	var req service.ImportRequest
	if !decodeJSON(w, r, h.maxRequestSize, &req) {
		return
	}
	if len(req.Paths) == 0 && len(req.Files) == 0 {
		apierrors.ValidationError(w, "Нужно указать 'paths' или 'files'")
		return
	}

	result, err := h.library.Import(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// subject пуст, если аутентификация выключена
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		w.Header().Set("X-Imported-By", subject)
	}
	writeJSON(w, http.StatusOK, result)
}
