// files.go — HTTP handlers файловых операций: хэш, чтение в base64, удаление.
package handlers

import (
	"net/http"

	"github.com/bigkaa/readflow/internal/service"
	"github.com/bigkaa/readflow/internal/storage/filestore"
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	importer       *service.Importer
	store          *filestore.FileStore
	maxRequestSize int64
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(importer *service.Importer, store *filestore.FileStore, maxRequestSize int64) *FilesHandler {
	return &FilesHandler{
		importer:       importer,
		store:          store,
		maxRequestSize: maxRequestSize,
	}
}

type base64Response struct {
	DataBase64 string `json:"data_base64"`
}

// HashFile обрабатывает POST /api/v1/files/hash.
func (h *FilesHandler) HashFile(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r, h.maxRequestSize)
	if !ok {
		return
	}

	res, err := h.importer.HashFile(path)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReadBase64 обрабатывает POST /api/v1/files/read-base64.
func (h *FilesHandler) ReadBase64(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r, h.maxRequestSize)
	if !ok {
		return
	}

	data, err := h.store.ReadBase64(path)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, base64Response{DataBase64: data})
}

// Remove обрабатывает POST /api/v1/files/remove.
// Отсутствующий путь — успех. Каталог не затрагивается.
func (h *FilesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r, h.maxRequestSize)
	if !ok {
		return
	}

	if err := h.store.Remove(path); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
