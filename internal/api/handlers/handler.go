// handler.go — общие функции handlers: разбор JSON-тела, запись
// ответа и отображение ошибок сервисного слоя в HTTP-коды.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	apierrors "github.com/bigkaa/readflow/internal/api/errors"
	"github.com/bigkaa/readflow/internal/service"
	"github.com/bigkaa/readflow/internal/storage/catalog"
	"github.com/bigkaa/readflow/internal/storage/filestore"
)

// decodeJSON разбирает тело запроса в dst с ограничением размера.
// При ошибке ответ уже записан, возвращается false.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxSize int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.RequestTooLarge(w, fmt.Sprintf("Тело запроса превышает %d байт", tooLarge.Limit))
			return false
		}
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return false
	}
	return true
}

// writeJSON записывает ответ в формате JSON.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Сообщение ошибки передаётся клиенту как есть: оно предназначено
// для показа пользователю.
func writeServiceError(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrDecode):
		apierrors.DecodeError(w, msg)
	case errors.Is(err, filestore.ErrInvalidName):
		apierrors.InvalidName(w, msg)
	case errors.Is(err, service.ErrInvalidPosition):
		apierrors.ValidationError(w, msg)
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, os.ErrNotExist):
		apierrors.NotFound(w, msg)
	case errors.Is(err, service.ErrDuplicate), errors.Is(err, catalog.ErrConflict):
		apierrors.Conflict(w, msg)
	default:
		apierrors.InternalError(w, msg)
	}
}

// pathRequest — тело запросов с одним путём.
type pathRequest struct {
	Path string `json:"path"`
}

// decodePath разбирает {"path": "..."} и проверяет, что путь задан.
func decodePath(w http.ResponseWriter, r *http.Request, maxSize int64) (string, bool) {
	var req pathRequest
	if !decodeJSON(w, r, maxSize, &req) {
		return "", false
	}
	if req.Path == "" {
		apierrors.ValidationError(w, "Поле 'path' обязательно")
		return "", false
	}
	return req.Path, true
}
