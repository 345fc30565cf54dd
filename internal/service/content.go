// content.go — отдача сохранённого файла книги.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"

	apierrors "github.com/bigkaa/readflow/internal/api/errors"
	"github.com/bigkaa/readflow/internal/api/middleware"
	"github.com/bigkaa/readflow/internal/storage/catalog"
)

// ContentService — отдача содержимого книг reader-у.
type ContentService struct {
	library *LibraryService
	logger  *slog.Logger
}

// NewContentService создаёт сервис отдачи содержимого.
func NewContentService(library *LibraryService, logger *slog.Logger) *ContentService {
	return &ContentService{
		library: library,
		logger:  logger.With(slog.String("component", "content_service")),
	}
}

// ContentError — ошибка отдачи с HTTP-кодом.
type ContentError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Serve отдаёт файл книги через http.ServeContent.
// Поддерживает Range requests (206 Partial Content) и ETag (If-None-Match).
// Книги в корзине не отдаются.
func (s *ContentService) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) *ContentError {
	b, err := s.library.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return &ContentError{
				StatusCode: http.StatusNotFound,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Книга %s не найдена", id),
			}
		}
		return s.internal(id, err)
	}
	if b.IsDeleted() {
		return &ContentError{
			StatusCode: http.StatusConflict,
			Code:       apierrors.CodeConflict,
			Message:    fmt.Sprintf("Книга %s находится в корзине", id),
		}
	}

	file, _, err := s.library.OpenContent(ctx, id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Файл книги не найден на диске",
				slog.String("id", id),
				slog.String("path", b.FilePath),
			)
			return &ContentError{
				StatusCode: http.StatusNotFound,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Файл книги %s не найден на диске", id),
			}
		}
		return s.internal(id, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return s.internal(id, err)
	}

	// Тип содержимого определяется по сигнатуре, затем позиция возвращается в начало
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return s.internal(id, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return s.internal(id, err)
	}

	name := b.Title + "." + b.Format
	w.Header().Set("Content-Type", mtype.String())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.Header().Set("ETag", fmt.Sprintf("\"%s\"", b.FileHash))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, name, stat.ModTime(), file)

	middleware.OperationsTotal.WithLabelValues("content", "success").Inc()
	s.logger.Debug("Файл книги отдан",
		slog.String("id", id),
		slog.String("mime", mtype.String()),
		slog.Int64("size", stat.Size()),
	)
	return nil
}

func (s *ContentService) internal(id string, err error) *ContentError {
	s.logger.Error("Ошибка отдачи файла книги",
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
	middleware.OperationsTotal.WithLabelValues("content", "error").Inc()
	return &ContentError{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    "Ошибка чтения файла книги",
	}
}
