// books.go — HTTP handlers каталога книг: список, карточка, содержимое,
// корзина и позиция чтения.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/readflow/internal/api/errors"
	"github.com/bigkaa/readflow/internal/domain/model"
	"github.com/bigkaa/readflow/internal/service"
)

// BooksHandler — обработчик endpoints каталога.
type BooksHandler struct {
	library        *service.LibraryService
	content        *service.ContentService
	maxRequestSize int64
}

// NewBooksHandler создаёт обработчик endpoints каталога.
func NewBooksHandler(library *service.LibraryService, content *service.ContentService, maxRequestSize int64) *BooksHandler {
	return &BooksHandler{
		library:        library,
		content:        content,
		maxRequestSize: maxRequestSize,
	}
}

// bookListResponse — ответ со списком книг.
type bookListResponse struct {
	Items []*model.Book `json:"items"`
	Total int           `json:"total"`
}

func writeBookList(w http.ResponseWriter, books []*model.Book) {
	if books == nil {
		books = []*model.Book{}
	}
	writeJSON(w, http.StatusOK, bookListResponse{Items: books, Total: len(books)})
}

// List обрабатывает GET /api/v1/books.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.library.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeBookList(w, books)
}

// ListDeleted обрабатывает GET /api/v1/books/deleted.
func (h *BooksHandler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	books, err := h.library.ListDeleted(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeBookList(w, books)
}

// Get обрабатывает GET /api/v1/books/{id}.
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.library.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Content обрабатывает GET /api/v1/books/{id}/content.
func (h *BooksHandler) Content(w http.ResponseWriter, r *http.Request) {
	if cerr := h.content.Serve(r.Context(), w, r, chi.URLParam(r, "id")); cerr != nil {
		apierrors.WriteError(w, cerr.StatusCode, cerr.Code, cerr.Message)
	}
}

// Delete обрабатывает DELETE /api/v1/books/{id}.
// С ?purge=true книга удаляется окончательно вместе с директорией.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var err error
	if r.URL.Query().Get("purge") == "true" {
		err = h.library.Purge(r.Context(), id)
	} else {
		err = h.library.SoftDelete(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore обрабатывает POST /api/v1/books/{id}/restore.
func (h *BooksHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.library.Restore(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	book, err := h.library.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// SetPosition обрабатывает PUT /api/v1/books/{id}/position.
func (h *BooksHandler) SetPosition(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeJSON(w, r, h.maxRequestSize, &raw) {
		return
	}

	if err := h.library.SetReadPosition(r.Context(), chi.URLParam(r, "id"), raw); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
