package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/readflow/internal/domain/model"
	"github.com/bigkaa/readflow/internal/storage/catalog"
)

func TestLibraryImport_New(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	a := writeSource(t, "Война и мир.epub", []byte("war and peace"))
	b := writeSource(t, "notes", []byte("notes"))

	res, err := env.library.Import(ctx, ImportRequest{Paths: []string{a, b}})
	if err != nil {
		t.Fatalf("ошибка импорта: %v", err)
	}
	if res.Summary.Imported != 2 || res.Summary.Deduped != 0 {
		t.Errorf("summary: %+v", res.Summary)
	}
	if len(res.Books) != 2 {
		t.Fatalf("ожидалось 2 книги, получено %d", len(res.Books))
	}
	if res.Books[0].Title != "Война и мир" {
		t.Errorf("title: получено %q", res.Books[0].Title)
	}
	if res.Books[1].Title != "notes" || res.Books[1].Format != "pdf" {
		t.Errorf("книга без расширения: %q/%s", res.Books[1].Title, res.Books[1].Format)
	}

	stored, err := env.books.GetByID(ctx, res.Books[0].ID)
	if err != nil {
		t.Fatalf("книга не зарегистрирована: %v", err)
	}
	if stored.FileHash != sha256Hex([]byte("war and peace")) {
		t.Errorf("file_hash: получено %s", stored.FileHash)
	}
}

func TestLibraryImport_DedupWithinBatch(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	a := writeSource(t, "a.pdf", []byte("same"))
	b := writeSource(t, "b.pdf", []byte("same"))
	payload := model.FilePayload{Name: "c.pdf", DataBase64: base64.StdEncoding.EncodeToString([]byte("same"))}

	res, err := env.library.Import(ctx, ImportRequest{Paths: []string{a, b}, Files: []model.FilePayload{payload}})
	if err != nil {
		t.Fatalf("ошибка импорта: %v", err)
	}
	if res.Summary.Imported != 1 || res.Summary.Deduped != 2 {
		t.Errorf("summary: %+v", res.Summary)
	}
	if dirs := itemDirs(t, env.root); len(dirs) != 1 {
		t.Errorf("ожидалась 1 директория, получено %d", len(dirs))
	}
}

func TestLibraryImport_DedupAgainstCatalog(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	src := writeSource(t, "book.pdf", []byte("content"))

	first, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}

	if second.Summary.Imported != 0 || second.Summary.Deduped != 1 {
		t.Errorf("summary: %+v", second.Summary)
	}
	if len(second.Books) != 1 || second.Books[0].ID != first.Books[0].ID {
		t.Error("повторный импорт должен вернуть существующую книгу")
	}
	if dirs := itemDirs(t, env.root); len(dirs) != 1 {
		t.Errorf("повторный импорт не должен копировать файл, директорий: %d", len(dirs))
	}
}

func TestLibraryImport_RestoresDeleted(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	src := writeSource(t, "book.pdf", []byte("content"))

	first, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	id := first.Books[0].ID
	if err := env.library.SoftDelete(ctx, id); err != nil {
		t.Fatal(err)
	}

	res, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Books[0].ID != id || res.Books[0].IsDeleted() {
		t.Error("книга из корзины должна вернуться восстановленной")
	}

	b, err := env.library.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if b.IsDeleted() {
		t.Error("книга должна быть восстановлена в каталоге")
	}
}

func TestLibraryImport_FailureLeavesNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	good := writeSource(t, "good.pdf", []byte("good"))

	// Payload без имени проходит дедупликацию и падает в конвейере,
	// когда файлы из путей уже скопированы
	_, err := env.library.Import(ctx, ImportRequest{
		Paths: []string{good},
		Files: []model.FilePayload{{Name: "", DataBase64: "aGk="}},
	})
	if err == nil {
		t.Fatal("ожидалась ошибка импорта")
	}

	if dirs := itemDirs(t, env.root); len(dirs) != 0 {
		t.Errorf("после ошибки остались директории: %v", dirs)
	}
	books, err := env.library.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 0 {
		t.Errorf("после ошибки каталог должен быть пуст, получено %d", len(books))
	}
}

func TestLibraryImport_MissingPath(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.library.Import(context.Background(), ImportRequest{
		Paths: []string{filepath.Join(t.TempDir(), "missing.pdf")},
	})
	var itemErr *ItemError
	if !errors.As(err, &itemErr) || itemErr.Index != 0 {
		t.Errorf("ожидалась ItemError для элемента 0, получено %v", err)
	}
}

func TestLibrary_SoftDeleteRestore(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	src := writeSource(t, "book.pdf", []byte("content"))

	res, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Books[0].ID

	// Заполняем кэш, чтобы проверить инвалидацию
	if _, err := env.library.Get(ctx, id); err != nil {
		t.Fatal(err)
	}

	if err := env.library.SoftDelete(ctx, id); err != nil {
		t.Fatalf("ошибка удаления в корзину: %v", err)
	}
	b, err := env.library.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !b.IsDeleted() {
		t.Error("Get должен видеть deleted_at после SoftDelete")
	}

	deleted, _ := env.library.ListDeleted(ctx)
	active, _ := env.library.List(ctx)
	if len(deleted) != 1 || len(active) != 0 {
		t.Errorf("корзина: %d, активные: %d", len(deleted), len(active))
	}
	if _, err := os.Stat(b.FilePath); err != nil {
		t.Error("файл книги в корзине должен оставаться на диске")
	}

	if err := env.library.Restore(ctx, id); err != nil {
		t.Fatalf("ошибка восстановления: %v", err)
	}
	stats, err := env.library.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Active != 1 || stats.Deleted != 0 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestLibrary_Purge(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	src := writeSource(t, "book.pdf", []byte("content"))

	res, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Books[0].ID

	if err := env.library.Purge(ctx, id); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if _, err := env.library.Get(ctx, id); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.root, id)); !os.IsNotExist(err) {
		t.Error("директория книги должна быть удалена")
	}

	if err := env.library.Purge(ctx, id); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestLibrary_OpenContent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	src := writeSource(t, "book.txt", []byte("text body"))

	res, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Books[0].ID

	f, b, err := env.library.OpenContent(ctx, id)
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "text body" || b.ID != id {
		t.Errorf("содержимое: %q", data)
	}

	opened, err := env.library.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if opened.LastOpenedAt == nil {
		t.Error("last_opened_at должен быть выставлен")
	}
}

func TestLibrary_SetReadPosition(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	src := writeSource(t, "book.pdf", []byte("content"))

	res, err := env.library.Import(ctx, ImportRequest{Paths: []string{src}})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Books[0].ID

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"только страница", `{"page":3}`, false},
		{"полная позиция", `{"page":12,"scroll_y":0.5,"zoom":1.25,"fit_mode":"fitWidth"}`, false},
		{"без страницы", `{"zoom":1}`, true},
		{"страница строкой", `{"page":"3"}`, true},
		{"неизвестный fit_mode", `{"page":1,"fit_mode":"stretch"}`, true},
		{"не объект", `[1,2]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.library.SetReadPosition(ctx, id, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ошибка: %v, ожидалась ошибка: %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPosition) {
				t.Errorf("ожидалась ErrInvalidPosition, получено %v", err)
			}
		})
	}

	b, err := env.library.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if b.LastReadPosition == nil {
		t.Fatal("позиция чтения должна быть сохранена")
	}
	var pos map[string]any
	if err := json.Unmarshal([]byte(*b.LastReadPosition), &pos); err != nil {
		t.Fatal(err)
	}
	if pos["page"] != float64(12) || pos["fit_mode"] != "fitWidth" {
		t.Errorf("сохранённая позиция: %v", pos)
	}

	if err := env.library.SetReadPosition(ctx, "missing", json.RawMessage(`{"page":1}`)); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}
