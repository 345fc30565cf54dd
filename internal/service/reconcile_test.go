package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/readflow/internal/storage/journal"
)

func newTestReconcile(env *testEnv, opts ReconcileOptions) *ReconcileService {
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	return NewReconcileService(env.resolver, env.store, env.books, env.journal, opts, testLogger())
}

// importBook импортирует файл через сервис библиотеки и возвращает id.
func importBook(t *testing.T, env *testEnv, name string, content []byte) string {
	t.Helper()

	res, err := env.library.Import(context.Background(), ImportRequest{
		Paths: []string{writeSource(t, name, content)},
	})
	if err != nil {
		t.Fatalf("ошибка импорта: %v", err)
	}
	return res.Books[0].ID
}

func TestReconcileRunOnce_NoIssues(t *testing.T) {
	env := setupTestEnv(t)
	importBook(t, env, "good.pdf", []byte("good"))

	rs := newTestReconcile(env, ReconcileOptions{})
	result, skipped, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("ошибка reconciliation: %v", err)
	}
	if skipped {
		t.Fatal("Reconciliation пропущена")
	}

	if len(result.Issues) != 0 {
		t.Errorf("Issues: хотели 0, получили %d: %+v", len(result.Issues), result.Issues)
	}
	if result.BooksChecked != 1 || result.DirsChecked != 1 {
		t.Errorf("проверено книг %d, директорий %d", result.BooksChecked, result.DirsChecked)
	}
	if result.Summary.Ok != 1 {
		t.Errorf("Summary.Ok: хотели 1, получили %d", result.Summary.Ok)
	}
}

func TestReconcileRunOnce_OrphanedDir(t *testing.T) {
	env := setupTestEnv(t)

	// Импорт без регистрации в каталоге оставляет директорию-сироту
	records, err := env.importer.ImportPaths([]string{writeSource(t, "lost.pdf", []byte("lost"))})
	if err != nil {
		t.Fatal(err)
	}
	orphan := filepath.Join(env.root, records[0].ID)

	rs := newTestReconcile(env, ReconcileOptions{})
	result, _, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary.OrphanedDirs != 1 {
		t.Fatalf("OrphanedDirs: хотели 1, получили %d", result.Summary.OrphanedDirs)
	}
	if result.Issues[0].Path != orphan || result.Issues[0].Removed {
		t.Errorf("issue: %+v", result.Issues[0])
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Error("без cleanup директория не должна удаляться")
	}
}

func TestReconcileRunOnce_CleanupRespectsGrace(t *testing.T) {
	env := setupTestEnv(t)

	records, err := env.importer.ImportPaths([]string{
		writeSource(t, "old.pdf", []byte("old")),
		writeSource(t, "fresh.pdf", []byte("fresh")),
	})
	if err != nil {
		t.Fatal(err)
	}
	oldDir := filepath.Join(env.root, records[0].ID)
	freshDir := filepath.Join(env.root, records[1].ID)

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, past, past); err != nil {
		t.Fatal(err)
	}

	rs := newTestReconcile(env, ReconcileOptions{Cleanup: true, OrphanGrace: time.Hour})
	result, _, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary.OrphanedDirs != 2 || result.Summary.RemovedDirs != 1 {
		t.Errorf("summary: %+v", result.Summary)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("старая директория-сирота должна быть удалена")
	}
	if _, err := os.Stat(freshDir); err != nil {
		t.Error("свежая директория-сирота должна остаться")
	}
}

func TestReconcileRunOnce_SkipsPendingBatch(t *testing.T) {
	env := setupTestEnv(t)

	entry, err := env.journal.Begin(journal.OpImportPaths)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(env.root, "in-flight")
	if err := env.journal.AddItem(entry.TransactionID, dir); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		t.Fatal(err)
	}

	rs := newTestReconcile(env, ReconcileOptions{Cleanup: true})
	result, _, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary.OrphanedDirs != 0 {
		t.Errorf("директория pending-пакета не должна считаться сиротой: %+v", result.Issues)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("директория pending-пакета должна остаться")
	}
}

func TestReconcileRunOnce_MissingFile(t *testing.T) {
	env := setupTestEnv(t)
	id := importBook(t, env, "gone.pdf", []byte("gone"))

	b, err := env.books.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(b.FilePath); err != nil {
		t.Fatal(err)
	}

	rs := newTestReconcile(env, ReconcileOptions{})
	result, _, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary.MissingFiles != 1 {
		t.Fatalf("MissingFiles: хотели 1, получили %d", result.Summary.MissingFiles)
	}
	if got := result.Issues[0].BookID; got == nil || *got != id {
		t.Errorf("BookID: получено %v", got)
	}
	if result.Summary.Ok != 0 {
		t.Errorf("Summary.Ok: хотели 0, получили %d", result.Summary.Ok)
	}
}

func TestReconcileRunOnce_SizeMismatch(t *testing.T) {
	env := setupTestEnv(t)
	id := importBook(t, env, "grown.pdf", []byte("small"))

	b, err := env.books.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b.FilePath, []byte("much larger content"), 0o640); err != nil {
		t.Fatal(err)
	}

	rs := newTestReconcile(env, ReconcileOptions{})
	result, _, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary.SizeMismatches != 1 {
		t.Errorf("SizeMismatches: хотели 1, получили %d", result.Summary.SizeMismatches)
	}
}

func TestReconcileRunOnce_ConcurrentSkip(t *testing.T) {
	env := setupTestEnv(t)
	rs := newTestReconcile(env, ReconcileOptions{})

	rs.mu.Lock()
	rs.inProcess = true
	rs.mu.Unlock()

	result, skipped, err := rs.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !skipped || result != nil {
		t.Error("параллельный запуск должен быть пропущен")
	}
	if !rs.IsInProgress() {
		t.Error("IsInProgress должен возвращать true")
	}
}

func TestReconcileStartStop(t *testing.T) {
	env := setupTestEnv(t)
	rs := newTestReconcile(env, ReconcileOptions{Interval: 10 * time.Millisecond})

	rs.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	rs.Stop()
}
