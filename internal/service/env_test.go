package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/readflow/internal/storage/catalog"
	"github.com/bigkaa/readflow/internal/storage/filestore"
	"github.com/bigkaa/readflow/internal/storage/journal"
	"github.com/bigkaa/readflow/internal/storage/libdir"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — окружение сервисных тестов поверх реального диска.
type testEnv struct {
	dataDir  string
	root     string
	resolver *libdir.Resolver
	store    *filestore.FileStore
	journal  *journal.Journal
	importer *Importer
	books    catalog.BookRepository
	library  *LibraryService
}

// setupTestEnv создаёт директорию данных, журнал и каталог с миграциями.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dataDir := t.TempDir()
	fs := afero.NewOsFs()
	logger := testLogger()

	resolver := libdir.New(fs, dataDir, "readflow")
	root, err := resolver.Resolve()
	if err != nil {
		t.Fatalf("ошибка создания корня библиотеки: %v", err)
	}

	store := filestore.New(fs)
	jrn, err := journal.New(fs, filepath.Join(dataDir, "journal"), logger)
	if err != nil {
		t.Fatalf("ошибка создания журнала: %v", err)
	}

	dbPath := filepath.Join(dataDir, catalog.DefaultFileName)
	if _, err := catalog.Migrate(dbPath, logger); err != nil {
		t.Fatalf("ошибка миграций: %v", err)
	}
	db, err := catalog.Open(context.Background(), dbPath, logger)
	if err != nil {
		t.Fatalf("ошибка открытия каталога: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	importer := NewImporter(resolver, store, jrn, logger)
	books := catalog.NewBookRepository(db)
	library := NewLibraryService(importer, store, resolver, books,
		catalog.NewTxRunner(db), NewBookCache(16, time.Minute), logger)

	return &testEnv{
		dataDir:  dataDir,
		root:     root,
		resolver: resolver,
		store:    store,
		journal:  jrn,
		importer: importer,
		books:    books,
		library:  library,
	}
}

// writeSource создаёт исходный файл вне библиотеки.
func writeSource(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		t.Fatalf("ошибка создания исходного файла: %v", err)
	}
	return path
}

// itemDirs возвращает имена директорий элементов в корне библиотеки.
func itemDirs(t *testing.T, root string) []string {
	t.Helper()

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ошибка чтения корня библиотеки: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
