package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/spf13/afero"
)

// sha256Hex — эталонный SHA-256 для проверок.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TestWriteStream проверяет запись файла с подсчётом SHA-256.
func TestWriteStream(t *testing.T) {
	dir := t.TempDir()
	store := New(afero.NewOsFs())

	content := []byte("Hello, World! Тестовые данные для проверки.")
	dst := filepath.Join(dir, "original.pdf")

	result, err := store.WriteStream(dst, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}
	if result.Checksum != sha256Hex(content) {
		t.Errorf("checksum: ожидалось %s, получено %s", sha256Hex(content), result.Checksum)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ошибка чтения файла: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	// Временный файл не должен оставаться после rename
	if _, err := os.Stat(dst + tmpSuffix); !os.IsNotExist(err) {
		t.Error("временный файл не должен существовать")
	}
}

// TestWriteStream_ReadError проверяет удаление temp файла при ошибке чтения.
func TestWriteStream_ReadError(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)

	reader := iotest.TimeoutReader(bytes.NewReader(bytes.Repeat([]byte("x"), 3*ChunkSize)))
	_, err := store.WriteStream("/lib/original.pdf", reader)
	if err == nil {
		t.Fatal("ожидалась ошибка копирования")
	}

	if ok, _ := afero.Exists(fs, "/lib/original.pdf"+tmpSuffix); ok {
		t.Error("временный файл должен быть удалён")
	}
	if ok, _ := afero.Exists(fs, "/lib/original.pdf"); ok {
		t.Error("файл назначения не должен появиться")
	}
}

// TestWriteStream_EmptyFile проверяет сохранение пустого файла.
func TestWriteStream_EmptyFile(t *testing.T) {
	store := New(afero.NewMemMapFs())

	result, err := store.WriteStream("/original.txt", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}
	if result.Size != 0 {
		t.Errorf("ожидался размер 0, получено %d", result.Size)
	}
	if result.Checksum != sha256Hex(nil) {
		t.Errorf("checksum пустого файла: получено %s", result.Checksum)
	}
}

// TestWriteBytes проверяет запись буфера и checksum.
func TestWriteBytes(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)

	result, err := store.WriteBytes("/original.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	// SHA-256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if result.Checksum != want {
		t.Errorf("checksum: ожидалось %s, получено %s", want, result.Checksum)
	}

	data, _ := afero.ReadFile(fs, "/original.txt")
	if string(data) != "hello" {
		t.Errorf("содержимое: получено %q", data)
	}
}

// TestMakeItemDir_Exclusive проверяет, что директория элемента не переиспользуется.
func TestMakeItemDir_Exclusive(t *testing.T) {
	root := t.TempDir()
	store := New(afero.NewOsFs())

	dir, err := store.MakeItemDir(root, "id-1")
	if err != nil {
		t.Fatalf("ошибка создания директории: %v", err)
	}
	if dir != filepath.Join(root, "id-1") {
		t.Errorf("путь: получено %s", dir)
	}

	if _, err := store.MakeItemDir(root, "id-1"); err == nil {
		t.Error("повторное создание директории должно завершиться ошибкой")
	}
}

// TestItemFilePath проверяет формат имени сохранённого файла.
func TestItemFilePath(t *testing.T) {
	got := ItemFilePath(filepath.Join("lib", "abc"), "epub")
	want := filepath.Join("lib", "abc", "original.epub")
	if got != want {
		t.Errorf("ожидалось %s, получено %s", want, got)
	}
}

// TestRemove_File проверяет удаление файла.
func TestRemove_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)
	_ = afero.WriteFile(fs, "/lib/a.txt", []byte("a"), 0o640)

	if err := store.Remove("/lib/a.txt"); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if ok, _ := afero.Exists(fs, "/lib/a.txt"); ok {
		t.Error("файл должен быть удалён")
	}
}

// TestRemove_Directory проверяет рекурсивное удаление директории.
func TestRemove_Directory(t *testing.T) {
	root := t.TempDir()
	store := New(afero.NewOsFs())

	book := filepath.Join(root, "book")
	if err := os.MkdirAll(filepath.Join(book, "nested", "deep"), 0o750); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(book, "original.pdf"), []byte("pdf"), 0o640)
	_ = os.WriteFile(filepath.Join(book, "nested", "deep", "x"), []byte("x"), 0o640)

	if err := store.Remove(book); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if _, err := os.Stat(book); !os.IsNotExist(err) {
		t.Error("директория и все потомки должны быть удалены")
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("родительская директория не должна затрагиваться")
	}
}

// TestRemove_NotExist проверяет, что удаление отсутствующего пути не ошибка.
func TestRemove_NotExist(t *testing.T) {
	store := New(afero.NewMemMapFs())

	if err := store.Remove("/no/such/path"); err != nil {
		t.Errorf("удаление несуществующего пути не должно быть ошибкой: %v", err)
	}
}

// TestReadBase64 проверяет чтение файла в base64.
func TestReadBase64(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)
	_ = afero.WriteFile(fs, "/a.bin", []byte{0, 1, 2, 250}, 0o640)

	got, err := store.ReadBase64("/a.bin")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if got != base64.StdEncoding.EncodeToString([]byte{0, 1, 2, 250}) {
		t.Errorf("base64: получено %s", got)
	}

	if _, err := store.ReadBase64("/missing"); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла")
	}
}

// TestOpen_NotFound проверяет ошибку открытия отсутствующего файла.
func TestOpen_NotFound(t *testing.T) {
	store := New(afero.NewMemMapFs())

	_, err := store.Open("/missing.pdf")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ожидалась os.ErrNotExist, получено %v", err)
	}
}

// TestProbe проверяет размер и mtime в epoch-ms.
func TestProbe(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)
	_ = afero.WriteFile(fs, "/book.epub", bytes.Repeat([]byte("b"), 12345), 0o640)

	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := fs.Chtimes("/book.epub", mtime, mtime); err != nil {
		t.Fatal(err)
	}

	size, ms, err := store.Probe("/book.epub")
	if err != nil {
		t.Fatalf("ошибка probe: %v", err)
	}
	if size != 12345 {
		t.Errorf("размер: ожидалось 12345, получено %d", size)
	}
	if ms != mtime.UnixMilli() {
		t.Errorf("mtime: ожидалось %d, получено %d", mtime.UnixMilli(), ms)
	}
}

// TestProbe_PreEpochFallsBackToNow проверяет замену mtime до эпохи текущим временем.
func TestProbe_PreEpochFallsBackToNow(t *testing.T) {
	fs := afero.NewMemMapFs()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewWithClock(fs, func() time.Time { return fixed })
	_ = afero.WriteFile(fs, "/old.pdf", []byte("x"), 0o640)

	old := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = fs.Chtimes("/old.pdf", old, old)

	_, ms, err := store.Probe("/old.pdf")
	if err != nil {
		t.Fatalf("ошибка probe: %v", err)
	}
	if ms != fixed.UnixMilli() {
		t.Errorf("ожидалось текущее время %d, получено %d", fixed.UnixMilli(), ms)
	}
}

// TestProbe_Missing проверяет фатальность ошибки stat.
func TestProbe_Missing(t *testing.T) {
	store := New(afero.NewMemMapFs())

	if _, _, err := store.Probe("/vanished.pdf"); err == nil {
		t.Error("ожидалась ошибка для исчезнувшего пути")
	}
}

// TestTimeToMillis проверяет преобразование времени.
func TestTimeToMillis(t *testing.T) {
	now := func() time.Time { return time.UnixMilli(42) }

	tests := []struct {
		name string
		in   time.Time
		want int64
	}{
		{"эпоха", time.Unix(0, 0), 0},
		{"обычное время", time.UnixMilli(1700000000123), 1700000000123},
		{"нулевое время", time.Time{}, 42},
		{"до эпохи", time.Unix(-10, 0), 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeToMillis(tt.in, now); got != tt.want {
				t.Errorf("ожидалось %d, получено %d", tt.want, got)
			}
		})
	}
}

// TestListDirs проверяет, что возвращаются только директории.
func TestListDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)
	_ = fs.MkdirAll("/lib/a", 0o750)
	_ = fs.MkdirAll("/lib/b", 0o750)
	_ = afero.WriteFile(fs, "/lib/stray.txt", []byte("x"), 0o640)

	dirs, err := store.ListDirs("/lib")
	if err != nil {
		t.Fatalf("ошибка сканирования: %v", err)
	}
	if len(dirs) != 2 {
		t.Errorf("ожидалось 2 директории, получено %d", len(dirs))
	}
}
