package filestore

import (
	"errors"
	"path/filepath"
	"strings"
)

// DefaultFormat — формат для файлов без расширения.
// Каждый сохранённый файл получает пригодное расширение.
const DefaultFormat = "pdf"

// ErrInvalidName — из пути невозможно извлечь имя файла.
var ErrInvalidName = errors.New("некорректное имя файла")

// InferFormat возвращает расширение имени файла в нижнем регистре:
// подстроку после последней точки базового имени.
// Имя без точки, имя вида ".bashrc" и имя с точкой в конце
// получают DefaultFormat.
func InferFormat(name string) string {
	base := filepath.Base(name)
	idx := strings.LastIndex(base, ".")
	if idx <= 0 || idx == len(base)-1 {
		return DefaultFormat
	}
	return strings.ToLower(base[idx+1:])
}

// FileName извлекает имя файла из пути.
// Пустой путь, корень и пути, оканчивающиеся на "..", дают ErrInvalidName.
func FileName(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidName
	}
	base := filepath.Base(filepath.Clean(path))
	switch base {
	case ".", "..", string(filepath.Separator):
		return "", ErrInvalidName
	}
	if strings.HasSuffix(filepath.ToSlash(path), "/..") {
		return "", ErrInvalidName
	}
	return base, nil
}
