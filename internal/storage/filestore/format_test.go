package filestore

import (
	"errors"
	"testing"
)

// TestInferFormat проверяет извлечение расширения.
func TestInferFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"нижний регистр", "book.pdf", "pdf"},
		{"смешанный регистр", "/tmp/book.EPUB", "epub"},
		{"последняя точка", "archive.tar.GZ", "gz"},
		{"без расширения", "README", DefaultFormat},
		{"скрытый файл", ".bashrc", DefaultFormat},
		{"скрытый файл с расширением", ".notes.md", "md"},
		{"точка в конце", "draft.", DefaultFormat},
		{"точка в директории", "/home/u.name/README", DefaultFormat},
		{"пустое имя", "", DefaultFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferFormat(tt.in); got != tt.want {
				t.Errorf("InferFormat(%q): ожидалось %q, получено %q", tt.in, tt.want, got)
			}
		})
	}
}

// TestFileName проверяет извлечение имени файла из пути.
func TestFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"/tmp/book.EPUB", "book.EPUB", false},
		{"notes.txt", "notes.txt", false},
		{"/tmp/dir/", "dir", false},
		{"", "", true},
		{"/", "", true},
		{"..", "", true},
		{"/tmp/a/..", "", true},
		{".", "", true},
	}

	for _, tt := range tests {
		got, err := FileName(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidName) {
				t.Errorf("FileName(%q): ожидалась ErrInvalidName, получено %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("FileName(%q): ожидалось %q, получено %q (%v)", tt.in, tt.want, got, err)
		}
	}
}
