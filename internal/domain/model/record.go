// Пакет model — доменные модели модуля библиотеки.
// ImportRecord — результат импорта одного файла, Book — строка каталога.
package model

// ImportRecord — результат импорта файла в библиотеку.
// Создаётся один раз конвейером импорта и больше не изменяется.
// JSON-теги совпадают с форматом, который ожидает UI.
type ImportRecord struct {
	// ID — уникальный идентификатор (UUID v4), имя поддиректории и первичный ключ каталога
	ID string `json:"id"`

	// FileName — исходное имя файла без изменений
	FileName string `json:"file_name"`

	// FilePath — итоговый путь: <library_root>/<id>/original.<format>
	FilePath string `json:"file_path"`

	// FileHash — SHA-256 содержимого в нижнем регистре (hex)
	FileHash string `json:"file_hash"`

	// FileSize — размер сохранённой копии в байтах
	FileSize int64 `json:"file_size"`

	// Mtime — время модификации источника (epoch-ms)
	Mtime int64 `json:"mtime"`

	// Format — расширение файла в нижнем регистре
	Format string `json:"format"`

	// AddedAt — время самого импорта (epoch-ms)
	AddedAt int64 `json:"added_at"`
}

// HashResult — отпечаток файла без копирования в библиотеку.
type HashResult struct {
	FileName string `json:"file_name"`
	FileHash string `json:"file_hash"`
	FileSize int64  `json:"file_size"`
	Mtime    int64  `json:"mtime"`
	Format   string `json:"format"`
}

// FilePayload — файл, переданный в памяти (drag-and-drop, вставка).
type FilePayload struct {
	// Name — отображаемое имя файла
	Name string `json:"name"`
	// DataBase64 — содержимое в стандартной base64-кодировке
	DataBase64 string `json:"data_base64"`
}

// Book — запись каталога (таблица books).
// Необязательные поля представлены указателями (NULL в SQLite).
type Book struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Author             *string `json:"author,omitempty"`
	CoverPath          *string `json:"cover_path,omitempty"`
	FilePath           string  `json:"file_path"`
	Format             string  `json:"format"`
	FileHash           string  `json:"file_hash"`
	FileSize           int64   `json:"file_size"`
	Mtime              *int64  `json:"mtime,omitempty"`
	LastOpenedAt       *int64  `json:"last_opened_at,omitempty"`
	DeletedAt          *int64  `json:"deleted_at,omitempty"`
	LastReadPosition   *string `json:"last_read_position,omitempty"`
	ProcessedForSearch bool    `json:"processed_for_search"`
	AddedAt            int64   `json:"added_at"`
}

// IsDeleted проверяет, помечена ли книга как удалённая.
func (b *Book) IsDeleted() bool {
	return b.DeletedAt != nil
}

// ImportSummary — итог импорта с учётом дедупликации.
type ImportSummary struct {
	Imported int `json:"imported"`
	Deduped  int `json:"deduped"`
}
