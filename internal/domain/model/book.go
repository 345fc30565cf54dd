package model

import "strings"

// NewBookFromRecord формирует строку каталога из результата импорта.
// Заголовок по умолчанию — имя файла без последнего расширения.
func NewBookFromRecord(rec ImportRecord) *Book {
	mtime := rec.Mtime
	return &Book{
		ID:       rec.ID,
		Title:    TitleFromName(rec.FileName),
		FilePath: rec.FilePath,
		Format:   rec.Format,
		FileHash: rec.FileHash,
		FileSize: rec.FileSize,
		Mtime:    &mtime,
		AddedAt:  rec.AddedAt,
	}
}

// TitleFromName отрезает последнее расширение имени файла.
// Если после отрезания ничего не остаётся (".pdf"), возвращает имя целиком.
func TitleFromName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || strings.ContainsAny(name[idx+1:], "/.") || idx == len(name)-1 {
		return name
	}
	if title := name[:idx]; title != "" {
		return title
	}
	return name
}
