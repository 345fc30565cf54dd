package filestore

import (
	"fmt"
	"time"
)

// unixEpoch — начало отсчёта epoch-ms.
var unixEpoch = time.Unix(0, 0)

// Probe возвращает размер файла и время модификации в epoch-ms
// одним запросом метаданных. Ошибка stat фатальна для элемента,
// некорректный mtime заменяется текущим временем.
func (s *FileStore) Probe(path string) (size int64, mtime int64, err error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка чтения метаданных %s: %w", path, err)
	}
	return info.Size(), TimeToMillis(info.ModTime(), s.now), nil
}

// TimeToMillis переводит время в epoch-ms.
// Нулевое время и время до эпохи заменяются на now().
func TimeToMillis(t time.Time, now func() time.Time) int64 {
	if t.IsZero() || t.Before(unixEpoch) {
		return now().UnixMilli()
	}
	return t.UnixMilli()
}
