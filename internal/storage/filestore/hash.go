package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ChunkSize — размер блока чтения при потоковом хэшировании (8 КБ).
// Потребление памяти не зависит от размера файла.
const ChunkSize = 8192

// HashReader читает источник блоками по ChunkSize и возвращает
// SHA-256 в hex (нижний регистр) и число прочитанных байт.
// Завершённые блоки повторно не читаются.
func HashReader(r io.Reader) (string, int64, error) {
	hasher := sha256.New()
	buf := make([]byte, ChunkSize)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", total, fmt.Errorf("ошибка чтения файла: %w", err)
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), total, nil
}

// HashBytes вычисляет SHA-256 уже материализованного буфера одним вызовом.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile вычисляет SHA-256 существующего файла потоково.
func (s *FileStore) HashFile(path string) (string, int64, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer f.Close()

	checksum, n, err := HashReader(f)
	if err != nil {
		return "", n, fmt.Errorf("ошибка вычисления checksum %s: %w", path, err)
	}
	return checksum, n, nil
}
