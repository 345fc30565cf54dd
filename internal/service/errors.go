// Пакет service — бизнес-логика readflow: конвейер импорта, каталог
// библиотеки, сверка и очистка корзины.
package service

import (
	"errors"
	"fmt"
)

// Ошибки сервисного слоя.
var (
	// ErrDecode — содержимое payload не является корректной base64.
	ErrDecode = errors.New("ошибка декодирования данных файла")
	// ErrDuplicate — книга с таким хэшем уже есть в каталоге.
	ErrDuplicate = errors.New("книга с таким содержимым уже есть в библиотеке")
	// ErrInvalidPosition — позиция чтения не соответствует ожидаемому формату.
	ErrInvalidPosition = errors.New("некорректная позиция чтения")
)

// ItemError — ошибка одного элемента пакета. Пакет прерывается
// на первой такой ошибке; Index и Source указывают на виновный элемент.
type ItemError struct {
	// Index — позиция элемента во входном списке
	Index int
	// Source — путь или имя файла элемента
	Source string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("элемент %d (%s): %v", e.Index, e.Source, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
