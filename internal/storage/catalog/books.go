package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bigkaa/readflow/internal/domain/model"
)

// untitled — заголовок строки без title.
const untitled = "Untitled"

// BookRepository — интерфейс CRUD для таблицы books.
type BookRepository interface {
	// Register добавляет книгу. Дубликат file_hash → ErrConflict.
	Register(ctx context.Context, b *model.Book) error
	// GetByID возвращает книгу по идентификатору.
	GetByID(ctx context.Context, id string) (*model.Book, error)
	// FindByHash возвращает книгу с указанным SHA-256, включая удалённые.
	FindByHash(ctx context.Context, hash string) (*model.Book, error)
	// List возвращает активные (deleted=false) или удалённые (deleted=true) книги.
	List(ctx context.Context, deleted bool) ([]*model.Book, error)
	// ListAll возвращает все строки каталога.
	ListAll(ctx context.Context) ([]*model.Book, error)
	// SoftDelete выставляет deleted_at.
	SoftDelete(ctx context.Context, id string, deletedAt int64) error
	// Restore сбрасывает deleted_at.
	Restore(ctx context.Context, id string) error
	// TouchOpened обновляет last_opened_at.
	TouchOpened(ctx context.Context, id string, openedAt int64) error
	// UpdateReadPosition сохраняет позицию чтения (JSON).
	UpdateReadPosition(ctx context.Context, id, position string) error
	// Delete удаляет строку книги и связанные с ней чаты и черновики.
	Delete(ctx context.Context, id string) error
	// Count возвращает число активных или удалённых книг.
	Count(ctx context.Context, deleted bool) (int, error)
}

type bookRepo struct {
	db DBTX
}

// NewBookRepository создаёт репозиторий каталога книг.
func NewBookRepository(db DBTX) BookRepository {
	return &bookRepo{db: db}
}

const bookColumns = `id, title, author, cover_path, file_path, format, file_hash, file_size,
	mtime, last_opened_at, deleted_at, last_read_position, processed_for_search, added_at`

func (r *bookRepo) Register(ctx context.Context, b *model.Book) error {
	query := `
		INSERT INTO books (` + bookColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.Title, b.Author, b.CoverPath, b.FilePath, b.Format, nullString(b.FileHash),
		b.FileSize, b.Mtime, b.LastOpenedAt, b.DeletedAt, b.LastReadPosition,
		b.ProcessedForSearch, b.AddedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: книга с таким хэшем или ID уже зарегистрирована", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации книги: %w", err)
	}
	return nil
}

func (r *bookRepo) GetByID(ctx context.Context, id string) (*model.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = ?`

	b, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения книги: %w", err)
	}
	return b, nil
}

func (r *bookRepo) FindByHash(ctx context.Context, hash string) (*model.Book, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + bookColumns + ` FROM books WHERE file_hash = ? LIMIT 1`

	b, err := scanBook(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска книги по хэшу: %w", err)
	}
	return b, nil
}

func (r *bookRepo) List(ctx context.Context, deleted bool) ([]*model.Book, error) {
	// Активные — по недавности открытия, удалённые — по времени удаления
	query := `SELECT ` + bookColumns + ` FROM books
		WHERE deleted_at IS NULL
		ORDER BY COALESCE(last_opened_at, added_at) DESC`
	if deleted {
		query = `SELECT ` + bookColumns + ` FROM books
			WHERE deleted_at IS NOT NULL
			ORDER BY deleted_at DESC`
	}
	return r.query(ctx, query)
}

func (r *bookRepo) ListAll(ctx context.Context) ([]*model.Book, error) {
	return r.query(ctx, `SELECT `+bookColumns+` FROM books ORDER BY added_at`)
}

func (r *bookRepo) SoftDelete(ctx context.Context, id string, deletedAt int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE books SET deleted_at = ? WHERE id = ?`, deletedAt, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления книги: %w", err)
	}
	return rowsAffected(res)
}

func (r *bookRepo) Restore(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE books SET deleted_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка восстановления книги: %w", err)
	}
	return rowsAffected(res)
}

func (r *bookRepo) TouchOpened(ctx context.Context, id string, openedAt int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE books SET last_opened_at = ? WHERE id = ?`, openedAt, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_opened_at: %w", err)
	}
	return rowsAffected(res)
}

func (r *bookRepo) UpdateReadPosition(ctx context.Context, id, position string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE books SET last_read_position = ? WHERE id = ?`, position, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления позиции чтения: %w", err)
	}
	return rowsAffected(res)
}

func (r *bookRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления книги: %w", err)
	}
	if err := rowsAffected(res); err != nil {
		return err
	}

	// Сессия чата и черновик книги адресуются ключом book:<id>
	key := "book:" + id
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE session_id = ?`, key); err != nil {
		return fmt.Errorf("ошибка удаления чатов книги: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, key); err != nil {
		return fmt.Errorf("ошибка удаления черновика книги: %w", err)
	}
	return nil
}

func (r *bookRepo) Count(ctx context.Context, deleted bool) (int, error) {
	query := `SELECT COUNT(*) FROM books WHERE deleted_at IS NULL`
	if deleted {
		query = `SELECT COUNT(*) FROM books WHERE deleted_at IS NOT NULL`
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта книг: %w", err)
	}
	return count, nil
}

func (r *bookRepo) query(ctx context.Context, query string, args ...any) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка книг: %w", err)
	}
	defer rows.Close()

	books := make([]*model.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования книги: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации книг: %w", err)
	}
	return books, nil
}

// scanner — общий интерфейс *sql.Row и *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBook(s scanner) (*model.Book, error) {
	var (
		b         model.Book
		title     sql.NullString
		author    sql.NullString
		cover     sql.NullString
		hash      sql.NullString
		mtime     sql.NullInt64
		opened    sql.NullInt64
		deletedAt sql.NullInt64
		position  sql.NullString
		processed sql.NullBool
	)

	err := s.Scan(
		&b.ID, &title, &author, &cover, &b.FilePath, &b.Format, &hash, &b.FileSize,
		&mtime, &opened, &deletedAt, &position, &processed, &b.AddedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Title = untitled
	if title.Valid {
		b.Title = title.String
	}
	b.FileHash = hash.String
	b.ProcessedForSearch = processed.Valid && processed.Bool
	b.Author = stringPtr(author)
	b.CoverPath = stringPtr(cover)
	b.LastReadPosition = stringPtr(position)
	b.Mtime = int64Ptr(mtime)
	b.LastOpenedAt = int64Ptr(opened)
	b.DeletedAt = int64Ptr(deletedAt)
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
