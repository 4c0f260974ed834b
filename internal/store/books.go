// books.go -- Book and comment queries.
//
// Owner snapshots are stored as JSONB and never joined back to users.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const bookColumns = `id, title, author, genre, summary, rating, google_book_id,
	created_by, last_modified_by, entered, last_modified`

func scanBook(row pgx.Row) (*domain.Book, error) {
	var b domain.Book
	var rating int16
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.Summary, &rating, &b.GoogleBookID,
		&b.CreatedBy, &b.LastModifiedBy, &b.Entered, &b.LastModified)
	if err != nil {
		return nil, err
	}
	b.Rating = domain.Rating(rating)
	return &b, nil
}

// GetBook fetches a book with all of its comments, oldest comment first.
func (s *PostgresStore) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	b, err := scanBook(s.pool.QueryRow(ctx, "SELECT "+bookColumns+" FROM books WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching book %s: %w", id, err)
	}
	if err := s.attachComments(ctx, []*domain.Book{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBooks returns one page of books, newest first. page is zero-based.
func (s *PostgresStore) ListBooks(ctx context.Context, page, size int) (domain.Page[*domain.Book], error) {
	out := domain.Page[*domain.Book]{Number: page, Size: size, Content: []*domain.Book{}}

	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM books").Scan(&out.TotalElements); err != nil {
		return out, fmt.Errorf("counting books: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+bookColumns+" FROM books ORDER BY entered DESC, id LIMIT $1 OFFSET $2",
		size, page*size)
	if err != nil {
		return out, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return out, fmt.Errorf("scanning book: %w", err)
		}
		out.Content = append(out.Content, b)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterating books: %w", err)
	}

	if err := s.attachComments(ctx, out.Content); err != nil {
		return out, err
	}
	return out, nil
}

// attachComments loads comments for every book in one query.
func (s *PostgresStore) attachComments(ctx context.Context, books []*domain.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]string, len(books))
	byID := make(map[uuid.UUID]*domain.Book, len(books))
	for i, b := range books {
		ids[i] = b.ID.String()
		byID[b.ID] = b
		b.Comments = []domain.Comment{}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, book_id, text, owner, entered, deleted, deleted_by
		FROM comments WHERE book_id = ANY($1::uuid[]) ORDER BY entered, id`, ids)
	if err != nil {
		return fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Comment
		var bookID uuid.UUID
		if err := rows.Scan(&c.ID, &bookID, &c.Text, &c.Owner, &c.Entered, &c.Deleted, &c.DeletedBy); err != nil {
			return fmt.Errorf("scanning comment: %w", err)
		}
		if b, ok := byID[bookID]; ok {
			b.Comments = append(b.Comments, c)
		}
	}
	return rows.Err()
}

// CreateBook inserts b without comments. The caller sets ID and owner snapshots.
func (s *PostgresStore) CreateBook(ctx context.Context, b *domain.Book) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.Title, b.Author, b.Genre, b.Summary, int16(b.Rating), b.GoogleBookID,
		b.CreatedBy, b.LastModifiedBy, b.Entered, b.LastModified)
	if err != nil {
		return fmt.Errorf("creating book: %w", err)
	}
	return nil
}

// UpdateBook overwrites the editable fields. CreatedBy and Entered are kept.
func (s *PostgresStore) UpdateBook(ctx context.Context, b *domain.Book) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE books
		SET title = $2, author = $3, genre = $4, summary = $5, rating = $6, google_book_id = $7,
		    last_modified_by = $8, last_modified = $9
		WHERE id = $1`,
		b.ID, b.Title, b.Author, b.Genre, b.Summary, int16(b.Rating), b.GoogleBookID,
		b.LastModifiedBy, b.LastModified)
	if err != nil {
		return fmt.Errorf("updating book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBook removes a book; its comments cascade.
func (s *PostgresStore) DeleteBook(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM books WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddComment appends c to the book.
func (s *PostgresStore) AddComment(ctx context.Context, bookID uuid.UUID, c *domain.Comment) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO comments (id, book_id, text, owner, entered)
		SELECT $1, id, $3, $4, $5 FROM books WHERE id = $2`,
		c.ID, bookID, c.Text, c.Owner, c.Entered)
	if err != nil {
		return fmt.Errorf("adding comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCommentDeleted soft-deletes a comment, recording who removed it.
func (s *PostgresStore) MarkCommentDeleted(ctx context.Context, bookID, commentID uuid.UUID, deletedBy string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE comments SET deleted = true, deleted_by = $3 WHERE id = $2 AND book_id = $1",
		bookID, commentID, deletedBy)
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
