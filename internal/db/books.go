package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kurobane/hondana/internal/model"
)

const bookColumns = `id, source_key, source_id, title, author, description, genres, status, cover, custom_cover, favorite, last_update, initialized, date_added, viewer, chapter_flags`

// FavoriteBooks returns the user's library in insertion order.
func (db *DB) FavoriteBooks(ctx context.Context) ([]model.Book, error) {
	return listBooks(ctx, db.DB, `SELECT `+bookColumns+` FROM books WHERE favorite = 1 ORDER BY id`)
}

// BookByKey looks a book up by its business key. Returns (nil, nil) when no
// row matches.
func (db *DB) BookByKey(ctx context.Context, sourceKey string, sourceID int64) (*model.Book, error) {
	return bookByKey(ctx, db.DB, sourceKey, sourceID)
}

func (t *Tx) BookByKey(ctx context.Context, sourceKey string, sourceID int64) (*model.Book, error) {
	return bookByKey(ctx, t.tx, sourceKey, sourceID)
}

// InsertBook inserts b and fills in its row id.
func (t *Tx) InsertBook(ctx context.Context, b *model.Book) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO books (source_key, source_id, title, author, description, genres, status, cover, custom_cover, favorite, last_update, initialized, date_added, viewer, chapter_flags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.SourceKey, b.SourceID, b.Title, b.Author, b.Description, joinGenres(b.Genres),
		b.Status, b.Cover, b.CustomCover, b.Favorite, b.LastUpdate, b.Initialized,
		b.DateAdded, b.Viewer, b.ChapterFlags)
	if err != nil {
		return err
	}
	b.ID, err = res.LastInsertId()
	return err
}

func (t *Tx) UpdateBook(ctx context.Context, b *model.Book) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, description = ?, genres = ?, status = ?, cover = ?, custom_cover = ?, favorite = ?, last_update = ?, initialized = ?, date_added = ?, viewer = ?, chapter_flags = ?
		 WHERE id = ?`,
		b.Title, b.Author, b.Description, joinGenres(b.Genres), b.Status, b.Cover,
		b.CustomCover, b.Favorite, b.LastUpdate, b.Initialized, b.DateAdded,
		b.Viewer, b.ChapterFlags, b.ID)
	return err
}

func bookByKey(ctx context.Context, q querier, sourceKey string, sourceID int64) (*model.Book, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE source_key = ? AND source_id = ?`, sourceKey, sourceID)
	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func listBooks(ctx context.Context, q querier, query string, args ...any) ([]model.Book, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (*model.Book, error) {
	var b model.Book
	var genres string
	err := row.Scan(&b.ID, &b.SourceKey, &b.SourceID, &b.Title, &b.Author, &b.Description,
		&genres, &b.Status, &b.Cover, &b.CustomCover, &b.Favorite, &b.LastUpdate,
		&b.Initialized, &b.DateAdded, &b.Viewer, &b.ChapterFlags)
	if err != nil {
		return nil, err
	}
	b.Genres = splitGenres(genres)
	return &b, nil
}

// Genres are stored as a single comma-separated column, matching how
// sources report them.
func joinGenres(genres []string) string {
	return strings.Join(genres, ", ")
}

func splitGenres(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			genres = append(genres, p)
		}
	}
	return genres
}
