package db

import (
	"context"

	"github.com/kurobane/hondana/internal/model"
)

const chapterColumns = `id, book_id, "key", name, read, bookmark, last_page_read, number`

func (db *DB) ChaptersByBookID(ctx context.Context, bookID int64) ([]model.Chapter, error) {
	return listChapters(ctx, db.DB, bookID)
}

func (t *Tx) ChaptersByBookID(ctx context.Context, bookID int64) ([]model.Chapter, error) {
	return listChapters(ctx, t.tx, bookID)
}

func (t *Tx) InsertChapters(ctx context.Context, chapters []model.Chapter) error {
	for i := range chapters {
		ch := &chapters[i]
		res, err := t.tx.ExecContext(ctx,
			`INSERT INTO chapters (book_id, "key", name, read, bookmark, last_page_read, number)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ch.BookID, ch.Key, ch.Name, ch.Read, ch.Bookmark, ch.LastPageRead, ch.Number)
		if err != nil {
			return err
		}
		if ch.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateChapterProgress touches only the user-progress fields; metadata
// (name, number) stays whatever the live store last fetched.
func (t *Tx) UpdateChapterProgress(ctx context.Context, ch *model.Chapter) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE chapters SET read = ?, bookmark = ?, last_page_read = ? WHERE id = ?`,
		ch.Read, ch.Bookmark, ch.LastPageRead, ch.ID)
	return err
}

// DeleteChapters removes a book's chapter rows. Only the restore engine's
// replace-with-merged-list path calls this, and only after the replacement
// list has been fully computed.
func (t *Tx) DeleteChapters(ctx context.Context, bookID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM chapters WHERE book_id = ?`, bookID)
	return err
}

func listChapters(ctx context.Context, q querier, bookID int64) ([]model.Chapter, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE book_id = ? ORDER BY id`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []model.Chapter
	for rows.Next() {
		var ch model.Chapter
		if err := rows.Scan(&ch.ID, &ch.BookID, &ch.Key, &ch.Name, &ch.Read, &ch.Bookmark, &ch.LastPageRead, &ch.Number); err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}
