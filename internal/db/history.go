package db

import (
	"context"

	"github.com/kurobane/hondana/internal/model"
)

func (db *DB) HistoriesByBookID(ctx context.Context, bookID int64) ([]model.History, error) {
	return listHistories(ctx, db.DB, bookID)
}

func (t *Tx) HistoriesByBookID(ctx context.Context, bookID int64) ([]model.History, error) {
	return listHistories(ctx, t.tx, bookID)
}

func (t *Tx) UpsertHistory(ctx context.Context, h *model.History) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO history (book_id, chapter_key, read_at, read_duration, progress)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(book_id, chapter_key) DO UPDATE SET
		 read_at=excluded.read_at, read_duration=excluded.read_duration, progress=excluded.progress`,
		h.BookID, h.ChapterKey, h.ReadAt, h.ReadDuration, h.Progress)
	return err
}

func listHistories(ctx context.Context, q querier, bookID int64) ([]model.History, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, book_id, chapter_key, read_at, read_duration, progress
		 FROM history WHERE book_id = ? ORDER BY read_at DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []model.History
	for rows.Next() {
		var h model.History
		if err := rows.Scan(&h.ID, &h.BookID, &h.ChapterKey, &h.ReadAt, &h.ReadDuration, &h.Progress); err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}
