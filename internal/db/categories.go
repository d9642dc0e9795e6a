package db

import (
	"context"

	"github.com/kurobane/hondana/internal/model"
)

func (db *DB) Categories(ctx context.Context) ([]model.Category, error) {
	return listCategories(ctx, db.DB)
}

func (t *Tx) Categories(ctx context.Context) ([]model.Category, error) {
	return listCategories(ctx, t.tx)
}

// InsertCategory inserts c and fills in its row id.
func (t *Tx) InsertCategory(ctx context.Context, c *model.Category) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (name, sort_order, flags) VALUES (?, ?, ?)`,
		c.Name, c.Order, c.Flags)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (db *DB) CategoryIDsByBookID(ctx context.Context, bookID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT bc.category_id FROM book_categories bc
		 JOIN categories c ON c.id = bc.category_id
		 WHERE bc.book_id = ? ORDER BY c.sort_order`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachBookCategories adds membership links. Existing links are kept, so
// restoring can only widen a book's category memberships.
func (t *Tx) AttachBookCategories(ctx context.Context, bookID int64, categoryIDs []int64) error {
	for _, id := range categoryIDs {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO book_categories (book_id, category_id) VALUES (?, ?)`,
			bookID, id); err != nil {
			return err
		}
	}
	return nil
}

func listCategories(ctx context.Context, q querier) ([]model.Category, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, sort_order, flags FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Order, &c.Flags); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
