package backup

import (
	"context"
	"fmt"

	"github.com/kurobane/hondana/internal/db"
)

// Builder walks the live library and produces a snapshot. It only ever
// reads the store.
type Builder struct {
	DB *db.DB
}

// Build dumps every favorited book with its chapters, non-system category
// memberships and reading histories. onProgress, when non-nil, receives a
// human-readable label once per chapter processed; it is UI feedback only.
func (b *Builder) Build(ctx context.Context, onProgress func(label string)) (*Snapshot, error) {
	s := &Snapshot{}

	// Categories are dumped once globally; a book's memberships are stored
	// as ordinals into this list.
	categories, err := b.DB.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("dump categories: %w", err)
	}
	ordinalByID := make(map[int64]int)
	for _, c := range categories {
		if c.System() {
			continue
		}
		ordinalByID[c.ID] = len(s.Categories)
		s.Categories = append(s.Categories, categoryToRecord(c, len(s.Categories)))
	}

	books, err := b.DB.FavoriteBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("dump library: %w", err)
	}

	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chapters, err := b.DB.ChaptersByBookID(ctx, book.ID)
		if err != nil {
			return nil, fmt.Errorf("dump chapters of %q: %w", book.Title, err)
		}
		if onProgress != nil {
			for _, ch := range chapters {
				onProgress(fmt.Sprintf("%s: %s", book.Title, ch.Name))
			}
		}

		categoryIDs, err := b.DB.CategoryIDsByBookID(ctx, book.ID)
		if err != nil {
			return nil, fmt.Errorf("dump categories of %q: %w", book.Title, err)
		}
		var ordinals []int
		for _, id := range categoryIDs {
			if ord, ok := ordinalByID[id]; ok {
				ordinals = append(ordinals, ord)
			}
		}

		histories, err := b.DB.HistoriesByBookID(ctx, book.ID)
		if err != nil {
			return nil, fmt.Errorf("dump histories of %q: %w", book.Title, err)
		}

		s.Library = append(s.Library, bookToRecord(book, chapters, ordinals, histories))
	}

	return s, nil
}
