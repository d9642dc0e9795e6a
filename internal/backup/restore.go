package backup

import (
	"context"
	"log"
	"strings"

	"github.com/kurobane/hondana/internal/db"
	"github.com/kurobane/hondana/internal/model"
)

// Settings is the slice of the preference store the restore engine touches.
type Settings interface {
	EnablePerCategorySettings() error
}

// Result reports how much of a snapshot was actually processed, so a
// partial restore is distinguishable from a clean one.
type Result struct {
	BooksRestored    int
	ChaptersRestored int
}

// ProgressFunc receives (index, total, bookTitle) while a restore walks the
// snapshot. UI feedback only.
type ProgressFunc func(index, total int, title string)

// Engine merges a decoded snapshot into the live store. The whole restore
// runs inside one transaction; per-entity failures are logged and skipped
// rather than aborting it, but a cancellation rolls everything back since a
// half-merged library is worse than a failed restore.
type Engine struct {
	DB       *db.DB
	Settings Settings
}

func (e *Engine) Restore(ctx context.Context, s *Snapshot) (Result, error) {
	return e.restore(ctx, s, nil)
}

func (e *Engine) RestoreWithProgress(ctx context.Context, s *Snapshot, progress ProgressFunc) (Result, error) {
	return e.restore(ctx, s, progress)
}

// RestoreBytes decodes b via the legacy decode chain and restores it.
func (e *Engine) RestoreBytes(ctx context.Context, b []byte) (Result, error) {
	s, err := LoadDump(b)
	if err != nil {
		return Result{}, err
	}
	return e.restore(ctx, s, nil)
}

func (e *Engine) restore(ctx context.Context, s *Snapshot, progress ProgressFunc) (Result, error) {
	var res Result
	err := e.DB.WithTx(ctx, func(tx *db.Tx) error {
		catMap, err := e.reconcileCategories(ctx, tx, s.Categories)
		if err != nil {
			return err
		}

		total := len(s.Library)
		for i := range s.Library {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := &s.Library[i]
			if progress != nil {
				progress(i, total, rec.Title)
			}

			chapters, err := e.restoreBook(ctx, tx, rec, catMap)
			if err != nil {
				log.Printf("restore: skipping book %q (%s/%d): %v", rec.Title, rec.SourceKey, rec.SourceID, err)
				continue
			}
			res.BooksRestored++
			res.ChaptersRestored += chapters
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// reconcileCategories creates snapshot categories missing from the live
// store (appended after the existing ones) and maps snapshot ordinals to
// live category ids by case-insensitive name. Ordinals that still resolve
// to nothing are dropped from book memberships.
func (e *Engine) reconcileCategories(ctx context.Context, tx *db.Tx, records []CategoryRecord) (map[int]int64, error) {
	live, err := tx.Categories(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]model.Category, len(live))
	maxOrder := 0
	for _, c := range live {
		byName[strings.ToLower(c.Name)] = c
		if c.Order > maxOrder {
			maxOrder = c.Order
		}
	}

	for _, rec := range records {
		if _, ok := byName[strings.ToLower(rec.Name)]; ok {
			continue
		}
		maxOrder++
		c := recordToCategory(rec, maxOrder)
		if err := tx.InsertCategory(ctx, &c); err != nil {
			log.Printf("restore: create category %q: %v", rec.Name, err)
			continue
		}
		byName[strings.ToLower(c.Name)] = c
	}

	ordinalToID := make(map[int]int64, len(records))
	for ord, rec := range records {
		c, ok := byName[strings.ToLower(rec.Name)]
		if !ok {
			log.Printf("restore: category %q unresolved; dropping its memberships", rec.Name)
			continue
		}
		ordinalToID[ord] = c.ID
	}

	if e.Settings != nil {
		after, err := tx.Categories(ctx)
		if err != nil {
			return nil, err
		}
		flagSets := make(map[int]struct{})
		for _, c := range after {
			if c.System() {
				continue
			}
			flagSets[c.Flags] = struct{}{}
		}
		if len(flagSets) > 1 {
			if err := e.Settings.EnablePerCategorySettings(); err != nil {
				log.Printf("restore: enable per-category settings: %v", err)
			}
		}
	}

	return ordinalToID, nil
}

func (e *Engine) restoreBook(ctx context.Context, tx *db.Tx, rec *BookRecord, catMap map[int]int64) (int, error) {
	// Find-or-create by business key; the live store must never end up
	// with two rows for the same (source_key, source_id).
	book, err := tx.BookByKey(ctx, rec.SourceKey, rec.SourceID)
	if err != nil {
		return 0, err
	}
	if book == nil {
		fresh, err := recordToBook(*rec)
		if err != nil {
			return 0, err
		}
		if insErr := tx.InsertBook(ctx, &fresh); insErr != nil {
			// A row created under the same key wins; use it instead of
			// failing the whole book.
			book, err = tx.BookByKey(ctx, rec.SourceKey, rec.SourceID)
			if err != nil {
				return 0, err
			}
			if book == nil {
				return 0, insErr
			}
		} else {
			book = &fresh
		}
	}

	// Metadata refresh plus the favorite guarantee: restoring can make a
	// book a favorite but never takes that status away.
	if book.Initialized != rec.Initialized || !book.Favorite {
		book.Title = rec.Title
		book.Author = rec.Author
		book.Description = rec.Description
		book.Genres = rec.Genres
		book.Status = rec.Status
		book.Cover = rec.Cover
		book.ChapterFlags = rec.Flags
		book.Viewer = rec.Viewer
		book.Favorite = true
		book.Initialized = book.Initialized || rec.Initialized
		if err := tx.UpdateBook(ctx, book); err != nil {
			return 0, err
		}
	}

	chapters, err := e.restoreChapters(ctx, tx, book, rec)
	if err != nil {
		log.Printf("restore: chapters of %q: %v", rec.Title, err)
	}
	if err := e.restoreCategories(ctx, tx, book, rec, catMap); err != nil {
		log.Printf("restore: categories of %q: %v", rec.Title, err)
	}
	if err := e.restoreHistories(ctx, tx, book, rec); err != nil {
		log.Printf("restore: histories of %q: %v", rec.Title, err)
	}
	e.restoreTracking(book, rec)

	return chapters, nil
}

// restoreChapters applies the freshness policy keyed on the book-level
// lastUpdate timestamp.
func (e *Engine) restoreChapters(ctx context.Context, tx *db.Tx, book *model.Book, rec *BookRecord) (int, error) {
	live, err := tx.ChaptersByBookID(ctx, book.ID)
	if err != nil {
		return 0, err
	}
	liveByKey := make(map[string]model.Chapter, len(live))
	for _, ch := range live {
		liveByKey[ch.Key] = ch
	}

	processed := 0
	seen := make(map[string]bool, len(rec.Chapters))

	if rec.LastUpdate > book.LastUpdate {
		// Snapshot is newer: the snapshot chapter list replaces the live
		// one. The full replacement is computed, with live progress merged
		// in, before any live row is deleted so a failure cannot lose
		// progress.
		merged := make([]model.Chapter, 0, len(rec.Chapters))
		for _, cr := range rec.Chapters {
			if seen[cr.Key] {
				continue
			}
			ch, err := recordToChapter(cr, book.ID)
			if err != nil {
				log.Printf("restore: %q: %v", book.Title, err)
				continue
			}
			seen[cr.Key] = true
			if lv, ok := liveByKey[cr.Key]; ok {
				ch.Read = ch.Read || lv.Read
				ch.Bookmark = ch.Bookmark || lv.Bookmark
				if lv.LastPageRead > ch.LastPageRead {
					ch.LastPageRead = lv.LastPageRead
				}
			}
			merged = append(merged, ch)
		}
		if err := tx.DeleteChapters(ctx, book.ID); err != nil {
			return 0, err
		}
		if err := tx.InsertChapters(ctx, merged); err != nil {
			return 0, err
		}
		return len(merged), nil
	}

	// Live is same-or-newer: keep the live list, merge progress in place,
	// and insert snapshot chapters the live store does not know about.
	var fresh []model.Chapter
	for _, cr := range rec.Chapters {
		if seen[cr.Key] {
			continue
		}
		seen[cr.Key] = true

		lv, ok := liveByKey[cr.Key]
		if !ok {
			ch, err := recordToChapter(cr, book.ID)
			if err != nil {
				log.Printf("restore: %q: %v", book.Title, err)
				continue
			}
			fresh = append(fresh, ch)
			continue
		}

		read := lv.Read || cr.Read
		bookmark := lv.Bookmark || cr.Bookmark
		pages := lv.LastPageRead
		if cr.LastPageRead > pages {
			pages = cr.LastPageRead
		}
		if read != lv.Read || bookmark != lv.Bookmark || pages != lv.LastPageRead {
			lv.Read, lv.Bookmark, lv.LastPageRead = read, bookmark, pages
			if err := tx.UpdateChapterProgress(ctx, &lv); err != nil {
				log.Printf("restore: chapter %q of %q: %v", cr.Key, book.Title, err)
				continue
			}
		}
		processed++
	}
	if len(fresh) > 0 {
		if err := tx.InsertChapters(ctx, fresh); err != nil {
			return processed, err
		}
		processed += len(fresh)
	}
	return processed, nil
}

func (e *Engine) restoreCategories(ctx context.Context, tx *db.Tx, book *model.Book, rec *BookRecord, catMap map[int]int64) error {
	ids := make([]int64, 0, len(rec.Categories))
	for _, ord := range rec.Categories {
		if id, ok := catMap[ord]; ok {
			ids = append(ids, id)
		}
	}
	return tx.AttachBookCategories(ctx, book.ID, ids)
}

// restoreHistories max-merges reading history by chapter key so a restore
// never regresses when a chapter was last read or for how long.
func (e *Engine) restoreHistories(ctx context.Context, tx *db.Tx, book *model.Book, rec *BookRecord) error {
	live, err := tx.HistoriesByBookID(ctx, book.ID)
	if err != nil {
		return err
	}
	byKey := make(map[string]model.History, len(live))
	for _, h := range live {
		byKey[h.ChapterKey] = h
	}

	for _, hr := range rec.Histories {
		h, err := recordToHistory(hr, book.ID)
		if err != nil {
			log.Printf("restore: history of %q: %v", book.Title, err)
			continue
		}
		if lv, ok := byKey[h.ChapterKey]; ok {
			if lv.ReadAt >= h.ReadAt && lv.ReadDuration >= h.ReadDuration && lv.Progress >= h.Progress {
				continue
			}
			if lv.ReadAt > h.ReadAt {
				h.ReadAt = lv.ReadAt
			}
			if lv.ReadDuration > h.ReadDuration {
				h.ReadDuration = lv.ReadDuration
			}
			if lv.Progress > h.Progress {
				h.Progress = lv.Progress
			}
		}
		if err := tx.UpsertHistory(ctx, &h); err != nil {
			log.Printf("restore: history of %q: %v", book.Title, err)
		}
	}
	return nil
}

// restoreTracking is a reserved extension point; tracking-service links are
// not carried by snapshots yet.
func (e *Engine) restoreTracking(book *model.Book, rec *BookRecord) {
	_ = book
	_ = rec
}
