package backup

import (
	"fmt"

	"github.com/kurobane/hondana/internal/model"
)

// Pure conversions between live-store entities and snapshot records. The
// decode side clamps semantically invalid values instead of failing, so a
// single malformed field never costs the rest of a library.

func bookToRecord(b model.Book, chapters []model.Chapter, ordinals []int, histories []model.History) BookRecord {
	r := BookRecord{
		SourceKey:   b.SourceKey,
		SourceID:    b.SourceID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Genres:      b.Genres,
		Status:      b.Status,
		Cover:       b.Cover,
		CustomCover: b.CustomCover,
		Favorite:    b.Favorite,
		LastUpdate:  b.LastUpdate,
		Initialized: b.Initialized,
		DateAdded:   b.DateAdded,
		Viewer:      b.Viewer,
		Flags:       b.ChapterFlags,
		Categories:  ordinals,
	}

	seen := make(map[string]bool, len(chapters))
	for _, ch := range chapters {
		if seen[ch.Key] {
			continue
		}
		seen[ch.Key] = true
		r.Chapters = append(r.Chapters, chapterToRecord(ch))
	}

	for _, h := range histories {
		r.Histories = append(r.Histories, historyToRecord(h))
	}
	return r
}

func recordToBook(r BookRecord) (model.Book, error) {
	if r.SourceKey == "" {
		return model.Book{}, fmt.Errorf("book %q: missing source key", r.Title)
	}
	return model.Book{
		SourceKey:    r.SourceKey,
		SourceID:     r.SourceID,
		Title:        r.Title,
		Author:       r.Author,
		Description:  r.Description,
		Genres:       r.Genres,
		Status:       r.Status,
		Cover:        r.Cover,
		CustomCover:  r.CustomCover,
		Favorite:     r.Favorite,
		LastUpdate:   r.LastUpdate,
		Initialized:  r.Initialized,
		DateAdded:    r.DateAdded,
		Viewer:       r.Viewer,
		ChapterFlags: r.Flags,
	}, nil
}

func chapterToRecord(ch model.Chapter) ChapterRecord {
	return ChapterRecord{
		Key:          ch.Key,
		Name:         ch.Name,
		Read:         ch.Read,
		Bookmark:     ch.Bookmark,
		LastPageRead: ch.LastPageRead,
		Number:       ch.Number,
	}
}

func recordToChapter(r ChapterRecord, bookID int64) (model.Chapter, error) {
	if r.Key == "" {
		return model.Chapter{}, fmt.Errorf("chapter %q: missing key", r.Name)
	}
	pages := r.LastPageRead
	if pages < 0 {
		pages = 0
	}
	return model.Chapter{
		BookID:       bookID,
		Key:          r.Key,
		Name:         r.Name,
		Read:         r.Read,
		Bookmark:     r.Bookmark,
		LastPageRead: pages,
		Number:       r.Number,
	}, nil
}

func categoryToRecord(c model.Category, ordinal int) CategoryRecord {
	return CategoryRecord{
		Name:  c.Name,
		Order: ordinal,
		Flags: c.Flags,
	}
}

func recordToCategory(r CategoryRecord, sortOrder int) model.Category {
	return model.Category{
		Name:  r.Name,
		Order: sortOrder,
		Flags: r.Flags,
	}
}

func historyToRecord(h model.History) HistoryRecord {
	return HistoryRecord{
		ChapterKey:   h.ChapterKey,
		ReadAt:       h.ReadAt,
		ReadDuration: h.ReadDuration,
		Progress:     h.Progress,
	}
}

func recordToHistory(r HistoryRecord, bookID int64) (model.History, error) {
	if r.ChapterKey == "" {
		return model.History{}, fmt.Errorf("history: missing chapter key")
	}
	progress := r.Progress
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	return model.History{
		BookID:       bookID,
		ChapterKey:   r.ChapterKey,
		ReadAt:       r.ReadAt,
		ReadDuration: r.ReadDuration,
		Progress:     progress,
	}, nil
}
