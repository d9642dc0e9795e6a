package backup

import (
	"context"
	"testing"

	"github.com/kurobane/hondana/internal/db"
	"github.com/kurobane/hondana/internal/model"
	"github.com/kurobane/hondana/internal/testutil"
)

type fakeSettings struct {
	perCategory bool
}

func (f *fakeSettings) EnablePerCategorySettings() error {
	f.perCategory = true
	return nil
}

func seedBook(t *testing.T, database *db.DB, book model.Book, chapters ...model.Chapter) model.Book {
	t.Helper()
	ctx := context.Background()
	err := database.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.InsertBook(ctx, &book); err != nil {
			return err
		}
		for i := range chapters {
			chapters[i].BookID = book.ID
		}
		return tx.InsertChapters(ctx, chapters)
	})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return book
}

func mustRestore(t *testing.T, database *db.DB, s *Snapshot) Result {
	t.Helper()
	engine := &Engine{DB: database}
	result, err := engine.Restore(context.Background(), s)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	return result
}

// Restoring into an empty store creates the book with its chapters.
func TestRestoreIntoEmptyStore(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	snap := &Snapshot{Library: []BookRecord{{
		SourceKey:  "b1",
		SourceID:   1,
		Title:      "Book One",
		Favorite:   true,
		LastUpdate: 100,
		Chapters: []ChapterRecord{
			{Key: "c1", Name: "One"},
			{Key: "c2", Name: "Two", Read: true},
		},
	}}}

	result := mustRestore(t, database, snap)
	if result.BooksRestored != 1 || result.ChaptersRestored != 2 {
		t.Errorf("result = %+v, want 1 book and 2 chapters", result)
	}

	book, err := database.BookByKey(ctx, "b1", 1)
	if err != nil || book == nil {
		t.Fatalf("book not found after restore: %v", err)
	}
	if !book.Favorite {
		t.Error("restored book is not a favorite")
	}

	chapters, err := database.ChaptersByBookID(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	byKey := map[string]model.Chapter{}
	for _, ch := range chapters {
		byKey[ch.Key] = ch
	}
	if byKey["c2"].Read != true || byKey["c1"].Read != false {
		t.Errorf("chapter read flags wrong: %+v", byKey)
	}
}

// When the live book is newer, progress merges in place: read flags OR,
// lastPageRead max.
func TestRestoreLiveNewerMergesInPlace(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	book := seedBook(t, database,
		model.Book{SourceKey: "b1", SourceID: 1, Title: "Book One", Favorite: true, Initialized: true, LastUpdate: 200},
		model.Chapter{Key: "c1", Read: true, LastPageRead: 5},
	)

	snap := &Snapshot{Library: []BookRecord{{
		SourceKey:   "b1",
		SourceID:    1,
		Title:       "Book One",
		Favorite:    true,
		Initialized: true,
		LastUpdate:  100,
		Chapters:    []ChapterRecord{{Key: "c1", Read: false, LastPageRead: 10}},
	}}}

	mustRestore(t, database, snap)

	chapters, err := database.ChaptersByBookID(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(chapters))
	}
	if !chapters[0].Read {
		t.Error("read flag regressed; OR-merge must keep it true")
	}
	if chapters[0].LastPageRead != 10 {
		t.Errorf("lastPageRead = %d, want max(5, 10) = 10", chapters[0].LastPageRead)
	}
}

// When the snapshot is newer, the chapter list is replaced with the merged
// one; live progress survives the replacement and live-only chapters drop.
func TestRestoreSnapshotNewerReplacesList(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	book := seedBook(t, database,
		model.Book{SourceKey: "b1", SourceID: 1, Title: "Book One", Favorite: true, Initialized: true, LastUpdate: 100},
		model.Chapter{Key: "c1", Read: true, LastPageRead: 7},
		model.Chapter{Key: "stale", Read: true},
	)

	snap := &Snapshot{Library: []BookRecord{{
		SourceKey:   "b1",
		SourceID:    1,
		Title:       "Book One",
		Favorite:    true,
		Initialized: true,
		LastUpdate:  200,
		Chapters: []ChapterRecord{
			{Key: "c1", Read: false, LastPageRead: 3},
			{Key: "c2", Read: true},
		},
	}}}

	result := mustRestore(t, database, snap)
	if result.ChaptersRestored != 2 {
		t.Errorf("chaptersRestored = %d, want 2", result.ChaptersRestored)
	}

	chapters, err := database.ChaptersByBookID(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	byKey := map[string]model.Chapter{}
	for _, ch := range chapters {
		byKey[ch.Key] = ch
	}
	if len(byKey) != 2 {
		t.Fatalf("expected chapters c1 and c2, got %+v", byKey)
	}
	if _, ok := byKey["stale"]; ok {
		t.Error("stale live chapter survived a replace-merge")
	}
	if !byKey["c1"].Read || byKey["c1"].LastPageRead != 7 {
		t.Errorf("live progress lost in replace-merge: %+v", byKey["c1"])
	}
	if !byKey["c2"].Read {
		t.Error("snapshot chapter c2 lost its read flag")
	}
}

// Restoring the same snapshot twice ends in the same state as once.
func TestRestoreIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	snap := &Snapshot{
		Library: []BookRecord{{
			SourceKey:  "b1",
			SourceID:   1,
			Title:      "Book One",
			Favorite:   true,
			LastUpdate: 100,
			Chapters:   []ChapterRecord{{Key: "c1"}, {Key: "c2", Read: true}},
			Categories: []int{0},
			Histories:  []HistoryRecord{{ChapterKey: "c2", ReadAt: 50, Progress: 1}},
		}},
		Categories: []CategoryRecord{{Name: "Reading"}},
	}

	first := mustRestore(t, database, snap)
	second := mustRestore(t, database, snap)
	if first != second {
		t.Errorf("second restore reported %+v, first %+v", second, first)
	}

	books, err := database.FavoriteBooks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 1 {
		t.Fatalf("expected 1 book, got %d", len(books))
	}
	chapters, err := database.ChaptersByBookID(ctx, books[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 2 {
		t.Errorf("expected 2 chapters, got %d", len(chapters))
	}
	categories, err := database.Categories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(categories) != 1 {
		t.Errorf("expected 1 category, got %d", len(categories))
	}
	histories, err := database.HistoriesByBookID(ctx, books[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(histories) != 1 {
		t.Errorf("expected 1 history row, got %d", len(histories))
	}
}

// A restore may promote a book to favorite but never demote it.
func TestRestoreFavoriteMonotonic(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	seedBook(t, database,
		model.Book{SourceKey: "b1", SourceID: 1, Title: "Book One", Favorite: true, Initialized: true, LastUpdate: 100})

	snap := &Snapshot{Library: []BookRecord{{
		SourceKey:   "b1",
		SourceID:    1,
		Title:       "Book One",
		Favorite:    false,
		Initialized: true,
		LastUpdate:  100,
	}}}
	mustRestore(t, database, snap)

	book, err := database.BookByKey(ctx, "b1", 1)
	if err != nil || book == nil {
		t.Fatal(err)
	}
	if !book.Favorite {
		t.Error("restore removed favorite status")
	}

	// And the other direction: a non-favorite live book becomes one.
	seedBook(t, database,
		model.Book{SourceKey: "b2", SourceID: 1, Title: "Book Two", Favorite: false, LastUpdate: 100})
	mustRestore(t, database, &Snapshot{Library: []BookRecord{{
		SourceKey: "b2", SourceID: 1, Title: "Book Two", Favorite: true, LastUpdate: 100,
	}}})
	book, err = database.BookByKey(ctx, "b2", 1)
	if err != nil || book == nil {
		t.Fatal(err)
	}
	if !book.Favorite {
		t.Error("restore did not promote the book to favorite")
	}
}

// Categories differing only by case are the same category.
func TestRestoreCategoryCaseInsensitive(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	err := database.WithTx(ctx, func(tx *db.Tx) error {
		return tx.InsertCategory(ctx, &model.Category{Name: "reading", Order: 1})
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := &Snapshot{
		Library: []BookRecord{{
			SourceKey: "b1", SourceID: 1, Title: "Book One", Favorite: true, Categories: []int{0},
		}},
		Categories: []CategoryRecord{{Name: "Reading"}},
	}
	mustRestore(t, database, snap)

	categories, err := database.Categories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(categories) != 1 {
		t.Fatalf("case-insensitive match failed; categories: %+v", categories)
	}

	book, err := database.BookByKey(ctx, "b1", 1)
	if err != nil || book == nil {
		t.Fatal(err)
	}
	ids, err := database.CategoryIDsByBookID(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != categories[0].ID {
		t.Errorf("book not linked to existing category: %v", ids)
	}
}

// Ordinals that point outside the snapshot category list are dropped, not
// fatal.
func TestRestoreDropsUnresolvedOrdinals(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	snap := &Snapshot{
		Library: []BookRecord{{
			SourceKey: "b1", SourceID: 1, Title: "Book One", Favorite: true, Categories: []int{0, 7},
		}},
		Categories: []CategoryRecord{{Name: "Reading"}},
	}
	result := mustRestore(t, database, snap)
	if result.BooksRestored != 1 {
		t.Fatalf("result = %+v", result)
	}

	book, err := database.BookByKey(ctx, "b1", 1)
	if err != nil || book == nil {
		t.Fatal(err)
	}
	ids, err := database.CategoryIDsByBookID(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("expected only the resolved membership, got %v", ids)
	}
}

// Divergent category flags turn on per-category settings.
func TestRestoreEnablesPerCategorySettings(t *testing.T) {
	database := testutil.SetupTestDB(t)
	settings := &fakeSettings{}
	engine := &Engine{DB: database, Settings: settings}

	snap := &Snapshot{Categories: []CategoryRecord{
		{Name: "Plain"},
		{Name: "Custom", Flags: 4},
	}}
	if _, err := engine.Restore(context.Background(), snap); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !settings.perCategory {
		t.Error("per-category settings were not enabled")
	}
}

// Reading history never regresses under restore.
func TestRestoreHistoryMaxMerge(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	book := seedBook(t, database,
		model.Book{SourceKey: "b1", SourceID: 1, Title: "Book One", Favorite: true, Initialized: true, LastUpdate: 100},
		model.Chapter{Key: "c1"})
	err := database.WithTx(ctx, func(tx *db.Tx) error {
		return tx.UpsertHistory(ctx, &model.History{BookID: book.ID, ChapterKey: "c1", ReadAt: 500, ReadDuration: 60, Progress: 0.9})
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := &Snapshot{Library: []BookRecord{{
		SourceKey: "b1", SourceID: 1, Title: "Book One", Favorite: true, Initialized: true, LastUpdate: 100,
		Histories: []HistoryRecord{{ChapterKey: "c1", ReadAt: 300, ReadDuration: 120, Progress: 0.4}},
	}}}
	mustRestore(t, database, snap)

	histories, err := database.HistoriesByBookID(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(histories) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(histories))
	}
	h := histories[0]
	if h.ReadAt != 500 || h.ReadDuration != 120 || h.Progress != 0.9 {
		t.Errorf("history merge wrong: %+v, want readAt 500, duration 120, progress 0.9", h)
	}
}

// One malformed record must not cost the rest of the library.
func TestRestoreSkipsMalformedBook(t *testing.T) {
	database := testutil.SetupTestDB(t)

	snap := &Snapshot{Library: []BookRecord{
		{SourceKey: "", SourceID: 1, Title: "No Key"},
		{SourceKey: "b2", SourceID: 2, Title: "Fine", Favorite: true,
			Chapters: []ChapterRecord{{Key: "c1"}, {Key: "", Name: "broken"}}},
	}}

	result := mustRestore(t, database, snap)
	if result.BooksRestored != 1 {
		t.Errorf("booksRestored = %d, want 1 (malformed book skipped)", result.BooksRestored)
	}
	if result.ChaptersRestored != 1 {
		t.Errorf("chaptersRestored = %d, want 1 (malformed chapter skipped)", result.ChaptersRestored)
	}
}

// RestoreBytes feeds the decode chain; corrupt blobs surface the sentinel.
func TestRestoreBytesCorrupt(t *testing.T) {
	database := testutil.SetupTestDB(t)
	engine := &Engine{DB: database}

	_, err := engine.RestoreBytes(context.Background(), []byte{0xde, 0xad})
	if err == nil {
		t.Fatal("expected an error for corrupt input")
	}
}

// Progress callbacks see every book once, in snapshot order.
func TestRestoreWithProgress(t *testing.T) {
	database := testutil.SetupTestDB(t)
	engine := &Engine{DB: database}

	snap := &Snapshot{Library: []BookRecord{
		{SourceKey: "b1", SourceID: 1, Title: "First", Favorite: true},
		{SourceKey: "b2", SourceID: 2, Title: "Second", Favorite: true},
	}}

	var titles []string
	_, err := engine.RestoreWithProgress(context.Background(), snap, func(i, n int, title string) {
		if n != 2 {
			t.Errorf("total = %d, want 2", n)
		}
		titles = append(titles, title)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 2 || titles[0] != "First" || titles[1] != "Second" {
		t.Errorf("progress titles = %v", titles)
	}
}
