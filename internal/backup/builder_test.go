package backup

import (
	"context"
	"testing"

	"github.com/kurobane/hondana/internal/db"
	"github.com/kurobane/hondana/internal/model"
	"github.com/kurobane/hondana/internal/testutil"
)

func TestBuildDumpsFavoritesOnly(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	fav := seedBook(t, database,
		model.Book{SourceKey: "src", SourceID: 1, Title: "Kept", Favorite: true, LastUpdate: 100},
		model.Chapter{Key: "c1", Name: "One", Read: true},
		model.Chapter{Key: "c2", Name: "Two"},
	)
	seedBook(t, database,
		model.Book{SourceKey: "src", SourceID: 2, Title: "Browsed", Favorite: false})

	var system, normal model.Category
	err := database.WithTx(ctx, func(tx *db.Tx) error {
		system = model.Category{Name: "Default", Flags: model.CategoryFlagSystem}
		if err := tx.InsertCategory(ctx, &system); err != nil {
			return err
		}
		normal = model.Category{Name: "Reading", Order: 1}
		if err := tx.InsertCategory(ctx, &normal); err != nil {
			return err
		}
		if err := tx.AttachBookCategories(ctx, fav.ID, []int64{system.ID, normal.ID}); err != nil {
			return err
		}
		return tx.UpsertHistory(ctx, &model.History{BookID: fav.ID, ChapterKey: "c1", ReadAt: 700, Progress: 0.5})
	})
	if err != nil {
		t.Fatal(err)
	}

	var labels []string
	builder := &Builder{DB: database}
	snap, err := builder.Build(ctx, func(label string) { labels = append(labels, label) })
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(snap.Library) != 1 || snap.Library[0].Title != "Kept" {
		t.Fatalf("library = %+v, want only the favorite", snap.Library)
	}
	if len(snap.Categories) != 1 || snap.Categories[0].Name != "Reading" {
		t.Errorf("categories = %+v, want the non-system category only", snap.Categories)
	}

	book := snap.Library[0]
	if len(book.Chapters) != 2 {
		t.Errorf("expected 2 chapters, got %d", len(book.Chapters))
	}
	// The system category link must not leak in as an ordinal.
	if len(book.Categories) != 1 || book.Categories[0] != 0 {
		t.Errorf("ordinals = %v, want [0]", book.Categories)
	}
	if len(book.Histories) != 1 || book.Histories[0].ChapterKey != "c1" {
		t.Errorf("histories = %+v", book.Histories)
	}

	// One progress label per chapter processed.
	if len(labels) != 2 {
		t.Errorf("progress labels = %v, want one per chapter", labels)
	}
}

func TestBuildRoundTripsThroughCodec(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	seedBook(t, database,
		model.Book{SourceKey: "src", SourceID: 9, Title: "Round Trip", Author: "A", Favorite: true,
			Genres: []string{"Drama"}, LastUpdate: 42, Initialized: true},
		model.Chapter{Key: "c1", Name: "One", LastPageRead: 3, Number: 1},
	)

	builder := &Builder{DB: database}
	snap, err := builder.Build(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(Encode(snap))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Library) != 1 {
		t.Fatalf("decoded library = %+v", decoded.Library)
	}
	got, want := decoded.Library[0], snap.Library[0]
	if got.Title != want.Title || got.Author != want.Author || len(got.Chapters) != len(want.Chapters) ||
		got.LastUpdate != want.LastUpdate || got.Initialized != want.Initialized {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestBuildEmptyLibrary(t *testing.T) {
	database := testutil.SetupTestDB(t)

	builder := &Builder{DB: database}
	snap, err := builder.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(snap.Library) != 0 || len(snap.Categories) != 0 {
		t.Errorf("expected an empty snapshot, got %+v", snap)
	}
}
