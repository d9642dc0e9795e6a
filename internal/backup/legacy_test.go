package backup

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// encodeLegacyWire reproduces the first binary generation for tests: no
// magic prefix, original book field layout.
func encodeLegacyWire(s *Snapshot) []byte {
	var b []byte
	for i := range s.Library {
		b = appendMessage(b, fieldBook, encodeLegacyBook(&s.Library[i]))
	}
	for i := range s.Categories {
		b = appendMessage(b, fieldCategory, encodeCategory(&s.Categories[i]))
	}
	return b
}

func encodeLegacyBook(r *BookRecord) []byte {
	var b []byte
	b = appendString(b, legacyBookSourceKey, r.SourceKey)
	b = appendVarint(b, legacyBookSourceID, uint64(r.SourceID))
	b = appendString(b, legacyBookTitle, r.Title)
	b = appendString(b, legacyBookAuthor, r.Author)
	b = appendString(b, legacyBookDescription, r.Description)
	for i := range r.Chapters {
		b = appendMessage(b, legacyBookChapter, encodeChapter(&r.Chapters[i]))
	}
	for _, ord := range r.Categories {
		b = protowire.AppendTag(b, legacyBookCategoryOrd, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ord))
	}
	for i := range r.Histories {
		b = appendMessage(b, legacyBookHistory, encodeHistory(&r.Histories[i]))
	}
	b = appendBool(b, legacyBookFavorite, r.Favorite)
	b = appendVarint(b, legacyBookLastUpdate, uint64(r.LastUpdate))
	b = appendBool(b, legacyBookInitialized, r.Initialized)
	b = appendVarint(b, legacyBookStatus, uint64(r.Status))
	b = appendString(b, legacyBookCover, r.Cover)
	b = appendVarint(b, legacyBookDateAdded, uint64(r.DateAdded))
	for _, g := range r.Genres {
		b = protowire.AppendTag(b, legacyBookGenre, protowire.BytesType)
		b = protowire.AppendString(b, g)
	}
	return b
}

// legacySample strips the fields the old generations never carried.
func legacySample() *Snapshot {
	s := sampleSnapshot()
	for i := range s.Library {
		s.Library[i].CustomCover = ""
		s.Library[i].Viewer = 0
		s.Library[i].Flags = 0
	}
	return s
}

func TestLoadDumpStableFormat(t *testing.T) {
	want := sampleSnapshot()
	got, err := LoadDump(Encode(want))
	if err != nil {
		t.Fatalf("LoadDump failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stable format mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestLoadDumpLegacyWireFormat(t *testing.T) {
	want := legacySample()

	blob := encodeLegacyWire(want)
	if _, err := Decode(blob); err == nil {
		t.Fatal("legacy blob unexpectedly decoded as stable format")
	}

	got, err := LoadDump(blob)
	if err != nil {
		t.Fatalf("LoadDump failed on legacy wire blob: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("legacy wire mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestLoadDumpLegacyJSONFormat(t *testing.T) {
	want := legacySample()

	blob, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(blob); err == nil {
		t.Fatal("JSON blob unexpectedly decoded as stable format")
	}

	// The oldest generation must still load with no error surfaced.
	got, err := LoadDump(blob)
	if err != nil {
		t.Fatalf("LoadDump failed on legacy JSON blob: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("legacy JSON mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestLoadDumpGarbage(t *testing.T) {
	for _, blob := range [][]byte{
		nil,
		{0xff, 0xff, 0xff},
		[]byte("not a backup at all!!"),
		[]byte(`{"library": "definitely not a list"}`),
	} {
		_, err := LoadDump(blob)
		if !errors.Is(err, ErrCorruptBackup) {
			t.Errorf("LoadDump(%q) = %v, want ErrCorruptBackup", blob, err)
		}
	}
}

func TestDecoderChainOrder(t *testing.T) {
	decoders := DefaultDecoders()
	want := []string{"stable", "legacy-wire", "legacy-json"}
	if len(decoders) != len(want) {
		t.Fatalf("expected %d decoders, got %d", len(want), len(decoders))
	}
	for i, d := range decoders {
		if d.Name() != want[i] {
			t.Errorf("decoder %d = %s, want %s", i, d.Name(), want[i])
		}
	}
}
