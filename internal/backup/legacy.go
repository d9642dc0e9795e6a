package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrCorruptBackup is returned once every known snapshot format has been
// tried and failed.
var ErrCorruptBackup = errors.New("corrupt or unsupported backup file")

// Decoder is one generation of the snapshot format. TryDecode is a pure
// probe: it either returns a complete snapshot or an error, and commits no
// partial state either way.
type Decoder interface {
	Name() string
	TryDecode(b []byte) (*Snapshot, error)
}

// DefaultDecoders returns the probe chain, newest format first. The order
// is fixed: the oldest generations carry no version header and are
// distinguishable only by attempted-parse success.
func DefaultDecoders() []Decoder {
	return []Decoder{
		stableDecoder{},
		legacyWireDecoder{},
		legacyJSONDecoder{},
	}
}

// LoadDump decodes b by trying each known format in order. If every
// decoder fails, the final error is surfaced as ErrCorruptBackup.
func LoadDump(b []byte) (*Snapshot, error) {
	var lastErr error
	for _, d := range DefaultDecoders() {
		s, err := d.TryDecode(b)
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrCorruptBackup, lastErr)
}

type stableDecoder struct{}

func (stableDecoder) Name() string { return "stable" }

func (stableDecoder) TryDecode(b []byte) (*Snapshot, error) {
	return Decode(b)
}

// legacyWireDecoder reads the first binary generation: the same protowire
// message as the stable format, but with no magic prefix and the original
// book field layout (no custom cover, viewer or flags fields).
type legacyWireDecoder struct{}

func (legacyWireDecoder) Name() string { return "legacy-wire" }

func (legacyWireDecoder) TryDecode(b []byte) (*Snapshot, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("legacy-wire: empty input")
	}
	if len(b) >= len(magic) && bytes.Equal(b[:len(magic)], magic) {
		return nil, fmt.Errorf("legacy-wire: stable-format magic present")
	}
	s, err := decodeSnapshot(b, decodeLegacyBook)
	if err != nil {
		return nil, fmt.Errorf("legacy-wire: %w", err)
	}
	if len(s.Library) == 0 && len(s.Categories) == 0 {
		// A tag stream that yields nothing is almost certainly not a
		// backup; real legacy files always carried at least one record.
		return nil, fmt.Errorf("legacy-wire: no records")
	}
	return s, nil
}

// Legacy book field layout.
const (
	legacyBookSourceKey   = 1
	legacyBookSourceID    = 2
	legacyBookTitle       = 3
	legacyBookAuthor      = 4
	legacyBookDescription = 5
	legacyBookChapter     = 6
	legacyBookCategoryOrd = 7
	legacyBookHistory     = 8
	legacyBookFavorite    = 9
	legacyBookLastUpdate  = 10
	legacyBookInitialized = 11
	legacyBookStatus      = 12
	legacyBookCover       = 13
	legacyBookDateAdded   = 14
	legacyBookGenre       = 15
)

func decodeLegacyBook(b []byte) (BookRecord, error) {
	var r BookRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == legacyBookSourceKey || num == legacyBookTitle ||
			num == legacyBookAuthor || num == legacyBookDescription || num == legacyBookCover ||
			num == legacyBookGenre):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			switch num {
			case legacyBookSourceKey:
				r.SourceKey = v
			case legacyBookTitle:
				r.Title = v
			case legacyBookAuthor:
				r.Author = v
			case legacyBookDescription:
				r.Description = v
			case legacyBookCover:
				r.Cover = v
			case legacyBookGenre:
				r.Genres = append(r.Genres, v)
			}
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			switch num {
			case legacyBookSourceID:
				r.SourceID = int64(v)
			case legacyBookCategoryOrd:
				r.Categories = append(r.Categories, int(v))
			case legacyBookFavorite:
				r.Favorite = v != 0
			case legacyBookLastUpdate:
				r.LastUpdate = int64(v)
			case legacyBookInitialized:
				r.Initialized = v != 0
			case legacyBookStatus:
				r.Status = int(v)
			case legacyBookDateAdded:
				r.DateAdded = int64(v)
			}
			b = b[n:]

		case typ == protowire.BytesType && num == legacyBookChapter:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			ch, err := decodeChapter(v)
			if err != nil {
				return r, err
			}
			r.Chapters = append(r.Chapters, ch)
			b = b[n:]

		case typ == protowire.BytesType && num == legacyBookHistory:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			h, err := decodeHistory(v)
			if err != nil {
				return r, err
			}
			r.Histories = append(r.Histories, h)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// legacyJSONDecoder reads the oldest generation: a plain JSON document with
// camelCase keys and no version marker.
type legacyJSONDecoder struct{}

func (legacyJSONDecoder) Name() string { return "legacy-json" }

func (legacyJSONDecoder) TryDecode(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("legacy-json: %w", err)
	}
	if len(s.Library) == 0 && len(s.Categories) == 0 {
		return nil, fmt.Errorf("legacy-json: no records")
	}
	return &s, nil
}
