package backup

import (
	"bytes"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// The stable snapshot format: a 4-byte magic followed by a field-numbered
// protowire message. Unknown fields are skipped on decode, so builds can
// add fields without breaking older readers, and older backups without
// them decode to zero values.
//
// Field numbers are part of the on-disk contract and must never be reused
// for a different meaning.
var magic = []byte{'H', 'N', 'B', 0x02}

// Snapshot message fields.
const (
	fieldBook     = 1
	fieldCategory = 2
)

// BookRecord message fields.
const (
	bookSourceKey   = 1
	bookSourceID    = 2
	bookTitle       = 3
	bookAuthor      = 4
	bookDescription = 5
	bookGenre       = 6
	bookStatus      = 7
	bookCover       = 8
	bookCustomCover = 9
	bookFavorite    = 10
	bookLastUpdate  = 11
	bookInitialized = 12
	bookDateAdded   = 13
	bookViewer      = 14
	bookFlags       = 15
	bookChapter     = 16
	bookCategoryOrd = 17
	bookHistory     = 18
)

// ChapterRecord message fields.
const (
	chapterKey          = 1
	chapterName         = 2
	chapterRead         = 3
	chapterBookmark     = 4
	chapterLastPageRead = 5
	chapterNumber       = 6
)

// CategoryRecord message fields.
const (
	categoryName  = 1
	categoryOrder = 2
	categoryFlags = 3
)

// HistoryRecord message fields.
const (
	historyChapterKey   = 1
	historyReadAt       = 2
	historyReadDuration = 3
	historyProgress     = 4
)

// Encode serializes s into the stable snapshot format. It never fails for a
// well-formed snapshot.
func Encode(s *Snapshot) []byte {
	b := make([]byte, 0, 1024)
	b = append(b, magic...)
	for i := range s.Library {
		b = appendMessage(b, fieldBook, encodeBook(&s.Library[i]))
	}
	for i := range s.Categories {
		b = appendMessage(b, fieldCategory, encodeCategory(&s.Categories[i]))
	}
	return b
}

// Decode parses the stable snapshot format. It fails only on structurally
// invalid input (bad magic or tag stream); semantically invalid values are
// passed through for the mappers to clamp.
func Decode(b []byte) (*Snapshot, error) {
	if len(b) < len(magic) || !bytes.Equal(b[:len(magic)], magic) {
		return nil, fmt.Errorf("not a stable-format snapshot: bad magic")
	}
	return decodeSnapshot(b[len(magic):], decodeBook)
}

func encodeBook(r *BookRecord) []byte {
	var b []byte
	b = appendString(b, bookSourceKey, r.SourceKey)
	b = appendVarint(b, bookSourceID, uint64(r.SourceID))
	b = appendString(b, bookTitle, r.Title)
	b = appendString(b, bookAuthor, r.Author)
	b = appendString(b, bookDescription, r.Description)
	for _, g := range r.Genres {
		b = protowire.AppendTag(b, bookGenre, protowire.BytesType)
		b = protowire.AppendString(b, g)
	}
	b = appendVarint(b, bookStatus, uint64(r.Status))
	b = appendString(b, bookCover, r.Cover)
	b = appendString(b, bookCustomCover, r.CustomCover)
	b = appendBool(b, bookFavorite, r.Favorite)
	b = appendVarint(b, bookLastUpdate, uint64(r.LastUpdate))
	b = appendBool(b, bookInitialized, r.Initialized)
	b = appendVarint(b, bookDateAdded, uint64(r.DateAdded))
	b = appendVarint(b, bookViewer, uint64(r.Viewer))
	b = appendVarint(b, bookFlags, uint64(r.Flags))
	for i := range r.Chapters {
		b = appendMessage(b, bookChapter, encodeChapter(&r.Chapters[i]))
	}
	for _, ord := range r.Categories {
		b = protowire.AppendTag(b, bookCategoryOrd, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ord))
	}
	for i := range r.Histories {
		b = appendMessage(b, bookHistory, encodeHistory(&r.Histories[i]))
	}
	return b
}

func encodeChapter(r *ChapterRecord) []byte {
	var b []byte
	b = appendString(b, chapterKey, r.Key)
	b = appendString(b, chapterName, r.Name)
	b = appendBool(b, chapterRead, r.Read)
	b = appendBool(b, chapterBookmark, r.Bookmark)
	b = appendVarint(b, chapterLastPageRead, uint64(r.LastPageRead))
	b = appendDouble(b, chapterNumber, r.Number)
	return b
}

func encodeCategory(r *CategoryRecord) []byte {
	var b []byte
	b = appendString(b, categoryName, r.Name)
	b = appendVarint(b, categoryOrder, uint64(r.Order))
	b = appendVarint(b, categoryFlags, uint64(r.Flags))
	return b
}

func encodeHistory(r *HistoryRecord) []byte {
	var b []byte
	b = appendString(b, historyChapterKey, r.ChapterKey)
	b = appendVarint(b, historyReadAt, uint64(r.ReadAt))
	b = appendVarint(b, historyReadDuration, uint64(r.ReadDuration))
	b = appendDouble(b, historyProgress, r.Progress)
	return b
}

// decodeSnapshot parses the top-level message. The book decoder is a
// parameter because the legacy binary generation used a different book
// field layout.
func decodeSnapshot(b []byte, bookDecoder func([]byte) (BookRecord, error)) (*Snapshot, error) {
	s := &Snapshot{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldBook && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			rec, err := bookDecoder(v)
			if err != nil {
				return nil, err
			}
			s.Library = append(s.Library, rec)
			b = b[n:]

		case num == fieldCategory && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			rec, err := decodeCategory(v)
			if err != nil {
				return nil, err
			}
			s.Categories = append(s.Categories, rec)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return s, nil
}

func decodeBook(b []byte) (BookRecord, error) {
	var r BookRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == bookSourceKey || num == bookTitle || num == bookAuthor ||
			num == bookDescription || num == bookGenre || num == bookCover || num == bookCustomCover):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			switch num {
			case bookSourceKey:
				r.SourceKey = v
			case bookTitle:
				r.Title = v
			case bookAuthor:
				r.Author = v
			case bookDescription:
				r.Description = v
			case bookGenre:
				r.Genres = append(r.Genres, v)
			case bookCover:
				r.Cover = v
			case bookCustomCover:
				r.CustomCover = v
			}
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			switch num {
			case bookSourceID:
				r.SourceID = int64(v)
			case bookStatus:
				r.Status = int(v)
			case bookFavorite:
				r.Favorite = v != 0
			case bookLastUpdate:
				r.LastUpdate = int64(v)
			case bookInitialized:
				r.Initialized = v != 0
			case bookDateAdded:
				r.DateAdded = int64(v)
			case bookViewer:
				r.Viewer = int(v)
			case bookFlags:
				r.Flags = int(v)
			case bookCategoryOrd:
				r.Categories = append(r.Categories, int(v))
			}
			b = b[n:]

		case typ == protowire.BytesType && num == bookChapter:
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

		case typ == protowire.BytesType && num == bookHistory:
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

func decodeChapter(b []byte) (ChapterRecord, error) {
	var r ChapterRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == chapterKey || num == chapterName):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			if num == chapterKey {
				r.Key = v
			} else {
				r.Name = v
			}
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			switch num {
			case chapterRead:
				r.Read = v != 0
			case chapterBookmark:
				r.Bookmark = v != 0
			case chapterLastPageRead:
				r.LastPageRead = int(v)
			}
			b = b[n:]

		case typ == protowire.Fixed64Type && num == chapterNumber:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Number = math.Float64frombits(v)
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

func decodeCategory(b []byte) (CategoryRecord, error) {
	var r CategoryRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num == categoryName:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Name = v
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			if num == categoryOrder {
				r.Order = int(v)
			} else if num == categoryFlags {
				r.Flags = int(v)
			}
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

func decodeHistory(b []byte) (HistoryRecord, error) {
	var r HistoryRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num == historyChapterKey:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.ChapterKey = v
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			if num == historyReadAt {
				r.ReadAt = int64(v)
			} else if num == historyReadDuration {
				r.ReadDuration = int64(v)
			}
			b = b[n:]

		case typ == protowire.Fixed64Type && num == historyProgress:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Progress = math.Float64frombits(v)
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

// Proto3-style encoding helpers: zero values are omitted.

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendDouble(b []byte, num protowire.Number, f float64) []byte {
	if f == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(f))
}
