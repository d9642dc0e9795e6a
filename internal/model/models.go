package model

// Category flag bits. System categories (the implicit "Default" bucket and
// other app-managed buckets) never appear in backups.
const (
	CategoryFlagSystem = 1 << 0
)

// Book is a library entry. Identity across devices is (SourceKey, SourceID);
// ID is a store-local row id and is never written to a backup.
type Book struct {
	ID           int64    `json:"id" db:"id"`
	SourceKey    string   `json:"source_key" db:"source_key"`
	SourceID     int64    `json:"source_id" db:"source_id"`
	Title        string   `json:"title" db:"title"`
	Author       string   `json:"author" db:"author"`
	Description  string   `json:"description" db:"description"`
	Genres       []string `json:"genres" db:"-"`
	Status       int      `json:"status" db:"status"`
	Cover        string   `json:"cover" db:"cover"`
	CustomCover  string   `json:"custom_cover" db:"custom_cover"`
	Favorite     bool     `json:"favorite" db:"favorite"`
	LastUpdate   int64    `json:"last_update" db:"last_update"`
	Initialized  bool     `json:"initialized" db:"initialized"`
	DateAdded    int64    `json:"date_added" db:"date_added"`
	Viewer       int      `json:"viewer" db:"viewer"`
	ChapterFlags int      `json:"chapter_flags" db:"chapter_flags"`
}

// Chapter identity within a book is Key, not the row id.
type Chapter struct {
	ID           int64   `json:"id" db:"id"`
	BookID       int64   `json:"book_id" db:"book_id"`
	Key          string  `json:"key" db:"key"`
	Name         string  `json:"name" db:"name"`
	Read         bool    `json:"read" db:"read"`
	Bookmark     bool    `json:"bookmark" db:"bookmark"`
	LastPageRead int     `json:"last_page_read" db:"last_page_read"`
	Number       float64 `json:"number" db:"number"`
}

type Category struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Order int    `json:"order" db:"sort_order"`
	Flags int    `json:"flags" db:"flags"`
}

// System reports whether the category is app-managed and therefore excluded
// from backups.
func (c Category) System() bool {
	return c.Flags&CategoryFlagSystem != 0
}

// History records reading progress for one chapter of one book. The chapter
// is referenced by its key as currently known, not by row id, so history
// survives chapter list rewrites.
type History struct {
	ID           int64   `json:"id" db:"id"`
	BookID       int64   `json:"book_id" db:"book_id"`
	ChapterKey   string  `json:"chapter_key" db:"chapter_key"`
	ReadAt       int64   `json:"read_at" db:"read_at"`
	ReadDuration int64   `json:"read_duration" db:"read_duration"`
	Progress     float64 `json:"progress" db:"progress"`
}
