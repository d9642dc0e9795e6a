// Package backup implements the persistence-continuity subsystem: versioned
// library snapshots, a multi-generation decode chain, a loss-free
// restore/merge engine and the automatic snapshot scheduler.
package backup

// Snapshot is the complete serializable representation of a user's library
// at one point in time. It is built fresh for every backup run, handed to
// the codec, and discarded; on restore it is decoded once, feeds the merge,
// and is discarded.
//
// The json tags reproduce the oldest (pre-binary) backup format and are
// only used by the legacy JSON decoder.
type Snapshot struct {
	Library    []BookRecord     `json:"library"`
	Categories []CategoryRecord `json:"categories"`
}

// BookRecord carries one library entry. Identity is the business key
// (SourceKey, SourceID); store-local row ids are never serialized because
// they are not portable across devices.
type BookRecord struct {
	SourceKey   string          `json:"sourceKey"`
	SourceID    int64           `json:"sourceId"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Description string          `json:"description"`
	Genres      []string        `json:"genres"`
	Status      int             `json:"status"`
	Cover       string          `json:"cover"`
	CustomCover string          `json:"customCover"`
	Favorite    bool            `json:"favorite"`
	LastUpdate  int64           `json:"lastUpdate"`
	Initialized bool            `json:"initialized"`
	DateAdded   int64           `json:"dateAdded"`
	Viewer      int             `json:"viewer"`
	Flags       int             `json:"flags"`
	Chapters    []ChapterRecord `json:"chapters"`
	// Categories are positional indices into Snapshot.Categories, not live
	// store ids; they are re-resolved at restore time.
	Categories []int           `json:"categories"`
	Histories  []HistoryRecord `json:"histories"`
}

// ChapterRecord identity is Key, scoped to its parent book.
type ChapterRecord struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	Read         bool    `json:"read"`
	Bookmark     bool    `json:"bookmark"`
	LastPageRead int     `json:"lastPageRead"`
	Number       float64 `json:"number"`
}

// CategoryRecord identity is the case-insensitive name. Order is a
// backup-local ordinal, not a live sort value.
type CategoryRecord struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
	Flags int    `json:"flags"`
}

// HistoryRecord references its chapter by the key as currently known.
type HistoryRecord struct {
	ChapterKey   string  `json:"chapterKey"`
	ReadAt       int64   `json:"readAt"`
	ReadDuration int64   `json:"readDuration"`
	Progress     float64 `json:"progress"`
}
