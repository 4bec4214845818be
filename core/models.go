package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for catalog entries without an explicit id column.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID in hex, the form used for history item ids.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 16)
}

// Kind identifies one of the catalog partitions.
type Kind string

const (
	KindMovies Kind = "movies"
	KindSeries Kind = "series"
	KindAnime  Kind = "anime"
)

// Kinds lists every supported catalog partition in display order.
var Kinds = []Kind{KindMovies, KindSeries, KindAnime}

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if err := ValidateKind(k); err != nil {
		return "", err
	}
	return k, nil
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Item is a single catalog row.
// Optional text fields are empty strings when the source has no value,
// optional numeric fields are nil.
type Item struct {
	Position    int               // Row position in the engine's working view
	OrigIndex   int               // Row position in the freshly loaded catalog
	ID          string            // Source id column, or IDFromContent(title) when absent
	Title       string            // Never empty after loading
	Description string
	Genres      string
	Year        string
	Rating      *float64
	Popularity  *float64
	Extra       map[string]string // Columns the loader does not recognize
}

// CombinedText returns the text embedded for this item: title, description
// and genres joined by " . ".
func (it *Item) CombinedText() string {
	return it.Title + " . " + it.Description + " . " + it.Genres
}

// Catalog is an ordered, immutable set of items for one kind.
// Row order is the identity used to align embeddings.
type Catalog struct {
	Kind  Kind
	Items []Item
}

// Len returns the number of rows.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// HasRatings reports whether at least one item carries a rating.
func (c *Catalog) HasRatings() bool {
	for i := range c.Items {
		if c.Items[i].Rating != nil {
			return true
		}
	}
	return false
}

// HasPopularity reports whether at least one item carries a popularity value.
func (c *Catalog) HasPopularity() bool {
	for i := range c.Items {
		if c.Items[i].Popularity != nil {
			return true
		}
	}
	return false
}

// EmbeddingSet is a persisted embedding matrix together with its alignment index.
// Alignment[i] is the catalog row position that Matrix[i] was computed for.
type EmbeddingSet struct {
	Matrix     [][]float32
	Alignment  []int
	Model      string
	Device     string
	Dimensions int
	CreatedAt  time.Time
}

// Len returns the number of vectors in the set.
func (s *EmbeddingSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Matrix)
}

// Recommendation is a catalog item annotated with its similarity to the query.
type Recommendation struct {
	Item  Item
	Score float32
}

// HistoryEntry records which query produced which selected item.
type HistoryEntry struct {
	ID        int64
	Kind      Kind
	Query     string
	ItemID    string
	ItemTitle string
	Timestamp time.Time // UTC
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
