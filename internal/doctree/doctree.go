package doctree

import (
	"fmt"

	"github.com/dgallion1/docrag/internal/ragerr"
)

// Kind tags a content item.
type Kind string

const (
	KindHeading   Kind = "heading"
	KindParagraph Kind = "paragraph"
	KindListItem  Kind = "list_item"
	KindTable     Kind = "table"
	KindCaption   Kind = "caption"
	KindCode      Kind = "code"
)

// ItemRef indexes into Document.Items. NoItem marks an absent reference.
type ItemRef int

const NoItem ItemRef = -1

// BBox is a region on a page, in the parser's coordinate space.
type BBox struct {
	Left, Top, Right, Bottom float64
}

// Provenance locates an item in the source. Page is 1-based; 0 means unknown.
type Provenance struct {
	Page int   `json:"page"`
	BBox *BBox `json:"bbox,omitempty"`
}

// Item is one content unit of a parsed document.
type Item struct {
	Kind   Kind         `json:"kind"`
	Text   string       `json:"text"`
	Level  int          `json:"level,omitempty"` // heading depth, 0 for non-headings
	Parent ItemRef      `json:"parent"`          // nearest enclosing heading
	Prov   []Provenance `json:"prov,omitempty"`
}

// Document is an arena of items in original document order. It is read-only once built.
type Document struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Items    []Item `json:"items"`
}

// Item returns the item at ref.
func (d *Document) Item(ref ItemRef) *Item {
	return &d.Items[ref]
}

// Len returns the number of items.
func (d *Document) Len() int {
	return len(d.Items)
}

// Validate checks the structural invariants chunking relies on.
func (d *Document) Validate() error {
	if d == nil {
		return ragerr.Parse("validate document", fmt.Errorf("nil document"))
	}
	for i, it := range d.Items {
		for _, p := range it.Prov {
			if p.Page < 0 {
				return ragerr.Parse("validate document", fmt.Errorf("item %d: negative page %d", i, p.Page))
			}
		}
		if it.Kind == KindHeading && it.Level < 1 {
			return ragerr.Parse("validate document", fmt.Errorf("item %d: heading level %d", i, it.Level))
		}
		if it.Parent == NoItem {
			continue
		}
		if it.Parent < 0 || int(it.Parent) >= i {
			return ragerr.Parse("validate document", fmt.Errorf("item %d: parent %d out of order", i, it.Parent))
		}
		if d.Items[it.Parent].Kind != KindHeading {
			return ragerr.Parse("validate document", fmt.Errorf("item %d: parent %d is not a heading", i, it.Parent))
		}
	}
	return nil
}

// Section returns the heading that encloses ref: ref itself for a heading, else its parent.
func (d *Document) Section(ref ItemRef) ItemRef {
	if d.Items[ref].Kind == KindHeading {
		return ref
	}
	return d.Items[ref].Parent
}

// Chunk is a contiguous run of items sized for embedding.
type Chunk struct {
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Items      []ItemRef `json:"items"`
	TokenCount int       `json:"token_count"`
	Boundary   ItemRef   `json:"boundary"`
	Oversized  bool      `json:"oversized,omitempty"` // single item above the token budget
}

// Metadata is the provenance attached to a chunk.
type Metadata struct {
	Filename    string `json:"filename,omitempty"`
	PageNumbers []int  `json:"page_numbers"`
	Title       string `json:"title,omitempty"`
}

// EnrichedChunk is a chunk with its provenance metadata.
type EnrichedChunk struct {
	Chunk
	Metadata Metadata `json:"metadata"`
}
