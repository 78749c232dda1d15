// Package chunker splits a parsed document into token-bounded chunks that follow
// its heading structure.
package chunker

import (
	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/tokenizer"
)

// DefaultMaxTokens is the input limit of the OpenAI embedding models.
const DefaultMaxTokens = 8191

// itemSeparator joins item texts inside a chunk.
const itemSeparator = "\n\n"

// Config controls chunking behavior.
type Config struct {
	MaxTokens  int  // Token budget per chunk.
	MergePeers bool // Merge adjacent sibling chunks that fit together.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:  DefaultMaxTokens,
		MergePeers: true,
	}
}

// Validate rejects a non-positive token budget.
func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return ragerr.InvalidConfiguration("chunker config", "max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// Chunker is a hybrid structural/token chunker. It holds no state between calls.
type Chunker struct {
	tok tokenizer.Tokenizer
	cfg Config
}

// New returns a chunker sized with tok.
func New(tok tokenizer.Tokenizer, cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ragerr.InvalidConfiguration("chunker config", "tokenizer is required")
	}
	return &Chunker{tok: tok, cfg: cfg}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config { return c.cfg }

type candidate struct {
	items    []doctree.ItemRef
	text     string
	boundary doctree.ItemRef
	body     bool // holds at least one non-heading item
}

// Chunk produces the ordered chunks of doc. A malformed document is a ParseError
// and nothing is chunked.
func (c *Chunker) Chunk(doc *doctree.Document) ([]doctree.Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	var chunks []doctree.Chunk
	var cur *candidate

	flush := func() {
		if cur == nil {
			return
		}
		chunks = append(chunks, c.finish(cur))
		cur = nil
	}
	start := func(ref doctree.ItemRef, section doctree.ItemRef, heading bool) {
		cur = &candidate{
			items:    []doctree.ItemRef{ref},
			text:     doc.Item(ref).Text,
			boundary: section,
			body:     !heading,
		}
	}

	for i := range doc.Items {
		ref := doctree.ItemRef(i)
		it := doc.Item(ref)
		if it.Text == "" {
			continue
		}
		section := doc.Section(ref)
		heading := it.Kind == doctree.KindHeading

		// A new section closes the candidate, unless the candidate is only a run
		// of headings, which then lead into the section's content.
		if cur != nil && cur.body && (heading || section != cur.boundary) {
			flush()
		}
		if cur == nil {
			start(ref, section, heading)
			continue
		}

		joined := cur.text + itemSeparator + it.Text
		if c.tok.CountTokens(joined) > c.cfg.MaxTokens {
			flush()
			start(ref, section, heading)
			continue
		}
		cur.items = append(cur.items, ref)
		cur.text = joined
		cur.boundary = section
		if !heading {
			cur.body = true
		}
	}
	flush()

	if c.cfg.MergePeers {
		chunks = c.mergePeers(doc, chunks)
	}
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks, nil
}

func (c *Chunker) finish(cur *candidate) doctree.Chunk {
	tokens := c.tok.CountTokens(cur.text)
	return doctree.Chunk{
		Text:       cur.text,
		Items:      cur.items,
		TokenCount: tokens,
		Boundary:   cur.boundary,
		// Only a single item can exceed the budget; anything larger was split above.
		Oversized: tokens > c.cfg.MaxTokens,
	}
}

// mergePeers folds each chunk into its predecessor when both belong to the same
// section or to sibling sections and the combined text fits the budget.
func (c *Chunker) mergePeers(doc *doctree.Document, chunks []doctree.Chunk) []doctree.Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := make([]doctree.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if n := len(out); n > 0 && peers(doc, out[n-1].Boundary, ch.Boundary) {
			prev := &out[n-1]
			joined := prev.Text + itemSeparator + ch.Text
			if tokens := c.tok.CountTokens(joined); tokens <= c.cfg.MaxTokens {
				prev.Text = joined
				prev.Items = append(prev.Items, ch.Items...)
				prev.TokenCount = tokens
				prev.Oversized = false
				continue
			}
		}
		out = append(out, ch)
	}
	return out
}

// peers reports whether two section boundaries are the same section or sibling headings.
func peers(doc *doctree.Document, a, b doctree.ItemRef) bool {
	if a == b {
		return true
	}
	if a == doctree.NoItem || b == doctree.NoItem {
		return false
	}
	ha, hb := doc.Item(a), doc.Item(b)
	return ha.Parent == hb.Parent && ha.Level == hb.Level
}
