// Package enricher attaches source provenance to chunks.
package enricher

import (
	"slices"

	"github.com/dgallion1/docrag/internal/doctree"
)

// Enrich derives metadata for every chunk from the items it references.
// The output has one entry per chunk, in the same order.
func Enrich(doc *doctree.Document, chunks []doctree.Chunk) []doctree.EnrichedChunk {
	out := make([]doctree.EnrichedChunk, len(chunks))
	for i, ch := range chunks {
		out[i] = doctree.EnrichedChunk{
			Chunk: ch,
			Metadata: doctree.Metadata{
				Filename:    doc.Filename,
				PageNumbers: PageNumbers(doc, ch.Items),
				Title:       Title(doc, ch.Items),
			},
		}
	}
	return out
}

// PageNumbers returns the sorted distinct known pages of the given items.
// The result is never nil.
func PageNumbers(doc *doctree.Document, refs []doctree.ItemRef) []int {
	pages := []int{}
	for _, ref := range refs {
		for _, p := range doc.Item(ref).Prov {
			if p.Page > 0 {
				pages = append(pages, p.Page)
			}
		}
	}
	slices.Sort(pages)
	return slices.Compact(pages)
}

// Title returns the text of the most recent heading at or before the first item,
// or "" if no heading precedes it.
func Title(doc *doctree.Document, refs []doctree.ItemRef) string {
	if len(refs) == 0 {
		return ""
	}
	for ref := refs[0]; ref >= 0; ref-- {
		if it := doc.Item(ref); it.Kind == doctree.KindHeading {
			return it.Text
		}
	}
	return ""
}
