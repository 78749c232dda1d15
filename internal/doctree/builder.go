package doctree

import "strings"

// Builder appends items in document order and tracks the enclosing heading stack.
type Builder struct {
	doc   *Document
	stack []ItemRef
}

func NewBuilder(filename, title string) *Builder {
	return &Builder{doc: &Document{Filename: filename, Title: title}}
}

// Heading opens a section at level, closing any open sections at the same or deeper level.
func (b *Builder) Heading(level int, text string, page int) ItemRef {
	text = strings.TrimSpace(text)
	if text == "" {
		return NoItem
	}
	if level < 1 {
		level = 1
	}
	for len(b.stack) > 0 && b.doc.Items[b.stack[len(b.stack)-1]].Level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	ref := b.append(Item{Kind: KindHeading, Text: text, Level: level}, page)
	b.stack = append(b.stack, ref)
	return ref
}

// Add appends a non-heading item under the current section. Blank text is ignored.
func (b *Builder) Add(kind Kind, text string, page int) ItemRef {
	text = strings.TrimSpace(text)
	if text == "" {
		return NoItem
	}
	return b.append(Item{Kind: kind, Text: text}, page)
}

func (b *Builder) append(it Item, page int) ItemRef {
	it.Parent = NoItem
	if len(b.stack) > 0 {
		it.Parent = b.stack[len(b.stack)-1]
	}
	if page > 0 {
		it.Prov = []Provenance{{Page: page}}
	}
	b.doc.Items = append(b.doc.Items, it)
	return ItemRef(len(b.doc.Items) - 1)
}

// Document returns the built document. The builder must not be used afterwards.
func (b *Builder) Document() *Document {
	return b.doc
}
