package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark, with GFM tables.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	root := md.Parser().Parse(text.NewReader(src))

	b := doctree.NewBuilder(filename, titleFromFilename(filename, ".md", ".markdown"))
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		addMarkdownBlock(b, n, src)
	}
	return b.Document(), nil
}

func addMarkdownBlock(b *doctree.Builder, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Heading:
		b.Heading(node.Level, blockText(node, src), 0)
	case *ast.List:
		for li := node.FirstChild(); li != nil; li = li.NextSibling() {
			b.Add(doctree.KindListItem, blockText(li, src), 0)
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		b.Add(doctree.KindCode, linesText(n, src), 0)
	case *east.Table:
		b.Add(doctree.KindTable, tableText(node, src), 0)
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			addMarkdownBlock(b, c, src)
		}
	case *ast.ThematicBreak, *ast.HTMLBlock:
		// No content.
	default:
		b.Add(doctree.KindParagraph, blockText(n, src), 0)
	}
}

// blockText renders the inline content of n followed by the text of nested blocks.
func blockText(n ast.Node, src []byte) string {
	switch n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return linesText(n, src)
	}
	var inline bytes.Buffer
	var nested []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() == ast.TypeBlock {
			if t := blockText(c, src); t != "" {
				nested = append(nested, t)
			}
			continue
		}
		writeInline(&inline, c, src)
	}
	parts := nested
	if s := strings.TrimSpace(inline.String()); s != "" {
		parts = append([]string{s}, nested...)
	}
	return strings.Join(parts, "\n")
}

func writeInline(buf *bytes.Buffer, n ast.Node, src []byte) {
	switch t := n.(type) {
	case *ast.Text:
		buf.Write(t.Segment.Value(src))
		if t.SoftLineBreak() || t.HardLineBreak() {
			buf.WriteByte('\n')
		}
	case *ast.String:
		buf.Write(t.Value)
	case *ast.AutoLink:
		buf.Write(t.Label(src))
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			writeInline(buf, c, src)
		}
	}
}

// linesText returns the raw source lines of a block such as a code block.
func linesText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// tableText renders one row per line with cells separated by " | ".
func tableText(t *east.Table, src []byte) string {
	var rows []string
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			var buf bytes.Buffer
			writeInline(&buf, cell, src)
			cells = append(cells, strings.TrimSpace(buf.String()))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}
