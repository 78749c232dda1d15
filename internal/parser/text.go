package parser

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
)

// TextParser handles plain text files. Form feeds separate pages; without
// any form feed the page is unknown.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	b := doctree.NewBuilder(filename, titleFromFilename(filename, ".txt"))
	paged := bytes.ContainsRune(src, '\f')

	for i, page := range bytes.Split(src, []byte("\f")) {
		pg := 0
		if paged {
			pg = i + 1
		}
		paragraphs, err := splitParagraphs(page)
		if err != nil {
			return nil, err
		}
		for _, para := range paragraphs {
			b.Add(doctree.KindParagraph, para, pg)
		}
	}

	return b.Document(), nil
}

// splitParagraphs groups lines separated by blank lines.
func splitParagraphs(src []byte) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return paragraphs, nil
}
