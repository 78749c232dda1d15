package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/ragerr"
)

// Parser converts raw document bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tunes individual parsers.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ParseBytes picks a parser by extension, parses data and validates the result.
// Every failure is a ParseError.
func ParseBytes(data []byte, filename string, opts Options) (*doctree.Document, error) {
	op := "parse " + filename
	p, err := ForFile(filename, opts)
	if err != nil {
		return nil, ragerr.Parse(op, err)
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, ragerr.Parse(op, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, ragerr.Parse(op, err)
	}
	return doc, nil
}

// titleFromFilename strips the directory and the given extensions.
func titleFromFilename(filename string, exts ...string) string {
	title := filepath.Base(filename)
	for _, ext := range exts {
		title = strings.TrimSuffix(title, ext)
	}
	return title
}
