// Package assembler renders retrieval results as citation-annotated context for the generator.
package assembler

import (
	"strconv"
	"strings"

	"github.com/dgallion1/docrag/internal/tokenizer"
	"github.com/dgallion1/docrag/internal/vectorstore"
)

// NoContext is shown to the user when retrieval returned nothing.
const NoContext = "No relevant sections found."

const unknownSource = "Unknown source"

// Assemble joins one block per result, in rank order:
//
//	<text>
//	Source: <filename> - p. <pages>
//	Title: <title>
func Assemble(results []vectorstore.Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, block(r))
	}
	return strings.Join(blocks, "\n\n")
}

func block(r vectorstore.Result) string {
	var b strings.Builder
	b.WriteString(r.Text)
	b.WriteString("\nSource: ")
	b.WriteString(Source(r.Metadata.Filename, r.Metadata.PageNumbers))
	if r.Metadata.Title != "" {
		b.WriteString("\nTitle: ")
		b.WriteString(r.Metadata.Title)
	}
	return b.String()
}

// Source renders the citation for a filename and page list.
func Source(filename string, pages []int) string {
	var parts []string
	if filename != "" {
		parts = append(parts, filename)
	}
	if len(pages) > 0 {
		nums := make([]string, len(pages))
		for i, p := range pages {
			nums[i] = strconv.Itoa(p)
		}
		parts = append(parts, "p. "+strings.Join(nums, ", "))
	}
	if len(parts) == 0 {
		return unknownSource
	}
	return strings.Join(parts, " - ")
}

// FitBudget returns the longest rank-order prefix of results whose assembled context is at
// most budget tokens. A non-positive budget keeps everything.
func FitBudget(results []vectorstore.Result, tok tokenizer.Tokenizer, budget int) []vectorstore.Result {
	if budget <= 0 || tok == nil {
		return results
	}
	used := 0
	for i, r := range results {
		n := tok.CountTokens(block(r))
		if i > 0 {
			n += tok.CountTokens("\n\n")
		}
		if used+n > budget {
			return results[:i]
		}
		used += n
	}
	return results
}
