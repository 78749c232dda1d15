package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dgallion1/docrag/internal/doctree"
)

func TestCSVParser_BatchesRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,qty\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "item%d,%d\n", i, i)
	}

	p := &CSVParser{}
	doc, err := p.Parse(strings.NewReader(sb.String()), "stock.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "stock" {
		t.Errorf("expected title %q, got %q", "stock", doc.Title)
	}
	if doc.Len() != 2 {
		t.Fatalf("expected 2 table items for 25 rows, got %d", doc.Len())
	}
	for i, it := range doc.Items {
		if it.Kind != doctree.KindTable {
			t.Errorf("item[%d]: expected table, got %s", i, it.Kind)
		}
		if !strings.HasPrefix(it.Text, "Headers: name, qty") {
			t.Errorf("item[%d]: expected header line, got %q", i, it.Text)
		}
	}
	if !strings.Contains(doc.Items[1].Text, "name: item24, qty: 24") {
		t.Errorf("expected last row in second batch, got %q", doc.Items[1].Text)
	}
}

func TestCSVParser_Empty(t *testing.T) {
	p := &CSVParser{}
	doc, err := p.Parse(strings.NewReader(""), "empty.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Len() != 0 {
		t.Errorf("expected no items, got %d", doc.Len())
	}
}
