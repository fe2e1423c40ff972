package notebook

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const sampleNotebook = `{
  "cells": [
    {"cell_type": "markdown", "metadata": {}, "source": ["PostId: abc\n", "Title: Hello"]},
    {"cell_type": "code", "execution_count": 3, "metadata": {"collapsed": false},
     "outputs": [{"output_type": "stream", "name": "stdout", "text": ["hi\n"]}],
     "source": "print('hi')"},
    {"cell_type": "raw", "metadata": {}, "source": []}
  ],
  "metadata": {"kernelspec": {"name": "python3"}},
  "nbformat": 4,
  "nbformat_minor": 2
}`

func TestParseCells(t *testing.T) {
	doc, err := Parse([]byte(sampleNotebook))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(doc.Cells))
	}

	first := doc.Cells[0]
	if first.Kind != KindProse {
		t.Fatalf("expected first cell prose, got %s", first.Kind)
	}
	if first.Source != "PostId: abc\nTitle: Hello" {
		t.Fatalf("unexpected joined source %q", first.Source)
	}

	code := doc.Cells[1]
	if code.Kind != KindCode {
		t.Fatalf("expected code cell, got %s", code.Kind)
	}
	if string(code.ExecutionCount) != "3" {
		t.Fatalf("expected execution_count 3, got %s", code.ExecutionCount)
	}
	if !strings.Contains(string(code.Outputs), `"stream"`) {
		t.Fatalf("outputs not preserved: %s", code.Outputs)
	}

	if doc.Cells[2].Kind != KindOther || doc.Cells[2].Type != "raw" {
		t.Fatalf("expected raw cell to be KindOther, got %s/%s", doc.Cells[2].Kind, doc.Cells[2].Type)
	}
	if doc.Cells[2].Source != "" {
		t.Fatalf("expected empty raw source, got %q", doc.Cells[2].Source)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	doc, err := Parse([]byte(`{"cells": [], "metadata": {}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := doc.First(); ok {
		t.Fatal("expected no first cell")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
	_, err := Parse([]byte(`{"cells": [{"cell_type": "code", "source": 12}]}`))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument for numeric source, got %v", err)
	}
}

func TestCellMarshalByKind(t *testing.T) {
	code, err := json.Marshal(NewCodeCell("x = 1\ny = 2\n"))
	if err != nil {
		t.Fatalf("Marshal(code) error = %v", err)
	}
	want := `{"cell_type":"code","execution_count":null,"metadata":{},"outputs":[],"source":["x = 1\n","y = 2\n"]}`
	if string(code) != want {
		t.Fatalf("code cell mismatch\n got: %s\nwant: %s", code, want)
	}

	prose, err := json.Marshal(NewProseCell("# Title"))
	if err != nil {
		t.Fatalf("Marshal(prose) error = %v", err)
	}
	want = `{"cell_type":"markdown","metadata":{},"source":["# Title"]}`
	if string(prose) != want {
		t.Fatalf("prose cell mismatch\n got: %s\nwant: %s", prose, want)
	}
}

func TestCellRoundTripKeepsKindFields(t *testing.T) {
	doc, err := Parse([]byte(sampleNotebook))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	raw, err := json.Marshal(doc.Cells[1])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var back wireCell
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	cell, err := back.toCell()
	if err != nil {
		t.Fatalf("toCell() error = %v", err)
	}
	if cell.Source != doc.Cells[1].Source {
		t.Fatalf("source changed: %q", cell.Source)
	}
	if string(cell.ExecutionCount) != "3" {
		t.Fatalf("execution_count changed: %s", cell.ExecutionCount)
	}
	if string(cell.Metadata) != `{"collapsed":false}` {
		t.Fatalf("metadata changed: %s", cell.Metadata)
	}
}

func TestSourceLines(t *testing.T) {
	lines := SourceLines("a\nb\n\nc")
	want := []string{"a\n", "b\n", "\n", "c"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %q", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if got := SourceLines(""); len(got) != 0 {
		t.Fatalf("expected no lines for empty source, got %q", got)
	}
}

func TestMetadataOrEmpty(t *testing.T) {
	doc := &Document{}
	if string(doc.MetadataOrEmpty()) != "{}" {
		t.Fatalf("expected {} for missing metadata, got %s", doc.MetadataOrEmpty())
	}
	doc.Metadata = json.RawMessage(`{"a":1}`)
	if string(doc.MetadataOrEmpty()) != `{"a":1}` {
		t.Fatalf("metadata not passed through: %s", doc.MetadataOrEmpty())
	}
}
