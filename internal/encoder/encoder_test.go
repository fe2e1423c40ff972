package encoder

import (
	"bytes"
	"encoding/json"
	"testing"

	"nbpress/internal/frontmatter"
	"nbpress/internal/notebook"
)

func mustParse(t *testing.T, raw string) *notebook.Document {
	t.Helper()
	doc, err := notebook.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

func decodeCells(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out struct {
		Cells []map[string]any `json:"cells"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return out.Cells
}

func TestEncodeEnvelope(t *testing.T) {
	doc := mustParse(t, `{"cells":[{"cell_type":"markdown","metadata":{},"source":"hi"}],"metadata":{"lang":"go"},"nbformat":4,"nbformat_minor":5}`)
	data, err := Encode(doc, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"cells":[{"cell_type":"markdown","metadata":{},"source":["hi"]}],"metadata":{"lang":"go"},"nbformat":4,"nbformat_minor":0}`
	if string(data) != want {
		t.Fatalf("Encode() mismatch\n got: %s\nwant: %s", data, want)
	}
}

func TestEncodeKeepsMarkupUnescaped(t *testing.T) {
	doc := mustParse(t, `{"cells":[{"cell_type":"markdown","metadata":{"tag":"a&b"},"source":"<img src=\"a.png\"> & b"}],"metadata":{"x":"<y>"},"nbformat":4,"nbformat_minor":5}`)
	data, err := Encode(doc, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"cells":[{"cell_type":"markdown","metadata":{"tag":"a&b"},"source":["<img src=\"a.png\"> & b"]}],"metadata":{"x":"<y>"},"nbformat":4,"nbformat_minor":0}`
	if string(data) != want {
		t.Fatalf("Encode() mismatch\n got: %s\nwant: %s", data, want)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	doc := mustParse(t, `{"cells":[
		{"cell_type":"markdown","metadata":{},"source":["PostId: abc\n","Title: x"]},
		{"cell_type":"code","execution_count":1,"metadata":{},"outputs":[],"source":["1+1"]}
	],"metadata":{"b":2,"a":1}}`)
	ds := frontmatter.Directives{{Key: frontmatter.KeyPostID, Value: "abc"}, {Key: frontmatter.KeyTitle, Value: "x"}}

	first, err := Encode(doc, ds)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	second, err := Encode(doc, ds)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("Encode() not deterministic\n%s\n%s", first, second)
	}
}

func TestEncodeReplacesExistingPostIDCell(t *testing.T) {
	doc := mustParse(t, `{"cells":[
		{"cell_type":"markdown","metadata":{},"source":"PostId: old\nTitle: Old"},
		{"cell_type":"code","metadata":{},"source":"x"}
	],"metadata":{}}`)
	ds := frontmatter.Directives{{Key: frontmatter.KeyPostID, Value: "new"}, {Key: frontmatter.KeyTitle, Value: "New"}}

	data, err := Encode(doc, ds)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	cells := decodeCells(t, data)
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	src := cells[0]["source"].([]any)
	if src[0] != "PostId: new\n" || src[1] != "Title: New" {
		t.Fatalf("unexpected synthetic cell source %v", src)
	}
	if cells[1]["cell_type"] != "code" {
		t.Fatalf("expected code cell second, got %v", cells[1]["cell_type"])
	}
	if len(doc.Cells) != 2 || doc.Cells[0].Source != "PostId: old\nTitle: Old" {
		t.Fatal("document was mutated")
	}
}

func TestEncodeKeepsPlainFirstCell(t *testing.T) {
	doc := mustParse(t, `{"cells":[{"cell_type":"markdown","metadata":{},"source":"# Intro"}],"metadata":{}}`)
	ds := frontmatter.Directives{{Key: frontmatter.KeyPostID, Value: "p"}}

	data, err := Encode(doc, ds)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	cells := decodeCells(t, data)
	if len(cells) != 2 {
		t.Fatalf("expected synthetic cell plus original, got %d cells", len(cells))
	}
	if cells[1]["source"].([]any)[0] != "# Intro" {
		t.Fatalf("original first cell lost: %v", cells[1])
	}
}

func TestEncodeEmptyDocument(t *testing.T) {
	data, err := Encode(&notebook.Document{}, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(data) != `{"cells":[],"metadata":{},"nbformat":4,"nbformat_minor":0}` {
		t.Fatalf("unexpected empty encoding %s", data)
	}
}

func TestEncodeRoundTripsThroughParse(t *testing.T) {
	doc := mustParse(t, `{"cells":[
		{"cell_type":"code","execution_count":7,"metadata":{"tags":["x"]},"outputs":[{"output_type":"execute_result"}],"source":"a\nb"},
		{"cell_type":"raw","metadata":{},"source":"raw text"}
	],"metadata":{}}`)
	data, err := Encode(doc, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	back := mustParse(t, string(data))
	if len(back.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(back.Cells))
	}
	if back.Cells[0].Source != "a\nb" || string(back.Cells[0].ExecutionCount) != "7" {
		t.Fatalf("code cell changed: %+v", back.Cells[0])
	}
	if back.Cells[1].Type != "raw" || back.Cells[1].Source != "raw text" {
		t.Fatalf("raw cell changed: %+v", back.Cells[1])
	}
}
