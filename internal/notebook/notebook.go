// Package notebook models notebook documents: an ordered list of typed cells
// plus opaque document metadata, read from and written to the ipynb JSON form.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidDocument indicates the input bytes are not a notebook document.
var ErrInvalidDocument = errors.New("invalid notebook document")

// Document is a parsed notebook. The engine never mutates a Document it is
// handed; Metadata is carried through without interpretation.
type Document struct {
	Cells    []Cell
	Metadata json.RawMessage
}

type wireDocument struct {
	Cells         []wireCell      `json:"cells"`
	Metadata      json.RawMessage `json:"metadata"`
	Nbformat      int             `json:"nbformat"`
	NbformatMinor int             `json:"nbformat_minor"`
}

// Parse decodes notebook JSON.
func Parse(data []byte) (*Document, error) {
	var wire wireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	doc := &Document{
		Cells:    make([]Cell, 0, len(wire.Cells)),
		Metadata: wire.Metadata,
	}
	for i, wc := range wire.Cells {
		cell, err := wc.toCell()
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrInvalidDocument, i, err)
		}
		doc.Cells = append(doc.Cells, cell)
	}
	return doc, nil
}

// Read decodes a notebook from r.
func Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	return Parse(data)
}

// First returns the first cell, if any.
func (d *Document) First() (Cell, bool) {
	if d == nil || len(d.Cells) == 0 {
		return Cell{}, false
	}
	return d.Cells[0], true
}

// MetadataOrEmpty returns the document metadata, or an empty JSON object when
// the document carried none.
func (d *Document) MetadataOrEmpty() json.RawMessage {
	if d == nil || len(d.Metadata) == 0 || string(d.Metadata) == "null" {
		return json.RawMessage(`{}`)
	}
	return d.Metadata
}
