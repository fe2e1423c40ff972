// Package encoder produces the canonical serialized form of a notebook that
// is uploaded to the content store.
package encoder

import (
	"encoding/json"
	"fmt"

	"nbpress/internal/frontmatter"
	"nbpress/internal/notebook"
)

const (
	formatMajor = 4
	formatMinor = 0
)

type envelope struct {
	Cells         []notebook.Cell `json:"cells"`
	Metadata      json.RawMessage `json:"metadata"`
	Nbformat      int             `json:"nbformat"`
	NbformatMinor int             `json:"nbformat_minor"`
}

// Encode serializes doc. When synthetic is non-empty a prose cell holding the
// directives is prepended, and the document's own first cell is dropped if it
// already carried a PostId directive. doc is not modified.
func Encode(doc *notebook.Document, synthetic frontmatter.Directives) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("encode notebook: nil document")
	}

	cells := doc.Cells
	if len(synthetic) > 0 {
		if fm, ok := frontmatter.Extract(doc); ok {
			if _, has := fm[frontmatter.KeyPostID]; has {
				cells = cells[1:]
			}
		}
		out := make([]notebook.Cell, 0, len(cells)+1)
		out = append(out, synthetic.Cell())
		cells = append(out, cells...)
	}
	if cells == nil {
		cells = []notebook.Cell{}
	}

	data, err := notebook.Marshal(envelope{
		Cells:         cells,
		Metadata:      doc.MetadataOrEmpty(),
		Nbformat:      formatMajor,
		NbformatMinor: formatMinor,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}
	return data, nil
}
