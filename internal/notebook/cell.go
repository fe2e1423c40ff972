package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies a cell. Only KindProse cells may carry front matter.
type Kind int

const (
	KindOther Kind = iota
	KindProse
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindProse:
		return "prose"
	case KindCode:
		return "code"
	default:
		return "other"
	}
}

const (
	typeMarkdown = "markdown"
	typeCode     = "code"
	typeRaw      = "raw"
)

func kindOf(cellType string) Kind {
	switch cellType {
	case typeMarkdown:
		return KindProse
	case typeCode:
		return KindCode
	default:
		return KindOther
	}
}

// Cell is one notebook cell. Type keeps the cell_type string as read so that
// unknown kinds survive a round trip; the remaining raw fields are the
// kind-specific members written back unchanged.
type Cell struct {
	Kind   Kind
	Type   string
	ID     string
	Source string

	Metadata       json.RawMessage
	Attachments    json.RawMessage
	ExecutionCount json.RawMessage
	Outputs        json.RawMessage
}

// NewProseCell builds a markdown cell with empty metadata.
func NewProseCell(source string) Cell {
	return Cell{Kind: KindProse, Type: typeMarkdown, Source: source}
}

// NewCodeCell builds a code cell that has not been executed.
func NewCodeCell(source string) Cell {
	return Cell{Kind: KindCode, Type: typeCode, Source: source}
}

func (c Cell) cellType() string {
	if c.Type != "" {
		return c.Type
	}
	switch c.Kind {
	case KindProse:
		return typeMarkdown
	case KindCode:
		return typeCode
	default:
		return typeRaw
	}
}

type wireCell struct {
	CellType       string          `json:"cell_type"`
	ID             string          `json:"id,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	Source         json.RawMessage `json:"source"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
	ExecutionCount json.RawMessage `json:"execution_count,omitempty"`
	Outputs        json.RawMessage `json:"outputs,omitempty"`
}

func (w wireCell) toCell() (Cell, error) {
	source, err := decodeSource(w.Source)
	if err != nil {
		return Cell{}, err
	}
	return Cell{
		Kind:           kindOf(w.CellType),
		Type:           w.CellType,
		ID:             w.ID,
		Source:         source,
		Metadata:       w.Metadata,
		Attachments:    w.Attachments,
		ExecutionCount: w.ExecutionCount,
		Outputs:        w.Outputs,
	}, nil
}

type codeCellJSON struct {
	CellType       string          `json:"cell_type"`
	ID             string          `json:"id,omitempty"`
	ExecutionCount json.RawMessage `json:"execution_count"`
	Metadata       json.RawMessage `json:"metadata"`
	Outputs        json.RawMessage `json:"outputs"`
	Source         []string        `json:"source"`
}

type textCellJSON struct {
	CellType    string          `json:"cell_type"`
	ID          string          `json:"id,omitempty"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
	Source      []string        `json:"source"`
}

// MarshalJSON writes the cell with the members its kind defines. Code cells
// always carry execution_count and outputs; other cells never do.
func (c Cell) MarshalJSON() ([]byte, error) {
	metadata := c.Metadata
	if len(metadata) == 0 || string(metadata) == "null" {
		metadata = json.RawMessage(`{}`)
	}
	if c.Kind == KindCode {
		executionCount := c.ExecutionCount
		if len(executionCount) == 0 {
			executionCount = json.RawMessage(`null`)
		}
		outputs := c.Outputs
		if len(outputs) == 0 || string(outputs) == "null" {
			outputs = json.RawMessage(`[]`)
		}
		return Marshal(codeCellJSON{
			CellType:       c.cellType(),
			ID:             c.ID,
			ExecutionCount: executionCount,
			Metadata:       metadata,
			Outputs:        outputs,
			Source:         SourceLines(c.Source),
		})
	}
	return Marshal(textCellJSON{
		CellType:    c.cellType(),
		ID:          c.ID,
		Attachments: c.Attachments,
		Metadata:    metadata,
		Source:      SourceLines(c.Source),
	})
}

// Marshal is json.Marshal without HTML escaping, so <, > and & in sources
// and metadata are written as they were read.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// SourceLines splits source into ipynb multiline form: every element but the
// last keeps its trailing newline.
func SourceLines(source string) []string {
	if source == "" {
		return []string{}
	}
	lines := strings.SplitAfter(source, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// decodeSource accepts both ipynb encodings of a cell source: a single string
// or a list of strings to be concatenated.
func decodeSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("source must be a string or a list of strings")
	}
	return strings.Join(parts, ""), nil
}
