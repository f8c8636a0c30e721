// Package nbformat reads and writes the Jupyter notebook interchange format.
// Top-level fields keep their original order and unknown fields survive a
// load/save round trip.
package nbformat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

// Top-level keys.
const (
	KeyCells         = "cells"
	KeyMetadata      = "metadata"
	KeyNBFormat      = "nbformat"
	KeyNBFormatMinor = "nbformat_minor"
)

// Fields holds the top-level notebook object in document order.
type Fields = orderedmap.OrderedMap[string, json.RawMessage]

// Notebook is a parsed interchange document.
type Notebook struct {
	// Fields holds every top-level key, including the original cells array.
	// It is nil when the content was empty.
	Fields *Fields
	Cells  []models.Cell
	Indent string
}

// NewFields returns an empty top-level object.
func NewFields() *Fields {
	return orderedmap.New[string, json.RawMessage]()
}

// Parse decodes content. Empty content yields a notebook with no fields and
// no cells. Content that is not a JSON object or lacks a cells array wraps
// apperr.ErrInvalidNotebook.
func Parse(data []byte) (*Notebook, error) {
	nb := &Notebook{Indent: DetectIndent(data)}
	if len(bytes.TrimSpace(data)) == 0 {
		return nb, nil
	}

	fields := NewFields()
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidNotebook, err)
	}
	rawCells, ok := fields.Get(KeyCells)
	if !ok || bytes.Equal(bytes.TrimSpace(rawCells), []byte("null")) {
		return nil, fmt.Errorf("%w: no cells", apperr.ErrInvalidNotebook)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawCells, &items); err != nil {
		return nil, fmt.Errorf("%w: cells: %v", apperr.ErrInvalidNotebook, err)
	}

	nb.Fields = fields
	nb.Cells = make([]models.Cell, 0, len(items))
	for i, raw := range items {
		c, err := DecodeCell(raw, ImportID(i))
		if err != nil {
			return nil, errors.Join(apperr.ErrInvalidNotebook, err)
		}
		nb.Cells = append(nb.Cells, c)
	}
	return nb, nil
}

// Serialize renders fields with cells substituted for the cells key and
// indents the result with indent (DefaultIndent when empty). The output ends
// with a newline.
func Serialize(fields *Fields, cells []models.Cell, indent string) ([]byte, error) {
	encoded := make([]json.RawMessage, len(cells))
	for i, c := range cells {
		raw, err := EncodeCell(c)
		if err != nil {
			return nil, fmt.Errorf("nbformat: cell %s: %w", c.ID, err)
		}
		encoded[i] = raw
	}
	cellsRaw, err := writeArray(encoded)
	if err != nil {
		return nil, err
	}

	out := NewFields()
	if fields != nil {
		for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}
	out.Set(KeyCells, cellsRaw)

	keys := make([]string, 0, out.Len())
	for pair := out.Oldest(); pair != nil; pair = pair.Next() {
		if !json.Valid(pair.Value) {
			return nil, fmt.Errorf("nbformat: field %q is not valid JSON", pair.Key)
		}
		keys = append(keys, pair.Key)
	}
	flat, err := writeObject(keys, func(k string) json.RawMessage {
		v, _ := out.Get(k)
		return v
	})
	if err != nil {
		return nil, err
	}

	if indent == "" {
		indent = DefaultIndent
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, flat, "", indent); err != nil {
		return nil, fmt.Errorf("nbformat: indent: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Format parses data and writes it back through the codec.
func Format(data []byte) ([]byte, error) {
	nb, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Serialize(nb.Fields, nb.Cells, nb.Indent)
}
