// Package models defines the domain types for nbsync.
package models

import (
	"bytes"
	"encoding/json"
	"maps"
)

// NoFile is the File value of cells that did not originate from a source file.
const NoFile = "no file"

// CellType is the interchange cell kind.
type CellType string

// Cell types understood by the interchange format.
const (
	CellTypeCode     CellType = "code"
	CellTypeMarkdown CellType = "markdown"
	CellTypeRaw      CellType = "raw"
)

// ExecutionState tracks where a cell is in its execution lifecycle.
type ExecutionState string

// Execution states.
const (
	StateUnknown   ExecutionState = "unknown"
	StateExecuting ExecutionState = "executing"
	StateFinished  ExecutionState = "finished"
	StateError     ExecutionState = "error"
)

// Cell is one entry of a notebook. Identity is ID; everything else is mutable.
type Cell struct {
	ID    string         `json:"id"`
	File  string         `json:"file"`
	Line  int            `json:"line"`
	State ExecutionState `json:"state"`
	Data  CellData       `json:"data"`
}

// CellData is the interchange payload of a cell. Source always holds the
// joined text; the line-array form only exists on the wire.
type CellData struct {
	CellType       CellType                   `json:"cell_type"`
	Source         string                     `json:"source"`
	Metadata       json.RawMessage            `json:"metadata,omitempty"`
	Outputs        []json.RawMessage          `json:"outputs,omitempty"`
	ExecutionCount *int                       `json:"execution_count,omitempty"`
	Extra          map[string]json.RawMessage `json:"extra,omitempty"`
}

// NewEmptyCell returns a blank code cell with the given id.
func NewEmptyCell(id string) Cell {
	return Cell{
		ID:    id,
		File:  NoFile,
		State: StateFinished,
		Data: CellData{
			CellType: CellTypeCode,
			Outputs:  []json.RawMessage{},
		},
	}
}

// Clone returns a deep copy of c.
func (c Cell) Clone() Cell {
	out := c
	out.Data.Metadata = cloneRaw(c.Data.Metadata)
	if c.Data.Outputs != nil {
		out.Data.Outputs = make([]json.RawMessage, len(c.Data.Outputs))
		for i, o := range c.Data.Outputs {
			out.Data.Outputs[i] = cloneRaw(o)
		}
	}
	if c.Data.ExecutionCount != nil {
		n := *c.Data.ExecutionCount
		out.Data.ExecutionCount = &n
	}
	if c.Data.Extra != nil {
		out.Data.Extra = make(map[string]json.RawMessage, len(c.Data.Extra))
		for k, v := range c.Data.Extra {
			out.Data.Extra[k] = cloneRaw(v)
		}
	}
	return out
}

// Equal reports whether two cells carry the same content. Nil and empty
// collections compare equal.
func (c Cell) Equal(o Cell) bool {
	if c.ID != o.ID || c.File != o.File || c.Line != o.Line || c.State != o.State {
		return false
	}
	a, b := c.Data, o.Data
	if a.CellType != b.CellType || a.Source != b.Source {
		return false
	}
	if !bytes.Equal(a.Metadata, b.Metadata) {
		return false
	}
	if len(a.Outputs) != len(b.Outputs) {
		return false
	}
	for i := range a.Outputs {
		if !bytes.Equal(a.Outputs[i], b.Outputs[i]) {
			return false
		}
	}
	if (a.ExecutionCount == nil) != (b.ExecutionCount == nil) {
		return false
	}
	if a.ExecutionCount != nil && *a.ExecutionCount != *b.ExecutionCount {
		return false
	}
	if len(a.Extra) != len(b.Extra) {
		return false
	}
	return maps.EqualFunc(a.Extra, b.Extra, func(x, y json.RawMessage) bool { return bytes.Equal(x, y) })
}

// CloneCells deep copies a cell list.
func CloneCells(cells []Cell) []Cell {
	if cells == nil {
		return nil
	}
	out := make([]Cell, len(cells))
	for i, c := range cells {
		out[i] = c.Clone()
	}
	return out
}

// CellsEqual compares two cell lists element by element.
func CellsEqual(a, b []Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// IndexOf returns the position of the cell with the given id, or -1.
func IndexOf(cells []Cell, id string) int {
	for i, c := range cells {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	out := make(json.RawMessage, len(r))
	copy(out, r)
	return out
}
