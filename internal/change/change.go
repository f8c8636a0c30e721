// Package change defines the structural edits exchanged between a notebook
// document and its presentation replica, and the pure functions that apply
// and invert them.
package change

import (
	"github.com/google/uuid"

	"github.com/starford/nbsync/internal/models"
)

// Kind discriminates the Change payload.
type Kind string

// Change kinds.
const (
	KindEdit      Kind = "edit"
	KindInsert    Kind = "insert"
	KindRemove    Kind = "remove"
	KindRemoveAll Kind = "remove_all"
	KindSwap      Kind = "swap"
	KindClear     Kind = "clear"
	KindModify    Kind = "modify"
	KindVersion   Kind = "version"

	// KindRestore replaces the whole cell list. It only appears as the
	// inverse of clear and remove_all.
	KindRestore Kind = "restore"
)

// Source records why a change is being applied.
type Source string

// Change sources.
const (
	SourceUser Source = "user"
	SourceUndo Source = "undo"
	SourceRedo Source = "redo"
)

// VersionInfo is the kernel/interpreter identity carried by a version change.
type VersionInfo struct {
	InterpreterVersion string `json:"interpreterVersion,omitempty"`
	KernelName         string `json:"kernelName,omitempty"`
	KernelDisplayName  string `json:"kernelDisplayName,omitempty"`
}

// Change is a tagged union over Kind. Only the fields of the active kind are set.
//
// Anything that must match on both replicas but would normally be generated
// randomly (the change ID, new cell ids) is generated by the originating side
// and carried here.
type Change struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Source   Source `json:"source"`
	Origin   string `json:"origin,omitempty"`
	OldDirty bool   `json:"oldDirty"`
	NewDirty bool   `json:"newDirty"`

	// edit
	CellID  string          `json:"cellId,omitempty"`
	Forward []ContentChange `json:"forward,omitempty"`
	Reverse []ContentChange `json:"reverse,omitempty"`

	// insert, remove
	Cell            *models.Cell `json:"cell,omitempty"`
	Index           int          `json:"index,omitempty"`
	CodeCellAboveID string       `json:"codeCellAboveId,omitempty"`

	// remove, remove_all, insert (placeholder)
	NewCellID string `json:"newCellId,omitempty"`

	// swap
	FirstCellID  string `json:"firstCellId,omitempty"`
	SecondCellID string `json:"secondCellId,omitempty"`

	// clear, remove_all, modify, restore
	OldCells []models.Cell `json:"oldCells,omitempty"`
	NewCells []models.Cell `json:"newCells,omitempty"`

	// version
	Version *VersionInfo `json:"version,omitempty"`
}

// NewID returns a fresh identifier for changes and cells.
func NewID() string {
	return uuid.NewString()
}

// NewEdit builds an edit of the cell whose current text is current. The
// reverse ranges are computed here because the replaced text is only known
// at creation time.
func NewEdit(cellID, current string, changes ...ContentChange) Change {
	forward := make([]ContentChange, len(changes))
	for i, c := range changes {
		forward[i] = c.normalized()
	}
	return Change{
		ID:      NewID(),
		Kind:    KindEdit,
		Source:  SourceUser,
		CellID:  cellID,
		Forward: forward,
		Reverse: reverseOf(current, forward),
	}
}

// NewInsert inserts cell at index. codeCellAboveID is a placement hint for replicas.
func NewInsert(cell models.Cell, index int, codeCellAboveID string) Change {
	c := cell.Clone()
	return Change{
		ID:              NewID(),
		Kind:            KindInsert,
		Source:          SourceUser,
		Cell:            &c,
		Index:           index,
		CodeCellAboveID: codeCellAboveID,
	}
}

// NewRemove removes cell, found at index. If it is the only cell it is
// replaced by an empty cell with id newCellID.
func NewRemove(cell models.Cell, index int, newCellID string) Change {
	c := cell.Clone()
	return Change{
		ID:        NewID(),
		Kind:      KindRemove,
		Source:    SourceUser,
		Cell:      &c,
		Index:     index,
		NewCellID: newCellID,
	}
}

// NewRemoveAll replaces every cell with one empty cell with id newCellID.
func NewRemoveAll(oldCells []models.Cell, newCellID string) Change {
	return Change{
		ID:        NewID(),
		Kind:      KindRemoveAll,
		Source:    SourceUser,
		OldCells:  models.CloneCells(oldCells),
		NewCellID: newCellID,
	}
}

// NewSwap exchanges the positions of two cells.
func NewSwap(firstCellID, secondCellID string) Change {
	return Change{
		ID:           NewID(),
		Kind:         KindSwap,
		Source:       SourceUser,
		FirstCellID:  firstCellID,
		SecondCellID: secondCellID,
	}
}

// NewClear clears outputs and execution counts of every code cell.
func NewClear(oldCells []models.Cell) Change {
	return Change{
		ID:       NewID(),
		Kind:     KindClear,
		Source:   SourceUser,
		OldCells: models.CloneCells(oldCells),
	}
}

// NewModify replaces cells by id, typically after execution state changes.
func NewModify(oldCells, newCells []models.Cell) Change {
	return Change{
		ID:       NewID(),
		Kind:     KindModify,
		Source:   SourceUser,
		OldCells: models.CloneCells(oldCells),
		NewCells: models.CloneCells(newCells),
	}
}

// NewVersion updates kernel and language identity in the document metadata.
func NewVersion(v VersionInfo) Change {
	return Change{
		ID:      NewID(),
		Kind:    KindVersion,
		Source:  SourceUser,
		Version: &v,
	}
}

// WithSource returns a copy of c replayed with source s.
func (c Change) WithSource(s Source) Change {
	out := c.Clone()
	out.Source = s
	return out
}

// Clone returns a deep copy of c.
func (c Change) Clone() Change {
	out := c
	if c.Forward != nil {
		out.Forward = append([]ContentChange(nil), c.Forward...)
	}
	if c.Reverse != nil {
		out.Reverse = append([]ContentChange(nil), c.Reverse...)
	}
	if c.Cell != nil {
		cell := c.Cell.Clone()
		out.Cell = &cell
	}
	out.OldCells = models.CloneCells(c.OldCells)
	out.NewCells = models.CloneCells(c.NewCells)
	if c.Version != nil {
		v := *c.Version
		out.Version = &v
	}
	return out
}

// Undoable reports whether the change participates in undo history.
func (c Change) Undoable() bool {
	return c.Kind != KindVersion
}
