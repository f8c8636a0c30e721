// Package replica is the presentation-side copy of a notebook. It applies
// every change optimistically to its own view-model list and forwards the
// same change to the document model.
package replica

import (
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
)

// CursorPos is where the caret goes when a cell gains focus.
type CursorPos string

const (
	CursorCurrent CursorPos = "current"
	CursorTop     CursorPos = "top"
	CursorBottom  CursorPos = "bottom"
)

// CellVM is a cell plus UI-only state.
type CellVM struct {
	Cell            models.Cell `json:"cell"`
	Selected        bool        `json:"selected"`
	Focused         bool        `json:"focused"`
	InputText       string      `json:"inputText"`
	UncommittedText string      `json:"uncommittedText,omitempty"`
	CursorPos       CursorPos   `json:"cursorPos"`
	HasBeenRun      bool        `json:"hasBeenRun"`
	CodeVersion     int         `json:"codeVersion"`
}

// State is the replica's view.
type State struct {
	Cells          []CellVM `json:"cells"`
	SelectedCellID string   `json:"selectedCellId,omitempty"`
	FocusedCellID  string   `json:"focusedCellId,omitempty"`
	Dirty          bool     `json:"dirty"`
	Loaded         bool     `json:"loaded"`
}

func newVM(c models.Cell, hasBeenRun bool) CellVM {
	return CellVM{
		Cell:       c,
		InputText:  c.Data.Source,
		CursorPos:  CursorCurrent,
		HasBeenRun: hasBeenRun,
	}
}

func cellsOf(vms []CellVM) []models.Cell {
	out := make([]models.Cell, len(vms))
	for i, vm := range vms {
		out[i] = vm.Cell
	}
	return out
}

func indexOf(vms []CellVM, id string) int {
	for i, vm := range vms {
		if vm.Cell.ID == id {
			return i
		}
	}
	return -1
}

// applyVM runs the shared change logic over the cells of vms and carries UI
// state over to cells that survive. It never modifies vms.
func applyVM(vms []CellVM, c change.Change) []CellVM {
	next := change.Apply(cellsOf(vms), c)

	prev := make(map[string]CellVM, len(vms))
	for _, vm := range vms {
		prev[vm.Cell.ID] = vm
	}

	out := make([]CellVM, len(next))
	for i, cell := range next {
		old, ok := prev[cell.ID]
		if !ok {
			out[i] = newVM(cell, false)
			continue
		}
		vm := old
		vm.Cell = cell
		if cell.Data.Source != old.Cell.Data.Source {
			vm.InputText = cell.Data.Source
			vm.UncommittedText = ""
			vm.CodeVersion++
		}
		if c.Kind == change.KindModify && containsID(c.NewCells, cell.ID) {
			vm.HasBeenRun = true
		}
		out[i] = vm
	}
	return out
}

func containsID(cells []models.Cell, id string) bool {
	return models.IndexOf(cells, id) >= 0
}
