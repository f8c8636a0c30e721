package replica

import (
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
)

// LoadAllCells replaces the view with cells pushed by the model after a load
// or reload. Local history is dropped; selection survives when its cell does.
func (r *Replica) LoadAllCells(cells []models.Cell, dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := make(map[string]CellVM, len(r.state.Cells))
	for _, vm := range r.state.Cells {
		prev[vm.Cell.ID] = vm
	}
	vms := make([]CellVM, len(cells))
	for i, c := range cells {
		vm := newVM(c.Clone(), c.Data.ExecutionCount != nil)
		if old, ok := prev[c.ID]; ok {
			vm.Selected, vm.Focused, vm.CursorPos = old.Selected, old.Focused, old.CursorPos
		}
		vms[i] = vm
	}
	r.state.Cells = vms
	r.state.Dirty = dirty
	r.state.Loaded = true
	r.engine.Reset()
	r.fixSelectionLocked()
}

// HandleUpdate applies a change the model reports that this replica did not
// originate, such as an undo triggered on the model side. It is replayed
// through the local history so both histories see the same inputs, and is
// never sent back.
func (r *Replica) HandleUpdate(c change.Change) error {
	if c.Origin == r.id {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.handleLocked(c); err != nil {
		return err
	}
	if c.Undoable() {
		r.state.Dirty = c.NewDirty
	}
	return nil
}

// SetDirty records the model's dirty flag after a save.
func (r *Replica) SetDirty(dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Dirty = dirty
}
