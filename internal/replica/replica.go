package replica

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/history"
	"github.com/starford/nbsync/internal/models"
)

// Sender forwards a locally applied change to the document model. It must
// not block on the receiver.
type Sender func(change.Change) error

// Option configures a Replica.
type Option func(*Replica)

// WithHistoryLimit bounds the local undo and redo stacks.
func WithHistoryLimit(n int) Option {
	return func(r *Replica) { r.limit = n }
}

// WithLogger sets the replica logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) { r.logger = l }
}

// Replica holds the presentation copy of one notebook.
type Replica struct {
	id     string
	send   Sender
	limit  int
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	engine *history.Engine[[]CellVM]
}

// New returns an empty replica identified by id. Changes it originates carry
// id as their Origin.
func New(id string, send Sender, opts ...Option) *Replica {
	r := &Replica{
		id:     id,
		send:   send,
		limit:  history.DefaultLimit,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With(slog.String("replica", id))
	r.engine = history.New(r.limit, applyVM)
	return r
}

// ID returns the replica id.
func (r *Replica) ID() string { return r.id }

// State returns a copy of the current view.
func (r *Replica) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.state
	out.Cells = make([]CellVM, len(r.state.Cells))
	for i, vm := range r.state.Cells {
		vm.Cell = vm.Cell.Clone()
		out.Cells[i] = vm
	}
	return out
}

// Cells returns a copy of the underlying cells.
func (r *Replica) Cells() []models.Cell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.CloneCells(cellsOf(r.state.Cells))
}

func (r *Replica) CanUndo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.CanUndo()
}

func (r *Replica) CanRedo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.CanRedo()
}

// InsertAbove inserts an empty code cell above cellID. An unknown id inserts
// at the top.
func (r *Replica) InsertAbove(cellID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := max(indexOf(r.state.Cells, cellID), 0)
	return r.insertLocked(idx)
}

// InsertBelow inserts an empty code cell below cellID. An unknown id appends.
func (r *Replica) InsertBelow(cellID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.state.Cells, cellID)
	if idx < 0 {
		idx = len(r.state.Cells)
	} else {
		idx++
	}
	return r.insertLocked(idx)
}

// InsertAboveFirst inserts an empty code cell at the top.
func (r *Replica) InsertAboveFirst() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(0)
}

// AddNewCell inserts an empty code cell below the selection, or at the end
// when nothing is selected.
func (r *Replica) AddNewCell() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := len(r.state.Cells)
	if i := indexOf(r.state.Cells, r.state.SelectedCellID); i >= 0 {
		idx = i + 1
	}
	return r.insertLocked(idx)
}

func (r *Replica) insertLocked(idx int) (string, error) {
	cell := models.NewEmptyCell(change.NewID())
	c := change.NewInsert(cell, idx, r.codeCellAboveLocked(idx))
	if err := r.commitLocked(c); err != nil {
		return "", err
	}
	r.selectLocked(cell.ID, true, CursorTop)
	return cell.ID, nil
}

// codeCellAboveLocked returns the nearest code cell strictly above idx.
func (r *Replica) codeCellAboveLocked(idx int) string {
	for i := min(idx, len(r.state.Cells)) - 1; i >= 0; i-- {
		if r.state.Cells[i].Cell.Data.CellType == models.CellTypeCode {
			return r.state.Cells[i].Cell.ID
		}
	}
	return ""
}

// DeleteCell removes cellID. Deleting the only cell leaves an empty cell
// with the same id. Selection moves to the next cell, or the previous one
// when the last cell was removed.
func (r *Replica) DeleteCell(cellID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.state.Cells, cellID)
	if idx < 0 {
		return nil
	}
	wasSelected := r.state.SelectedCellID == cellID
	wasFocused := r.state.FocusedCellID == cellID

	c := change.NewRemove(r.state.Cells[idx].Cell, idx, "")
	if err := r.commitLocked(c); err != nil {
		return err
	}
	if !wasSelected && !wasFocused {
		return nil
	}
	next := min(idx, len(r.state.Cells)-1)
	r.selectLocked(r.state.Cells[next].Cell.ID, wasFocused, CursorCurrent)
	return nil
}

// DeleteAllCells replaces every cell with one new empty cell and clears the
// selection.
func (r *Replica) DeleteAllCells() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := change.NewRemoveAll(cellsOf(r.state.Cells), change.NewID())
	if err := r.commitLocked(c); err != nil {
		return err
	}
	r.selectLocked("", false, CursorCurrent)
	return nil
}

// MoveCellUp swaps cellID with the cell above it.
func (r *Replica) MoveCellUp(cellID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.state.Cells, cellID)
	if idx <= 0 {
		return nil
	}
	return r.commitLocked(change.NewSwap(r.state.Cells[idx-1].Cell.ID, cellID))
}

// MoveCellDown swaps cellID with the cell below it.
func (r *Replica) MoveCellDown(cellID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.state.Cells, cellID)
	if idx < 0 || idx >= len(r.state.Cells)-1 {
		return nil
	}
	return r.commitLocked(change.NewSwap(cellID, r.state.Cells[idx+1].Cell.ID))
}

// SwapCells exchanges two cells.
func (r *Replica) SwapCells(firstID, secondID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(change.NewSwap(firstID, secondID))
}

// ClearAllOutputs drops outputs and execution counts of every code cell.
func (r *Replica) ClearAllOutputs() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(change.NewClear(cellsOf(r.state.Cells)))
}

// SetUncommittedText records in-flight editor text for cellID. It is UI
// state only and is replaced by the next committed edit.
func (r *Replica) SetUncommittedText(cellID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := indexOf(r.state.Cells, cellID); i >= 0 {
		r.state.Cells[i].UncommittedText = text
	}
}

// EditCell commits text range replacements to cellID.
func (r *Replica) EditCell(cellID string, changes ...change.ContentChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.state.Cells, cellID)
	if idx < 0 {
		return nil
	}
	c := change.NewEdit(cellID, r.state.Cells[idx].Cell.Data.Source, changes...)
	return r.commitLocked(c)
}

// UpdateCellState replaces cells by id after execution. Unknown ids are
// ignored by the reducer.
func (r *Replica) UpdateCellState(cells ...models.Cell) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := make([]models.Cell, 0, len(cells))
	for _, c := range cells {
		if i := indexOf(r.state.Cells, c.ID); i >= 0 {
			old = append(old, r.state.Cells[i].Cell)
		}
	}
	return r.commitLocked(change.NewModify(old, cells))
}

// Undo reverts the newest local history entry and tells the model.
func (r *Replica) Undo() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.engine.NextUndo()
	if err != nil {
		return err
	}
	return r.replayLocked(c)
}

// Redo reapplies the newest undone entry and tells the model.
func (r *Replica) Redo() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.engine.NextRedo()
	if err != nil {
		return err
	}
	if err := r.replayLocked(c); err != nil {
		return err
	}
	if c.Kind == change.KindInsert && c.Cell != nil {
		r.selectLocked(c.Cell.ID, false, CursorCurrent)
	}
	return nil
}

func (r *Replica) replayLocked(c change.Change) error {
	c.Origin = r.id
	if err := r.handleLocked(c); err != nil {
		return err
	}
	return r.sendLocked(c)
}

// SelectCell marks cellID as selected. An empty id clears the selection.
func (r *Replica) SelectCell(cellID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectLocked(cellID, r.state.FocusedCellID != "" && r.state.FocusedCellID == cellID, CursorCurrent)
}

// FocusCell selects cellID and gives it focus with the caret at pos.
func (r *Replica) FocusCell(cellID string, pos CursorPos) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectLocked(cellID, true, pos)
}

func (r *Replica) selectLocked(cellID string, focus bool, pos CursorPos) {
	if indexOf(r.state.Cells, cellID) < 0 {
		cellID = ""
	}
	r.state.SelectedCellID = cellID
	r.state.FocusedCellID = ""
	if focus {
		r.state.FocusedCellID = cellID
	}
	for i := range r.state.Cells {
		vm := &r.state.Cells[i]
		vm.Selected = vm.Cell.ID == cellID && cellID != ""
		vm.Focused = vm.Selected && focus
		if vm.Focused {
			vm.CursorPos = pos
		}
	}
}

// commitLocked applies a user change locally and forwards it.
func (r *Replica) commitLocked(c change.Change) error {
	c.Source = change.SourceUser
	c.Origin = r.id
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.handleLocked(c); err != nil {
		return err
	}
	return r.sendLocked(c)
}

func (r *Replica) handleLocked(c change.Change) error {
	next, err := r.engine.Handle(history.State[[]CellVM]{Snapshot: r.state.Cells, Dirty: r.state.Dirty}, c)
	if err != nil {
		return fmt.Errorf("replica: apply %s: %w", c.Kind, err)
	}
	r.state.Cells = next.Snapshot
	r.state.Dirty = next.Dirty
	r.fixSelectionLocked()
	return nil
}

func (r *Replica) sendLocked(c change.Change) error {
	if r.send == nil {
		return nil
	}
	if err := r.send(c); err != nil {
		return fmt.Errorf("replica: send %s: %w", c.Kind, err)
	}
	return nil
}

// fixSelectionLocked drops selection and focus pointing at removed cells.
func (r *Replica) fixSelectionLocked() {
	if r.state.SelectedCellID != "" && indexOf(r.state.Cells, r.state.SelectedCellID) < 0 {
		r.state.SelectedCellID = ""
	}
	if r.state.FocusedCellID != "" && indexOf(r.state.Cells, r.state.FocusedCellID) < 0 {
		r.state.FocusedCellID = ""
	}
}
