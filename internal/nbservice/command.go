package nbservice

import (
	"fmt"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/replica"
)

// Replica command names.
const (
	OpInsertAbove      = "insert_above"
	OpInsertBelow      = "insert_below"
	OpInsertAboveFirst = "insert_above_first"
	OpAddCell          = "add_cell"
	OpDelete           = "delete"
	OpDeleteAll        = "delete_all"
	OpMoveUp           = "move_up"
	OpMoveDown         = "move_down"
	OpSwap             = "swap"
	OpClearOutputs     = "clear_outputs"
	OpEdit             = "edit"
	OpUpdateState      = "update_state"
	OpUndo             = "undo"
	OpRedo             = "redo"
	OpSelect           = "select"
	OpFocus            = "focus"
	OpType             = "type"
)

var (
	allOps = []any{
		OpInsertAbove, OpInsertBelow, OpInsertAboveFirst, OpAddCell, OpDelete,
		OpDeleteAll, OpMoveUp, OpMoveDown, OpSwap, OpClearOutputs, OpEdit,
		OpUpdateState, OpUndo, OpRedo, OpSelect, OpFocus, OpType,
	}
	cellOps = []any{
		OpInsertAbove, OpInsertBelow, OpDelete, OpMoveUp, OpMoveDown,
		OpSwap, OpEdit, OpFocus, OpType,
	}
)

// Command is a user action performed on the presentation replica of a
// notebook. The replica applies it at once and forwards the resulting
// change to the model.
type Command struct {
	Op      string                 `json:"op"`
	CellID  string                 `json:"cell_id,omitempty"`
	OtherID string                 `json:"other_id,omitempty"`
	Changes []change.ContentChange `json:"changes,omitempty"`
	Cells   []models.Cell          `json:"cells,omitempty"`
	Text    string                 `json:"text,omitempty"`
	Cursor  replica.CursorPos      `json:"cursor,omitempty"`
}

// Validate checks that the fields the command needs are present.
func (c Command) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Op, validation.Required, validation.In(allOps...)),
		validation.Field(&c.CellID, validation.When(slices.Contains(cellOps, any(c.Op)), validation.Required)),
		validation.Field(&c.OtherID, validation.When(c.Op == OpSwap, validation.Required)),
		validation.Field(&c.Changes, validation.When(c.Op == OpEdit, validation.Required)),
		validation.Field(&c.Cells, validation.When(c.Op == OpUpdateState, validation.Required)),
		validation.Field(&c.Cursor, validation.In(replica.CursorCurrent, replica.CursorTop, replica.CursorBottom)),
	)
}

// Exec runs cmd on the replica of the notebook at loc and returns the
// replica state afterwards.
func (s *Service) Exec(loc models.Location, cmd Command) (replica.State, error) {
	if err := cmd.Validate(); err != nil {
		return replica.State{}, fmt.Errorf("%w: %v", apperr.ErrInvalidChange, err)
	}
	sess, err := s.session(loc)
	if err != nil {
		return replica.State{}, err
	}
	r := sess.link.Replica()

	switch cmd.Op {
	case OpInsertAbove:
		_, err = r.InsertAbove(cmd.CellID)
	case OpInsertBelow:
		_, err = r.InsertBelow(cmd.CellID)
	case OpInsertAboveFirst:
		_, err = r.InsertAboveFirst()
	case OpAddCell:
		_, err = r.AddNewCell()
	case OpDelete:
		err = r.DeleteCell(cmd.CellID)
	case OpDeleteAll:
		err = r.DeleteAllCells()
	case OpMoveUp:
		err = r.MoveCellUp(cmd.CellID)
	case OpMoveDown:
		err = r.MoveCellDown(cmd.CellID)
	case OpSwap:
		err = r.SwapCells(cmd.CellID, cmd.OtherID)
	case OpClearOutputs:
		err = r.ClearAllOutputs()
	case OpEdit:
		err = r.EditCell(cmd.CellID, cmd.Changes...)
	case OpUpdateState:
		err = r.UpdateCellState(cmd.Cells...)
	case OpUndo:
		err = r.Undo()
	case OpRedo:
		err = r.Redo()
	case OpSelect:
		r.SelectCell(cmd.CellID)
	case OpFocus:
		pos := cmd.Cursor
		if pos == "" {
			pos = replica.CursorCurrent
		}
		r.FocusCell(cmd.CellID, pos)
	case OpType:
		r.SetUncommittedText(cmd.CellID, cmd.Text)
	}
	if err != nil {
		return replica.State{}, err
	}
	return r.State(), nil
}
