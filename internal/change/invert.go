package change

import (
	"errors"
	"fmt"

	"github.com/starford/nbsync/internal/models"
)

// ErrNotInvertible is returned for changes that do not take part in undo.
var ErrNotInvertible = errors.New("change: not invertible")

// Invert returns the change that undoes c. The inverse keeps c's ID so that
// both replicas can match it against their history.
func Invert(c Change) (Change, error) {
	inv := c.Clone()

	switch c.Kind {
	case KindEdit:
		inv.Forward, inv.Reverse = inv.Reverse, inv.Forward

	case KindInsert:
		inv.Kind = KindRemove

	case KindRemove:
		inv.Kind = KindInsert

	case KindRemoveAll:
		inv.Kind = KindRestore
		inv.NewCells = models.CloneCells(c.OldCells)
		inv.OldCells = []models.Cell{models.NewEmptyCell(c.NewCellID)}

	case KindSwap:
		// self-inverse

	case KindClear:
		inv.Kind = KindRestore
		inv.NewCells = models.CloneCells(c.OldCells)
		inv.OldCells = clearOutputs(models.CloneCells(c.OldCells))

	case KindModify:
		inv.OldCells, inv.NewCells = inv.NewCells, inv.OldCells

	case KindRestore:
		inv.OldCells, inv.NewCells = inv.NewCells, inv.OldCells

	case KindVersion:
		return Change{}, ErrNotInvertible

	default:
		return Change{}, fmt.Errorf("change: unknown kind %q", c.Kind)
	}

	inv.OldDirty, inv.NewDirty = c.NewDirty, c.OldDirty
	return inv, nil
}
