package change

import (
	"encoding/json"
	"slices"

	"github.com/starford/nbsync/internal/models"
)

// Apply returns the cell list that results from applying c to cells. The
// input is never modified and the result shares no memory with it or with c.
//
// References to unknown cell ids are no-ops. The result always holds at
// least one cell.
func Apply(cells []models.Cell, c Change) []models.Cell {
	out := models.CloneCells(cells)

	switch c.Kind {
	case KindEdit:
		if i := models.IndexOf(out, c.CellID); i >= 0 {
			out[i].Data.Source = ApplyText(out[i].Data.Source, c.Forward)
		}

	case KindInsert:
		if c.Cell == nil {
			break
		}
		cell := c.Cell.Clone()
		if c.NewCellID != "" && c.NewCellID != cell.ID {
			if j := models.IndexOf(out, c.NewCellID); j >= 0 {
				out = slices.Delete(out, j, j+1)
			}
		}
		// Redelivered inserts replace the existing cell in place.
		if j := models.IndexOf(out, cell.ID); j >= 0 {
			out = slices.Delete(out, j, j+1)
		}
		idx := c.Index
		if idx < 0 || idx > len(out) {
			idx = len(out)
		}
		out = slices.Insert(out, idx, cell)

	case KindRemove:
		if c.Cell == nil {
			break
		}
		i := models.IndexOf(out, c.Cell.ID)
		if i < 0 {
			break
		}
		if len(out) == 1 {
			id := c.NewCellID
			if id == "" {
				id = c.Cell.ID
			}
			out = []models.Cell{models.NewEmptyCell(id)}
			break
		}
		out = slices.Delete(out, i, i+1)

	case KindRemoveAll:
		id := c.NewCellID
		if id == "" {
			id = c.ID
		}
		out = []models.Cell{models.NewEmptyCell(id)}

	case KindSwap:
		i := models.IndexOf(out, c.FirstCellID)
		j := models.IndexOf(out, c.SecondCellID)
		if i >= 0 && j >= 0 {
			out[i], out[j] = out[j], out[i]
		}

	case KindClear:
		out = clearOutputs(out)

	case KindModify:
		for _, n := range c.NewCells {
			if i := models.IndexOf(out, n.ID); i >= 0 {
				out[i] = n.Clone()
			}
		}

	case KindRestore:
		out = models.CloneCells(c.NewCells)

	case KindVersion:
		// metadata only
	}

	if len(out) == 0 {
		out = []models.Cell{models.NewEmptyCell(c.ID)}
	}
	return out
}

func clearOutputs(cells []models.Cell) []models.Cell {
	for i := range cells {
		if cells[i].Data.CellType != models.CellTypeCode {
			continue
		}
		cells[i].Data.Outputs = []json.RawMessage{}
		cells[i].Data.ExecutionCount = nil
	}
	return cells
}
