package change

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

var (
	kinds = []any{
		KindEdit, KindInsert, KindRemove, KindRemoveAll, KindSwap,
		KindClear, KindModify, KindVersion, KindRestore,
	}
	sources = []any{SourceUser, SourceUndo, SourceRedo}
)

// Validate checks that the payload required by the change kind is present.
// Failures wrap apperr.ErrInvalidChange.
func (c *Change) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidChange, err)
	}
	return nil
}

func (c *Change) validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Kind, validation.Required, validation.In(kinds...)),
		validation.Field(&c.Source, validation.Required, validation.In(sources...)),
	)
	if err != nil {
		return err
	}

	switch c.Kind {
	case KindEdit:
		return validation.ValidateStruct(c,
			validation.Field(&c.CellID, validation.Required),
			validation.Field(&c.Forward, validation.Required),
			validation.Field(&c.Reverse),
		)
	case KindInsert, KindRemove:
		return validation.ValidateStruct(c,
			validation.Field(&c.Cell, validation.Required, validation.By(validCell)),
			validation.Field(&c.Index, validation.Min(0)),
		)
	case KindRemoveAll:
		return validation.ValidateStruct(c,
			validation.Field(&c.NewCellID, validation.Required),
		)
	case KindSwap:
		return validation.ValidateStruct(c,
			validation.Field(&c.FirstCellID, validation.Required),
			validation.Field(&c.SecondCellID, validation.Required),
		)
	case KindModify:
		return validation.ValidateStruct(c,
			validation.Field(&c.NewCells, validation.Required, validation.Each(validation.By(validCell))),
		)
	case KindRestore:
		return validation.ValidateStruct(c,
			validation.Field(&c.NewCells, validation.Required, validation.Each(validation.By(validCell))),
		)
	case KindVersion:
		return validation.ValidateStruct(c,
			validation.Field(&c.Version, validation.Required),
		)
	}
	return nil
}

func validCell(v any) error {
	var cell models.Cell
	switch x := v.(type) {
	case models.Cell:
		cell = x
	case *models.Cell:
		if x == nil {
			return nil
		}
		cell = *x
	default:
		return errors.New("must be a cell")
	}
	return validation.ValidateStruct(&cell,
		validation.Field(&cell.ID, validation.Required),
		validation.Field(&cell.Data, validation.By(func(any) error {
			return validation.Validate(cell.Data.CellType, validation.Required,
				validation.In(models.CellTypeCode, models.CellTypeMarkdown, models.CellTypeRaw))
		})),
	)
}
