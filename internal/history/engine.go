package history

import (
	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/change"
)

// State is the part of a document the engine tracks.
type State[S any] struct {
	Snapshot S
	Dirty    bool
}

// ApplyFunc applies a change to a snapshot and returns the new snapshot. It
// must not modify its input.
type ApplyFunc[S any] func(S, change.Change) S

// Engine routes changes by source. User changes are recorded, undo and redo
// replay recorded changes. Engines are not safe for concurrent use.
type Engine[S any] struct {
	apply ApplyFunc[S]
	undo  *Stack[S]
	redo  *Stack[S]
}

// New returns an engine whose stacks hold at most limit entries each.
func New[S any](limit int, apply ApplyFunc[S]) *Engine[S] {
	return &Engine[S]{
		apply: apply,
		undo:  NewStack[S](limit),
		redo:  NewStack[S](limit),
	}
}

// Handle applies c to st according to c.Source and returns the new state.
//
// Undo restores the recorded snapshot when the top undo entry is c itself,
// and otherwise applies the inverse of c with the dirty flag it carried
// before. Version changes are never recorded. Applying one leaves the
// document clean; undoing one only restores c.OldDirty.
func (e *Engine[S]) Handle(st State[S], c change.Change) (State[S], error) {
	if !c.Undoable() {
		if c.Source == change.SourceUndo {
			return State[S]{Snapshot: st.Snapshot, Dirty: c.OldDirty}, nil
		}
		return State[S]{Snapshot: e.apply(st.Snapshot, c), Dirty: false}, nil
	}

	switch c.Source {
	case change.SourceUndo:
		var next State[S]
		if top, ok := e.undo.Peek(); ok && top.Change.ID == c.ID {
			e.undo.Pop()
			next = State[S]{Snapshot: top.Snapshot, Dirty: top.Dirty}
		} else {
			inv, err := change.Invert(c)
			if err != nil {
				return st, err
			}
			next = State[S]{Snapshot: e.apply(st.Snapshot, inv), Dirty: c.OldDirty}
		}
		e.redo.Push(Entry[S]{Change: c.WithSource(change.SourceUser), Snapshot: st.Snapshot, Dirty: st.Dirty})
		return next, nil

	case change.SourceRedo:
		if top, ok := e.redo.Peek(); ok && top.Change.ID == c.ID {
			e.redo.Pop()
		}
		e.undo.Push(Entry[S]{Change: c.WithSource(change.SourceUser), Snapshot: st.Snapshot, Dirty: st.Dirty})
		return State[S]{Snapshot: e.apply(st.Snapshot, c), Dirty: true}, nil

	default:
		e.undo.Push(Entry[S]{Change: c, Snapshot: st.Snapshot, Dirty: st.Dirty})
		e.redo.Clear()
		return State[S]{Snapshot: e.apply(st.Snapshot, c), Dirty: true}, nil
	}
}

// NextUndo returns the change an undo would replay, marked with SourceUndo.
func (e *Engine[S]) NextUndo() (change.Change, error) {
	top, ok := e.undo.Peek()
	if !ok {
		return change.Change{}, apperr.ErrNothingToUndo
	}
	return top.Change.WithSource(change.SourceUndo), nil
}

// NextRedo returns the change a redo would replay, marked with SourceRedo.
func (e *Engine[S]) NextRedo() (change.Change, error) {
	top, ok := e.redo.Peek()
	if !ok {
		return change.Change{}, apperr.ErrNothingToUndo
	}
	return top.Change.WithSource(change.SourceRedo), nil
}

func (e *Engine[S]) CanUndo() bool { return e.undo.Len() > 0 }
func (e *Engine[S]) CanRedo() bool { return e.redo.Len() > 0 }

// Reset drops all recorded history.
func (e *Engine[S]) Reset() {
	e.undo.Clear()
	e.redo.Clear()
}
