package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Notebook errors
var (
	// ErrInvalidNotebook marks content that parsed but has no cell array.
	ErrInvalidNotebook = errors.New("invalid notebook file")

	// ErrInvalidChange marks a change envelope whose payload does not match its kind.
	ErrInvalidChange = errors.New("invalid change")

	// ErrNotOpen is returned when a location has no open document.
	ErrNotOpen = errors.New("notebook not open")

	// ErrNothingToUndo is returned by model-initiated undo/redo on an empty stack.
	ErrNothingToUndo = errors.New("nothing to undo or redo")
)
