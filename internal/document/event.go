package document

import (
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
)

// EventKind identifies what happened to a document.
type EventKind string

const (
	// EventUpdate follows every applied change.
	EventUpdate EventKind = "update"
	// EventFile follows a save. Location may differ from OldLocation after save-as.
	EventFile EventKind = "file"
	// EventLoad follows a load or reload; Cells holds the new list.
	EventLoad EventKind = "load"
)

// Event is published to OnChanged listeners.
type Event struct {
	Kind        EventKind
	Location    models.Location
	OldLocation models.Location
	Change      *change.Change
	Cells       []models.Cell
	OldDirty    bool
	NewDirty    bool
}

// Listener receives document events in order. Listeners run synchronously
// and may call read methods on the model, but must not apply changes.
type Listener func(Event)
