// Package channel carries messages between a document model and its
// replica. Messages are JSON encoded on send and decoded on delivery, so the
// two sides never share memory.
package channel

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
)

// MessageType discriminates envelopes.
type MessageType string

const (
	// TypeUpdate carries one change.
	TypeUpdate MessageType = "update"
	// TypeLoadAll carries a full cell list after a load.
	TypeLoadAll MessageType = "loadAll"
	// TypeFile reports a save or rename: new location and dirty flag.
	TypeFile MessageType = "file"
)

// Envelope is the unit sent over a pipe.
type Envelope struct {
	Seq      uint64         `json:"seq"`
	Type     MessageType    `json:"type"`
	Location string         `json:"location,omitempty"`
	Change   *change.Change `json:"change,omitempty"`
	Cells    []models.Cell  `json:"cells,omitempty"`
	Dirty    bool           `json:"dirty,omitempty"`
}

// Encode renders env as JSON without HTML escaping.
func Encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("channel: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses an envelope and checks that its payload matches its type.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("channel: decode: %w", err)
	}
	switch env.Type {
	case TypeUpdate:
		if env.Change == nil {
			return Envelope{}, fmt.Errorf("channel: update envelope %d has no change", env.Seq)
		}
	case TypeLoadAll, TypeFile:
	default:
		return Envelope{}, fmt.Errorf("channel: unknown envelope type %q", env.Type)
	}
	return env, nil
}
