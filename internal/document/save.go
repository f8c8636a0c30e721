package document

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/nbformat"
)

type serialized struct {
	loc     models.Location
	version uint64
	data    []byte
}

// Content returns the interchange form of the current state. Default
// metadata is materialized on first use when the document has none.
func (m *Model) Content(ctx context.Context) ([]byte, error) {
	s, err := m.serialize(ctx)
	if err != nil {
		return nil, err
	}
	return s.data, nil
}

// Save writes the document to its current location.
func (m *Model) Save(ctx context.Context) error {
	return m.SaveAs(ctx, m.Location())
}

// SaveAs writes the document to loc and makes loc the document location.
//
// The dirty flag is cleared only if no change was applied and the location
// did not move while the write was in flight. A failed write leaves the
// document untouched.
func (m *Model) SaveAs(ctx context.Context, loc models.Location) error {
	if !loc.IsFile() {
		return fmt.Errorf("document: save: %s is not a file location", loc)
	}
	s, err := m.serialize(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.opts.Workspace.Write(loc.Path, s.data); err != nil {
		return fmt.Errorf("document: save %s: %w", loc, err)
	}

	m.lockWrite()
	oldLoc, oldDirty := m.loc, m.dirty
	if m.loc.String() != s.loc.String() {
		m.unlockWrite()
		m.logger.Info("document: location moved during save, keeping dirty state")
		return nil
	}
	m.loc = loc
	m.diskSum = checksum.Sum(s.data)
	cleared := m.version == s.version
	if cleared {
		m.dirty = false
	}
	m.emitLocked(Event{
		Kind:        EventFile,
		Location:    loc,
		OldLocation: oldLoc,
		OldDirty:    oldDirty,
		NewDirty:    !cleared && oldDirty,
	})

	if cleared && m.opts.Recovery != nil {
		for _, l := range []models.Location{oldLoc, loc} {
			if err := m.opts.Recovery.Clear(ctx, l); err != nil {
				m.logger.Warn("document: clear recovery failed", slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func (m *Model) serialize(ctx context.Context) (serialized, error) {
	if err := m.ensureMetadata(ctx); err != nil {
		return serialized{}, err
	}

	m.mu.Lock()
	s := serialized{loc: m.loc, version: m.version}
	fields := cloneFields(m.fields)
	list := models.CloneCells(m.cells)
	indent := m.indent
	m.mu.Unlock()

	data, err := nbformat.Serialize(fields, list, indent)
	if err != nil {
		return serialized{}, fmt.Errorf("document: serialize %s: %w", s.loc, err)
	}
	s.data = data
	return s, nil
}

// ensureMetadata installs default top-level fields when the document has no
// metadata. The python major version comes from the loaded
// codemirror_mode, then the runtime provider, then the fallback.
func (m *Model) ensureMetadata(ctx context.Context) error {
	m.mu.Lock()
	has := nbformat.HasMetadata(m.fields)
	current := m.fields
	m.mu.Unlock()
	if has {
		return nil
	}

	major, ok := nbformat.CodemirrorVersion(current)
	if !ok {
		major = nbformat.FallbackPythonMajor
		if m.opts.Runtime != nil {
			if v, err := m.opts.Runtime.ActiveVersion(ctx); err == nil && v.Major > 0 {
				major = v.Major
			} else if err != nil {
				m.logger.Debug("document: runtime version unavailable", slog.String("error", err.Error()))
			}
		}
	}
	defaults, err := nbformat.DefaultFields(major)
	if err != nil {
		return fmt.Errorf("document: default metadata: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if nbformat.HasMetadata(m.fields) {
		return nil
	}
	if m.fields == nil {
		m.fields = defaults
		return nil
	}
	// Keep existing top-level fields, add the defaults that are missing.
	for pair := defaults.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := m.fields.Get(pair.Key); !ok || pair.Key == nbformat.KeyMetadata {
			m.fields.Set(pair.Key, pair.Value)
		}
	}
	return nil
}

func cloneFields(f *nbformat.Fields) *nbformat.Fields {
	if f == nil {
		return nil
	}
	out := nbformat.NewFields()
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, append([]byte(nil), pair.Value...))
	}
	return out
}
