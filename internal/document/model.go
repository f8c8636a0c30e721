// Package document holds the authoritative notebook state: loading,
// applying changes with undo/redo, dirty tracking and saving.
package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/history"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/nbformat"
	"github.com/starford/nbsync/internal/recovery"
	"github.com/starford/nbsync/internal/runtime"
	"github.com/starford/nbsync/internal/storage"
)

// Recovery is the part of the recovery store the model uses.
type Recovery interface {
	Lookup(ctx context.Context, loc models.Location) (recovery.Hit, bool)
	Clear(ctx context.Context, loc models.Location) error
}

// Options configures a Model.
type Options struct {
	Workspace    storage.Provider
	Recovery     Recovery
	Runtime      runtime.Provider
	HistoryLimit int
	Logger       *slog.Logger
}

type cells = []models.Cell

// Model is one open notebook. It is safe for concurrent use.
type Model struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	loc      models.Location
	cells    cells
	dirty    bool
	fields   *nbformat.Fields
	indent   string
	version  uint64
	diskSum  string
	engine   *history.Engine[cells]
	dedupe   *dedupe
	listenID int
	listen   map[int]Listener

	// emitMu serializes mutations with their event delivery. It is always
	// taken before mu and held until listeners return.
	emitMu sync.Mutex
}

// New returns an unloaded model for loc.
func New(loc models.Location, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		opts:   opts,
		logger: logger.With(slog.String("location", loc.String())),
		loc:    loc,
		cells:  cells{models.NewEmptyCell(change.NewID())},
		engine: history.New[cells](opts.HistoryLimit, change.Apply),
		dedupe: newDedupe(),
		listen: make(map[int]Listener),
	}
}

// Load reads the notebook, preferring unsaved contents from the recovery
// store. inline supplies the contents of untitled notebooks.
//
// A missing backing file yields one empty cell and is not an error. Content
// that is empty or has no cells yields one empty cell and marks the document
// dirty. Content without a cells array fails with apperr.ErrInvalidNotebook.
func (m *Model) Load(ctx context.Context, inline []byte) ([]models.Cell, error) {
	loc := m.Location()

	if m.opts.Recovery != nil {
		if hit, ok := m.opts.Recovery.Lookup(ctx, loc); ok {
			got, err := m.loadContents([]byte(hit.Contents), true, "")
			if err == nil {
				m.logger.Info("document: loaded from recovery", slog.String("tier", string(hit.Tier)))
				return got, nil
			}
			m.logger.Warn("document: unusable recovery contents", slog.String("error", err.Error()))
		}
	}

	var data []byte
	if loc.IsUntitled() {
		data = inline
	} else {
		var err error
		data, err = m.opts.Workspace.Read(loc.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return m.loadFresh(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("document: load %s: %w", loc, err)
		}
	}
	return m.loadContents(data, false, checksum.Sum(data))
}

// Reload re-reads the backing file when the document has no unsaved
// changes and the file differs from what was last read or written. It
// reports whether the document was reloaded.
func (m *Model) Reload(ctx context.Context) (bool, error) {
	m.mu.Lock()
	loc, dirty, sum := m.loc, m.dirty, m.diskSum
	m.mu.Unlock()
	if dirty || !loc.IsFile() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := m.opts.Workspace.Read(loc.Path)
	if err != nil {
		return false, fmt.Errorf("document: reload %s: %w", loc, err)
	}
	newSum := checksum.Sum(data)
	if newSum == sum {
		return false, nil
	}
	if _, err := m.loadContents(data, false, newSum); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Model) loadFresh() []models.Cell {
	m.lockWrite()
	m.setLoadedLocked(cells{models.NewEmptyCell(change.NewID())}, nil, "", false, "")
	return m.finishLoadLocked()
}

func (m *Model) loadContents(data []byte, dirty bool, sum string) ([]models.Cell, error) {
	nb, err := nbformat.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("document: parse %s: %w", m.Location(), err)
	}
	list := nb.Cells
	if len(list) == 0 {
		list = cells{models.NewEmptyCell(change.NewID())}
		dirty = true
	}

	m.lockWrite()
	m.setLoadedLocked(list, nb.Fields, nb.Indent, dirty, sum)
	return m.finishLoadLocked(), nil
}

func (m *Model) setLoadedLocked(list cells, fields *nbformat.Fields, indent string, dirty bool, sum string) {
	m.cells = list
	m.fields = fields
	m.indent = indent
	m.dirty = dirty
	m.diskSum = sum
	m.version++
	m.engine.Reset()
	m.dedupe.reset()
}

// finishLoadLocked publishes the load event and releases the write lock.
func (m *Model) finishLoadLocked() []models.Cell {
	ev := Event{
		Kind:     EventLoad,
		Location: m.loc,
		Cells:    models.CloneCells(m.cells),
		NewDirty: m.dirty,
	}
	m.emitLocked(ev)
	return models.CloneCells(ev.Cells)
}

// Update applies a change received from a replica. Redelivered changes are
// ignored. Invalid changes fail with apperr.ErrInvalidChange.
func (m *Model) Update(c change.Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.lockWrite()
	if !m.dedupe.admit(c) {
		m.unlockWrite()
		m.logger.Debug("document: duplicate change dropped",
			slog.String("change_id", c.ID),
			slog.String("source", string(c.Source)))
		return nil
	}
	return m.applyLocked(c)
}

// Undo replays the most recent change backwards on behalf of the model.
// The returned change carries no origin so every replica mirrors it.
func (m *Model) Undo() (change.Change, error) {
	return m.replay((*history.Engine[cells]).NextUndo)
}

// Redo replays the most recently undone change.
func (m *Model) Redo() (change.Change, error) {
	return m.replay((*history.Engine[cells]).NextRedo)
}

func (m *Model) replay(next func(*history.Engine[cells]) (change.Change, error)) (change.Change, error) {
	m.lockWrite()
	c, err := next(m.engine)
	if err != nil {
		m.unlockWrite()
		return change.Change{}, err
	}
	c.Origin = ""
	m.dedupe.admit(c)
	if err := m.applyLocked(c); err != nil {
		return change.Change{}, err
	}
	return c, nil
}

// applyLocked runs c through the history engine and publishes the update.
// It releases the write lock.
func (m *Model) applyLocked(c change.Change) error {
	oldDirty := m.dirty
	if c.Source == change.SourceUser {
		c.OldDirty, c.NewDirty = oldDirty, c.Undoable()
	}

	next, err := m.engine.Handle(history.State[cells]{Snapshot: m.cells, Dirty: m.dirty}, c)
	if err != nil {
		m.unlockWrite()
		return fmt.Errorf("document: apply %s: %w", c.Kind, err)
	}
	m.cells, m.dirty = next.Snapshot, next.Dirty

	if c.Kind == change.KindVersion && c.Version != nil && c.Source != change.SourceUndo {
		if err := m.applyVersionLocked(*c.Version); err != nil {
			m.logger.Warn("document: version metadata not updated", slog.String("error", err.Error()))
		}
	}
	m.version++

	out := c.Clone()
	out.OldDirty, out.NewDirty = oldDirty, m.dirty
	m.emitLocked(Event{
		Kind:     EventUpdate,
		Location: m.loc,
		Change:   &out,
		OldDirty: oldDirty,
		NewDirty: m.dirty,
	})
	return nil
}

func (m *Model) applyVersionLocked(v change.VersionInfo) error {
	if m.fields == nil {
		major := nbformat.FallbackPythonMajor
		if pv, err := runtime.ParseVersion(v.InterpreterVersion); err == nil {
			major = pv.Major
		}
		f, err := nbformat.DefaultFields(major)
		if err != nil {
			return err
		}
		m.fields = f
	}
	return nbformat.ApplyVersion(m.fields, v.InterpreterVersion, v.KernelName, v.KernelDisplayName)
}

// lockWrite takes the locks a mutation holds, emitMu first.
func (m *Model) lockWrite() {
	m.emitMu.Lock()
	m.mu.Lock()
}

func (m *Model) unlockWrite() {
	m.mu.Unlock()
	m.emitMu.Unlock()
}

// emitLocked publishes ev to every listener and releases the write lock.
// Delivery happens outside m.mu so listeners may read the model.
func (m *Model) emitLocked(ev Event) {
	listeners := make([]Listener, 0, len(m.listen))
	for _, l := range m.listen {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()
	defer m.emitMu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

// OnChanged registers fn for every subsequent event and returns a function
// that unregisters it.
func (m *Model) OnChanged(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.listenID
	m.listenID++
	m.listen[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listen, id)
	}
}

// Location returns where the document is stored.
func (m *Model) Location() models.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loc
}

// Cells returns a copy of the current cell list.
func (m *Model) Cells() []models.Cell {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.CloneCells(m.cells)
}

// Dirty reports whether the document has unsaved changes.
func (m *Model) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Version returns a counter that increases with every mutation.
func (m *Model) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// CanUndo and CanRedo report whether model-initiated replay is possible.
func (m *Model) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.CanUndo()
}

func (m *Model) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.CanRedo()
}
