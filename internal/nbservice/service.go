// Package nbservice coordinates open notebooks: their document models, the
// presentation replicas linked to them, recovery backups and the workspace
// catalog.
package nbservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/bridge"
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/channel"
	"github.com/starford/nbsync/internal/document"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/outline"
	"github.com/starford/nbsync/internal/recovery"
	"github.com/starford/nbsync/internal/replica"
	"github.com/starford/nbsync/internal/runtime"
	"github.com/starford/nbsync/internal/sse"
	"github.com/starford/nbsync/internal/storage"
)

// Publisher receives notebook notifications. *sse.Broker implements it.
type Publisher interface {
	PublishNotebook(kind string, data sse.NotebookData)
}

// Options configures a Service.
type Options struct {
	Workspace      storage.Provider
	Recovery       *recovery.Store
	Runtime        runtime.Provider
	Catalog        index.Catalog
	Publisher      Publisher
	HistoryLimit   int
	BackupInterval time.Duration
	Pipe           []channel.PipeOption
	Logger         *slog.Logger
}

// NotebookDetail is the full representation of an open notebook.
type NotebookDetail struct {
	Location string         `json:"location"`
	Dirty    bool           `json:"dirty"`
	Version  uint64         `json:"version"`
	CanUndo  bool           `json:"can_undo"`
	CanRedo  bool           `json:"can_redo"`
	Cells    []models.Cell  `json:"cells"`
	View     *replica.State `json:"view,omitempty"`
}

// NotebookSummary is a lightweight item in the open notebook list.
type NotebookSummary struct {
	Location  string `json:"location"`
	Title     string `json:"title"`
	Dirty     bool   `json:"dirty"`
	CellCount int    `json:"cell_count"`
}

type session struct {
	model       *document.Model
	link        *bridge.Link
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
}

// Service owns the registry of open notebooks.
type Service struct {
	opts     Options
	logger   *slog.Logger
	registry *document.Registry

	mu       sync.Mutex
	sessions map[*document.Model]*session
	backedUp map[*document.Model]uint64
}

// NewService creates a notebook service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:     opts,
		logger:   logger,
		registry: document.NewRegistry(),
		sessions: make(map[*document.Model]*session),
		backedUp: make(map[*document.Model]uint64),
	}
}

// Registry returns the registry routing changes to open models.
func (s *Service) Registry() *document.Registry { return s.registry }

// Open loads the notebook at loc and links a replica to it. inline holds the
// contents of untitled notebooks. Opening an open notebook returns it as is.
func (s *Service) Open(ctx context.Context, loc models.Location, inline []byte) (*NotebookDetail, error) {
	if m, ok := s.registry.Get(loc); ok {
		return s.detail(m), nil
	}

	m := document.New(loc, document.Options{
		Workspace:    s.opts.Workspace,
		Recovery:     s.opts.Recovery,
		Runtime:      s.opts.Runtime,
		HistoryLimit: s.opts.HistoryLimit,
		Logger:       s.logger,
	})
	if _, err := m.Load(ctx, inline); err != nil {
		return nil, err
	}
	if err := s.registry.Put(m); err != nil {
		// Lost a race with a concurrent open.
		if existing, ok := s.registry.Get(loc); ok {
			return s.detail(existing), nil
		}
		return nil, err
	}

	sess := &session{model: m, done: make(chan struct{})}
	sess.unsubscribe = m.OnChanged(s.publish)
	sess.link = bridge.New(s.registry, m, bridge.Options{
		HistoryLimit: s.opts.HistoryLimit,
		Pipe:         s.opts.Pipe,
		Logger:       s.logger,
	})
	linkCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	go func() {
		defer close(sess.done)
		if err := sess.link.Run(linkCtx); err != nil {
			s.logger.Error("nbservice: link stopped", slog.String("location", loc.String()), slog.String("error", err.Error()))
		}
	}()

	s.mu.Lock()
	s.sessions[m] = sess
	s.mu.Unlock()

	s.logger.Info("nbservice: opened", slog.String("location", loc.String()), slog.Bool("dirty", m.Dirty()))
	s.notify(sse.KindOpened, sse.NotebookData{Location: loc.String(), Dirty: m.Dirty()})
	return s.detail(m), nil
}

// Get returns the open notebook at loc.
func (s *Service) Get(loc models.Location) (*NotebookDetail, error) {
	m, err := s.model(loc)
	if err != nil {
		return nil, err
	}
	return s.detail(m), nil
}

// List returns every open notebook ordered by location.
func (s *Service) List() []NotebookSummary {
	ms := s.registry.List()
	out := make([]NotebookSummary, 0, len(ms))
	for _, m := range ms {
		cells := m.Cells()
		out = append(out, NotebookSummary{
			Location:  m.Location().String(),
			Title:     outline.FromCells(cells).Title,
			Dirty:     m.Dirty(),
			CellCount: len(cells),
		})
	}
	return out
}

// Submit validates c and queues it for the model at loc. The change is
// applied asynchronously.
func (s *Service) Submit(loc models.Location, c change.Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	sess, err := s.session(loc)
	if err != nil {
		return err
	}
	return sess.link.Submit(c)
}

// Undo reverts the newest change of the notebook at loc on the model side.
// The replica mirrors it.
func (s *Service) Undo(loc models.Location) (change.Change, error) {
	m, err := s.model(loc)
	if err != nil {
		return change.Change{}, err
	}
	return m.Undo()
}

// Redo reapplies the newest undone change of the notebook at loc.
func (s *Service) Redo(loc models.Location) (change.Change, error) {
	m, err := s.model(loc)
	if err != nil {
		return change.Change{}, err
	}
	return m.Redo()
}

// Save writes the notebook at loc. A non-empty as saves to that location
// instead and re-registers the notebook there.
func (s *Service) Save(ctx context.Context, loc models.Location, as *models.Location) (*NotebookDetail, error) {
	m, err := s.model(loc)
	if err != nil {
		return nil, err
	}
	if as == nil || as.String() == loc.String() {
		if err := m.Save(ctx); err != nil {
			return nil, err
		}
		return s.detail(m), nil
	}
	if other, ok := s.registry.Get(*as); ok && other != m {
		return nil, fmt.Errorf("nbservice: %s: %w", as, apperr.ErrAlreadyExists)
	}
	if err := m.SaveAs(ctx, *as); err != nil {
		return nil, err
	}
	if err := s.registry.Rekey(loc, m.Location()); err != nil {
		return nil, err
	}
	return s.detail(m), nil
}

// Content returns the interchange form of the notebook at loc.
func (s *Service) Content(ctx context.Context, loc models.Location) ([]byte, error) {
	m, err := s.model(loc)
	if err != nil {
		return nil, err
	}
	return m.Content(ctx)
}

// Outline summarizes the markdown structure of the notebook at loc.
func (s *Service) Outline(loc models.Location) (outline.Outline, error) {
	m, err := s.model(loc)
	if err != nil {
		return outline.Outline{}, err
	}
	return outline.FromCells(m.Cells()), nil
}

// View returns the replica state of the notebook at loc.
func (s *Service) View(loc models.Location) (replica.State, error) {
	sess, err := s.session(loc)
	if err != nil {
		return replica.State{}, err
	}
	return sess.link.Replica().State(), nil
}

// Close detaches and forgets the notebook at loc. The link drains while the
// model is still registered, then unsaved contents are written to the
// recovery store so a later open restores them.
func (s *Service) Close(ctx context.Context, loc models.Location) error {
	m, err := s.model(loc)
	if err != nil {
		return err
	}
	s.detach(m)
	if m.Dirty() {
		if err := s.backup(ctx, m); err != nil {
			s.logger.Warn("nbservice: backup on close failed", slog.String("location", loc.String()), slog.String("error", err.Error()))
		}
	}
	s.registry.Delete(m.Location())
	s.logger.Info("nbservice: closed", slog.String("location", loc.String()))
	s.notify(sse.KindClosed, sse.NotebookData{Location: m.Location().String(), Dirty: m.Dirty()})
	return nil
}

// Shutdown closes every open notebook.
func (s *Service) Shutdown(ctx context.Context) {
	for _, m := range s.registry.List() {
		if err := s.Close(ctx, m.Location()); err != nil {
			s.logger.Warn("nbservice: close failed", slog.String("error", err.Error()))
		}
	}
}

// Files lists catalogued workspace notebooks.
func (s *Service) Files(limit, offset int, tag string) ([]index.NotebookRow, int, error) {
	if s.opts.Catalog == nil {
		return []index.NotebookRow{}, 0, nil
	}
	return s.opts.Catalog.ListNotebooks(limit, offset, tag)
}

// Search runs a full-text query over catalogued notebooks.
func (s *Service) Search(query string, limit int) ([]index.SearchResult, error) {
	if s.opts.Catalog == nil {
		return []index.SearchResult{}, nil
	}
	return s.opts.Catalog.Search(query, limit)
}

// HandleFileEvent reacts to workspace watcher events. Open notebooks whose
// file changed on disk are reloaded unless they hold unsaved changes.
func (s *Service) HandleFileEvent(ctx context.Context, kind, path string) {
	if kind == index.Deleted {
		return
	}
	m, ok := s.registry.Get(models.FileLocation(path))
	if !ok {
		return
	}
	reloaded, err := m.Reload(ctx)
	if err != nil {
		s.logger.Warn("nbservice: reload failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if reloaded {
		s.logger.Info("nbservice: reloaded from disk", slog.String("path", path))
	}
}

func (s *Service) detach(m *document.Model) {
	s.mu.Lock()
	sess, ok := s.sessions[m]
	delete(s.sessions, m)
	delete(s.backedUp, m)
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.link.Close()
	select {
	case <-sess.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("nbservice: link did not drain", slog.String("location", m.Location().String()))
	}
	sess.cancel()
	sess.unsubscribe()
}

func (s *Service) model(loc models.Location) (*document.Model, error) {
	m, ok := s.registry.Get(loc)
	if !ok {
		return nil, fmt.Errorf("nbservice: %s: %w", loc, apperr.ErrNotOpen)
	}
	return m, nil
}

func (s *Service) session(loc models.Location) (*session, error) {
	m, err := s.model(loc)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[m]
	if !ok {
		return nil, fmt.Errorf("nbservice: %s: %w", loc, apperr.ErrNotOpen)
	}
	return sess, nil
}

func (s *Service) detail(m *document.Model) *NotebookDetail {
	d := &NotebookDetail{
		Location: m.Location().String(),
		Dirty:    m.Dirty(),
		Version:  m.Version(),
		CanUndo:  m.CanUndo(),
		CanRedo:  m.CanRedo(),
		Cells:    m.Cells(),
	}
	s.mu.Lock()
	sess, ok := s.sessions[m]
	s.mu.Unlock()
	if ok {
		st := sess.link.Replica().State()
		d.View = &st
	}
	return d
}

// publish forwards model events to the publisher.
func (s *Service) publish(ev document.Event) {
	data := sse.NotebookData{Location: ev.Location.String(), Dirty: ev.NewDirty, WasDirty: ev.OldDirty}
	switch ev.Kind {
	case document.EventUpdate:
		if ev.Change != nil {
			data.ChangeID, data.Kind = ev.Change.ID, string(ev.Change.Kind)
		}
		s.notify(sse.KindChanged, data)
	case document.EventFile:
		s.notify(sse.KindSaved, data)
	case document.EventLoad:
		s.notify(sse.KindReloaded, data)
	}
}

func (s *Service) notify(kind string, data sse.NotebookData) {
	if s.opts.Publisher != nil {
		s.opts.Publisher.PublishNotebook(kind, data)
	}
}
