// Package bridge wires a presentation replica to its document model with one
// pipe per direction.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/channel"
	"github.com/starford/nbsync/internal/document"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/replica"
)

// Options configures a Link.
type Options struct {
	ReplicaID    string
	HistoryLimit int
	Pipe         []channel.PipeOption
	Logger       *slog.Logger
}

// Link owns a replica and the two pipes connecting it to a model.
type Link struct {
	replica  *replica.Replica
	model    *document.Model
	registry *document.Registry
	logger   *slog.Logger

	toModel   *channel.Pipe
	toReplica *channel.Pipe

	mu  sync.Mutex
	loc models.Location

	unsubscribe func()
	closeOnce   sync.Once
}

// New connects a fresh replica to m. Changes from the replica reach the
// model through reg, so m must be registered there. The replica receives
// the model's current cells immediately.
func New(reg *document.Registry, m *document.Model, opts Options) *Link {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := opts.ReplicaID
	if id == "" {
		id = "replica-" + change.NewID()
	}
	l := &Link{
		model:    m,
		registry: reg,
		logger:   logger.With(slog.String("replica", id)),
		loc:      m.Location(),
	}

	pipeOpts := append([]channel.PipeOption{channel.WithLogger(logger)}, opts.Pipe...)
	l.toModel = channel.NewPipe(id+">model", l.deliverToModel, pipeOpts...)
	l.toReplica = channel.NewPipe("model>"+id, l.deliverToReplica, pipeOpts...)

	ropts := []replica.Option{replica.WithLogger(logger)}
	if opts.HistoryLimit > 0 {
		ropts = append(ropts, replica.WithHistoryLimit(opts.HistoryLimit))
	}
	l.replica = replica.New(id, l.sendToModel, ropts...)

	l.unsubscribe = m.OnChanged(l.onModelEvent)
	l.push(channel.Envelope{Type: channel.TypeLoadAll, Cells: m.Cells(), Dirty: m.Dirty()})
	return l
}

// Replica returns the presentation side of the link.
func (l *Link) Replica() *replica.Replica { return l.replica }

// Run delivers messages in both directions until ctx is cancelled or the
// link is closed and drained.
func (l *Link) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.toModel.Run(ctx) })
	g.Go(func() error { return l.toReplica.Run(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close detaches from the model and stops both pipes after they drain.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		l.unsubscribe()
		l.toModel.Close()
		l.toReplica.Close()
	})
}

// Pending reports how many messages are still in flight in both directions.
func (l *Link) Pending() int {
	return l.toModel.Pending() + l.toReplica.Pending()
}

// Submit queues a change produced outside the replica, such as one posted
// by a remote client, for the model. The model reports it back and the
// replica applies it like any other model update.
func (l *Link) Submit(c change.Change) error {
	if c.Origin == l.replica.ID() {
		c.Origin = ""
	}
	return l.sendToModel(c)
}

func (l *Link) location() models.Location {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loc
}

func (l *Link) sendToModel(c change.Change) error {
	return l.toModel.Send(channel.Envelope{
		Type:     channel.TypeUpdate,
		Location: l.location().String(),
		Change:   &c,
	})
}

func (l *Link) deliverToModel(ctx context.Context, env channel.Envelope) error {
	loc, err := models.ParseLocation(env.Location)
	if err != nil {
		l.logger.Error("bridge: bad location", slog.String("location", env.Location), slog.String("error", err.Error()))
		return nil
	}
	err = l.registry.Route(ctx, loc, *env.Change)
	if errors.Is(err, apperr.ErrInvalidChange) {
		l.logger.Error("bridge: change rejected",
			slog.String("change_id", env.Change.ID),
			slog.String("error", err.Error()))
		return nil
	}
	return err
}

func (l *Link) onModelEvent(ev document.Event) {
	switch ev.Kind {
	case document.EventUpdate:
		if ev.Change == nil || ev.Change.Origin == l.replica.ID() {
			return
		}
		l.push(channel.Envelope{Type: channel.TypeUpdate, Location: ev.Location.String(), Change: ev.Change})
	case document.EventLoad:
		l.push(channel.Envelope{Type: channel.TypeLoadAll, Location: ev.Location.String(), Cells: ev.Cells, Dirty: ev.NewDirty})
	case document.EventFile:
		l.mu.Lock()
		l.loc = ev.Location
		l.mu.Unlock()
		l.push(channel.Envelope{Type: channel.TypeFile, Location: ev.Location.String(), Dirty: ev.NewDirty})
	}
}

func (l *Link) push(env channel.Envelope) {
	if err := l.toReplica.Send(env); err != nil && !errors.Is(err, channel.ErrClosed) {
		l.logger.Error("bridge: push to replica failed", slog.String("error", err.Error()))
	}
}

func (l *Link) deliverToReplica(_ context.Context, env channel.Envelope) error {
	switch env.Type {
	case channel.TypeUpdate:
		if err := l.replica.HandleUpdate(*env.Change); err != nil {
			return fmt.Errorf("bridge: replica update: %w", err)
		}
	case channel.TypeLoadAll:
		l.replica.LoadAllCells(env.Cells, env.Dirty)
	case channel.TypeFile:
		l.replica.SetDirty(env.Dirty)
	}
	return nil
}
