package nbservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/nbsync/internal/document"
)

// RunBackups periodically writes the contents of every dirty notebook to
// the recovery store until ctx is cancelled. A notebook is written again
// only after it changed.
func (s *Service) RunBackups(ctx context.Context) error {
	if s.opts.Recovery == nil || s.opts.BackupInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.opts.BackupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.BackupAll(ctx)
		}
	}
}

// BackupAll writes one recovery record per dirty notebook that changed since
// its last backup.
func (s *Service) BackupAll(ctx context.Context) {
	for _, m := range s.registry.List() {
		if !m.Dirty() {
			continue
		}
		s.mu.Lock()
		last, seen := s.backedUp[m]
		s.mu.Unlock()
		if seen && last == m.Version() {
			continue
		}
		if err := s.backup(ctx, m); err != nil {
			s.logger.Warn("nbservice: backup failed",
				slog.String("location", m.Location().String()),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Service) backup(ctx context.Context, m *document.Model) error {
	if s.opts.Recovery == nil {
		return nil
	}
	version := m.Version()
	data, err := m.Content(ctx)
	if err != nil {
		return err
	}
	if err := s.opts.Recovery.Save(ctx, m.Location(), string(data), time.Now()); err != nil {
		return fmt.Errorf("nbservice: backup %s: %w", m.Location(), err)
	}
	s.mu.Lock()
	if _, open := s.sessions[m]; open {
		s.backedUp[m] = version
	}
	s.mu.Unlock()
	s.logger.Debug("nbservice: backed up", slog.String("location", m.Location().String()), slog.Uint64("version", version))
	return nil
}
