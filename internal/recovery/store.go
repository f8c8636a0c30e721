// Package recovery keeps unsaved notebook contents across crashes and
// restarts. Records live in three tiers, checked in order: hashed files in
// the recovery directory, the legacy global key/value bucket and the legacy
// session bucket.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/kvstore"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/storage"
)

// Legacy key names.
const (
	KeyPrefix   = "notebook-storage-"
	TransferKey = "notebook-transfered"
)

const fileExt = ".ipynb"

// Tier names where a record was found.
type Tier string

const (
	TierFile    Tier = "file"
	TierGlobal  Tier = "global"
	TierSession Tier = "session"
)

// Record is the persisted form of unsaved contents.
type Record struct {
	Contents           string `json:"contents"`
	LastModifiedTimeMs int64  `json:"lastModifiedTimeMs"`
}

// Hit is a usable recovery record.
type Hit struct {
	Tier     Tier
	Contents string
}

// Key returns the storage key of a location.
func Key(loc models.Location) string {
	return KeyPrefix + loc.String()
}

// FileName returns the tier-1 file name of a location.
func FileName(loc models.Location) string {
	return checksum.FileName(Key(loc), fileExt)
}

// Store looks up and writes recovery records.
type Store struct {
	files     storage.Provider
	global    kvstore.Store
	session   kvstore.Store
	workspace storage.Provider
	logger    *slog.Logger
}

// NewStore wires the three tiers. workspace is used to stat backing files
// for the staleness check. global and session may be nil.
func NewStore(files storage.Provider, global, session kvstore.Store, workspace storage.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		files:     files,
		global:    global,
		session:   session,
		workspace: workspace,
		logger:    logger,
	}
}

// Lookup returns the first usable record for loc. Finding a record in the
// global tier migrates the legacy bucket; the session record is removed once
// read. Errors never escape: a failing tier is treated as a miss.
func (s *Store) Lookup(ctx context.Context, loc models.Location) (Hit, bool) {
	return s.lookup(ctx, loc, true)
}

// Inspect is Lookup without side effects.
func (s *Store) Inspect(ctx context.Context, loc models.Location) (Hit, bool) {
	return s.lookup(ctx, loc, false)
}

func (s *Store) lookup(ctx context.Context, loc models.Location, consume bool) (Hit, bool) {
	key := Key(loc)

	if contents, ok := s.fromFile(loc, key); ok {
		return Hit{Tier: TierFile, Contents: contents}, true
	}
	if contents, ok := s.fromGlobal(ctx, loc, key, consume); ok {
		return Hit{Tier: TierGlobal, Contents: contents}, true
	}
	if contents, ok := s.fromSession(ctx, key, consume); ok {
		return Hit{Tier: TierSession, Contents: contents}, true
	}
	return Hit{}, false
}

func (s *Store) fromFile(loc models.Location, key string) (string, bool) {
	name := checksum.FileName(key, fileExt)
	data, err := s.files.Read(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("recovery: read backup failed",
				slog.String("location", loc.String()),
				slog.String("error", err.Error()))
		}
		return "", false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("recovery: corrupt backup ignored",
			slog.String("file", name),
			slog.String("error", err.Error()))
		return "", false
	}
	return s.usable(loc, TierFile, rec)
}

func (s *Store) fromGlobal(ctx context.Context, loc models.Location, key string, consume bool) (string, bool) {
	if s.global == nil {
		return "", false
	}
	raw, ok, err := s.global.Get(ctx, key)
	if err != nil {
		s.logger.Warn("recovery: global lookup failed", slog.String("error", err.Error()))
		return "", false
	}
	if !ok {
		return "", false
	}
	if consume {
		s.migrate(ctx)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Warn("recovery: corrupt global record ignored",
			slog.String("location", loc.String()),
			slog.String("error", err.Error()))
		return "", false
	}
	return s.usable(loc, TierGlobal, rec)
}

func (s *Store) fromSession(ctx context.Context, key string, consume bool) (string, bool) {
	if s.session == nil {
		return "", false
	}
	raw, ok, err := s.session.Get(ctx, key)
	if err != nil {
		s.logger.Warn("recovery: session lookup failed", slog.String("error", err.Error()))
		return "", false
	}
	if !ok || raw == "" {
		return "", false
	}
	if consume {
		if err := s.session.Delete(ctx, key); err != nil {
			s.logger.Warn("recovery: session delete failed", slog.String("error", err.Error()))
		}
	}
	return raw, true
}

// usable applies the staleness rule: a record is ignored when the backing
// file was modified after the record was written. Untitled records have no
// backing file and are always usable.
func (s *Store) usable(loc models.Location, tier Tier, rec Record) (string, bool) {
	if rec.Contents == "" {
		return "", false
	}
	if rec.LastModifiedTimeMs == 0 || !loc.IsFile() || s.workspace == nil {
		return rec.Contents, true
	}
	info, err := s.workspace.Stat(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rec.Contents, true
		}
		s.logger.Debug("recovery: stat failed",
			slog.String("location", loc.String()),
			slog.String("error", err.Error()))
		return "", false
	}
	if info.ModTimeMs() > rec.LastModifiedTimeMs {
		s.logger.Info("recovery: stale record ignored",
			slog.String("location", loc.String()),
			slog.String("tier", string(tier)),
			slog.Int64("file_mtime_ms", info.ModTimeMs()),
			slog.Int64("record_ms", rec.LastModifiedTimeMs))
		return "", false
	}
	return rec.Contents, true
}

// migrate removes every legacy record from the global bucket. It is safe to
// run more than once.
func (s *Store) migrate(ctx context.Context) {
	if err := s.global.Set(ctx, TransferKey, "true"); err != nil {
		s.logger.Warn("recovery: mark transfer failed", slog.String("error", err.Error()))
	}
	n, err := s.global.DeletePrefix(ctx, KeyPrefix)
	if err != nil {
		s.logger.Warn("recovery: migrate legacy records failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("recovery: legacy records migrated", slog.Int64("removed", n))
}

// Save writes contents as the tier-1 record of loc, stamped with at.
func (s *Store) Save(ctx context.Context, loc models.Location, contents string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Record{Contents: contents, LastModifiedTimeMs: at.UnixMilli()})
	if err != nil {
		return fmt.Errorf("recovery: encode record: %w", err)
	}
	if err := s.files.Write(FileName(loc), data); err != nil {
		return fmt.Errorf("recovery: save %s: %w", loc, err)
	}
	return nil
}

// Clear removes the tier-1 record of loc. A missing record is not an error.
func (s *Store) Clear(ctx context.Context, loc models.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.files.Delete(FileName(loc)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("recovery: clear %s: %w", loc, err)
	}
	return nil
}
