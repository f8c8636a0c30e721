package index

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/nbsync/internal/checksum"
	"github.com/starford/nbsync/internal/nbformat"
	"github.com/starford/nbsync/internal/outline"
	"github.com/starford/nbsync/internal/storage"
)

// Ext is the file extension of catalogued notebooks.
const Ext = ".ipynb"

// Sync walks the workspace and brings the catalog up to date: changed
// notebooks are re-read, vanished ones dropped. Unparseable files are
// logged and skipped.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	files, err := store.List("", Ext)
	if err != nil {
		return fmt.Errorf("index: sync: %w", err)
	}
	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}
		if indexed[f.Path] == f.Checksum {
			continue
		}
		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, f.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("path", f.Path))
	}

	for p := range indexed {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNotebook(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}
	return nil
}

// indexFile parses a notebook file and upserts its catalog row.
func indexFile(db *DB, path string, data []byte) error {
	nb, err := nbformat.Parse(data)
	if err != nil {
		return err
	}
	o := outline.FromCells(nb.Cells)
	return db.UpsertNotebook(NotebookRow{
		Path:      path,
		Title:     o.Title,
		Checksum:  checksum.Sum(data),
		Tags:      o.Tags,
		CellCount: o.CellCount,
		CodeCells: o.CodeCells,
		UpdatedAt: time.Now().UTC(),
	}, outline.Text(nb.Cells))
}
