package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/nbsync/internal/outline"
)

// NotebookRow represents a row in the notebooks table.
type NotebookRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	CellCount int       `json:"cell_count"`
	CodeCells int       `json:"code_cells"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// UpsertNotebook inserts or replaces a notebook and its FTS entry.
func (db *DB) UpsertNotebook(n NotebookRow, text outline.CellText) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.Tags == nil {
		n.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(n.Tags)

	_, err = tx.Exec(`
		INSERT INTO notebooks (path, title, checksum, tags, markdown, code, cell_count, code_cells, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			markdown   = excluded.markdown,
			code       = excluded.code,
			cell_count = excluded.cell_count,
			code_cells = excluded.code_cells,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, string(tagsJSON), text.Markdown, text.Code, n.CellCount, n.CodeCells, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert notebook: %w", err)
	}

	if err := ftsUpsert(tx, n.Path, n.Title, text, n.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteNotebook removes a notebook and its FTS entry.
func (db *DB) DeleteNotebook(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM notebooks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete notebook: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a notebook, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notebooks WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums maps every indexed path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notebooks`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// ListNotebooks returns a page of notebooks ordered by path, optionally
// filtered to those carrying tag, and the total matching count.
func (db *DB) ListNotebooks(limit, offset int, tag string) ([]NotebookRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if tag != "" {
		where = `WHERE EXISTS (SELECT 1 FROM json_each(notebooks.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notebooks `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notebooks: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT path, title, checksum, tags, cell_count, code_cells, updated_at
		FROM notebooks `+where+`
		ORDER BY path
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notebooks: %w", err)
	}
	defer rows.Close()

	out := []NotebookRow{}
	for rows.Next() {
		var r NotebookRow
		var tags string
		if err := rows.Scan(&r.Path, &r.Title, &r.Checksum, &tags, &r.CellCount, &r.CodeCells, &r.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			r.Tags = []string{}
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}
