//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/nbsync/internal/outline"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notebooks_fts USING fts5(
			path UNINDEXED,
			title,
			markdown,
			code,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title string, text outline.CellText, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM notebooks_fts WHERE path = ?`, path)
	_, err := tx.Exec(`INSERT INTO notebooks_fts (path, title, markdown, code, tags) VALUES (?, ?, ?, ?, ?)`,
		path, title, text.Markdown, text.Code, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM notebooks_fts WHERE path = ?`, path)
}

// Search runs an FTS5 query over title, markdown and code cells and tags,
// best match first. A column filter such as "code: read_csv" restricts the
// match to code cells.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT path, title, snippet(notebooks_fts, -1, '<b>', '</b>', '...', 32)
		FROM notebooks_fts
		WHERE notebooks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
