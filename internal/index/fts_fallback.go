//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/starford/nbsync/internal/outline"
)

func initFTS(_ *sql.DB) error { return nil }

// Without FTS5 the markdown and code columns of notebooks are searched directly.
func ftsUpsert(_ *sql.Tx, _, _ string, _ outline.CellText, _ []string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// Search matches query as a substring of title, markdown or code cells or
// tags. The snippet comes from markdown when it matches there.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, title, markdown, code
		FROM notebooks
		WHERE title LIKE ? OR markdown LIKE ? OR code LIKE ? OR tags LIKE ?
		ORDER BY path
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var prose, code string
		if err := rows.Scan(&r.Path, &r.Title, &prose, &code); err != nil {
			return nil, err
		}
		body := prose
		if !strings.Contains(strings.ToLower(prose), strings.ToLower(query)) && code != "" {
			body = code
		}
		r.Snippet = snippet(body, query, 64)
		out = append(out, r)
	}
	return out, rows.Err()
}

// snippet returns up to width runes of body on each side of the first
// case-insensitive match of query.
func snippet(body, query string, width int) string {
	runes := []rune(body)
	lower := strings.ToLower(body)
	at := strings.Index(lower, strings.ToLower(query))
	if at < 0 {
		return string(runes[:min(len(runes), 2*width)])
	}
	center := min(utf8.RuneCountInString(lower[:at]), len(runes))
	from, to := max(center-width, 0), min(center+utf8.RuneCountInString(query)+width, len(runes))
	s := string(runes[from:to])
	if from > 0 {
		s = "..." + s
	}
	if to < len(runes) {
		s += "..."
	}
	return s
}
