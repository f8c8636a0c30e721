package index

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/nbsync/internal/outline"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nbsync-index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notebooks`).Scan(&count); err != nil {
		t.Fatalf("notebooks table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := NotebookRow{
		Path:      "analysis.ipynb",
		Title:     "Analysis",
		Checksum:  "abc123",
		Tags:      []string{"pandas"},
		CellCount: 3,
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertNotebook(row, outline.CellText{Code: "import pandas"}); err != nil {
		t.Fatalf("UpsertNotebook: %v", err)
	}
	cs, err := db.GetChecksum("analysis.ipynb")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNotebook(NotebookRow{Path: "up.ipynb", Title: "Old", Checksum: "1", UpdatedAt: now}, outline.CellText{Markdown: "old body"})
	_ = db.UpsertNotebook(NotebookRow{Path: "up.ipynb", Title: "New", Checksum: "2", Tags: []string{"new"}, UpdatedAt: now}, outline.CellText{Markdown: "new body"})

	rows, total, err := db.ListNotebooks(10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || rows[0].Title != "New" || rows[0].Checksum != "2" {
		t.Errorf("rows = %+v (total %d)", rows, total)
	}
}

func TestDeleteNotebook(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNotebook(NotebookRow{Path: "del.ipynb", Checksum: "x", UpdatedAt: time.Now()}, outline.CellText{Markdown: "body"})
	if err := db.DeleteNotebook("del.ipynb"); err != nil {
		t.Fatalf("DeleteNotebook: %v", err)
	}
	if cs, _ := db.GetChecksum("del.ipynb"); cs != "" {
		t.Errorf("deleted notebook still has checksum %q", cs)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.ipynb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListNotebooks_PagingAndTag(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	for _, r := range []NotebookRow{
		{Path: "a.ipynb", Checksum: "1", Tags: []string{"ml"}, UpdatedAt: now},
		{Path: "b.ipynb", Checksum: "2", Tags: []string{"etl"}, UpdatedAt: now},
		{Path: "c.ipynb", Checksum: "3", Tags: []string{"ml", "etl"}, UpdatedAt: now},
	} {
		if err := db.UpsertNotebook(r, outline.CellText{}); err != nil {
			t.Fatal(err)
		}
	}

	rows, total, err := db.ListNotebooks(2, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(rows) != 2 || rows[0].Path != "b.ipynb" {
		t.Errorf("page = %+v (total %d)", rows, total)
	}

	rows, total, err = db.ListNotebooks(10, 0, "ml")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || rows[0].Path != "a.ipynb" || rows[1].Path != "c.ipynb" {
		t.Errorf("tagged = %+v (total %d)", rows, total)
	}
	if len(rows[1].Tags) != 2 {
		t.Errorf("tags = %v", rows[1].Tags)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNotebook(NotebookRow{Path: "s.ipynb", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, outline.CellText{Markdown: "uniqueword appears here"})

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.ipynb" {
		t.Errorf("search results = %+v, want 1 hit for s.ipynb", results)
	}
	if results[0].Snippet == "" {
		t.Error("expected a snippet")
	}
}

func TestSearch_CodeCells(t *testing.T) {
	db := testDB(t)
	row := NotebookRow{Path: "etl.ipynb", Title: "ETL", Checksum: "1", CellCount: 3, CodeCells: 2, UpdatedAt: time.Now()}
	text := outline.CellText{Markdown: "Load the raw exports", Code: "df = pandas.read_csv(path)"}
	if err := db.UpsertNotebook(row, text); err != nil {
		t.Fatal(err)
	}

	results, err := db.Search("pandas", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Snippet, "pandas") {
		t.Errorf("results = %+v", results)
	}

	rows, _, err := db.ListNotebooks(10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].CellCount != 3 || rows[0].CodeCells != 2 {
		t.Errorf("counts = %d/%d", rows[0].CellCount, rows[0].CodeCells)
	}
}
