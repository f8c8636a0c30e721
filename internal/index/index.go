package index

// Catalog is the read side of the index used by the API and MCP layers.
type Catalog interface {
	ListNotebooks(limit, offset int, tag string) ([]NotebookRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
}

var _ Catalog = (*DB)(nil)
