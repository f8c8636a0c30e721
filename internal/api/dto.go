package api

import (
	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/nbservice"
)

// OpenRequest is the request body for opening a notebook.
type OpenRequest struct {
	Location string `json:"location" example:"file:analysis/report.ipynb" validate:"required"`
	// Content is the nbformat JSON of an untitled notebook. File notebooks
	// are read from the workspace.
	Content string `json:"content,omitempty"`
}

// NotebookDetail is the full notebook response type (aliased from the domain layer).
type NotebookDetail = nbservice.NotebookDetail

// NotebookSummary is an item in the open notebook list (aliased from the domain layer).
type NotebookSummary = nbservice.NotebookSummary

// NotebookListResponse wraps the open notebook list.
type NotebookListResponse struct {
	Notebooks []NotebookSummary `json:"notebooks" validate:"required"`
}

// ChangeAccepted is returned when a change was queued for the model.
type ChangeAccepted struct {
	ID string `json:"id" example:"5f0c6e1e-3c1a-4a8e-9f55-0d6c3f1f2b7a" validate:"required"`
}

// HistoryResponse carries the change produced by a model-side undo or redo.
type HistoryResponse struct {
	Change  change.Change `json:"change" validate:"required"`
	CanUndo bool          `json:"can_undo"`
	CanRedo bool          `json:"can_redo"`
}

// FileListResponse wraps paginated catalog listings.
type FileListResponse struct {
	Files []index.NotebookRow `json:"files" validate:"required"`
	Total int                 `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
