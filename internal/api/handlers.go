package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/nbservice"
)

const maxBody = 32 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *nbservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *nbservice.Service) *Handler {
	return &Handler{svc: svc}
}

// location reads the loc query parameter. On failure the response is
// already written.
func location(w http.ResponseWriter, r *http.Request) (models.Location, bool) {
	loc, err := models.ParseLocation(r.URL.Query().Get("loc"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("loc: %v", err)))
		return models.Location{}, false
	}
	return loc, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// Open handles POST /api/notebook/open.
//
//	@Summary		Open a notebook and link a replica to it
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenRequest	true	"Notebook to open"
//	@Success		200		{object}	NotebookDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook/open [post]
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decode(w, r, &req) {
		return
	}
	loc, err := models.ParseLocation(req.Location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("location: %v", err)))
		return
	}
	var inline []byte
	if req.Content != "" {
		inline = []byte(req.Content)
	}
	nb, err := h.svc.Open(r.Context(), loc, inline)
	if err != nil {
		writeError(w, "open", err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// Get handles GET /api/notebook.
//
//	@Summary		Get an open notebook
//	@Tags			notebooks
//	@Produce		json
//	@Param			loc	query		string	true	"Notebook location"
//	@Success		200	{object}	NotebookDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	nb, err := h.svc.Get(loc)
	if err != nil {
		writeError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// List handles GET /api/notebooks.
func (h *Handler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NotebookListResponse{Notebooks: h.svc.List()})
}

// Submit handles POST /api/notebook/changes. The change is queued and
// applied asynchronously.
//
//	@Summary		Queue a change for an open notebook
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			loc		query		string			true	"Notebook location"
//	@Param			body	body		change.Change	true	"Change"
//	@Success		202		{object}	ChangeAccepted
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook/changes [post]
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	var c change.Change
	if !decode(w, r, &c) {
		return
	}
	if c.ID == "" {
		c.ID = change.NewID()
	}
	if c.Source == "" {
		c.Source = change.SourceUser
	}
	if err := h.svc.Submit(loc, c); err != nil {
		writeError(w, "submit", err)
		return
	}
	writeJSON(w, http.StatusAccepted, ChangeAccepted{ID: c.ID})
}

// Exec handles POST /api/notebook/commands and returns the replica view.
//
//	@Summary		Run a replica command
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			loc		query		string				true	"Notebook location"
//	@Param			body	body		nbservice.Command	true	"Command"
//	@Success		200		{object}	replica.State
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook/commands [post]
func (h *Handler) Exec(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	var cmd nbservice.Command
	if !decode(w, r, &cmd) {
		return
	}
	st, err := h.svc.Exec(loc, cmd)
	if err != nil {
		writeError(w, "command", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Save handles POST /api/notebook/save. With as set the notebook is saved
// to, and reopened at, that location.
//
//	@Summary		Save an open notebook
//	@Tags			notebooks
//	@Produce		json
//	@Param			loc	query		string	true	"Notebook location"
//	@Param			as	query		string	false	"Save-as target location"
//	@Success		200	{object}	NotebookDetail
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	var as *models.Location
	if raw := r.URL.Query().Get("as"); raw != "" {
		target, err := models.ParseLocation(raw)
		if err != nil || !target.IsFile() {
			writeJSON(w, http.StatusBadRequest, errorBody("as: must be a file location"))
			return
		}
		as = &target
	}
	nb, err := h.svc.Save(r.Context(), loc, as)
	if err != nil {
		writeError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// Undo handles POST /api/notebook/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, "undo", h.svc.Undo)
}

// Redo handles POST /api/notebook/redo.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, "redo", h.svc.Redo)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, op string, fn func(models.Location) (change.Change, error)) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	c, err := fn(loc)
	if err != nil {
		writeError(w, op, err)
		return
	}
	resp := HistoryResponse{Change: c}
	if nb, err := h.svc.Get(loc); err == nil {
		resp.CanUndo, resp.CanRedo = nb.CanUndo, nb.CanRedo
	}
	writeJSON(w, http.StatusOK, resp)
}

// Content handles GET /api/notebook/content and returns the nbformat file
// as it would be saved.
//
//	@Summary		Serialize an open notebook
//	@Tags			notebooks
//	@Produce		json
//	@Param			loc	query	string	true	"Notebook location"
//	@Success		200	"nbformat JSON"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook/content [get]
func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	data, err := h.svc.Content(r.Context(), loc)
	if err != nil {
		writeError(w, "content", err)
		return
	}
	w.Header().Set("Content-Type", "application/x-ipynb+json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("api: write content failed", slog.String("error", err.Error()))
	}
}

// Outline handles GET /api/notebook/outline.
func (h *Handler) Outline(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Outline(loc)
	if err != nil {
		writeError(w, "outline", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// View handles GET /api/notebook/view.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	st, err := h.svc.View(loc)
	if err != nil {
		writeError(w, "view", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Close handles DELETE /api/notebook.
//
//	@Summary		Close an open notebook
//	@Tags			notebooks
//	@Param			loc	query	string	true	"Notebook location"
//	@Success		204	"Notebook closed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebook [delete]
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	if err := h.svc.Close(r.Context(), loc); err != nil {
		writeError(w, "close", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Files handles GET /api/files.
//
//	@Summary		List workspace notebooks with optional pagination and filtering
//	@Tags			catalog
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.svc.Files(limit, offset, q.Get("tag"))
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: rows, Total: total})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across workspace notebooks
//	@Tags			catalog
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
