// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes nbsync notebook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/nbservice"
)

const changeFormatURI = "nbsync://change-format"

// Server wraps the MCP server with nbsync tools.
type Server struct {
	mcp *server.MCPServer
	svc *nbservice.Service
}

// New creates a new MCP server with all nbsync tools registered.
func New(svc *nbservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"nbsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List workspace notebooks and the notebooks currently open."),
		mcp.WithString("tag", mcp.Description("Optional tag filter for workspace notebooks")),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("read_notebook",
		mcp.WithDescription("Open a notebook if needed and return it as nbformat JSON, including unsaved changes."),
		mcp.WithString("location", mcp.Required(), mcp.Description("Notebook location, e.g. file:analysis/report.ipynb")),
	), s.readNotebook)

	s.mcp.AddTool(mcp.NewTool("list_cells",
		mcp.WithDescription("List the cells of a notebook with their ids, types and sources."),
		mcp.WithString("location", mcp.Required(), mcp.Description("Notebook location")),
	), s.listCells)

	s.mcp.AddTool(mcp.NewTool("apply_change",
		mcp.WithDescription("Queue a change for a notebook. The change MUST follow the change "+
			"format; read it first via the get_change_contract tool or the "+changeFormatURI+" resource."),
		mcp.WithString("location", mcp.Required(), mcp.Description("Notebook location")),
		mcp.WithString("change", mcp.Required(), mcp.Description("Change as a JSON object")),
	), s.applyChange)

	s.mcp.AddTool(mcp.NewTool("save_notebook",
		mcp.WithDescription("Write an open notebook to disk, optionally to a new file location."),
		mcp.WithString("location", mcp.Required(), mcp.Description("Notebook location")),
		mcp.WithString("as", mcp.Description("Optional save-as file location")),
	), s.saveNotebook)

	s.mcp.AddTool(mcp.NewTool("get_change_contract",
		mcp.WithDescription("Returns the change format accepted by apply_change."),
	), s.getChangeContract)

	s.mcp.AddTool(mcp.NewTool("search_notebooks",
		mcp.WithDescription("Full-text search through workspace notebook titles, cell text and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotebooks)

	s.mcp.AddResource(
		mcp.NewResource(changeFormatURI, "Change Format Contract",
			mcp.WithResourceDescription("Change envelope accepted by apply_change."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readChangeFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// open returns the notebook at the request's location, opening it first
// when needed.
func (s *Server) open(ctx context.Context, req mcp.CallToolRequest) (models.Location, *nbservice.NotebookDetail, error) {
	raw, err := req.RequireString("location")
	if err != nil {
		return models.Location{}, nil, err
	}
	loc, err := models.ParseLocation(raw)
	if err != nil {
		return models.Location{}, nil, err
	}
	nb, err := s.svc.Open(ctx, loc, nil)
	if err != nil {
		return models.Location{}, nil, err
	}
	return loc, nb, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotebooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := ""
	if t, err := req.RequireString("tag"); err == nil {
		tag = t
	}
	files, total, err := s.svc.Files(0, 0, tag)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"files": files,
		"total": total,
		"open":  s.svc.List(),
	})
}

func (s *Server) readNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, _, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.Content(ctx, loc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type cellItem struct {
	Index  int    `json:"index"`
	ID     string `json:"id"`
	Type   string `json:"type"`
	Source string `json:"source"`
}

func (s *Server) listCells(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, nb, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items := make([]cellItem, len(nb.Cells))
	for i, c := range nb.Cells {
		items[i] = cellItem{Index: i, ID: c.ID, Type: string(c.Data.CellType), Source: c.Data.Source}
	}
	return jsonResult(map[string]any{
		"location": nb.Location,
		"dirty":    nb.Dirty,
		"cells":    items,
	})
}

func (s *Server) applyChange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("change")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var c change.Change
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("change is not valid JSON: %v", err)), nil
	}
	if c.ID == "" {
		c.ID = change.NewID()
	}
	if c.Source == "" {
		c.Source = change.SourceUser
	}
	loc, _, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Submit(loc, c); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("queued: %s", c.ID)), nil
}

func (s *Server) saveNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, _, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var as *models.Location
	if raw, err := req.RequireString("as"); err == nil && raw != "" {
		target, err := models.ParseLocation(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		as = &target
	}
	nb, err := s.svc.Save(ctx, loc, as)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", nb.Location)), nil
}

func (s *Server) getChangeContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ChangeFormatContract), nil
}

func (s *Server) searchNotebooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readChangeFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      changeFormatURI,
			MIMEType: "text/markdown",
			Text:     ChangeFormatContract,
		},
	}, nil
}
