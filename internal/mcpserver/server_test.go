package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/nbservice"
	"github.com/starford/nbsync/internal/storage"
	"github.com/starford/nbsync/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()

	_, ws := testutil.TestWorkspace(t)
	if err := ws.Write("demo.ipynb", []byte(testutil.Notebook)); err != nil {
		t.Fatal(err)
	}

	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := index.Sync(db, ws, logger); err != nil {
		t.Fatal(err)
	}

	svc := nbservice.NewService(nbservice.Options{Workspace: ws, Catalog: db, Logger: logger})
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return New(svc, "test"), ws
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_notebooks":      srv.listNotebooks,
		"read_notebook":       srv.readNotebook,
		"list_cells":          srv.listCells,
		"apply_change":        srv.applyChange,
		"save_notebook":       srv.saveNotebook,
		"get_change_contract": srv.getChangeContract,
		"search_notebooks":    srv.searchNotebooks,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type cellList struct {
	Dirty bool       `json:"dirty"`
	Cells []cellItem `json:"cells"`
}

func listCells(t *testing.T, srv *Server) cellList {
	t.Helper()
	r := callTool(t, srv, "list_cells", map[string]any{"location": "file:demo.ipynb"})
	if r.IsError {
		t.Fatalf("list_cells: %s", resultText(r))
	}
	var out cellList
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestReadNotebook(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_notebook", map[string]any{"location": "file:demo.ipynb"})
	if r.IsError || !strings.Contains(resultText(r), `"print(1)"`) {
		t.Errorf("read = %q", resultText(r))
	}

	r = callTool(t, srv, "read_notebook", map[string]any{"location": "ftp:demo"})
	if !r.IsError {
		t.Error("expected error for unsupported scheme")
	}
	r = callTool(t, srv, "read_notebook", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing location")
	}
}

func TestApplyChangeAndSave(t *testing.T) {
	srv, ws := testServer(t)
	before := listCells(t, srv)
	if len(before.Cells) != 2 || before.Cells[1].Type != "code" {
		t.Fatalf("cells = %+v", before)
	}

	edit := `{"kind":"edit","cellId":"` + before.Cells[1].ID + `","forward":[{"rangeOffset":6,"rangeLength":1,"text":"2"}],"reverse":[{"rangeOffset":6,"rangeLength":1,"text":"1"}]}`
	r := callTool(t, srv, "apply_change", map[string]any{"location": "file:demo.ipynb", "change": edit})
	if r.IsError || !strings.HasPrefix(resultText(r), "queued: ") {
		t.Fatalf("apply = %q", resultText(r))
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		got := listCells(t, srv)
		return got.Dirty && got.Cells[1].Source == "print(2)"
	})

	r = callTool(t, srv, "save_notebook", map[string]any{"location": "file:demo.ipynb"})
	if resultText(r) != "saved: file:demo.ipynb" {
		t.Fatalf("save = %q", resultText(r))
	}
	data, _ := ws.Read("demo.ipynb")
	if !strings.Contains(string(data), `"print(2)"`) {
		t.Errorf("saved = %s", data)
	}
}

func TestApplyChange_Invalid(t *testing.T) {
	srv, _ := testServer(t)

	for _, c := range []string{`not json`, `{"kind":"swap"}`, `{"kind":"teleport"}`} {
		r := callTool(t, srv, "apply_change", map[string]any{"location": "file:demo.ipynb", "change": c})
		if !r.IsError {
			t.Errorf("change %s accepted", c)
		}
	}
}

func TestListAndSearchNotebooks(t *testing.T) {
	srv, _ := testServer(t)
	listCells(t, srv)

	r := callTool(t, srv, "list_notebooks", map[string]any{})
	var out struct {
		Total int                         `json:"total"`
		Open  []nbservice.NotebookSummary `json:"open"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || len(out.Open) != 1 || out.Open[0].Location != "file:demo.ipynb" {
		t.Errorf("list = %+v", out)
	}

	r = callTool(t, srv, "search_notebooks", map[string]any{"query": "intro"})
	if !strings.Contains(resultText(r), "demo.ipynb") {
		t.Errorf("search = %q", resultText(r))
	}
}

func TestChangeContract(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_change_contract", nil)
	if !strings.Contains(resultText(r), "remove_all") {
		t.Error("contract misses remove_all")
	}

	res, err := srv.readChangeFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
	if tc, ok := res[0].(mcp.TextResourceContents); !ok || tc.URI != changeFormatURI {
		t.Errorf("resource = %+v", res[0])
	}
}
