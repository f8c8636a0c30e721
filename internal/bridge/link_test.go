package bridge

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/document"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/testutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	model *document.Model
	link  *Link
}

func setup(t *testing.T) fixture {
	t.Helper()
	_, ws := testutil.TestWorkspace(t)
	if err := ws.Write("demo.ipynb", []byte(testutil.Notebook)); err != nil {
		t.Fatal(err)
	}
	m := document.New(models.FileLocation("demo.ipynb"), document.Options{Workspace: ws, Logger: quiet})
	if _, err := m.Load(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	reg := document.NewRegistry()
	if err := reg.Put(m); err != nil {
		t.Fatal(err)
	}

	l := New(reg, m, Options{ReplicaID: "view", Logger: quiet})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		l.Close()
		cancel()
		<-done
	})
	testutil.Eventually(t, time.Second, func() bool { return l.Replica().State().Loaded })
	return fixture{model: m, link: l}
}

func (f fixture) converged() bool {
	return f.link.Pending() == 0 &&
		models.CellsEqual(f.model.Cells(), f.link.Replica().Cells()) &&
		f.model.Dirty() == f.link.Replica().State().Dirty
}

func TestLink_InitialLoad(t *testing.T) {
	f := setup(t)
	cells := f.link.Replica().Cells()
	if len(cells) != 2 || cells[1].Data.Source != "print(1)" {
		t.Fatalf("cells = %+v", cells)
	}
	if f.link.Replica().State().Dirty {
		t.Error("fresh load should be clean")
	}
}

func TestLink_ReplicaEditsConverge(t *testing.T) {
	f := setup(t)
	r := f.link.Replica()
	first := r.Cells()[0].ID

	id, err := r.InsertBelow(first)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.EditCell(id, change.ContentChange{Text: "x = 1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.MoveCellUp(id); err != nil {
		t.Fatal(err)
	}
	if err := r.ClearAllOutputs(); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteCell(first); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, f.converged)

	if err := r.Undo(); err != nil {
		t.Fatal(err)
	}
	if err := r.Undo(); err != nil {
		t.Fatal(err)
	}
	if err := r.Redo(); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, f.converged)

	if got := f.model.Cells()[0].Data.Source; got != "x = 1" {
		t.Errorf("model first cell = %q", got)
	}
}

func TestLink_ModelUndoReachesReplica(t *testing.T) {
	f := setup(t)
	r := f.link.Replica()
	if err := r.DeleteAllCells(); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, f.converged)

	if _, err := f.model.Undo(); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		return f.converged() && len(r.Cells()) == 2
	})
	if r.State().Dirty {
		t.Error("undo back to the loaded state should be clean")
	}
	if !r.CanRedo() {
		t.Error("replica history should mirror the model undo")
	}
}

func TestLink_SaveClearsReplicaDirty(t *testing.T) {
	f := setup(t)
	r := f.link.Replica()
	if _, err := r.AddNewCell(); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, f.converged)
	if !r.State().Dirty {
		t.Fatal("replica should be dirty after an insert")
	}

	if err := f.model.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool { return !r.State().Dirty })
}

func TestLink_ReloadPushesCells(t *testing.T) {
	_, ws := testutil.TestWorkspace(t)
	if err := ws.Write("demo.ipynb", []byte(testutil.Notebook)); err != nil {
		t.Fatal(err)
	}
	m := document.New(models.FileLocation("demo.ipynb"), document.Options{Workspace: ws, Logger: quiet})
	if _, err := m.Load(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	reg := document.NewRegistry()
	_ = reg.Put(m)
	l := New(reg, m, Options{ReplicaID: "view", Logger: quiet})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = l.Run(ctx) }()

	updated := `{"cells":[{"cell_type":"raw","metadata":{},"source":"only"}],"metadata":{},"nbformat":4,"nbformat_minor":2}`
	if err := ws.Write("demo.ipynb", []byte(updated)); err != nil {
		t.Fatal(err)
	}
	if ok, err := m.Reload(context.Background()); err != nil || !ok {
		t.Fatalf("Reload = %v, %v", ok, err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		cells := l.Replica().Cells()
		return len(cells) == 1 && cells[0].Data.Source == "only"
	})
}
