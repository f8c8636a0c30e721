package change

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

func cell(id, src string) models.Cell {
	c := models.NewEmptyCell(id)
	c.Data.Source = src
	return c
}

func ids(cells []models.Cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.ID
	}
	return out
}

func sameIDs(t *testing.T, got []models.Cell, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func withOutputs(c models.Cell) models.Cell {
	n := 4
	c.Data.Outputs = []json.RawMessage{json.RawMessage(`{"output_type":"stream","text":"hi"}`)}
	c.Data.ExecutionCount = &n
	return c
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	doc := []models.Cell{cell("a", "x"), cell("b", "y")}
	_ = Apply(doc, NewEdit("a", "x", ContentChange{RangeOffset: 1, Text: "z"}))
	if doc[0].Data.Source != "x" {
		t.Errorf("input mutated: %q", doc[0].Data.Source)
	}
}

func TestInverseLaw(t *testing.T) {
	a := withOutputs(cell("a", "print(1)"))
	b := cell("b", "# title")
	b.Data.CellType = models.CellTypeMarkdown
	c := cell("c", "héllo wörld")
	doc := []models.Cell{a, b, c}

	modified := a.Clone()
	modified.State = models.StateExecuting

	cases := map[string]Change{
		"edit":         NewEdit("c", c.Data.Source, ContentChange{RangeOffset: 1, RangeLength: 4, Text: "ELLO"}, ContentChange{RangeOffset: 0, Text: ">> "}),
		"edit delete":  NewEdit("c", c.Data.Source, ContentChange{RangeOffset: 5, RangeLength: 6}),
		"insert first": NewInsert(cell("n", ""), 0, ""),
		"insert mid":   NewInsert(cell("n", ""), 1, "a"),
		"insert end":   NewInsert(cell("n", ""), 3, "c"),
		"remove":       NewRemove(b, 1, "fresh"),
		"remove all":   NewRemoveAll(doc, "X"),
		"swap":         NewSwap("a", "c"),
		"clear":        NewClear(doc),
		"modify":       NewModify([]models.Cell{a}, []models.Cell{modified}),
	}
	for name, ch := range cases {
		t.Run(name, func(t *testing.T) {
			after := Apply(doc, ch)
			inv, err := Invert(ch)
			if err != nil {
				t.Fatalf("Invert: %v", err)
			}
			back := Apply(after, inv)
			if !models.CellsEqual(back, doc) {
				t.Errorf("inverse law broken:\n got  %+v\n want %+v", back, doc)
			}
		})
	}
}

func TestInverseLaw_SoleCellRemove(t *testing.T) {
	doc := []models.Cell{cell("only", "x = 1")}
	ch := NewRemove(doc[0], 0, "replacement")

	after := Apply(doc, ch)
	sameIDs(t, after, "replacement")
	if after[0].Data.Source != "" {
		t.Errorf("replacement should be empty, got %q", after[0].Data.Source)
	}

	inv, _ := Invert(ch)
	back := Apply(after, inv)
	if !models.CellsEqual(back, doc) {
		t.Errorf("got %+v, want %+v", back, doc)
	}
}

func TestRemoveSole_ReusesIDWithoutReplacement(t *testing.T) {
	doc := []models.Cell{cell("only", "x")}
	after := Apply(doc, NewRemove(doc[0], 0, ""))
	sameIDs(t, after, "only")
	if after[0].Data.Source != "" {
		t.Error("expected an empty cell")
	}
}

func TestInsertAtOneThenUndo(t *testing.T) {
	doc := []models.Cell{cell("a", ""), cell("b", "")}
	ch := NewInsert(cell("c", ""), 1, "a")
	after := Apply(doc, ch)
	sameIDs(t, after, "a", "c", "b")

	inv, _ := Invert(ch)
	sameIDs(t, Apply(after, inv), "a", "b")
}

func TestRemoveAllThenUndo(t *testing.T) {
	doc := []models.Cell{cell("a", "1"), cell("b", "2"), cell("c", "3")}
	ch := NewRemoveAll(doc, "X")
	after := Apply(doc, ch)
	sameIDs(t, after, "X")
	if after[0].Data.CellType != models.CellTypeCode || after[0].Data.Source != "" {
		t.Errorf("expected one empty code cell, got %+v", after[0])
	}

	inv, _ := Invert(ch)
	if !models.CellsEqual(Apply(after, inv), doc) {
		t.Error("undo should restore the original cells")
	}
}

func TestSwapTwice(t *testing.T) {
	doc := []models.Cell{cell("a", ""), cell("b", ""), cell("c", "")}
	ch := NewSwap("a", "c")
	once := Apply(doc, ch)
	sameIDs(t, once, "c", "b", "a")
	sameIDs(t, Apply(once, ch), "a", "b", "c")
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	doc := []models.Cell{cell("a", "x"), cell("b", "y")}
	for name, ch := range map[string]Change{
		"edit":   NewEdit("zz", "", ContentChange{Text: "q"}),
		"swap":   NewSwap("a", "zz"),
		"remove": NewRemove(cell("zz", ""), 0, ""),
		"modify": NewModify(nil, []models.Cell{cell("zz", "q")}),
	} {
		if got := Apply(doc, ch); !models.CellsEqual(got, doc) {
			t.Errorf("%s: expected no-op, got %v", name, ids(got))
		}
	}
}

func TestInsertRedeliveryIsIdempotent(t *testing.T) {
	doc := []models.Cell{cell("a", ""), cell("b", "")}
	ch := NewInsert(cell("n", "z"), 1, "a")
	once := Apply(doc, ch)
	twice := Apply(once, ch)
	if !models.CellsEqual(once, twice) {
		t.Errorf("got %v, want %v", ids(twice), ids(once))
	}
}

func TestClearOnlyTouchesCodeCells(t *testing.T) {
	md := cell("m", "# x")
	md.Data.CellType = models.CellTypeMarkdown
	md.Data.Outputs = nil
	doc := []models.Cell{withOutputs(cell("a", "1")), md}

	got := Apply(doc, NewClear(doc))
	if len(got[0].Data.Outputs) != 0 || got[0].Data.ExecutionCount != nil {
		t.Errorf("code cell not cleared: %+v", got[0].Data)
	}
	if !got[1].Equal(md) {
		t.Errorf("markdown cell changed: %+v", got[1])
	}
}

func TestEdit_StripsCarriageReturns(t *testing.T) {
	doc := []models.Cell{cell("a", "")}
	got := Apply(doc, NewEdit("a", "", ContentChange{Text: "a\r\nb"}))
	if got[0].Data.Source != "a\nb" {
		t.Errorf("source = %q", got[0].Data.Source)
	}
}

func TestApplyText_ClampsRanges(t *testing.T) {
	if got := ApplyText("abc", []ContentChange{{RangeOffset: 10, RangeLength: 5, Text: "!"}}); got != "abc!" {
		t.Errorf("got %q", got)
	}
	if got := ApplyText("日本語", []ContentChange{{RangeOffset: 1, RangeLength: 1, Text: "x"}}); got != "日x語" {
		t.Errorf("got %q", got)
	}
}

func TestInvert_Version(t *testing.T) {
	_, err := Invert(NewVersion(VersionInfo{InterpreterVersion: "3.11"}))
	if !errors.Is(err, ErrNotInvertible) {
		t.Errorf("err = %v, want ErrNotInvertible", err)
	}
}

func TestInvert_SwapsDirtyFlags(t *testing.T) {
	ch := NewSwap("a", "b")
	ch.OldDirty, ch.NewDirty = false, true
	inv, _ := Invert(ch)
	if inv.OldDirty != true || inv.NewDirty != false {
		t.Errorf("got old=%v new=%v", inv.OldDirty, inv.NewDirty)
	}
	if inv.ID != ch.ID {
		t.Error("inverse must keep the change id")
	}
}

func TestValidate(t *testing.T) {
	good := []Change{
		NewEdit("a", "", ContentChange{Text: "x"}),
		NewInsert(cell("n", ""), 0, ""),
		NewRemoveAll(nil, "X"),
		NewSwap("a", "b"),
		NewClear(nil),
		NewVersion(VersionInfo{}),
	}
	for _, ch := range good {
		if err := ch.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", ch.Kind, err)
		}
	}

	bad := []Change{
		{ID: "1", Kind: KindEdit, Source: SourceUser},
		{ID: "1", Kind: KindInsert, Source: SourceUser},
		{ID: "1", Kind: KindSwap, Source: SourceUser, FirstCellID: "a"},
		{ID: "1", Kind: "explode", Source: SourceUser},
		{ID: "", Kind: KindClear, Source: SourceUser},
		{ID: "1", Kind: KindClear, Source: "robot"},
		{ID: "1", Kind: KindInsert, Source: SourceUser, Cell: &models.Cell{ID: "x"}},
		{ID: "1", Kind: KindEdit, Source: SourceUser, CellID: "a", Forward: []ContentChange{{RangeOffset: -1}}},
	}
	for i, ch := range bad {
		if err := ch.Validate(); !errors.Is(err, apperr.ErrInvalidChange) {
			t.Errorf("case %d: err = %v, want ErrInvalidChange", i, err)
		}
	}
}
