package nbformat

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/models"
)

const sample = `{
    "cells": [
        {
            "cell_type": "markdown",
            "id": "intro",
            "metadata": {"tags": ["a"]},
            "source": ["# Title\n", "text <b>&</b>"]
        },
        {
            "cell_type": "code",
            "execution_count": 3,
            "metadata": {},
            "outputs": [{"name": "stdout", "output_type": "stream", "text": ["hi\n"]}],
            "source": "print('hi')"
        }
    ],
    "metadata": {"kernelspec": {"name": "python3", "display_name": "Python 3"}},
    "custom_extension": {"keep": true},
    "nbformat": 4,
    "nbformat_minor": 5
}`

func topKeys(t *testing.T, f *Fields) []string {
	t.Helper()
	var keys []string
	for p := f.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

func TestParse(t *testing.T) {
	nb, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if nb.Indent != "    " {
		t.Errorf("indent = %q, want four spaces", nb.Indent)
	}
	if len(nb.Cells) != 2 {
		t.Fatalf("cells = %d, want 2", len(nb.Cells))
	}

	md := nb.Cells[0]
	if md.ID != "NotebookImport#0" || md.Data.CellType != models.CellTypeMarkdown {
		t.Errorf("unexpected first cell %+v", md)
	}
	if md.Data.Source != "# Title\ntext <b>&</b>" {
		t.Errorf("source = %q", md.Data.Source)
	}
	if string(md.Data.Extra["id"]) != `"intro"` {
		t.Errorf("extra id = %s", md.Data.Extra["id"])
	}
	if string(md.Data.Metadata) != `{"tags":["a"]}` {
		t.Errorf("metadata not compacted: %s", md.Data.Metadata)
	}

	code := nb.Cells[1]
	if code.Data.ExecutionCount == nil || *code.Data.ExecutionCount != 3 {
		t.Errorf("execution count = %v", code.Data.ExecutionCount)
	}
	if len(code.Data.Outputs) != 1 {
		t.Errorf("outputs = %d", len(code.Data.Outputs))
	}
}

func TestRoundTrip(t *testing.T) {
	nb, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := Serialize(nb.Fields, nb.Cells, nb.Indent)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	again, err := Parse(out)
	if err != nil {
		t.Fatalf("re-Parse: %v", err)
	}

	if !models.CellsEqual(nb.Cells, again.Cells) {
		t.Errorf("cells differ after round trip:\n%s", out)
	}
	want := []string{"cells", "metadata", "custom_extension", "nbformat", "nbformat_minor"}
	if got := topKeys(t, again.Fields); !slices.Equal(got, want) {
		t.Errorf("top-level order = %v, want %v", got, want)
	}
	if again.Indent != "    " {
		t.Errorf("indent not preserved: %q", again.Indent)
	}
	if strings.Contains(string(out), `<`) {
		t.Error("HTML characters must not be escaped")
	}
}

func TestSerialize_Exact(t *testing.T) {
	f := NewFields()
	f.Set(KeyNBFormat, json.RawMessage("4"))
	f.Set(KeyNBFormatMinor, json.RawMessage("2"))
	f.Set(KeyMetadata, json.RawMessage("{}"))

	c := models.NewEmptyCell("x")
	c.Data.Source = "a\nb"

	out, err := Serialize(f, []models.Cell{c}, "")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := `{
 "nbformat": 4,
 "nbformat_minor": 2,
 "metadata": {},
 "cells": [
  {
   "cell_type": "code",
   "execution_count": null,
   "metadata": {},
   "outputs": [],
   "source": [
    "a\n",
    "b"
   ]
  }
 ]
}
`
	if string(out) != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{`{"metadata":{}}`, `not json`, `{"cells": null}`, `{"cells": 3}`} {
		if _, err := Parse([]byte(in)); !errors.Is(err, apperr.ErrInvalidNotebook) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalidNotebook", in, err)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	nb, err := Parse([]byte("  \n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if nb.Fields != nil || len(nb.Cells) != 0 {
		t.Errorf("expected empty notebook, got %+v", nb)
	}
}

func TestSplitSource(t *testing.T) {
	cases := map[string][]string{
		"":        {},
		"a":       {"a"},
		"a\nb":    {"a\n", "b"},
		"a\nb\n":  {"a\n", "b\n"},
		"\n":      {"\n"},
		"a\n\nb":  {"a\n", "\n", "b"},
	}
	for in, want := range cases {
		if got := SplitSource(in); !slices.Equal(got, want) {
			t.Errorf("SplitSource(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoinSource(t *testing.T) {
	got, err := JoinSource(json.RawMessage(`["a\n","b"]`))
	if err != nil || got != "a\nb" {
		t.Errorf("got %q, %v", got, err)
	}
	got, err = JoinSource(json.RawMessage(`"plain"`))
	if err != nil || got != "plain" {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := JoinSource(json.RawMessage(`3`)); err == nil {
		t.Error("expected error for number source")
	}
}

func TestDetectIndent(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"{\n  \"a\": {\n    \"b\": 1\n  }\n}", "  "},
		{"{\n\t\"a\": 1\n}", "\t"},
		{"{\"a\":1}", ""},
		{"{\n \"a\": [\n  1\n ]\n}", " "},
	}
	for _, tc := range cases {
		if got := DetectIndent([]byte(tc.in)); got != tc.want {
			t.Errorf("DetectIndent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDefaultFieldsAndCodemirrorVersion(t *testing.T) {
	f, err := DefaultFields(0)
	if err != nil {
		t.Fatalf("DefaultFields: %v", err)
	}
	if got := topKeys(t, f); !slices.Equal(got, []string{"nbformat", "nbformat_minor", "metadata"}) {
		t.Errorf("keys = %v", got)
	}
	v, ok := CodemirrorVersion(f)
	if !ok || v != FallbackPythonMajor {
		t.Errorf("codemirror version = %d, %v", v, ok)
	}
	md, _ := f.Get(KeyMetadata)
	if !strings.Contains(string(md), `"pygments_lexer":"ipython3"`) {
		t.Errorf("metadata = %s", md)
	}
}

func TestApplyVersion(t *testing.T) {
	f, _ := DefaultFields(3)
	if err := ApplyVersion(f, "3.11.4", "python3", ""); err != nil {
		t.Fatalf("ApplyVersion: %v", err)
	}
	md, _ := f.Get(KeyMetadata)
	var got struct {
		LanguageInfo struct {
			Version string `json:"version"`
		} `json:"language_info"`
		Kernelspec struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
		} `json:"kernelspec"`
	}
	if err := json.Unmarshal(md, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.LanguageInfo.Version != "3.11.4" {
		t.Errorf("language version = %q", got.LanguageInfo.Version)
	}
	if got.Kernelspec.Name != "python3" || got.Kernelspec.DisplayName != "python3" {
		t.Errorf("kernelspec = %+v", got.Kernelspec)
	}
}
