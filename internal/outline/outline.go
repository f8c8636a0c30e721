// Package outline derives a notebook's title, headings and tags from its
// markdown cells.
package outline

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/nbsync/internal/models"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	tagRe     = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Heading is one markdown heading.
type Heading struct {
	Level  int    `json:"level"`
	Text   string `json:"text"`
	CellID string `json:"cellId"`
}

// Outline summarizes a notebook.
type Outline struct {
	Title       string         `json:"title"`
	Headings    []Heading      `json:"headings"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	CellCount   int            `json:"cellCount"`
	CodeCells   int            `json:"codeCells"`
}

// FromCells builds the outline of cells. A YAML block delimited by "---" at
// the start of the first markdown cell is read as frontmatter.
func FromCells(cells []models.Cell) Outline {
	o := Outline{Headings: []Heading{}, Tags: []string{}, CellCount: len(cells)}

	seenTag := make(map[string]struct{})
	addTag := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seenTag[t]; dup {
			return
		}
		seenTag[t] = struct{}{}
		o.Tags = append(o.Tags, t)
	}

	firstMarkdown := true
	for _, c := range cells {
		switch c.Data.CellType {
		case models.CellTypeCode:
			o.CodeCells++
			continue
		case models.CellTypeMarkdown:
		default:
			continue
		}

		body := c.Data.Source
		if firstMarkdown {
			firstMarkdown = false
			fm, rest := splitFrontmatter(body)
			if fm != nil {
				o.Frontmatter = fm
				body = rest
				for _, t := range frontmatterTags(fm) {
					addTag(t)
				}
			}
		}

		for _, h := range headings(body) {
			h.CellID = c.ID
			o.Headings = append(o.Headings, h)
		}
		for _, m := range tagRe.FindAllStringSubmatch(stripHeadings(body), -1) {
			addTag(m[1])
		}
	}

	o.Title = title(o.Frontmatter, o.Headings)
	return o
}

// CellText is the searchable text of a notebook split by cell kind.
// Markdown also carries raw cells.
type CellText struct {
	Markdown string
	Code     string
}

// Text joins the non-blank cell sources of each kind, for full-text indexing.
func Text(cells []models.Cell) CellText {
	var prose, code []string
	for _, c := range cells {
		s := strings.TrimSpace(c.Data.Source)
		if s == "" {
			continue
		}
		if c.Data.CellType == models.CellTypeCode {
			code = append(code, s)
		} else {
			prose = append(prose, s)
		}
	}
	return CellText{Markdown: strings.Join(prose, "\n\n"), Code: strings.Join(code, "\n\n")}
}

// splitFrontmatter separates a leading YAML block from the rest of src.
// Invalid YAML is treated as ordinary text.
func splitFrontmatter(src string) (map[string]any, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(src, "\n\r")
	if !strings.HasPrefix(trimmed, delim) {
		return nil, src
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, src
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil || fm == nil {
		return nil, src
	}
	body := strings.TrimLeft(rest[idx+1+len(delim):], "\n\r")
	return fm, body
}

func frontmatterTags(fm map[string]any) []string {
	switch v := fm["tags"].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return nil
}

// headings returns ATX headings outside fenced code blocks.
func headings(body string) []Heading {
	var out []Heading
	fenced := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			continue
		}
		if fenced {
			continue
		}
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			out = append(out, Heading{Level: len(m[1]), Text: m[2]})
		}
	}
	return out
}

func stripHeadings(body string) string {
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !headingRe.MatchString(strings.TrimSpace(l)) {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// title prefers the frontmatter title, then the first level-one heading,
// then the first heading of any level.
func title(fm map[string]any, hs []Heading) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, h := range hs {
		if h.Level == 1 {
			return h.Text
		}
	}
	if len(hs) > 0 {
		return hs[0].Text
	}
	return ""
}
