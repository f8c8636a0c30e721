package change

import (
	"slices"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ContentChange replaces RangeLength runes starting at RangeOffset with Text.
// Offsets count Unicode code points of the cell source.
type ContentChange struct {
	RangeOffset int    `json:"rangeOffset"`
	RangeLength int    `json:"rangeLength"`
	Text        string `json:"text"`
}

// Validate rejects negative ranges.
func (c ContentChange) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RangeOffset, validation.Min(0)),
		validation.Field(&c.RangeLength, validation.Min(0)),
	)
}

func (c ContentChange) normalized() ContentChange {
	c.Text = strings.ReplaceAll(c.Text, "\r", "")
	return c
}

// ApplyText applies changes to source in order. Ranges are clamped to the text.
func ApplyText(source string, changes []ContentChange) string {
	for _, c := range changes {
		source = applyOne(source, c)
	}
	return source
}

func applyOne(source string, c ContentChange) string {
	r := []rune(source)
	start, end := clampRange(len(r), c)
	return string(r[:start]) + c.Text + string(r[end:])
}

// reverseOf computes the changes that undo forward when applied, in order,
// to the text forward produced.
func reverseOf(source string, forward []ContentChange) []ContentChange {
	rev := make([]ContentChange, 0, len(forward))
	cur := source
	for _, c := range forward {
		r := []rune(cur)
		start, end := clampRange(len(r), c)
		rev = append(rev, ContentChange{
			RangeOffset: start,
			RangeLength: utf8.RuneCountInString(c.Text),
			Text:        string(r[start:end]),
		})
		cur = applyOne(cur, c)
	}
	slices.Reverse(rev)
	return rev
}

func clampRange(n int, c ContentChange) (int, int) {
	start := min(max(c.RangeOffset, 0), n)
	end := min(start+max(c.RangeLength, 0), n)
	return start, end
}
