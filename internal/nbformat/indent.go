package nbformat

import (
	"bufio"
	"bytes"
	"strings"
)

// DefaultIndent is used when nothing can be detected from the content.
const DefaultIndent = " "

type indentKey struct {
	tab   bool
	width int
}

// DetectIndent returns the indentation unit used by data: the most frequent
// difference in leading whitespace between consecutive indented lines.
// Ties go to the unit seen first. Returns "" when no line is indented.
func DetectIndent(data []byte) string {
	counts := make(map[indentKey]int)
	var order []indentKey

	prev := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, " \t")
		lead := line[:len(line)-len(trimmed)]
		if lead == "" {
			prev = 0
			continue
		}
		tab := lead[0] == '\t'
		width := len(lead)
		delta := width - prev
		if delta < 0 {
			delta = -delta
		}
		prev = width
		if delta == 0 {
			continue
		}
		k := indentKey{tab: tab, width: delta}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}

	var best indentKey
	bestCount := 0
	for _, k := range order {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	if bestCount == 0 {
		return ""
	}
	if best.tab {
		return strings.Repeat("\t", best.width)
	}
	return strings.Repeat(" ", best.width)
}
