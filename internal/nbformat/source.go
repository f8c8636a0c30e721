package nbformat

import (
	"encoding/json"
	"strings"
)

// SplitSource turns joined cell text into the line-array form used on disk.
// Every line but the last keeps its trailing newline and empty pieces are
// dropped, so "a\nb" becomes ["a\n", "b"] and "" becomes [].
func SplitSource(s string) []string {
	parts := strings.Split(s, "\n")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += "\n"
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinSource accepts a source value that is either a string or an array of
// strings and returns the joined text.
func JoinSource(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, ""), nil
}
