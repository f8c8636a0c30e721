package document

import "github.com/starford/nbsync/internal/change"

const seenLimit = 1024

// dedupe drops redelivered changes. User change ids never repeat, so they
// are remembered in a bounded set. Undo and redo legitimately replay the
// same id, so for them only an immediate repeat counts as a duplicate.
type dedupe struct {
	seen  map[string]struct{}
	order []string
	last  string
}

func newDedupe() *dedupe {
	return &dedupe{seen: make(map[string]struct{})}
}

// admit reports whether c should be applied and records it.
func (d *dedupe) admit(c change.Change) bool {
	key := string(c.Source) + "/" + c.ID
	if key == d.last {
		return false
	}
	if c.Source == change.SourceUser {
		if _, dup := d.seen[c.ID]; dup {
			return false
		}
		d.seen[c.ID] = struct{}{}
		d.order = append(d.order, c.ID)
		if len(d.order) > seenLimit {
			delete(d.seen, d.order[0])
			d.order = d.order[1:]
		}
	}
	d.last = key
	return true
}

func (d *dedupe) reset() {
	clear(d.seen)
	d.order = d.order[:0]
	d.last = ""
}
