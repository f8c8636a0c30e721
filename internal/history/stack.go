// Package history implements bounded linear undo/redo over any snapshot type.
package history

import "github.com/starford/nbsync/internal/change"

// DefaultLimit is the stack capacity used when none is configured.
const DefaultLimit = 100

// Entry is one recorded change together with the state it was applied to.
type Entry[S any] struct {
	Change   change.Change
	Snapshot S
	Dirty    bool
}

// Stack is a bounded LIFO. Pushing onto a full stack drops the oldest entry.
type Stack[S any] struct {
	items []Entry[S]
	limit int
}

// NewStack returns a stack holding at most limit entries.
func NewStack[S any](limit int) *Stack[S] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Stack[S]{limit: limit}
}

func (s *Stack[S]) Push(e Entry[S]) {
	if len(s.items) == s.limit {
		copy(s.items, s.items[1:])
		s.items = s.items[:len(s.items)-1]
	}
	s.items = append(s.items, e)
}

func (s *Stack[S]) Pop() (Entry[S], bool) {
	e, ok := s.Peek()
	if ok {
		s.items[len(s.items)-1] = Entry[S]{}
		s.items = s.items[:len(s.items)-1]
	}
	return e, ok
}

func (s *Stack[S]) Peek() (Entry[S], bool) {
	if len(s.items) == 0 {
		return Entry[S]{}, false
	}
	return s.items[len(s.items)-1], true
}

func (s *Stack[S]) Len() int { return len(s.items) }

func (s *Stack[S]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}
