package deployments

import "slices"

// Selection is a set of positions into an option collection. It is not safe for concurrent
// use; Resolver guards it.
type Selection struct {
	idx map[int]struct{}
}

// NewSelection returns a selection containing indices (negatives are ignored).
func NewSelection(indices ...int) *Selection {
	s := &Selection{idx: make(map[int]struct{}, len(indices))}
	for _, i := range indices {
		s.Select(i)
	}
	return s
}

// Has reports whether i is selected.
func (s *Selection) Has(i int) bool {
	_, ok := s.idx[i]
	return ok
}

// Select adds i.
func (s *Selection) Select(i int) {
	if i < 0 {
		return
	}
	s.idx[i] = struct{}{}
}

// Toggle flips i and returns whether it is now selected.
func (s *Selection) Toggle(i int) bool {
	if s.Has(i) {
		delete(s.idx, i)
		return false
	}
	s.Select(i)
	return s.Has(i)
}

// SelectAll replaces the selection with exactly indices.
func (s *Selection) SelectAll(indices []int) {
	s.idx = make(map[int]struct{}, len(indices))
	for _, i := range indices {
		s.Select(i)
	}
}

// AdjustForRemoval drops r and shifts every selected index above r down by one. Indices
// below r are untouched.
func (s *Selection) AdjustForRemoval(r int) {
	next := make(map[int]struct{}, len(s.idx))
	for i := range s.idx {
		switch {
		case i < r:
			next[i] = struct{}{}
		case i > r:
			next[i-1] = struct{}{}
		}
	}
	s.idx = next
}

// Clamp drops indices outside [0, n).
func (s *Selection) Clamp(n int) {
	for i := range s.idx {
		if i >= n {
			delete(s.idx, i)
		}
	}
}

// Len is the number of selected positions.
func (s *Selection) Len() int { return len(s.idx) }

// Indices returns the selected positions in ascending order.
func (s *Selection) Indices() []int {
	out := make([]int, 0, len(s.idx))
	for i := range s.idx {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}
