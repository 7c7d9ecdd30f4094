package models

import "sort"

// ConfirmationSet tracks human approval of generated artifacts for one gate.
// Every tracked index lives in exactly one of the three lists at any time;
// their union is the full set of successfully generated indices for the gate.
type ConfirmationSet struct {
	Confirmed    []int `json:"confirmed"`
	Pending      []int `json:"pending"`
	Regenerating []int `json:"regenerating"`
}

// NewConfirmationSet seeds a gate with every generated index pending.
func NewConfirmationSet(indices []int) *ConfirmationSet {
	pending := make([]int, len(indices))
	copy(pending, indices)
	sort.Ints(pending)
	return &ConfirmationSet{
		Confirmed:    []int{},
		Pending:      pending,
		Regenerating: []int{},
	}
}

// Clone returns a deep copy. Reducer code mutates only clones so a failed
// transition never leaves a half-applied set behind.
func (c *ConfirmationSet) Clone() *ConfirmationSet {
	if c == nil {
		return nil
	}
	cp := &ConfirmationSet{
		Confirmed:    append([]int{}, c.Confirmed...),
		Pending:      append([]int{}, c.Pending...),
		Regenerating: append([]int{}, c.Regenerating...),
	}
	return cp
}

// Has reports whether index is tracked by the gate at all.
func (c *ConfirmationSet) Has(index int) bool {
	return contains(c.Confirmed, index) || contains(c.Pending, index) || contains(c.Regenerating, index)
}

// AllConfirmed is the gate predicate: nothing pending, nothing regenerating.
func (c *ConfirmationSet) AllConfirmed() bool {
	if c == nil {
		return false
	}
	return len(c.Pending) == 0 && len(c.Regenerating) == 0
}

// Confirm moves index from pending to confirmed. Confirming an already
// confirmed index is a no-op. Returns false if the index is unknown or
// currently regenerating.
func (c *ConfirmationSet) Confirm(index int) bool {
	if contains(c.Confirmed, index) {
		return true // idempotent
	}
	if !contains(c.Pending, index) {
		return false
	}
	c.Pending = remove(c.Pending, index)
	c.Confirmed = insert(c.Confirmed, index)
	return true
}

// ConfirmAll moves every pending index to confirmed. Regenerating indices
// stay where they are — they must finish and be re-confirmed individually.
func (c *ConfirmationSet) ConfirmAll() {
	for _, idx := range c.Pending {
		c.Confirmed = insert(c.Confirmed, idx)
	}
	c.Pending = []int{}
}

// BeginRegenerate moves index into regenerating, removing it from confirmed
// or pending. Returns false for an unknown index.
func (c *ConfirmationSet) BeginRegenerate(index int) bool {
	if contains(c.Regenerating, index) {
		return true
	}
	if !c.Has(index) {
		return false
	}
	c.Confirmed = remove(c.Confirmed, index)
	c.Pending = remove(c.Pending, index)
	c.Regenerating = insert(c.Regenerating, index)
	return true
}

// FinishRegenerate resolves a regeneration. On success the index returns to
// pending — a regenerated artifact is never auto-confirmed. On failure the
// index leaves regenerating without entering any other list; the caller must
// retry or leave it unconfirmed.
func (c *ConfirmationSet) FinishRegenerate(index int, success bool) bool {
	if !contains(c.Regenerating, index) {
		return false
	}
	c.Regenerating = remove(c.Regenerating, index)
	if success {
		c.Pending = insert(c.Pending, index)
	}
	return true
}

// Indices returns the sorted union of all three lists.
func (c *ConfirmationSet) Indices() []int {
	all := make([]int, 0, len(c.Confirmed)+len(c.Pending)+len(c.Regenerating))
	all = append(all, c.Confirmed...)
	all = append(all, c.Pending...)
	all = append(all, c.Regenerating...)
	sort.Ints(all)
	return all
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func remove(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func insert(s []int, v int) []int {
	if contains(s, v) {
		return s
	}
	s = append(s, v)
	sort.Ints(s)
	return s
}
