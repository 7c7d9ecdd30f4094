package models

import (
	"reflect"
	"testing"
)

// checkDisjoint asserts the structural invariant: every index lives in
// exactly one list.
func checkDisjoint(t *testing.T, c *ConfirmationSet) {
	t.Helper()
	seen := map[int]string{}
	for _, idx := range c.Confirmed {
		seen[idx] = "confirmed"
	}
	for _, idx := range c.Pending {
		if where, ok := seen[idx]; ok {
			t.Fatalf("index %d in both %s and pending", idx, where)
		}
		seen[idx] = "pending"
	}
	for _, idx := range c.Regenerating {
		if where, ok := seen[idx]; ok {
			t.Fatalf("index %d in both %s and regenerating", idx, where)
		}
	}
}

func TestNewConfirmationSetAllPending(t *testing.T) {
	c := NewConfirmationSet([]int{3, 1, 2})

	if !reflect.DeepEqual(c.Pending, []int{1, 2, 3}) {
		t.Errorf("pending = %v, want [1 2 3]", c.Pending)
	}
	if len(c.Confirmed) != 0 || len(c.Regenerating) != 0 {
		t.Errorf("new set must start with nothing confirmed or regenerating")
	}
	if c.AllConfirmed() {
		t.Error("AllConfirmed() = true with pending indices")
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	c := NewConfirmationSet([]int{1, 2})

	if !c.Confirm(1) {
		t.Fatal("Confirm(1) = false")
	}
	if !c.Confirm(1) {
		t.Error("re-confirming a confirmed index must succeed as a no-op")
	}
	if got := len(c.Confirmed); got != 1 {
		t.Errorf("confirmed has %d entries after double confirm, want 1", got)
	}
	checkDisjoint(t, c)
}

func TestConfirmUnknownIndex(t *testing.T) {
	c := NewConfirmationSet([]int{1, 2})
	if c.Confirm(9) {
		t.Error("Confirm(9) = true for untracked index")
	}
}

func TestConfirmWhileRegenerating(t *testing.T) {
	c := NewConfirmationSet([]int{1})
	c.BeginRegenerate(1)
	if c.Confirm(1) {
		t.Error("a regenerating index must not be confirmable")
	}
	checkDisjoint(t, c)
}

func TestConfirmAllLeavesRegenerating(t *testing.T) {
	c := NewConfirmationSet([]int{1, 2, 3})
	c.BeginRegenerate(2)
	c.ConfirmAll()

	if !reflect.DeepEqual(c.Confirmed, []int{1, 3}) {
		t.Errorf("confirmed = %v, want [1 3]", c.Confirmed)
	}
	if !reflect.DeepEqual(c.Regenerating, []int{2}) {
		t.Errorf("regenerating = %v, want [2]", c.Regenerating)
	}
	if c.AllConfirmed() {
		t.Error("AllConfirmed() = true while an index is regenerating")
	}
	checkDisjoint(t, c)
}

func TestRegenerateConfirmedIndex(t *testing.T) {
	c := NewConfirmationSet([]int{1, 2})
	c.Confirm(1)

	if !c.BeginRegenerate(1) {
		t.Fatal("BeginRegenerate(1) = false for a confirmed index")
	}
	if contains(c.Confirmed, 1) {
		t.Error("regenerating index still listed as confirmed")
	}
	checkDisjoint(t, c)

	// Success returns it to pending, never straight to confirmed.
	if !c.FinishRegenerate(1, true) {
		t.Fatal("FinishRegenerate(1, true) = false")
	}
	if contains(c.Confirmed, 1) {
		t.Error("regenerated artifact was auto-confirmed")
	}
	if !contains(c.Pending, 1) {
		t.Error("successful regeneration must land in pending")
	}
	checkDisjoint(t, c)
}

func TestFailedRegenerationLeavesGate(t *testing.T) {
	c := NewConfirmationSet([]int{1, 2})
	c.BeginRegenerate(2)

	if !c.FinishRegenerate(2, false) {
		t.Fatal("FinishRegenerate(2, false) = false")
	}
	if c.Has(2) {
		t.Error("failed regeneration must drop the index from every list")
	}

	// The gate can still fully confirm without the dropped index.
	c.Confirm(1)
	if !c.AllConfirmed() {
		t.Error("AllConfirmed() = false after the only remaining index was confirmed")
	}
}

func TestFinishRegenerateRequiresBegin(t *testing.T) {
	c := NewConfirmationSet([]int{1})
	if c.FinishRegenerate(1, true) {
		t.Error("FinishRegenerate without BeginRegenerate must fail")
	}
}

func TestAllConfirmedNilSet(t *testing.T) {
	var c *ConfirmationSet
	if c.AllConfirmed() {
		t.Error("nil set reports AllConfirmed")
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := NewConfirmationSet([]int{1, 2, 3})
	cp := c.Clone()
	cp.Confirm(1)

	if contains(c.Confirmed, 1) {
		t.Error("mutating the clone leaked into the original")
	}
}
