package queue

import "testing"

func TestRegisterIdempotent(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("a")
	if got := q.GetAll(); len(got) != 1 {
		t.Fatalf("want 1 member, got %v", got)
	}
}

func TestRemoveReturnsNextHead(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("b")
	next, ok := q.Remove("a")
	if !ok || next != "b" {
		t.Fatalf("want next=b ok=true, got next=%v ok=%v", next, ok)
	}
	if _, ok := q.Remove("a"); ok {
		t.Fatalf("removing absent member should not hint a next candidate")
	}
}

func TestRemoveNonHeadReturnsNoHint(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("b")
	if _, ok := q.Remove("b"); ok {
		t.Fatalf("removing a non-head member should not hint a next candidate")
	}
}

func TestPrependRestoresHead(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("b")
	q.Prepend("b")
	if got := q.GetAll(); got[0] != "b" || got[1] != "a" {
		t.Fatalf("want [b a], got %v", got)
	}
}

func TestSwapBoundary(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("b")
	if q.Swap("a", Up, false) {
		t.Fatalf("swapping head upward should refuse")
	}
	if q.Swap("b", Down, false) {
		t.Fatalf("swapping tail downward should refuse")
	}
	if !q.Swap("b", Up, false) {
		t.Fatalf("swapping tail upward should succeed")
	}
	if got := q.GetAll(); got[0] != "b" || got[1] != "a" {
		t.Fatalf("want [b a], got %v", got)
	}
}

func TestMoveToPositionNoOpAtCurrentIndex(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("b")
	q.Register("c")
	if q.MoveToPosition("b", 1, false) {
		t.Fatalf("moving to the current index should be a no-op returning false")
	}
}

func TestMoveToPositionPreservesOthersOrder(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("b")
	q.Register("c")
	q.Register("d")
	if !q.MoveToPosition("d", 1, false) {
		t.Fatalf("want move to succeed")
	}
	if got := q.GetAll(); got[0] != "a" || got[1] != "d" || got[2] != "b" || got[3] != "c" {
		t.Fatalf("want [a d b c], got %v", got)
	}
}

func TestMoveToPositionOutOfRange(t *testing.T) {
	q := New[string]()
	q.Register("a")
	if q.MoveToPosition("a", 5, false) {
		t.Fatalf("out of range move should refuse")
	}
	if q.MoveToPosition("missing", 0, false) {
		t.Fatalf("moving an absent member should refuse")
	}
}

func TestSortByFifoIdempotent(t *testing.T) {
	q := New[string]()
	q.Register("a")
	q.Register("b")
	q.Register("c")
	joinTime := map[string]int64{"a": 3, "b": 1, "c": 2}
	manual := map[string]int{}
	joinTimeOf := func(s string) int64 { return joinTime[s] }
	manualOrderOf := func(s string) (int, bool) { v, ok := manual[s]; return v, ok }

	q.SortByFifo(joinTimeOf, manualOrderOf, nil)
	first := q.GetAll()
	q.SortByFifo(joinTimeOf, manualOrderOf, nil)
	second := q.GetAll()

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sorting twice should be idempotent: %v vs %v", first, second)
		}
	}
	if first[0] != "b" || first[1] != "c" || first[2] != "a" {
		t.Fatalf("want join-time order [b c a], got %v", first)
	}
}

func TestSortByPriorityPinsExcludedHead(t *testing.T) {
	q := New[string]()
	q.Register("speaker")
	q.Register("low")
	q.Register("high")
	priority := map[string]int{"speaker": 0, "low": 0, "high": 3}
	joinTime := map[string]int64{"speaker": 1, "low": 2, "high": 3}
	manual := map[string]int{}
	priorityOf := func(s string) int { return priority[s] }
	joinTimeOf := func(s string) int64 { return joinTime[s] }
	manualOrderOf := func(s string) (int, bool) { v, ok := manual[s]; return v, ok }

	speaker := "speaker"
	q.SortByPriority(priorityOf, joinTimeOf, manualOrderOf, &speaker)

	got := q.GetAll()
	if got[0] != "speaker" || got[1] != "high" || got[2] != "low" {
		t.Fatalf("want [speaker high low], got %v", got)
	}
}

func TestSortModeToggleRestoresManualOrder(t *testing.T) {
	q := New[string]()
	q.Register("alice")
	q.Register("bob")
	q.Register("carol")

	// Simulate two reorder-user ops moving carol to the head.
	q.Swap("carol", Up, false)
	q.Swap("carol", Up, false)
	manualBaseline := map[string]int{}
	for i, v := range q.GetAll() {
		manualBaseline[v] = i
	}
	priority := map[string]int{"alice": 0, "bob": 0, "carol": 0}
	joinTime := map[string]int64{"alice": 1, "bob": 2, "carol": 3}
	priorityOf := func(s string) int { return priority[s] }
	joinTimeOf := func(s string) int64 { return joinTime[s] }
	manualOrderOf := func(s string) (int, bool) { v, ok := manualBaseline[s]; return v, ok }

	q.SortByPriority(priorityOf, joinTimeOf, manualOrderOf, nil)
	afterPriority := q.GetAll()
	q.SortByFifo(joinTimeOf, manualOrderOf, nil)
	afterFifo := q.GetAll()

	want := []string{"carol", "alice", "bob"}
	for i, w := range want {
		if afterPriority[i] != w || afterFifo[i] != w {
			t.Fatalf("want %v after both sorts, got priority=%v fifo=%v", want, afterPriority, afterFifo)
		}
	}
}
