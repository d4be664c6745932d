package zbc

import "testing"

func TestZoneListPushAndRemove(t *testing.T) {
	store := &ZoneStore{Zones: make([]Zone, 4)}
	list := emptyZoneList()

	store.PushTail(&list, 0)
	store.PushTail(&list, 1)
	store.PushHead(&list, 2)

	if list.Size != 3 {
		t.Fatalf("expected size 3, got %d", list.Size)
	}
	if list.Head != 2 {
		t.Fatalf("expected head 2, got %d", list.Head)
	}
	if list.Tail != 1 {
		t.Fatalf("expected tail 1, got %d", list.Tail)
	}

	store.Remove(&list, 0)
	if list.Size != 2 {
		t.Fatalf("expected size 2 after remove, got %d", list.Size)
	}
	if !store.NotInList(0) {
		t.Fatal("expected zone 0 to no longer be in any list")
	}

	// Walk the remaining list front to back.
	var order []uint32
	for idx := store.First(&list); idx != NilIndex; idx = store.Next(idx) {
		order = append(order, idx)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected list order: %v", order)
	}
}

func TestDeferredSenseFIFOEvictsOldest(t *testing.T) {
	var ds deferredSense
	for i := 0; i < deferredSenseDepth+1; i++ {
		ds.push(&SenseError{Key: byte(i), ASC: uint16(i)})
	}
	first := ds.pop()
	if first == nil || first.Key != 1 {
		t.Fatalf("expected the oldest surviving entry to have Key 1, got %+v", first)
	}
}
