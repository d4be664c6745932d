package zbc

import (
	"math"

	"github.com/prometheus/common/log"
)

// NilIndex is the "no neighbor" sentinel for zone-list links, distinct
// from the "zone is not currently a member of any list" sentinel
// (Prev == 0 && Next == 0). Zone lists are intrusive doubly-linked
// lists threaded through the zone array by index, not pointer. Both
// conventions are preserved byte-for-byte from
// original_source/file_dhsmr.c so the persisted metadata layout
// matches a hand-computed dump.
const NilIndex uint32 = math.MaxUint32

// NoWP marks a zone with no meaningful write pointer (Inactive,
// ReadOnly, Offline, NotWp, or a Full SOBR zone). Never compare it
// with ordinary arithmetic; always check equality first.
const NoWP uint64 = math.MaxUint64

// Zone is a single fixed-size zone record, array-indexed within a
// Device's zone table. Grounded on struct zbc_zone in
// original_source/file_dhsmr.c.
type Zone struct {
	Start uint64
	Len   uint64
	WP    uint64

	Type ZoneType
	Cond ZoneCond

	NonSeq bool
	Reset  bool

	// Prev/Next are indices into the owning Device's Zones slice.
	// (Prev, Next) == (0, 0) means "not in any list"; NilIndex means
	// "no neighbor in this direction" for a zone that IS in a list.
	Prev uint32
	Next uint32
}

func (z *Zone) notInAnyList() bool { return z.Prev == 0 && z.Next == 0 }

// ZoneList is one of the four global zone lists: implicit-open,
// explicit-open, closed, and seq-active (empty/full sequential or
// SOBR zones). Empty iff Head == Tail == NilIndex && Size == 0.
type ZoneList struct {
	Head uint32
	Tail uint32
	Size uint32
}

func emptyZoneList() ZoneList {
	return ZoneList{Head: NilIndex, Tail: NilIndex, Size: 0}
}

// ZoneStore owns the zone array and provides the list primitives.
// List operations are methods on the store, not on Zone in isolation,
// since mutating a Zone's link fields without also updating its
// neighbors' links (and the list's head/tail/size) corrupts the list.
type ZoneStore struct {
	Zones []Zone
}

func (s *ZoneStore) at(idx uint32) *Zone { return &s.Zones[idx] }

// First returns the index of the first zone in list, or NilIndex if
// the list is empty.
func (s *ZoneStore) First(list *ZoneList) uint32 {
	return list.Head
}

// Next returns the index following idx within list, or NilIndex at
// the end.
func (s *ZoneStore) Next(idx uint32) uint32 {
	return s.at(idx).Next
}

// PushHead links zone idx at the head of list.
func (s *ZoneStore) PushHead(list *ZoneList, idx uint32) {
	z := s.at(idx)
	z.Prev = NilIndex
	z.Next = list.Head
	if list.Head != NilIndex {
		s.at(list.Head).Prev = idx
	} else {
		list.Tail = idx
	}
	list.Head = idx
	list.Size++
}

// PushTail links zone idx at the tail of list.
func (s *ZoneStore) PushTail(list *ZoneList, idx uint32) {
	z := s.at(idx)
	z.Next = NilIndex
	z.Prev = list.Tail
	if list.Tail != NilIndex {
		s.at(list.Tail).Next = idx
	} else {
		list.Head = idx
	}
	list.Tail = idx
	list.Size++
}

// Remove unlinks zone idx from list and marks it not-in-any-list.
func (s *ZoneStore) Remove(list *ZoneList, idx uint32) {
	z := s.at(idx)
	prev, next := z.Prev, z.Next

	if prev != NilIndex {
		s.at(prev).Next = next
	} else {
		list.Head = next
	}
	if next != NilIndex {
		s.at(next).Prev = prev
	} else {
		list.Tail = prev
	}
	list.Size--
	z.Prev, z.Next = 0, 0
}

// NotInList reports whether zone idx is not currently a member of any
// list, using the (0, 0) sentinel convention.
func (s *ZoneStore) NotInList(idx uint32) bool {
	return s.at(idx).notInAnyList()
}

// listForCond returns the pointer to the global list a zone of
// condition c belongs in, or nil if that condition has no associated
// list (NotWp, Inactive, ReadOnly, Offline are not tracked in any of
// the four lists).
func (d *Device) listForCond(c ZoneCond, zoneType ZoneType) *ZoneList {
	switch c {
	case ZoneCondImpOpen:
		return &d.Meta.ImpOpenList
	case ZoneCondExpOpen:
		return &d.Meta.ExpOpenList
	case ZoneCondClosed:
		return &d.Meta.ClosedList
	case ZoneCondEmpty, ZoneCondFull:
		if zoneType.IsSeq() || zoneType.IsSobr() {
			return &d.Meta.SeqActiveList
		}
		return nil
	default:
		return nil
	}
}

// UnlinkByCondition removes zone idx from whichever list its current
// condition implies it is in. Grounded on zbc_unlink_zone: calling
// this on a zone whose condition is one of {NotWp, Inactive, ReadOnly,
// Offline} is a logged programmer error, since those conditions never
// have list membership.
func (d *Device) UnlinkByCondition(idx uint32) {
	z := &d.Zones.Zones[idx]
	switch z.Cond {
	case ZoneCondNotWp, ZoneCondInactive, ZoneCondReadOnly, ZoneCondOffline:
		log.Errorf("zbc: unlink_by_condition called on zone %d with terminal condition %v", idx, z.Cond)
		return
	}
	list := d.listForCond(z.Cond, z.Type)
	if list == nil {
		return
	}
	if d.Zones.NotInList(idx) {
		return
	}
	d.Zones.Remove(list, idx)
}
