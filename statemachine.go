package zbc

// This file implements the zone-condition state machine: OPEN, CLOSE,
// FINISH, RESET WRITE POINTER and SEQUENTIALIZE ZONE, in both their
// single-zone and multi-zone (ALL bit / count) forms. Grounded on
// zbc_open_zone/zbc_close_zone/zbc_finish_zone/zbc_reset_wp/
// zbc_sequentialize_zone and zbc_adjust_write_ptr in
// original_source/file_dhsmr.c.

// rangeOp applies a single-zone operation across a run of zones
// starting at idx. The operation is non-transactional: zones are
// processed in order, and if one fails partway through, processing
// stops there — the zones already processed keep their new state, the
// rest are left untouched, and the first error is returned.
func (d *Device) rangeOp(startIdx uint32, count uint32, op func(idx uint32) error) error {
	idx := startIdx
	for i := uint32(0); i < count; i++ {
		if int(idx) >= len(d.Zones.Zones) {
			return ErrLBAOutOfRange()
		}
		if err := op(idx); err != nil {
			return err
		}
		idx++
	}
	return nil
}

// allOp applies op to every zone whose condition matches the
// operation's ALL-bit semantics (see each caller), ignoring per-zone
// errors, since ALL-bit variants are defined to be best-effort: a zone
// that cannot make the transition is simply skipped.
func (d *Device) allOp(pred func(z *Zone) bool, op func(idx uint32) error) {
	for idx := range d.Zones.Zones {
		if pred(&d.Zones.Zones[idx]) {
			_ = op(uint32(idx))
		}
	}
}

// OpenZone processes OPEN ZONE for a single zone, transitioning Empty,
// Closed, or ImpOpen to ExpOpen. If the open-zone budget is exhausted,
// the oldest implicit-open zone is closed first to make room; with no
// implicit-open zone to close, the call fails with INSUFFICIENT ZONE
// RESOURCES.
func (d *Device) OpenZone(idx uint32) error {
	z := &d.Zones.Zones[idx]
	if z.Cond == ZoneCondExpOpen {
		return nil
	}
	if !openable(z.Cond) {
		return errForBadCondition(z.Cond)
	}
	if err := d.ensureOpenBudget(); err != nil {
		return err
	}
	d.UnlinkByCondition(idx)
	z.Cond = ZoneCondExpOpen
	if z.WP == NoWP {
		d.setInitialWP(idx)
	}
	d.Zones.PushTail(&d.Meta.ExpOpenList, idx)
	return nil
}

// CloseZone processes CLOSE ZONE for a single zone, transitioning
// ImpOpen or ExpOpen to Closed. Empty/Closed zones are a no-op success.
func (d *Device) CloseZone(idx uint32) error {
	z := &d.Zones.Zones[idx]
	switch z.Cond {
	case ZoneCondClosed, ZoneCondEmpty:
		return nil
	case ZoneCondImpOpen, ZoneCondExpOpen:
		d.UnlinkByCondition(idx)
		z.Cond = ZoneCondClosed
		d.Zones.PushTail(&d.Meta.ClosedList, idx)
		return nil
	default:
		return errForBadCondition(z.Cond)
	}
}

// FinishZone processes FINISH ZONE for a single zone: any writable
// condition (Empty, ImpOpen, ExpOpen, Closed) transitions to Full with
// the write pointer driven to the end of the zone. Full is a no-op
// success.
func (d *Device) FinishZone(idx uint32) error {
	z := &d.Zones.Zones[idx]
	switch z.Cond {
	case ZoneCondFull:
		return nil
	case ZoneCondEmpty, ZoneCondImpOpen, ZoneCondExpOpen, ZoneCondClosed:
		d.UnlinkByCondition(idx)
		z.Cond = ZoneCondFull
		if z.Type.IsSeq() || z.Type.IsSobr() {
			z.WP = NoWP
		} else {
			z.WP = z.Start + z.Len
		}
		list := d.listForCond(z.Cond, z.Type)
		if list != nil {
			d.Zones.PushTail(list, idx)
		}
		return nil
	default:
		return errForBadCondition(z.Cond)
	}
}

// ResetWP processes RESET WRITE POINTER for a single zone: any
// writable-or-full condition returns to Empty with the write pointer
// reset to the zone start. Empty is a no-op success. Conventional
// zones cannot be reset.
func (d *Device) ResetWP(idx uint32) error {
	z := &d.Zones.Zones[idx]
	if z.Type.IsConv() {
		return ErrInvalidFieldInCDB()
	}
	switch z.Cond {
	case ZoneCondEmpty:
		return nil
	case ZoneCondImpOpen, ZoneCondExpOpen, ZoneCondClosed, ZoneCondFull:
		d.UnlinkByCondition(idx)
		z.Cond = ZoneCondEmpty
		z.WP = z.Start
		z.Reset = true
		list := d.listForCond(z.Cond, z.Type)
		if list != nil {
			d.Zones.PushTail(list, idx)
		}
		d.Meta.NrEmptyZones++
		return nil
	default:
		return errForBadCondition(z.Cond)
	}
}

// SequentializeZone processes SEQUENTIALIZE ZONE, defined only for
// SeqWritePreferred zones: it clears the zone's NonSeq flag, leaving
// its condition and write pointer unchanged. Any other zone type is
// rejected as an invalid CDB field; a zone that is already sequential
// is a no-op success.
func (d *Device) SequentializeZone(idx uint32) error {
	z := &d.Zones.Zones[idx]
	if !z.Type.IsSeqPref() {
		return ErrInvalidFieldInCDB()
	}
	if !z.NonSeq {
		return nil
	}
	z.NonSeq = false
	return nil
}

func openable(c ZoneCond) bool {
	return c == ZoneCondEmpty || c == ZoneCondClosed || c == ZoneCondImpOpen
}

func errForBadCondition(c ZoneCond) *SenseError {
	switch c {
	case ZoneCondInactive:
		return ErrZoneIsInactive()
	case ZoneCondReadOnly:
		return ErrZoneIsReadOnly()
	case ZoneCondOffline:
		return ErrZoneIsOffline()
	default:
		return ErrInvalidFieldInCDB()
	}
}

// ensureOpenBudget makes room for one more explicitly-open zone,
// closing the oldest implicit-open zone if the device is already at
// its max-open-zones limit and no room exists otherwise. Grounded on
// the original's implicit-open eviction in zbc_open_zone.
func (d *Device) ensureOpenBudget() error {
	total := d.Meta.ImpOpenList.Size + d.Meta.ExpOpenList.Size
	if total < d.Meta.MaxOpenZones {
		return nil
	}
	if d.Meta.ImpOpenList.Size == 0 {
		return ErrInsufficientZoneResources()
	}
	oldest := d.Meta.ImpOpenList.Head
	return d.CloseZone(oldest)
}

// setInitialWP assigns the write pointer for a zone transitioning out
// of Empty for the first time under this open, when its WP is still
// the NoWP sentinel (formatted but never opened). Grounded on
// zbc_set_initial_wp.
func (d *Device) setInitialWP(idx uint32) {
	z := &d.Zones.Zones[idx]
	setInitialWP(d, z)
}

// setInitialWP is the free-function form used at format time, before a
// Device's zone array is wired up as receiver methods can rely on.
func setInitialWP(d *Device, z *Zone) {
	switch z.Cond {
	case ZoneCondEmpty:
		z.WP = z.Start
	case ZoneCondFull:
		z.WP = NoWP
	case ZoneCondNotWp:
		z.WP = NoWP
	default:
		z.WP = z.Start
	}
}

// implicitOpen transitions an Empty or Closed zone to ImpOpen as a side
// effect of a write landing on it. Distinct from OpenZone (which
// always produces ExpOpen).
func (d *Device) implicitOpen(idx uint32) error {
	z := &d.Zones.Zones[idx]
	if z.Cond == ZoneCondImpOpen || z.Cond == ZoneCondExpOpen {
		return nil
	}
	if z.Cond != ZoneCondEmpty && z.Cond != ZoneCondClosed {
		return errForBadCondition(z.Cond)
	}
	if err := d.ensureOpenBudget(); err != nil {
		return err
	}
	d.UnlinkByCondition(idx)
	z.Cond = ZoneCondImpOpen
	if z.WP == NoWP {
		setInitialWP(d, z)
	}
	d.Zones.PushTail(&d.Meta.ImpOpenList, idx)
	return nil
}

// advanceWP moves a zone's write pointer forward after a write of
// count LBAs landing at lba, closing the zone to Full if the pointer
// reaches its end. SeqWriteRequired zones only ever get written
// exactly at the current pointer, so it always advances by count;
// SOBR and SeqWritePreferred zones may be written anywhere up to the
// pointer, so the pointer only moves if this write's end extends past
// it. Grounded on zbc_adjust_write_ptr.
func (d *Device) advanceWP(idx uint32, lba uint64, count uint64) {
	z := &d.Zones.Zones[idx]
	switch {
	case z.Type.IsConv():
		return
	case z.Type == ZoneTypeSeqWriteRequired:
		z.WP += count
	case z.Type.IsSeqPref() || z.Type.IsSobr():
		if lba+count > z.WP {
			z.WP = lba + count
		}
	}
	if z.WP >= z.Start+z.Len {
		d.UnlinkByCondition(idx)
		z.Cond = ZoneCondFull
		z.WP = NoWP
		if list := d.listForCond(z.Cond, z.Type); list != nil {
			d.Zones.PushTail(list, idx)
		}
	}
}
