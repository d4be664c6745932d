package zbc

import "fmt"

// This file implements the read/write data path: per-zone-crossing
// validation ahead of a multi-zone transfer, and the write-pointer
// advance on a successful write. Grounded on zbc_zone_ok_to_read,
// zbc_zone_ok_to_write and zbc_rdwr_check_zones in
// original_source/file_dhsmr.c; the buffer/offset arithmetic follows
// a plain block device's read/write emulation, generalized from a
// single flat LBA space to per-zone dispatch.

// checkZoneOkToRead validates that lba (within zone z, remaining LBAs
// left in the whole transfer, firstType the type of the transfer's
// first zone) may be read: gap and offline zones never readable,
// inactive zones never readable, a transfer may not cross into a zone
// of a different type, and (unless URSWRZ is set) reads above the
// write pointer of a sequential zone fail.
func (d *Device) checkZoneOkToRead(z *Zone, lba uint64, remaining uint64, firstType ZoneType) error {
	switch z.Cond {
	case ZoneCondOffline:
		return ErrZoneIsOffline()
	case ZoneCondInactive:
		return ErrZoneIsInactive()
	}
	if z.Type.IsGap() {
		return ErrAttemptToAccessGapZone()
	}
	if z.Type != firstType {
		return ErrReadBoundaryViolation()
	}
	if (z.Type.IsSeq() || z.Type.IsSobr()) && !d.Meta.URSWRZ {
		end := lba + remaining
		if zoneEnd := z.Start + z.Len; end > zoneEnd {
			end = zoneEnd
		}
		if z.WP != NoWP && end > z.WP {
			return ErrAttemptToReadInvalidData()
		}
	}
	return nil
}

// checkZoneOkToWrite validates that lba (within zone z, remaining LBAs
// left in the whole transfer, firstType the type of the transfer's
// first zone) may be written: offline/inactive/read-only zones reject
// all writes, a full sequential zone rejects any write, and a
// transfer may not cross into a zone of a different type. Write
// ordering then differs by type: SeqWriteRequired must land exactly
// at the write pointer and may never extend past its own zone;
// SeqOrBeforeRequired (SOBR) may land anywhere at or before the write
// pointer, only writes past it are unaligned; SeqWritePreferred has no
// ordering restriction at all. Conventional zones have none of these
// restrictions and may freely cross into a further Conventional zone.
func (d *Device) checkZoneOkToWrite(z *Zone, lba uint64, remaining uint64, firstType ZoneType) error {
	switch z.Cond {
	case ZoneCondOffline:
		return ErrZoneIsOffline()
	case ZoneCondInactive:
		return ErrZoneIsInactive()
	case ZoneCondReadOnly:
		return ErrZoneIsReadOnly()
	}
	if z.Type.IsGap() {
		return ErrAttemptToAccessGapZone()
	}
	if z.Cond == ZoneCondFull && !z.Type.IsConv() {
		return ErrInvalidFieldInCDB()
	}
	if z.Type != firstType {
		return ErrWriteBoundaryViolation()
	}
	if z.Type == ZoneTypeSeqWriteRequired && lba+remaining > z.Start+z.Len {
		return ErrWriteBoundaryViolation()
	}
	switch {
	case z.Type.IsConv():
		return nil
	case z.Type == ZoneTypeSeqWriteRequired:
		if z.WP != NoWP && lba != z.WP {
			return ErrUnalignedWriteCommand()
		}
	case z.Type.IsSobr():
		if z.WP != NoWP && lba > z.WP {
			return ErrUnalignedWriteCommand()
		}
	case z.Type.IsSeqPref():
		// No write-pointer ordering restriction.
	}
	return nil
}

// checkRdwrRange walks every zone a [lba, lba+nrLBAs) transfer
// crosses, in zone order, validating each with checkFn against the
// type of the first zone the transfer touches. A transfer may
// legitimately span more than one zone of that same type (e.g. two
// adjacent Conventional or SeqWritePreferred zones); checkFn is
// responsible for rejecting a crossing into a zone of a different
// type. Grounded on zbc_rdwr_check_zones's do/while zone walk.
func (d *Device) checkRdwrRange(lba uint64, nrLBAs uint64, checkFn func(z *Zone, lba uint64, remaining uint64, firstType ZoneType) error) error {
	if nrLBAs == 0 {
		return nil
	}
	var firstType ZoneType
	cur, remaining := lba, nrLBAs
	for remaining > 0 {
		_, zone, err := d.ZoneAt(cur)
		if err != nil {
			return ErrLBAOutOfRange()
		}
		if firstType == 0 {
			firstType = zone.Type
		}
		if err := checkFn(zone, cur, remaining, firstType); err != nil {
			return err
		}
		count := zone.Start + zone.Len - cur
		if count > remaining {
			count = remaining
		}
		cur += count
		remaining -= count
	}
	return nil
}

// ReadLBAs validates and performs a read of nrLBAs starting at lba into
// buf (len(buf) must be nrLBAs*LBASize), returning a *SenseError for
// any protocol violation and a plain error only for an underlying I/O
// failure.
func (d *Device) ReadLBAs(lba uint64, nrLBAs uint64, buf []byte) error {
	if err := d.checkRdwrRange(lba, nrLBAs, d.checkZoneOkToRead); err != nil {
		return err
	}
	off, err := d.dataFileOffset(lba)
	if err != nil {
		return ErrLBAOutOfRange()
	}
	want := int(nrLBAs) * int(d.Meta.LBASize)
	if len(buf) != want {
		return fmt.Errorf("zbc: read buffer size %d does not match requested %d bytes", len(buf), want)
	}
	n, err := d.Store.ReadAt(buf, off)
	if err != nil {
		return err
	}
	if n != want {
		return ErrMediumError()
	}
	return nil
}

// WriteLBAs validates and performs a write of nrLBAs starting at lba
// from buf, advancing the affected zone's write pointer (and
// implicitly opening it first, if it was Empty or Closed) on success.
func (d *Device) WriteLBAs(lba uint64, nrLBAs uint64, buf []byte) error {
	firstIdx, firstZone, err := d.ZoneAt(lba)
	if err != nil {
		return ErrLBAOutOfRange()
	}
	if err := d.checkRdwrRange(lba, nrLBAs, d.checkZoneOkToWrite); err != nil {
		return err
	}
	if firstZone.Cond == ZoneCondEmpty || firstZone.Cond == ZoneCondClosed {
		if err := d.implicitOpen(firstIdx); err != nil {
			return err
		}
	}

	off, err := d.dataFileOffset(lba)
	if err != nil {
		return ErrLBAOutOfRange()
	}
	want := int(nrLBAs) * int(d.Meta.LBASize)
	if len(buf) != want {
		return fmt.Errorf("zbc: write buffer size %d does not match requested %d bytes", len(buf), want)
	}
	n, err := d.Store.WriteAt(buf, off)
	if err != nil {
		return err
	}
	if n != want {
		return ErrMediumError()
	}

	d.advanceWriteZones(lba, nrLBAs)
	return nil
}

// advanceWriteZones walks every zone a successful [lba, lba+nrLBAs)
// write touched, opening each implicitly if needed, tracking
// out-of-order writes per zone, and advancing each zone's write
// pointer. Mirrors checkRdwrRange's zone walk on the write side of
// zbc_cmd_write.
func (d *Device) advanceWriteZones(lba uint64, nrLBAs uint64) {
	cur, remaining := lba, nrLBAs
	for remaining > 0 {
		idx, zone, err := d.ZoneAt(cur)
		if err != nil {
			return
		}
		count := zone.Start + zone.Len - cur
		if count > remaining {
			count = remaining
		}
		if !zone.Type.IsConv() {
			if zone.Cond == ZoneCondEmpty || zone.Cond == ZoneCondClosed {
				_ = d.implicitOpen(idx)
			}
			if zone.WP != NoWP && cur != zone.WP {
				d.Meta.SubOptWriteCmds++
				zone.NonSeq = true
			}
			d.advanceWP(idx, cur, count)
		}
		cur += count
		remaining -= count
	}
}

// ReadvLBAs and WritevLBAs are the scatter-gather forms used for
// multi-vector SCSI commands, sharing the same validation and
// write-pointer bookkeeping as their single-buffer counterparts.
func (d *Device) ReadvLBAs(lba uint64, nrLBAs uint64, iovecs [][]byte) error {
	if err := d.checkRdwrRange(lba, nrLBAs, d.checkZoneOkToRead); err != nil {
		return err
	}
	off, err := d.dataFileOffset(lba)
	if err != nil {
		return ErrLBAOutOfRange()
	}
	if _, err := d.Store.Readv(iovecs, off); err != nil {
		return err
	}
	return nil
}

func (d *Device) WritevLBAs(lba uint64, nrLBAs uint64, iovecs [][]byte) error {
	firstIdx, firstZone, err := d.ZoneAt(lba)
	if err != nil {
		return ErrLBAOutOfRange()
	}
	if err := d.checkRdwrRange(lba, nrLBAs, d.checkZoneOkToWrite); err != nil {
		return err
	}
	if firstZone.Cond == ZoneCondEmpty || firstZone.Cond == ZoneCondClosed {
		if err := d.implicitOpen(firstIdx); err != nil {
			return err
		}
	}
	off, err := d.dataFileOffset(lba)
	if err != nil {
		return ErrLBAOutOfRange()
	}
	if _, err := d.Store.Writev(iovecs, off); err != nil {
		return err
	}
	d.advanceWriteZones(lba, nrLBAs)
	return nil
}
