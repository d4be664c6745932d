package zbc

import "testing"

func TestWriteLBAsImplicitOpensAndAdvancesWP(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	idx := firstSeqZone(t, d)
	z := &d.Zones.Zones[idx]
	if z.Cond != ZoneCondEmpty {
		t.Fatalf("expected freshly formatted sequential zone to be Empty, got %v", z.Cond)
	}

	buf := make([]byte, d.LBASize())
	if err := d.WriteLBAs(z.Start, 1, buf); err != nil {
		t.Fatalf("WriteLBAs: %v", err)
	}
	if z.Cond != ZoneCondImpOpen {
		t.Fatalf("expected implicit open after write, got %v", z.Cond)
	}
	if z.WP != z.Start+1 {
		t.Fatalf("expected write pointer to advance by 1, got %d (start %d)", z.WP, z.Start)
	}
}

func TestWriteLBAsRejectsUnalignedWrite(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	idx := firstSeqZone(t, d)
	z := &d.Zones.Zones[idx]

	buf := make([]byte, d.LBASize())
	err := d.WriteLBAs(z.Start+1, 1, buf)
	if err == nil {
		t.Fatalf("expected an unaligned write to a sequential zone's non-WP LBA to fail")
	}
	se, ok := err.(*SenseError)
	if !ok {
		t.Fatalf("expected a *SenseError, got %T: %v", err, err)
	}
	if se.ASC != 0x2104 {
		t.Fatalf("expected UNALIGNED WRITE COMMAND asc 0x2104, got 0x%04x", se.ASC)
	}
}

func TestReadLBAsRejectsReadAboveWP(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	if d.Meta.URSWRZ {
		t.Skip("URSWRZ enabled: reads above WP are permitted")
	}
	idx := firstSeqZone(t, d)
	z := &d.Zones.Zones[idx]

	buf := make([]byte, d.LBASize())
	if err := d.ReadLBAs(z.Start, 1, buf); err == nil {
		t.Fatalf("expected reading an Empty zone at its write pointer to fail")
	}
}

// TestWriteLBAsSeqPrefHasNoOrderingRestriction exercises the fix for
// the write-ordering rule collapsing every non-conventional type into
// SeqWriteRequired's strict lba==WP check: a SeqWritePreferred zone
// must accept a write anywhere within its bounds, including below its
// current write pointer.
func TestWriteLBAsSeqPrefHasNoOrderingRestriction(t *testing.T) {
	d := newTestDevice(t, "HA_ZONED")
	idx := firstSeqZone(t, d)
	z := &d.Zones.Zones[idx]
	if !z.Type.IsSeqPref() {
		t.Fatalf("expected HA_ZONED's SMR-side zone to be SeqWritePreferred, got %v", z.Type)
	}

	buf := make([]byte, 2*d.LBASize())
	if err := d.WriteLBAs(z.Start, 2, buf); err != nil {
		t.Fatalf("WriteLBAs at WP: %v", err)
	}
	buf1 := make([]byte, d.LBASize())
	if err := d.WriteLBAs(z.Start, 1, buf1); err != nil {
		t.Fatalf("expected a SeqWritePreferred zone to accept a write below its write pointer, got %v", err)
	}
	if z.WP != z.Start+2 {
		t.Fatalf("expected write pointer to stay at the high-water mark %d, got %d", z.Start+2, z.WP)
	}
}

// TestWriteLBAsSobrAllowsAtOrBelowWP exercises the SOBR half of the
// same fix: any lba<=WP is accepted, only lba>WP is unaligned.
func TestWriteLBAsSobrAllowsAtOrBelowWP(t *testing.T) {
	d := newTestDevice(t, "ZD_1SOBR_BT_TOP")
	idx := firstSeqZone(t, d)
	z := &d.Zones.Zones[idx]
	if !z.Type.IsSobr() {
		t.Fatalf("expected ZD_1SOBR_BT_TOP's first active zone to be SOBR, got %v", z.Type)
	}

	buf := make([]byte, 2*d.LBASize())
	if err := d.WriteLBAs(z.Start, 2, buf); err != nil {
		t.Fatalf("WriteLBAs at WP: %v", err)
	}
	buf1 := make([]byte, d.LBASize())
	if err := d.WriteLBAs(z.Start, 1, buf1); err != nil {
		t.Fatalf("expected a SOBR zone to accept a write at or below its write pointer, got %v", err)
	}
	if err := d.WriteLBAs(z.Start+3, 1, buf1); err == nil {
		t.Fatalf("expected a SOBR write above the write pointer to be rejected as unaligned")
	}
}

// TestWriteLBAsCrossesAdjacentSameTypeZone exercises checkRdwrRange's
// zone-by-zone walk: a transfer that runs off the end of the first
// zone into a second zone of the same type must succeed rather than
// being rejected outright as a boundary violation.
func TestWriteLBAsCrossesAdjacentSameTypeZone(t *testing.T) {
	d := newTestDevice(t, "HA_ZONED")
	idx := firstSeqZone(t, d)
	z := &d.Zones.Zones[idx]
	next := &d.Zones.Zones[idx+1]
	if next.Type != z.Type {
		t.Skip("no adjacent same-type zone to cross into")
	}

	nrLBAs := z.Len + 1
	buf := make([]byte, nrLBAs*uint64(d.LBASize()))
	if err := d.WriteLBAs(z.Start, nrLBAs, buf); err != nil {
		t.Fatalf("expected a write crossing into an adjacent same-type zone to succeed, got %v", err)
	}
	if next.WP != next.Start+1 {
		t.Fatalf("expected the second zone's write pointer to advance by the 1 LBA spilled into it, got %d", next.WP)
	}
}

func TestWriteLBAsRejectsOfflineZone(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	idx := firstSeqZone(t, d)
	z := &d.Zones.Zones[idx]
	z.Cond = ZoneCondOffline

	buf := make([]byte, d.LBASize())
	err := d.WriteLBAs(z.Start, 1, buf)
	if err == nil {
		t.Fatalf("expected write to an offline zone to fail")
	}
}
