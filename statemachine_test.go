package zbc

import (
	"os"
	"path/filepath"
	"testing"
)

// newTestDevice formats a fresh device backed by a temp file under the
// named profile, the same "open a real file, let FormatDevice lay it
// out" fixture style Open itself uses.
func newTestDevice(t *testing.T, profileName string) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dev0")
	cfg, err := ParseConfigString("dhsmr/type-" + profileName + "/@" + path)
	if err != nil {
		t.Fatalf("ParseConfigString: %v", err)
	}
	dev, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { dev.Close(); os.Remove(path) })
	return dev
}

// firstSeqZone returns the index of the first active non-conventional,
// non-gap zone, the kind the state machine transitions are meaningful
// against. Inactive zones (e.g. a ZD_SOBR profile's reserved SOBR-typed
// realm-activation subrange) are skipped since they reject reads and
// writes until a realm is activated onto them.
func firstSeqZone(t *testing.T, d *Device) uint32 {
	t.Helper()
	for i := range d.Zones.Zones {
		z := &d.Zones.Zones[i]
		if !z.Type.IsConv() && z.Type != ZoneTypeGap && z.Cond != ZoneCondInactive {
			return uint32(i)
		}
	}
	t.Fatal("no sequential zone found in formatted device")
	return 0
}

func TestOpenCloseZoneRoundTrip(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	idx := firstSeqZone(t, d)

	if err := d.OpenZone(idx); err != nil {
		t.Fatalf("OpenZone: %v", err)
	}
	if d.Zones.Zones[idx].Cond != ZoneCondExpOpen {
		t.Fatalf("expected ExpOpen, got %v", d.Zones.Zones[idx].Cond)
	}

	if err := d.CloseZone(idx); err != nil {
		t.Fatalf("CloseZone: %v", err)
	}
	if d.Zones.Zones[idx].Cond != ZoneCondClosed {
		t.Fatalf("expected Closed, got %v", d.Zones.Zones[idx].Cond)
	}

	// Closed is idempotent.
	if err := d.CloseZone(idx); err != nil {
		t.Fatalf("CloseZone (idempotent): %v", err)
	}
}

func TestFinishZoneSetsWPToNoWP(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	idx := firstSeqZone(t, d)

	if err := d.FinishZone(idx); err != nil {
		t.Fatalf("FinishZone: %v", err)
	}
	z := &d.Zones.Zones[idx]
	if z.Cond != ZoneCondFull {
		t.Fatalf("expected Full, got %v", z.Cond)
	}
	if z.WP != NoWP {
		t.Fatalf("expected NoWP sentinel after FINISH ZONE, got %d", z.WP)
	}

	// Finish is idempotent.
	if err := d.FinishZone(idx); err != nil {
		t.Fatalf("FinishZone (idempotent): %v", err)
	}
}

func TestResetWPReturnsToEmpty(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	idx := firstSeqZone(t, d)
	start := d.Zones.Zones[idx].Start

	if err := d.FinishZone(idx); err != nil {
		t.Fatalf("FinishZone: %v", err)
	}
	if err := d.ResetWP(idx); err != nil {
		t.Fatalf("ResetWP: %v", err)
	}
	z := &d.Zones.Zones[idx]
	if z.Cond != ZoneCondEmpty {
		t.Fatalf("expected Empty, got %v", z.Cond)
	}
	if z.WP != start {
		t.Fatalf("expected WP reset to zone start %d, got %d", start, z.WP)
	}
}

func TestResetWPRejectsConventionalZone(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	var convIdx uint32 = NilIndex
	for i := range d.Zones.Zones {
		if d.Zones.Zones[i].Type.IsConv() {
			convIdx = uint32(i)
			break
		}
	}
	if convIdx == NilIndex {
		t.Skip("profile has no conventional zones")
	}
	if err := d.ResetWP(convIdx); err == nil {
		t.Fatalf("expected RESET WRITE POINTER on a conventional zone to fail")
	}
}

func TestRangeOpAbortsAtFirstFailure(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	idx := firstSeqZone(t, d)

	// Force the second zone in the range into a condition ResetWP
	// rejects (Inactive), so a 2-zone range operation processes the
	// first zone and stops, per the non-transactional rule.
	d.Zones.Zones[idx+1].Cond = ZoneCondInactive

	if err := d.FinishZone(idx); err != nil {
		t.Fatalf("FinishZone (setup): %v", err)
	}

	err := d.rangeOp(idx, 2, d.ResetWP)
	if err == nil {
		t.Fatalf("expected rangeOp to fail on the second zone")
	}
	if d.Zones.Zones[idx].Cond != ZoneCondEmpty {
		t.Fatalf("expected first zone to keep its new state despite the later failure")
	}
}
