package zbc

import "testing"

func TestValidateRejectsCorruptZoneList(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	if err := Validate(d); err != nil {
		t.Fatalf("Validate on a freshly formatted device: %v", err)
	}

	// Corrupt the closed-list size field so it disagrees with the
	// actual list length; Validate should catch it rather than trust
	// the persisted count.
	d.Meta.ClosedList.Size += 1
	if err := Validate(d); err == nil {
		t.Fatal("expected Validate to reject a size-mismatched zone list")
	}
}

func TestValidateRejectsBadRealmSizeAlignment(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	d.Meta.RealmSize += 1
	if err := Validate(d); err == nil {
		t.Fatal("expected Validate to reject a RealmSize not a multiple of ZoneSize")
	}
}
