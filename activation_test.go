package zbc

import "testing"

// TestActivateRealmToConventionalAndBack exercises the realm
// activation round trip ZONE_DOM supports (SeqWriteRequired <->
// Conventional): activating a realm away from its formatted type and
// back should leave that realm's active subrange the same size and
// type it started with, the same round-trip property MUTATE provides
// one level up, at the realm-activation granularity.
func TestActivateRealmToConventionalAndBack(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	if len(d.Domains.Realms) == 0 {
		t.Fatal("formatted device has no realms")
	}
	r := &d.Domains.Realms[0]
	originalType := r.CurrentType
	item, ok := r.ItemForType(originalType)
	if !ok {
		t.Fatalf("realm 0 has no item for its current type %v", originalType)
	}
	startLBA := item.StartLBA
	originalLen := item.LengthInZones

	result, err := d.ActivateRealms(startLBA, originalLen, ZoneTypeConventional, false, false)
	if err != nil {
		t.Fatalf("ActivateRealms(Conventional): %v", err)
	}
	if result.Header.ErrorBits != 0 {
		t.Fatalf("unexpected activation error bits: 0x%x", result.Header.ErrorBits)
	}
	if r.CurrentType != ZoneTypeConventional {
		t.Fatalf("expected realm to activate to Conventional, got %v", r.CurrentType)
	}

	convItem, ok := r.ItemForType(ZoneTypeConventional)
	if !ok {
		t.Fatal("realm has no Conventional item after activation")
	}
	result, err = d.ActivateRealms(convItem.StartLBA, convItem.LengthInZones, originalType, false, false)
	if err != nil {
		t.Fatalf("ActivateRealms(back to %v): %v", originalType, err)
	}
	if result.Header.ErrorBits != 0 {
		t.Fatalf("unexpected activation error bits on the way back: 0x%x", result.Header.ErrorBits)
	}
	if r.CurrentType != originalType {
		t.Fatalf("expected realm back at %v, got %v", originalType, r.CurrentType)
	}
	newItem, _ := r.ItemForType(originalType)
	if newItem.LengthInZones != originalLen {
		t.Fatalf("realm subrange length changed across the round trip: %d != %d", newItem.LengthInZones, originalLen)
	}
}

// TestActivateRealmDisallowedSwapIsRejected checks the direct-swap
// rule (Conventional<->SOBR, SeqWriteRequired<->SeqWritePreferred) is
// enforced independent of CanActivateAs.
func TestActivateRealmDisallowedSwapIsRejected(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	r := &d.Domains.Realms[0]
	item, _ := r.ItemForType(r.CurrentType)

	// ZONE_DOM's SMR side is SeqWriteRequired; SeqWritePreferred is its
	// disallowed direct swap regardless of CanActivateAs.
	bits, _ := checkRealmActivatable(d, r, ZoneTypeSeqWritePreferred, false)
	if bits == 0 {
		t.Fatalf("expected activation to SeqWritePreferred to be rejected")
	}
	_ = item
}

// TestActivateRealmToThirdDomainType exercises the fix for
// activeZoneTypes silently dropping a profile's third CanActivate*
// target: ZD_1CMR_BOT's bottom realm starts Conventional and carries
// actv_of_seq_pref, so activating it to SeqWritePreferred (not a
// disallowed direct swap, unlike SeqWriteRequired<->SeqWritePreferred)
// must find a reserved item instead of failing REALM_ALIGN.
func TestActivateRealmToThirdDomainType(t *testing.T) {
	d := newTestDevice(t, "ZD_1CMR_BOT")
	r := &d.Domains.Realms[0]
	if r.CurrentType != ZoneTypeConventional {
		t.Fatalf("expected realm 0 to start Conventional (bottom CMR realm), got %v", r.CurrentType)
	}
	item, ok := r.ItemForType(r.CurrentType)
	if !ok {
		t.Fatal("realm 0 has no item for its current type")
	}

	result, err := d.ActivateRealms(item.StartLBA, item.LengthInZones, ZoneTypeSeqWritePreferred, false, false)
	if err != nil {
		t.Fatalf("ActivateRealms(SeqWritePreferred): %v", err)
	}
	if result.Header.ErrorBits != 0 {
		t.Fatalf("unexpected activation error bits: 0x%x", result.Header.ErrorBits)
	}
	if r.CurrentType != ZoneTypeSeqWritePreferred {
		t.Fatalf("expected realm activated to SeqWritePreferred, got %v", r.CurrentType)
	}
}

func TestMutateReformatsUnderNewProfile(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	oldPhys := d.Meta.PhysCapacity

	newDev, err := FormatDevice(d.File, &d.Config, Profiles["HM_ZONED_FAULTY"])
	if err != nil {
		t.Fatalf("FormatDevice: %v", err)
	}
	if newDev.Meta.DeviceType != DevTypeHostManaged {
		t.Fatalf("expected HostManaged device type after mutate, got %v", newDev.Meta.DeviceType)
	}
	if newDev.Meta.PhysCapacity != oldPhys {
		t.Fatalf("mutate changed physical capacity: %d != %d", newDev.Meta.PhysCapacity, oldPhys)
	}
}
