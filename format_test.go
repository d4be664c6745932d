package zbc

import "testing"

func TestFormatDeviceProducesValidHeader(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	if err := Validate(d); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.Meta.NrZones == 0 {
		t.Fatal("expected a nonzero zone count")
	}
	if len(d.Zones.Zones) != int(d.Meta.NrZones) {
		t.Fatalf("zone array length %d does not match header NrZones %d", len(d.Zones.Zones), d.Meta.NrZones)
	}
}

func TestFormatDeviceInjectsFaultyZones(t *testing.T) {
	d := newTestDevice(t, "HM_ZONED_FAULTY")
	nrOffline, nrRdonly := 0, 0
	for i := range d.Zones.Zones {
		switch d.Zones.Zones[i].Cond {
		case ZoneCondOffline:
			nrOffline++
		case ZoneCondReadOnly:
			nrRdonly++
		}
	}
	if nrOffline == 0 {
		t.Fatal("expected HM_ZONED_FAULTY to inject at least one offline zone")
	}
	if nrRdonly == 0 {
		t.Fatal("expected HM_ZONED_FAULTY to inject at least one read-only zone")
	}
}

// TestFormatDeviceLaysOutOneDomainPerActivationTarget exercises the
// fix for activeZoneTypes hardcoding a 2-domain [Conventional,
// InitialSMRType] layout regardless of a profile's CanActivate* bits:
// ZD_1CMR_BOT carries actv_of_conv/seq_req/seq_pref, so it needs a
// domain (and per-realm reserved item) for all three types.
func TestFormatDeviceLaysOutOneDomainPerActivationTarget(t *testing.T) {
	d := newTestDevice(t, "ZD_1CMR_BOT")
	if got := len(d.Domains.Domains); got != 3 {
		t.Fatalf("expected 3 domains (Conventional, SeqWriteRequired, SeqWritePreferred), got %d", got)
	}
	for _, typ := range []ZoneType{ZoneTypeConventional, ZoneTypeSeqWriteRequired, ZoneTypeSeqWritePreferred} {
		if id := d.Domains.DomainIDForType(typ); id < 0 {
			t.Fatalf("expected a domain for %v", typ)
		}
		item, ok := d.Domains.Realms[0].ItemForType(typ)
		if !ok || item.LengthInZones == 0 {
			t.Fatalf("expected realm 0 to have a reserved item for %v", typ)
		}
	}
}

// TestFormatDeviceSobrProfileUsesSobrCmrDomain exercises the fix
// giving the ZD_SOBR family a SOBR-typed (not Conventional) CMR-side
// domain, matching initial_cmr_type in zbc_opt_feat[].
func TestFormatDeviceSobrProfileUsesSobrCmrDomain(t *testing.T) {
	d := newTestDevice(t, "ZD_SOBR")
	if d.Domains.DomainIDForType(ZoneTypeConventional) >= 0 {
		t.Fatal("expected ZD_SOBR to have no Conventional domain")
	}
	sobrID := d.Domains.DomainIDForType(ZoneTypeSeqOrBeforeRequired)
	if sobrID < 0 {
		t.Fatal("expected ZD_SOBR to have a SOBR domain")
	}
	if d.Domains.DomainIDForType(ZoneTypeSeqWriteRequired) < 0 {
		t.Fatal("expected ZD_SOBR to have a SeqWriteRequired domain")
	}
}

// TestFormatDeviceZoneDomProfileDomainsAreGapless documents
// the DomainGap fix: only ZONE_DOM carries a nonzero domain_gap; every
// other ZD_* profile packs its domains back to back.
func TestFormatDeviceZoneDomProfileDomainsAreGapless(t *testing.T) {
	d := newTestDevice(t, "ZD_1CMR_BOT")
	convID := d.Domains.DomainIDForType(ZoneTypeConventional)
	seqID := d.Domains.DomainIDForType(ZoneTypeSeqWriteRequired)
	if convID < 0 || seqID < 0 {
		t.Fatal("expected both a Conventional and a SeqWriteRequired domain")
	}
	conv := &d.Domains.Domains[convID]
	seq := &d.Domains.Domains[seqID]
	if seq.StartLBA != conv.EndLBA+1 {
		t.Fatalf("expected the seq-required domain to start immediately after the conventional domain (%d), got %d", conv.EndLBA+1, seq.StartLBA)
	}
}

// TestFormatDeviceZoneDomMaxActivationDefault exercises the
// MaxActivationDefault fix: every ZD_* profile persists max_activate
// 64 into the header, per max_act_control=1 in zbc_opt_feat[].
func TestFormatDeviceZoneDomMaxActivationDefault(t *testing.T) {
	for _, name := range []string{"ZONE_DOM", "ZD_1CMR_BOT", "ZD_SOBR", "ZD_1SOBR_BT_TOP"} {
		d := newTestDevice(t, name)
		if d.Meta.MaxActivation != 64 {
			t.Fatalf("%s: MaxActivation = %d, want 64", name, d.Meta.MaxActivation)
		}
	}
}

func TestRescaleClampsToRange(t *testing.T) {
	got := rescale(1, 100, 125)
	if got < 1 || got > 125 {
		t.Fatalf("rescale(1, 100, 125) = %d, out of [1, 125]", got)
	}
	got = rescale(100, 100, 125)
	if got != 125 {
		t.Fatalf("rescale(oldMax, oldMax, newMax) = %d, want newMax (125)", got)
	}
}
