package zbc

import "testing"

func TestRealmCanActivateBitmask(t *testing.T) {
	r := &Realm{}
	if r.CanActivateTo(ZoneTypeConventional) {
		t.Fatal("expected a fresh realm to allow no activations")
	}
	r.setCanActivate(ZoneTypeConventional, true)
	r.setCanActivate(ZoneTypeSeqWriteRequired, true)
	if !r.CanActivateTo(ZoneTypeConventional) || !r.CanActivateTo(ZoneTypeSeqWriteRequired) {
		t.Fatal("expected both set bits to read back true")
	}
	if r.CanActivateTo(ZoneTypeSeqWritePreferred) || r.CanActivateTo(ZoneTypeSeqOrBeforeRequired) {
		t.Fatal("expected unset bits to read back false")
	}
	r.setCanActivate(ZoneTypeConventional, false)
	if r.CanActivateTo(ZoneTypeConventional) {
		t.Fatal("expected clearing a bit to take effect")
	}
}

func TestRealmItemForTypeRejectsZeroLength(t *testing.T) {
	r := &Realm{}
	r.Items[0] = RealmItem{StartLBA: 0, LengthInZones: 4}
	item, ok := r.ItemForType(ZoneTypeConventional)
	if !ok || item.LengthInZones != 4 {
		t.Fatalf("expected a populated item, got %+v ok=%v", item, ok)
	}
	_, ok = r.ItemForType(ZoneTypeSeqWriteRequired)
	if ok {
		t.Fatal("expected a zero-length item to report not-present")
	}
}

func TestDomainStoreDomainOf(t *testing.T) {
	ds := &DomainStore{
		Domains: []ZoneDomain{
			{StartLBA: 0, EndLBA: 999, NrZones: 10, Type: ZoneTypeConventional},
			{StartLBA: 1000, EndLBA: 1999, NrZones: 10, Type: ZoneTypeSeqWriteRequired},
		},
	}
	idx, err := ds.DomainOf(500)
	if err != nil || idx != 0 {
		t.Fatalf("DomainOf(500) = %d, %v; want 0, nil", idx, err)
	}
	idx, err = ds.DomainOf(1500)
	if err != nil || idx != 1 {
		t.Fatalf("DomainOf(1500) = %d, %v; want 1, nil", idx, err)
	}
	if _, err := ds.DomainOf(5000); err == nil {
		t.Fatal("expected an out-of-range lba to error")
	}
}

func TestDomainStoreDomainIDForType(t *testing.T) {
	ds := &DomainStore{TypeToDomain: [5]int8{-1, 0, -1, -1, -1}}
	if got := ds.DomainIDForType(ZoneTypeConventional); got != 0 {
		t.Fatalf("DomainIDForType(Conventional) = %d, want 0", got)
	}
	if got := ds.DomainIDForType(ZoneTypeSeqWriteRequired); got != -1 {
		t.Fatalf("DomainIDForType(SeqWriteRequired) = %d, want -1 for an unsupported type", got)
	}
}
