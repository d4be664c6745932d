package zbc

import (
	"os"
	"path/filepath"
	"testing"
)

// TestHeaderRoundTripsAcrossClose reopens a freshly formatted device
// from the same backing file, exercising marshalHeader/unmarshalHeader
// (and the realm/zone array codecs alongside them) instead of only the
// in-memory Header a fresh format produces.
func TestHeaderRoundTripsAcrossClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev0")
	cfg, err := ParseConfigString("dhsmr/type-ZONE_DOM/@" + path)
	if err != nil {
		t.Fatalf("ParseConfigString: %v", err)
	}

	dev, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	wantNrZones := dev.Meta.NrZones
	wantCapacity := dev.LogicalCapacity()
	wantProfile := dev.Meta.profileName()
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() {
		reopened.Close()
		os.Remove(path)
	}()

	if reopened.Meta.NrZones != wantNrZones {
		t.Fatalf("NrZones after reopen = %d, want %d", reopened.Meta.NrZones, wantNrZones)
	}
	if reopened.LogicalCapacity() != wantCapacity {
		t.Fatalf("LogicalCapacity after reopen = %d, want %d", reopened.LogicalCapacity(), wantCapacity)
	}
	if reopened.Meta.profileName() != wantProfile {
		t.Fatalf("profile name after reopen = %q, want %q", reopened.Meta.profileName(), wantProfile)
	}
	if err := Validate(reopened); err != nil {
		t.Fatalf("Validate after reopen: %v", err)
	}
}
