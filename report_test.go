package zbc

import (
	"testing"

	"github.com/coreos/go-zbc/scsi"
)

func newReportZonesCmd(dev *Device, lba uint64, allocLen uint32) *SCSICmd {
	cdb := make([]byte, 16)
	cdb[0] = scsi.ZbcIn
	cdb[1] = scsi.ZiSaReportZones
	putU64(cdb[2:10], lba)
	putU32(cdb[10:14], allocLen)
	cdb[14] = scsi.ZoneReportAll
	return &SCSICmd{
		cdb:    cdb,
		vecs:   [][]byte{make([]byte, allocLen)},
		device: dev,
	}
}

func TestHandleCommandReportZonesRoundTrip(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	h := &ZoneDomainsHandler{Dev: d}

	cmd := newReportZonesCmd(d, 0, 512)
	resp, err := h.HandleCommand(cmd)
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if resp.status != scsi.SamStatGood {
		t.Fatalf("expected SAM_STAT_GOOD, got 0x%x", resp.status)
	}

	out := cmd.vecs[0]
	descLen := getU32(out[0:4])
	if descLen == 0 {
		t.Fatal("expected a nonzero total descriptor length")
	}
	if got := getU64(out[8:16]); got != d.LogicalCapacity() {
		t.Fatalf("header capacity field = %d, want %d", got, d.LogicalCapacity())
	}
	firstType := ZoneType(out[64])
	if firstType == 0 {
		t.Fatal("expected the first zone descriptor to carry a nonzero type byte")
	}
}

func TestHandleCommandZoneActivateUsesDomainType(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	h := &ZoneDomainsHandler{Dev: d}

	convDomainID := d.Domains.DomainIDForType(ZoneTypeConventional)
	if convDomainID < 0 {
		t.Skip("ZONE_DOM profile has no Conventional domain to activate into")
	}
	r := &d.Domains.Realms[0]
	item, ok := r.ItemForType(r.CurrentType)
	if !ok {
		t.Fatal("realm 0 has no item for its current type")
	}

	cdb := make([]byte, 16)
	cdb[0] = scsi.ZbcIn
	cdb[1] = scsi.ZiSaZoneActivate16
	cdb[2] = byte(convDomainID) & 0x3f
	var lba8 [8]byte
	putU48(&lba8, item.StartLBA)
	copy(cdb[3:9], lba8[2:8])
	buf := make([]byte, 4096)
	putU32(cdb[9:13], uint32(len(buf)))
	cmd := &SCSICmd{cdb: cdb, vecs: [][]byte{buf}, device: d}

	resp, err := h.HandleCommand(cmd)
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if resp.status != scsi.SamStatGood {
		t.Fatalf("expected SAM_STAT_GOOD, got 0x%x", resp.status)
	}
	if r.CurrentType != ZoneTypeConventional {
		t.Fatalf("expected realm activated to Conventional, got %v", r.CurrentType)
	}
}
