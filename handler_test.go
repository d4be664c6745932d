package zbc

import (
	"testing"

	"github.com/coreos/go-zbc/scsi"
)

// newModeSelect6Cmd builds a MODE SELECT(6) CDB carrying a single Zoned
// Block Device Control page (0x0e) with the given URSWRZ bit set.
func newModeSelect6Cmd(dev *Device, urswrz bool) *SCSICmd {
	page := make([]byte, 16)
	page[0] = 0x0e
	page[1] = 0x0e
	if urswrz {
		page[4] = 0x01
	}
	paramList := append([]byte{0, 0, 0, 0}, page...)

	cdb := make([]byte, 6)
	cdb[0] = scsi.ModeSelect
	cdb[4] = byte(len(paramList))
	return &SCSICmd{
		cdb:    cdb,
		vecs:   [][]byte{paramList},
		device: dev,
	}
}

func TestEmulateModeSelectAppliesURSWRZ(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	d.Meta.URSWRZ = false

	cmd := newModeSelect6Cmd(d, true)
	resp, err := EmulateModeSelect(cmd)
	if err != nil {
		t.Fatalf("EmulateModeSelect: %v", err)
	}
	if resp.status != scsi.SamStatGood {
		t.Fatalf("expected SAM_STAT_GOOD, got 0x%x", resp.status)
	}
	if !d.Meta.URSWRZ {
		t.Fatal("expected URSWRZ to be set after MODE SELECT")
	}

	cmd = newModeSelect6Cmd(d, false)
	if _, err := EmulateModeSelect(cmd); err != nil {
		t.Fatalf("EmulateModeSelect: %v", err)
	}
	if d.Meta.URSWRZ {
		t.Fatal("expected URSWRZ to be cleared after a second MODE SELECT")
	}
}

func TestEmulateModeSelectRejectsWhenProfileForbidsChange(t *testing.T) {
	d := newTestDevice(t, "NON_ZONED")
	d.Profile.CanChangeURSWRZ = false

	cmd := newModeSelect6Cmd(d, true)
	resp, err := EmulateModeSelect(cmd)
	if err != nil {
		t.Fatalf("EmulateModeSelect: %v", err)
	}
	if resp.status == scsi.SamStatGood {
		t.Fatal("expected a non-good status when the profile forbids changing URSWRZ")
	}
}
