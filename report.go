package zbc

import (
	"bytes"

	"github.com/coreos/go-zbc/scsi"
)

// This file wires the ZBC IN/OUT command family into the handler:
// REPORT ZONES/REALMS/DOMAINS/MUTATIONS descriptor construction, the
// ZBC OUT range operations (CLOSE/FINISH/OPEN/RESET WRITE POINTER/
// SEQUENTIALIZE ZONE), MUTATE, and the ZONE ACTIVATE/QUERY(16/32)
// entry points. Grounded on zbc_report_zones/zbc_report_realms/
// zbc_report_domains/zbc_mutate in original_source/file_dhsmr.c;
// each REPORT variant builds a fixed-size header, then appends
// fixed-size descriptors into one buffer.

const zoneDescriptorSize = 64

// zoneMatchesReportOption reports whether zone z should be included
// under REPORT ZONES reporting option opt, per the ZoneReport* table
// in scsi/zbc_defs.go.
func zoneMatchesReportOption(z *Zone, opt byte) bool {
	switch opt {
	case scsi.ZoneReportAll:
		return true
	case scsi.ZoneReportEmpty:
		return z.Cond == ZoneCondEmpty
	case scsi.ZoneReportImplicitOpen:
		return z.Cond == ZoneCondImpOpen
	case scsi.ZoneReportExplicitOpen:
		return z.Cond == ZoneCondExpOpen
	case scsi.ZoneReportClosed:
		return z.Cond == ZoneCondClosed
	case scsi.ZoneReportFull:
		return z.Cond == ZoneCondFull
	case scsi.ZoneReportReadOnly:
		return z.Cond == ZoneCondReadOnly
	case scsi.ZoneReportOffline:
		return z.Cond == ZoneCondOffline
	case scsi.ZoneReportInactive:
		return z.Cond == ZoneCondInactive
	case scsi.ZoneReportNotWp:
		return z.Cond == ZoneCondNotWp
	case scsi.ZoneReportNonSeqWrite:
		return z.NonSeq
	case scsi.ZoneReportInvalidWriteCond:
		return z.Cond != ZoneCondNotWp && z.Cond != ZoneCondFull && z.Cond != ZoneCondOffline
	default:
		return true
	}
}

// marshalZoneDescriptor writes one 64-byte REPORT ZONES descriptor:
// byte0 type, byte1 (cond<<4)|nonseq bit, bytes 8:16 BE64 length, bytes
// 16:24 BE64 start LBA, bytes 24:32 BE64 write pointer (NoWP zones
// report the all-Fs convention the real command set defines for "write
// pointer not valid").
func marshalZoneDescriptor(buf []byte, z *Zone) {
	buf[0] = byte(z.Type)
	cb := byte(z.Cond) << 4
	if z.NonSeq {
		cb |= 0x01
	}
	if z.Reset {
		cb |= 0x02
	}
	buf[1] = cb
	putU64(buf[8:16], z.Len)
	putU64(buf[16:24], z.Start)
	wp := z.WP
	putU64(buf[24:32], wp)
}

func EmulateReportZones(cmd *SCSICmd) (SCSIResponse, error) {
	d := cmd.device
	lba := cmd.LBA()
	opts, partial := cmd.ReportingOptions()
	allocLen := cmd.XferLen()

	startIdx, _, err := d.ZoneAt(lba)
	if err != nil {
		return cmd.RespondError(ErrLBAOutOfRange()), nil
	}

	var matched []uint32
	for idx := startIdx; int(idx) < len(d.Zones.Zones); idx++ {
		if zoneMatchesReportOption(&d.Zones.Zones[idx], opts) {
			matched = append(matched, idx)
		}
	}

	body := &bytes.Buffer{}
	maxDescriptors := (int(allocLen) - 64) / zoneDescriptorSize
	if maxDescriptors < 0 {
		maxDescriptors = 0
	}
	nrReturned := len(matched)
	if partial && nrReturned > maxDescriptors {
		nrReturned = maxDescriptors
	}
	for i := 0; i < nrReturned; i++ {
		buf := make([]byte, zoneDescriptorSize)
		marshalZoneDescriptor(buf, &d.Zones.Zones[matched[i]])
		body.Write(buf)
	}

	hdr := make([]byte, 64)
	putU32(hdr[0:4], uint32(len(matched))*zoneDescriptorSize)
	putU64(hdr[8:16], d.LogicalCapacity())
	out := append(hdr, body.Bytes()...)
	if uint32(len(out)) > allocLen {
		out = out[:allocLen]
	}
	cmd.Write(out)
	return cmd.Ok(), nil
}

// marshalRealmDescriptor writes one realm descriptor: the realm
// number, its current active type, its can-activate mask, and one
// 16-byte sub-descriptor for each of the four RealmItem slots (item
// type at byte 0, start LBA at bytes 8:16), mirroring
// zbc_report_realms' per-realm-per-type layout. An item's zone count
// is not included.
func marshalRealmDescriptor(r *Realm) []byte {
	buf := make([]byte, 16+4*16)
	putU32(buf[0:4], r.Number)
	buf[4] = byte(r.CurrentType)
	buf[5] = r.CanActivateAs
	off := 16
	for i := range r.Items {
		item := &r.Items[i]
		buf[off] = byte(i + 1)
		putU64(buf[off+8:off+16], item.StartLBA)
		off += 16
	}
	return buf
}

func EmulateReportRealms(cmd *SCSICmd) (SCSIResponse, error) {
	d := cmd.device
	opts, _ := cmd.ReportingOptions()
	allocLen := cmd.XferLen()

	body := &bytes.Buffer{}
	nrMatched := 0
	for i := range d.Domains.Realms {
		r := &d.Domains.Realms[i]
		if opts == scsi.RealmReportActive && r.CurrentType == ZoneTypeGap {
			continue
		}
		nrMatched++
		body.Write(marshalRealmDescriptor(r))
	}

	hdr := make([]byte, 64)
	putU32(hdr[0:4], uint32(nrMatched)*(16+4*16))
	out := append(hdr, body.Bytes()...)
	if uint32(len(out)) > allocLen {
		out = out[:allocLen]
	}
	cmd.Write(out)
	return cmd.Ok(), nil
}

func marshalDomainDescriptor(dom *ZoneDomain, id int) []byte {
	buf := make([]byte, 32)
	buf[0] = byte(id)
	buf[1] = byte(dom.Type)
	if dom.SMRSide {
		buf[2] = 0x01
	}
	putU64(buf[8:16], dom.StartLBA)
	putU64(buf[16:24], dom.NrZones)
	return buf
}

func EmulateReportZoneDomains(cmd *SCSICmd) (SCSIResponse, error) {
	d := cmd.device
	allocLen := cmd.XferLen()

	body := &bytes.Buffer{}
	for i := range d.Domains.Domains {
		body.Write(marshalDomainDescriptor(&d.Domains.Domains[i], i))
	}

	hdr := make([]byte, 64)
	putU32(hdr[0:4], uint32(len(d.Domains.Domains))*32)
	out := append(hdr, body.Bytes()...)
	if uint32(len(out)) > allocLen {
		out = out[:allocLen]
	}
	cmd.Write(out)
	return cmd.Ok(), nil
}

// EmulateReportMutations answers the MUTATE-adjacent "list what this
// device could be mutated into" query: one descriptor per named
// FeatureProfile compatible with the device's current DeviceType
// family, per the INQUIRY VPD 0xb1 MutateOptionListOnly bit's promise.
func EmulateReportMutations(cmd *SCSICmd) (SCSIResponse, error) {
	d := cmd.device
	allocLen := cmd.XferLen()

	body := &bytes.Buffer{}
	nr := 0
	for name, p := range Profiles {
		if p.DeviceType != d.Meta.DeviceType {
			continue
		}
		nr++
		rec := make([]byte, 32)
		copy(rec, FixedString(name, 32))
		body.Write(rec)
	}

	hdr := make([]byte, 8)
	putU32(hdr[0:4], uint32(nr)*32)
	out := append(hdr, body.Bytes()...)
	if uint32(len(out)) > allocLen {
		out = out[:allocLen]
	}
	cmd.Write(out)
	return cmd.Ok(), nil
}

// EmulateZoneRangeOp dispatches one of the ZBC OUT single-zone state
// transitions (OPEN/CLOSE/FINISH/RESET WRITE POINTER/SEQUENTIALIZE
// ZONE) against either a single zone, a caller-supplied count of
// zones, or (with the ALL bit set) every zone the operation applies
// to, using rangeOp's non-transactional semantics for the bounded
// forms and allOp's best-effort semantics for the ALL-bit form.
func EmulateZoneRangeOp(cmd *SCSICmd, op func(idx uint32) error) (SCSIResponse, error) {
	d := cmd.device
	if cmd.AllBit() {
		d.allOp(func(z *Zone) bool { return true }, op)
		return cmd.Ok(), nil
	}
	idx, _, err := d.ZoneAt(cmd.LBA())
	if err != nil {
		return cmd.RespondError(ErrLBAOutOfRange()), nil
	}
	count := uint32(1)
	if len(cmd.cdb) >= 14 {
		if n := uint32(getU16(cmd.cdb[12:14])); n > 1 {
			count = n
		}
	}
	if err := d.rangeOp(idx, count, op); err != nil {
		if se, ok := err.(*SenseError); ok {
			return cmd.RespondError(se), nil
		}
		return cmd.TargetFailure(), nil
	}
	return cmd.Ok(), nil
}

// EmulateMutate reformats the device in place under a new named
// profile, keeping the same backing file and physical capacity but
// rebuilding domains, realms, zones and rescale tables from scratch,
// so mutating to profile X, then Y, then back to X restores the zone
// layout X's format produces. Grounded on zbc_mutate in
// original_source/file_dhsmr.c.
func EmulateMutate(cmd *SCSICmd) (SCSIResponse, error) {
	d := cmd.device
	xferLen := int(cmd.XferLen())
	buf := make([]byte, 64)
	if xferLen < len(buf) {
		buf = buf[:xferLen]
	}
	if _, err := cmd.Read(buf); err != nil {
		return cmd.IllegalRequest(), nil
	}
	if len(buf) < 40 {
		return cmd.RespondError(ErrParameterListLengthError()), nil
	}
	if buf[0]&scsi.MutateOptionListOnly != 0 {
		return cmd.Ok(), nil
	}
	name := string(bytes.TrimRight(buf[8:40], "\x00 "))
	profile, ok := Profiles[name]
	if !ok {
		return cmd.RespondError(ErrInvalidFieldInCDB()), nil
	}

	newDev, err := FormatDevice(d.File, &d.Config, profile)
	if err != nil {
		return cmd.TargetFailure(), nil
	}
	*d = *newDev
	return cmd.Ok(), nil
}

// EmulateZoneActivate dispatches ZONE ACTIVATE/QUERY in both its
// 16-byte (fixed LBA-width) and 32-byte (Variable Length CDB) forms
// into ActivateRealms, and returns the marshalled result to the
// initiator as data-in. The zone type to activate to is not
// carried directly in the CDB: it is the type of the domain named by
// the CDB's domain ID field, per ZDr2 5.2.102.2.2 (zbc_zone_activate's
// "new_type = d->type" step in original_source/file_dhsmr.c).
func EmulateZoneActivate(cmd *SCSICmd, query bool, cdbLen int) (SCSIResponse, error) {
	d := cmd.device

	// The NOZSRC bit lets the initiator override the zone count the
	// activation covers; when it's clear (the common case), the count
	// comes from the device's own default rather than the CDB, which
	// ActivateRealms already treats a zero nrZonesInRange as: activate
	// exactly the one realm addressed by the start LBA.
	var domainID int
	var all, nozsrc bool
	var lba uint64
	var nrZones uint32
	var allocLen uint32
	if cdbLen == 32 {
		all = cmd.GetCDB(10)&0x80 != 0
		nozsrc = cmd.GetCDB(10)&0x40 != 0
		domainID = int(cmd.GetCDB(11))
		lba = getU64(cmd.cdb[12:20])
		allocLen = getU32(cmd.cdb[28:32])
		if nozsrc {
			nrZones = getU32(cmd.cdb[20:24])
		}
	} else {
		all = cmd.GetCDB(2)&0x80 != 0
		nozsrc = cmd.GetCDB(2)&0x40 != 0
		domainID = int(cmd.GetCDB(2) & 0x3f)
		var lba8 [8]byte
		copy(lba8[2:], cmd.cdb[3:9])
		lba = getU48(lba8)
		allocLen = getU32(cmd.cdb[9:13])
		if nozsrc {
			nrZones = uint32(getU16(cmd.cdb[13:15]))
		}
	}

	if domainID < 0 || domainID >= len(d.Domains.Domains) {
		return cmd.RespondError(ErrInvalidFieldInCDB()), nil
	}
	newType := d.Domains.Domains[domainID].Type

	result, err := d.ActivateRealms(lba, nrZones, newType, all, query)
	if err != nil {
		if se, ok := err.(*SenseError); ok {
			return cmd.RespondError(se), nil
		}
		return cmd.TargetFailure(), nil
	}
	// An activation prerequisite failure is reported in the result
	// payload's error bits, not as a sense error: the command still
	// completes with GOOD status.
	out := result.Marshal()
	if uint32(len(out)) > allocLen {
		out = out[:allocLen]
	}
	cmd.Write(out)
	return cmd.Ok(), nil
}
