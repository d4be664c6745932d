package zbc

import (
	"fmt"
)

// metaMagic is the four-byte magic stamped at the start of the backing
// file, big-endian 'H' 'Z' 'B' 'C'.
var metaMagic = [4]byte{'H', 'Z', 'B', 'C'}

// headerFixedSize is the byte length of the fixed portion of the
// header (everything up to and including the config string length
// prefix); the config string itself follows, padded to configStringCap.
const headerFixedSize = 4 + 4 + 8 + 1 + 32 + 8 + 8 + 4 + 4 + (4 * domainRecordSize) + 4 + 4 + 4 + 4 + 1 + 1 + 8 + 4 + 4 + 4 + 4 + (4 * zoneListRecordSize) + 4 + 4 + 8 + 8 + 4 + 8 + 8 + 8 + 8 + 4 /* config string length prefix */

const domainRecordSize = 8 + 8 + 8 + 1 + 1 // start, end, nrzones, type, smrside
const zoneListRecordSize = 4 + 4 + 4        // head, tail, size
const configStringCap = 256

// zoneRecordSize is the on-disk size of one Zone record: the original
// C struct is 64 bytes including 36 reserved, and this layout keeps
// the same 64-byte slot (36 bytes of live fields, 28 reserved) so a
// hex dump of the zone array stays comparable in shape, even though
// none of that reserved space is interpreted here.
const zoneRecordSize = 64

// realmRecordSize: 8-byte header (number, current type, can-activate
// bitmask, 2 reserved bytes) plus 4 RealmItems of 16 bytes each. The
// original C struct packs its 4-byte header more tightly with
// bitfields; this layout widens it to 8 bytes so the realm number gets
// a whole 4-byte field and the current type and can-activate mask a
// whole byte each, instead of sharing bits.
const realmRecordSize = 8 + 4*16

// Header is the persisted metadata header. Grounded on struct
// zbc_meta in original_source/file_dhsmr.c; field-for-field it also
// carries the stats counters recovered from that struct (see
// SPEC_FULL.md §3).
type Header struct {
	StructSize   uint32
	FileSize     uint64
	DeviceType   DeviceType
	ProfileName  [32]byte
	PhysCapacity uint64 // LBAs
	RealmSize    uint64 // LBAs
	NrRealms     uint32
	LBASize      uint32

	// LogicalCMRCapacity and LogicalSMRCapacity are derived at format
	// time (logical_cmr_capacity = phys_capacity*100/smr_gain,
	// logical_smr_capacity = phys_capacity) and persisted so callers
	// don't recompute the rescale on every capacity query.
	LogicalCMRCapacity uint64
	LogicalSMRCapacity uint64

	Domains   [maxDomains]ZoneDomain
	NrDomains uint32

	SMRGainPercent uint32 // integer percent, >= 101
	MaxActivation  uint32 // 0 = unlimited
	FSNOZDefault   uint32

	URSWRZ           bool
	RealmsFeatureSet bool

	ZoneSize     uint64 // LBAs, power of two
	NrZones      uint32
	NrConvZones  uint32
	MaxOpenZones uint32
	OptOpenZones uint32

	ImpOpenList   ZoneList
	ExpOpenList   ZoneList
	ClosedList    ZoneList
	SeqActiveList ZoneList

	NrEmptyZones   uint32
	FailedExpOpens uint32
	ReadRuleFails  uint64
	WriteRuleFails uint64

	MaxNonSeqZones  uint32
	SubOptWriteCmds uint64
	CmdsAboveOptLim uint64

	ConfigString string
}

func (h *Header) profileName() string {
	n := 0
	for n < len(h.ProfileName) && h.ProfileName[n] != 0 {
		n++
	}
	return string(h.ProfileName[:n])
}

func (h *Header) setProfileName(name string) {
	var b [32]byte
	copy(b[:], name)
	h.ProfileName = b
}

// metaRegionSize returns the total byte length of header + realm array
// + zone array, rounded up to a 4 KiB page so it can be mapped cleanly.
func metaRegionSize(nrRealms, nrZones uint32) uint64 {
	size := uint64(headerFixedSize+configStringCap) + uint64(nrRealms)*realmRecordSize + uint64(nrZones)*zoneRecordSize
	const page = 4096
	return (size + page - 1) &^ (page - 1)
}

// marshalHeader writes h (but not the realm/zone arrays) into buf,
// which must be at least headerFixedSize+configStringCap bytes.
func marshalHeader(h *Header, buf []byte) {
	off := 0
	copy(buf[off:off+4], metaMagic[:])
	off += 4
	putU32(buf[off:], h.StructSize)
	off += 4
	putU64(buf[off:], h.FileSize)
	off += 8
	buf[off] = byte(h.DeviceType)
	off++
	copy(buf[off:off+32], h.ProfileName[:])
	off += 32
	putU64(buf[off:], h.PhysCapacity)
	off += 8
	putU64(buf[off:], h.RealmSize)
	off += 8
	putU32(buf[off:], h.NrRealms)
	off += 4
	putU32(buf[off:], h.LBASize)
	off += 4
	putU64(buf[off:], h.LogicalCMRCapacity)
	off += 8
	putU64(buf[off:], h.LogicalSMRCapacity)
	off += 8
	for i := 0; i < maxDomains; i++ {
		d := &h.Domains[i]
		putU64(buf[off:], d.StartLBA)
		off += 8
		putU64(buf[off:], d.EndLBA)
		off += 8
		putU64(buf[off:], d.NrZones)
		off += 8
		buf[off] = byte(d.Type)
		off++
		if d.SMRSide {
			buf[off] = 1
		} else {
			buf[off] = 0
		}
		off++
	}
	putU32(buf[off:], h.NrDomains)
	off += 4
	putU32(buf[off:], h.SMRGainPercent)
	off += 4
	putU32(buf[off:], h.MaxActivation)
	off += 4
	putU32(buf[off:], h.FSNOZDefault)
	off += 4
	buf[off] = boolByte(h.URSWRZ)
	off++
	buf[off] = boolByte(h.RealmsFeatureSet)
	off++
	putU64(buf[off:], h.ZoneSize)
	off += 8
	putU32(buf[off:], h.NrZones)
	off += 4
	putU32(buf[off:], h.NrConvZones)
	off += 4
	putU32(buf[off:], h.MaxOpenZones)
	off += 4
	putU32(buf[off:], h.OptOpenZones)
	off += 4
	for _, l := range []*ZoneList{&h.ImpOpenList, &h.ExpOpenList, &h.ClosedList, &h.SeqActiveList} {
		putU32(buf[off:], l.Head)
		off += 4
		putU32(buf[off:], l.Tail)
		off += 4
		putU32(buf[off:], l.Size)
		off += 4
	}
	putU32(buf[off:], h.NrEmptyZones)
	off += 4
	putU32(buf[off:], h.FailedExpOpens)
	off += 4
	putU64(buf[off:], h.ReadRuleFails)
	off += 8
	putU64(buf[off:], h.WriteRuleFails)
	off += 8
	putU32(buf[off:], h.MaxNonSeqZones)
	off += 4
	putU64(buf[off:], h.SubOptWriteCmds)
	off += 8
	putU64(buf[off:], h.CmdsAboveOptLim)
	off += 8

	cs := []byte(h.ConfigString)
	if len(cs) > configStringCap-4 {
		cs = cs[:configStringCap-4]
	}
	putU32(buf[off:], uint32(len(cs)))
	off += 4
	copy(buf[off:], cs)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// unmarshalHeader is the inverse of marshalHeader. Returns an error if
// the magic doesn't match, which the caller treats as "needs format".
func unmarshalHeader(buf []byte) (*Header, error) {
	if len(buf) < headerFixedSize+configStringCap {
		return nil, fmt.Errorf("zbc: metadata buffer too small")
	}
	off := 0
	var magic [4]byte
	copy(magic[:], buf[off:off+4])
	off += 4
	if magic != metaMagic {
		return nil, fmt.Errorf("zbc: bad metadata magic %v", magic)
	}
	h := &Header{}
	h.StructSize = getU32(buf[off:])
	off += 4
	h.FileSize = getU64(buf[off:])
	off += 8
	h.DeviceType = DeviceType(buf[off])
	off++
	copy(h.ProfileName[:], buf[off:off+32])
	off += 32
	h.PhysCapacity = getU64(buf[off:])
	off += 8
	h.RealmSize = getU64(buf[off:])
	off += 8
	h.NrRealms = getU32(buf[off:])
	off += 4
	h.LBASize = getU32(buf[off:])
	off += 4
	h.LogicalCMRCapacity = getU64(buf[off:])
	off += 8
	h.LogicalSMRCapacity = getU64(buf[off:])
	off += 8
	for i := 0; i < maxDomains; i++ {
		d := &h.Domains[i]
		d.StartLBA = getU64(buf[off:])
		off += 8
		d.EndLBA = getU64(buf[off:])
		off += 8
		d.NrZones = getU64(buf[off:])
		off += 8
		d.Type = ZoneType(buf[off])
		off++
		d.SMRSide = buf[off] != 0
		off++
	}
	h.NrDomains = getU32(buf[off:])
	off += 4
	h.SMRGainPercent = getU32(buf[off:])
	off += 4
	h.MaxActivation = getU32(buf[off:])
	off += 4
	h.FSNOZDefault = getU32(buf[off:])
	off += 4
	h.URSWRZ = buf[off] != 0
	off++
	h.RealmsFeatureSet = buf[off] != 0
	off++
	h.ZoneSize = getU64(buf[off:])
	off += 8
	h.NrZones = getU32(buf[off:])
	off += 4
	h.NrConvZones = getU32(buf[off:])
	off += 4
	h.MaxOpenZones = getU32(buf[off:])
	off += 4
	h.OptOpenZones = getU32(buf[off:])
	off += 4
	for _, l := range []*ZoneList{&h.ImpOpenList, &h.ExpOpenList, &h.ClosedList, &h.SeqActiveList} {
		l.Head = getU32(buf[off:])
		off += 4
		l.Tail = getU32(buf[off:])
		off += 4
		l.Size = getU32(buf[off:])
		off += 4
	}
	h.NrEmptyZones = getU32(buf[off:])
	off += 4
	h.FailedExpOpens = getU32(buf[off:])
	off += 4
	h.ReadRuleFails = getU64(buf[off:])
	off += 8
	h.WriteRuleFails = getU64(buf[off:])
	off += 8
	h.MaxNonSeqZones = getU32(buf[off:])
	off += 4
	h.SubOptWriteCmds = getU64(buf[off:])
	off += 8
	h.CmdsAboveOptLim = getU64(buf[off:])
	off += 8

	csLen := getU32(buf[off:])
	off += 4
	if int(csLen) > configStringCap-4 {
		return nil, fmt.Errorf("zbc: corrupt config string length %d", csLen)
	}
	h.ConfigString = string(buf[off : off+int(csLen)])

	return h, nil
}

// marshalRealm/unmarshalRealm and marshalZone/unmarshalZone are used
// by device.go to lay out the variable-length realm and zone arrays
// that follow the fixed header in the backing file.

func marshalRealm(r *Realm, buf []byte) {
	putU32(buf[0:], r.Number)
	buf[4] = byte(r.CurrentType)
	buf[5] = r.CanActivateAs
	// buf[6:8] reserved, left zero.
	off := 8
	for i := 0; i < 4; i++ {
		it := &r.Items[i]
		putU64(buf[off:], it.StartLBA)
		off += 8
		putU32(buf[off:], it.LengthInZones)
		off += 4
		putU32(buf[off:], it.StartZoneIndex)
		off += 4
	}
}

func unmarshalRealm(buf []byte) Realm {
	var r Realm
	r.Number = getU32(buf[0:])
	r.CurrentType = ZoneType(buf[4])
	r.CanActivateAs = buf[5]
	off := 8
	for i := 0; i < 4; i++ {
		it := &r.Items[i]
		it.StartLBA = getU64(buf[off:])
		off += 8
		it.LengthInZones = getU32(buf[off:])
		off += 4
		it.StartZoneIndex = getU32(buf[off:])
		off += 4
	}
	return r
}

func marshalZone(z *Zone, buf []byte) {
	putU64(buf[0:], z.Start)
	putU64(buf[8:], z.Len)
	putU64(buf[16:], z.WP)
	buf[24] = byte(z.Type)
	buf[25] = byte(z.Cond)
	buf[26] = boolByte(z.NonSeq)
	buf[27] = boolByte(z.Reset)
	putU32(buf[28:], z.Prev)
	putU32(buf[32:], z.Next)
	// bytes [36:64] reserved, left zero.
}

func unmarshalZone(buf []byte) Zone {
	var z Zone
	z.Start = getU64(buf[0:])
	z.Len = getU64(buf[8:])
	z.WP = getU64(buf[16:])
	z.Type = ZoneType(buf[24])
	z.Cond = ZoneCond(buf[25])
	z.NonSeq = buf[26] != 0
	z.Reset = buf[27] != 0
	z.Prev = getU32(buf[28:])
	z.Next = getU32(buf[32:])
	return z
}
