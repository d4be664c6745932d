package zbc

import "github.com/coreos/go-zbc/scsi"

// This file implements ZONE ACTIVATE and ZONE QUERY: validating a
// contiguous run of realms against the exact precondition/error-bit
// ordering in zbc_chk_can_actv_realm, then either applying the
// activation (ZONE ACTIVATE) or leaving state untouched and reporting
// what would happen (ZONE QUERY). Grounded on zbc_zone_activate,
// zbc_chk_can_actv_realm and zbc_fill_actv_record in
// original_source/file_dhsmr.c.

// ActivationResultHeader mirrors the fixed portion of the ZONE
// ACTIVATE/QUERY parameter data, ahead of the per-realm descriptors.
type ActivationResultHeader struct {
	LengthAvailable   uint32
	LengthReturned    uint32
	NrRealmsActivated uint32
	NrZonesActivated  uint32

	ErrorBits  byte
	StatusBits byte

	// NrZonesActivatableSMR / NrZonesActivatableCMR are only meaningful when
	// StatusBits has ActvStatusNzpValid set.
	NrZonesActivatableSMR uint64
	NrZonesActivatableCMR uint64

	// Ziwup ("zone ID with unmet prerequisites") is the start LBA
	// of the zone that failed an activation precondition, and is only
	// meaningful when StatusBits has ActvStatusZiwupValid set.
	Ziwup uint64
}

// ActivationDescriptor is one 24-byte per-realm-subrange record,
// exactly the layout zbc_fill_actv_record writes: byte0 zone type,
// byte1 (cond<<4), byte2 domain id, bytes 8:16 BE64 zone count, bytes
// 16:24 BE64 start LBA.
type ActivationDescriptor struct {
	ZoneType  ZoneType
	ZoneCond  ZoneCond
	DomainID  byte
	ZoneCount uint64
	StartLBA  uint64
}

func (a *ActivationDescriptor) marshal(buf []byte) {
	buf[0] = byte(a.ZoneType)
	buf[1] = byte(a.ZoneCond) << 4
	buf[2] = a.DomainID
	var b8 [8]byte
	putU64(b8[:], a.ZoneCount)
	copy(buf[8:16], b8[:])
	putU64(b8[:], a.StartLBA)
	copy(buf[16:24], b8[:])
}

const activationDescriptorSize = 24

// ActivationResult is the fully assembled ZONE ACTIVATE/QUERY output.
type ActivationResult struct {
	Header      ActivationResultHeader
	Descriptors []ActivationDescriptor
}

// activationDisallowedSwap reports the two direct family swaps
// zbc_chk_can_actv_realm forbids outright, regardless of CanActivateAs:
// Conventional<->SOBR and SeqWriteRequired<->SeqWritePreferred.
func activationDisallowedSwap(from, to ZoneType) bool {
	if from == to {
		return false
	}
	pair := func(a, b ZoneType) bool { return (from == a && to == b) || (from == b && to == a) }
	return pair(ZoneTypeConventional, ZoneTypeSeqOrBeforeRequired) ||
		pair(ZoneTypeSeqWriteRequired, ZoneTypeSeqWritePreferred)
}

// checkRealmActivatable validates realm r's current zones against the
// preconditions for activating to newType, in the exact order
// zbc_chk_can_actv_realm applies them, returning the error-bit that
// should be OR'd into the result header on failure (0 on success) and,
// when a specific zone caused the failure, that zone's start LBA
// (ziwup).
func checkRealmActivatable(d *Device, r *Realm, newType ZoneType, isAllVariant bool) (byte, uint64) {
	if activationDisallowedSwap(r.CurrentType, newType) {
		return scsi.ActvErrUnsupp, 0
	}
	if !r.CanActivateTo(newType) {
		return scsi.ActvErrUnsupp, 0
	}

	curItem, ok := r.ItemForType(r.CurrentType)
	if !ok {
		return scsi.ActvErrRealmAlign, 0
	}
	newItem, ok := r.ItemForType(newType)
	if !ok {
		return scsi.ActvErrRealmAlign, 0
	}
	if curItem.StartLBA%d.Meta.ZoneSize != 0 || newItem.StartLBA%d.Meta.ZoneSize != 0 {
		return scsi.ActvErrRealmAlign, 0
	}

	sawConventional := false
	for z := uint32(0); z < curItem.LengthInZones; z++ {
		zone := &d.Zones.Zones[curItem.StartZoneIndex+z]
		switch zone.Cond {
		case ZoneCondEmpty, ZoneCondInactive:
			// always acceptable on the deactivation side
		case ZoneCondNotWp:
			if isAllVariant || !zone.Type.IsConv() {
				return scsi.ActvErrNotEmpty, zone.Start
			}
			sawConventional = true
		default:
			if isAllVariant {
				return scsi.ActvErrNotEmpty, zone.Start
			}
			// Single-range activation additionally tolerates a wholly
			// Conventional deactivation-side subrange.
			if !zone.Type.IsConv() {
				return scsi.ActvErrNotEmpty, zone.Start
			}
			sawConventional = true
		}
	}
	_ = sawConventional

	for z := uint32(0); z < newItem.LengthInZones; z++ {
		zone := &d.Zones.Zones[newItem.StartZoneIndex+z]
		switch zone.Cond {
		case ZoneCondInactive, ZoneCondEmpty, ZoneCondReadOnly, ZoneCondOffline:
			// acceptable
		case ZoneCondNotWp:
			if !zone.Type.IsConv() {
				return scsi.ActvErrNotInactive, zone.Start
			}
		default:
			return scsi.ActvErrNotInactive, zone.Start
		}
	}

	return 0, 0
}

// applyRealmActivation mutates realm r's active subrange from its
// current type to newType: the old subrange's zones go Inactive, the
// new subrange's zones are reinitialized per newType's initial
// condition, and r.CurrentType is updated.
func applyRealmActivation(d *Device, r *Realm, newType ZoneType) {
	curItem, _ := r.ItemForType(r.CurrentType)
	if curItem != nil {
		for z := uint32(0); z < curItem.LengthInZones; z++ {
			idx := curItem.StartZoneIndex + z
			zone := &d.Zones.Zones[idx]
			d.UnlinkByCondition(idx)
			zone.Cond = ZoneCondInactive
			zone.WP = NoWP
		}
	}

	newItem := &r.Items[realmItemMustIndex(newType)]
	initCond := ZoneCondEmpty
	if newType.IsConv() {
		initCond = ZoneCondNotWp
	}
	for z := uint32(0); z < newItem.LengthInZones; z++ {
		idx := newItem.StartZoneIndex + z
		zone := &d.Zones.Zones[idx]
		zone.Type = newType
		zone.Cond = initCond
		setInitialWP(d, zone)
		if list := d.listForCond(initCond, newType); list != nil {
			d.Zones.PushTail(list, idx)
		}
		if initCond == ZoneCondEmpty {
			d.Meta.NrEmptyZones++
		}
	}

	r.CurrentType = newType
}

// ActivateRealms runs ZONE ACTIVATE (query=false) or ZONE QUERY
// (query=true) over the realms spanning [startLBA, startLBA+nrZones*
// zoneSize), transactionally: every realm in the range is checked
// first, and only if all pass does any realm actually mutate:
// pre-validated, then applied atomically or not at all, as opposed to
// the state-machine ops' first-failure-aborts rule.
func (d *Device) ActivateRealms(startLBA uint64, nrZonesInRange uint32, newType ZoneType, all bool, query bool) (*ActivationResult, error) {
	domIdx, err := d.Domains.DomainOf(startLBA)
	if err != nil {
		return nil, ErrLBAOutOfRange()
	}
	realmIdx, err := d.Domains.RealmContaining(domIdx, startLBA, true)
	if err != nil {
		return nil, ErrInvalidFieldInCDB()
	}

	var realmIndices []int
	if all {
		for i := realmIdx; i < len(d.Domains.Realms); i++ {
			realmIndices = append(realmIndices, i)
		}
	} else {
		zoneSize := d.Meta.ZoneSize
		itemsPerRealm := d.Meta.RealmSize / zoneSize
		if itemsPerRealm == 0 {
			itemsPerRealm = 1
		}
		nrRealmsInRange := (uint64(nrZonesInRange) + itemsPerRealm - 1) / itemsPerRealm
		if nrRealmsInRange == 0 {
			nrRealmsInRange = 1
		}
		for i := uint64(0); i < nrRealmsInRange && realmIdx+int(i) < len(d.Domains.Realms); i++ {
			realmIndices = append(realmIndices, realmIdx+int(i))
		}
	}

	result := &ActivationResult{}
	checkBits := make([]byte, len(realmIndices))
	var firstErrBits byte
	var firstZiwup uint64
	failedAny := false
	for i, ri := range realmIndices {
		bits, ziwup := checkRealmActivatable(d, &d.Domains.Realms[ri], newType, all)
		checkBits[i] = bits
		if bits != 0 {
			failedAny = true
			if firstErrBits == 0 {
				firstErrBits = bits
				firstZiwup = ziwup
			}
		}
	}

	if failedAny {
		result.Header.ErrorBits = firstErrBits
		result.Header.Ziwup = firstZiwup
		result.Header.StatusBits |= scsi.ActvStatusZiwupValid
		return result, nil
	}

	var applied []int
	for i, ri := range realmIndices {
		if checkBits[i] == 0 {
			applied = append(applied, ri)
		}
	}

	oldTypes := make([]ZoneType, len(applied))
	for i, ri := range applied {
		oldTypes[i] = d.Domains.Realms[ri].CurrentType
	}

	if !query {
		for _, ri := range applied {
			applyRealmActivation(d, &d.Domains.Realms[ri], newType)
		}
	}

	// Two full passes over the applied realms: every "first" (smaller
	// start LBA) descriptor across all realms, then every "second"
	// descriptor, per zbc_activate_realm's exact output ordering.
	domainID := byte(d.Domains.DomainIDForType(newType))
	for _, ri := range applied {
		item := &d.Domains.Realms[ri].Items[realmItemMustIndex(newType)]
		result.Descriptors = append(result.Descriptors, ActivationDescriptor{
			ZoneType:  newType,
			ZoneCond:  ZoneCondEmpty,
			DomainID:  domainID,
			ZoneCount: uint64(item.LengthInZones),
			StartLBA:  item.StartLBA,
		})
	}
	for i, ri := range applied {
		oldType := oldTypes[i]
		item, ok := d.Domains.Realms[ri].ItemForType(oldType)
		if !ok {
			continue
		}
		result.Descriptors = append(result.Descriptors, ActivationDescriptor{
			ZoneType:  oldType,
			ZoneCond:  ZoneCondInactive,
			DomainID:  byte(d.Domains.DomainIDForType(oldType)),
			ZoneCount: uint64(item.LengthInZones),
			StartLBA:  item.StartLBA,
		})
	}
	if n := len(applied); len(result.Descriptors) == 2*n {
		for i := 0; i < n; i++ {
			if result.Descriptors[n+i].StartLBA < result.Descriptors[i].StartLBA {
				result.Descriptors[i], result.Descriptors[n+i] = result.Descriptors[n+i], result.Descriptors[i]
			}
		}
	}

	result.Header.NrRealmsActivated = uint32(len(applied))
	var totalZones uint64
	for _, desc := range result.Descriptors {
		totalZones += desc.ZoneCount
	}
	result.Header.NrZonesActivated = uint32(totalZones)
	result.Header.LengthAvailable = uint32(len(result.Descriptors)) * activationDescriptorSize
	result.Header.LengthReturned = result.Header.LengthAvailable
	if len(applied) > 0 {
		result.Header.StatusBits |= scsi.ActvStatusActivated
	}

	return result, nil
}

// Marshal serializes the activation result into the wire format ZONE
// ACTIVATE/QUERY(16/32) return: a fixed header followed by
// len(Descriptors) 24-byte records.
func (r *ActivationResult) Marshal() []byte {
	buf := make([]byte, 32+len(r.Descriptors)*activationDescriptorSize)
	putU32(buf[0:], r.Header.LengthAvailable)
	putU32(buf[4:], r.Header.LengthReturned)
	putU32(buf[8:], r.Header.NrRealmsActivated)
	putU32(buf[12:], r.Header.NrZonesActivated)
	buf[16] = r.Header.ErrorBits
	buf[17] = r.Header.StatusBits
	putU32(buf[18:], uint32(r.Header.NrZonesActivatableSMR))
	putU32(buf[22:], uint32(r.Header.NrZonesActivatableCMR))
	if r.Header.StatusBits&scsi.ActvStatusZiwupValid != 0 {
		var b8 [8]byte
		putU48(&b8, r.Header.Ziwup)
		copy(buf[26:32], b8[2:8])
	}
	off := 32
	for i := range r.Descriptors {
		r.Descriptors[i].marshal(buf[off:])
		off += activationDescriptorSize
	}
	return buf
}
