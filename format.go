package zbc

import (
	"fmt"
	"os"

	"github.com/prometheus/common/log"
)

// domainLayoutOrder is the personality-determined placement order for
// zone types: SOBR, Conventional, SeqWriteRequired, SeqWritePreferred.
// Grounded on zbc_init_zone_domains in original_source/file_dhsmr.c.
var domainLayoutOrder = []ZoneType{
	ZoneTypeSeqOrBeforeRequired,
	ZoneTypeConventional,
	ZoneTypeSeqWriteRequired,
	ZoneTypeSeqWritePreferred,
}

// FormatDevice lays out domains, realms, zones, and any fault
// injections for profile against the file backing f. It truncates f
// as needed and writes a fresh metadata region.
func FormatDevice(f *os.File, cfg *Config, profile *FeatureProfile) (*Device, error) {
	if cfg.ZoneSizeLBAs == 0 || cfg.ZoneSizeLBAs&(cfg.ZoneSizeLBAs-1) != 0 {
		return nil, fmt.Errorf("zbc: zone size must be a nonzero power of two")
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	physCapacity := uint64(fi.Size()) / uint64(cfg.LBASize)
	// A file that already carries metadata keeps the physical capacity
	// recorded in its header; its size also counts the metadata region.
	prev := make([]byte, headerFixedSize+configStringCap)
	if _, err := f.ReadAt(prev, 0); err == nil {
		if h, err := unmarshalHeader(prev); err == nil && h.LBASize == cfg.LBASize && h.PhysCapacity != 0 {
			physCapacity = h.PhysCapacity
		}
	}
	if physCapacity == 0 {
		// Freshly created empty file: pick a modest default capacity
		// so the device is immediately usable without an explicit
		// preallocation step.
		physCapacity = (1 << 30) / uint64(cfg.LBASize)
	}

	realmSize := cfg.RealmSizeLBAs
	if realmSize == 0 {
		realmSize = cfg.ZoneSizeLBAs
	}
	nrRealms := ceilDiv(physCapacity, realmSize)
	physCapacity = nrRealms * realmSize

	smrGain := cfg.SMRGainPercent
	if smrGain < 101 {
		smrGain = 101
	}

	logicalSMRCapacity := physCapacity
	logicalCMRCapacity := physCapacity * 100 / uint64(smrGain)

	nrCMRZonesPerRealm := (realmSize * 100 / uint64(smrGain)) / cfg.ZoneSizeLBAs
	nrSMRZonesPerRealm := realmSize / cfg.ZoneSizeLBAs
	if nrCMRZonesPerRealm == 0 {
		nrCMRZonesPerRealm = 1
	}
	if nrSMRZonesPerRealm == 0 {
		nrSMRZonesPerRealm = 1
	}

	activeTypes := activeZoneTypes(profile)

	var domains []ZoneDomain
	var lba uint64
	nrConvZones := uint32(0)
	for _, t := range domainLayoutOrder {
		if !containsType(activeTypes, t) {
			continue
		}
		var nrZones uint64
		var smrSide bool
		switch {
		case t == profile.InitialCMRType:
			// The CMR-side type (Conventional for most profiles, SOBR
			// for the ZD_SOBR family) reserves the same per-realm
			// footprint regardless of which ZoneType carries the role.
			nrZones = uint64(cfg.NrConvZones)
			if nrZones == 0 {
				nrZones = nrRealms * nrCMRZonesPerRealm
			}
		default:
			// The SMR-side type, and any extra domain reserved solely
			// so a realm may be activated to it, all share the SMR
			// per-realm zone count.
			nrZones = nrRealms * nrSMRZonesPerRealm
			smrSide = true
		}
		if t == ZoneTypeConventional {
			nrConvZones = uint32(nrZones)
		}
		if nrZones == 0 {
			continue
		}
		start := lba
		end := start + nrZones*cfg.ZoneSizeLBAs - 1
		domains = append(domains, ZoneDomain{
			StartLBA: start,
			EndLBA:   end,
			NrZones:  nrZones,
			Type:     t,
			SMRSide:  smrSide,
		})
		lba = end + 1
		if profile.DomainGap > 0 {
			lba += uint64(profile.DomainGap) * cfg.ZoneSizeLBAs
		}
	}

	if len(domains) == 0 {
		return nil, fmt.Errorf("zbc: profile %s has no active zone types", profile.Name)
	}

	totalLBAs := lba
	nrZonesTotal := totalLBAs / cfg.ZoneSizeLBAs

	nrOpenZones := cfg.MaxOpenZones
	nrSeqZonesForCap := uint32(0)
	for i := range domains {
		if domains[i].Type.IsSeq() || domains[i].Type.IsSobr() {
			nrSeqZonesForCap += uint32(domains[i].NrZones)
		}
	}
	if nrSeqZonesForCap > 0 && nrOpenZones > nrSeqZonesForCap/2 {
		nrOpenZones = nrSeqZonesForCap / 2
		if nrOpenZones == 0 {
			nrOpenZones = 1
		}
	}

	metaSize := metaRegionSize(uint32(nrRealms), uint32(nrZonesTotal))
	totalFileSize := metaSize + totalLBAs*uint64(cfg.LBASize)
	if err := f.Truncate(int64(totalFileSize)); err != nil {
		return nil, err
	}

	store, err := OpenMeta(f, metaSize)
	if err != nil {
		return nil, err
	}

	h := &Header{
		StructSize:         headerFixedSize + configStringCap,
		FileSize:           totalFileSize,
		DeviceType:         profile.DeviceType,
		PhysCapacity:       physCapacity,
		RealmSize:          realmSize,
		NrRealms:           uint32(nrRealms),
		LBASize:            cfg.LBASize,
		LogicalCMRCapacity: logicalCMRCapacity,
		LogicalSMRCapacity: logicalSMRCapacity,
		NrDomains:          uint32(len(domains)),
		SMRGainPercent:     smrGain,
		MaxActivation:      profile.MaxActivationDefault,
		FSNOZDefault:       0,
		URSWRZ:             !cfg.WPCheck,
		RealmsFeatureSet:   profile.RealmsSupported && cfg.RealmsFeatureSet,
		ZoneSize:           cfg.ZoneSizeLBAs,
		NrZones:            uint32(nrZonesTotal),
		NrConvZones:        nrConvZones,
		MaxOpenZones:       nrOpenZones,
		OptOpenZones:       nrOpenZones,
		ImpOpenList:        emptyZoneList(),
		ExpOpenList:        emptyZoneList(),
		ClosedList:         emptyZoneList(),
		SeqActiveList:      emptyZoneList(),
		ConfigString:       cfg.Raw,
	}
	h.setProfileName(profile.Name)
	copy(h.Domains[:], domains)

	d := &Device{
		Store:   store,
		File:    f,
		Meta:    h,
		Profile: profile,
		Config:  *cfg,
	}
	d.Domains.Domains = domains
	d.rebuildTypeToDomain()
	d.rebuildFirstZoneIndex()

	d.Zones.Zones = make([]Zone, nrZonesTotal)
	for i := range d.Zones.Zones {
		d.Zones.Zones[i] = Zone{Type: ZoneTypeGap, Cond: ZoneCondNotWp, WP: NoWP}
	}

	realms, err := initZoneRealms(d, profile, nrRealms, nrCMRZonesPerRealm, nrSMRZonesPerRealm)
	if err != nil {
		store.Close()
		return nil, err
	}
	d.Domains.Realms = realms

	injectFaultZones(d, profile)

	d.rebuildRescaleTables()

	if err := d.Flush(); err != nil {
		store.Close()
		return nil, err
	}

	log.Warnf("zbc: formatted %s as profile %s (%d realms, %d zones)", cfg.Path, profile.Name, nrRealms, nrZonesTotal)
	return d, nil
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// activeZoneTypes derives the set of zone types that need a domain at
// format time: the profile's initial CMR/SMR-side types (every realm
// needs storage for those, realm activation or not) unioned with every
// type a realm may be activated to per the actv_of_* bits
// (CanActivateConv/Sobr/SeqReq/SeqPref). Grounded on zbc_init_zone_domains
// in original_source/file_dhsmr.c, which creates one domain per
// actv_of_* flag set.
func activeZoneTypes(p *FeatureProfile) []ZoneType {
	want := map[ZoneType]bool{
		p.InitialCMRType: true,
		p.InitialSMRType: true,
	}
	if p.CanActivateConv {
		want[ZoneTypeConventional] = true
	}
	if p.CanActivateSobr {
		want[ZoneTypeSeqOrBeforeRequired] = true
	}
	if p.CanActivateSeqReq {
		want[ZoneTypeSeqWriteRequired] = true
	}
	if p.CanActivateSeqPref {
		want[ZoneTypeSeqWritePreferred] = true
	}
	var types []ZoneType
	for _, t := range domainLayoutOrder {
		if want[t] {
			types = append(types, t)
		}
	}
	return types
}

func containsType(types []ZoneType, t ZoneType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// initZoneRealms lays out the realm table and, for each realm's
// currently-active type, sets the corresponding zones' type and
// initial condition; all other type slots for that realm are left
// Inactive. Grounded on zbc_init_zone_realms in
// original_source/file_dhsmr.c.
func initZoneRealms(d *Device, profile *FeatureProfile, nrRealms, nrCMRZonesPerRealm, nrSMRZonesPerRealm uint64) ([]Realm, error) {
	realms := make([]Realm, nrRealms)

	if d.Domains.DomainIDForType(profile.InitialSMRType) < 0 {
		return nil, fmt.Errorf("zbc: profile %s has no domain for its SMR-side type", profile.Name)
	}

	// Every domain this profile laid out (its initial CMR/SMR types
	// plus any extra type a realm may only be activated into) gets a
	// same-sized reserved RealmItem subrange in each realm; only the
	// realm's currently-active type has its zones set up, the rest
	// stay Inactive until a ZONE ACTIVATE targets them.
	cursor := make(map[ZoneType]uint64, len(d.Domains.Domains))

	for i := range realms {
		r := &realms[i]
		r.Number = uint32(i)

		bottomCMR := i < profile.NrBotCmr
		topCMR := uint64(i) >= nrRealms-uint64(profile.NrTopCmr) && profile.NrTopCmr > 0
		// A profile with a single domain (CMR-side and SMR-side types
		// equal, e.g. NON_ZONED) has no second type to fall back to, so
		// its one domain is always active.
		activeConv := bottomCMR || topCMR || profile.InitialCMRType == profile.InitialSMRType

		r.setCanActivate(ZoneTypeConventional, profile.CanActivateConv)
		r.setCanActivate(ZoneTypeSeqWriteRequired, profile.CanActivateSeqReq)
		r.setCanActivate(ZoneTypeSeqWritePreferred, profile.CanActivateSeqPref)
		r.setCanActivate(ZoneTypeSeqOrBeforeRequired, profile.CanActivateSobr)

		for di := range d.Domains.Domains {
			dom := &d.Domains.Domains[di]
			isCMRSide := dom.Type == profile.InitialCMRType

			zonesPerRealm := nrSMRZonesPerRealm
			if isCMRSide {
				zonesPerRealm = nrCMRZonesPerRealm
				if zonesPerRealm == 0 {
					zonesPerRealm = 1
				}
			}

			c := cursor[dom.Type]
			startZoneIdx := dom.FirstZoneIndex + uint32(c)
			item := &r.Items[realmItemMustIndex(dom.Type)]
			item.StartLBA = dom.StartLBA + c*d.Meta.ZoneSize
			item.LengthInZones = uint32(zonesPerRealm)
			item.StartZoneIndex = startZoneIdx

			active := false
			cond := profile.InitialSMRCond
			if isCMRSide {
				active = activeConv
				cond = profile.InitialCMRCond
			} else if dom.Type == profile.InitialSMRType && !activeConv {
				active = true
			}
			if active {
				setZonesActive(d, startZoneIdx, uint32(zonesPerRealm), item.StartLBA, dom.Type, cond, d.Meta.ZoneSize)
				r.CurrentType = dom.Type
			} else {
				setZonesInactive(d, startZoneIdx, uint32(zonesPerRealm), item.StartLBA, dom.Type, d.Meta.ZoneSize)
			}
			cursor[dom.Type] = c + zonesPerRealm
		}
	}

	return realms, nil
}

func realmItemMustIndex(t ZoneType) int {
	i, _ := realmItemIndex(t)
	return i
}

func setZonesActive(d *Device, startIdx, count uint32, startLBA uint64, t ZoneType, cond ZoneCond, zoneSize uint64) {
	lba := startLBA
	for i := uint32(0); i < count; i++ {
		z := &d.Zones.Zones[startIdx+i]
		z.Type = t
		z.Cond = cond
		z.Start = lba
		z.Len = zoneSize
		setInitialWP(d, z)
		if list := d.listForCond(cond, t); list != nil {
			d.Zones.PushTail(list, startIdx+i)
		}
		if cond == ZoneCondEmpty {
			d.Meta.NrEmptyZones++
		}
		lba += zoneSize
	}
}

func setZonesInactive(d *Device, startIdx, count uint32, startLBA uint64, t ZoneType, zoneSize uint64) {
	lba := startLBA
	for i := uint32(0); i < count; i++ {
		z := &d.Zones.Zones[startIdx+i]
		z.Type = t
		z.Cond = ZoneCondInactive
		z.Start = lba
		z.Len = zoneSize
		z.WP = NoWP
		lba += zoneSize
	}
}

// injectFaultZones marks read-only/offline zones (or, when the profile
// sets ReadOnlyOnly/OfflineOnly, entire realms) per the profile's
// fault-injection fields. Grounded on zbc_inject_zone_cond in
// original_source/file_dhsmr.c.
func injectFaultZones(d *Device, p *FeatureProfile) {
	if p.ReadOnlyOnly {
		for i := 0; i < p.NrRdonlyZones && i < len(d.Domains.Realms); i++ {
			markRealmZones(d, i, ZoneCondReadOnly)
		}
		return
	}
	if p.OfflineOnly {
		for i := 0; i < p.NrOfflineZones && i < len(d.Domains.Realms); i++ {
			markRealmZones(d, i, ZoneCondOffline)
		}
		return
	}
	for i := 0; i < p.NrRdonlyZones; i++ {
		markSingleZone(d, p.RdonlyOffset+i, ZoneCondReadOnly)
	}
	for i := 0; i < p.NrOfflineZones; i++ {
		markSingleZone(d, p.OfflineOffset+i, ZoneCondOffline)
	}
}

func markRealmZones(d *Device, realmIdx int, cond ZoneCond) {
	r := &d.Domains.Realms[realmIdx]
	for i := range r.Items {
		item := &r.Items[i]
		if item.LengthInZones == 0 {
			continue
		}
		for z := uint32(0); z < item.LengthInZones; z++ {
			idx := item.StartZoneIndex + z
			zone := &d.Zones.Zones[idx]
			d.UnlinkByCondition(idx)
			zone.Cond = cond
			zone.WP = NoWP
		}
	}
}

func markSingleZone(d *Device, zoneIdx int, cond ZoneCond) {
	if zoneIdx < 0 || zoneIdx >= len(d.Zones.Zones) {
		return
	}
	idx := uint32(zoneIdx)
	d.UnlinkByCondition(idx)
	z := &d.Zones.Zones[idx]
	z.Cond = cond
	z.WP = NoWP
}

// rebuildRescaleTables computes the cmr<->smr per-realm zone-count
// conversion tables using the rescale formula below.
func (d *Device) rebuildRescaleTables() {
	cmrMax := d.Meta.RealmSize * 100 / uint64(d.Meta.SMRGainPercent) / d.Meta.ZoneSize
	smrMax := d.Meta.RealmSize / d.Meta.ZoneSize
	if cmrMax == 0 {
		cmrMax = 1
	}
	if smrMax == 0 {
		smrMax = 1
	}
	d.CMRToSMR = make([]uint64, cmrMax+1)
	for i := uint64(1); i <= cmrMax; i++ {
		d.CMRToSMR[i] = rescale(i, cmrMax, smrMax)
	}
	d.SMRToCMR = make([]uint64, smrMax+1)
	for i := uint64(1); i <= smrMax; i++ {
		d.SMRToCMR[i] = rescale(i, smrMax, cmrMax)
	}
}

// rescale converts a zone count between CMR-space and SMR-space
// scales, preserving relative position between the two maxima:
// rescale(val, old_max, new_max) = round((new_max-1)*(val-old_max)/(old_max-1) + new_max),
// clamped to [1, new_max].
func rescale(val, oldMax, newMax uint64) uint64 {
	if oldMax <= 1 {
		return newMax
	}
	res := float64(newMax-1)*(float64(val)-float64(oldMax))/float64(oldMax-1) + float64(newMax)
	r := int64(res + 0.5)
	if r < 1 {
		r = 1
	}
	if uint64(r) > newMax {
		r = int64(newMax)
	}
	return uint64(r)
}
