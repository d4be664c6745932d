package zbc

import "fmt"

// maxDomains bounds the domain array at four: up to four zone domains,
// one per active zone type.
const maxDomains = 4

// ZoneDomain is a maximal contiguous LBA range all of whose zones
// share a single type. Grounded on struct zbc_zone_domain in
// original_source/file_dhsmr.c.
type ZoneDomain struct {
	StartLBA uint64
	EndLBA   uint64
	NrZones  uint64
	Type     ZoneType
	SMRSide  bool // flags bit: this domain sits on the SMR (rescaled) side

	// FirstZoneIndex is the index into the device's zone array of this
	// domain's first zone; not persisted (recomputed on load as the
	// running sum of the preceding domains' NrZones), used to
	// turn an LBA lookup into an O(1) array index.
	FirstZoneIndex uint32
}

func (d *ZoneDomain) contains(lba uint64) bool {
	return lba >= d.StartLBA && lba <= d.EndLBA
}

// RealmItem is one type-specific subrange of a realm. A zero-length
// item marks a type the realm's domain layout does not support.
type RealmItem struct {
	StartLBA       uint64
	LengthInZones  uint32
	StartZoneIndex uint32
}

// Realm is a cross-domain striping unit: one RealmItem per supported
// zone type, exactly one of which is active at a time. Grounded on
// struct zbc_zone_realm in original_source/file_dhsmr.c.
type Realm struct {
	Number      uint32
	CurrentType ZoneType

	// CanActivateAs is a bitmask; bit (t-1) says whether this realm
	// may be activated to ZoneType(t).
	CanActivateAs byte

	// Items is indexed by ZoneType - 1 (Conventional=0 .. SOBR=3).
	Items [4]RealmItem
}

func realmItemIndex(t ZoneType) (int, bool) {
	switch t {
	case ZoneTypeConventional, ZoneTypeSeqWriteRequired, ZoneTypeSeqWritePreferred, ZoneTypeSeqOrBeforeRequired:
		return int(t) - 1, true
	default:
		return 0, false
	}
}

// ItemForType returns the RealmItem for zone type t in O(1), or false
// if t isn't a supported slot for this realm.
func (r *Realm) ItemForType(t ZoneType) (*RealmItem, bool) {
	i, ok := realmItemIndex(t)
	if !ok {
		return nil, false
	}
	item := &r.Items[i]
	if item.LengthInZones == 0 {
		return item, false
	}
	return item, true
}

// CanActivateTo reports whether bit (t-1) of CanActivateAs is set.
func (r *Realm) CanActivateTo(t ZoneType) bool {
	i, ok := realmItemIndex(t)
	if !ok {
		return false
	}
	return r.CanActivateAs&(1<<uint(i)) != 0
}

func (r *Realm) setCanActivate(t ZoneType, yes bool) {
	i, ok := realmItemIndex(t)
	if !ok {
		return
	}
	if yes {
		r.CanActivateAs |= 1 << uint(i)
	} else {
		r.CanActivateAs &^= 1 << uint(i)
	}
}

// DomainStore holds the up-to-four zone domains and the realm table,
// plus the zone-type -> domain-id mapping computed once at format
// time. Grounded on the domain/realm lookup helpers in
// original_source/file_dhsmr.c (zbc_domain_id, zbc_get_zone_domain,
// zbc_get_zone_realm).
type DomainStore struct {
	Domains      []ZoneDomain
	Realms       []Realm
	TypeToDomain [5]int8 // indexed by ZoneType, -1 if that type has no domain
}

// DomainOf returns the domain index containing lba, or an error if lba
// falls outside every domain (should not happen for an in-range LBA).
func (ds *DomainStore) DomainOf(lba uint64) (int, error) {
	for i := range ds.Domains {
		if ds.Domains[i].contains(lba) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("zbc: lba %d is not within any zone domain", lba)
}

// DomainIDForType returns the domain index that hosts zones of type t,
// or -1 if the profile in use never lays out that type.
func (ds *DomainStore) DomainIDForType(t ZoneType) int {
	if t < 1 || int(t) >= len(ds.TypeToDomain) {
		return -1
	}
	return int(ds.TypeToDomain[t])
}

// RealmSize is the number of realms; realm i's items are ds.Realms[i].
func (ds *DomainStore) RealmSize() int { return len(ds.Realms) }

// RealmContaining does a binary search over the realm array within
// domain domIdx for the realm whose subrange of the domain's zone type
// contains lba (if requireStartAligned, lba must also be that
// subrange's StartLBA), whether or not that type is the realm's
// current one. Realms within a
// domain are laid out in ascending LBA order by construction, so a
// binary search over the domain's realm-item start LBAs is valid.
func (ds *DomainStore) RealmContaining(domIdx int, lba uint64, requireStartAligned bool) (int, error) {
	dom := &ds.Domains[domIdx]
	lo, hi := 0, len(ds.Realms)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		r := &ds.Realms[mid]
		item, ok := r.ItemForType(dom.Type)
		if !ok {
			return -1, fmt.Errorf("zbc: realm %d has no subrange for domain type %v", mid, dom.Type)
		}
		end := item.StartLBA + uint64(item.LengthInZones)*zoneSizeFromDomain(dom)
		switch {
		case lba < item.StartLBA:
			hi = mid - 1
		case lba >= end:
			lo = mid + 1
		default:
			if requireStartAligned && lba != item.StartLBA {
				return -1, fmt.Errorf("zbc: lba %d is not realm-aligned", lba)
			}
			return mid, nil
		}
	}
	return -1, fmt.Errorf("zbc: lba %d falls between realms", lba)
}

func zoneSizeFromDomain(dom *ZoneDomain) uint64 {
	if dom.NrZones == 0 {
		return 0
	}
	return (dom.EndLBA + 1 - dom.StartLBA) / dom.NrZones
}
