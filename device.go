package zbc

import (
	"fmt"
	"os"

	"github.com/prometheus/common/log"
)

// Device ties together the backing store, the zone and domain stores,
// and the persisted header into a single owning handle accessed
// through one POD region. It is the receiver for the state-machine,
// activation, and read/write operations, and is what a SCSICmdHandler
// wraps.
type Device struct {
	Store *BackingStore
	File  *os.File

	Meta    *Header
	Zones   ZoneStore
	Domains DomainStore

	Profile *FeatureProfile
	Config  Config

	// CMRToSMR / SMRToCMR are the rescale lookup tables computed at
	// format time, indexed [1..max].
	CMRToSMR []uint64
	SMRToCMR []uint64

	sense deferredSense
}

func (d *Device) logf(format string, args ...interface{}) { log.Warnf(format, args...) }

// Open opens or creates the backing file at cfg.Path, validating any
// existing metadata against cfg and the resolved profile. If the file
// is new or its metadata fails validation, it is (re)formatted from
// scratch.
func Open(cfg *Config) (*Device, error) {
	profile, err := resolveProfile(cfg.ProfileName)
	if err != nil {
		return nil, err
	}

	f, err := OpenOrCreateFile(cfg.Path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	// A brand-new (empty) file always needs a format; an existing one
	// is opened at its current metadata-region size and validated.
	if fi.Size() > 0 {
		if d, err := tryOpenExisting(f, cfg, profile); err == nil {
			return d, nil
		} else {
			log.Warnf("zbc: %s: metadata invalid or absent (%v), reformatting", cfg.Path, err)
		}
	}

	return FormatDevice(f, cfg, profile)
}

func resolveProfile(name string) (*FeatureProfile, error) {
	if p, ok := Profiles[name]; ok {
		return p, nil
	}
	if p, ok := ProfileByModelShortcut(name); ok {
		return p, nil
	}
	return nil, fmt.Errorf("zbc: unknown device profile %q", name)
}

func tryOpenExisting(f *os.File, cfg *Config, profile *FeatureProfile) (*Device, error) {
	// Probe the header with a small mapping first, since the full
	// metadata region size depends on fields inside the header itself
	// (NrRealms, NrZones).
	const probeSize = 4096
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < probeSize {
		return nil, fmt.Errorf("file too small to contain a header")
	}
	probe, err := OpenMeta(f, probeSize)
	if err != nil {
		return nil, err
	}
	h, err := unmarshalHeader(probe.Bytes())
	probe.Close()
	if err != nil {
		return nil, err
	}

	metaSize := metaRegionSize(h.NrRealms, h.NrZones)
	store, err := OpenMeta(f, metaSize)
	if err != nil {
		return nil, err
	}
	h2, err := unmarshalHeader(store.Bytes())
	if err != nil {
		store.Close()
		return nil, err
	}

	d := &Device{Store: store, File: f, Meta: h2, Profile: profile, Config: *cfg}
	if err := d.loadArrays(); err != nil {
		store.Close()
		return nil, err
	}
	if err := Validate(d); err != nil {
		store.Close()
		return nil, err
	}
	d.rebuildRescaleTables()
	return d, nil
}

// loadArrays unmarshals the realm and zone arrays that follow the
// header in the mmap'd metadata region.
func (d *Device) loadArrays() error {
	buf := d.Store.Bytes()
	off := headerFixedSize + configStringCap

	d.Domains.Realms = make([]Realm, d.Meta.NrRealms)
	for i := range d.Domains.Realms {
		d.Domains.Realms[i] = unmarshalRealm(buf[off:])
		off += realmRecordSize
	}

	d.Zones.Zones = make([]Zone, d.Meta.NrZones)
	for i := range d.Zones.Zones {
		d.Zones.Zones[i] = unmarshalZone(buf[off:])
		off += zoneRecordSize
	}

	d.Domains.Domains = append([]ZoneDomain(nil), d.Meta.Domains[:d.Meta.NrDomains]...)
	d.rebuildTypeToDomain()
	d.rebuildFirstZoneIndex()
	return nil
}

// rebuildFirstZoneIndex assigns each domain the array index of its
// first zone, assuming Domains is ordered ascending by StartLBA (true
// by construction: format.go lays domains out in that order and
// nothing ever reorders them afterward).
func (d *Device) rebuildFirstZoneIndex() {
	var idx uint32
	for i := range d.Domains.Domains {
		d.Domains.Domains[i].FirstZoneIndex = idx
		idx += uint32(d.Domains.Domains[i].NrZones)
	}
}

func (d *Device) rebuildTypeToDomain() {
	for i := range d.Domains.TypeToDomain {
		d.Domains.TypeToDomain[i] = -1
	}
	for i := range d.Domains.Domains {
		t := d.Domains.Domains[i].Type
		if int(t) < len(d.Domains.TypeToDomain) {
			d.Domains.TypeToDomain[t] = int8(i)
		}
	}
}

// Flush marshals the in-memory header, realm array, and zone array
// back into the mmap'd metadata region and syncs it to disk. Nothing
// is durable until this runs.
func (d *Device) Flush() error {
	buf := d.Store.Bytes()
	marshalHeader(d.Meta, buf)
	off := headerFixedSize + configStringCap
	for i := range d.Domains.Realms {
		marshalRealm(&d.Domains.Realms[i], buf[off:])
		off += realmRecordSize
	}
	for i := range d.Zones.Zones {
		marshalZone(&d.Zones.Zones[i], buf[off:])
		off += zoneRecordSize
	}
	return d.Store.Sync()
}

// Close flushes and unmaps the metadata region, then closes the file.
func (d *Device) Close() error {
	if err := d.Flush(); err != nil {
		log.Errorf("zbc: flush on close: %v", err)
	}
	if err := d.Store.Close(); err != nil {
		return err
	}
	return d.File.Close()
}

// LBASize returns the device's LBA size in bytes.
func (d *Device) LBASize() uint32 { return d.Meta.LBASize }

// LogicalCapacity returns the last valid LBA, adjusted for device
// type: CMR-space capacity for Zone Domains devices, whole-device
// capacity otherwise.
func (d *Device) LogicalCapacity() uint64 {
	if d.Meta.DeviceType == DeviceType(DevTypeZoneDomains) {
		return d.Meta.LogicalCMRCapacity - 1
	}
	return d.Meta.PhysCapacity - 1
}

// ZoneAt returns the index and pointer of the zone containing lba.
// Grounded on zbc_get_zone in original_source/file_dhsmr.c: locate the
// domain, then shift by the (power-of-two) zone size to find the
// zone's position within it.
func (d *Device) ZoneAt(lba uint64) (uint32, *Zone, error) {
	domIdx, err := d.Domains.DomainOf(lba)
	if err != nil {
		return 0, nil, err
	}
	dom := &d.Domains.Domains[domIdx]
	within := (lba - dom.StartLBA) / d.Meta.ZoneSize
	idx := dom.FirstZoneIndex + uint32(within)
	if idx >= uint32(len(d.Zones.Zones)) {
		return 0, nil, fmt.Errorf("zbc: zone index %d out of range", idx)
	}
	return idx, &d.Zones.Zones[idx], nil
}

// dataFileOffset computes the physical file offset of logical LBA lba.
// Gaps and inter-domain stretches collapse in the backing file, so a
// domain's logical range maps to a contiguous physical region
// positioned right after the metadata region, ordered by ascending
// domain start LBA.
func (d *Device) dataFileOffset(lba uint64) (int64, error) {
	domIdx, err := d.Domains.DomainOf(lba)
	if err != nil {
		return 0, err
	}
	metaSize := metaRegionSize(d.Meta.NrRealms, d.Meta.NrZones)
	var physBefore uint64
	for i := 0; i < domIdx; i++ {
		dom := &d.Domains.Domains[i]
		physBefore += dom.EndLBA + 1 - dom.StartLBA
	}
	dom := &d.Domains.Domains[domIdx]
	within := lba - dom.StartLBA
	return int64(metaSize) + int64((physBefore+within)*uint64(d.Meta.LBASize)), nil
}
