package zbc

import "github.com/coreos/go-zbc/scsi"

// ZoneType is a zone's fixed type, assigned at format time and never
// changed except by realm activation.
type ZoneType uint8

const (
	ZoneTypeConventional        ZoneType = scsi.ZoneTypeConventional
	ZoneTypeSeqWriteRequired    ZoneType = scsi.ZoneTypeSeqWriteRequired
	ZoneTypeSeqWritePreferred   ZoneType = scsi.ZoneTypeSeqWritePreferred
	ZoneTypeSeqOrBeforeRequired ZoneType = scsi.ZoneTypeSeqOrBeforeRequired
	ZoneTypeGap                 ZoneType = scsi.ZoneTypeGap
)

func (t ZoneType) IsSeq() bool {
	return t == ZoneTypeSeqWriteRequired || t == ZoneTypeSeqOrBeforeRequired
}

func (t ZoneType) IsSobr() bool { return t == ZoneTypeSeqOrBeforeRequired }
func (t ZoneType) IsSeqPref() bool { return t == ZoneTypeSeqWritePreferred }
func (t ZoneType) IsConv() bool  { return t == ZoneTypeConventional }
func (t ZoneType) IsGap() bool   { return t == ZoneTypeGap }

// ZoneCond is a zone's current condition, mutated by the state machine
// and by realm activation.
type ZoneCond uint8

const (
	ZoneCondNotWp    ZoneCond = scsi.ZoneCondNotWp
	ZoneCondEmpty    ZoneCond = scsi.ZoneCondEmpty
	ZoneCondImpOpen  ZoneCond = scsi.ZoneCondImpOpen
	ZoneCondExpOpen  ZoneCond = scsi.ZoneCondExpOpen
	ZoneCondClosed   ZoneCond = scsi.ZoneCondClosed
	ZoneCondInactive ZoneCond = scsi.ZoneCondInactive
	ZoneCondReadOnly ZoneCond = scsi.ZoneCondReadOnly
	ZoneCondFull     ZoneCond = scsi.ZoneCondFull
	ZoneCondOffline  ZoneCond = scsi.ZoneCondOffline
)

func (c ZoneCond) IsOpen() bool { return c == ZoneCondImpOpen || c == ZoneCondExpOpen }

// DeviceType is the outer device personality family, reported in the
// Zoned Block Device Characteristics VPD page.
type DeviceType uint8

const (
	DevTypeNonZoned    DeviceType = scsi.DevTypeNonZoned
	DevTypeHostManaged DeviceType = scsi.DevTypeHostManaged
	DevTypeHostAware   DeviceType = scsi.DevTypeHostAware
	DevTypeZoneDomains DeviceType = scsi.DevTypeZoneDomains
)

// FeatureProfile is a static, named device personality: everything the
// formatter needs to lay out domains, realms, zones and any injected
// faulty zones for one (device_type, model) pair, drawn from a closed
// set of such pairs. The field list here plus the table below are
// recovered from zbc_dev_features / zbc_opt_feat[] in
// original_source/file_dhsmr.c, rounding out the named scenario seeds
// with the rest of the original's profile family.
type FeatureProfile struct {
	Name       string
	DeviceType DeviceType

	// Initial type/condition assigned to the CMR-side and SMR-side
	// zones of a realm at format time.
	InitialCMRType ZoneType
	InitialCMRCond ZoneCond
	InitialSMRType ZoneType
	InitialSMRCond ZoneCond

	// Which types a realm on this profile may be activated to.
	CanActivateConv    bool
	CanActivateSobr    bool
	CanActivateSeqReq  bool
	CanActivateSeqPref bool

	// Whether MODE SELECT may change these ZD control-page fields.
	CanChangeURSWRZ       bool
	CanChangeFSNOZ        bool
	CanChangeMaxActivation bool

	RealmsSupported bool

	// Fault injection: a count of read-only / offline zones injected
	// starting at a fixed index into the device's zone array, once for
	// the whole device; the offset is not applied per domain.
	NrRdonlyZones  int
	RdonlyOffset   int
	NrOfflineZones int
	OfflineOffset  int

	// ReadOnlyOnly/OfflineOnly switch fault injection to whole realms
	// (not just a handful of zones) made read-only or offline at format
	// time. No profile in the table sets them; the "*_FAULTY" profiles
	// use the per-zone counts above.
	ReadOnlyOnly bool
	OfflineOnly  bool

	DomainGap            int
	MaxActivationDefault uint32

	// NrBotCmr / NrTopCmr: how many realms at the bottom/top of the
	// SMR domain keep a permanently-active CMR subrange (the
	// "1CMR_BOT"/"1CMR_TOP"/"2PCNT_BT" family of profiles).
	NrBotCmr int
	NrTopCmr int
}

// Profiles is the full named feature-profile table, keyed by the name
// used in the `type-<name>` config option and by MUTATE's target
// argument. Recovered from zbc_opt_feat[] in file_dhsmr.c; includes
// ZONE_DOM, ZD_1CMR_BOT, HM_ZONED_FAULTY, ZD_SOBR_SWP and NON_ZONED by
// name, all present below.
var Profiles = map[string]*FeatureProfile{
	"NON_ZONED": {
		Name:           "NON_ZONED",
		DeviceType:     DevTypeNonZoned,
		InitialCMRType: ZoneTypeConventional,
		InitialCMRCond: ZoneCondNotWp,
		InitialSMRType: ZoneTypeConventional,
		InitialSMRCond: ZoneCondNotWp,
	},
	"HM_ZONED": {
		Name:                 "HM_ZONED",
		DeviceType:           DevTypeHostManaged,
		InitialCMRType:       ZoneTypeConventional,
		InitialCMRCond:       ZoneCondNotWp,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		MaxActivationDefault: 0,
	},
	"HM_ZONED_1PCNT_B": {
		Name:           "HM_ZONED_1PCNT_B",
		DeviceType:     DevTypeHostManaged,
		InitialCMRType: ZoneTypeConventional,
		InitialCMRCond: ZoneCondNotWp,
		InitialSMRType: ZoneTypeSeqWriteRequired,
		InitialSMRCond: ZoneCondEmpty,
		NrBotCmr:       1,
	},
	"HM_ZONED_2PCNT_BT": {
		Name:           "HM_ZONED_2PCNT_BT",
		DeviceType:     DevTypeHostManaged,
		InitialCMRType: ZoneTypeConventional,
		InitialCMRCond: ZoneCondNotWp,
		InitialSMRType: ZoneTypeSeqWriteRequired,
		InitialSMRCond: ZoneCondEmpty,
		NrBotCmr:       1,
		NrTopCmr:       1,
	},
	"HM_ZONED_FAULTY": {
		Name:           "HM_ZONED_FAULTY",
		DeviceType:     DevTypeHostManaged,
		InitialCMRType: ZoneTypeConventional,
		InitialCMRCond: ZoneCondNotWp,
		InitialSMRType: ZoneTypeSeqWriteRequired,
		InitialSMRCond: ZoneCondEmpty,
		NrRdonlyZones:  2,
		RdonlyOffset:   1,
		NrOfflineZones: 1,
		OfflineOffset:  4,
	},
	"HA_ZONED": {
		Name:               "HA_ZONED",
		DeviceType:         DevTypeHostAware,
		InitialCMRType:     ZoneTypeConventional,
		InitialCMRCond:     ZoneCondNotWp,
		InitialSMRType:     ZoneTypeSeqWritePreferred,
		InitialSMRCond:     ZoneCondEmpty,
		CanActivateSeqPref: true,
	},
	"HA_ZONED_1PCNT_B": {
		Name:               "HA_ZONED_1PCNT_B",
		DeviceType:         DevTypeHostAware,
		InitialCMRType:     ZoneTypeConventional,
		InitialCMRCond:     ZoneCondNotWp,
		InitialSMRType:     ZoneTypeSeqWritePreferred,
		InitialSMRCond:     ZoneCondEmpty,
		CanActivateSeqPref: true,
		NrBotCmr:           1,
	},
	"HA_ZONED_2PCNT_BT": {
		Name:               "HA_ZONED_2PCNT_BT",
		DeviceType:         DevTypeHostAware,
		InitialCMRType:     ZoneTypeConventional,
		InitialCMRCond:     ZoneCondNotWp,
		InitialSMRType:     ZoneTypeSeqWritePreferred,
		InitialSMRCond:     ZoneCondEmpty,
		CanActivateSeqPref: true,
		NrBotCmr:           1,
		NrTopCmr:           1,
	},
	"ZONE_DOM": {
		Name:                   "ZONE_DOM",
		DeviceType:             DevTypeZoneDomains,
		InitialCMRType:         ZoneTypeConventional,
		InitialCMRCond:         ZoneCondNotWp,
		InitialSMRType:         ZoneTypeSeqWriteRequired,
		InitialSMRCond:         ZoneCondEmpty,
		CanActivateConv:        true,
		CanActivateSeqReq:      true,
		CanChangeURSWRZ:        true,
		CanChangeFSNOZ:         true,
		CanChangeMaxActivation: true,
		RealmsSupported:        true,
		DomainGap:              3,
		MaxActivationDefault:   64,
	},
	"ZD_1CMR_BOT": {
		Name:                 "ZD_1CMR_BOT",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeConventional,
		InitialCMRCond:       ZoneCondNotWp,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateConv:      true,
		CanActivateSeqReq:    true,
		CanActivateSeqPref:   true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
		NrBotCmr:             1,
	},
	"ZD_1CMR_BOT_SWP": {
		Name:                 "ZD_1CMR_BOT_SWP",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeConventional,
		InitialCMRCond:       ZoneCondNotWp,
		InitialSMRType:       ZoneTypeSeqWritePreferred,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateConv:      true,
		CanActivateSeqPref:   true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
		NrBotCmr:             1,
	},
	"ZD_1CMR_BOT_TOP": {
		Name:                 "ZD_1CMR_BOT_TOP",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeConventional,
		InitialCMRCond:       ZoneCondNotWp,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateConv:      true,
		CanActivateSeqReq:    true,
		CanActivateSeqPref:   true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
		NrBotCmr:             1,
		NrTopCmr:             1,
	},
	"ZD_1CMR_BOT_BT_SMR": {
		Name:                 "ZD_1CMR_BOT_BT_SMR",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeConventional,
		InitialCMRCond:       ZoneCondNotWp,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateConv:      true,
		CanActivateSeqReq:    true,
		CanActivateSeqPref:   true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
		NrBotCmr:             1,
		NrTopCmr:             1,
	},
	"ZD_SOBR": {
		Name:                 "ZD_SOBR",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeSeqOrBeforeRequired,
		InitialCMRCond:       ZoneCondFull,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateSobr:      true,
		CanActivateSeqReq:    true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
	},
	"ZD_SOBR_SWP": {
		Name:                 "ZD_SOBR_SWP",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeSeqOrBeforeRequired,
		InitialCMRCond:       ZoneCondFull,
		InitialSMRType:       ZoneTypeSeqWritePreferred,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateSobr:      true,
		CanActivateSeqPref:   true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
	},
	"ZD_SOBR_EMPTY": {
		Name:                 "ZD_SOBR_EMPTY",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeSeqOrBeforeRequired,
		InitialCMRCond:       ZoneCondEmpty,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateSobr:      true,
		CanActivateSeqReq:    true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
	},
	"ZD_1SOBR_BT_TOP": {
		Name:                 "ZD_1SOBR_BT_TOP",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeSeqOrBeforeRequired,
		InitialCMRCond:       ZoneCondEmpty,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateSobr:      true,
		CanActivateSeqReq:    true,
		CanActivateSeqPref:   true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
		NrBotCmr:             1,
		NrTopCmr:             1,
	},
	"ZD_BARE_BONE": {
		Name:              "ZD_BARE_BONE",
		DeviceType:        DevTypeZoneDomains,
		InitialCMRType:    ZoneTypeConventional,
		InitialCMRCond:    ZoneCondNotWp,
		InitialSMRType:    ZoneTypeSeqWriteRequired,
		InitialSMRCond:    ZoneCondEmpty,
		CanActivateConv:   true,
		CanActivateSeqReq: true,
		RealmsSupported:   false,
	},
	"ZD_FAULTY": {
		Name:                 "ZD_FAULTY",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeConventional,
		InitialCMRCond:       ZoneCondNotWp,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateConv:      true,
		CanActivateSeqReq:    true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
		NrRdonlyZones:        2,
		RdonlyOffset:         1,
		NrOfflineZones:       1,
		OfflineOffset:        4,
	},
	"ZD_SOBR_FAULTY": {
		Name:                 "ZD_SOBR_FAULTY",
		DeviceType:           DevTypeZoneDomains,
		InitialCMRType:       ZoneTypeSeqOrBeforeRequired,
		InitialCMRCond:       ZoneCondEmpty,
		InitialSMRType:       ZoneTypeSeqWriteRequired,
		InitialSMRCond:       ZoneCondEmpty,
		CanActivateSobr:      true,
		CanActivateSeqReq:    true,
		RealmsSupported:      true,
		MaxActivationDefault: 64,
		NrBotCmr:             1,
		NrTopCmr:             1,
		NrRdonlyZones:        2,
		RdonlyOffset:         7,
		NrOfflineZones:       2,
		OfflineOffset:        11,
	},
}

// ProfileByModelShortcut resolves the "model-HA"/"model-HM" config
// compatibility shortcuts to a default profile name.
func ProfileByModelShortcut(model string) (*FeatureProfile, bool) {
	switch model {
	case "HA":
		return Profiles["HA_ZONED"], true
	case "HM":
		return Profiles["HM_ZONED"], true
	default:
		return nil, false
	}
}
