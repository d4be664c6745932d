package zbc

import (
	"fmt"
	"strconv"
	"strings"
)

// Config is the parsed form of the `dhsmr/[opt1[/opt2]...][@]<path>`
// configuration string. The walker itself is a plain split loop, the
// same shape as a `"go-tcmu//%s"`-style device-config string handler,
// generalized to the richer dhsmr option set.
type Config struct {
	Path string

	ProfileName string

	LBASize          uint32 // bytes
	ZoneSizeLBAs     uint64
	NrConvZones      uint32
	MaxOpenZones     uint32
	RealmSizeLBAs    uint64
	SMRGainPercent   uint32 // integer percent, >= 101
	MaxActivation    uint32
	WPCheck          bool // true => URSWRZ off (reads above WP fail)
	RealmsFeatureSet bool

	Raw string
}

// defaultConfig mirrors the original's default_dev_config constants:
// 512-byte LBAs, 256 MiB zones, no conventional zones, 128 max-open,
// 1 GiB realms, 125% SMR gain, unlimited max-activation, wp-check on,
// realms feature set advertised.
func defaultConfig() Config {
	return Config{
		LBASize:          512,
		ZoneSizeLBAs:     (256 * 1024 * 1024) / 512,
		NrConvZones:      0,
		MaxOpenZones:     128,
		RealmSizeLBAs:    (1024 * 1024 * 1024) / 512,
		SMRGainPercent:   125,
		MaxActivation:    0,
		WPCheck:          true,
		RealmsFeatureSet: true,
		ProfileName:      "ZONE_DOM",
	}
}

// ParseConfigString parses a `dhsmr/[opt1[/opt2]...][@]<path>`
// configuration string into a Config.
func ParseConfigString(s string) (*Config, error) {
	cfg := defaultConfig()
	cfg.Raw = s

	rest := s
	if strings.HasPrefix(rest, "dhsmr/") {
		rest = rest[len("dhsmr/"):]
	} else if strings.HasPrefix(rest, "dhsmr") {
		rest = strings.TrimPrefix(rest, "dhsmr")
		rest = strings.TrimPrefix(rest, "/")
	}

	var opts []string
	for rest != "" && rest[0] != '@' && rest[0] != '/' {
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			break
		}
		opts = append(opts, rest[:i])
		rest = rest[i+1:]
	}
	cfg.Path = strings.TrimPrefix(rest, "@")

	for _, opt := range opts {
		if opt == "" {
			continue
		}
		if err := applyOption(&cfg, opt); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func applyOption(cfg *Config, opt string) error {
	switch {
	case strings.HasPrefix(opt, "type-"):
		cfg.ProfileName = strings.TrimPrefix(opt, "type-")
	case opt == "model-HA":
		cfg.ProfileName = "HA_ZONED"
	case opt == "model-HM":
		cfg.ProfileName = "HM_ZONED"
	case strings.HasPrefix(opt, "lba-"):
		v, err := strconv.Atoi(strings.TrimPrefix(opt, "lba-"))
		if err != nil || (v != 512 && v != 4096) {
			return fmt.Errorf("zbc: invalid lba- option %q", opt)
		}
		cfg.LBASize = uint32(v)
	case strings.HasPrefix(opt, "zsize-"):
		n, err := parseSizeOption(strings.TrimPrefix(opt, "zsize-"))
		if err != nil {
			return err
		}
		cfg.ZoneSizeLBAs = n / uint64(cfg.LBASize)
		if cfg.ZoneSizeLBAs == 0 || cfg.ZoneSizeLBAs&(cfg.ZoneSizeLBAs-1) != 0 {
			return fmt.Errorf("zbc: zone size must be a power of two number of LBAs, got %d", cfg.ZoneSizeLBAs)
		}
	case strings.HasPrefix(opt, "conv-"):
		v, err := strconv.Atoi(strings.TrimPrefix(opt, "conv-"))
		if err != nil {
			return err
		}
		cfg.NrConvZones = uint32(v)
	case strings.HasPrefix(opt, "open-"):
		v, err := strconv.Atoi(strings.TrimPrefix(opt, "open-"))
		if err != nil || v <= 0 {
			return fmt.Errorf("zbc: invalid open- option %q", opt)
		}
		cfg.MaxOpenZones = uint32(v)
	case strings.HasPrefix(opt, "rsize-"):
		n, err := parseSizeOption(strings.TrimPrefix(opt, "rsize-"))
		if err != nil {
			return err
		}
		cfg.RealmSizeLBAs = n / uint64(cfg.LBASize)
	case strings.HasPrefix(opt, "sgain-"):
		f, err := strconv.ParseFloat(strings.TrimPrefix(opt, "sgain-"), 64)
		if err != nil || f < 1.01 {
			return fmt.Errorf("zbc: invalid sgain- option %q", opt)
		}
		cfg.SMRGainPercent = uint32(f * 100)
	case strings.HasPrefix(opt, "maxact-"):
		v, err := strconv.Atoi(strings.TrimPrefix(opt, "maxact-"))
		if err != nil {
			return err
		}
		cfg.MaxActivation = uint32(v)
	case strings.HasPrefix(opt, "wpcheck-"):
		v := strings.TrimPrefix(opt, "wpcheck-")
		cfg.WPCheck = v == "y"
	case strings.HasPrefix(opt, "realms-"):
		v := strings.TrimPrefix(opt, "realms-")
		cfg.RealmsFeatureSet = v == "y"
	default:
		return fmt.Errorf("zbc: unrecognized configuration option %q", opt)
	}
	return nil
}

// parseSizeOption parses an `<N>[K]` size suffix into bytes: N MiB, or
// N KiB when suffixed with K.
func parseSizeOption(s string) (uint64, error) {
	if strings.HasSuffix(s, "K") {
		v, err := strconv.ParseUint(strings.TrimSuffix(s, "K"), 10, 64)
		if err != nil {
			return 0, err
		}
		return v * 1024, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return v * 1024 * 1024, nil
}
