// Package nkftlconfig holds the NKFTL-specific tunables from spec.md §6:
// data-group size, log-group cap, GC watermarks, stripe unit, and region
// size. Loading these from a file or environment is explicitly out of
// scope (spec.md §1); callers build a Config directly and validate it.
package nkftlconfig

import "fmt"

// StripeInfinity is the sentinel StripeSize meaning "fill one channel's
// current block before round-robining to the next", the Go analogue of
// the config value "infinity" described in spec.md §3 and §9.
const StripeInfinity = -1

// Config holds the nkftl.* configuration keys from spec.md §6.
type Config struct {
	// NBlocksInDataGroup is N: the number of logical blocks per data group.
	NBlocksInDataGroup int
	// MaxBlocksInLogGroup is K: the max log blocks a data group may hold.
	MaxBlocksInLogGroup int
	// GCThresholdRatio is the high watermark ratio (0 < low < high < 1).
	GCThresholdRatio float64
	// GCLowThresholdRatio is the low watermark ratio.
	GCLowThresholdRatio float64
	// ProvisionRatio is over-provisioning, recorded for callers that size
	// the device from a target user-visible capacity; the core does not
	// use it directly.
	ProvisionRatio float64
	// StripeSize is the stripe-unit size in pages, or StripeInfinity.
	StripeSize int
	// NPagesPerRegion is R, the region-lock granularity. Zero means
	// "default to PagesPerBlock" and is resolved by NewConfig.
	NPagesPerRegion int
	// FreezeDetectorEnabled gates the freeze-detector branch of the GC
	// decider (spec.md §4.6, §9 Open Question). Default false.
	FreezeDetectorEnabled bool
}

// NewConfig validates cfg against a given PagesPerBlock (used to resolve
// NPagesPerRegion's default) and returns a copy with defaults filled in.
func NewConfig(cfg Config, pagesPerBlock int) (Config, error) {
	if cfg.NBlocksInDataGroup < 1 {
		return Config{}, fmt.Errorf("nkftlconfig: n_blocks_in_data_group must be >= 1, got %d", cfg.NBlocksInDataGroup)
	}
	if cfg.MaxBlocksInLogGroup < 1 {
		return Config{}, fmt.Errorf("nkftlconfig: max_blocks_in_log_group must be >= 1, got %d", cfg.MaxBlocksInLogGroup)
	}
	if !(cfg.GCLowThresholdRatio > 0 && cfg.GCLowThresholdRatio < cfg.GCThresholdRatio && cfg.GCThresholdRatio < 1) {
		return Config{}, fmt.Errorf("nkftlconfig: require 0 < GC_low_threshold_ratio (%v) < GC_threshold_ratio (%v) < 1",
			cfg.GCLowThresholdRatio, cfg.GCThresholdRatio)
	}
	if cfg.StripeSize != StripeInfinity && cfg.StripeSize < 1 {
		return Config{}, fmt.Errorf("nkftlconfig: stripe_size must be >= 1 or StripeInfinity, got %d", cfg.StripeSize)
	}
	if cfg.NPagesPerRegion == 0 {
		cfg.NPagesPerRegion = pagesPerBlock
	}
	if cfg.NPagesPerRegion < 1 {
		return Config{}, fmt.Errorf("nkftlconfig: n_pages_per_region must be >= 1, got %d", cfg.NPagesPerRegion)
	}
	return cfg, nil
}
