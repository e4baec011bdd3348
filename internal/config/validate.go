package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Version == Version, "version %d is not supported (want %d)", c.Version, Version)
	check(c.Server.Address != "", "server.address is empty")
	check(c.Server.Port >= 0 && c.Server.Port <= 65535, "server.port %d out of range", c.Server.Port)
	check(c.Server.Timeout >= 0, "server.timeout is negative")

	check(c.Sync.ScaleFactor > 0, "sync.scale_factor must be positive")
	check(c.Sync.FrameStep >= 1, "sync.frame_step must be at least 1")
	check(c.Sync.TimeScale > 0, "sync.time_scale must be positive")
	check(c.Sync.ReductionThreshold >= 0, "sync.reduction_threshold is negative")
	check(c.Sync.AutoSyncInterval > 0, "sync.auto_sync_interval must be positive")

	check(oneOf(c.Cache.ObjectScope, ScopeAll, ScopeSelected), "cache.object_scope %q", c.Cache.ObjectScope)
	check(oneOf(c.Cache.FrameRange, RangeCurrent, RangeAll, RangeCustom), "cache.frame_range %q", c.Cache.FrameRange)
	check(oneOf(c.Cache.MaterialFrameRange, MaterialsNone, MaterialsOne, MaterialsAll),
		"cache.material_frame_range %q", c.Cache.MaterialFrameRange)
	if c.Cache.FrameRange == RangeCustom {
		check(c.Cache.FrameEnd >= c.Cache.FrameBegin, "cache.frame_end %d before frame_begin %d",
			c.Cache.FrameEnd, c.Cache.FrameBegin)
	}
	check(c.Cache.ZstdCompressionLevel >= 0 && c.Cache.ZstdCompressionLevel <= 22,
		"cache.zstd_compression_level %d out of range", c.Cache.ZstdCompressionLevel)
	check(c.Cache.MaxSegments >= 1, "cache.max_segments must be at least 1")

	check(oneOf(c.Logging.Format, "", "console", "json"), "logging.format %q", c.Logging.Format)
	return multierr.Combine(errs...)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
