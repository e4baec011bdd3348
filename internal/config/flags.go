package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags are the command-line overrides. Only flags the user set are
// applied.
type Flags struct {
	fs *pflag.FlagSet

	config      string
	debug       bool
	address     string
	port        int
	timeout     time.Duration
	scale       float32
	bakeMods    bool
	bakeXform   bool
	autoSync    bool
	level       int
	logFormat   string
	metricsAddr string
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.config, "config", "c", "", "Path to config file")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.address, "address", "", "Receiver address")
	fs.IntVarP(&f.port, "port", "p", 0, "Receiver port")
	fs.DurationVar(&f.timeout, "timeout", 0, "Receiver timeout")
	fs.Float32Var(&f.scale, "scale", 0, "Scale factor")
	fs.BoolVar(&f.bakeMods, "bake-modifiers", false, "Send evaluated geometry")
	fs.BoolVar(&f.bakeXform, "bake-transform", false, "Fold world transforms into points")
	fs.BoolVar(&f.autoSync, "auto-sync", false, "Enable auto sync")
	fs.IntVar(&f.level, "zstd-level", 0, "Cache compression level")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (console or json)")
	fs.StringVar(&f.metricsAddr, "metrics-address", "", "Serve Prometheus metrics on this address")
	return f
}

// ConfigPath returns the explicit config path if provided via --config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.config
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	changed := func(name string) bool { return f.fs.Changed(name) }

	if f.debug {
		cfg.Logging.Level = "debug"
	}
	if changed("address") {
		cfg.Server.Address = f.address
	}
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("timeout") {
		cfg.Server.Timeout = f.timeout
	}
	if changed("scale") {
		cfg.Sync.ScaleFactor = f.scale
	}
	if changed("bake-modifiers") {
		cfg.Sync.BakeModifiers = f.bakeMods
	}
	if changed("bake-transform") {
		cfg.Sync.BakeTransform = f.bakeXform
	}
	if changed("auto-sync") {
		cfg.Sync.AutoSync = f.autoSync
	}
	if changed("zstd-level") {
		cfg.Cache.ZstdCompressionLevel = f.level
	}
	if changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if changed("metrics-address") {
		cfg.Metrics.Address = f.metricsAddr
	}
}
