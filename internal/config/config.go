// Package config handles sync configuration loading and management.
package config

import "time"

// Version is the config schema version this build reads and writes.
const Version = 1

// Config holds all sync settings.
type Config struct {
	Version int           `yaml:"version"`
	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds the receiver connection settings.
type ServerConfig struct {
	Address string        `yaml:"address"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig holds live sync settings.
type SyncConfig struct {
	ScaleFactor     float32 `yaml:"scale_factor"`
	SyncMeshes      bool    `yaml:"sync_meshes"`
	SyncBones       bool    `yaml:"sync_bones"`
	SyncBlendShapes bool    `yaml:"sync_blendshapes"`
	SyncTextures    bool    `yaml:"sync_textures"`
	SyncCameras     bool    `yaml:"sync_cameras"`
	SyncLights      bool    `yaml:"sync_lights"`
	MakeDoubleSided bool    `yaml:"make_double_sided"`
	BakeModifiers   bool    `yaml:"bake_modifiers"`
	BakeTransform   bool    `yaml:"bake_transform"`
	ConvertToMesh   bool    `yaml:"convert_to_mesh"`
	CurvesAsMesh    bool    `yaml:"curves_as_mesh"`

	FrameStep          int     `yaml:"frame_step"`
	TimeScale          float32 `yaml:"time_scale"`
	KeyframeReduction  bool    `yaml:"keyframe_reduction"`
	KeepFlatCurves     bool    `yaml:"keep_flat_curves"`
	ReductionThreshold float32 `yaml:"reduction_threshold"`

	AutoSync         bool          `yaml:"auto_sync"`
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval"`
}

// Cache option values.
const (
	ScopeAll      = "all"
	ScopeSelected = "selected"

	RangeCurrent = "current"
	RangeAll     = "all"
	RangeCustom  = "custom"

	MaterialsNone = "none"
	MaterialsOne  = "one"
	MaterialsAll  = "all"
)

// CacheConfig holds scene cache export settings.
type CacheConfig struct {
	ObjectScope          string `yaml:"object_scope"`
	FrameRange           string `yaml:"frame_range"`
	FrameBegin           int    `yaml:"frame_begin"`
	FrameEnd             int    `yaml:"frame_end"`
	MaterialFrameRange   string `yaml:"material_frame_range"`
	ZstdCompressionLevel int    `yaml:"zstd_compression_level"`
	FlattenHierarchy     bool   `yaml:"flatten_hierarchy"`
	MergeMeshes          bool   `yaml:"merge_meshes"`
	StripNormals         bool   `yaml:"strip_normals"`
	StripTangents        bool   `yaml:"strip_tangents"`
	MaxSegments          int    `yaml:"max_segments"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // console or json
}

// MetricsConfig holds the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: Version,
		Server: ServerConfig{
			Address: "127.0.0.1",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			ScaleFactor:        1,
			SyncMeshes:         true,
			SyncBones:          true,
			SyncBlendShapes:    true,
			SyncTextures:       true,
			SyncCameras:        true,
			SyncLights:         true,
			ConvertToMesh:      true,
			CurvesAsMesh:       true,
			FrameStep:          1,
			TimeScale:          1,
			KeyframeReduction:  true,
			ReductionThreshold: 0.001,
			AutoSyncInterval:   time.Second,
		},
		Cache: CacheConfig{
			ObjectScope:          ScopeAll,
			FrameRange:           RangeAll,
			FrameBegin:           1,
			FrameEnd:             100,
			MaterialFrameRange:   MaterialsOne,
			ZstdCompressionLevel: 3,
			MaxSegments:          8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
