package session

import (
	"github.com/Faultbox/meshbridge/internal/config"
	"github.com/Faultbox/meshbridge/internal/extract"
	"github.com/Faultbox/meshbridge/pkg/scenecache"
)

// FromConfig maps the sync and cache sections of cfg onto session and
// cache exporter settings. cfg is expected to be validated.
func FromConfig(cfg *config.Config) (Settings, CacheSettings) {
	sc := cfg.Sync
	ex := extract.DefaultSettings()
	ex.SyncMeshes = sc.SyncMeshes
	ex.SyncBones = sc.SyncBones
	ex.SyncBlendShapes = sc.SyncBlendShapes
	ex.SyncCameras = sc.SyncCameras
	ex.SyncLights = sc.SyncLights
	ex.MakeDoubleSided = sc.MakeDoubleSided
	ex.BakeModifiers = sc.BakeModifiers
	ex.BakeTransform = sc.BakeTransform
	ex.ConvertToMesh = sc.ConvertToMesh
	ex.CurvesAsMesh = sc.CurvesAsMesh

	s := Settings{
		Extract: ex,
		Animation: extract.AnimationSettings{
			FrameStep:          sc.FrameStep,
			TimeScale:          sc.TimeScale,
			KeyframeReduction:  sc.KeyframeReduction,
			KeepFlatCurves:     sc.KeepFlatCurves,
			ReductionThreshold: sc.ReductionThreshold,
		},
		ScaleFactor:      sc.ScaleFactor,
		SyncTextures:     sc.SyncTextures,
		AutoSyncInterval: sc.AutoSyncInterval,
	}

	cc := cfg.Cache
	cs := CacheSettings{
		FrameBegin: cc.FrameBegin,
		FrameEnd:   cc.FrameEnd,
		FrameStep:  sc.FrameStep,
		Writer: scenecache.Settings{
			Level:            cc.ZstdCompressionLevel,
			MaxSegments:      cc.MaxSegments,
			QueueSize:        scenecache.DefaultSettings().QueueSize,
			FlattenHierarchy: cc.FlattenHierarchy,
			MergeMeshes:      cc.MergeMeshes,
			StripNormals:     cc.StripNormals,
			StripTangents:    cc.StripTangents,
		},
	}
	if cc.ObjectScope == config.ScopeSelected {
		cs.Objects = ScopeSelected
	}
	switch cc.FrameRange {
	case config.RangeCurrent:
		cs.Range = RangeCurrent
	case config.RangeCustom:
		cs.Range = RangeCustom
	default:
		cs.Range = RangeAll
	}
	switch cc.MaterialFrameRange {
	case config.MaterialsNone:
		cs.Materials = MaterialsNone
	case config.MaterialsAll:
		cs.Materials = MaterialsAll
	default:
		cs.Materials = MaterialsOne
	}
	return s, cs
}
