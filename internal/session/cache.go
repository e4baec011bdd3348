package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/internal/extract"
	"github.com/Faultbox/meshbridge/internal/graph"
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/internal/metrics"
	"github.com/Faultbox/meshbridge/pkg/scene"
	"github.com/Faultbox/meshbridge/pkg/scenecache"
)

// ObjectScope selects the objects written to a cache.
type ObjectScope uint8

const (
	ScopeAll ObjectScope = iota
	ScopeSelected
)

// FrameRange selects the frames written to a cache.
type FrameRange uint8

const (
	RangeCurrent FrameRange = iota
	RangeAll
	RangeCustom
)

// MaterialFrames selects the frames that carry materials.
type MaterialFrames uint8

const (
	MaterialsNone MaterialFrames = iota
	MaterialsOne
	MaterialsAll
)

// CacheSettings configures a cache export.
type CacheSettings struct {
	Objects    ObjectScope
	Range      FrameRange
	FrameBegin int // RangeCustom only
	FrameEnd   int
	FrameStep  int
	Materials  MaterialFrames
	Writer     scenecache.Settings
}

// DefaultCacheSettings exports every object over the whole timeline.
func DefaultCacheSettings() CacheSettings {
	return CacheSettings{
		Range:     RangeAll,
		FrameStep: 1,
		Materials: MaterialsOne,
		Writer:    scenecache.DefaultSettings(),
	}
}

// Frames lists the document frames the settings cover.
func (cs CacheSettings) Frames(info host.FrameInfo) []int {
	switch cs.Range {
	case RangeCurrent:
		return []int{info.Current}
	case RangeCustom:
		return extract.SampleFrames(cs.FrameBegin, cs.FrameEnd, cs.FrameStep)
	default:
		return extract.SampleFrames(info.Start, info.End, cs.FrameStep)
	}
}

// CacheExporter writes host animation to scene cache files. It keeps its
// own graph so it never disturbs the live session state.
type CacheExporter struct {
	doc      host.Scene
	settings Settings
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewCacheExporter creates an exporter for doc.
func NewCacheExporter(doc host.Scene, settings Settings, log *zap.Logger, m *metrics.Metrics) *CacheExporter {
	if log == nil {
		log = zap.NewNop()
	}
	if settings.ScaleFactor == 0 {
		settings.ScaleFactor = 1
	}
	return &CacheExporter{doc: doc, settings: settings, log: log, metrics: m}
}

// Export writes the frames selected by cs to path and returns the number
// of frames written. The document is returned to its current frame.
func (x *CacheExporter) Export(ctx context.Context, path string, cs CacheSettings) (int, error) {
	info := x.doc.Frames()
	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}
	timeScale := x.settings.Animation.TimeScale
	if timeScale == 0 {
		timeScale = 1
	}

	w, err := scenecache.Create(path, cs.Writer, x.log.Named("scenecache"))
	if err != nil {
		return 0, err
	}
	defer x.doc.SetFrame(info.Current)

	g := graph.New(x.log.Named("graph"))
	mats := graph.NewMaterialRegistry()
	mats.SetTextures(x.settings.SyncTextures)
	walker := extract.NewWalker(g, mats, x.settings.Extract, x.log.Named("extract"))

	frames := cs.Frames(info)
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			w.Close()
			return i, err
		}
		x.doc.SetFrame(f)
		s, err := x.frame(g, mats, walker, cs, i == 0)
		if err != nil {
			w.Close()
			return i, fmt.Errorf("frame %d: %w", f, err)
		}
		s.Settings = scene.Settings{ScaleFactor: 1, FrameRate: fps}
		t := float32(f-frames[0]) / fps * timeScale
		if err := w.Add(ctx, s, t); err != nil {
			w.Close()
			return i, fmt.Errorf("frame %d: %w", f, err)
		}
		x.metrics.CacheFrame()
	}
	if err := w.Close(); err != nil {
		return len(frames), fmt.Errorf("closing cache: %w", err)
	}
	x.log.Info("cache written",
		zap.String("path", path),
		zap.Int("frames", len(frames)))
	return len(frames), nil
}

// frame extracts the current document state into a fresh scene.
func (x *CacheExporter) frame(g *graph.Graph, mats *graph.MaterialRegistry, w *extract.Walker, cs CacheSettings, first bool) (*scene.Scene, error) {
	g.Reset()
	w.Begin()
	materials := mats.Update(x.doc.Materials())

	for _, obj := range x.doc.Objects() {
		if cs.Objects == ScopeSelected && !obj.Selected() {
			continue
		}
		if _, err := w.ExportObject(obj, true); err != nil {
			return nil, err
		}
	}

	s := &scene.Scene{Entities: g.Entities()}
	switch {
	case cs.Materials == MaterialsAll, cs.Materials == MaterialsOne && first:
		s.Materials = materials
	}
	s.ApplyScale(x.settings.ScaleFactor)
	return s, nil
}
