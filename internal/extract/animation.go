package extract

import (
	"fmt"

	"github.com/Faultbox/meshbridge/internal/graph"
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// AnimationSettings controls timeline sampling.
type AnimationSettings struct {
	FrameStep          int
	TimeScale          float32
	KeyframeReduction  bool
	KeepFlatCurves     bool
	ReductionThreshold float32
}

// DefaultAnimationSettings samples every frame and reduces keys.
func DefaultAnimationSettings() AnimationSettings {
	return AnimationSettings{
		FrameStep:          1,
		TimeScale:          1,
		KeyframeReduction:  true,
		ReductionThreshold: 0.001,
	}
}

// SampleFrames lists the frames from start to end by step. The end frame
// is always included.
func SampleFrames(start, end, step int) []int {
	if step < 1 {
		step = 1
	}
	if end < start {
		return []int{start}
	}
	var frames []int
	for f := start; f < end; f += step {
		frames = append(frames, f)
	}
	return append(frames, end)
}

// AnimationSampler records exported objects over the document timeline.
type AnimationSampler struct {
	Settings AnimationSettings
	Extract  Settings
	Resolver graph.Resolver
}

// Sample steps the document through its frame range and returns one clip
// with an animation per target. The document is returned to its current
// frame afterwards.
func (s AnimationSampler) Sample(doc host.Scene, targets []Exported) (*scene.AnimationClip, error) {
	info := doc.Frames()
	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}
	timeScale := s.Settings.TimeScale
	if timeScale == 0 {
		timeScale = 1
	}

	recs := make([]*recorder, 0, len(targets))
	for _, t := range targets {
		rec, err := s.newRecorder(t)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	defer doc.SetFrame(info.Current)
	for _, f := range SampleFrames(info.Start, info.End, s.Settings.FrameStep) {
		doc.SetFrame(f)
		t := float32(f-info.Start) / fps * timeScale
		for _, r := range recs {
			r.record(t)
		}
	}

	clip := &scene.AnimationClip{Name: "Default", FrameRate: fps}
	for _, r := range recs {
		for _, a := range r.anims {
			if s.Settings.KeyframeReduction {
				a.Reduce(s.Settings.ReductionThreshold, s.Settings.KeepFlatCurves)
			}
			if !a.Empty() {
				clip.Animations = append(clip.Animations, a)
			}
		}
	}
	return clip, nil
}

// recorder samples one exported object, plus its bones for armatures.
type recorder struct {
	obj       host.Object
	kind      scene.EntityKind
	bake      bool
	anims     []*scene.Animation
	main      *scene.Animation
	bonePaths []string
	shapes    bool
}

func (s AnimationSampler) newRecorder(t Exported) (*recorder, error) {
	r := &recorder{obj: t.Object, kind: t.Entity.Kind, bake: s.Extract.BakeTransform}
	r.main = &scene.Animation{Path: t.Entity.Path, Kind: t.Entity.Kind}
	r.anims = append(r.anims, r.main)

	if t.Object.Kind() == host.ObjectArmature && s.Extract.SyncBones && !s.Extract.BakeModifiers {
		bones := t.Object.Bones()
		for _, b := range bones {
			p, err := graph.BonePath(t.Entity.Path, bones, b.Name)
			if err != nil {
				return nil, fmt.Errorf("sampling %s: %w", t.Entity.Path, err)
			}
			r.bonePaths = append(r.bonePaths, p)
			r.anims = append(r.anims, &scene.Animation{Path: p, Kind: scene.KindBone})
		}
	}
	r.shapes = t.Entity.Kind == scene.KindMesh && s.Extract.SyncBlendShapes && !s.Extract.BakeModifiers
	return r, nil
}

func (r *recorder) record(t float32) {
	local := r.obj.Local()
	if r.bake {
		if r.kind == scene.KindCamera || r.kind == scene.KindLight {
			local = scene.TransformFromMatrix(r.obj.World())
		} else {
			local = scene.IdentityTransform()
		}
	}
	recordTransform(r.main, t, local, r.obj.Visible())

	switch r.kind {
	case scene.KindCamera:
		if c := r.obj.Camera(); c != nil {
			r.main.Channel(scene.ChannelFOV, 1, scene.InterpLinear).Add(t, c.FOV)
			r.main.Channel(scene.ChannelNearPlane, 1, scene.InterpLinear).Add(t, c.NearPlane)
			r.main.Channel(scene.ChannelFarPlane, 1, scene.InterpLinear).Add(t, c.FarPlane)
		}
	case scene.KindLight:
		if l := r.obj.Light(); l != nil {
			r.main.Channel(scene.ChannelColor, 4, scene.InterpLinear).Add(t, l.Color[:]...)
			r.main.Channel(scene.ChannelIntensity, 1, scene.InterpLinear).Add(t, l.Intensity)
			r.main.Channel(scene.ChannelRange, 1, scene.InterpLinear).Add(t, l.Range)
			if l.Type == scene.LightSpot {
				r.main.Channel(scene.ChannelSpotAngle, 1, scene.InterpLinear).Add(t, l.SpotAngle)
			}
		}
	case scene.KindMesh:
		if m := r.obj.Mesh(); r.shapes && m != nil && len(m.ShapeKeys) > 1 {
			for _, k := range m.ShapeKeys[1:] {
				r.main.Channel(scene.ChannelBlendShapePrefix+k.Name, 1, scene.InterpLinear).Add(t, k.Value*100)
			}
		}
	}

	if len(r.bonePaths) > 0 {
		bones := r.obj.Bones()
		for i, b := range bones {
			if i+1 >= len(r.anims) {
				break
			}
			bl := b.Local
			if r.bake {
				bl = scene.IdentityTransform()
			}
			recordTransform(r.anims[i+1], t, bl, true)
		}
	}
}

func recordTransform(a *scene.Animation, t float32, local scene.Transform, visible bool) {
	p, s := local.Position, local.Scale
	a.Channel(scene.ChannelTranslation, 3, scene.InterpLinear).Add(t, p.X, p.Y, p.Z)

	q := local.Rotation.ToQuat()
	rot := a.Channel(scene.ChannelRotation, 4, scene.InterpSlerp)
	if n := rot.Len(); n > 0 {
		prev := rot.Value(n - 1)
		// Keep consecutive keys in the same hemisphere.
		if q.Dot(math.Quat{X: prev[0], Y: prev[1], Z: prev[2], W: prev[3]}) < 0 {
			q = math.Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
		}
	}
	rot.Add(t, q.X, q.Y, q.Z, q.W)

	a.Channel(scene.ChannelScale, 3, scene.InterpLinear).Add(t, s.X, s.Y, s.Z)
	v := float32(0)
	if visible {
		v = 1
	}
	a.Channel(scene.ChannelVisible, 1, scene.InterpStep).Add(t, v)
}
