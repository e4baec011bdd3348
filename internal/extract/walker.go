package extract

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/internal/graph"
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Exported pairs a host object with the entity extracted from it.
type Exported struct {
	Object host.Object
	Entity *scene.Entity
}

// Walker exports host objects into a graph, parents before children.
// One Walker serves one session; call Begin at the start of every pass.
type Walker struct {
	settings   Settings
	graph      *graph.Graph
	resolver   graph.Resolver
	extractors map[scene.EntityKind]Extractor
	bones      BoneExtractor
	log        *zap.Logger

	// exported holds the entity of each object exported this pass.
	exported map[host.Object]*scene.Entity
	order    []host.Object
	// skipped holds objects rejected as tips; a child can still pull them
	// in as parent transforms.
	skipped map[host.Object]bool
	// active holds objects whose export is in progress.
	active map[host.Object]bool
}

// NewWalker creates a walker writing into g.
func NewWalker(g *graph.Graph, materials *graph.MaterialRegistry, settings Settings, log *zap.Logger) *Walker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Walker{graph: g, log: log}
	w.SetSettings(settings, materials)
	w.Begin()
	return w
}

// SetSettings replaces the extraction settings.
func (w *Walker) SetSettings(s Settings, materials *graph.MaterialRegistry) {
	w.settings = s
	w.extractors = map[scene.EntityKind]Extractor{
		scene.KindTransform: TransformExtractor{BakeTransform: s.BakeTransform},
		scene.KindMesh:      MeshExtractor{Settings: s, Materials: materials},
		scene.KindCamera:    CameraExtractor{BakeTransform: s.BakeTransform},
		scene.KindLight:     LightExtractor{BakeTransform: s.BakeTransform},
	}
	w.bones = BoneExtractor{BakeTransform: s.BakeTransform}
}

// Settings returns the active settings.
func (w *Walker) Settings() Settings {
	return w.settings
}

// Begin forgets the objects exported by the previous pass.
func (w *Walker) Begin() {
	w.exported = make(map[host.Object]*scene.Entity)
	w.order = nil
	w.skipped = make(map[host.Object]bool)
	w.active = make(map[host.Object]bool)
}

// Exported returns the objects exported this pass in export order.
func (w *Walker) Exported() []Exported {
	out := make([]Exported, 0, len(w.order))
	for _, o := range w.order {
		out = append(out, Exported{Object: o, Entity: w.exported[o]})
	}
	return out
}

// ExportObject exports obj after its parent chain. A tip object is the one
// the caller asked for; parents are exported as plain transforms when their
// own kind is disabled. The returned entity is nil when obj is skipped.
func (w *Walker) ExportObject(obj host.Object, tip bool) (*scene.Entity, error) {
	if obj == nil {
		return nil, nil
	}
	if e, ok := w.exported[obj]; ok {
		return e, nil
	}
	if w.active[obj] || (tip && w.skipped[obj]) {
		return nil, nil
	}

	// Resolving first rejects cyclic parent chains before recursing.
	path, err := w.resolver.Resolve(obj)
	if err != nil {
		return nil, err
	}

	kind, ok := w.kindFor(obj, tip)
	if !ok {
		w.skipped[obj] = true
		return nil, nil
	}
	w.active[obj] = true
	defer delete(w.active, obj)

	if obj.Kind() == host.ObjectMesh && !w.settings.BakeModifiers && w.settings.SyncBones {
		if arm := armatureOf(obj); arm != nil {
			if _, err := w.ExportObject(arm, true); err != nil {
				return nil, err
			}
		}
	}
	if _, err := w.ExportObject(obj.Parent(), false); err != nil {
		return nil, err
	}

	e, _ := w.graph.AddOrGet(path, kind)
	if err := w.extractors[kind].Extract(obj, e); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", path, err)
	}
	w.exported[obj] = e
	w.order = append(w.order, obj)

	if obj.Kind() == host.ObjectArmature && w.settings.SyncBones && !w.settings.BakeModifiers {
		if err := w.exportBones(obj, path); err != nil {
			return nil, err
		}
	}
	if obj.Instance() != nil {
		if _, err := w.expandInstance(obj, path, false); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// kindFor decides the entity kind for obj, or reports that it is skipped.
func (w *Walker) kindFor(obj host.Object, tip bool) (scene.EntityKind, bool) {
	s := w.settings
	fallback := func() (scene.EntityKind, bool) {
		return scene.KindTransform, !tip
	}

	switch k := obj.Kind(); k {
	case host.ObjectArmature:
		if !tip || (!s.BakeModifiers && s.SyncBones) {
			return scene.KindTransform, true
		}
		return fallback()
	case host.ObjectMesh:
		if s.SyncMeshes || (!s.BakeModifiers && s.SyncBlendShapes) {
			return scene.KindMesh, true
		}
		return fallback()
	case host.ObjectCurve, host.ObjectText, host.ObjectSurface, host.ObjectMetaball:
		convert := s.ConvertToMesh
		if k == host.ObjectCurve {
			convert = s.CurvesAsMesh
		}
		if s.SyncMeshes && convert {
			return scene.KindMesh, true
		}
		return fallback()
	case host.ObjectCamera:
		if s.SyncCameras {
			return scene.KindCamera, true
		}
		return fallback()
	case host.ObjectLight:
		if s.SyncLights {
			return scene.KindLight, true
		}
		return fallback()
	default:
		if obj.Instance() != nil {
			return scene.KindTransform, true
		}
		return fallback()
	}
}

// exportBones adds one bone entity per pose bone, parents first.
func (w *Walker) exportBones(arm host.Object, armPath string) error {
	bones := arm.Bones()
	for _, b := range sortBones(bones) {
		path, err := graph.BonePath(armPath, bones, b.Name)
		if err != nil {
			return err
		}
		e, _ := w.graph.AddOrGet(path, scene.KindBone)
		w.bones.ExtractBone(b, e)
	}
	return nil
}

// sortBones orders bones so every parent precedes its children. Bones whose
// parent is missing keep their relative order at the end.
func sortBones(bones []host.Bone) []host.Bone {
	byName := make(map[string]bool, len(bones))
	for _, b := range bones {
		byName[b.Name] = true
	}
	placed := make(map[string]bool, len(bones))
	out := make([]host.Bone, 0, len(bones))
	for len(out) < len(bones) {
		progress := false
		for _, b := range bones {
			if placed[b.Name] {
				continue
			}
			if b.Parent == "" || placed[b.Parent] || !byName[b.Parent] {
				placed[b.Name] = true
				out = append(out, b)
				progress = true
			}
		}
		if !progress {
			// Remaining bones form a parent loop; BonePath reports it.
			for _, b := range bones {
				if !placed[b.Name] {
					placed[b.Name] = true
					out = append(out, b)
				}
			}
		}
	}
	return out
}

// Paths returns the paths obj contributes to the graph: its own, its bones
// and the entities of any group it instances. Nothing is extracted.
func (w *Walker) Paths(obj host.Object) ([]string, error) {
	path, err := w.resolver.Resolve(obj)
	if err != nil {
		return nil, err
	}
	paths := []string{path}
	if obj.Kind() == host.ObjectArmature && w.settings.SyncBones && !w.settings.BakeModifiers {
		bones := obj.Bones()
		for _, b := range bones {
			bp, err := graph.BonePath(path, bones, b.Name)
			if err != nil {
				return nil, err
			}
			paths = append(paths, bp)
		}
	}
	if obj.Instance() != nil {
		refs, err := w.expandInstance(obj, path, true)
		if err != nil {
			return nil, err
		}
		paths = append(paths, refs...)
	}
	return paths, nil
}

// refTask is one unit of instance expansion: either a group to expand
// below base, or an object to mirror below base.
type refTask struct {
	group  *host.Group
	owner  host.Object
	obj    host.Object
	base   string
	world  math.Mat4
	active []*host.Group
}

// expandInstance mirrors the group instanced by owner below ownerPath.
// Nested instancing is walked with an explicit stack; a group that is
// already being expanded further up is skipped. In dry mode only the paths
// are collected.
func (w *Walker) expandInstance(owner host.Object, ownerPath string, dry bool) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	claim := func(path string) bool {
		if seen[path] || (!dry && w.graph.Exists(path)) {
			return false
		}
		seen[path] = true
		paths = append(paths, path)
		return true
	}

	stack := []refTask{{group: owner.Instance(), owner: owner, base: ownerPath, world: owner.World()}}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.group != nil {
			if containsGroup(t.active, t.group) {
				w.log.Warn("recursive group instance skipped",
					zap.String("group", t.group.Name),
					zap.String("path", t.base))
				continue
			}
			path := scene.JoinPath(t.base, t.group.Name)
			if !claim(path) {
				continue
			}
			offset := math.Translate(-t.group.Offset.X, -t.group.Offset.Y, -t.group.Offset.Z)
			world := t.world.Mul(offset)
			if !dry {
				e, _ := w.graph.AddOrGet(path, scene.KindTransform)
				e.Visible = t.owner.Visible()
				if !w.settings.BakeTransform {
					e.Local.Position = t.group.Offset.Neg()
				}
				for _, o := range t.group.Objects {
					if _, err := w.ExportObject(o, false); err != nil {
						return nil, err
					}
				}
			}
			active := append(append([]*host.Group(nil), t.active...), t.group)
			for i := len(t.group.Objects) - 1; i >= 0; i-- {
				stack = append(stack, refTask{obj: t.group.Objects[i], base: path, world: world, active: active})
			}
			continue
		}

		srcPath, err := w.resolver.Resolve(t.obj)
		if err != nil {
			return nil, err
		}
		path := t.base + srcPath
		if !claim(path) {
			continue
		}
		if !dry {
			w.addReference(t, path, srcPath)
		}

		if g := t.obj.Instance(); g != nil {
			stack = append(stack, refTask{group: g, owner: t.obj, base: path, world: t.world.Mul(t.obj.World()), active: t.active})
		}
		children := t.obj.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, refTask{obj: children[i], base: t.base, world: t.world, active: t.active})
		}
	}
	return paths, nil
}

// addReference creates the mirror entity of t.obj at path. With baked
// transforms, geometry is copied and placed; otherwise a transform pointing
// at the source path is emitted.
func (w *Walker) addReference(t refTask, path, srcPath string) {
	if w.settings.BakeTransform {
		if src := w.exported[t.obj]; src != nil && src.Mesh != nil {
			e, _ := w.graph.AddOrGet(path, scene.KindMesh)
			e.Visible = src.Visible
			e.Local = scene.IdentityTransform()
			e.Mesh = src.Mesh.Clone()
			e.Mesh.Transform(t.world)
			return
		}
	}
	e, _ := w.graph.AddOrGet(path, scene.KindTransform)
	_ = w.extractors[scene.KindTransform].Extract(t.obj, e)
	e.Reference = srcPath
}

func containsGroup(gs []*host.Group, g *host.Group) bool {
	for _, x := range gs {
		if x == g {
			return true
		}
	}
	return false
}
