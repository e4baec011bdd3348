// Package memhost is an in-memory host scene. It backs tests and the CLI,
// which load it from YAML fixtures.
//
// Like a real editor document it is not safe for concurrent use: mutate it
// and run sync passes from the same goroutine.
package memhost

import (
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Key is a transform keyframe.
type Key struct {
	Frame   int
	Local   scene.Transform
	Visible bool
}

// Object is a node of an in-memory scene.
type Object struct {
	name      string
	kind      host.ObjectKind
	parent    *Object
	children  []*Object
	visible   bool
	selected  bool
	updated   bool
	local     scene.Transform
	mesh      *host.Mesh
	evaluated *host.Mesh
	modifiers []host.Modifier
	camera    *scene.CameraData
	light     *scene.LightData
	bones     []host.Bone
	instance  *host.Group
	keys      []Key
}

var _ host.Object = (*Object)(nil)

// NewObject creates a visible object with an identity transform.
func NewObject(name string, kind host.ObjectKind) *Object {
	o := &Object{
		name:    name,
		kind:    kind,
		visible: true,
		updated: true,
		local:   scene.IdentityTransform(),
	}
	switch kind {
	case host.ObjectCamera:
		o.camera = scene.DefaultCamera()
	case host.ObjectLight:
		o.light = scene.DefaultLight()
	}
	return o
}

func (o *Object) Name() string          { return o.name }
func (o *Object) Kind() host.ObjectKind { return o.kind }
func (o *Object) Visible() bool         { return o.visible }
func (o *Object) Selected() bool        { return o.selected }
func (o *Object) Updated() bool         { return o.updated }
func (o *Object) Local() scene.Transform {
	return o.local
}

func (o *Object) Parent() host.Object {
	if o.parent == nil {
		return nil
	}
	return o.parent
}

func (o *Object) Children() []host.Object {
	out := make([]host.Object, len(o.children))
	for i, c := range o.children {
		out[i] = c
	}
	return out
}

// World composes the local transforms up the parent chain. A cyclic chain
// stops at the first repeated object.
func (o *Object) World() math.Mat4 {
	m := math.Identity()
	seen := make(map[*Object]bool)
	for cur := o; cur != nil && !seen[cur]; cur = cur.parent {
		seen[cur] = true
		m = cur.local.Matrix().Mul(m)
	}
	return m
}

func (o *Object) Mesh() *host.Mesh { return o.mesh }

func (o *Object) EvaluatedMesh() *host.Mesh {
	if o.evaluated != nil {
		return o.evaluated
	}
	return o.mesh
}

func (o *Object) Modifiers() []host.Modifier  { return o.modifiers }
func (o *Object) Camera() *scene.CameraData { return o.camera }
func (o *Object) Light() *scene.LightData   { return o.light }
func (o *Object) Bones() []host.Bone         { return o.bones }
func (o *Object) Instance() *host.Group      { return o.instance }

// SetParent re-parents o. Passing nil makes o a root. No cycle check is
// made.
func (o *Object) SetParent(p *Object) *Object {
	if o.parent != nil {
		siblings := o.parent.children
		for i, c := range siblings {
			if c == o {
				o.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	o.parent = p
	if p != nil {
		p.children = append(p.children, o)
	}
	o.updated = true
	return o
}

// SetLocal replaces the local transform.
func (o *Object) SetLocal(t scene.Transform) *Object {
	o.local = t
	o.updated = true
	return o
}

// SetPosition moves the object.
func (o *Object) SetPosition(p math.Vec3) *Object {
	o.local.Position = p
	o.updated = true
	return o
}

// SetVisible toggles visibility.
func (o *Object) SetVisible(v bool) *Object {
	o.visible = v
	o.updated = true
	return o
}

// SetSelected toggles selection. Selection is not a data change.
func (o *Object) SetSelected(v bool) *Object {
	o.selected = v
	return o
}

// SetMesh sets authored geometry. evaluated may be nil.
func (o *Object) SetMesh(authored, evaluated *host.Mesh) *Object {
	o.mesh = authored
	o.evaluated = evaluated
	o.updated = true
	return o
}

// AddModifier appends a modifier.
func (o *Object) AddModifier(m host.Modifier) *Object {
	o.modifiers = append(o.modifiers, m)
	o.updated = true
	return o
}

// SetCamera replaces the camera payload.
func (o *Object) SetCamera(c *scene.CameraData) *Object {
	o.camera = c
	o.updated = true
	return o
}

// SetLight replaces the light payload.
func (o *Object) SetLight(l *scene.LightData) *Object {
	o.light = l
	o.updated = true
	return o
}

// SetBones replaces the armature pose.
func (o *Object) SetBones(b []host.Bone) *Object {
	o.bones = b
	o.updated = true
	return o
}

// SetInstance makes o instance group g.
func (o *Object) SetInstance(g *host.Group) *Object {
	o.instance = g
	o.updated = true
	return o
}

// AddKey records a transform keyframe.
func (o *Object) AddKey(k Key) *Object {
	i := len(o.keys)
	for i > 0 && o.keys[i-1].Frame > k.Frame {
		i--
	}
	o.keys = append(o.keys, Key{})
	copy(o.keys[i+1:], o.keys[i:])
	o.keys[i] = k
	return o
}

// Touch marks the object as changed.
func (o *Object) Touch() {
	o.updated = true
}

// evaluate moves the object to its keyed state at frame f.
func (o *Object) evaluate(f int) {
	if len(o.keys) == 0 {
		return
	}
	prev, next := 0, 0
	for i, k := range o.keys {
		if k.Frame > f {
			next = i
			break
		}
		prev, next = i, i
	}
	k0, k1 := o.keys[prev], o.keys[next]
	o.visible = k0.Visible
	if prev == next || k1.Frame == k0.Frame {
		o.local = k0.Local
		o.updated = true
		return
	}

	t := float32(f-k0.Frame) / float32(k1.Frame-k0.Frame)
	l := scene.Transform{
		Position: math.V3(math.LerpVec3(k0.Local.Position.Array(), k1.Local.Position.Array(), t)),
		Scale:    math.V3(math.LerpVec3(k0.Local.Scale.Array(), k1.Local.Scale.Array(), t)),
	}
	r0, r1 := k0.Local.Rotation, k1.Local.Rotation
	if r0.Mode == scene.RotationEuler && r1.Mode == scene.RotationEuler && r0.Order == r1.Order {
		l.Rotation = scene.EulerRotation(math.V3(math.LerpVec3(r0.Euler.Array(), r1.Euler.Array(), t)), r0.Order)
	} else {
		l.Rotation = scene.QuatRotation(r0.ToQuat().Slerp(r1.ToQuat(), t))
	}
	o.local = l
	o.updated = true
}

// Scene is an in-memory host document.
type Scene struct {
	objects   []*Object
	materials []host.Material
	frames    host.FrameInfo
	onRemove  []func(host.Object)
}

var _ host.Scene = (*Scene)(nil)

// NewScene creates an empty document at frame 1 of 1..250 at 24 fps.
func NewScene() *Scene {
	return &Scene{frames: host.FrameInfo{Current: 1, Start: 1, End: 250, FPS: 24}}
}

// Add registers o and its descendants with the document.
func (s *Scene) Add(o *Object) *Object {
	s.objects = append(s.objects, o)
	for _, c := range o.children {
		if !s.contains(c) {
			s.Add(c)
		}
	}
	return o
}

func (s *Scene) contains(o *Object) bool {
	for _, x := range s.objects {
		if x == o {
			return true
		}
	}
	return false
}

// Find returns the first object named name, or nil.
func (s *Scene) Find(name string) *Object {
	for _, o := range s.objects {
		if o.name == name {
			return o
		}
	}
	return nil
}

// OnRemove registers a callback invoked, before detaching, for every object
// removed from the document.
func (s *Scene) OnRemove(fn func(host.Object)) {
	s.onRemove = append(s.onRemove, fn)
}

// Remove deletes o and its descendants.
func (s *Scene) Remove(o *Object) {
	for len(o.children) > 0 {
		s.Remove(o.children[len(o.children)-1])
	}
	for _, fn := range s.onRemove {
		fn(o)
	}
	o.SetParent(nil)
	for i, x := range s.objects {
		if x == o {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			break
		}
	}
}

// AddMaterial appends a document material.
func (s *Scene) AddMaterial(m host.Material) {
	s.materials = append(s.materials, m)
}

// RemoveMaterial deletes the named material.
func (s *Scene) RemoveMaterial(name string) {
	for i, m := range s.materials {
		if m.Name == name {
			s.materials = append(s.materials[:i], s.materials[i+1:]...)
			return
		}
	}
}

// SetFrameRange sets the timeline.
func (s *Scene) SetFrameRange(start, end int, fps float32) {
	s.frames.Start, s.frames.End, s.frames.FPS = start, end, fps
}

func (s *Scene) Objects() []host.Object {
	out := make([]host.Object, len(s.objects))
	for i, o := range s.objects {
		out[i] = o
	}
	return out
}

func (s *Scene) Materials() []host.Material {
	return append([]host.Material(nil), s.materials...)
}

func (s *Scene) Frames() host.FrameInfo {
	return s.frames
}

func (s *Scene) SetFrame(f int) {
	s.frames.Current = f
	for _, o := range s.objects {
		o.evaluate(f)
	}
}

func (s *Scene) ResetUpdates() {
	for _, o := range s.objects {
		o.updated = false
	}
}
