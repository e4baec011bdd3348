// Package host declares the read-only view of the editing application's
// scene that the sync engine consumes.
package host

import (
	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// ObjectKind is the host-side type of an object.
type ObjectKind uint8

// Object kinds.
const (
	ObjectEmpty ObjectKind = iota
	ObjectMesh
	ObjectCurve
	ObjectText
	ObjectSurface
	ObjectMetaball
	ObjectCamera
	ObjectLight
	ObjectArmature
)

// Convertible reports whether objects of this kind can be exported as meshes
// through their evaluated geometry.
func (k ObjectKind) Convertible() bool {
	switch k {
	case ObjectCurve, ObjectText, ObjectSurface, ObjectMetaball:
		return true
	}
	return false
}

// Scene is the host document.
type Scene interface {
	// Objects returns every object in the document.
	Objects() []Object
	// Materials returns the document materials in enumeration order.
	Materials() []Material
	// Frames returns the current frame and the document frame range.
	Frames() FrameInfo
	// SetFrame moves the document to frame f and re-evaluates it.
	SetFrame(f int)
	// ResetUpdates clears the per-object update flags.
	ResetUpdates()
}

// FrameInfo describes the document timeline.
type FrameInfo struct {
	Current int
	Start   int
	End     int
	FPS     float32
}

// Object is a node of the host scene. Implementations must be comparable
// (pointer types) because objects are used as map keys.
type Object interface {
	Name() string
	Kind() ObjectKind
	Parent() Object
	Children() []Object
	Visible() bool
	Selected() bool
	// Updated reports whether the object changed since the last ResetUpdates.
	Updated() bool

	Local() scene.Transform
	World() math.Mat4

	// Mesh returns the authored geometry, nil for non-geometry objects.
	Mesh() *Mesh
	// EvaluatedMesh returns geometry with every modifier applied, nil when
	// the object has no evaluable geometry.
	EvaluatedMesh() *Mesh
	Modifiers() []Modifier

	Camera() *scene.CameraData
	Light() *scene.LightData
	// Bones returns the pose bones of an armature, parents first.
	Bones() []Bone
	// Instance returns the group instanced by this object, if any.
	Instance() *Group
}

// Mesh is host geometry in polygon form.
type Mesh struct {
	Points   [][3]float32
	Polygons []Polygon
	// Per-corner channels, in polygon order; nil when absent.
	Normals [][3]float32
	UVs     [][][2]float32
	Colors  [][4]float32
	// MaterialSlots maps polygon material indices to material names.
	MaterialSlots []string
	// VertexGroups names the deform groups; Weights[v] lists the groups
	// point v belongs to.
	VertexGroups []string
	Weights      [][]GroupWeight
	ShapeKeys    []ShapeKey
}

// Polygon is one face of a host mesh.
type Polygon struct {
	Indices  []int32
	Material int
}

// GroupWeight is the weight of a point in a vertex group.
type GroupWeight struct {
	Group  int
	Weight float32
}

// ShapeKey is an absolute alternative point set. The first key is the basis.
type ShapeKey struct {
	Name   string
	Value  float32 // 0..1
	Points [][3]float32
}

// ModifierKind identifies a host modifier.
type ModifierKind uint8

// Modifier kinds.
const (
	ModifierOther ModifierKind = iota
	ModifierMirror
	ModifierArmature
)

// Modifier is a host geometry modifier.
type Modifier struct {
	Kind     ModifierKind
	Enabled  bool
	MirrorX  bool
	MirrorY  bool
	MirrorZ  bool
	Armature Object
}

// Bone is an armature pose bone.
type Bone struct {
	Name   string
	Parent string
	Local  scene.Transform
	// Rest is the bone's rest matrix in armature space.
	Rest math.Mat4
}

// Group is an instanced collection.
type Group struct {
	Name    string
	Offset  math.Vec3
	Objects []Object
}

// Material is a host material.
type Material struct {
	Name  string
	Color [4]float32
	// ColorMap is the image bound to the base color, or nil.
	ColorMap *Texture
}

// Texture is an image used by a material. Data holds the encoded image
// file as the host stores it.
type Texture struct {
	Name string
	Data []byte
}
