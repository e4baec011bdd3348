package scene

import (
	"github.com/Faultbox/meshbridge/pkg/math"
)

// Entity is a path-addressed node of the synchronized scene.
// Exactly one payload pointer is set for non-transform kinds.
type Entity struct {
	Path      string
	Kind      EntityKind
	Order     int
	Visible   bool
	Local     Transform
	Reference string // path of the entity this one mirrors, if any

	Mesh   *MeshData
	Camera *CameraData
	Light  *LightData
	Bone   *BoneData
}

// NewEntity allocates an entity with an identity transform and the payload
// matching kind.
func NewEntity(path string, kind EntityKind) *Entity {
	e := &Entity{Path: path, Visible: true, Local: IdentityTransform()}
	e.SetKind(kind)
	return e
}

// SetKind switches the entity kind, allocating the payload it needs and
// dropping any other.
func (e *Entity) SetKind(kind EntityKind) {
	e.Kind = kind
	if kind != KindMesh {
		e.Mesh = nil
	} else if e.Mesh == nil {
		e.Mesh = &MeshData{}
	}
	if kind != KindCamera {
		e.Camera = nil
	} else if e.Camera == nil {
		e.Camera = DefaultCamera()
	}
	if kind != KindLight {
		e.Light = nil
	} else if e.Light == nil {
		e.Light = DefaultLight()
	}
	if kind != KindBone {
		e.Bone = nil
	} else if e.Bone == nil {
		e.Bone = &BoneData{BindPose: math.Identity()}
	}
}

// Name returns the last segment of the entity path.
func (e *Entity) Name() string {
	return BaseName(e.Path)
}

// ParentPath returns the path of the parent entity ("" for roots).
func (e *Entity) ParentPath() string {
	return ParentPath(e.Path)
}

// IsGeometry reports whether the entity owns geometry.
func (e *Entity) IsGeometry() bool {
	return e.Kind == KindMesh && e.Mesh != nil
}

// VertexCount returns the vertex count for geometry, 0 otherwise.
func (e *Entity) VertexCount() int {
	if e.Mesh == nil {
		return 0
	}
	return e.Mesh.VertexCount()
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.Mesh != nil {
		c.Mesh = e.Mesh.Clone()
	}
	if e.Camera != nil {
		cam := *e.Camera
		c.Camera = &cam
	}
	if e.Light != nil {
		l := *e.Light
		c.Light = &l
	}
	if e.Bone != nil {
		b := *e.Bone
		c.Bone = &b
	}
	return &c
}

// CameraData describes a camera.
type CameraData struct {
	Ortho       bool
	NearPlane   float32
	FarPlane    float32
	FOV         float32 // vertical, degrees
	FocalLength float32 // mm
	SensorSize  [2]float32
	LensShift   [2]float32
}

// DefaultCamera returns a 60 degree perspective camera.
func DefaultCamera() *CameraData {
	return &CameraData{
		NearPlane:   0.3,
		FarPlane:    1000,
		FOV:         60,
		FocalLength: 50,
		SensorSize:  [2]float32{36, 24},
	}
}

// LightType enumerates light sources.
type LightType uint8

// Light types.
const (
	LightDirectional LightType = iota
	LightSpot
	LightPoint
	LightArea
)

// LightData describes a light source.
type LightData struct {
	Type      LightType
	Color     [4]float32
	Intensity float32
	Range     float32
	SpotAngle float32 // degrees
}

// DefaultLight returns a white point light.
func DefaultLight() *LightData {
	return &LightData{
		Type:      LightPoint,
		Color:     [4]float32{1, 1, 1, 1},
		Intensity: 1,
		Range:     10,
		SpotAngle: 30,
	}
}

// BoneData is the payload of a skeleton joint.
type BoneData struct {
	BindPose math.Mat4
}

// Material is a synchronized material record.
type Material struct {
	ID       int32
	Index    int32
	Name     string
	Color    [4]float32
	ColorMap *Texture
}

// Texture is an image attached to a material.
type Texture struct {
	Name string
	Data []byte
}
