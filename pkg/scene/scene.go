// Package scene defines the host-agnostic scene data exchanged with receivers:
// entities addressed by path, their payloads, materials and sampled animation.
package scene

import (
	"fmt"
	"strings"

	"github.com/Faultbox/meshbridge/pkg/math"
)

// EntityKind identifies the payload an entity carries.
type EntityKind uint8

// Entity kinds.
const (
	KindTransform EntityKind = iota
	KindMesh
	KindCamera
	KindLight
	KindBone
)

func (k EntityKind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindMesh:
		return "mesh"
	case KindCamera:
		return "camera"
	case KindLight:
		return "light"
	case KindBone:
		return "bone"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// RotationMode selects which representation of Rotation is authoritative.
type RotationMode uint8

// Rotation modes.
const (
	RotationQuaternion RotationMode = iota
	RotationEuler
	RotationAxisAngle
)

// Rotation holds a rotation in the representation the host authored it in.
type Rotation struct {
	Mode  RotationMode
	Quat  math.Quat
	Euler math.Vec3 // radians
	Order math.EulerOrder
	Axis  math.Vec3
	Angle float32 // radians
}

// QuatRotation wraps a quaternion.
func QuatRotation(q math.Quat) Rotation {
	return Rotation{Mode: RotationQuaternion, Quat: q}
}

// EulerRotation wraps Euler angles in the given order.
func EulerRotation(angles math.Vec3, order math.EulerOrder) Rotation {
	return Rotation{Mode: RotationEuler, Euler: angles, Order: order}
}

// AxisAngleRotation wraps an axis-angle pair.
func AxisAngleRotation(axis math.Vec3, angle float32) Rotation {
	return Rotation{Mode: RotationAxisAngle, Axis: axis, Angle: angle}
}

// ToQuat converts the rotation to a quaternion regardless of mode.
func (r Rotation) ToQuat() math.Quat {
	switch r.Mode {
	case RotationEuler:
		return math.QuatFromEuler(r.Euler, r.Order)
	case RotationAxisAngle:
		if r.Axis == (math.Vec3{}) {
			return math.QuatIdentity()
		}
		return math.QuatFromAxisAngle(r.Axis.Normalize(), r.Angle)
	default:
		if r.Quat == (math.Quat{}) {
			return math.QuatIdentity()
		}
		return r.Quat.Normalize()
	}
}

// Transform is a local translation, rotation and scale.
type Transform struct {
	Position math.Vec3
	Rotation Rotation
	Scale    math.Vec3
}

// IdentityTransform returns a transform that changes nothing.
func IdentityTransform() Transform {
	return Transform{
		Rotation: QuatRotation(math.QuatIdentity()),
		Scale:    math.Vec3{X: 1, Y: 1, Z: 1},
	}
}

// Matrix returns the local matrix (scale, then rotate, then translate).
func (t Transform) Matrix() math.Mat4 {
	return math.Compose(t.Position, t.Rotation.ToQuat(), t.Scale)
}

// TransformFromMatrix decomposes m into a quaternion-mode transform.
func TransformFromMatrix(m math.Mat4) Transform {
	p, r, s := m.Decompose()
	return Transform{Position: p, Rotation: QuatRotation(r), Scale: s}
}

// Settings carries per-scene conversion parameters.
type Settings struct {
	ScaleFactor float32
	FrameRate   float32
}

// Scene is one snapshot of synchronized data.
type Scene struct {
	Settings  Settings
	Entities  []*Entity
	Materials []*Material
	Clips     []*AnimationClip
}

// Entity returns the entity stored at path, or nil.
func (s *Scene) Entity(path string) *Entity {
	for _, e := range s.Entities {
		if e.Path == path {
			return e
		}
	}
	return nil
}

// Meshes returns entities carrying mesh data, in scene order.
func (s *Scene) Meshes() []*Entity {
	var out []*Entity
	for _, e := range s.Entities {
		if e.Mesh != nil {
			out = append(out, e)
		}
	}
	return out
}

// Empty reports whether the scene carries nothing.
func (s *Scene) Empty() bool {
	return len(s.Entities) == 0 && len(s.Materials) == 0 && len(s.Clips) == 0
}

// Clone deep-copies the scene so it can be handed to another goroutine.
func (s *Scene) Clone() *Scene {
	out := &Scene{Settings: s.Settings}
	for _, e := range s.Entities {
		out.Entities = append(out.Entities, e.Clone())
	}
	for _, m := range s.Materials {
		mc := *m
		out.Materials = append(out.Materials, &mc)
	}
	for _, c := range s.Clips {
		out.Clips = append(out.Clips, c.Clone())
	}
	return out
}

// JoinPath appends a name to a parent path. The root path is "".
func JoinPath(parent, name string) string {
	return parent + "/" + SanitizeName(name)
}

// SanitizeName makes a host name usable as one path segment: the separator
// is replaced by an underscore.
func SanitizeName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// ParentPath returns the path with its last segment removed.
func ParentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// BaseName returns the last path segment.
func BaseName(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

// IsDescendant reports whether path lies strictly below ancestor.
func IsDescendant(path, ancestor string) bool {
	return len(path) > len(ancestor)+1 && strings.HasPrefix(path, ancestor) && path[len(ancestor)] == '/'
}
