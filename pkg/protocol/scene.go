package protocol

import (
	"fmt"

	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Mesh flag bits.
const (
	meshMirrorX uint32 = 1 << iota
	meshMirrorY
	meshMirrorZ
	meshDoubleSided
	meshGenNormals
	meshGenTangents
	meshFlipFaces
)

// AppendScene appends the binary form of s to buf: settings, entities in
// order, then materials, then animation clips.
func AppendScene(buf []byte, s *scene.Scene) []byte {
	e := &encoder{buf: buf}
	e.f32(s.Settings.ScaleFactor)
	e.f32(s.Settings.FrameRate)

	e.u32(uint32(len(s.Entities)))
	for _, ent := range s.Entities {
		encodeEntity(e, ent)
	}
	e.u32(uint32(len(s.Materials)))
	for _, m := range s.Materials {
		encodeMaterial(e, m)
	}
	e.u32(uint32(len(s.Clips)))
	for _, c := range s.Clips {
		encodeClip(e, c)
	}
	return e.buf
}

// EncodeScene returns the binary form of s.
func EncodeScene(s *scene.Scene) []byte {
	return AppendScene(nil, s)
}

// DecodeScene parses a scene written by EncodeScene. Trailing bytes are an
// error.
func DecodeScene(data []byte) (*scene.Scene, error) {
	d := &decoder{data: data}
	s, err := decodeScene(d)
	if err != nil {
		return nil, err
	}
	if d.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after scene", ErrMalformed, d.remaining())
	}
	return s, nil
}

func decodeScene(d *decoder) (*scene.Scene, error) {
	s := &scene.Scene{}
	s.Settings.ScaleFactor = d.f32()
	s.Settings.FrameRate = d.f32()

	n := d.count(minEntitySize)
	for i := 0; i < n && d.err == nil; i++ {
		ent, err := decodeEntity(d)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		ent.Order = i
		s.Entities = append(s.Entities, ent)
	}
	n = d.count(minMaterialSize)
	for i := 0; i < n && d.err == nil; i++ {
		s.Materials = append(s.Materials, decodeMaterial(d))
	}
	n = d.count(minClipSize)
	for i := 0; i < n && d.err == nil; i++ {
		c, err := decodeClip(d)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
		s.Clips = append(s.Clips, c)
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

// Smallest encodings, used to bound counts read from untrusted input.
const (
	minEntitySize   = 4 + 1 + 1 + 4 + 12 + 1 + 12
	minMaterialSize = 4 + 4 + 4 + 16 + 1
	minClipSize     = 4 + 4 + 4
)

func encodeEntity(e *encoder, ent *scene.Entity) {
	e.str(ent.Path)
	e.u8(uint8(ent.Kind))
	e.flag(ent.Visible)
	e.str(ent.Reference)
	encodeTransform(e, ent.Local)

	switch ent.Kind {
	case scene.KindMesh:
		m := ent.Mesh
		if m == nil {
			m = &scene.MeshData{}
		}
		encodeMesh(e, m)
	case scene.KindCamera:
		c := ent.Camera
		if c == nil {
			c = scene.DefaultCamera()
		}
		e.flag(c.Ortho)
		e.f32s(c.NearPlane, c.FarPlane, c.FOV, c.FocalLength)
		e.f32s(c.SensorSize[:]...)
		e.f32s(c.LensShift[:]...)
	case scene.KindLight:
		l := ent.Light
		if l == nil {
			l = scene.DefaultLight()
		}
		e.u8(uint8(l.Type))
		e.f32s(l.Color[:]...)
		e.f32s(l.Intensity, l.Range, l.SpotAngle)
	case scene.KindBone:
		bind := math.Identity()
		if ent.Bone != nil {
			bind = ent.Bone.BindPose
		}
		e.f32s(bind[:]...)
	}
}

func decodeEntity(d *decoder) (*scene.Entity, error) {
	path := d.str()
	kind := scene.EntityKind(d.u8())
	if d.err != nil {
		return nil, d.err
	}
	if kind > scene.KindBone {
		return nil, fmt.Errorf("%w: %s has %v", ErrUnknownKind, path, kind)
	}
	ent := scene.NewEntity(path, kind)
	ent.Visible = d.flag()
	ent.Reference = d.str()
	ent.Local = decodeTransform(d)

	switch kind {
	case scene.KindMesh:
		ent.Mesh = decodeMesh(d)
	case scene.KindCamera:
		c := ent.Camera
		c.Ortho = d.flag()
		c.NearPlane, c.FarPlane, c.FOV, c.FocalLength = d.f32(), d.f32(), d.f32(), d.f32()
		c.SensorSize = [2]float32{d.f32(), d.f32()}
		c.LensShift = [2]float32{d.f32(), d.f32()}
	case scene.KindLight:
		l := ent.Light
		l.Type = scene.LightType(d.u8())
		for i := range l.Color {
			l.Color[i] = d.f32()
		}
		l.Intensity, l.Range, l.SpotAngle = d.f32(), d.f32(), d.f32()
	case scene.KindBone:
		ent.Bone.BindPose = decodeMat4(d)
	}
	if d.err != nil {
		return nil, d.err
	}
	return ent, nil
}

func encodeTransform(e *encoder, t scene.Transform) {
	e.f32s(t.Position.X, t.Position.Y, t.Position.Z)
	r := t.Rotation
	e.u8(uint8(r.Mode))
	switch r.Mode {
	case scene.RotationEuler:
		e.f32s(r.Euler.X, r.Euler.Y, r.Euler.Z)
		e.u8(uint8(r.Order))
	case scene.RotationAxisAngle:
		e.f32s(r.Axis.X, r.Axis.Y, r.Axis.Z, r.Angle)
	default:
		e.f32s(r.Quat.X, r.Quat.Y, r.Quat.Z, r.Quat.W)
	}
	e.f32s(t.Scale.X, t.Scale.Y, t.Scale.Z)
}

func decodeTransform(d *decoder) scene.Transform {
	var t scene.Transform
	t.Position = decodeVec3(d)
	switch mode := scene.RotationMode(d.u8()); mode {
	case scene.RotationEuler:
		angles := decodeVec3(d)
		order := math.EulerOrder(d.u8())
		if order > math.EulerZYX && d.err == nil {
			d.err = fmt.Errorf("%w: euler order %d", ErrMalformed, order)
		}
		t.Rotation = scene.EulerRotation(angles, order)
	case scene.RotationAxisAngle:
		axis := decodeVec3(d)
		t.Rotation = scene.AxisAngleRotation(axis, d.f32())
	case scene.RotationQuaternion:
		t.Rotation = scene.QuatRotation(math.Quat{X: d.f32(), Y: d.f32(), Z: d.f32(), W: d.f32()})
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: rotation mode %d", ErrMalformed, mode)
		}
	}
	t.Scale = decodeVec3(d)
	return t
}

func decodeVec3(d *decoder) math.Vec3 {
	return math.Vec3{X: d.f32(), Y: d.f32(), Z: d.f32()}
}

func decodeMat4(d *decoder) math.Mat4 {
	var m math.Mat4
	for i := range m {
		m[i] = d.f32()
	}
	return m
}

func encodeMesh(e *encoder, m *scene.MeshData) {
	var flags uint32
	set := func(on bool, bit uint32) {
		if on {
			flags |= bit
		}
	}
	set(m.Flags.MirrorX, meshMirrorX)
	set(m.Flags.MirrorY, meshMirrorY)
	set(m.Flags.MirrorZ, meshMirrorZ)
	set(m.Flags.DoubleSided, meshDoubleSided)
	set(m.Flags.GenNormals, meshGenNormals)
	set(m.Flags.GenTangents, meshGenTangents)
	set(m.Flags.FlipFaces, meshFlipFaces)
	e.u32(flags)

	e.vec3s(m.Points)
	e.u8(uint8(m.NormalDomain))
	e.vec3s(m.Normals)
	e.vec4s(m.Tangents)
	e.u32(uint32(len(m.UVs)))
	for _, uv := range m.UVs {
		e.vec2s(uv)
	}
	e.vec4s(m.Colors)
	e.i32Array(m.Counts)
	e.i32Array(m.MaterialIDs)
	e.i32Array(m.Indices)

	e.u32(uint32(len(m.Bones)))
	for _, b := range m.Bones {
		e.str(b.Path)
		e.f32s(b.BindPose[:]...)
		e.f32Array(b.Weights)
	}
	e.u32(uint32(len(m.BlendShapes)))
	for _, bs := range m.BlendShapes {
		e.str(bs.Name)
		e.f32(bs.Weight)
		e.vec3s(bs.Deltas)
	}
}

func decodeMesh(d *decoder) *scene.MeshData {
	m := &scene.MeshData{}
	flags := d.u32()
	m.Flags = scene.MeshFlags{
		MirrorX:     flags&meshMirrorX != 0,
		MirrorY:     flags&meshMirrorY != 0,
		MirrorZ:     flags&meshMirrorZ != 0,
		DoubleSided: flags&meshDoubleSided != 0,
		GenNormals:  flags&meshGenNormals != 0,
		GenTangents: flags&meshGenTangents != 0,
		FlipFaces:   flags&meshFlipFaces != 0,
	}

	m.Points = d.vec3s()
	m.NormalDomain = scene.NormalDomain(d.u8())
	m.Normals = d.vec3s()
	m.Tangents = d.vec4s()
	n := d.count(4)
	for i := 0; i < n && d.err == nil; i++ {
		m.UVs = append(m.UVs, d.vec2s())
	}
	m.Colors = d.vec4s()
	m.Counts = d.i32Array()
	m.MaterialIDs = d.i32Array()
	m.Indices = d.i32Array()

	n = d.count(4 + 64 + 4)
	for i := 0; i < n && d.err == nil; i++ {
		b := scene.BoneWeights{Path: d.str()}
		b.BindPose = decodeMat4(d)
		b.Weights = d.f32Array()
		m.Bones = append(m.Bones, b)
	}
	n = d.count(4 + 4 + 4)
	for i := 0; i < n && d.err == nil; i++ {
		bs := scene.BlendShape{Name: d.str(), Weight: d.f32()}
		bs.Deltas = d.vec3s()
		m.BlendShapes = append(m.BlendShapes, bs)
	}
	return m
}

func encodeMaterial(e *encoder, m *scene.Material) {
	e.i32(m.ID)
	e.i32(m.Index)
	e.str(m.Name)
	e.f32s(m.Color[:]...)
	e.flag(m.ColorMap != nil)
	if t := m.ColorMap; t != nil {
		e.str(t.Name)
		e.u32(uint32(len(t.Data)))
		e.raw(t.Data)
	}
}

func decodeMaterial(d *decoder) *scene.Material {
	m := &scene.Material{ID: d.i32(), Index: d.i32(), Name: d.str()}
	for i := range m.Color {
		m.Color[i] = d.f32()
	}
	if d.flag() {
		t := &scene.Texture{Name: d.str()}
		t.Data = append([]byte(nil), d.bytes(d.count(1))...)
		m.ColorMap = t
	}
	return m
}

func encodeClip(e *encoder, c *scene.AnimationClip) {
	e.str(c.Name)
	e.f32(c.FrameRate)
	e.u32(uint32(len(c.Animations)))
	for _, a := range c.Animations {
		e.str(a.Path)
		e.u8(uint8(a.Kind))
		e.u32(uint32(len(a.Channels)))
		for _, ch := range a.Channels {
			e.str(ch.Name)
			e.u8(uint8(ch.Components))
			e.u8(uint8(ch.Interp))
			e.f32Array(ch.Times)
			e.f32Array(ch.Values)
		}
	}
}

func decodeClip(d *decoder) (*scene.AnimationClip, error) {
	c := &scene.AnimationClip{Name: d.str(), FrameRate: d.f32()}
	n := d.count(4 + 1 + 4)
	for i := 0; i < n && d.err == nil; i++ {
		a := &scene.Animation{Path: d.str(), Kind: scene.EntityKind(d.u8())}
		nc := d.count(4 + 2 + 8)
		for j := 0; j < nc && d.err == nil; j++ {
			ch := &scene.Channel{
				Name:       d.str(),
				Components: int(d.u8()),
				Interp:     scene.Interpolation(d.u8()),
			}
			ch.Times = d.f32Array()
			ch.Values = d.f32Array()
			if d.err == nil && len(ch.Values) != len(ch.Times)*ch.Components {
				return nil, fmt.Errorf("%w: channel %s of %s has %d values for %d keys",
					ErrMalformed, ch.Name, a.Path, len(ch.Values), len(ch.Times))
			}
			a.Channels = append(a.Channels, ch)
		}
		c.Animations = append(c.Animations, a)
	}
	if d.err != nil {
		return nil, d.err
	}
	return c, nil
}
