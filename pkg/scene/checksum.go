package scene

import (
	"encoding/binary"
	gomath "math"

	"github.com/cespare/xxhash/v2"
)

// hasher feeds fixed-width little-endian values into an xxhash digest.
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher {
	return &hasher{d: xxhash.New()}
}

func (h *hasher) u32(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[:4], v)
	_, _ = h.d.Write(h.buf[:4])
}

func (h *hasher) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) f32(v float32) { h.u32(gomath.Float32bits(v)) }
func (h *hasher) i32(v int32)   { h.u32(uint32(v)) }

func (h *hasher) flag(v bool) {
	if v {
		h.u32(1)
	} else {
		h.u32(0)
	}
}

func (h *hasher) str(s string) {
	h.u32(uint32(len(s)))
	_, _ = h.d.WriteString(s)
}

func (h *hasher) f32s(vs ...float32) {
	for _, v := range vs {
		h.f32(v)
	}
}

func (h *hasher) sum() uint64 { return h.d.Sum64() }

// TransformChecksum hashes the non-geometry state of the entity: kind,
// visibility, local transform, reference and camera/light/bone payloads.
func (e *Entity) TransformChecksum() uint64 {
	h := newHasher()
	h.u32(uint32(e.Kind))
	h.flag(e.Visible)
	h.str(e.Reference)

	t := e.Local
	h.f32s(t.Position.X, t.Position.Y, t.Position.Z)
	h.u32(uint32(t.Rotation.Mode))
	q := t.Rotation.ToQuat()
	h.f32s(q.X, q.Y, q.Z, q.W)
	h.f32s(t.Scale.X, t.Scale.Y, t.Scale.Z)

	if c := e.Camera; c != nil {
		h.flag(c.Ortho)
		h.f32s(c.NearPlane, c.FarPlane, c.FOV, c.FocalLength)
		h.f32s(c.SensorSize[:]...)
		h.f32s(c.LensShift[:]...)
	}
	if l := e.Light; l != nil {
		h.u32(uint32(l.Type))
		h.f32s(l.Color[:]...)
		h.f32s(l.Intensity, l.Range, l.SpotAngle)
	}
	if b := e.Bone; b != nil {
		h.f32s(b.BindPose[:]...)
	}
	return h.sum()
}

// GeometryChecksum hashes the mesh payload. Entities without geometry
// return 0.
func (e *Entity) GeometryChecksum() uint64 {
	m := e.Mesh
	if m == nil {
		return 0
	}
	h := newHasher()
	h.u32(uint32(len(m.Points)))
	for _, p := range m.Points {
		h.f32s(p[:]...)
	}
	h.u32(uint32(m.NormalDomain))
	h.u32(uint32(len(m.Normals)))
	for _, n := range m.Normals {
		h.f32s(n[:]...)
	}
	h.u32(uint32(len(m.Tangents)))
	for _, t := range m.Tangents {
		h.f32s(t[:]...)
	}
	h.u32(uint32(len(m.UVs)))
	for _, ch := range m.UVs {
		h.u32(uint32(len(ch)))
		for _, uv := range ch {
			h.f32s(uv[:]...)
		}
	}
	h.u32(uint32(len(m.Colors)))
	for _, c := range m.Colors {
		h.f32s(c[:]...)
	}
	h.u32(uint32(len(m.Counts)))
	for _, c := range m.Counts {
		h.i32(c)
	}
	for _, id := range m.MaterialIDs {
		h.i32(id)
	}
	h.u32(uint32(len(m.Indices)))
	for _, i := range m.Indices {
		h.i32(i)
	}
	f := m.Flags
	h.flag(f.MirrorX)
	h.flag(f.MirrorY)
	h.flag(f.MirrorZ)
	h.flag(f.DoubleSided)
	h.flag(f.GenNormals)
	h.flag(f.GenTangents)
	h.flag(f.FlipFaces)
	for _, b := range m.Bones {
		h.str(b.Path)
		h.f32s(b.BindPose[:]...)
		h.f32s(b.Weights...)
	}
	for _, bs := range m.BlendShapes {
		h.str(bs.Name)
		h.f32(bs.Weight)
		for _, d := range bs.Deltas {
			h.f32s(d[:]...)
		}
	}
	return h.sum()
}

// TopologyChecksum hashes only the polygon layout.
func (m *MeshData) TopologyChecksum() uint64 {
	h := newHasher()
	h.u32(uint32(len(m.Points)))
	for _, c := range m.Counts {
		h.i32(c)
	}
	for _, i := range m.Indices {
		h.i32(i)
	}
	return h.sum()
}

// Checksum hashes the material record.
func (m *Material) Checksum() uint64 {
	h := newHasher()
	h.i32(m.ID)
	h.i32(m.Index)
	h.str(m.Name)
	h.f32s(m.Color[:]...)
	if t := m.ColorMap; t != nil {
		h.str(t.Name)
		h.u64(xxhash.Sum64(t.Data))
	}
	return h.sum()
}
