package scene

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshbridge/pkg/math"
)

// InvalidID marks a polygon whose material could not be resolved.
const InvalidID int32 = -1

// ErrInvalidMesh is returned by Validate for inconsistent mesh data.
var ErrInvalidMesh = errors.New("invalid mesh")

// NormalDomain says whether normals are stored per index or per point.
type NormalDomain uint8

// Normal domains.
const (
	NormalsPerIndex NormalDomain = iota
	NormalsPerVertex
)

// MeshFlags carries refinement hints for the receiver.
type MeshFlags struct {
	MirrorX     bool
	MirrorY     bool
	MirrorZ     bool
	DoubleSided bool
	GenNormals  bool
	GenTangents bool
	FlipFaces   bool
}

// MeshData is polygon geometry in flat arrays.
//
// Counts holds the corner count of each polygon and Indices the point index
// of every corner, polygon after polygon. Per-index channels (UVs, colors,
// per-index normals) have one element per entry of Indices.
type MeshData struct {
	Points       [][3]float32
	Normals      [][3]float32
	NormalDomain NormalDomain
	Tangents     [][4]float32
	UVs          [][][2]float32
	Colors       [][4]float32

	Counts      []int32
	MaterialIDs []int32
	Indices     []int32

	Flags       MeshFlags
	Bones       []BoneWeights
	BlendShapes []BlendShape
}

// BoneWeights binds a mesh to one bone. Weights has one entry per point.
type BoneWeights struct {
	Path     string
	BindPose math.Mat4
	Weights  []float32
}

// BlendShape is a named set of point offsets from the base shape.
type BlendShape struct {
	Name   string
	Weight float32 // 0..100
	Deltas [][3]float32
}

// VertexCount returns the number of points.
func (m *MeshData) VertexCount() int {
	return len(m.Points)
}

// IndexCount returns the number of polygon corners.
func (m *MeshData) IndexCount() int {
	return len(m.Indices)
}

// PolygonCount returns the number of polygons.
func (m *MeshData) PolygonCount() int {
	return len(m.Counts)
}

// Validate checks the array lengths and index ranges against each other.
func (m *MeshData) Validate() error {
	total := 0
	for i, c := range m.Counts {
		if c < 3 {
			return fmt.Errorf("%w: polygon %d has %d corners", ErrInvalidMesh, i, c)
		}
		total += int(c)
	}
	if total != len(m.Indices) {
		return fmt.Errorf("%w: counts sum to %d, have %d indices", ErrInvalidMesh, total, len(m.Indices))
	}
	if len(m.MaterialIDs) != 0 && len(m.MaterialIDs) != len(m.Counts) {
		return fmt.Errorf("%w: %d material ids for %d polygons", ErrInvalidMesh, len(m.MaterialIDs), len(m.Counts))
	}
	for i, idx := range m.Indices {
		if idx < 0 || int(idx) >= len(m.Points) {
			return fmt.Errorf("%w: index %d out of range (%d)", ErrInvalidMesh, i, idx)
		}
	}
	if len(m.Normals) != 0 {
		want := len(m.Indices)
		if m.NormalDomain == NormalsPerVertex {
			want = len(m.Points)
		}
		if len(m.Normals) != want {
			return fmt.Errorf("%w: %d normals, want %d", ErrInvalidMesh, len(m.Normals), want)
		}
	}
	for ch, uv := range m.UVs {
		if len(uv) != len(m.Indices) {
			return fmt.Errorf("%w: uv channel %d has %d entries, want %d", ErrInvalidMesh, ch, len(uv), len(m.Indices))
		}
	}
	if len(m.Colors) != 0 && len(m.Colors) != len(m.Indices) {
		return fmt.Errorf("%w: %d colors, want %d", ErrInvalidMesh, len(m.Colors), len(m.Indices))
	}
	for _, b := range m.Bones {
		if len(b.Weights) != len(m.Points) {
			return fmt.Errorf("%w: bone %s has %d weights, want %d", ErrInvalidMesh, b.Path, len(b.Weights), len(m.Points))
		}
	}
	for _, bs := range m.BlendShapes {
		if len(bs.Deltas) != len(m.Points) {
			return fmt.Errorf("%w: blend shape %s has %d deltas, want %d", ErrInvalidMesh, bs.Name, len(bs.Deltas), len(m.Points))
		}
	}
	return nil
}

// Transform applies m to points and rotates normals and blend shape deltas.
func (m *MeshData) Transform(mat math.Mat4) {
	for i, p := range m.Points {
		m.Points[i] = mat.TransformPoint(p)
	}
	nm := mat.NormalMatrix()
	for i, n := range m.Normals {
		m.Normals[i] = math.V3(nm.TransformDirection(n)).Normalize().Array()
	}
	for i, t := range m.Tangents {
		d := math.V3(mat.TransformDirection([3]float32{t[0], t[1], t[2]})).Normalize()
		m.Tangents[i] = [4]float32{d.X, d.Y, d.Z, t[3]}
	}
	for _, bs := range m.BlendShapes {
		for i, d := range bs.Deltas {
			bs.Deltas[i] = mat.TransformDirection(d)
		}
	}
}

// Clone returns a deep copy.
func (m *MeshData) Clone() *MeshData {
	c := &MeshData{
		Points:       append([][3]float32(nil), m.Points...),
		Normals:      append([][3]float32(nil), m.Normals...),
		NormalDomain: m.NormalDomain,
		Tangents:     append([][4]float32(nil), m.Tangents...),
		Colors:       append([][4]float32(nil), m.Colors...),
		Counts:       append([]int32(nil), m.Counts...),
		MaterialIDs:  append([]int32(nil), m.MaterialIDs...),
		Indices:      append([]int32(nil), m.Indices...),
		Flags:        m.Flags,
	}
	for _, uv := range m.UVs {
		c.UVs = append(c.UVs, append([][2]float32(nil), uv...))
	}
	for _, b := range m.Bones {
		c.Bones = append(c.Bones, BoneWeights{Path: b.Path, BindPose: b.BindPose, Weights: append([]float32(nil), b.Weights...)})
	}
	for _, bs := range m.BlendShapes {
		c.BlendShapes = append(c.BlendShapes, BlendShape{Name: bs.Name, Weight: bs.Weight, Deltas: append([][3]float32(nil), bs.Deltas...)})
	}
	return c
}
