package scene

import (
	"fmt"

	"github.com/Faultbox/meshbridge/pkg/math"
)

// ApplyScale multiplies every length in the scene by factor: positions,
// points, blend shape deltas, bind pose translations and translation curves.
func (s *Scene) ApplyScale(factor float32) {
	if factor == 1 || factor == 0 {
		return
	}
	for _, e := range s.Entities {
		e.Local.Position = e.Local.Position.Scale(factor)
		if e.Bone != nil {
			scaleTranslation(&e.Bone.BindPose, factor)
		}
		if m := e.Mesh; m != nil {
			for i, p := range m.Points {
				m.Points[i] = [3]float32{p[0] * factor, p[1] * factor, p[2] * factor}
			}
			for _, bs := range m.BlendShapes {
				for i, d := range bs.Deltas {
					bs.Deltas[i] = [3]float32{d[0] * factor, d[1] * factor, d[2] * factor}
				}
			}
			for i := range m.Bones {
				scaleTranslation(&m.Bones[i].BindPose, factor)
			}
		}
		if c := e.Camera; c != nil {
			c.NearPlane *= factor
			c.FarPlane *= factor
		}
		if l := e.Light; l != nil {
			l.Range *= factor
		}
	}
	for _, clip := range s.Clips {
		for _, a := range clip.Animations {
			for _, c := range a.Channels {
				switch c.Name {
				case ChannelTranslation, ChannelNearPlane, ChannelFarPlane, ChannelRange:
					for i := range c.Values {
						c.Values[i] *= factor
					}
				}
			}
		}
	}
	s.Settings.ScaleFactor *= factor
}

// scaleTranslation scales the translation of an inverse bind matrix.
func scaleTranslation(m *math.Mat4, factor float32) {
	m[12] *= factor
	m[13] *= factor
	m[14] *= factor
}

// WorldMatrix composes the local transforms of path and every ancestor
// present in the scene.
func (s *Scene) WorldMatrix(path string) math.Mat4 {
	index := make(map[string]*Entity, len(s.Entities))
	for _, e := range s.Entities {
		index[e.Path] = e
	}
	return worldMatrix(index, path)
}

func worldMatrix(index map[string]*Entity, path string) math.Mat4 {
	m := math.Identity()
	for p := path; p != ""; p = ParentPath(p) {
		if e, ok := index[p]; ok {
			m = e.Local.Matrix().Mul(m)
		}
	}
	return m
}

// FlattenHierarchy moves every non-transform entity to the root, baking its
// world transform into its local one. Plain transforms are dropped. Name
// collisions get a hexadecimal suffix.
func (s *Scene) FlattenHierarchy() {
	index := make(map[string]*Entity, len(s.Entities))
	for _, e := range s.Entities {
		index[e.Path] = e
	}

	renamed := make(map[string]string)
	taken := make(map[string]bool)
	kept := make([]*Entity, 0, len(s.Entities))
	worlds := make([]math.Mat4, 0, len(s.Entities))
	for _, e := range s.Entities {
		if e.Kind == KindTransform {
			continue
		}
		name := e.Name()
		candidate := name
		for i := 0; taken[candidate]; i++ {
			candidate = fmt.Sprintf("%s%x", name, i)
		}
		taken[candidate] = true

		renamed[e.Path] = JoinPath("", candidate)
		kept = append(kept, e)
		worlds = append(worlds, worldMatrix(index, e.Path))
	}

	for i, e := range kept {
		e.Local = TransformFromMatrix(worlds[i])
		e.Path = renamed[e.Path]
		e.Order = i
		if e.Reference != "" {
			e.Reference = renamed[e.Reference]
		}
		if e.Mesh != nil {
			for bi := range e.Mesh.Bones {
				if p, ok := renamed[e.Mesh.Bones[bi].Path]; ok {
					e.Mesh.Bones[bi].Path = p
				}
			}
		}
	}
	for _, clip := range s.Clips {
		anims := clip.Animations[:0]
		for _, a := range clip.Animations {
			if p, ok := renamed[a.Path]; ok {
				a.Path = p
				anims = append(anims, a)
			}
		}
		clip.Animations = anims
	}
	s.Entities = kept
}

// MergeMeshes combines sibling meshes without skinning, blend shapes or
// children into the first of them. Merged points are expressed in the
// surviving mesh's local space.
func (s *Scene) MergeMeshes() {
	hasChildren := make(map[string]bool)
	for _, e := range s.Entities {
		hasChildren[e.ParentPath()] = true
	}

	groups := make(map[string][]*Entity)
	var parents []string
	for _, e := range s.Entities {
		m := e.Mesh
		if m == nil || len(m.Bones) > 0 || len(m.BlendShapes) > 0 || hasChildren[e.Path] {
			continue
		}
		parent := e.ParentPath()
		if _, ok := groups[parent]; !ok {
			parents = append(parents, parent)
		}
		groups[parent] = append(groups[parent], e)
	}

	removed := make(map[string]bool)
	for _, parent := range parents {
		g := groups[parent]
		if len(g) < 2 {
			continue
		}
		dst := g[0]
		toLocal := dst.Local.Matrix().Inverse()
		for _, src := range g[1:] {
			mesh := src.Mesh.Clone()
			mesh.Transform(toLocal.Mul(src.Local.Matrix()))
			dst.Mesh.append(mesh)
			removed[src.Path] = true
		}
	}
	if len(removed) == 0 {
		return
	}

	kept := s.Entities[:0]
	for _, e := range s.Entities {
		if !removed[e.Path] {
			e.Order = len(kept)
			kept = append(kept, e)
		}
	}
	s.Entities = kept
}

// append concatenates src into m. Channels missing from either side are
// dropped from the result.
func (m *MeshData) append(src *MeshData) {
	base := int32(len(m.Points))
	dstIndices, srcIndices := len(m.Indices), len(src.Indices)

	m.Points = append(m.Points, src.Points...)
	m.Counts = append(m.Counts, src.Counts...)
	for _, i := range src.Indices {
		m.Indices = append(m.Indices, i+base)
	}

	switch {
	case len(m.MaterialIDs) > 0 && len(src.MaterialIDs) > 0:
		m.MaterialIDs = append(m.MaterialIDs, src.MaterialIDs...)
	case len(m.MaterialIDs) > 0:
		for range src.Counts {
			m.MaterialIDs = append(m.MaterialIDs, InvalidID)
		}
	case len(src.MaterialIDs) > 0:
		ids := make([]int32, len(m.Counts)-len(src.Counts), len(m.Counts))
		for i := range ids {
			ids[i] = InvalidID
		}
		m.MaterialIDs = append(ids, src.MaterialIDs...)
	}

	if len(m.Normals) > 0 && len(src.Normals) > 0 && m.NormalDomain == src.NormalDomain {
		m.Normals = append(m.Normals, src.Normals...)
	} else {
		m.Normals = nil
		m.Flags.GenNormals = true
	}
	if len(m.Tangents) > 0 && len(src.Tangents) > 0 {
		m.Tangents = append(m.Tangents, src.Tangents...)
	} else {
		m.Tangents = nil
	}
	if len(m.Colors) == dstIndices && len(src.Colors) == srcIndices && len(m.Colors) > 0 {
		m.Colors = append(m.Colors, src.Colors...)
	} else {
		m.Colors = nil
	}
	channels := len(m.UVs)
	if len(src.UVs) < channels {
		channels = len(src.UVs)
	}
	m.UVs = m.UVs[:channels]
	for ch := 0; ch < channels; ch++ {
		m.UVs[ch] = append(m.UVs[ch], src.UVs[ch]...)
	}
	m.Flags.DoubleSided = m.Flags.DoubleSided || src.Flags.DoubleSided
}

// StripNormals drops normals and asks the receiver to regenerate them.
func (s *Scene) StripNormals() {
	for _, e := range s.Entities {
		if e.Mesh != nil {
			e.Mesh.Normals = nil
			e.Mesh.Flags.GenNormals = true
		}
	}
}

// StripTangents drops tangents and asks the receiver to regenerate them.
func (s *Scene) StripTangents() {
	for _, e := range s.Entities {
		if e.Mesh != nil {
			e.Mesh.Tangents = nil
			e.Mesh.Flags.GenTangents = true
		}
	}
}
