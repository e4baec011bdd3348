package extract

import (
	"fmt"

	"github.com/Faultbox/meshbridge/internal/graph"
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// MeshExtractor converts host geometry into flat mesh arrays.
type MeshExtractor struct {
	Settings  Settings
	Materials *graph.MaterialRegistry
	Resolver  graph.Resolver
}

// Source picks the geometry to read for obj under the bake policy.
func (x MeshExtractor) Source(obj host.Object) *host.Mesh {
	if x.Settings.BakeModifiers || obj.Kind() != host.ObjectMesh {
		if m := obj.EvaluatedMesh(); m != nil {
			return m
		}
	}
	return obj.Mesh()
}

func (x MeshExtractor) Extract(obj host.Object, e *scene.Entity) error {
	if err := (TransformExtractor{BakeTransform: x.Settings.BakeTransform}).Extract(obj, e); err != nil {
		return err
	}
	e.Mesh = &scene.MeshData{}
	src := x.Source(obj)
	if src == nil || !x.Settings.SyncMeshes {
		return nil
	}
	dst := e.Mesh

	x.extractTopology(src, dst)

	indexCount := len(dst.Indices)
	if x.Settings.SyncNormals && len(src.Normals) == indexCount && indexCount > 0 {
		dst.Normals = append([][3]float32(nil), src.Normals...)
		dst.NormalDomain = scene.NormalsPerIndex
	}
	if x.Settings.SyncUVs {
		for _, uv := range src.UVs {
			if len(uv) == indexCount && indexCount > 0 {
				dst.UVs = append(dst.UVs, append([][2]float32(nil), uv...))
			}
		}
	}
	if x.Settings.SyncColors && len(src.Colors) == indexCount && indexCount > 0 {
		dst.Colors = append([][4]float32(nil), src.Colors...)
	}

	if !x.Settings.BakeModifiers {
		for _, m := range obj.Modifiers() {
			if m.Kind == host.ModifierMirror && m.Enabled {
				dst.Flags.MirrorX = dst.Flags.MirrorX || m.MirrorX
				dst.Flags.MirrorY = dst.Flags.MirrorY || m.MirrorY
				dst.Flags.MirrorZ = dst.Flags.MirrorZ || m.MirrorZ
			}
		}
		if x.Settings.SyncBones {
			if err := x.extractBones(obj, src, dst); err != nil {
				return err
			}
		}
		if x.Settings.SyncBlendShapes {
			extractBlendShapes(src, dst)
		}
	}

	if x.Settings.BakeTransform {
		dst.Transform(obj.World())
	}

	dst.Flags.GenNormals = len(dst.Normals) == 0
	dst.Flags.GenTangents = len(dst.Tangents) == 0
	dst.Flags.DoubleSided = x.Settings.MakeDoubleSided

	if err := dst.Validate(); err != nil {
		return fmt.Errorf("extracting mesh %s: %w", e.Path, err)
	}
	return nil
}

// extractTopology copies points, polygon counts, indices and material ids.
// Polygons whose slot has no material get scene.InvalidID.
func (x MeshExtractor) extractTopology(src *host.Mesh, dst *scene.MeshData) {
	table := make([]int32, len(src.MaterialSlots))
	for i, name := range src.MaterialSlots {
		table[i] = scene.InvalidID
		if x.Materials != nil {
			table[i] = x.Materials.ID(name)
		}
	}
	if len(table) == 0 {
		table = append(table, scene.InvalidID)
	}

	dst.Points = append([][3]float32(nil), src.Points...)
	dst.Counts = make([]int32, len(src.Polygons))
	dst.MaterialIDs = make([]int32, len(src.Polygons))
	for pi, p := range src.Polygons {
		dst.Counts[pi] = int32(len(p.Indices))
		mid := scene.InvalidID
		if p.Material >= 0 && p.Material < len(table) {
			mid = table[p.Material]
		}
		dst.MaterialIDs[pi] = mid
		dst.Indices = append(dst.Indices, p.Indices...)
	}
}

// extractBones binds the mesh to the bones of its armature modifier. Only
// vertex groups naming a bone of that armature produce weights.
func (x MeshExtractor) extractBones(obj host.Object, src *host.Mesh, dst *scene.MeshData) error {
	arm := armatureOf(obj)
	if arm == nil || len(src.VertexGroups) == 0 {
		return nil
	}
	armPath, err := x.Resolver.Resolve(arm)
	if err != nil {
		return err
	}
	bones := arm.Bones()
	byName := make(map[string]host.Bone, len(bones))
	for _, b := range bones {
		byName[b.Name] = b
	}

	for gi, group := range src.VertexGroups {
		bone, ok := byName[group]
		if !ok {
			continue
		}
		path, err := graph.BonePath(armPath, bones, bone.Name)
		if err != nil {
			return err
		}
		weights := make([]float32, len(src.Points))
		for vi := range weights {
			if vi >= len(src.Weights) {
				break
			}
			for _, w := range src.Weights[vi] {
				if w.Group == gi {
					weights[vi] = w.Weight
				}
			}
		}
		dst.Bones = append(dst.Bones, scene.BoneWeights{
			Path:     path,
			BindPose: bone.Rest.Inverse(),
			Weights:  weights,
		})
	}
	return nil
}

// extractBlendShapes turns absolute shape keys into deltas from the basis.
func extractBlendShapes(src *host.Mesh, dst *scene.MeshData) {
	if len(src.ShapeKeys) < 2 {
		return
	}
	basis := src.ShapeKeys[0].Points
	for _, key := range src.ShapeKeys[1:] {
		if len(key.Points) != len(basis) || len(key.Points) != len(dst.Points) {
			continue
		}
		bs := scene.BlendShape{Name: key.Name, Weight: key.Value * 100}
		bs.Deltas = make([][3]float32, len(key.Points))
		for i, p := range key.Points {
			b := basis[i]
			bs.Deltas[i] = [3]float32{p[0] - b[0], p[1] - b[1], p[2] - b[2]}
		}
		dst.BlendShapes = append(dst.BlendShapes, bs)
	}
}

// armatureOf returns the armature of the first enabled armature modifier.
func armatureOf(obj host.Object) host.Object {
	for _, m := range obj.Modifiers() {
		if m.Kind == host.ModifierArmature && m.Enabled && m.Armature != nil {
			return m.Armature
		}
	}
	return nil
}
