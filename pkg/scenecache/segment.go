package scenecache

import (
	"sort"
	"strings"

	"github.com/Faultbox/meshbridge/pkg/scene"
)

// SplitSegments partitions s into at most max scenes. Segment 0 gets the
// settings, materials, animation and every non-mesh entity. Meshes are
// placed largest first on the geometry segment with the fewest vertices so
// far. With max <= 1 everything stays in segment 0.
func SplitSegments(s *scene.Scene, max int) []*scene.Scene {
	base := &scene.Scene{Settings: s.Settings, Materials: s.Materials, Clips: s.Clips}
	var meshes []*scene.Entity
	for _, e := range s.Entities {
		if e.Kind == scene.KindMesh {
			meshes = append(meshes, e)
		} else {
			base.Entities = append(base.Entities, e)
		}
	}

	n := max - 1
	if n > len(meshes) {
		n = len(meshes)
	}
	if n <= 0 {
		base.Entities = append(base.Entities, meshes...)
		return []*scene.Scene{base}
	}

	sort.SliceStable(meshes, func(i, j int) bool {
		return meshes[i].VertexCount() > meshes[j].VertexCount()
	})
	segs := make([]*scene.Scene, n)
	load := make([]int, n)
	for i := range segs {
		segs[i] = &scene.Scene{Settings: s.Settings}
	}
	for _, m := range meshes {
		best := 0
		for i := 1; i < n; i++ {
			if load[i] < load[best] {
				best = i
			}
		}
		segs[best].Entities = append(segs[best].Entities, m)
		load[best] += m.VertexCount()
	}
	return append([]*scene.Scene{base}, segs...)
}

// MergeSegments joins decoded segments into one scene. Entities are ordered
// by path depth so parents precede children.
func MergeSegments(segs []*scene.Scene) *scene.Scene {
	out := &scene.Scene{}
	if len(segs) == 0 {
		return out
	}
	out.Settings = segs[0].Settings
	for _, s := range segs {
		out.Entities = append(out.Entities, s.Entities...)
		out.Materials = append(out.Materials, s.Materials...)
		out.Clips = append(out.Clips, s.Clips...)
	}
	sort.SliceStable(out.Entities, func(i, j int) bool {
		return depth(out.Entities[i].Path) < depth(out.Entities[j].Path)
	})
	for i, e := range out.Entities {
		e.Order = i
	}
	return out
}

func depth(path string) int {
	return strings.Count(path, "/")
}
