package scene

// BoxMesh returns an axis-aligned cube with 8 points and 6 quads, centered
// on the origin. All faces use material slot 0.
func BoxMesh(size float32) *MeshData {
	h := size / 2
	m := &MeshData{
		Points: [][3]float32{
			{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
			{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
		},
		Counts:      []int32{4, 4, 4, 4, 4, 4},
		MaterialIDs: []int32{0, 0, 0, 0, 0, 0},
		Indices: []int32{
			0, 3, 2, 1, // -Z
			4, 5, 6, 7, // +Z
			0, 1, 5, 4, // -Y
			3, 7, 6, 2, // +Y
			0, 4, 7, 3, // -X
			1, 2, 6, 5, // +X
		},
	}
	normals := [][3]float32{{0, 0, -1}, {0, 0, 1}, {0, -1, 0}, {0, 1, 0}, {-1, 0, 0}, {1, 0, 0}}
	uvs := [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	m.UVs = [][][2]float32{nil}
	for _, n := range normals {
		for c := 0; c < 4; c++ {
			m.Normals = append(m.Normals, n)
			m.UVs[0] = append(m.UVs[0], uvs[c])
		}
	}
	return m
}

// PlaneMesh returns a single quad in the XZ plane.
func PlaneMesh(size float32) *MeshData {
	h := size / 2
	return &MeshData{
		Points:      [][3]float32{{-h, 0, -h}, {h, 0, -h}, {h, 0, h}, {-h, 0, h}},
		Counts:      []int32{4},
		MaterialIDs: []int32{0},
		Indices:     []int32{0, 3, 2, 1},
		Normals:     [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
		UVs:         [][][2]float32{{{0, 0}, {0, 1}, {1, 1}, {1, 0}}},
	}
}
