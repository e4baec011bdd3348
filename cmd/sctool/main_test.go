package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
	"github.com/Faultbox/meshbridge/pkg/scenecache"
)

// writeCache writes three frames of a box moving along X next to a static
// camera.
func writeCache(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anim.sc")
	w, err := scenecache.Create(path, scenecache.DefaultSettings(), nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		box := scene.NewEntity("/Box", scene.KindMesh)
		box.Mesh = scene.BoxMesh(1)
		box.Local.Position = math.Vec3{X: float32(i)}
		cam := scene.NewEntity("/Camera", scene.KindCamera)
		s := &scene.Scene{
			Settings: scene.Settings{ScaleFactor: 1, FrameRate: 24},
			Entities: []*scene.Entity{box, cam},
		}
		require.NoError(t, w.Add(context.Background(), s, float32(i)*0.5))
	}
	require.NoError(t, w.Close())
	return path
}

func TestInfo(t *testing.T) {
	path := writeCache(t)
	var out bytes.Buffer
	require.NoError(t, cmdInfo(&out, []string{path}))
	assert.Contains(t, out.String(), "Frames:    3 (0.000s - 1.000s)")
	assert.Contains(t, out.String(), "Entities:  2")
}

func TestList(t *testing.T) {
	path := writeCache(t)

	tests := []struct {
		args []string
		want []string
	}{
		{[]string{path}, []string{"/Box", "/Camera"}},
		{[]string{path, "box"}, []string{"/Box"}},
		{[]string{path, "cam*"}, []string{"/Camera"}},
		{[]string{"-n", "1", path}, []string{"/Box"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, cmdList(&out, tt.args))
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			require.Len(t, lines, len(tt.want))
			for i, want := range tt.want {
				assert.Contains(t, lines[i], want)
			}
		})
	}
}

func TestFrames(t *testing.T) {
	path := writeCache(t)
	var out bytes.Buffer
	require.NoError(t, cmdFrames(&out, []string{path}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "t=1.0000")
}

func TestDump(t *testing.T) {
	path := writeCache(t)
	var out bytes.Buffer
	require.NoError(t, cmdDump(&out, []string{"-t", "0.7", path, "/Box"}))
	assert.Contains(t, out.String(), "frame 1 t=0.5000")
	assert.Contains(t, out.String(), "pos=(1.000, 0.000, 0.000)")
	assert.Contains(t, out.String(), "verts=8")
	assert.NotContains(t, out.String(), "/Camera")
}

func TestDumpNested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested.sc")
	w, err := scenecache.Create(path, scenecache.DefaultSettings(), nil)
	require.NoError(t, err)
	root := scene.NewEntity("/Rig", scene.KindTransform)
	root.Local.Position = math.Vec3{X: 2}
	lid := scene.NewEntity("/Rig/Lid", scene.KindMesh)
	lid.Mesh = scene.BoxMesh(1)
	lid.Local.Position = math.Vec3{Z: 1}
	s := &scene.Scene{
		Settings:  scene.Settings{ScaleFactor: 1, FrameRate: 24},
		Entities:  []*scene.Entity{root, lid},
		Materials: []*scene.Material{{Name: "Brick", ColorMap: &scene.Texture{Name: "brick.png", Data: []byte("png")}}},
	}
	require.NoError(t, w.Add(context.Background(), s, 0))
	require.NoError(t, w.Close())

	var out bytes.Buffer
	require.NoError(t, cmdDump(&out, []string{path}))
	lines := strings.Split(out.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.NotContains(t, lines[1], "world=")
	assert.Contains(t, lines[2], "pos=(0.000, 0.000, 1.000) world=(2.000, 0.000, 1.000)")
	assert.Contains(t, out.String(), "material 0 Brick map=brick.png (3 bytes)")
}

func TestMissingArgs(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, cmdInfo(&out, nil))
	assert.Error(t, cmdDump(&out, nil))
	assert.Error(t, cmdInfo(&out, []string{filepath.Join(t.TempDir(), "missing.sc")}))
}
