package memhost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

func TestLoadFile(t *testing.T) {
	s, err := LoadFile("testdata/scene.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if got := len(s.Objects()); got != 6 {
		t.Errorf("objects = %d, want 6", got)
	}
	if f := s.Frames(); f.Start != 1 || f.End != 24 || f.FPS != 24 {
		t.Errorf("frames = %+v", f)
	}

	box := s.Find("Box")
	if box == nil || box.Kind() != host.ObjectMesh {
		t.Fatal("Box mesh not found")
	}
	if m := box.Mesh(); len(m.Points) != 8 || len(m.Polygons) != 6 || m.MaterialSlots[0] != "Red" {
		t.Errorf("Box mesh: %d points, %d polygons, slots %v", len(m.Points), len(m.Polygons), m.MaterialSlots)
	}

	child := s.Find("Box.001")
	if child.Parent() != host.Object(box) {
		t.Error("Box.001 should be parented to Box")
	}

	if cam := s.Find("Camera").Camera(); cam.FOV != 40 {
		t.Errorf("camera fov = %v, want 40", cam.FOV)
	}
	if l := s.Find("Sun").Light(); l.Type != scene.LightDirectional || l.Intensity != 3 {
		t.Errorf("light = %+v", l)
	}
	if b := s.Find("Armature").Bones(); len(b) != 2 || b[1].Parent != "Root" {
		t.Errorf("bones = %+v", b)
	}
	g := s.Find("Collection").Instance()
	if g == nil || len(g.Objects) != 1 || g.Offset.X != 1 {
		t.Errorf("instance group = %+v", g)
	}
}

func TestLoadFileTexture(t *testing.T) {
	dir := t.TempDir()
	img := []byte{0x89, 'P', 'N', 'G'}
	if err := os.WriteFile(filepath.Join(dir, "brick.png"), img, 0o644); err != nil {
		t.Fatal(err)
	}
	yaml := "materials: [{name: Brick, texture: brick.png}]\n"
	if err := os.WriteFile(filepath.Join(dir, "scene.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(filepath.Join(dir, "scene.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	tex := s.Materials()[0].ColorMap
	if tex == nil || tex.Name != "brick.png" || string(tex.Data) != string(img) {
		t.Errorf("color map = %+v", tex)
	}

	if _, err := Parse([]byte("materials: [{name: Brick, texture: " + filepath.Join(dir, "missing.png") + "}]")); err == nil {
		t.Error("a missing texture file should fail the load")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad kind", "objects: [{name: A, kind: teapot}]"},
		{"bad primitive", "objects: [{name: A, kind: mesh, primitive: torus}]"},
		{"unknown group", "objects: [{name: A, instance: Nope}]"},
		{"bad polygon", "objects: [{name: A, kind: mesh, points: [[0,0,0]], polygons: [[0, 1, 2]]}]"},
		{"bad yaml", "objects: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSetFrameEvaluatesKeys(t *testing.T) {
	s, err := LoadFile("testdata/scene.yaml")
	if err != nil {
		t.Fatal(err)
	}
	box := s.Find("Box")

	s.ResetUpdates()
	s.SetFrame(12)
	if !box.Updated() {
		t.Error("animated object should be updated after SetFrame")
	}
	want := math.Vec3{Z: 11}
	if !box.Local().Position.NearlyEqual(want, 1e-4) {
		t.Errorf("position at frame 12 = %v, want %v", box.Local().Position, want)
	}

	s.SetFrame(100)
	if box.Local().Position.Z != 23 {
		t.Errorf("position past last key = %v", box.Local().Position)
	}
}

func TestRemoveNotifiesDescendantsFirst(t *testing.T) {
	s := NewScene()
	parent := s.Add(NewObject("Parent", host.ObjectEmpty))
	child := NewObject("Child", host.ObjectMesh).SetParent(parent)
	s.Add(child)

	var removed []string
	s.OnRemove(func(o host.Object) {
		removed = append(removed, o.Name())
	})
	s.Remove(parent)

	if len(removed) != 2 || removed[0] != "Child" || removed[1] != "Parent" {
		t.Errorf("removed = %v", removed)
	}
	if len(s.Objects()) != 0 {
		t.Errorf("objects left: %d", len(s.Objects()))
	}
}

func TestWorldStopsOnCycle(t *testing.T) {
	a := NewObject("A", host.ObjectEmpty).SetPosition(math.Vec3{X: 1})
	b := NewObject("B", host.ObjectEmpty).SetParent(a)
	a.SetParent(b)

	// Must terminate.
	_ = a.World()
}
