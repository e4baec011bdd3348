package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/internal/host/memhost"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

func TestResolve(t *testing.T) {
	root := memhost.NewObject("Box", host.ObjectMesh)
	child := memhost.NewObject("Box.001", host.ObjectMesh).SetParent(root)
	grandchild := memhost.NewObject("Tip", host.ObjectEmpty).SetParent(child)

	tests := []struct {
		obj  host.Object
		want string
	}{
		{root, "/Box"},
		{child, "/Box/Box.001"},
		{grandchild, "/Box/Box.001/Tip"},
	}
	var r Resolver
	for _, tt := range tests {
		got, err := r.Resolve(tt.obj)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", tt.obj.Name(), err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%s) = %q, want %q", tt.obj.Name(), got, tt.want)
		}
	}
}

func TestResolvePathExtendsParent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	objs := []*memhost.Object{memhost.NewObject("root", host.ObjectEmpty)}
	for i := 1; i < 200; i++ {
		o := memhost.NewObject(fmt.Sprintf("n%d", i), host.ObjectEmpty)
		if rng.Intn(4) != 0 {
			o.SetParent(objs[rng.Intn(len(objs))])
		}
		objs = append(objs, o)
	}

	var r Resolver
	for _, o := range objs {
		path, err := r.Resolve(o)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", o.Name(), err)
		}
		p := o.Parent()
		if p == nil {
			if path != "/"+o.Name() {
				t.Errorf("root %s resolved to %q", o.Name(), path)
			}
			continue
		}
		parentPath, _ := r.Resolve(p)
		if path != parentPath+"/"+o.Name() {
			t.Errorf("path %q does not extend parent %q", path, parentPath)
		}
	}
}

func TestResolveCycle(t *testing.T) {
	a := memhost.NewObject("A", host.ObjectEmpty)
	b := memhost.NewObject("B", host.ObjectEmpty).SetParent(a)
	a.SetParent(b)

	_, err := Resolver{}.Resolve(a)
	if !errors.Is(err, ErrCyclicParent) {
		t.Errorf("Resolve() error = %v, want ErrCyclicParent", err)
	}
}

func TestResolveUnresolvable(t *testing.T) {
	if _, err := (Resolver{}).Resolve(nil); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("nil object: error = %v", err)
	}
	if _, err := (Resolver{}).Resolve(memhost.NewObject("", host.ObjectEmpty)); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("empty name: error = %v", err)
	}
}

func TestBonePath(t *testing.T) {
	bones := []host.Bone{
		{Name: "Hips"},
		{Name: "Spine", Parent: "Hips"},
		{Name: "Head", Parent: "Spine"},
	}
	got, err := BonePath("/Armature", bones, "Head")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/Armature/Hips/Spine/Head" {
		t.Errorf("BonePath = %q", got)
	}

	if _, err := BonePath("/Armature", bones, "Tail"); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("missing bone: error = %v", err)
	}
	loop := []host.Bone{{Name: "A", Parent: "B"}, {Name: "B", Parent: "A"}}
	if _, err := BonePath("/Armature", loop, "A"); !errors.Is(err, ErrCyclicParent) {
		t.Errorf("bone loop: error = %v", err)
	}
}

func TestAddOrGetIdempotent(t *testing.T) {
	g := New(nil)
	e1, created := g.AddOrGet("/Box", scene.KindMesh)
	if !created {
		t.Error("first add should create")
	}
	e2, created := g.AddOrGet("/Box", scene.KindMesh)
	if created || e1 != e2 {
		t.Error("second add should return the existing record")
	}
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
}

func TestAddOrGetCollision(t *testing.T) {
	g := New(nil)
	e, _ := g.AddOrGet("/Thing", scene.KindMesh)
	e2, _ := g.AddOrGet("/Thing", scene.KindCamera)
	if e != e2 || e.Kind != scene.KindCamera || e.Mesh != nil {
		t.Errorf("collision should convert the record, got kind %v", e.Kind)
	}
	if g.Collisions() != 1 {
		t.Errorf("Collisions() = %d, want 1", g.Collisions())
	}
}

func TestInsertionOrderAndRemove(t *testing.T) {
	g := New(nil)
	paths := []string{"/a", "/a/b", "/c", "/a/b/d"}
	for _, p := range paths {
		g.AddOrGet(p, scene.KindTransform)
	}

	g.Remove("/c")
	g.Remove("/missing")

	var got []string
	for i, e := range g.Entities() {
		got = append(got, e.Path)
		if e.Order != i {
			t.Errorf("%s order = %d, want %d", e.Path, e.Order, i)
		}
	}
	if strings.Join(got, ",") != "/a,/a/b,/a/b/d" {
		t.Errorf("Entities() = %v", got)
	}
	if g.Exists("/c") {
		t.Error("/c should be removed")
	}

	g.Reset()
	if g.Len() != 0 || g.Get("/a") != nil {
		t.Error("Reset should clear the graph")
	}
}

func TestMaterialRegistryStableIDs(t *testing.T) {
	r := NewMaterialRegistry()
	mats := r.Update([]host.Material{{Name: "Red"}, {Name: "Green"}})
	if mats[0].ID != 0 || mats[1].ID != 1 {
		t.Fatalf("ids = %d, %d", mats[0].ID, mats[1].ID)
	}

	// Removing Red and adding Blue keeps Green's id and never reuses 0.
	mats = r.Update([]host.Material{{Name: "Green"}, {Name: "Blue"}})
	if mats[0].ID != 1 || mats[0].Index != 0 {
		t.Errorf("Green = id %d index %d, want id 1 index 0", mats[0].ID, mats[0].Index)
	}
	if mats[1].ID != 2 {
		t.Errorf("Blue id = %d, want 2", mats[1].ID)
	}
	if r.ID("Red") != scene.InvalidID {
		t.Error("removed material should resolve to InvalidID")
	}

	// Re-adding a name returns its original id.
	r.Update([]host.Material{{Name: "Red"}})
	if r.ID("Red") != 0 {
		t.Errorf("Red id = %d, want 0", r.ID("Red"))
	}
}

func TestMaterialRegistryTextures(t *testing.T) {
	tex := &host.Texture{Name: "brick.png", Data: []byte{0x89, 'P', 'N', 'G'}}
	in := []host.Material{{Name: "Brick", ColorMap: tex}}

	r := NewMaterialRegistry()
	if m := r.Update(in)[0]; m.ColorMap != nil {
		t.Error("textures are off by default")
	}

	r.SetTextures(true)
	m := r.Update(in)[0]
	if m.ColorMap == nil || m.ColorMap.Name != "brick.png" || string(m.ColorMap.Data) != string(tex.Data) {
		t.Fatalf("color map = %+v", m.ColorMap)
	}
	tex.Data[0] = 0
	if m.ColorMap.Data[0] != 0x89 {
		t.Error("the record should hold a copy of the image")
	}
}

func TestResolveSanitizesNames(t *testing.T) {
	root := memhost.NewObject("A/B", host.ObjectEmpty)
	child := memhost.NewObject("C", host.ObjectMesh).SetParent(root)
	plain := memhost.NewObject("A", host.ObjectEmpty)
	lookalike := memhost.NewObject("B", host.ObjectEmpty).SetParent(plain)

	var r Resolver
	got, err := r.Resolve(child)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/A_B/C" {
		t.Errorf("Resolve() = %q, want /A_B/C", got)
	}
	other, _ := r.Resolve(lookalike)
	if path, _ := r.Resolve(root); path == other {
		t.Errorf("%q collides with the path of a nested object", path)
	}

	bones := []host.Bone{{Name: "Spine/1"}, {Name: "Neck", Parent: "Spine/1"}}
	if got, _ := BonePath("/Rig", bones, "Neck"); got != "/Rig/Spine_1/Neck" {
		t.Errorf("BonePath() = %q, want /Rig/Spine_1/Neck", got)
	}
}
