package extract

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Faultbox/meshbridge/internal/graph"
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/internal/host/memhost"
	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// newTestWalker builds a walker over a registry primed with doc's materials.
func newTestWalker(doc *memhost.Scene, s Settings) (*Walker, *graph.Graph) {
	g := graph.New(nil)
	mats := graph.NewMaterialRegistry()
	mats.Update(doc.Materials())
	return NewWalker(g, mats, s, nil), g
}

func boxObject(name string) *memhost.Object {
	m := memhost.MeshFromData(scene.BoxMesh(2))
	m.MaterialSlots = []string{"Default"}
	return memhost.NewObject(name, host.ObjectMesh).SetMesh(m, nil)
}

func paths(g *graph.Graph) []string {
	var out []string
	for _, e := range g.Entities() {
		out = append(out, e.Path)
	}
	return out
}

func TestExportBox(t *testing.T) {
	doc := memhost.NewScene()
	doc.AddMaterial(host.Material{Name: "Default", Color: [4]float32{1, 1, 1, 1}})
	box := doc.Add(boxObject("Box"))

	w, g := newTestWalker(doc, DefaultSettings())
	e, err := w.ExportObject(box, true)
	if err != nil {
		t.Fatalf("ExportObject() error = %v", err)
	}

	if e.Path != "/Box" || e.Kind != scene.KindMesh {
		t.Fatalf("entity = %s (%v)", e.Path, e.Kind)
	}
	m := e.Mesh
	if m.VertexCount() != 8 || m.PolygonCount() != 6 {
		t.Errorf("mesh: %d points, %d polygons", m.VertexCount(), m.PolygonCount())
	}
	for i, c := range m.Counts {
		if c != 4 {
			t.Errorf("count[%d] = %d, want 4", i, c)
		}
	}
	for i, id := range m.MaterialIDs {
		if id != 0 {
			t.Errorf("material id[%d] = %d, want 0", i, id)
		}
	}
	if len(m.Normals) != 24 || len(m.UVs) != 1 {
		t.Errorf("channels: %d normals, %d uv sets", len(m.Normals), len(m.UVs))
	}
	if m.Flags.GenNormals || !m.Flags.GenTangents {
		t.Errorf("flags = %+v", m.Flags)
	}
	if g.Len() != 1 {
		t.Errorf("graph has %d entities, want 1", g.Len())
	}
}

func TestMissingMaterialIsInvalid(t *testing.T) {
	doc := memhost.NewScene()
	box := doc.Add(boxObject("Box"))

	w, _ := newTestWalker(doc, DefaultSettings())
	e, err := w.ExportObject(box, true)
	if err != nil {
		t.Fatal(err)
	}
	if e.Mesh.MaterialIDs[0] != scene.InvalidID {
		t.Errorf("material id = %d, want InvalidID", e.Mesh.MaterialIDs[0])
	}
}

func TestOptionalChannelsOmitted(t *testing.T) {
	doc := memhost.NewScene()
	m := memhost.MeshFromData(scene.BoxMesh(1))
	m.Normals = m.Normals[:5] // wrong length, dropped
	m.UVs = nil
	obj := doc.Add(memhost.NewObject("Box", host.ObjectMesh).SetMesh(m, nil))

	w, _ := newTestWalker(doc, DefaultSettings())
	e, err := w.ExportObject(obj, true)
	if err != nil {
		t.Fatalf("ExportObject() error = %v", err)
	}
	if e.Mesh.Normals != nil || e.Mesh.UVs != nil {
		t.Error("invalid or missing channels should be omitted")
	}
	if !e.Mesh.Flags.GenNormals {
		t.Error("receiver should be asked to generate normals")
	}
}

func TestParentsExportedFirst(t *testing.T) {
	doc := memhost.NewScene()
	box := doc.Add(boxObject("Box"))
	child := doc.Add(boxObject("Box.001").SetParent(box))

	w, g := newTestWalker(doc, DefaultSettings())
	if _, err := w.ExportObject(child, true); err != nil {
		t.Fatal(err)
	}
	if _, err := w.ExportObject(box, true); err != nil {
		t.Fatal(err)
	}

	want := []string{"/Box", "/Box/Box.001"}
	if got := paths(g); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestDisabledKindsFallBackForParents(t *testing.T) {
	doc := memhost.NewScene()
	cam := doc.Add(memhost.NewObject("Camera", host.ObjectCamera))
	light := doc.Add(memhost.NewObject("Light", host.ObjectLight))
	child := doc.Add(boxObject("Box").SetParent(light))

	s := DefaultSettings()
	s.SyncCameras = false
	s.SyncLights = false
	w, g := newTestWalker(doc, s)

	if e, err := w.ExportObject(cam, true); err != nil || e != nil {
		t.Errorf("disabled camera tip: entity %v, err %v", e, err)
	}
	if _, err := w.ExportObject(child, true); err != nil {
		t.Fatal(err)
	}
	if e := g.Get("/Light"); e == nil || e.Kind != scene.KindTransform {
		t.Errorf("disabled light parent should be a transform, got %+v", e)
	}
	if g.Exists("/Camera") {
		t.Error("disabled camera should not be exported")
	}
}

func TestSkippedTipStillExportedAsParent(t *testing.T) {
	doc := memhost.NewScene()
	cam := doc.Add(memhost.NewObject("Cam", host.ObjectCamera))
	box := doc.Add(boxObject("Box").SetParent(cam))

	s := DefaultSettings()
	s.SyncCameras = false
	w, g := newTestWalker(doc, s)

	// Document order: the parent is asked for before its child.
	for _, obj := range []host.Object{cam, box} {
		if _, err := w.ExportObject(obj, true); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"/Cam", "/Cam/Box"}
	if got := paths(g); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if e := g.Get("/Cam"); e.Kind != scene.KindTransform {
		t.Errorf("/Cam kind = %v, want transform", e.Kind)
	}

	var exported []string
	for _, x := range w.Exported() {
		exported = append(exported, x.Entity.Path)
	}
	if !reflect.DeepEqual(exported, want) {
		t.Errorf("Exported() = %v, want %v", exported, want)
	}
}

func TestEmptyParentChain(t *testing.T) {
	doc := memhost.NewScene()
	a := doc.Add(memhost.NewObject("A", host.ObjectEmpty))
	c := doc.Add(memhost.NewObject("C", host.ObjectEmpty).SetParent(a))
	d := doc.Add(boxObject("D").SetParent(c))

	w, g := newTestWalker(doc, DefaultSettings())
	for _, obj := range []host.Object{a, c, d} {
		if _, err := w.ExportObject(obj, true); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"/A", "/A/C", "/A/C/D"}
	if got := paths(g); !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}

	// A second request for a skipped tip stays a no-op.
	w.Begin()
	if e, err := w.ExportObject(a, true); err != nil || e != nil {
		t.Errorf("empty tip: entity %v, err %v", e, err)
	}
	if e, err := w.ExportObject(a, true); err != nil || e != nil {
		t.Errorf("repeated empty tip: entity %v, err %v", e, err)
	}
}

func TestEmptyTipSkipped(t *testing.T) {
	doc := memhost.NewScene()
	empty := doc.Add(memhost.NewObject("Empty", host.ObjectEmpty))
	w, g := newTestWalker(doc, DefaultSettings())
	if e, _ := w.ExportObject(empty, true); e != nil || g.Len() != 0 {
		t.Error("an empty without children or instances is not exported")
	}
}

func TestCameraAndLight(t *testing.T) {
	doc := memhost.NewScene()
	cam := doc.Add(memhost.NewObject("Camera", host.ObjectCamera))
	cam.Camera().FOV = 35
	light := doc.Add(memhost.NewObject("Light", host.ObjectLight))
	light.SetLight(&scene.LightData{Type: scene.LightSpot, Color: [4]float32{1, 0, 0, 1}, Intensity: 4, Range: 20, SpotAngle: 45})

	w, _ := newTestWalker(doc, DefaultSettings())
	ce, err := w.ExportObject(cam, true)
	if err != nil {
		t.Fatal(err)
	}
	if ce.Kind != scene.KindCamera || ce.Camera.FOV != 35 {
		t.Errorf("camera = %+v", ce.Camera)
	}
	// The entity holds a copy.
	cam.Camera().FOV = 90
	if ce.Camera.FOV != 35 {
		t.Error("camera payload should be copied")
	}

	le, err := w.ExportObject(light, true)
	if err != nil {
		t.Fatal(err)
	}
	if le.Light.Type != scene.LightSpot || le.Light.SpotAngle != 45 {
		t.Errorf("light = %+v", le.Light)
	}
}

func TestMirrorAndBakeModifiers(t *testing.T) {
	doc := memhost.NewScene()
	authored := memhost.MeshFromData(scene.PlaneMesh(1))
	evaluated := memhost.MeshFromData(scene.BoxMesh(1))
	obj := doc.Add(memhost.NewObject("Half", host.ObjectMesh).
		SetMesh(authored, evaluated).
		AddModifier(host.Modifier{Kind: host.ModifierMirror, Enabled: true, MirrorX: true, MirrorZ: true}))

	w, _ := newTestWalker(doc, DefaultSettings())
	e, err := w.ExportObject(obj, true)
	if err != nil {
		t.Fatal(err)
	}
	if e.Mesh.VertexCount() != 4 {
		t.Errorf("authored mesh expected, got %d points", e.Mesh.VertexCount())
	}
	if f := e.Mesh.Flags; !f.MirrorX || f.MirrorY || !f.MirrorZ {
		t.Errorf("mirror flags = %+v", f)
	}

	s := DefaultSettings()
	s.BakeModifiers = true
	w, _ = newTestWalker(doc, s)
	e, err = w.ExportObject(obj, true)
	if err != nil {
		t.Fatal(err)
	}
	if e.Mesh.VertexCount() != 8 {
		t.Errorf("evaluated mesh expected, got %d points", e.Mesh.VertexCount())
	}
	if e.Mesh.Flags.MirrorX {
		t.Error("baked meshes carry no mirror metadata")
	}
}

func TestCurveConversion(t *testing.T) {
	doc := memhost.NewScene()
	curve := doc.Add(memhost.NewObject("Curve", host.ObjectCurve).SetMesh(nil, memhost.MeshFromData(scene.PlaneMesh(1))))

	w, _ := newTestWalker(doc, DefaultSettings())
	e, err := w.ExportObject(curve, true)
	if err != nil || e == nil || e.Kind != scene.KindMesh || e.Mesh.VertexCount() != 4 {
		t.Fatalf("curve as mesh: entity %+v, err %v", e, err)
	}

	s := DefaultSettings()
	s.CurvesAsMesh = false
	w, _ = newTestWalker(doc, s)
	if e, _ := w.ExportObject(curve, true); e != nil {
		t.Error("curve tip should be skipped when conversion is off")
	}
}

func TestSkinning(t *testing.T) {
	doc := memhost.NewScene()
	rootLocal := scene.IdentityTransform()
	tipLocal := scene.IdentityTransform()
	tipLocal.Position = math.Vec3{Y: 1}
	arm := doc.Add(memhost.NewObject("Armature", host.ObjectArmature).SetBones([]host.Bone{
		{Name: "Tip", Parent: "Root", Local: tipLocal, Rest: math.Translate(0, 1, 0)},
		{Name: "Root", Local: rootLocal, Rest: math.Identity()},
	}))

	m := memhost.MeshFromData(scene.BoxMesh(1))
	m.VertexGroups = []string{"Unknown", "Tip"}
	m.Weights = make([][]host.GroupWeight, 8)
	m.Weights[3] = []host.GroupWeight{{Group: 1, Weight: 0.75}, {Group: 0, Weight: 0.25}}
	body := doc.Add(memhost.NewObject("Body", host.ObjectMesh).SetMesh(m, nil).
		AddModifier(host.Modifier{Kind: host.ModifierArmature, Enabled: true, Armature: arm}))

	w, g := newTestWalker(doc, DefaultSettings())
	e, err := w.ExportObject(body, true)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"/Armature", "/Armature/Root", "/Armature/Root/Tip", "/Body"}
	if got := paths(g); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if len(e.Mesh.Bones) != 1 {
		t.Fatalf("bones = %d, want 1", len(e.Mesh.Bones))
	}
	b := e.Mesh.Bones[0]
	if b.Path != "/Armature/Root/Tip" || len(b.Weights) != 8 || b.Weights[3] != 0.75 || b.Weights[0] != 0 {
		t.Errorf("bone = %s weights %v", b.Path, b.Weights)
	}
	if !b.BindPose.Translation().NearlyEqual(math.Vec3{Y: -1}, 1e-6) {
		t.Errorf("bind pose translation = %v", b.BindPose.Translation())
	}
	if tip := g.Get("/Armature/Root/Tip"); tip.Kind != scene.KindBone || tip.Local.Position.Y != 1 {
		t.Errorf("tip bone = %+v", tip)
	}
}

func TestBlendShapes(t *testing.T) {
	doc := memhost.NewScene()
	base := scene.PlaneMesh(1)
	m := memhost.MeshFromData(base)
	raised := append([][3]float32(nil), base.Points...)
	raised[2][1] = 0.5
	m.ShapeKeys = []host.ShapeKey{
		{Name: "Basis", Points: base.Points},
		{Name: "Raise", Value: 0.4, Points: raised},
	}
	obj := doc.Add(memhost.NewObject("Plane", host.ObjectMesh).SetMesh(m, nil))

	w, _ := newTestWalker(doc, DefaultSettings())
	e, err := w.ExportObject(obj, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Mesh.BlendShapes) != 1 {
		t.Fatalf("blend shapes = %d, want 1", len(e.Mesh.BlendShapes))
	}
	bs := e.Mesh.BlendShapes[0]
	if bs.Name != "Raise" || bs.Weight != 40 || bs.Deltas[2] != [3]float32{0, 0.5, 0} || bs.Deltas[0] != [3]float32{} {
		t.Errorf("blend shape = %+v", bs)
	}
}

func TestBakeTransform(t *testing.T) {
	doc := memhost.NewScene()
	box := doc.Add(boxObject("Box").SetPosition(math.Vec3{X: 10}))
	cam := doc.Add(memhost.NewObject("Camera", host.ObjectCamera).SetPosition(math.Vec3{Z: 5}))

	s := DefaultSettings()
	s.BakeTransform = true
	w, _ := newTestWalker(doc, s)

	e, err := w.ExportObject(box, true)
	if err != nil {
		t.Fatal(err)
	}
	if e.Local.Position != (math.Vec3{}) {
		t.Errorf("baked mesh local position = %v", e.Local.Position)
	}
	if e.Mesh.Points[0][0] != 9 {
		t.Errorf("baked point = %v, want x=9", e.Mesh.Points[0])
	}

	ce, err := w.ExportObject(cam, true)
	if err != nil {
		t.Fatal(err)
	}
	if !ce.Local.Position.NearlyEqual(math.Vec3{Z: 5}, 1e-5) {
		t.Errorf("baked camera keeps world placement, got %v", ce.Local.Position)
	}
}

func TestInstanceGroup(t *testing.T) {
	doc := memhost.NewScene()
	box := doc.Add(boxObject("Box"))
	doc.Add(boxObject("Box.001").SetParent(box))
	group := &host.Group{Name: "Props", Offset: math.Vec3{X: 1}, Objects: []host.Object{box}}
	inst := doc.Add(memhost.NewObject("Collection", host.ObjectEmpty).SetInstance(group))

	w, g := newTestWalker(doc, DefaultSettings())
	if _, err := w.ExportObject(inst, true); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"/Collection",
		"/Collection/Props",
		"/Box",
		"/Collection/Props/Box",
		"/Collection/Props/Box/Box.001",
	}
	if got := paths(g); !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}

	node := g.Get("/Collection/Props")
	if node.Local.Position != (math.Vec3{X: -1}) {
		t.Errorf("group node position = %v, want (-1,0,0)", node.Local.Position)
	}
	ref := g.Get("/Collection/Props/Box/Box.001")
	if ref.Kind != scene.KindTransform || ref.Reference != "/Box/Box.001" || ref.Mesh != nil {
		t.Errorf("reference = %+v", ref)
	}

	dry, err := w.Paths(inst)
	if err != nil {
		t.Fatal(err)
	}
	wantDry := []string{"/Collection", "/Collection/Props", "/Collection/Props/Box", "/Collection/Props/Box/Box.001"}
	if !reflect.DeepEqual(dry, wantDry) {
		t.Errorf("Paths() = %v, want %v", dry, wantDry)
	}
}

func TestRecursiveInstanceTerminates(t *testing.T) {
	doc := memhost.NewScene()
	group := &host.Group{Name: "Loop"}
	inner := doc.Add(memhost.NewObject("Inner", host.ObjectEmpty).SetInstance(group))
	group.Objects = []host.Object{inner}
	outer := doc.Add(memhost.NewObject("Outer", host.ObjectEmpty).SetInstance(group))

	w, g := newTestWalker(doc, DefaultSettings())
	if _, err := w.ExportObject(outer, true); err != nil {
		t.Fatal(err)
	}
	if g.Len() == 0 || g.Len() > 10 {
		t.Errorf("graph has %d entities", g.Len())
	}
}

func TestCyclicParentAborts(t *testing.T) {
	doc := memhost.NewScene()
	a := doc.Add(boxObject("A"))
	b := doc.Add(boxObject("B").SetParent(a))
	a.SetParent(b)

	w, _ := newTestWalker(doc, DefaultSettings())
	if _, err := w.ExportObject(a, true); !errors.Is(err, graph.ErrCyclicParent) {
		t.Errorf("ExportObject() error = %v, want ErrCyclicParent", err)
	}
}

func TestSampleFrames(t *testing.T) {
	tests := []struct {
		start, end, step int
		want             []int
	}{
		{1, 5, 1, []int{1, 2, 3, 4, 5}},
		{1, 10, 4, []int{1, 5, 9, 10}},
		{1, 9, 4, []int{1, 5, 9}},
		{3, 3, 2, []int{3}},
		{1, 3, 0, []int{1, 2, 3}},
	}
	for _, tt := range tests {
		if got := SampleFrames(tt.start, tt.end, tt.step); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SampleFrames(%d, %d, %d) = %v, want %v", tt.start, tt.end, tt.step, got, tt.want)
		}
	}
}

func TestAnimationSampler(t *testing.T) {
	doc := memhost.NewScene()
	doc.SetFrameRange(1, 25, 24)
	box := boxObject("Box")
	k0, k1 := scene.IdentityTransform(), scene.IdentityTransform()
	k1.Position = math.Vec3{X: 24}
	box.AddKey(memhost.Key{Frame: 1, Local: k0, Visible: true}).AddKey(memhost.Key{Frame: 25, Local: k1, Visible: true})
	doc.Add(box)
	doc.SetFrame(1)

	w, _ := newTestWalker(doc, DefaultSettings())
	if _, err := w.ExportObject(box, true); err != nil {
		t.Fatal(err)
	}

	sampler := AnimationSampler{Settings: DefaultAnimationSettings(), Extract: DefaultSettings()}
	sampler.Settings.TimeScale = 2
	clip, err := sampler.Sample(doc, w.Exported())
	if err != nil {
		t.Fatal(err)
	}

	if len(clip.Animations) != 1 {
		t.Fatalf("animations = %d, want 1", len(clip.Animations))
	}
	a := clip.Animations[0]
	if a.Path != "/Box" || len(a.Channels) != 1 {
		t.Fatalf("animation %s has %d channels, want translation only", a.Path, len(a.Channels))
	}
	tr := a.Channels[0]
	if tr.Name != scene.ChannelTranslation || tr.Len() != 2 {
		t.Fatalf("translation keys = %d, want 2 after reduction", tr.Len())
	}
	if tr.Times[1] != 2 {
		t.Errorf("last key time = %v, want 2 (1s at 24fps, doubled)", tr.Times[1])
	}
	if doc.Frames().Current != 1 {
		t.Errorf("document frame should be restored, got %d", doc.Frames().Current)
	}
}
