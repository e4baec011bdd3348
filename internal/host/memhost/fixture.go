package memhost

import (
	"fmt"
	gomath "math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Fixture is the YAML form of a scene document.
type Fixture struct {
	Frames    FixtureFrames     `yaml:"frames"`
	Materials []FixtureMaterial `yaml:"materials"`
	Objects   []FixtureObject   `yaml:"objects"`
	// Dir resolves relative texture paths.
	Dir string `yaml:"-"`
	Groups    []FixtureGroup    `yaml:"groups"`
}

// FixtureFrames is the document timeline.
type FixtureFrames struct {
	Start   int     `yaml:"start"`
	End     int     `yaml:"end"`
	Current int     `yaml:"current"`
	FPS     float32 `yaml:"fps"`
}

// FixtureMaterial is a document material.
type FixtureMaterial struct {
	Name    string     `yaml:"name"`
	Color   [4]float32 `yaml:"color"`
	Texture string     `yaml:"texture"` // image file used as color map
}

// FixtureObject describes one object and its children.
type FixtureObject struct {
	Name          string      `yaml:"name"`
	Kind          string      `yaml:"kind"`
	Hidden        bool        `yaml:"hidden"`
	Selected      bool        `yaml:"selected"`
	Position      [3]float32  `yaml:"position"`
	Rotation      [3]float32  `yaml:"rotation"` // Euler degrees
	RotationOrder string      `yaml:"rotation_order"`
	Scale         *[3]float32 `yaml:"scale"`

	Primitive string       `yaml:"primitive"` // box | plane
	Size      float32      `yaml:"size"`
	Points    [][3]float32 `yaml:"points"`
	Polygons  [][]int32    `yaml:"polygons"`
	Materials []string     `yaml:"materials"`
	Mirror    string       `yaml:"mirror"` // any of "xyz"

	Camera *FixtureCamera `yaml:"camera"`
	Light  *FixtureLight  `yaml:"light"`
	Bones  []FixtureBone  `yaml:"bones"`

	Instance string          `yaml:"instance"` // group name
	Keys     []FixtureKey    `yaml:"keys"`
	Children []FixtureObject `yaml:"children"`
}

// FixtureCamera overrides camera defaults.
type FixtureCamera struct {
	Ortho bool    `yaml:"ortho"`
	FOV   float32 `yaml:"fov"`
	Near  float32 `yaml:"near"`
	Far   float32 `yaml:"far"`
}

// FixtureLight overrides light defaults.
type FixtureLight struct {
	Type      string     `yaml:"type"`
	Color     [4]float32 `yaml:"color"`
	Intensity float32    `yaml:"intensity"`
	Range     float32    `yaml:"range"`
	SpotAngle float32    `yaml:"spot_angle"`
}

// FixtureBone is an armature bone.
type FixtureBone struct {
	Name     string     `yaml:"name"`
	Parent   string     `yaml:"parent"`
	Position [3]float32 `yaml:"position"`
}

// FixtureKey is a transform keyframe.
type FixtureKey struct {
	Frame    int         `yaml:"frame"`
	Position [3]float32  `yaml:"position"`
	Rotation [3]float32  `yaml:"rotation"`
	Scale    *[3]float32 `yaml:"scale"`
	Hidden   bool        `yaml:"hidden"`
}

// FixtureGroup is an instanceable collection of named objects.
type FixtureGroup struct {
	Name    string     `yaml:"name"`
	Offset  [3]float32 `yaml:"offset"`
	Objects []string   `yaml:"objects"`
}

var objectKinds = map[string]host.ObjectKind{
	"":         host.ObjectEmpty,
	"empty":    host.ObjectEmpty,
	"mesh":     host.ObjectMesh,
	"curve":    host.ObjectCurve,
	"text":     host.ObjectText,
	"surface":  host.ObjectSurface,
	"metaball": host.ObjectMetaball,
	"camera":   host.ObjectCamera,
	"light":    host.ObjectLight,
	"armature": host.ObjectArmature,
}

var lightTypes = map[string]scene.LightType{
	"directional": scene.LightDirectional,
	"sun":         scene.LightDirectional,
	"spot":        scene.LightSpot,
	"point":       scene.LightPoint,
	"area":        scene.LightArea,
}

func (f *Fixture) texture(path string) (*host.Texture, error) {
	if f.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading texture: %w", err)
	}
	return &host.Texture{Name: filepath.Base(path), Data: data}, nil
}

// LoadFile reads a YAML fixture and builds the scene it describes.
func LoadFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene file: %w", err)
	}
	return parse(data, filepath.Dir(path))
}

// Parse builds a scene from YAML fixture data.
func Parse(data []byte) (*Scene, error) {
	return parse(data, "")
}

func parse(data []byte, dir string) (*Scene, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing scene file: %w", err)
	}
	f.Dir = dir
	return f.Build()
}

// Build instantiates the fixture.
func (f *Fixture) Build() (*Scene, error) {
	s := NewScene()
	if f.Frames.FPS > 0 {
		s.SetFrameRange(f.Frames.Start, f.Frames.End, f.Frames.FPS)
	}
	if f.Frames.Current != 0 {
		s.frames.Current = f.Frames.Current
	}
	for _, m := range f.Materials {
		mat := host.Material{Name: m.Name, Color: m.Color}
		if m.Texture != "" {
			tex, err := f.texture(m.Texture)
			if err != nil {
				return nil, fmt.Errorf("material %s: %w", m.Name, err)
			}
			mat.ColorMap = tex
		}
		s.AddMaterial(mat)
	}

	instancers := make(map[*Object]string)
	for i := range f.Objects {
		if _, err := f.buildObject(s, &f.Objects[i], nil, instancers); err != nil {
			return nil, err
		}
	}

	groups := make(map[string]*host.Group)
	for _, g := range f.Groups {
		grp := &host.Group{Name: g.Name, Offset: math.V3(g.Offset)}
		for _, name := range g.Objects {
			o := s.Find(name)
			if o == nil {
				return nil, fmt.Errorf("group %s: unknown object %q", g.Name, name)
			}
			grp.Objects = append(grp.Objects, o)
		}
		groups[g.Name] = grp
	}
	for o, name := range instancers {
		g, ok := groups[name]
		if !ok {
			return nil, fmt.Errorf("object %s: unknown group %q", o.name, name)
		}
		o.instance = g
	}
	if f.Frames.Current != 0 {
		s.SetFrame(f.Frames.Current)
	}
	return s, nil
}

func (f *Fixture) buildObject(s *Scene, fo *FixtureObject, parent *Object, instancers map[*Object]string) (*Object, error) {
	kind, ok := objectKinds[strings.ToLower(fo.Kind)]
	if !ok {
		return nil, fmt.Errorf("object %s: unknown kind %q", fo.Name, fo.Kind)
	}
	o := NewObject(fo.Name, kind)
	o.visible = !fo.Hidden
	o.selected = fo.Selected

	order := math.EulerXYZ
	if fo.RotationOrder != "" {
		var err error
		if order, err = math.ParseEulerOrder(strings.ToUpper(fo.RotationOrder)); err != nil {
			return nil, fmt.Errorf("object %s: %w", fo.Name, err)
		}
	}
	o.local = fixtureTransform(fo.Position, fo.Rotation, fo.Scale, order)

	mesh, err := fixtureMesh(fo, f.Materials)
	if err != nil {
		return nil, err
	}
	o.mesh = mesh
	if mirror := strings.ToLower(fo.Mirror); mirror != "" {
		o.modifiers = append(o.modifiers, host.Modifier{
			Kind:    host.ModifierMirror,
			Enabled: true,
			MirrorX: strings.Contains(mirror, "x"),
			MirrorY: strings.Contains(mirror, "y"),
			MirrorZ: strings.Contains(mirror, "z"),
		})
	}

	if c := fo.Camera; c != nil && o.camera != nil {
		o.camera.Ortho = c.Ortho
		if c.FOV > 0 {
			o.camera.FOV = c.FOV
		}
		if c.Near > 0 {
			o.camera.NearPlane = c.Near
		}
		if c.Far > 0 {
			o.camera.FarPlane = c.Far
		}
	}
	if l := fo.Light; l != nil && o.light != nil {
		if l.Type != "" {
			t, ok := lightTypes[strings.ToLower(l.Type)]
			if !ok {
				return nil, fmt.Errorf("object %s: unknown light type %q", fo.Name, l.Type)
			}
			o.light.Type = t
		}
		if l.Color != ([4]float32{}) {
			o.light.Color = l.Color
		}
		if l.Intensity > 0 {
			o.light.Intensity = l.Intensity
		}
		if l.Range > 0 {
			o.light.Range = l.Range
		}
		if l.SpotAngle > 0 {
			o.light.SpotAngle = l.SpotAngle
		}
	}
	for _, b := range fo.Bones {
		local := scene.IdentityTransform()
		local.Position = math.V3(b.Position)
		o.bones = append(o.bones, host.Bone{Name: b.Name, Parent: b.Parent, Local: local, Rest: local.Matrix()})
	}
	for _, k := range fo.Keys {
		o.AddKey(Key{Frame: k.Frame, Local: fixtureTransform(k.Position, k.Rotation, k.Scale, order), Visible: !k.Hidden})
	}
	if fo.Instance != "" {
		instancers[o] = fo.Instance
	}

	if parent != nil {
		o.SetParent(parent)
	}
	s.objects = append(s.objects, o)
	for i := range fo.Children {
		if _, err := f.buildObject(s, &fo.Children[i], o, instancers); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func fixtureTransform(pos, rotDeg [3]float32, scale *[3]float32, order math.EulerOrder) scene.Transform {
	t := scene.IdentityTransform()
	t.Position = math.V3(pos)
	const toRad = float32(gomath.Pi / 180)
	t.Rotation = scene.EulerRotation(math.V3(rotDeg).Scale(toRad), order)
	if scale != nil {
		t.Scale = math.V3(*scale)
	}
	return t
}

func fixtureMesh(fo *FixtureObject, materials []FixtureMaterial) (*host.Mesh, error) {
	var data *scene.MeshData
	switch strings.ToLower(fo.Primitive) {
	case "":
		if len(fo.Points) == 0 {
			return nil, nil
		}
		data = &scene.MeshData{Points: fo.Points}
		for _, poly := range fo.Polygons {
			data.Counts = append(data.Counts, int32(len(poly)))
			data.MaterialIDs = append(data.MaterialIDs, 0)
			data.Indices = append(data.Indices, poly...)
		}
	case "box", "cube":
		data = scene.BoxMesh(sizeOr(fo.Size, 2))
	case "plane":
		data = scene.PlaneMesh(sizeOr(fo.Size, 2))
	default:
		return nil, fmt.Errorf("object %s: unknown primitive %q", fo.Name, fo.Primitive)
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("object %s: %w", fo.Name, err)
	}

	m := MeshFromData(data)
	m.MaterialSlots = fo.Materials
	if len(m.MaterialSlots) == 0 && len(materials) > 0 {
		m.MaterialSlots = []string{materials[0].Name}
	}
	return m, nil
}

func sizeOr(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// MeshFromData converts flat mesh arrays into host polygon form. Per-index
// normals, UVs and colors become per-corner channels.
func MeshFromData(d *scene.MeshData) *host.Mesh {
	m := &host.Mesh{Points: append([][3]float32(nil), d.Points...)}
	offset := int32(0)
	for pi, c := range d.Counts {
		poly := host.Polygon{Indices: append([]int32(nil), d.Indices[offset:offset+c]...)}
		if pi < len(d.MaterialIDs) {
			poly.Material = int(d.MaterialIDs[pi])
		}
		m.Polygons = append(m.Polygons, poly)
		offset += c
	}
	if d.NormalDomain == scene.NormalsPerIndex {
		m.Normals = append([][3]float32(nil), d.Normals...)
	}
	for _, uv := range d.UVs {
		m.UVs = append(m.UVs, append([][2]float32(nil), uv...))
	}
	m.Colors = append([][4]float32(nil), d.Colors...)
	return m
}
