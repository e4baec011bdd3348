package protocol

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

func testScene() *scene.Scene {
	box := scene.NewEntity("/Box", scene.KindMesh)
	box.Mesh = scene.BoxMesh(2)
	box.Mesh.Flags.GenTangents = true
	box.Mesh.Flags.MirrorY = true
	box.Mesh.Colors = make([][4]float32, 24)
	box.Mesh.Bones = []scene.BoneWeights{{
		Path:     "/Armature/Root",
		BindPose: math.Translate(0, -1, 0),
		Weights:  []float32{1, 1, 1, 1, 0, 0, 0, 0},
	}}
	box.Mesh.BlendShapes = []scene.BlendShape{{Name: "Up", Weight: 40, Deltas: make([][3]float32, 8)}}

	child := scene.NewEntity("/Box/Box.001", scene.KindTransform)
	child.Order = 1
	child.Local.Position = math.Vec3{X: 1, Y: 2, Z: 3}
	child.Local.Rotation = scene.EulerRotation(math.Vec3{X: 0.5}, math.EulerZXY)
	child.Reference = "/Other"
	child.Visible = false

	cam := scene.NewEntity("/Camera", scene.KindCamera)
	cam.Order = 2
	cam.Camera.FOV = 40
	cam.Camera.LensShift = [2]float32{0.1, -0.1}
	cam.Local.Rotation = scene.AxisAngleRotation(math.Vec3{Y: 1}, 1.5)

	light := scene.NewEntity("/Sun", scene.KindLight)
	light.Order = 3
	light.Light.Type = scene.LightDirectional
	light.Light.Color = [4]float32{1, 0.9, 0.8, 1}

	bone := scene.NewEntity("/Armature/Root", scene.KindBone)
	bone.Order = 4
	bone.Bone.BindPose = math.Translate(0, 0, -2)

	clip := &scene.AnimationClip{Name: "Default", FrameRate: 24, Animations: []*scene.Animation{{
		Path: "/Box",
		Kind: scene.KindMesh,
		Channels: []*scene.Channel{{
			Name:       scene.ChannelTranslation,
			Components: 3,
			Interp:     scene.InterpLinear,
			Times:      []float32{0, 1},
			Values:     []float32{0, 0, 0, 0, 0, 23},
		}},
	}}}

	return &scene.Scene{
		Settings:  scene.Settings{ScaleFactor: 1, FrameRate: 24},
		Entities:  []*scene.Entity{box, child, cam, light, bone},
		Materials: []*scene.Material{
			{ID: 0, Index: 0, Name: "Default", Color: [4]float32{1, 1, 1, 1}},
			{ID: 1, Index: 1, Name: "Brick", Color: [4]float32{1, 1, 1, 1},
				ColorMap: &scene.Texture{Name: "brick.png", Data: []byte{0x89, 'P', 'N', 'G', 0, 1, 2}}},
		},
		Clips:     []*scene.AnimationClip{clip},
	}
}

func TestSceneRoundTrip(t *testing.T) {
	want := testScene()
	got, err := DecodeScene(EncodeScene(want))
	if err != nil {
		t.Fatalf("DecodeScene() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scene mismatch (-want +got):\n%s", diff)
	}
}

func TestTextureTruncated(t *testing.T) {
	s := &scene.Scene{Materials: []*scene.Material{{
		Name:     "Brick",
		ColorMap: &scene.Texture{Name: "brick.png", Data: []byte("image bytes")},
	}}}
	// Drop the empty clip count and the last image byte.
	data := EncodeScene(s)
	data = append(data[:len(data)-5], 0, 0, 0, 0)
	if _, err := DecodeScene(data); !errors.Is(err, ErrTruncated) {
		t.Errorf("DecodeScene() error = %v, want %v", err, ErrTruncated)
	}
}

func TestBoxScenario(t *testing.T) {
	box := scene.NewEntity("/Box", scene.KindMesh)
	box.Mesh = scene.BoxMesh(1)
	enc := NewEncoder(uuid.Nil)
	data := enc.Encode(&Set{Scene: &scene.Scene{Entities: []*scene.Entity{box}}})

	h, m, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if h.Type != TypeSet || h.Session != enc.Session() || h.ID != 1 {
		t.Errorf("header = %+v", h)
	}
	s := m.(*Set).Scene
	if len(s.Entities) != 1 {
		t.Fatalf("entities = %d", len(s.Entities))
	}
	got := s.Entities[0].Mesh
	if got.VertexCount() != 8 || len(got.Counts) != 6 {
		t.Errorf("mesh has %d points, %d polygons", got.VertexCount(), len(got.Counts))
	}
	for i, c := range got.Counts {
		if c != 4 || got.MaterialIDs[i] != 0 {
			t.Errorf("polygon %d: count %d material %d", i, c, got.MaterialIDs[i])
		}
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	session := uuid.New()
	tests := []Message{
		&Fence{Kind: FenceSceneBegin},
		&Fence{Kind: FenceSceneEnd},
		&Delete{Paths: []string{"/Box", "/Box/Box.001"}, Materials: []int32{3}},
		&Query{Kind: QueryAllNodes},
		&Response{Text: []string{"/Box", "/Camera"}},
		&Text{Severity: TextWarning, Text: "hello"},
		&Set{Scene: testScene()},
	}
	for i, msg := range tests {
		t.Run(msg.Type().String(), func(t *testing.T) {
			data := Marshal(Header{Session: session, ID: uint64(i)}, msg)
			h, got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if h.Version != Version || h.Session != session || h.ID != uint64(i) || h.Type != msg.Type() {
				t.Errorf("header = %+v", h)
			}
			if diff := cmp.Diff(msg, got); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalErrors(t *testing.T) {
	good := Marshal(Header{}, &Text{Text: "x"})

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "XXXX")

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 9

	badType := append([]byte(nil), good...)
	badType[HeaderSize-1] = 99

	trailing := append(append([]byte(nil), good...), 0)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"magic", badMagic, ErrInvalidMagic},
		{"version", badVersion, ErrUnsupportedVersion},
		{"type", badType, ErrUnknownType},
		{"truncated body", good[:len(good)-1], ErrTruncated},
		{"trailing", trailing, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Unmarshal(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHugeCountRejected(t *testing.T) {
	// A delete claiming 2^32-1 paths with no data behind it.
	data := Marshal(Header{}, &Delete{})
	data = data[:HeaderSize]
	data = append(data, 0xff, 0xff, 0xff, 0xff)
	if _, _, err := Unmarshal(data); !errors.Is(err, ErrTruncated) {
		t.Errorf("Unmarshal() error = %v, want ErrTruncated", err)
	}
}

func TestEncoderNumbersMessages(t *testing.T) {
	enc := NewEncoder(uuid.Nil)
	if enc.Session() == uuid.Nil {
		t.Fatal("zero session should be replaced")
	}
	for want := uint64(1); want <= 3; want++ {
		h, err := ParseHeader(enc.Encode(&Fence{Kind: FenceSceneBegin}))
		if err != nil {
			t.Fatal(err)
		}
		if h.ID != want {
			t.Errorf("ID = %d, want %d", h.ID, want)
		}
	}
}

func TestPassMessageOrder(t *testing.T) {
	s := testScene()
	// A camera parented below the mesh.
	under := scene.NewEntity("/Box/Cam", scene.KindCamera)
	p := &Pass{
		Settings:         s.Settings,
		Materials:        s.Materials,
		Entities:         append(s.Entities, under),
		Clips:            s.Clips,
		DeletedPaths:     []string{"/Gone"},
		DeletedMaterials: []int32{7},
	}

	var got [][]string
	for _, m := range p.Messages() {
		var desc []string
		switch m := m.(type) {
		case *Fence:
			desc = []string{m.Type().String()}
		case *Set:
			desc = append(desc, "set")
			if len(m.Scene.Materials) > 0 {
				desc = append(desc, "materials")
			}
			for _, e := range m.Scene.Entities {
				desc = append(desc, e.Path)
			}
			if len(m.Scene.Clips) > 0 {
				desc = append(desc, "clips")
			}
		case *Delete:
			desc = append([]string{"delete"}, m.Paths...)
		}
		got = append(got, desc)
	}

	want := [][]string{
		{"fence"},
		{"set", "materials"},
		{"set", "/Camera", "/Sun", "/Armature/Root"},
		{"set", "/Box"},
		{"set", "/Box/Box.001", "/Box/Cam"},
		{"set", "clips"},
		{"delete", "/Gone"},
		{"fence"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message order mismatch (-want +got):\n%s", diff)
	}

	fences := p.Messages()
	if fences[0].(*Fence).Kind != FenceSceneBegin || fences[len(fences)-1].(*Fence).Kind != FenceSceneEnd {
		t.Error("pass must be bracketed by begin and end fences")
	}
}

func TestEmptyPass(t *testing.T) {
	p := &Pass{}
	if !p.Empty() {
		t.Error("zero pass should be empty")
	}
	if msgs := p.Encode(NewEncoder(uuid.Nil)); len(msgs) != 2 {
		t.Errorf("empty pass sends %d messages, want the two fences", len(msgs))
	}
}
