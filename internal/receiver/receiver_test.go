package receiver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshbridge/pkg/math"
	"github.com/Faultbox/meshbridge/pkg/protocol"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

func boxPass() *protocol.Pass {
	box := scene.NewEntity("/Box", scene.KindMesh)
	box.Mesh = scene.BoxMesh(2)
	cam := scene.NewEntity("/Camera", scene.KindCamera)
	cam.Local.Position = math.Vec3{Z: 5}
	return &protocol.Pass{
		Settings:  scene.Settings{ScaleFactor: 1, FrameRate: 24},
		Materials: []*scene.Material{{ID: 0, Name: "Default", Color: [4]float32{1, 1, 1, 1}}},
		Entities:  []*scene.Entity{cam, box},
	}
}

func feed(t *testing.T, r *Receiver, batch [][]byte) []protocol.Message {
	t.Helper()
	var replies []protocol.Message
	for _, data := range batch {
		reply, err := r.Handle(data)
		require.NoError(t, err)
		if reply != nil {
			replies = append(replies, reply)
		}
	}
	return replies
}

func TestHandlePass(t *testing.T) {
	r := New(nil, nil)
	var seen []PassInfo
	r.OnPass(func(p PassInfo) { seen = append(seen, p) })

	enc := protocol.NewEncoder([16]byte{})
	replies := feed(t, r, boxPass().Encode(enc))
	require.Len(t, replies, 1)
	assert.Equal(t, []string{"ok"}, replies[0].(*protocol.Response).Text)

	s := r.Scene()
	require.Len(t, s.Entities, 2)
	assert.Equal(t, "/Camera", s.Entities[0].Path)
	assert.Equal(t, float32(5), s.Entities[0].Local.Position.Z)
	assert.Equal(t, 8, s.Entity("/Box").Mesh.VertexCount())
	require.Len(t, s.Materials, 1)
	assert.Equal(t, float32(24), s.Settings.FrameRate)

	require.Len(t, seen, 1)
	assert.Equal(t, enc.Session().String(), seen[0].Session)
	assert.Equal(t, []string{"/Camera", "/Box"}, seen[0].Updated)
	assert.Equal(t, protocol.TypeFence, seen[0].Messages[0])
	assert.Equal(t, protocol.TypeFence, seen[0].Messages[len(seen[0].Messages)-1])
	assert.Len(t, r.Passes(), 1)
}

func TestTransformOnlyKeepsGeometry(t *testing.T) {
	r := New(nil, nil)
	enc := protocol.NewEncoder([16]byte{})
	feed(t, r, boxPass().Encode(enc))

	moved := scene.NewEntity("/Box", scene.KindMesh)
	moved.Local.Position = math.Vec3{X: 3}
	feed(t, r, (&protocol.Pass{Entities: []*scene.Entity{moved}}).Encode(enc))

	box := r.Scene().Entity("/Box")
	require.NotNil(t, box)
	assert.Equal(t, float32(3), box.Local.Position.X)
	assert.Equal(t, 8, box.Mesh.VertexCount())
	assert.Equal(t, []string{"/Box"}, r.Passes()[1].Updated)
}

func TestHandleDelete(t *testing.T) {
	r := New(nil, nil)
	enc := protocol.NewEncoder([16]byte{})
	feed(t, r, boxPass().Encode(enc))
	feed(t, r, (&protocol.Pass{DeletedPaths: []string{"/Box"}, DeletedMaterials: []int32{0}}).Encode(enc))

	s := r.Scene()
	require.Len(t, s.Entities, 1)
	assert.Equal(t, "/Camera", s.Entities[0].Path)
	assert.Equal(t, 0, s.Entities[0].Order)
	assert.Empty(t, s.Materials)
	assert.Equal(t, []string{"/Box"}, r.Passes()[1].Deleted)
}

func TestQueries(t *testing.T) {
	r := New(nil, nil)
	enc := protocol.NewEncoder([16]byte{})
	pass := boxPass()
	child := scene.NewEntity("/Camera/Target", scene.KindTransform)
	pass.Entities = append(pass.Entities, child)
	feed(t, r, pass.Encode(enc))

	tests := []struct {
		kind protocol.QueryKind
		want []string
	}{
		{protocol.QueryProtocolVersion, []string{"1"}},
		{protocol.QueryRootNodes, []string{"/Camera", "/Box"}},
		{protocol.QueryAllNodes, []string{"/Camera", "/Camera/Target", "/Box"}},
	}
	for _, tt := range tests {
		reply, err := r.Handle(enc.Encode(&protocol.Query{Kind: tt.kind}))
		require.NoError(t, err)
		assert.Equal(t, tt.want, reply.(*protocol.Response).Text, "query %d", tt.kind)
	}
}

func TestHandleRejectsGarbage(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Handle([]byte("nope"))
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	r := New(nil, nil)
	feed(t, r, boxPass().Encode(protocol.NewEncoder([16]byte{})))
	r.Reset()
	assert.Empty(t, r.Scene().Entities)
	assert.Empty(t, r.Passes())
}

func TestHTTPRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# metrics"))
	})
	srv := httptest.NewServer(New(nil, metrics))
	defer srv.Close()

	for path, want := range map[string]int{
		"/health":  http.StatusOK,
		"/metrics": http.StatusOK,
		"/missing": http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}
