package transport

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Faultbox/meshbridge/internal/receiver"
	"github.com/Faultbox/meshbridge/pkg/protocol"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gateConn blocks every Send until release is closed.
type gateConn struct {
	release chan struct{}
	err     error

	mu    sync.Mutex
	sent  int
	close int
}

func (c *gateConn) IsAvailable(context.Context) bool { return true }

func (c *gateConn) Send(ctx context.Context, batch [][]byte) error {
	select {
	case <-c.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	c.sent += len(batch)
	c.mu.Unlock()
	return c.err
}

func (c *gateConn) Close() error {
	c.mu.Lock()
	c.close++
	c.mu.Unlock()
	return nil
}

func TestKickRejectsWhileBusy(t *testing.T) {
	conn := &gateConn{release: make(chan struct{})}
	s := NewAsyncSender(conn, 0, nil)

	var outcome error = errors.New("unset")
	require.NoError(t, s.Kick([][]byte{{1}, {2}}, func(err error) { outcome = err }))
	assert.True(t, s.IsSending())
	assert.ErrorIs(t, s.Kick([][]byte{{3}}, nil), ErrSending)

	close(conn.release)
	s.Wait()
	assert.False(t, s.IsSending())
	assert.NoError(t, outcome)
	assert.Equal(t, "", s.ErrorMessage())
	assert.Equal(t, 2, conn.sent)

	require.NoError(t, s.Kick([][]byte{{4}}, nil), "idle again")
	require.NoError(t, s.Close())
	assert.Equal(t, 1, conn.close)
}

func TestFailureCallback(t *testing.T) {
	conn := &gateConn{release: make(chan struct{}), err: errors.New("connection refused")}
	close(conn.release)
	s := NewAsyncSender(conn, time.Second, nil)

	failed := make(chan error, 1)
	s.OnFailure(func(err error) { failed <- err })
	require.NoError(t, s.Kick([][]byte{{1}}, nil))
	s.Wait()

	select {
	case err := <-failed:
		assert.EqualError(t, err, "connection refused")
	default:
		t.Fatal("failure callback did not run")
	}
	assert.Equal(t, "connection refused", s.ErrorMessage())
}

func TestSendTimeout(t *testing.T) {
	conn := &gateConn{release: make(chan struct{})}
	s := NewAsyncSender(conn, 10*time.Millisecond, nil)
	require.NoError(t, s.Kick([][]byte{{1}}, nil))
	s.Wait()
	assert.Contains(t, s.ErrorMessage(), "deadline")
}

func TestEndsPass(t *testing.T) {
	enc := protocol.NewEncoder([16]byte{})
	assert.True(t, endsPass(enc.Encode(&protocol.Fence{Kind: protocol.FenceSceneEnd})))
	assert.False(t, endsPass(enc.Encode(&protocol.Fence{Kind: protocol.FenceSceneBegin})))
	assert.False(t, endsPass(enc.Encode(&protocol.Text{Text: "x"})))
	assert.False(t, endsPass([]byte{1, 2}))
}

func newReceiver(t *testing.T) (*receiver.Receiver, *Client) {
	t.Helper()
	recv := receiver.New(nil, nil)
	srv := httptest.NewServer(recv)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	c := NewClient(host, port, 5*time.Second, nil)
	t.Cleanup(func() { c.Close() })
	return recv, c
}

func TestClientDeliversPass(t *testing.T) {
	recv, c := newReceiver(t)
	ctx := context.Background()
	require.True(t, c.IsAvailable(ctx))
	assert.False(t, c.IsConnected())

	box := scene.NewEntity("/Box", scene.KindMesh)
	box.Mesh = scene.BoxMesh(1)
	pass := &protocol.Pass{
		Materials: []*scene.Material{{ID: 0, Name: "Default"}},
		Entities:  []*scene.Entity{box},
	}
	enc := protocol.NewEncoder([16]byte{})

	s := NewAsyncSender(c, 0, nil)
	var outcome error
	require.NoError(t, s.Kick(pass.Encode(enc), func(err error) { outcome = err }))
	s.Wait()
	require.NoError(t, outcome)
	assert.True(t, c.IsConnected())

	// The ack is only sent after the whole pass was applied.
	got := recv.Scene()
	require.Len(t, got.Entities, 1)
	assert.Equal(t, 8, got.Entities[0].Mesh.VertexCount())
	require.Len(t, recv.Passes(), 1)
	assert.Equal(t, enc.Session().String(), recv.Passes()[0].Session)

	nodes, err := c.Query(ctx, enc, protocol.QueryAllNodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"/Box"}, nodes)
}

func TestClientUnavailable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	c := NewClient("127.0.0.1", port, time.Second, nil)
	ctx := context.Background()
	assert.False(t, c.IsAvailable(ctx))
	err = c.Send(ctx, [][]byte{{1}})
	assert.Error(t, err)
	assert.False(t, c.IsConnected())
	require.NoError(t, c.Close())
}
