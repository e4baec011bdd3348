// Package transport delivers encoded sync passes to a receiver over a
// websocket session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/pkg/protocol"
)

// Receiver endpoints.
const (
	HealthPath = "/health"
	StreamPath = "/ws"
)

// ErrNoAck is returned when the receiver does not confirm a pass.
var ErrNoAck = errors.New("transport: pass not acknowledged")

// Conn is what the async sender needs from a connection.
type Conn interface {
	IsAvailable(ctx context.Context) bool
	Send(ctx context.Context, batch [][]byte) error
	Close() error
}

// Client holds one websocket session to a receiver. The session is dialed
// on first use and kept until an error or Close.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  *websocket.Dialer
	http    *http.Client
	log     *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Conn = (*Client)(nil)

// NewClient creates a client for the receiver at host:port.
func NewClient(host string, port int, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Addr returns host:port of the receiver.
func (c *Client) Addr() string {
	return c.addr
}

// IsAvailable reports whether the receiver answers its health check.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("receiver unavailable", zap.String("addr", c.addr), zap.Error(err))
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// IsConnected reports whether a session is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	url := "ws://" + c.addr + StreamPath
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	c.log.Debug("connected", zap.String("url", url))
	c.conn = conn
	return conn, nil
}

// Send writes every message of batch and, when the batch ends with a
// Fence(end), waits for the receiver's acknowledgement. Any failure drops
// the session; the next Send dials again.
func (c *Client) Send(ctx context.Context, batch [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if err := c.send(ctx, conn, batch); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, batch [][]byte) error {
	deadline := c.deadline(ctx)
	for i, msg := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return fmt.Errorf("writing message %d of %d: %w", i+1, len(batch), err)
		}
	}
	if len(batch) == 0 || !endsPass(batch[len(batch)-1]) {
		return nil
	}

	resp, err := c.readResponse(conn, deadline)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoAck, err)
	}
	c.log.Debug("pass acknowledged", zap.Strings("response", resp.Text))
	return nil
}

// Query asks the receiver a question and returns its answer.
func (c *Client) Query(ctx context.Context, enc *protocol.Encoder, kind protocol.QueryKind) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	deadline := c.deadline(ctx)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, enc.Encode(&protocol.Query{Kind: kind})); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("writing query: %w", err)
	}
	resp, err := c.readResponse(conn, deadline)
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	return resp.Text, nil
}

func (c *Client) readResponse(conn *websocket.Conn, deadline time.Time) (*protocol.Response, error) {
	conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	_, msg, err := protocol.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*protocol.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected %v message", msg.Type())
	}
	return resp, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

// Close ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.http.CloseIdleConnections()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.dropLocked()
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// endsPass reports whether data is a Fence(end) message.
func endsPass(data []byte) bool {
	h, err := protocol.ParseHeader(data)
	if err != nil || h.Type != protocol.TypeFence || len(data) <= protocol.HeaderSize {
		return false
	}
	return protocol.FenceKind(data[protocol.HeaderSize]) == protocol.FenceSceneEnd
}
