package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSending is returned by Kick while a batch is in flight.
var ErrSending = errors.New("transport: a batch is already being sent")

// AsyncSender sends one batch at a time on a background goroutine so the
// host's main thread never blocks on the network. A new batch is rejected,
// not queued, while one is in flight.
type AsyncSender struct {
	conn    Conn
	timeout time.Duration
	log     *zap.Logger

	mu        sync.Mutex
	sending   bool
	errMsg    string
	done      chan struct{}
	onFailure func(error)
}

// NewAsyncSender wraps conn. timeout bounds each batch; zero means no bound
// beyond the connection's own.
func NewAsyncSender(conn Conn, timeout time.Duration, log *zap.Logger) *AsyncSender {
	if log == nil {
		log = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &AsyncSender{conn: conn, timeout: timeout, log: log, done: done}
}

// OnFailure registers fn to run, on the sender goroutine, after a failed
// batch.
func (s *AsyncSender) OnFailure(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// IsAvailable reports whether the receiver answers its health check.
func (s *AsyncSender) IsAvailable(ctx context.Context) bool {
	return s.conn.IsAvailable(ctx)
}

// Kick starts sending batch. complete, if not nil, runs on the sender
// goroutine with the outcome before IsSending turns false.
func (s *AsyncSender) Kick(batch [][]byte, complete func(error)) error {
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return ErrSending
	}
	s.sending = true
	s.errMsg = ""
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		err := s.send(batch)

		s.mu.Lock()
		onFailure := s.onFailure
		if err != nil {
			s.errMsg = err.Error()
		}
		s.mu.Unlock()

		if complete != nil {
			complete(err)
		}
		if err != nil {
			s.log.Warn("send failed", zap.Int("messages", len(batch)), zap.Error(err))
			if onFailure != nil {
				onFailure(err)
			}
		}

		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()
	return nil
}

func (s *AsyncSender) send(batch [][]byte) error {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.conn.Send(ctx, batch)
}

// IsSending reports whether a batch is in flight.
func (s *AsyncSender) IsSending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Wait blocks until the batch in flight, if any, is finished.
func (s *AsyncSender) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	<-done
}

// ErrorMessage returns the error of the last batch, or "" if it succeeded.
func (s *AsyncSender) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Close waits for the batch in flight and closes the connection.
func (s *AsyncSender) Close() error {
	s.Wait()
	return s.conn.Close()
}
