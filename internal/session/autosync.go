package session

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/internal/tracker"
)

// AutoSyncTargets is what every auto-sync tick exports.
const AutoSyncTargets = TargetObjects | TargetMaterials

// SetAutoSync turns auto sync on or off. Turning it on requires the
// receiver to answer.
func (s *Session) SetAutoSync(ctx context.Context, on bool) error {
	if on && !s.sender.IsAvailable(ctx) {
		s.setError(ErrUnavailable)
		return ErrUnavailable
	}
	s.mu.Lock()
	s.autoSync = on
	s.mu.Unlock()
	s.log.Info("auto sync", zap.Bool("enabled", on))
	return nil
}

// AutoSync reports whether auto sync is on.
func (s *Session) AutoSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSync
}

// RunAutoSync exports incrementally on every tick of clock while auto sync
// is on, until ctx is done. A tick that finds a pass in progress is
// dropped. Any other failure turns auto sync off.
func (s *Session) RunAutoSync(ctx context.Context, clock clockwork.Clock) error {
	interval := s.Settings().AutoSyncInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.tick()
		}
	}
}

func (s *Session) tick() {
	if !s.AutoSync() {
		return
	}
	err := s.Export(AutoSyncTargets, tracker.Incremental)
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		s.log.Debug("auto sync tick skipped", zap.Error(err))
	default:
		s.mu.Lock()
		s.autoSync = false
		s.mu.Unlock()
		s.log.Warn("auto sync disabled", zap.Error(err))
	}
}
