// Package session orchestrates sync passes: it owns the entity graph, the
// change tracker and the sender of one host document.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/internal/extract"
	"github.com/Faultbox/meshbridge/internal/graph"
	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/internal/metrics"
	"github.com/Faultbox/meshbridge/internal/tracker"
	"github.com/Faultbox/meshbridge/internal/transport"
	"github.com/Faultbox/meshbridge/pkg/protocol"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

var (
	// ErrBusy is returned when a pass is already gathering or in flight.
	ErrBusy = errors.New("session: a sync pass is in progress")
	// ErrUnavailable is returned when the receiver does not answer.
	ErrUnavailable = errors.New("session: receiver unavailable")
)

// Target selects what an export pass covers.
type Target uint8

const (
	TargetObjects Target = 1 << iota
	TargetMaterials
	TargetAnimations

	TargetEverything = TargetObjects | TargetMaterials | TargetAnimations
)

func (t Target) String() string {
	if t == TargetEverything {
		return "everything"
	}
	var parts []string
	if t&TargetObjects != 0 {
		parts = append(parts, "objects")
	}
	if t&TargetMaterials != 0 {
		parts = append(parts, "materials")
	}
	if t&TargetAnimations != 0 {
		parts = append(parts, "animations")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Settings are the sync options of a session.
type Settings struct {
	Extract     extract.Settings
	Animation   extract.AnimationSettings
	ScaleFactor float32
	// SyncTextures sends the color maps of materials.
	SyncTextures     bool
	AutoSyncInterval time.Duration
}

// DefaultSettings returns the settings of a fresh session.
func DefaultSettings() Settings {
	return Settings{
		Extract:          extract.DefaultSettings(),
		Animation:        extract.DefaultAnimationSettings(),
		ScaleFactor:      1,
		SyncTextures:     true,
		AutoSyncInterval: time.Second,
	}
}

// Options configure a session. Every field is optional.
type Options struct {
	Settings Settings
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	// ID is the wire session id; a random one is used when zero.
	ID uuid.UUID
}

// Session syncs one host document to one receiver. Export may be called
// from any goroutine; concurrent passes are rejected with ErrBusy.
type Session struct {
	sender  *transport.AsyncSender
	log     *zap.Logger
	metrics *metrics.Metrics

	graph     *graph.Graph
	materials *graph.MaterialRegistry
	walker    *extract.Walker
	tracker   *tracker.Tracker
	enc       *protocol.Encoder

	mu       sync.Mutex
	doc      host.Scene
	settings Settings
	autoSync bool
	lastErr  string
	// needFull upgrades the next incremental pass: host update flags are
	// consumed by every pass, so after a failure or reset only a full
	// pass restores the receiver.
	needFull bool
}

// New creates a session for doc sending through sender.
func New(doc host.Scene, sender *transport.AsyncSender, opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Settings.ScaleFactor == 0 {
		opts.Settings.ScaleFactor = 1
	}
	s := &Session{
		doc:       doc,
		sender:    sender,
		log:       log,
		metrics:   opts.Metrics,
		graph:     graph.New(log.Named("graph")),
		materials: graph.NewMaterialRegistry(),
		tracker:   tracker.New(log.Named("tracker")),
		enc:       protocol.NewEncoder(opts.ID),
		settings:  opts.Settings,
		needFull:  true,
	}
	s.walker = extract.NewWalker(s.graph, s.materials, opts.Settings.Extract, log.Named("extract"))
	sender.OnFailure(s.sendFailed)
	return s
}

// ID returns the wire session id.
func (s *Session) ID() uuid.UUID {
	return s.enc.Session()
}

// Settings returns the active settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the settings. The next pass uses them.
func (s *Session) SetSettings(st Settings) {
	if st.ScaleFactor == 0 {
		st.ScaleFactor = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
}

// ErrorMessage returns the last pass error, or "".
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// IsBusy reports whether a pass is gathering or in flight.
func (s *Session) IsBusy() bool {
	return s.tracker.State() != tracker.Idle || s.sender.IsSending()
}

// Wait blocks until the pass in flight, if any, is acknowledged or failed.
func (s *Session) Wait() {
	s.sender.Wait()
}

// ObjectRemoved queues the deletion of everything obj contributed. Hosts
// call it from their removal hook, before the object is detached.
func (s *Session) ObjectRemoved(obj host.Object) {
	paths, err := s.walker.Paths(obj)
	if err != nil {
		s.log.Warn("cannot resolve removed object", zap.String("name", obj.Name()), zap.Error(err))
		return
	}
	for _, p := range paths {
		s.tracker.QueueDeletion(p)
	}
}

// Reset forgets all synced state, as after the host reloads its document.
// The next pass is a full one.
func (s *Session) Reset() error {
	if err := s.tracker.Reset(); err != nil {
		return ErrBusy
	}
	s.graph.Reset()
	s.materials.Reset()
	s.walker.Begin()
	s.mu.Lock()
	s.needFull = true
	s.mu.Unlock()
	s.log.Info("session reset")
	return nil
}

// SetDocument swaps the synced document, as when the host opens another
// file. Paths the new document lacks are deleted by the next pass, which
// is a full one.
func (s *Session) SetDocument(doc host.Scene) error {
	if s.IsBusy() {
		return ErrBusy
	}
	s.mu.Lock()
	s.doc = doc
	s.needFull = true
	s.mu.Unlock()
	s.log.Info("document replaced")
	return nil
}

// Export gathers one pass and hands it to the sender. It returns once the
// pass is encoded; the tracker commits when the receiver acknowledges it.
func (s *Session) Export(targets Target, mode tracker.Mode) error {
	if s.sender.IsSending() {
		s.rejectBusy(mode)
		return ErrBusy
	}
	s.mu.Lock()
	st, doc := s.settings, s.doc
	if s.needFull && targets&TargetObjects != 0 {
		mode = tracker.Full
	}
	s.mu.Unlock()

	if err := s.tracker.Begin(mode, scopeOf(targets)); err != nil {
		s.rejectBusy(mode)
		return ErrBusy
	}
	start := time.Now()

	pass, err := s.gather(doc, targets, mode, st)
	if err != nil {
		s.tracker.Complete(false)
		s.metrics.Pass(mode.String(), metrics.OutcomeAborted, 0)
		s.setError(err)
		return fmt.Errorf("gathering %s pass: %w", mode, err)
	}
	if pass.Empty() {
		s.tracker.Complete(true)
		s.committed(targets)
		s.metrics.Pass(mode.String(), metrics.OutcomeEmpty, 0)
		doc.ResetUpdates()
		return nil
	}

	batch := pass.Encode(s.enc)
	s.setError(nil)
	err = s.sender.Kick(batch, func(err error) {
		s.tracker.Complete(err == nil)
		if err != nil {
			s.metrics.Pass(mode.String(), metrics.OutcomeFailed, 0)
			return
		}
		s.committed(targets)
		s.metrics.Pass(mode.String(), metrics.OutcomeSent, time.Since(start))
	})
	if err != nil {
		s.tracker.Complete(false)
		s.rejectBusy(mode)
		return ErrBusy
	}

	doc.ResetUpdates()
	s.record(pass, batch)
	s.log.Debug("pass sent",
		zap.Stringer("targets", targets),
		zap.Stringer("mode", mode),
		zap.Int("entities", len(pass.Entities)),
		zap.Int("deleted", len(pass.DeletedPaths)),
		zap.Int("messages", len(batch)))
	return nil
}

func scopeOf(targets Target) tracker.Scope {
	var scope tracker.Scope
	if targets&TargetObjects != 0 {
		scope |= tracker.ScopeEntities
	}
	if targets&TargetMaterials != 0 {
		scope |= tracker.ScopeMaterials
	}
	return scope
}

// gather extracts the targets and seals the tracker. It runs on the
// calling goroutine since it reads live host state.
func (s *Session) gather(doc host.Scene, targets Target, mode tracker.Mode, st Settings) (*protocol.Pass, error) {
	s.walker.SetSettings(st.Extract, s.materials)
	s.graph.Reset()
	s.walker.Begin()

	// Ids must be current before meshes resolve their material slots.
	s.materials.SetTextures(st.SyncTextures)
	mats := s.materials.Update(doc.Materials())
	if targets&TargetMaterials != 0 {
		for _, m := range mats {
			if _, err := s.tracker.ObserveMaterial(m); err != nil {
				return nil, err
			}
		}
	}

	if targets&(TargetObjects|TargetAnimations) != 0 {
		for _, obj := range doc.Objects() {
			if mode == tracker.Incremental && !obj.Updated() {
				if targets&TargetObjects != 0 {
					if err := s.touch(obj); err != nil {
						return nil, err
					}
				}
				continue
			}
			if _, err := s.walker.ExportObject(obj, true); err != nil {
				return nil, err
			}
		}
	}

	var clips []*scene.AnimationClip
	if targets&TargetAnimations != 0 {
		sampler := extract.AnimationSampler{Settings: st.Animation, Extract: st.Extract}
		clip, err := sampler.Sample(doc, s.walker.Exported())
		if err != nil {
			return nil, fmt.Errorf("sampling animation: %w", err)
		}
		if len(clip.Animations) > 0 {
			clips = append(clips, clip)
		}
	}

	// Scaling before observing makes a scale change dirty every entity.
	scaled := &scene.Scene{Entities: s.graph.Entities(), Clips: clips}
	scaled.ApplyScale(st.ScaleFactor)

	if targets&TargetObjects != 0 {
		for _, e := range scaled.Entities {
			if _, err := s.tracker.Observe(e); err != nil {
				return nil, err
			}
		}
	}

	delta, err := s.tracker.Seal()
	if err != nil {
		return nil, err
	}
	pass := &protocol.Pass{
		Settings:         scene.Settings{ScaleFactor: st.ScaleFactor, FrameRate: doc.Frames().FPS},
		Materials:        delta.Materials,
		Clips:            clips,
		DeletedPaths:     delta.Deleted,
		DeletedMaterials: delta.DeletedMaterials,
	}
	for _, c := range delta.Updated {
		e := c.Entity
		if c.TransformOnly() {
			lite := *e
			lite.Mesh = &scene.MeshData{}
			e = &lite
		}
		pass.Entities = append(pass.Entities, e)
	}
	return pass, nil
}

// touch keeps the committed records of an unchanged object alive. An
// object whose path is not committed moved with a reparented ancestor and
// is exported again.
func (s *Session) touch(obj host.Object) error {
	paths, err := s.walker.Paths(obj)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if !s.tracker.Committed(p) {
			_, err := s.walker.ExportObject(obj, true)
			return err
		}
	}
	for _, p := range paths {
		if err := s.tracker.Touch(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) record(pass *protocol.Pass, batch [][]byte) {
	if s.metrics == nil {
		return
	}
	s.metrics.Sent(batch)
	counts := make(map[scene.EntityKind]int)
	for _, e := range pass.Entities {
		counts[e.Kind]++
	}
	for kind, n := range counts {
		s.metrics.Emitted(kind.String(), n)
	}
	s.metrics.Deleted(len(pass.DeletedPaths))
}

func (s *Session) rejectBusy(mode tracker.Mode) {
	s.metrics.Busy()
	s.metrics.Pass(mode.String(), metrics.OutcomeBusy, 0)
	s.log.Debug("export rejected, pass in progress", zap.Stringer("mode", mode))
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastErr = ""
		return
	}
	s.lastErr = err.Error()
}

func (s *Session) committed(targets Target) {
	if targets&TargetObjects == 0 {
		return
	}
	s.mu.Lock()
	s.needFull = false
	s.mu.Unlock()
}

// sendFailed runs on the sender goroutine after a failed batch.
func (s *Session) sendFailed(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.needFull = true
	wasOn := s.autoSync
	s.autoSync = false
	s.mu.Unlock()
	if wasOn {
		s.log.Warn("auto sync disabled after send failure", zap.Error(err))
	}
}

// IsAvailable reports whether the receiver answers.
func (s *Session) IsAvailable(ctx context.Context) bool {
	return s.sender.IsAvailable(ctx)
}

// Close waits for the pass in flight and closes the connection.
func (s *Session) Close() error {
	return s.sender.Close()
}
