// Package tracker decides which entities and materials a sync pass has to
// send, by comparing checksums with the last pass the receiver acknowledged.
package tracker

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/pkg/scene"
)

var (
	// ErrBusy is returned by Begin while a pass is in progress.
	ErrBusy = errors.New("tracker: pass already in progress")
	// ErrState is returned when a call does not match the pass state.
	ErrState = errors.New("tracker: invalid state for operation")
)

// Mode selects how dirty entities are found.
type Mode uint8

const (
	// Full sends every observed entity.
	Full Mode = iota
	// Incremental sends only entities whose checksums changed.
	Incremental
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "incremental"
}

// State is the pass state machine.
type State uint8

const (
	Idle State = iota
	Gathering
	Exporting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Gathering:
		return "gathering"
	case Exporting:
		return "exporting"
	default:
		return "unknown"
	}
}

// Scope selects the record sets a pass covers. Sets outside the scope keep
// their committed state.
type Scope uint8

const (
	ScopeEntities Scope = 1 << iota
	ScopeMaterials

	ScopeAll = ScopeEntities | ScopeMaterials
)

// Part flags which half of an entity changed.
type Part uint8

const (
	PartTransform Part = 1 << iota
	PartGeometry
)

// Change is one entity to send.
type Change struct {
	Entity *scene.Entity
	Parts  Part
}

// TransformOnly reports whether a mesh can be sent without its geometry.
func (c Change) TransformOnly() bool {
	return c.Entity.Kind == scene.KindMesh && c.Parts == PartTransform
}

// Delta is the outcome of a gathered pass.
type Delta struct {
	Mode             Mode
	Updated          []Change // in entity insertion order
	Deleted          []string
	Materials        []*scene.Material
	DeletedMaterials []int32
}

// Empty reports whether nothing needs sending.
func (d *Delta) Empty() bool {
	return len(d.Updated) == 0 && len(d.Deleted) == 0 &&
		len(d.Materials) == 0 && len(d.DeletedMaterials) == 0
}

type record struct {
	kind      scene.EntityKind
	transform uint64
	geometry  uint64
}

// Tracker holds the committed checksums of a session. QueueDeletion may be
// called from any goroutine; the pass methods belong to the session.
type Tracker struct {
	mu    sync.Mutex
	state State
	mode  Mode
	scope Scope
	log   *zap.Logger

	committed     map[string]record
	committedMats map[int32]uint64

	working     map[string]record
	workingMats map[int32]uint64
	updated     []Change
	materials   []*scene.Material

	pending     []string
	passDeletes []string
}

// New creates an idle tracker with nothing committed.
func New(log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		log:           log,
		committed:     make(map[string]record),
		committedMats: make(map[int32]uint64),
	}
}

// State returns the current pass state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Begin starts a pass. Deletions queued since the last pass are drained
// into it.
func (t *Tracker) Begin(mode Mode, scope Scope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return ErrBusy
	}
	t.state = Gathering
	t.mode = mode
	t.scope = scope
	t.working = make(map[string]record)
	t.workingMats = make(map[int32]uint64)
	t.updated = nil
	t.materials = nil
	t.passDeletes = t.pending
	t.pending = nil
	return nil
}

// Observe records an extracted entity and reports whether it is sent.
func (t *Tracker) Observe(e *scene.Entity) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Gathering {
		return false, ErrState
	}

	rec := record{kind: e.Kind, transform: e.TransformChecksum(), geometry: e.GeometryChecksum()}
	t.working[e.Path] = rec

	var parts Part
	prev, ok := t.committed[e.Path]
	switch {
	case t.mode == Full || !ok || prev.kind != rec.kind:
		parts = PartTransform | PartGeometry
	default:
		if prev.transform != rec.transform {
			parts |= PartTransform
		}
		if prev.geometry != rec.geometry {
			parts |= PartGeometry | PartTransform
		}
	}
	if parts == 0 {
		return false, nil
	}
	t.updated = append(t.updated, Change{Entity: e, Parts: parts})
	return true, nil
}

// Touch keeps a committed entity alive without re-extracting it. Unknown
// paths are ignored.
func (t *Tracker) Touch(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Gathering {
		return ErrState
	}
	if rec, ok := t.committed[path]; ok {
		if _, seen := t.working[path]; !seen {
			t.working[path] = rec
		}
	}
	return nil
}

// ObserveMaterial records a material and reports whether it is sent.
func (t *Tracker) ObserveMaterial(m *scene.Material) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Gathering {
		return false, ErrState
	}
	sum := m.Checksum()
	t.workingMats[m.ID] = sum
	if prev, ok := t.committedMats[m.ID]; ok && prev == sum && t.mode == Incremental {
		return false, nil
	}
	t.materials = append(t.materials, m)
	return true, nil
}

// QueueDeletion records that path was removed from the host document. The
// deletion is sent with the next pass.
func (t *Tracker) QueueDeletion(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, path)
}

// Pending returns the number of queued deletions.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Seal ends gathering and returns what the pass sends. Committed paths that
// were neither observed nor touched are deleted, as are drained deletions
// of paths absent from this pass.
func (t *Tracker) Seal() (*Delta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Gathering {
		return nil, ErrState
	}
	t.state = Exporting

	d := &Delta{Mode: t.mode, Materials: t.materials}
	d.Updated = append(d.Updated, t.updated...)
	sort.SliceStable(d.Updated, func(i, j int) bool {
		return d.Updated[i].Entity.Order < d.Updated[j].Entity.Order
	})

	if t.scope&ScopeEntities == 0 {
		for path, rec := range t.committed {
			t.working[path] = rec
		}
	}
	deleted := make(map[string]bool)
	for path := range t.committed {
		if _, ok := t.working[path]; !ok {
			deleted[path] = true
		}
	}
	for _, path := range t.passDeletes {
		if _, ok := t.working[path]; !ok {
			deleted[path] = true
		}
	}
	for path := range deleted {
		d.Deleted = append(d.Deleted, path)
	}
	sort.Strings(d.Deleted)

	if t.scope&ScopeMaterials == 0 {
		for id, sum := range t.committedMats {
			t.workingMats[id] = sum
		}
	}
	for id := range t.committedMats {
		if _, ok := t.workingMats[id]; !ok {
			d.DeletedMaterials = append(d.DeletedMaterials, id)
		}
	}
	sort.Slice(d.DeletedMaterials, func(i, j int) bool { return d.DeletedMaterials[i] < d.DeletedMaterials[j] })

	t.log.Debug("pass sealed",
		zap.Stringer("mode", t.mode),
		zap.Int("updated", len(d.Updated)),
		zap.Int("deleted", len(d.Deleted)),
		zap.Int("materials", len(d.Materials)))
	return d, nil
}

// Complete ends the pass. On success the working set becomes the committed
// state; otherwise it is discarded and drained deletions are queued again.
func (t *Tracker) Complete(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Idle {
		return
	}
	if ok && t.state == Exporting {
		t.committed = t.working
		t.committedMats = t.workingMats
	} else {
		t.pending = append(t.passDeletes, t.pending...)
	}
	t.state = Idle
	t.working = nil
	t.workingMats = nil
	t.updated = nil
	t.materials = nil
	t.passDeletes = nil
}

// Committed reports whether path was part of the last acknowledged pass.
func (t *Tracker) Committed(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.committed[path]
	return ok
}

// Len returns the number of committed entities.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.committed)
}

// Reset forgets all committed state. It fails while a pass is running.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return ErrBusy
	}
	t.committed = make(map[string]record)
	t.committedMats = make(map[int32]uint64)
	t.pending = nil
	return nil
}
