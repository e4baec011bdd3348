package graph

import (
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Graph holds the entities of one sync pass keyed by path, remembering
// insertion order. It is owned by a single session and not safe for
// concurrent use.
type Graph struct {
	byPath     map[string]*scene.Entity
	order      []*scene.Entity
	collisions int
	log        *zap.Logger
}

// New creates an empty graph. A nil logger disables logging.
func New(log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	return &Graph{byPath: make(map[string]*scene.Entity), log: log}
}

// AddOrGet returns the entity at path, creating it when absent. The second
// result reports whether the entity was created. Asking for an existing path
// with a different kind converts the record: the last writer wins.
func (g *Graph) AddOrGet(path string, kind scene.EntityKind) (*scene.Entity, bool) {
	if e, ok := g.byPath[path]; ok {
		if e.Kind != kind {
			g.collisions++
			g.log.Warn("path collision, last write wins",
				zap.String("path", path),
				zap.Stringer("was", e.Kind),
				zap.Stringer("now", kind))
			e.SetKind(kind)
		}
		return e, false
	}

	e := scene.NewEntity(path, kind)
	e.Order = len(g.order)
	g.byPath[path] = e
	g.order = append(g.order, e)
	return e, true
}

// Exists reports whether path has a record.
func (g *Graph) Exists(path string) bool {
	_, ok := g.byPath[path]
	return ok
}

// Get returns the entity at path, or nil.
func (g *Graph) Get(path string) *scene.Entity {
	return g.byPath[path]
}

// Remove deletes the record at path. Removing a missing path is a no-op.
func (g *Graph) Remove(path string) {
	e, ok := g.byPath[path]
	if !ok {
		return
	}
	delete(g.byPath, path)
	for i, x := range g.order {
		if x == e {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	for i, x := range g.order {
		x.Order = i
	}
}

// Entities returns the records in insertion order.
func (g *Graph) Entities() []*scene.Entity {
	return append([]*scene.Entity(nil), g.order...)
}

// Len returns the number of records.
func (g *Graph) Len() int {
	return len(g.order)
}

// Collisions returns how many kind-changing re-adds happened since Reset.
func (g *Graph) Collisions() int {
	return g.collisions
}

// Reset drops every record.
func (g *Graph) Reset() {
	g.byPath = make(map[string]*scene.Entity)
	g.order = nil
	g.collisions = 0
}
