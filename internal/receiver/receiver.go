// Package receiver is a debug receiver: it accepts the live sync stream and
// mirrors the scene in memory. It backs integration tests and the serve
// command.
package receiver

import (
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/pkg/protocol"
	"github.com/Faultbox/meshbridge/pkg/scene"
)

// PassInfo describes one completed pass.
type PassInfo struct {
	Session  string
	Messages []protocol.MessageType
	// Updated lists entity paths in arrival order.
	Updated []string
	Deleted []string
}

// Receiver mirrors the scene sent by one or more sync sessions.
type Receiver struct {
	log      *zap.Logger
	router   chi.Router
	upgrader websocket.Upgrader
	enc      *protocol.Encoder

	mu        sync.Mutex
	entities  map[string]*scene.Entity
	order     []string
	materials map[int32]*scene.Material
	clips     []*scene.AnimationClip
	settings  scene.Settings
	passes    []PassInfo
	current   *PassInfo
	onPass    func(PassInfo)
}

// New creates a receiver. metrics, if not nil, is mounted at /metrics.
func New(log *zap.Logger, metrics http.Handler) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Receiver{
		log:       log,
		enc:       protocol.NewEncoder([16]byte{}),
		entities:  make(map[string]*scene.Entity),
		materials: make(map[int32]*scene.Material),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/health", r.handleHealth)
	router.Get("/ws", r.handleStream)
	if metrics != nil {
		router.Handle("/metrics", metrics)
	}
	r.router = router
	return r
}

// ServeHTTP implements http.Handler.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// OnPass registers fn to run after every completed pass.
func (r *Receiver) OnPass(fn func(PassInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPass = fn
}

func (r *Receiver) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (r *Receiver) handleStream(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	r.log.Debug("session opened", zap.String("remote", conn.RemoteAddr().String()))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.Debug("session ended", zap.Error(err))
			}
			return
		}
		reply, err := r.Handle(data)
		if err != nil {
			r.log.Warn("bad message", zap.Error(err))
			return
		}
		if reply != nil {
			if err := conn.WriteMessage(websocket.BinaryMessage, r.enc.Encode(reply)); err != nil {
				return
			}
		}
	}
}

// Handle applies one encoded message and returns the reply to send, if any.
func (r *Receiver) Handle(data []byte) (protocol.Message, error) {
	h, msg, err := protocol.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	reply, done := r.handleLocked(h, msg)
	r.mu.Unlock()
	if done != nil {
		done()
	}
	return reply, nil
}

func (r *Receiver) handleLocked(h protocol.Header, msg protocol.Message) (protocol.Message, func()) {
	if r.current != nil {
		r.current.Messages = append(r.current.Messages, h.Type)
	}

	switch m := msg.(type) {
	case *protocol.Fence:
		if m.Kind == protocol.FenceSceneBegin {
			r.current = &PassInfo{Session: h.Session.String(), Messages: []protocol.MessageType{h.Type}}
			return nil, nil
		}
		info := PassInfo{Session: h.Session.String()}
		if r.current != nil {
			info = *r.current
		}
		r.passes = append(r.passes, info)
		r.current = nil
		var done func()
		if fn := r.onPass; fn != nil {
			done = func() { fn(info) }
		}
		return &protocol.Response{Text: []string{"ok"}}, done

	case *protocol.Set:
		r.apply(m.Scene)
	case *protocol.Delete:
		for _, p := range m.Paths {
			r.removeLocked(p)
		}
		for _, id := range m.Materials {
			delete(r.materials, id)
		}
		if r.current != nil {
			r.current.Deleted = append(r.current.Deleted, m.Paths...)
		}
	case *protocol.Query:
		return r.answer(m.Kind), nil
	case *protocol.Text:
		r.log.Info("peer message", zap.String("text", m.Text))
	}
	return nil, nil
}

func (r *Receiver) apply(s *scene.Scene) {
	if s.Settings != (scene.Settings{}) {
		r.settings = s.Settings
	}
	for _, e := range s.Entities {
		prev, ok := r.entities[e.Path]
		if !ok {
			r.order = append(r.order, e.Path)
		}
		// A transform-only mesh record keeps the geometry already held.
		if ok && prev.Mesh != nil && e.Mesh != nil && e.Mesh.VertexCount() == 0 && len(e.Mesh.Counts) == 0 {
			e.Mesh = prev.Mesh
		}
		r.entities[e.Path] = e
		if r.current != nil {
			r.current.Updated = append(r.current.Updated, e.Path)
		}
	}
	for _, m := range s.Materials {
		r.materials[m.ID] = m
	}
	if len(s.Clips) > 0 {
		r.clips = s.Clips
	}
}

func (r *Receiver) removeLocked(path string) {
	if _, ok := r.entities[path]; !ok {
		return
	}
	delete(r.entities, path)
	for i, p := range r.order {
		if p == path {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Receiver) answer(kind protocol.QueryKind) *protocol.Response {
	switch kind {
	case protocol.QueryProtocolVersion:
		return &protocol.Response{Text: []string{"1"}}
	case protocol.QueryPluginVersion:
		return &protocol.Response{Text: []string{"meshbridge-receiver"}}
	case protocol.QueryHostName:
		return &protocol.Response{Text: []string{"receiver"}}
	case protocol.QueryRootNodes, protocol.QueryAllNodes:
		var out []string
		for _, p := range r.order {
			if kind == protocol.QueryAllNodes || scene.ParentPath(p) == "" {
				out = append(out, p)
			}
		}
		return &protocol.Response{Text: out}
	default:
		return &protocol.Response{}
	}
}

// Scene returns a copy of the mirrored scene, entities in arrival order.
func (r *Receiver) Scene() *scene.Scene {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &scene.Scene{Settings: r.settings}
	for i, p := range r.order {
		e := r.entities[p].Clone()
		e.Order = i
		s.Entities = append(s.Entities, e)
	}
	ids := make([]int32, 0, len(r.materials))
	for id := range r.materials {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m := *r.materials[id]
		s.Materials = append(s.Materials, &m)
	}
	s.Clips = r.clips
	return s
}

// Passes returns the completed passes.
func (r *Receiver) Passes() []PassInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PassInfo(nil), r.passes...)
}

// Reset forgets everything received.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = make(map[string]*scene.Entity)
	r.order = nil
	r.materials = make(map[int32]*scene.Material)
	r.clips = nil
	r.passes = nil
	r.current = nil
}
