package surface

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// canvasRegistry tracks the live websocket of each connected canvas.
type canvasRegistry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

func newCanvasRegistry() *canvasRegistry {
	return &canvasRegistry{active: make(map[string]*websocket.Conn)}
}

// Register stores conn for canvasID and returns the connection it replaced,
// if any. The caller closes the replaced connection.
func (r *canvasRegistry) Register(canvasID string, conn *websocket.Conn) *websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.active[canvasID]
	r.active[canvasID] = conn
	slog.Info("Canvas registered", "canvas_id", canvasID)
	if existing == conn {
		return nil
	}
	return existing
}

// Unregister removes conn if it is still the current one for canvasID.
func (r *canvasRegistry) Unregister(canvasID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[canvasID]; ok && current == conn {
		delete(r.active, canvasID)
		slog.Info("Canvas unregistered", "canvas_id", canvasID)
	}
}

// Snapshot returns the current connections keyed by canvas id.
func (r *canvasRegistry) Snapshot() map[string]*websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*websocket.Conn, len(r.active))
	for id, conn := range r.active {
		out[id] = conn
	}
	return out
}

// Len returns the number of connected canvases.
func (r *canvasRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll disconnects every canvas.
func (r *canvasRegistry) CloseAll() {
	r.mu.Lock()
	conns := r.active
	r.active = make(map[string]*websocket.Conn)
	r.mu.Unlock()

	for id, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "bridge closed")
		slog.Info("Canvas closed", "canvas_id", id)
	}
}
