package surface

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/web"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Bridge message types.
const (
	msgHello = "hello"
	msgScene = "scene"
	msgReset = "reset"
)

const (
	bridgeWriteTimeout = 5 * time.Second
	defaultCanvasID    = "default"
)

// bridgeMessage is the JSON frame exchanged with a canvas.
type bridgeMessage struct {
	Type     string            `json:"type"`
	Elements []json.RawMessage `json:"elements,omitempty"`
	AppState json.RawMessage   `json:"appState,omitempty"`
}

// Bridge is a surface mirrored from a browser canvas over a websocket.
// The canvas sends "hello" on connect and "scene" on every change; the bridge
// answers "hello" with the current scene and pushes "scene" or "reset" when
// the scene is changed programmatically.
type Bridge struct {
	scene          *Memory
	canvases       *canvasRegistry
	logger         *slog.Logger
	originPatterns []string

	readyOnce sync.Once
	readyCh   chan struct{}
}

// NewBridge creates a bridge. originPatterns are extra websocket origin host
// patterns to accept besides same-origin requests.
func NewBridge(logger *slog.Logger, originPatterns ...string) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		scene:          NewMemory(),
		canvases:       newCanvasRegistry(),
		logger:         logger,
		originPatterns: originPatterns,
		readyCh:        make(chan struct{}),
	}
}

// Handler serves the canvas page at / and the websocket at /ws.
func (b *Bridge) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/", web.CanvasHandler())
	r.Get("/ws", b.ServeWS)
	return r
}

// Ready reports whether a canvas has connected and synced at least once.
func (b *Bridge) Ready() bool {
	select {
	case <-b.readyCh:
		return true
	default:
		return false
	}
}

// WaitReady blocks until a canvas has synced or ctx is done.
func (b *Bridge) WaitReady(ctx context.Context) error {
	select {
	case <-b.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Canvases returns the number of connected canvases.
func (b *Bridge) Canvases() int {
	return b.canvases.Len()
}

// SceneElements implements Surface.
func (b *Bridge) SceneElements() []json.RawMessage { return b.scene.SceneElements() }

// AppState implements Surface.
func (b *Bridge) AppState() json.RawMessage { return b.scene.AppState() }

// ExportPNG implements Surface.
func (b *Bridge) ExportPNG(w io.Writer) error { return b.scene.ExportPNG(w) }

// UpdateScene replaces the scene and pushes it to every canvas.
func (b *Bridge) UpdateScene(d domain.Diagram) {
	b.scene.UpdateScene(d)
	b.broadcast("", bridgeMessage{Type: msgScene, Elements: d.Elements, AppState: d.AppState})
}

// ResetScene clears the scene on every canvas.
func (b *Bridge) ResetScene() {
	b.scene.ResetScene()
	b.broadcast("", bridgeMessage{Type: msgReset})
}

// Close disconnects all canvases.
func (b *Bridge) Close() {
	b.canvases.CloseAll()
}

// ServeWS upgrades a canvas connection and mirrors its scene until it closes.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	canvasID := r.URL.Query().Get("canvas")
	if canvasID == "" {
		canvasID = defaultCanvasID
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.originPatterns,
	})
	if err != nil {
		b.logger.Error("Failed to accept canvas websocket", "error", err, "canvas_id", canvasID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "canvas session ended"); closeErr != nil {
			b.logger.Debug("Failed to close canvas websocket", "error", closeErr, "canvas_id", canvasID)
		}
	}()

	if replaced := b.canvases.Register(canvasID, ws); replaced != nil {
		go func() { _ = replaced.Close(websocket.StatusNormalClosure, "canvas replaced") }()
	}
	defer b.canvases.Unregister(canvasID, ws)

	b.readLoop(r.Context(), ws, canvasID)
}

func (b *Bridge) readLoop(ctx context.Context, ws *websocket.Conn, canvasID string) {
	for {
		var msg bridgeMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				b.logger.Debug("Canvas closed websocket", "canvas_id", canvasID)
			} else {
				b.logger.Debug("Canvas websocket read error", "error", err, "canvas_id", canvasID)
			}
			return
		}

		switch msg.Type {
		case msgHello:
			current := Snapshot(b.scene)
			b.write(ws, canvasID, bridgeMessage{Type: msgScene, Elements: current.Elements, AppState: current.AppState})
			b.markReady()
		case msgScene:
			d := domain.Diagram{Elements: msg.Elements, AppState: msg.AppState}
			b.scene.UpdateScene(d)
			b.markReady()
			b.broadcast(canvasID, msg)
		default:
			b.logger.Debug("Ignoring canvas message", "type", msg.Type, "canvas_id", canvasID)
		}
	}
}

func (b *Bridge) markReady() {
	b.readyOnce.Do(func() {
		close(b.readyCh)
		b.logger.Info("Canvas synced")
	})
}

// broadcast sends msg to every canvas except skipID.
func (b *Bridge) broadcast(skipID string, msg bridgeMessage) {
	for id, conn := range b.canvases.Snapshot() {
		if id == skipID {
			continue
		}
		b.write(conn, id, msg)
	}
}

func (b *Bridge) write(conn *websocket.Conn, canvasID string, msg bridgeMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), bridgeWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		b.logger.Debug("Canvas websocket write error", "error", err, "canvas_id", canvasID)
	}
}

var _ Surface = (*Bridge)(nil)
