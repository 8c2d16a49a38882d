// Package web embeds the browser canvas page served by the surface bridge.
//
// The page hosts an Excalidraw whiteboard and mirrors its scene over the
// bridge websocket at /ws.
package web

import (
	_ "embed"
	"log/slog"
	"net/http"
)

//go:embed canvas.html
var canvasPage []byte

// CanvasHandler returns an http.Handler that serves the embedded canvas page.
func CanvasHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(canvasPage); err != nil {
			slog.Debug("web: failed to write canvas page", "error", err)
		}
	})
}
