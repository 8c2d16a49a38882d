// Package surface provides the diagram surfaces a practice session draws on:
// an in-memory scene, an Excalidraw file on disk, and a websocket bridge to a
// browser canvas. All of them can summarize and export their scene.
package surface

import (
	"encoding/json"
	"io"

	"github.com/ashureev/designdrill/internal/domain"
)

// Surface is the drawing collaborator of a practice session.
type Surface interface {
	// Ready reports whether the surface can be read and exported.
	Ready() bool
	// SceneElements returns a copy of the current elements.
	SceneElements() []json.RawMessage
	// AppState returns a copy of the current view state.
	AppState() json.RawMessage
	// UpdateScene replaces the scene.
	UpdateScene(d domain.Diagram)
	// ResetScene clears all elements.
	ResetScene()
	// ExportPNG writes a PNG rendering of the scene.
	ExportPNG(w io.Writer) error
}

// Snapshot captures the current scene of s.
func Snapshot(s Surface) domain.Diagram {
	return domain.Diagram{Elements: s.SceneElements(), AppState: s.AppState()}
}
