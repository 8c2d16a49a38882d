package surface

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/ashureev/designdrill/internal/domain"
)

// Memory is an in-process scene. It is always ready.
type Memory struct {
	mu    sync.RWMutex
	scene domain.Diagram
}

// NewMemory returns an empty scene.
func NewMemory() *Memory {
	return &Memory{}
}

// Ready implements Surface.
func (m *Memory) Ready() bool { return true }

// SceneElements implements Surface.
func (m *Memory) SceneElements() []json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scene.Clone().Elements
}

// AppState implements Surface.
func (m *Memory) AppState() json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scene.Clone().AppState
}

// UpdateScene implements Surface.
func (m *Memory) UpdateScene(d domain.Diagram) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene = d.Clone()
}

// ResetScene implements Surface. The view state is kept.
func (m *Memory) ResetScene() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene.Elements = nil
}

// ExportPNG implements Surface.
func (m *Memory) ExportPNG(w io.Writer) error {
	return Render(m.snapshot(), w)
}

func (m *Memory) snapshot() domain.Diagram {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scene.Clone()
}

var _ Surface = (*Memory)(nil)
