package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/designdrill/internal/domain"
)

// excalidrawFile is the on-disk .excalidraw format.
type excalidrawFile struct {
	Type     string            `json:"type"`
	Version  int               `json:"version"`
	Source   string            `json:"source,omitempty"`
	Elements []json.RawMessage `json:"elements"`
	AppState json.RawMessage   `json:"appState,omitempty"`
}

// File is a scene backed by an Excalidraw file. External edits are picked up
// when the file's modification time or size changes.
type File struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	scene   domain.Diagram
	modTime time.Time
	size    int64
	loadErr error
}

// NewFile opens the scene at path, creating an empty file if it is missing.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &File{path: path, logger: logger}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create scene directory: %w", err)
		}
		if err := f.write(domain.Diagram{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat scene file: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reloadLocked(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the scene file path.
func (f *File) Path() string { return f.path }

// Ready reports whether the last read of the file succeeded.
func (f *File) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshLocked()
	return f.loadErr == nil
}

// SceneElements implements Surface.
func (f *File) SceneElements() []json.RawMessage {
	return f.current().Elements
}

// AppState implements Surface.
func (f *File) AppState() json.RawMessage {
	return f.current().AppState
}

// UpdateScene implements Surface.
func (f *File) UpdateScene(d domain.Diagram) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceLocked(d.Clone())
}

// ResetScene implements Surface.
func (f *File) ResetScene() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshLocked()
	f.replaceLocked(domain.Diagram{AppState: f.scene.AppState})
}

// ExportPNG implements Surface.
func (f *File) ExportPNG(w io.Writer) error {
	return Render(f.current(), w)
}

func (f *File) current() domain.Diagram {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshLocked()
	return f.scene.Clone()
}

func (f *File) replaceLocked(d domain.Diagram) {
	if err := f.write(d); err != nil {
		f.logger.Warn("Failed to write scene file", "path", f.path, "error", err)
		return
	}
	f.scene = d
	f.loadErr = nil
	if info, err := os.Stat(f.path); err == nil {
		f.modTime, f.size = info.ModTime(), info.Size()
	}
}

// refreshLocked re-reads the file when it changed on disk.
func (f *File) refreshLocked() {
	info, err := os.Stat(f.path)
	if err != nil {
		f.loadErr = fmt.Errorf("stat scene file: %w", err)
		return
	}
	if f.loadErr == nil && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return
	}
	if err := f.reloadLocked(); err != nil {
		f.logger.Warn("Failed to reload scene file", "path", f.path, "error", err)
	}
}

func (f *File) reloadLocked() error {
	info, err := os.Stat(f.path)
	if err != nil {
		f.loadErr = fmt.Errorf("stat scene file: %w", err)
		return f.loadErr
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.loadErr = fmt.Errorf("read scene file: %w", err)
		return f.loadErr
	}
	var doc excalidrawFile
	if err := json.Unmarshal(data, &doc); err != nil {
		f.loadErr = fmt.Errorf("parse scene file: %w", err)
		return f.loadErr
	}
	f.scene = domain.Diagram{Elements: doc.Elements, AppState: doc.AppState}
	f.modTime, f.size = info.ModTime(), info.Size()
	f.loadErr = nil
	return nil
}

// write replaces the file atomically via a temp file in the same directory.
func (f *File) write(d domain.Diagram) error {
	doc := excalidrawFile{
		Type:     "excalidraw",
		Version:  2,
		Source:   "designdrill",
		Elements: d.Elements,
		AppState: d.AppState,
	}
	if doc.Elements == nil {
		doc.Elements = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".scene-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp scene: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp scene: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp scene: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace scene file: %w", err)
	}
	return nil
}

var _ Surface = (*File)(nil)
