package domain

import (
	"encoding/json"
)

// Diagram is a snapshot of the drawing surface. The client never interprets
// the elements beyond the read-only Element view; it forwards them as-is.
type Diagram struct {
	Elements []json.RawMessage `json:"elements"`
	AppState json.RawMessage   `json:"appState,omitempty"`
}

// MarshalJSON always emits an elements array, even for an empty scene.
func (d Diagram) MarshalJSON() ([]byte, error) {
	type alias Diagram
	out := alias(d)
	if out.Elements == nil {
		out.Elements = []json.RawMessage{}
	}
	return json.Marshal(out)
}

// ParsedElements decodes every element into its typed view. Elements that
// fail to decode are skipped.
func (d Diagram) ParsedElements() []Element {
	out := make([]Element, 0, len(d.Elements))
	for _, raw := range d.Elements {
		var el Element
		if err := json.Unmarshal(raw, &el); err != nil {
			continue
		}
		out = append(out, el)
	}
	return out
}

// VisibleElements returns the parsed elements that are not deleted.
func (d Diagram) VisibleElements() []Element {
	all := d.ParsedElements()
	out := all[:0]
	for _, el := range all {
		if !el.IsDeleted {
			out = append(out, el)
		}
	}
	return out
}

// IsEmpty reports whether the diagram has no visible elements.
func (d Diagram) IsEmpty() bool {
	return len(d.VisibleElements()) == 0
}

// Clone returns a deep copy of the diagram.
func (d Diagram) Clone() Diagram {
	out := Diagram{}
	if d.Elements != nil {
		out.Elements = make([]json.RawMessage, len(d.Elements))
		for i, raw := range d.Elements {
			out.Elements[i] = append(json.RawMessage(nil), raw...)
		}
	}
	if d.AppState != nil {
		out.AppState = append(json.RawMessage(nil), d.AppState...)
	}
	return out
}

// Element is a typed, read-only view over one scene element.
type Element struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"`
	Text          string       `json:"text,omitempty"`
	ContainerID   string       `json:"containerId,omitempty"`
	X             float64      `json:"x"`
	Y             float64      `json:"y"`
	Width         float64      `json:"width"`
	Height        float64      `json:"height"`
	GroupIDs      []string     `json:"groupIds,omitempty"`
	BoundElements []Binding    `json:"boundElements,omitempty"`
	StartBinding  *Binding     `json:"startBinding,omitempty"`
	EndBinding    *Binding     `json:"endBinding,omitempty"`
	Points        [][2]float64 `json:"points,omitempty"`
	StrokeColor   string       `json:"strokeColor,omitempty"`
	IsDeleted     bool         `json:"isDeleted,omitempty"`
}

// Binding references another element.
type Binding struct {
	ID        string `json:"id,omitempty"`
	ElementID string `json:"elementId,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Target returns the referenced element id.
func (b *Binding) Target() string {
	if b == nil {
		return ""
	}
	if b.ElementID != "" {
		return b.ElementID
	}
	return b.ID
}

// Element types the surface knows how to summarize and draw.
const (
	ElementRectangle = "rectangle"
	ElementEllipse   = "ellipse"
	ElementDiamond   = "diamond"
	ElementArrow     = "arrow"
	ElementLine      = "line"
	ElementText      = "text"
)

// IsShape reports whether the element is a component box.
func (e Element) IsShape() bool {
	switch e.Type {
	case ElementRectangle, ElementEllipse, ElementDiamond:
		return true
	}
	return false
}

// IsConnector reports whether the element links components.
func (e Element) IsConnector() bool {
	return e.Type == ElementArrow || e.Type == ElementLine
}
