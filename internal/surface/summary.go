package surface

import (
	"fmt"
	"strings"

	"github.com/ashureev/designdrill/internal/domain"
)

// Component is a shape in a summarized diagram.
type Component struct {
	ID          string
	Type        string
	Label       string
	Connections int
	Group       string
}

// Connection is an arrow or line in a summarized diagram.
type Connection struct {
	ID    string
	From  string
	To    string
	Label string
}

// Summary is a plain-text friendly digest of a diagram.
type Summary struct {
	Total       int
	Components  []Component
	Connections []Connection
	Annotations []string
}

// Summarize digests the visible elements of d. Text bound to a shape or
// connector becomes that element's label; other text is an annotation.
func Summarize(d domain.Diagram) Summary {
	elements := d.VisibleElements()
	s := Summary{Total: len(elements)}

	labels := make(map[string]string)
	for _, el := range elements {
		if el.Type == domain.ElementText && el.ContainerID != "" {
			labels[el.ContainerID] = joinLabel(labels[el.ContainerID], el.Text)
		}
	}

	for _, el := range elements {
		switch {
		case el.IsConnector():
			s.Connections = append(s.Connections, Connection{
				ID:    el.ID,
				From:  el.StartBinding.Target(),
				To:    el.EndBinding.Target(),
				Label: joinLabel(el.Text, labels[el.ID]),
			})
		case el.Type == domain.ElementText:
			if el.ContainerID == "" && strings.TrimSpace(el.Text) != "" {
				s.Annotations = append(s.Annotations, el.Text)
			}
		default:
			c := Component{
				ID:          el.ID,
				Type:        el.Type,
				Label:       joinLabel(el.Text, labels[el.ID]),
				Connections: countConnectors(el.BoundElements),
			}
			if len(el.GroupIDs) > 0 {
				c.Group = el.GroupIDs[0]
			}
			s.Components = append(s.Components, c)
		}
	}
	return s
}

// Labels returns every piece of text in the diagram.
func (s Summary) Labels() []string {
	var out []string
	for _, c := range s.Components {
		if c.Label != "" {
			out = append(out, c.Label)
		}
	}
	for _, c := range s.Connections {
		if c.Label != "" {
			out = append(out, c.Label)
		}
	}
	return append(out, s.Annotations...)
}

// HasText reports whether any label or annotation contains one of the
// given words, case-insensitively.
func (s Summary) HasText(words ...string) bool {
	for _, label := range s.Labels() {
		lower := strings.ToLower(label)
		for _, w := range words {
			if strings.Contains(lower, strings.ToLower(w)) {
				return true
			}
		}
	}
	return false
}

// String renders the summary in the sectioned text layout used for review
// prompts and the CLI.
func (s Summary) String() string {
	if s.Total == 0 {
		return "Empty diagram - no elements found"
	}

	var b strings.Builder
	b.WriteString("=== DIAGRAM SUMMARY ===\n")
	fmt.Fprintf(&b, "Total Elements: %d\n", s.Total)
	fmt.Fprintf(&b, "Components: %d\n", len(s.Components))
	fmt.Fprintf(&b, "Arrows/Connections: %d\n", len(s.Connections))
	fmt.Fprintf(&b, "Text Labels: %d\n\n", len(s.Annotations))

	if len(s.Components) > 0 {
		b.WriteString("=== COMPONENTS ===\n")
		for i, c := range s.Components {
			fmt.Fprintf(&b, "%d. %s (ID: %s...)\n", i+1, strings.ToUpper(c.Type), shortID(c.ID))
			if c.Label != "" {
				fmt.Fprintf(&b, "   Label: %q\n", c.Label)
			}
			if c.Connections > 0 {
				fmt.Fprintf(&b, "   Connected to: %d elements\n", c.Connections)
			}
			if c.Group != "" {
				fmt.Fprintf(&b, "   Part of group: %s...\n", shortID(c.Group))
			}
			b.WriteString("\n")
		}
	}

	if len(s.Connections) > 0 {
		b.WriteString("=== CONNECTIONS ===\n")
		for i, c := range s.Connections {
			fmt.Fprintf(&b, "%d. ARROW (ID: %s...)\n", i+1, shortID(c.ID))
			fmt.Fprintf(&b, "   From: %s -> To: %s\n", endpoint(c.From), endpoint(c.To))
			if c.Label != "" {
				fmt.Fprintf(&b, "   Label: %q\n", c.Label)
			}
			b.WriteString("\n")
		}
	}

	if len(s.Annotations) > 0 {
		b.WriteString("=== TEXT ANNOTATIONS ===\n")
		for i, text := range s.Annotations {
			fmt.Fprintf(&b, "%d. %q\n", i+1, text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func countConnectors(bound []domain.Binding) int {
	n := 0
	for _, b := range bound {
		if b.Type == domain.ElementArrow || b.Type == domain.ElementLine || b.Type == "" {
			n++
		}
	}
	return n
}

func joinLabel(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

func shortID(id string) string {
	if id == "" {
		return "unknown"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func endpoint(id string) string {
	if id == "" {
		return "unknown"
	}
	return shortID(id) + "..."
}
