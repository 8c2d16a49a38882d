package surface

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const (
	renderMargin    = 20.0
	maxCanvasSide   = 4096.0
	blankCanvasSide = 64
	arrowHeadLen    = 12.0
)

var defaultStroke = color.RGBA{R: 30, G: 30, B: 30, A: 255}

// Renderer draws scenes to PNG.
type Renderer struct {
	mu   sync.Mutex
	face font.Face
	// lineHeight of face, in pixels.
	lineHeight float64
}

var defaultRenderer = &Renderer{face: basicfont.Face7x13, lineHeight: 13}

// NewRenderer returns a renderer using the TrueType font at fontPath, or the
// built-in bitmap face when fontPath is empty.
func NewRenderer(fontPath string, size float64) (*Renderer, error) {
	if strings.TrimSpace(fontPath) == "" {
		return &Renderer{face: basicfont.Face7x13, lineHeight: 13}, nil
	}
	face, err := loadFontFace(fontPath, size)
	if err != nil {
		return nil, err
	}
	return &Renderer{face: face, lineHeight: size * 1.25}, nil
}

// Render writes a PNG of d using the built-in font.
func Render(d domain.Diagram, w io.Writer) error {
	return defaultRenderer.Render(d, w)
}

// Render writes a PNG of the visible elements of d. An empty scene yields a
// small blank image.
func (r *Renderer) Render(d domain.Diagram, w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elements := d.VisibleElements()
	if len(elements) == 0 {
		dc := gg.NewContext(blankCanvasSide, blankCanvasSide)
		dc.SetColor(color.White)
		dc.Clear()
		return encode(dc, w)
	}

	minX, minY, maxX, maxY := r.bounds(elements)
	width := maxX - minX + 2*renderMargin
	height := maxY - minY + 2*renderMargin
	scale := 1.0
	if side := math.Max(width, height); side > maxCanvasSide {
		scale = maxCanvasSide / side
	}

	dc := gg.NewContext(int(math.Ceil(width*scale)), int(math.Ceil(height*scale)))
	dc.SetColor(color.White)
	dc.Clear()
	dc.Scale(scale, scale)
	dc.Translate(renderMargin-minX, renderMargin-minY)
	dc.SetFontFace(r.face)
	dc.SetLineWidth(2)

	for _, el := range elements {
		setStroke(dc, el.StrokeColor)
		switch el.Type {
		case domain.ElementRectangle:
			dc.DrawRectangle(el.X, el.Y, el.Width, el.Height)
			dc.Stroke()
		case domain.ElementEllipse:
			dc.DrawEllipse(el.X+el.Width/2, el.Y+el.Height/2, math.Abs(el.Width)/2, math.Abs(el.Height)/2)
			dc.Stroke()
		case domain.ElementDiamond:
			cx, cy := el.X+el.Width/2, el.Y+el.Height/2
			dc.MoveTo(cx, el.Y)
			dc.LineTo(el.X+el.Width, cy)
			dc.LineTo(cx, el.Y+el.Height)
			dc.LineTo(el.X, cy)
			dc.ClosePath()
			dc.Stroke()
		case domain.ElementArrow, domain.ElementLine:
			drawConnector(dc, el)
		case domain.ElementText:
			for i, line := range strings.Split(el.Text, "\n") {
				dc.DrawStringAnchored(line, el.X, el.Y+float64(i)*r.lineHeight, 0, 1)
			}
		default:
			if el.Width > 0 && el.Height > 0 {
				dc.DrawRectangle(el.X, el.Y, el.Width, el.Height)
				dc.Stroke()
			}
		}
	}
	return encode(dc, w)
}

func drawConnector(dc *gg.Context, el domain.Element) {
	if len(el.Points) < 2 {
		return
	}
	dc.MoveTo(el.X+el.Points[0][0], el.Y+el.Points[0][1])
	for _, p := range el.Points[1:] {
		dc.LineTo(el.X+p[0], el.Y+p[1])
	}
	dc.Stroke()

	if el.Type != domain.ElementArrow {
		return
	}
	last := el.Points[len(el.Points)-1]
	prev := el.Points[len(el.Points)-2]
	tipX, tipY := el.X+last[0], el.Y+last[1]
	angle := math.Atan2(last[1]-prev[1], last[0]-prev[0])
	for _, side := range []float64{-1, 1} {
		a := angle + math.Pi - side*math.Pi/7
		dc.MoveTo(tipX, tipY)
		dc.LineTo(tipX+arrowHeadLen*math.Cos(a), tipY+arrowHeadLen*math.Sin(a))
	}
	dc.Stroke()
}

// bounds returns the scene extent. Text without a size gets an estimate from
// the font metrics.
func (r *Renderer) bounds(elements []domain.Element) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	grow := func(x, y float64) {
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	for _, el := range elements {
		switch {
		case el.IsConnector() && len(el.Points) > 0:
			for _, p := range el.Points {
				grow(el.X+p[0], el.Y+p[1])
			}
		case el.Type == domain.ElementText:
			w, h := el.Width, el.Height
			if w <= 0 || h <= 0 {
				w, h = r.measure(el.Text)
			}
			grow(el.X, el.Y)
			grow(el.X+w, el.Y+h)
		default:
			grow(el.X, el.Y)
			grow(el.X+el.Width, el.Y+el.Height)
		}
	}
	return minX, minY, maxX, maxY
}

func (r *Renderer) measure(text string) (float64, float64) {
	lines := strings.Split(text, "\n")
	widest := 0.0
	for _, line := range lines {
		adv := font.MeasureString(r.face, line)
		widest = math.Max(widest, float64(adv)/64)
	}
	return widest, float64(len(lines)) * r.lineHeight
}

func setStroke(dc *gg.Context, hex string) {
	if strings.HasPrefix(hex, "#") && (len(hex) == 4 || len(hex) == 7) {
		dc.SetHexColor(hex)
		return
	}
	dc.SetColor(defaultStroke)
}

func encode(dc *gg.Context, w io.Writer) error {
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
