// Package render rasterizes annotation boxes with gogpu/gg. Canvas is the
// drawing surface the editor redraws into; Annotate burns boxes into a copy
// of the image itself for previews.
package render

import (
	"fmt"
	"image"
	"io"
	"math"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/menta2k/image-annotator/pkg/types"
)

// Style holds colors (hex, optionally with alpha) and stroke widths
type Style struct {
	BoxColor      string  `json:"box_color" yaml:"box_color"`
	BoxFill       string  `json:"box_fill" yaml:"box_fill"`
	BoxWidth      float64 `json:"box_width" yaml:"box_width"`
	SelectedColor string  `json:"selected_color" yaml:"selected_color"`
	SelectedFill  string  `json:"selected_fill" yaml:"selected_fill"`
	SelectedWidth float64 `json:"selected_width" yaml:"selected_width"`
	PreviewColor  string  `json:"preview_color" yaml:"preview_color"`
	PreviewFill   string  `json:"preview_fill" yaml:"preview_fill"`
	PreviewWidth  float64 `json:"preview_width" yaml:"preview_width"`
	FontSize      float64 `json:"font_size" yaml:"font_size"`
}

// DefaultStyle draws lime boxes, a yellow selection and a red drag preview
func DefaultStyle() Style {
	return Style{
		BoxColor:      "#00ff00",
		BoxFill:       "#00ff0026",
		BoxWidth:      2,
		SelectedColor: "#ffff00",
		SelectedFill:  "#ffff002e",
		SelectedWidth: 3,
		PreviewColor:  "#ff0000",
		PreviewFill:   "#ff000026",
		PreviewWidth:  1,
		FontSize:      12,
	}
}

var (
	fontOnce   sync.Once
	fontSource *text.FontSource
	fontErr    error
)

// labelFace returns the built-in label font at size points
func labelFace(size float64) (text.Face, error) {
	fontOnce.Do(func() {
		fontSource, fontErr = text.NewFontSource(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to load label font: %w", fontErr)
	}
	return fontSource.Face(size), nil
}

// Canvas is a transparent overlay the size of the displayed image
type Canvas struct {
	mu    sync.Mutex
	dc    *gg.Context
	style Style
	face  text.Face
	err   error
}

// NewCanvas creates an overlay surface. A zero size yields a 1x1 surface
// until the first Resize.
func NewCanvas(size types.Size, style Style) (*Canvas, error) {
	face, err := labelFace(style.FontSize)
	if err != nil {
		return nil, err
	}
	w, h := pixels(size)
	c := &Canvas{dc: gg.NewContext(w, h), style: style, face: face}
	c.dc.SetFont(face)
	return c, nil
}

// Resize reallocates the surface for a new display size
func (c *Canvas) Resize(size types.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, h := pixels(size)
	if err := c.dc.Resize(w, h); err != nil {
		c.err = err
	}
}

// Clear wipes the surface to transparent
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc.Clear()
	c.err = nil
}

// DrawBox draws one annotation with its label at the top-left corner
func (c *Canvas) DrawBox(rect types.Rect, label string, selected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stroke, fill, width := c.style.BoxColor, c.style.BoxFill, c.style.BoxWidth
	if selected {
		stroke, fill, width = c.style.SelectedColor, c.style.SelectedFill, c.style.SelectedWidth
	}
	c.keep(drawRect(c.dc, rect, stroke, fill, width))
	setHex(c.dc, stroke)
	c.dc.DrawString(label, rect.X+4, rect.Y+c.style.FontSize)
}

// DrawPreview draws the rubber-band rectangle of a drag in progress
func (c *Canvas) DrawPreview(rect types.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keep(drawRect(c.dc, rect, c.style.PreviewColor, c.style.PreviewFill, c.style.PreviewWidth))
}

// Err returns the first drawing error since the last Clear
func (c *Canvas) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Size returns the surface size in pixels
func (c *Canvas) Size() types.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.Size{W: float64(c.dc.Width()), H: float64(c.dc.Height())}
}

// Snapshot copies the current surface
func (c *Canvas) Snapshot() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneImage(c.dc.Image())
}

// EncodePNG writes the current surface as PNG
func (c *Canvas) EncodePNG(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dc.EncodePNG(w)
}

func (c *Canvas) keep(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

// drawRect fills then strokes rect
func drawRect(dc *gg.Context, rect types.Rect, stroke, fill string, width float64) error {
	if fill != "" {
		setHex(dc, fill)
		dc.DrawRectangle(rect.X, rect.Y, rect.W, rect.H)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("failed to fill box: %w", err)
		}
	}
	setHex(dc, stroke)
	dc.SetLineWidth(width)
	dc.DrawRectangle(rect.X, rect.Y, rect.W, rect.H)
	if err := dc.Stroke(); err != nil {
		return fmt.Errorf("failed to stroke box: %w", err)
	}
	return nil
}

func setHex(dc *gg.Context, hex string) {
	col := gg.Hex(hex)
	dc.SetRGBA(col.R, col.G, col.B, col.A)
}

func pixels(size types.Size) (int, int) {
	w := int(math.Round(size.W))
	h := int(math.Round(size.H))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
