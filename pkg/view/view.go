// Package view owns the display-only rotation, zoom and pan of the current
// image and derives the drawing surface size and CSS transform from them.
package view

import (
	"fmt"
	"math"

	"github.com/menta2k/image-annotator/pkg/transform"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Config holds the zoom and pan limits
type Config struct {
	MinZoom  float64
	MaxZoom  float64
	ZoomIn   float64
	ZoomOut  float64
	PanRange float64
}

// DefaultConfig returns the stock limits: zoom in [0.5, 3] in 10% steps
func DefaultConfig() Config {
	return Config{
		MinZoom:  0.5,
		MaxZoom:  3.0,
		ZoomIn:   1.1,
		ZoomOut:  0.9,
		PanRange: 500,
	}
}

// Axis selects a pan slider
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// Event is a view gesture handled by Controller.Dispatch
type Event interface {
	viewEvent()
}

// Wheel zooms out for positive DeltaY and in otherwise
type Wheel struct {
	DeltaY float64
}

// PanSlider sets one pan axis from a bounded slider
type PanSlider struct {
	Axis  Axis
	Value float64
}

// PanStart begins a secondary-button pan drag at a raw pointer position
type PanStart struct {
	Pos types.Point
}

// PanMove continues a pan drag
type PanMove struct {
	Pos types.Point
}

// PanEnd finishes a pan drag
type PanEnd struct{}

// Resize sets the layout viewport the image is fitted into
type Resize struct {
	Viewport types.Size
}

func (Wheel) viewEvent() {}
func (PanSlider) viewEvent() {}
func (PanStart) viewEvent() {}
func (PanMove) viewEvent() {}
func (PanEnd) viewEvent() {}
func (Resize) viewEvent() {}

// Controller holds the view state of the current image
type Controller struct {
	config   Config
	state    types.ViewState
	natural  types.Size
	viewport types.Size

	panning bool
	anchor  types.Point
}

// New creates a controller with the default limits
func New() *Controller {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a controller with custom limits
func NewWithConfig(config Config) *Controller {
	def := DefaultConfig()
	if config.MinZoom <= 0 || config.MaxZoom < config.MinZoom {
		config.MinZoom, config.MaxZoom = def.MinZoom, def.MaxZoom
	}
	if config.ZoomIn <= 1 {
		config.ZoomIn = def.ZoomIn
	}
	if config.ZoomOut <= 0 || config.ZoomOut >= 1 {
		config.ZoomOut = def.ZoomOut
	}
	if config.PanRange <= 0 {
		config.PanRange = def.PanRange
	}
	return &Controller{config: config, state: types.DefaultView()}
}

// Dispatch applies one view event and reports whether the view changed
func (c *Controller) Dispatch(ev Event) bool {
	switch ev := ev.(type) {
	case Wheel:
		factor := c.config.ZoomIn
		if ev.DeltaY > 0 {
			factor = c.config.ZoomOut
		}
		return c.setZoom(c.state.Zoom * factor)
	case PanSlider:
		v := clamp(ev.Value, -c.config.PanRange, c.config.PanRange)
		switch ev.Axis {
		case AxisX:
			if v == c.state.PanX {
				return false
			}
			c.state.PanX = v
		case AxisY:
			if v == c.state.PanY {
				return false
			}
			c.state.PanY = v
		default:
			return false
		}
		return true
	case PanStart:
		c.panning = true
		c.anchor = types.Point{X: ev.Pos.X - c.state.PanX, Y: ev.Pos.Y - c.state.PanY}
		return false
	case PanMove:
		if !c.panning {
			return false
		}
		c.state.PanX = ev.Pos.X - c.anchor.X
		c.state.PanY = ev.Pos.Y - c.anchor.Y
		return true
	case PanEnd:
		c.panning = false
		return false
	case Resize:
		if ev.Viewport == c.viewport {
			return false
		}
		c.viewport = ev.Viewport
		return true
	}
	return false
}

func (c *Controller) setZoom(z float64) bool {
	z = clamp(z, c.config.MinZoom, c.config.MaxZoom)
	if z == c.state.Zoom {
		return false
	}
	c.state.Zoom = z
	return true
}

// Reset restores the default view for a freshly loaded image of size natural
func (c *Controller) Reset(natural types.Size) {
	c.state = types.DefaultView()
	c.natural = natural
	c.panning = false
}

// State returns the current view state
func (c *Controller) State() types.ViewState { return c.state }

// Natural returns the natural size of the current image
func (c *Controller) Natural() types.Size { return c.natural }

// Panning reports whether a pan drag is in progress
func (c *Controller) Panning() bool { return c.panning }

// Sliders returns the pan slider positions, which follow drag pans within range
func (c *Controller) Sliders() (x, y float64) {
	return clamp(c.state.PanX, -c.config.PanRange, c.config.PanRange),
		clamp(c.state.PanY, -c.config.PanRange, c.config.PanRange)
}

// CanvasSize is the internal pixel size of the drawing surface: the image
// box under the current rotation fitted into the viewport. Zoom is applied
// by the CSS transform and does not change it.
func (c *Controller) CanvasSize() types.Size {
	return transform.FitContain(transform.RotatedSize(c.natural, c.state.Rotation), c.viewport)
}

// Transform returns the CSS transform shared by the image and drawing surfaces
func (c *Controller) Transform() string {
	return fmt.Sprintf("translate(%gpx, %gpx) rotate(%ddeg) scale(%g)",
		c.state.PanX, c.state.PanY, int(c.state.Rotation), round3(c.state.Zoom))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
