// Package editor holds the annotation set of one image together with the
// selection and the draw/select gesture state machine.
package editor

import (
	"math"
	"slices"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/pkg/history"
	"github.com/menta2k/image-annotator/pkg/transform"
	"github.com/menta2k/image-annotator/pkg/types"
)

// NoSelection is the selection index when no box is selected
const NoSelection = -1

// DefaultClickThreshold is the drag size in pixels below which a gesture is a click
const DefaultClickThreshold = 6.0

// Config holds editor settings
type Config struct {
	ClickThreshold  float64
	HistoryCapacity int
	// Labeler renders the text drawn next to a box; class id when nil
	Labeler func(class int) string
}

// Geometry is what the editor needs to map boxes onto the drawing surface
type Geometry struct {
	Natural types.Size
	Display types.Size
	View    types.ViewState
}

// Editor is the annotation editing state machine
type Editor struct {
	config  Config
	history *history.Manager
	surface Surface
	logger  logrus.FieldLogger

	boxes    []types.BoundingBox
	selected int
	class    int
	geom     Geometry

	drawing bool
	start   types.Point
	current types.Point

	frames   uint64
	onRedraw func(frame uint64)
}

// New creates an editor with default configuration
func New() *Editor {
	return NewWithConfig(Config{
		ClickThreshold:  DefaultClickThreshold,
		HistoryCapacity: history.DefaultCapacity,
	})
}

// NewWithConfig creates an editor with custom configuration
func NewWithConfig(config Config) *Editor {
	if config.ClickThreshold <= 0 {
		config.ClickThreshold = DefaultClickThreshold
	}
	if config.Labeler == nil {
		config.Labeler = strconv.Itoa
	}
	return &Editor{
		config:   config,
		history:  history.NewWithCapacity(config.HistoryCapacity),
		surface:  nopSurface{},
		logger:   logrus.StandardLogger(),
		selected: NoSelection,
	}
}

// SetSurface sets the drawing target for redraw passes
func (e *Editor) SetSurface(s Surface) {
	if s == nil {
		s = nopSurface{}
	}
	e.surface = s
}

// SetLogger sets the logger used for gesture diagnostics
func (e *Editor) SetLogger(l logrus.FieldLogger) {
	if l != nil {
		e.logger = l
	}
}

// OnRedraw registers a hook called after every redraw pass
func (e *Editor) OnRedraw(fn func(frame uint64)) {
	e.onRedraw = fn
}

// Dispatch applies one event and reports whether the annotation set or the
// selection changed. Every event that touches state ends in a redraw.
func (e *Editor) Dispatch(ev Event) bool {
	switch ev := ev.(type) {
	case PointerDown:
		if ev.Button != ButtonPrimary {
			return false
		}
		e.drawing = true
		e.start = ev.Pos
		e.current = ev.Pos
		return false
	case PointerMove:
		if !e.drawing {
			return false
		}
		e.current = ev.Pos
		e.Redraw()
		return false
	case PointerUp:
		if !e.drawing || ev.Button != ButtonPrimary {
			return false
		}
		e.drawing = false
		e.current = ev.Pos
		changed := e.finishGesture(types.RectFromPoints(e.start, ev.Pos), ev.Pos)
		e.Redraw()
		return changed
	case DeleteSelected:
		return e.deleteSelected()
	case Undo:
		return e.restore(e.history.Undo)
	case Redo:
		return e.restore(e.history.Redo)
	case SetClass:
		if ev.Class < 0 {
			return false
		}
		e.class = ev.Class
		return false
	}
	return false
}

// finishGesture turns a completed drag into a click at the release point or
// a new box covering rect
func (e *Editor) finishGesture(rect types.Rect, release types.Point) bool {
	if rect.W < e.config.ClickThreshold && rect.H < e.config.ClickThreshold {
		hit := e.HitTest(release)
		changed := hit != e.selected
		e.selected = hit
		e.logger.WithFields(logrus.Fields{
			"x":        release.X,
			"y":        release.Y,
			"selected": hit,
		}).Debug("click")
		return changed
	}

	box, ok := transform.ToNormalizedBox(rect, e.geom.View, e.geom.Natural, e.geom.Display)
	if !ok {
		e.logger.Debug("drag ignored: image size unknown")
		return false
	}
	box.Class = e.class

	e.history.Record(e.boxes)
	e.boxes = append(e.boxes, box)
	e.selected = NoSelection
	e.logger.WithFields(logrus.Fields{
		"box":   box,
		"count": len(e.boxes),
	}).Debug("box created")
	return true
}

func (e *Editor) deleteSelected() bool {
	if e.selected < 0 || e.selected >= len(e.boxes) {
		return false
	}
	e.history.Record(e.boxes)
	e.boxes = slices.Delete(slices.Clone(e.boxes), e.selected, e.selected+1)
	e.logger.WithField("index", e.selected).Debug("box deleted")
	e.selected = NoSelection
	e.Redraw()
	return true
}

func (e *Editor) restore(step func([]types.BoundingBox) ([]types.BoundingBox, bool)) bool {
	boxes, ok := step(e.boxes)
	if !ok {
		return false
	}
	e.boxes = boxes
	e.selected = NoSelection
	e.Redraw()
	return true
}

// Append adds boxes as a single undoable change. Boxes are clipped to the
// image and dropped when nothing is left of them.
func (e *Editor) Append(boxes ...types.BoundingBox) int {
	valid := make([]types.BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		b, ok := clipToImage(b)
		if !ok {
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		return 0
	}
	e.history.Record(e.boxes)
	e.boxes = append(slices.Clone(e.boxes), valid...)
	e.selected = NoSelection
	e.Redraw()
	return len(valid)
}

// Load replaces the annotation set for a newly shown image. Selection,
// history and any gesture in progress are reset.
func (e *Editor) Load(boxes []types.BoundingBox) {
	e.boxes = slices.Clone(boxes)
	e.selected = NoSelection
	e.drawing = false
	e.history.Clear()
	e.Redraw()
}

// SetGeometry updates the image and view geometry and redraws
func (e *Editor) SetGeometry(g Geometry) {
	resized := g.Display != e.geom.Display
	e.geom = g
	if resized {
		e.surface.Resize(g.Display)
	}
	e.Redraw()
}

// HitTest returns the index of the first box whose display rectangle
// contains p, or NoSelection. Boxes are tested in list order.
func (e *Editor) HitTest(p types.Point) int {
	for i, b := range e.boxes {
		rect, ok := transform.ToDisplayRect(b, e.geom.View, e.geom.Natural, e.geom.Display)
		if !ok {
			continue
		}
		if rect.Contains(p) {
			return i
		}
	}
	return NoSelection
}

// Redraw clears the surface and renders every box, then the drag preview
func (e *Editor) Redraw() {
	e.surface.Clear()
	if e.geom.Natural.Known() {
		for i, b := range e.boxes {
			rect, ok := transform.ToDisplayRect(b, e.geom.View, e.geom.Natural, e.geom.Display)
			if !ok {
				continue
			}
			e.surface.DrawBox(rect, e.config.Labeler(b.Class), i == e.selected)
		}
	}
	if e.drawing {
		e.surface.DrawPreview(types.RectFromPoints(e.start, e.current))
	}
	e.frames++
	if e.onRedraw != nil {
		e.onRedraw(e.frames)
	}
}

// Boxes returns a copy of the annotation set
func (e *Editor) Boxes() []types.BoundingBox {
	return slices.Clone(e.boxes)
}

// Selected returns the selected index or NoSelection
func (e *Editor) Selected() int { return e.selected }

// Class returns the class attached to new boxes
func (e *Editor) Class() int { return e.class }

// Drawing reports whether a drag is in progress
func (e *Editor) Drawing() bool { return e.drawing }

// Frames returns the number of redraw passes so far
func (e *Editor) Frames() uint64 { return e.frames }

// Geometry returns the current geometry
func (e *Editor) Geometry() Geometry { return e.geom }

// History exposes undo/redo depths
func (e *Editor) History() (undo, redo int) {
	return e.history.UndoDepth(), e.history.RedoDepth()
}

// clipToImage clamps a normalized box to the unit square. It reports false
// when nothing of the box is left.
func clipToImage(b types.BoundingBox) (types.BoundingBox, bool) {
	x0 := clamp(b.X-b.W/2, 0, 1)
	y0 := clamp(b.Y-b.H/2, 0, 1)
	x1 := clamp(b.X+b.W/2, 0, 1)
	y1 := clamp(b.Y+b.H/2, 0, 1)
	out := types.BoundingBox{
		X:     (x0 + x1) / 2,
		Y:     (y0 + y1) / 2,
		W:     x1 - x0,
		H:     y1 - y0,
		Class: b.Class,
	}.Rounded()
	if out.Validate() != nil {
		return types.BoundingBox{}, false
	}
	return out, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
