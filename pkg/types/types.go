package types

import (
	"fmt"
	"math"
)

// BoundingBox is a labelled box in normalized coordinates.
//
// X and Y are the box center, W and H its size, all expressed as fractions of
// the natural dimensions of the original, unrotated image. Class is the label id.
type BoundingBox struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Class int     `json:"class"`
}

// Rounded returns the box with every coordinate rounded to 4 decimal digits
func (b BoundingBox) Rounded() BoundingBox {
	return BoundingBox{X: Round4(b.X), Y: Round4(b.Y), W: Round4(b.W), H: Round4(b.H), Class: b.Class}
}

// Validate reports whether the box can be rendered and persisted
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coordinate in %+v", b)
		}
	}
	if b.W <= 0 || b.H <= 0 {
		return fmt.Errorf("non-positive size %gx%g", b.W, b.H)
	}
	if b.Class < 0 {
		return fmt.Errorf("negative class %d", b.Class)
	}
	return nil
}

// Round4 rounds v to 4 decimal digits
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Point is a position in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in pixels
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Known reports whether both dimensions are positive
func (s Size) Known() bool {
	return s.W > 0 && s.H > 0
}

// Rect is an axis-aligned rectangle given by its top-left corner and size
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RectFromPoints returns the rectangle spanned by two corners in any order
func RectFromPoints(a, b Point) Rect {
	return Rect{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(b.X - a.X),
		H: math.Abs(b.Y - a.Y),
	}
}

// Contains reports whether p lies inside r, edges included
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Intersect returns the overlap of r and o; W or H is zero when they do not overlap
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.X+r.W, o.X+o.W)
	y1 := math.Min(r.Y+r.H, o.Y+o.H)
	return Rect{X: x0, Y: y0, W: math.Max(0, x1-x0), H: math.Max(0, y1-y0)}
}

// Rotation is a view rotation in degrees, one of 0, 90, 180, 270
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four supported rotations
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Swapped reports whether the rotation swaps width and height
func (r Rotation) Swapped() bool {
	return r == Rotate90 || r == Rotate270
}

// Add returns r rotated by another quarter-turn multiple, normalized to [0,360)
func (r Rotation) Add(deg int) Rotation {
	v := (int(r) + deg) % 360
	if v < 0 {
		v += 360
	}
	return Rotation(v)
}

// ViewState is the viewer-local rotation, zoom and pan applied for display only
type ViewState struct {
	Rotation Rotation `json:"rotation"`
	Zoom     float64  `json:"zoom"`
	PanX     float64  `json:"pan_x"`
	PanY     float64  `json:"pan_y"`
}

// DefaultView is the state every freshly loaded image starts with
func DefaultView() ViewState {
	return ViewState{Rotation: Rotate0, Zoom: 1}
}

// Direction selects the sense of a physical quarter-turn of an image file
type Direction string

const (
	Left  Direction = "left"  // counter-clockwise
	Right Direction = "right" // clockwise
)

// ParseDirection converts user input into a Direction
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Left, Right:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown rotate direction %q (use left or right)", s)
}

// Detection is a single object box proposed by a vision model
type Detection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// DetectionResult is the parsed answer of a vision model
type DetectionResult struct {
	Objects     []Detection `json:"objects"`
	Description string      `json:"description"`
}

// Project is the persisted state of an annotation session
type Project struct {
	SourceDir string   `json:"source_dir"`
	DestDir   string   `json:"dest_dir"`
	Images    []string `json:"images"`
	Index     int      `json:"index"`
}
