// Package transform maps bounding boxes between normalized image space and
// the pixel space of the drawing surface.
//
// Normalized boxes are always relative to the original, unrotated image. The
// drawing surface shows the image under the current view rotation, so every
// conversion goes through one of four explicit rotation cases. The inverse
// mirrors the forward case exactly, including the width/height swap at 90 and
// 270 degrees, which is what makes a round trip lossless up to rounding.
package transform

import (
	"math"

	"github.com/menta2k/image-annotator/pkg/types"
)

// pixelBox is a box center and size in original image pixels
type pixelBox struct {
	cx, cy, w, h float64
}

// ToDisplayRect converts a normalized box into a top-left rectangle on a
// drawing surface of size display showing an image of size natural under view.
// It returns false when the natural dimensions are not known yet.
func ToDisplayRect(box types.BoundingBox, view types.ViewState, natural, display types.Size) (types.Rect, bool) {
	if !natural.Known() {
		return types.Rect{}, false
	}
	nw, nh := natural.W, natural.H

	pb := pixelBox{cx: box.X * nw, cy: box.Y * nh, w: box.W * nw, h: box.H * nh}
	r := remap(pb, view.Rotation, natural)
	sx, sy := scale(view.Rotation, natural, display)

	return types.Rect{
		X: (r.cx - r.w/2) * sx,
		Y: (r.cy - r.h/2) * sy,
		W: r.w * sx,
		H: r.h * sy,
	}, true
}

// ToNormalizedBox is the inverse of ToDisplayRect. The result is rounded to
// 4 decimal digits and carries no class.
func ToNormalizedBox(rect types.Rect, view types.ViewState, natural, display types.Size) (types.BoundingBox, bool) {
	if !natural.Known() || !display.Known() {
		return types.BoundingBox{}, false
	}
	nw, nh := natural.W, natural.H
	sx, sy := scale(view.Rotation, natural, display)

	cxRot := (rect.X + rect.W/2) / sx
	cyRot := (rect.Y + rect.H/2) / sy
	wRot := rect.W / sx
	hRot := rect.H / sy

	var pb pixelBox
	switch view.Rotation {
	case types.Rotate90:
		pb = pixelBox{cx: nw - cyRot, cy: cxRot, w: hRot, h: wRot}
	case types.Rotate180:
		pb = pixelBox{cx: nw - cxRot, cy: nh - cyRot, w: wRot, h: hRot}
	case types.Rotate270:
		pb = pixelBox{cx: cyRot, cy: nh - cxRot, w: hRot, h: wRot}
	default:
		pb = pixelBox{cx: cxRot, cy: cyRot, w: wRot, h: hRot}
	}

	return types.BoundingBox{
		X: pb.cx / nw,
		Y: pb.cy / nh,
		W: pb.w / nw,
		H: pb.h / nh,
	}.Rounded(), true
}

// PointerToImageSpace maps a raw pointer position to pre-rotation canvas
// coordinates. origin is the on-screen position of the canvas and canvas its
// internal pixel size; the point is unzoomed and then rotated by -rotation
// about the canvas center.
func PointerToImageSpace(client, origin types.Point, canvas types.Size, view types.ViewState) types.Point {
	zoom := view.Zoom
	if zoom == 0 {
		zoom = 1
	}
	x := (client.X - origin.X) / zoom
	y := (client.Y - origin.Y) / zoom

	if view.Rotation != types.Rotate0 {
		cx := canvas.W / 2
		cy := canvas.H / 2
		dx := x - cx
		dy := y - cy
		angle := float64(-view.Rotation) * math.Pi / 180
		cos := math.Cos(angle)
		sin := math.Sin(angle)
		x = cx + dx*cos - dy*sin
		y = cy + dx*sin + dy*cos
	}
	return types.Point{X: x, Y: y}
}

// remap moves an original-pixel box into the rotated frame
func remap(pb pixelBox, rot types.Rotation, natural types.Size) pixelBox {
	nw, nh := natural.W, natural.H
	switch rot {
	case types.Rotate90:
		return pixelBox{cx: pb.cy, cy: nw - pb.cx, w: pb.h, h: pb.w}
	case types.Rotate180:
		return pixelBox{cx: nw - pb.cx, cy: nh - pb.cy, w: pb.w, h: pb.h}
	case types.Rotate270:
		return pixelBox{cx: nh - pb.cy, cy: pb.cx, w: pb.h, h: pb.w}
	default:
		return pb
	}
}

// scale returns the display/natural ratios, with natural swapped for 90 and 270
func scale(rot types.Rotation, natural, display types.Size) (float64, float64) {
	if rot.Swapped() {
		return display.W / natural.H, display.H / natural.W
	}
	return display.W / natural.W, display.H / natural.H
}

// RotatedSize returns the size of the image bounding box under rot
func RotatedSize(natural types.Size, rot types.Rotation) types.Size {
	if rot.Swapped() {
		return types.Size{W: natural.H, H: natural.W}
	}
	return natural
}

// FitContain scales natural down to fit inside bounds, keeping the aspect
// ratio. Images already smaller than bounds keep their natural size, and a
// bounds dimension of zero is unconstrained.
func FitContain(natural, bounds types.Size) types.Size {
	if !natural.Known() {
		return types.Size{}
	}
	s := 1.0
	if bounds.W > 0 {
		s = math.Min(s, bounds.W/natural.W)
	}
	if bounds.H > 0 {
		s = math.Min(s, bounds.H/natural.H)
	}
	return types.Size{W: math.Round(natural.W * s), H: math.Round(natural.H * s)}
}
