package editor

import "github.com/menta2k/image-annotator/pkg/types"

// Button identifies a pointer button
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonMiddle    Button = 1
	ButtonSecondary Button = 2
)

// Event is a gesture or command handled by Editor.Dispatch
type Event interface {
	editorEvent()
}

// PointerDown starts a gesture. Pos is in drawing surface coordinates, after
// the view transform has been undone.
type PointerDown struct {
	Pos    types.Point
	Button Button
}

// PointerMove updates the drag preview
type PointerMove struct {
	Pos types.Point
}

// PointerUp ends a gesture
type PointerUp struct {
	Pos    types.Point
	Button Button
}

// DeleteSelected removes the selected box
type DeleteSelected struct{}

// Undo restores the previous annotation set
type Undo struct{}

// Redo re-applies an undone change
type Redo struct{}

// SetClass changes the class attached to newly drawn boxes
type SetClass struct {
	Class int
}

func (PointerDown) editorEvent() {}
func (PointerMove) editorEvent() {}
func (PointerUp) editorEvent() {}
func (DeleteSelected) editorEvent() {}
func (Undo) editorEvent() {}
func (Redo) editorEvent() {}
func (SetClass) editorEvent() {}
