package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/pkg/editor"
	"github.com/menta2k/image-annotator/pkg/transform"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/view"
)

// ErrInvalidCommand is returned by Dispatch for an unknown command type or
// bad arguments
var ErrInvalidCommand = errors.New("invalid command")

// Command types accepted by Dispatch
const (
	CmdPointerDown = "pointer_down"
	CmdPointerMove = "pointer_move"
	CmdPointerUp   = "pointer_up"
	CmdWheel       = "wheel"
	CmdPan         = "pan"
	CmdKey         = "key"
	CmdDelete      = "delete"
	CmdUndo        = "undo"
	CmdRedo        = "redo"
	CmdClass       = "class"
	CmdResize      = "resize"
	CmdNext        = "next"
	CmdPrev        = "prev"
	CmdRotate      = "rotate"
	CmdSave        = "save"
	CmdAssist      = "assist"
)

// Command is one input from the host shell. Only the fields relevant to
// Type are read.
type Command struct {
	Type string `json:"type"`

	// pointer position in client coordinates and the canvas on-screen origin
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	Button  int     `json:"button"`

	DeltaY float64 `json:"delta_y"`

	Axis  string  `json:"axis"`
	Value float64 `json:"value"`

	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
	Shift bool   `json:"shift"`

	Class int `json:"class"`

	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	Direction string `json:"direction"`
}

// Dispatch applies one command
func (s *Session) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdPointerDown:
		s.pointerDown(cmd)
	case CmdPointerMove:
		s.pointerMove(cmd)
	case CmdPointerUp:
		s.pointerUp(cmd)
	case CmdWheel:
		s.viewEvent(view.Wheel{DeltaY: cmd.DeltaY})
	case CmdPan:
		axis := view.AxisX
		switch strings.ToLower(cmd.Axis) {
		case "x":
		case "y":
			axis = view.AxisY
		default:
			return fmt.Errorf("%w: unknown pan axis %q", ErrInvalidCommand, cmd.Axis)
		}
		s.viewEvent(view.PanSlider{Axis: axis, Value: cmd.Value})
	case CmdKey:
		return s.Key(ctx, cmd.Key, cmd.Ctrl || cmd.Meta, cmd.Shift)
	case CmdDelete:
		return s.Delete()
	case CmdUndo:
		s.Undo()
	case CmdRedo:
		s.Redo()
	case CmdClass:
		return s.SetClass(cmd.Class)
	case CmdResize:
		s.viewEvent(view.Resize{Viewport: types.Size{W: cmd.Width, H: cmd.Height}})
	case CmdNext:
		return s.Next(ctx)
	case CmdPrev:
		return s.Prev(ctx)
	case CmdRotate:
		dir, err := types.ParseDirection(cmd.Direction)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		return s.Rotate(ctx, dir)
	case CmdSave:
		return s.Save(ctx)
	case CmdAssist:
		_, err := s.Assist(ctx)
		return err
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}
	return nil
}

// Key maps a keyboard shortcut to its action. mod is Ctrl or Cmd. Keys
// without a binding are ignored.
func (s *Session) Key(ctx context.Context, key string, mod, shift bool) error {
	if mod {
		switch strings.ToLower(key) {
		case "z":
			if shift {
				s.Redo()
			} else {
				s.Undo()
			}
		case "y":
			s.Redo()
		}
		return nil
	}

	switch key {
	case "Delete", "Backspace":
		if err := s.Delete(); err != nil && !errors.Is(err, ErrNoSelection) {
			return err
		}
	case "ArrowLeft":
		return s.Prev(ctx)
	case "ArrowRight":
		return s.Next(ctx)
	}
	switch strings.ToLower(key) {
	case "a":
		return s.Prev(ctx)
	case "d":
		return s.Next(ctx)
	}
	return nil
}

func (s *Session) pointerDown(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if editor.Button(cmd.Button) == editor.ButtonSecondary {
		s.viewEventLocked(view.PanStart{Pos: types.Point{X: cmd.X, Y: cmd.Y}})
		return
	}
	s.editor.Dispatch(editor.PointerDown{Pos: s.imagePoint(cmd), Button: editor.Button(cmd.Button)})
}

func (s *Session) pointerMove(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view.Panning() {
		s.viewEventLocked(view.PanMove{Pos: types.Point{X: cmd.X, Y: cmd.Y}})
		return
	}
	s.editor.Dispatch(editor.PointerMove{Pos: s.imagePoint(cmd)})
}

func (s *Session) pointerUp(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if editor.Button(cmd.Button) == editor.ButtonSecondary {
		s.viewEventLocked(view.PanEnd{})
		return
	}
	before := len(s.editor.Boxes())
	s.editor.Dispatch(editor.PointerUp{Pos: s.imagePoint(cmd), Button: editor.Button(cmd.Button)})
	if after := len(s.editor.Boxes()); after != before && len(s.images) > 0 {
		s.logger.WithFields(logrus.Fields{
			"image": s.images[s.index],
			"boxes": after,
		}).Debug("box created")
	}
}

// imagePoint maps a pointer command into canvas pixel space; s.mu must be held
func (s *Session) imagePoint(cmd Command) types.Point {
	return transform.PointerToImageSpace(
		types.Point{X: cmd.X, Y: cmd.Y},
		types.Point{X: cmd.OriginX, Y: cmd.OriginY},
		s.view.CanvasSize(),
		s.view.State(),
	)
}

func (s *Session) viewEvent(ev view.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewEventLocked(ev)
}

// viewEventLocked applies a view event and pushes the new geometry to the
// editor, which redraws
func (s *Session) viewEventLocked(ev view.Event) {
	if s.view.Dispatch(ev) {
		s.editor.SetGeometry(s.geometry())
	}
}
