package session

import (
	"fmt"

	"github.com/menta2k/image-annotator/pkg/types"
)

// Snapshot is a read-only copy of the session state for the host shell
type Snapshot struct {
	SourceDir string              `json:"source_dir"`
	DestDir   string              `json:"dest_dir"`
	Image     string              `json:"image"`
	Index     int                 `json:"index"`
	Count     int                 `json:"count"`
	Info      string              `json:"info"`
	Loaded    bool                `json:"loaded"`
	Natural   types.Size          `json:"natural"`
	Canvas    types.Size          `json:"canvas"`
	Boxes     []types.BoundingBox `json:"boxes"`
	Selected  int                 `json:"selected"`
	Class     int                 `json:"class"`
	Drawing   bool                `json:"drawing"`
	View      types.ViewState     `json:"view"`
	Transform string              `json:"transform"`
	PanX      float64             `json:"pan_slider_x"`
	PanY      float64             `json:"pan_slider_y"`
	Status    string              `json:"status"`
	Undo      int                 `json:"undo"`
	Redo      int                 `json:"redo"`
	Frame     uint64              `json:"frame"`
}

// State returns a snapshot of the current session state
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SourceDir: s.sourceDir,
		DestDir:   s.destDir,
		Index:     s.index,
		Count:     len(s.images),
		Loaded:    s.pixels != nil,
		Natural:   s.view.Natural(),
		Canvas:    s.view.CanvasSize(),
		Boxes:     s.editor.Boxes(),
		Selected:  s.editor.Selected(),
		Class:     s.editor.Class(),
		Drawing:   s.editor.Drawing(),
		View:      s.view.State(),
		Transform: s.view.Transform(),
		Status:    s.status,
		Frame:     s.editor.Frames(),
	}
	snap.PanX, snap.PanY = s.view.Sliders()
	snap.Undo, snap.Redo = s.editor.History()
	if len(s.images) > 0 {
		snap.Image = s.images[s.index]
		snap.Info = fmt.Sprintf("%d images — %d/%d | %s", len(s.images), s.index+1, len(s.images), baseName(snap.Image))
	}
	return snap
}

// Status returns the last status message
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
