package editor

import "github.com/menta2k/image-annotator/pkg/types"

// Surface is the drawing target of a redraw pass. The editor always clears it
// and re-renders every box; implementations keep no per-box state.
type Surface interface {
	Resize(size types.Size)
	Clear()
	DrawBox(rect types.Rect, label string, selected bool)
	DrawPreview(rect types.Rect)
}

type nopSurface struct{}

func (nopSurface) Resize(types.Size) {}
func (nopSurface) Clear() {}
func (nopSurface) DrawBox(types.Rect, string, bool) {}
func (nopSurface) DrawPreview(types.Rect) {}
