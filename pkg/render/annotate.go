package render

import (
	"image"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"

	"github.com/menta2k/image-annotator/pkg/transform"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Annotate draws boxes onto a copy of img at its natural resolution.
// selected may be -1; labeler may be nil to print class ids.
func Annotate(img image.Image, boxes []types.BoundingBox, selected int, labeler func(int) string, style Style) (image.Image, error) {
	if labeler == nil {
		labeler = strconv.Itoa
	}
	face, err := labelFace(style.FontSize)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContextForImage(imaging.Clone(img))
	dc.SetFont(face)

	b := img.Bounds()
	natural := types.Size{W: float64(b.Dx()), H: float64(b.Dy())}
	for i, box := range boxes {
		rect, ok := transform.ToDisplayRect(box, types.DefaultView(), natural, natural)
		if !ok {
			continue
		}
		stroke, fill, width := style.BoxColor, style.BoxFill, style.BoxWidth
		if i == selected {
			stroke, fill, width = style.SelectedColor, style.SelectedFill, style.SelectedWidth
		}
		if err := drawRect(dc, rect, stroke, fill, width); err != nil {
			return nil, err
		}
		setHex(dc, stroke)
		dc.DrawString(labeler(box.Class), rect.X+4, rect.Y+style.FontSize)
	}
	return dc.Image(), nil
}

func cloneImage(img image.Image) image.Image {
	return imaging.Clone(img)
}
