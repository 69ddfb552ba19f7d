package detection

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for every distinct object with a center-based box
const DefaultPrompt = `You are an object locator for a labelling tool.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels).
- x and y are the CENTER of the box, w and h its width and height.
- One entry per distinct object; boxes should be tight.
- Labels: lowercase singular nouns.
%s- If nothing is found, return {"objects": [], "description": "no objects"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config controls how model detections become annotation boxes
type Config struct {
	Model         string
	MinConfidence float64
	// ClassNames maps labels to class ids by position; unmatched labels
	// get the caller's fallback class
	ClassNames []string
}

// Detector turns vision model answers into annotation suggestions
type Detector struct {
	client client.VisionClient
	config Config
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient, config Config) *Detector {
	return &Detector{client: client, config: config}
}

// Prompt returns the detection prompt, listing the known classes if any
func (d *Detector) Prompt() string {
	hint := ""
	if len(d.config.ClassNames) > 0 {
		hint = fmt.Sprintf("- Prefer these labels when they fit: %s.\n", strings.Join(d.config.ClassNames, ", "))
	}
	return fmt.Sprintf(DefaultPrompt, hint)
}

// Detect asks the model for objects in the image. imgW and imgH are the
// dimensions of the image that was sent, used when the model answers in pixels.
func (d *Detector) Detect(ctx context.Context, imageB64 string, imgW, imgH int) (*types.DetectionResult, error) {
	result, err := d.client.DetectObjects(ctx, d.config.Model, d.Prompt(), imageB64)
	if err != nil {
		return nil, err
	}

	kept := result.Objects[:0]
	for _, obj := range result.Objects {
		obj.Label = strings.ToLower(strings.TrimSpace(obj.Label))
		obj.Box = normalizeBox(obj.Box, imgW, imgH)
		if obj.Box.W <= 0 || obj.Box.H <= 0 {
			continue
		}
		kept = append(kept, obj)
	}
	result.Objects = kept
	return result, nil
}

// Suggest detects objects and converts the confident ones into boxes
func (d *Detector) Suggest(ctx context.Context, imageB64 string, imgW, imgH, fallbackClass int) ([]types.BoundingBox, *types.DetectionResult, error) {
	result, err := d.Detect(ctx, imageB64, imgW, imgH)
	if err != nil {
		return nil, nil, err
	}

	boxes := make([]types.BoundingBox, 0, len(result.Objects))
	for _, obj := range result.Objects {
		if obj.Confidence < d.config.MinConfidence {
			continue
		}
		box := obj.Box
		box.Class = d.ClassFor(obj.Label, fallbackClass)
		boxes = append(boxes, box.Rounded())
	}
	return boxes, result, nil
}

// ClassFor maps a label to a class id
func (d *Detector) ClassFor(label string, fallback int) int {
	label = strings.ToLower(strings.TrimSpace(label))
	for i, name := range d.config.ClassNames {
		if strings.ToLower(name) == label {
			return i
		}
	}
	return fallback
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imageB64)
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox converts pixel answers to fractions and clips the box to the image
func normalizeBox(b types.BoundingBox, imgW, imgH int) types.BoundingBox {
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) {
		b.X /= float64(imgW)
		b.W /= float64(imgW)
		b.Y /= float64(imgH)
		b.H /= float64(imgH)
	}
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.BoundingBox{}
		}
	}

	x0 := clamp(b.X-b.W/2, 0, 1)
	y0 := clamp(b.Y-b.H/2, 0, 1)
	x1 := clamp(b.X+b.W/2, 0, 1)
	y1 := clamp(b.Y+b.H/2, 0, 1)
	return types.BoundingBox{
		X:     (x0 + x1) / 2,
		Y:     (y0 + y1) / 2,
		W:     x1 - x0,
		H:     y1 - y0,
		Class: b.Class,
	}
}
