package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-annotator/pkg/types"
)

// Processor handles image decoding, encoding and rotation
type Processor struct {
	quality  int
	lossless bool
}

// NewProcessor creates a new image processor. quality applies to JPEG and
// lossy WebP output.
func NewProcessor(quality int, lossless bool) *Processor {
	if quality < 1 || quality > 100 {
		quality = 95
	}
	return &Processor{quality: quality, lossless: lossless}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return p.DecodeBytes(data)
}

// DecodeBytes decodes image bytes, falling back to the cgo WebP decoder
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Rotate turns img a quarter-turn: left is counter-clockwise, right clockwise
func (p *Processor) Rotate(img image.Image, dir types.Direction) (image.Image, error) {
	switch dir {
	case types.Left:
		return imaging.Rotate90(img), nil
	case types.Right:
		return imaging.Rotate270(img), nil
	}
	return nil, fmt.Errorf("unknown rotate direction %q", dir)
}

// RotateFile rotates the image at path in place, keeping its format
func (p *Processor) RotateFile(path string, dir types.Direction) error {
	img, err := p.LoadImage(path)
	if err != nil {
		return err
	}
	rotated, err := p.Rotate(img, dir)
	if err != nil {
		return err
	}
	return p.SaveImage(rotated, path, FormatFromPath(path))
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Encode writes img to w in the given format (jpg, png, gif, bmp, tiff or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string) error {
	format = strings.ToLower(format)
	if format == "webp" {
		return webp.Encode(w, img, &webp.Options{Lossless: p.lossless, Quality: float32(p.quality)})
	}
	f, err := imaging.FormatFromExtension(format)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return imaging.Encode(w, img, f, imaging.JPEGQuality(p.quality))
}

// SaveImage writes img to path through a temporary file in the same
// directory, so readers never observe a half-written image
func (p *Processor) SaveImage(img image.Image, path, format string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rotate-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if info, err := os.Stat(path); err == nil {
		_ = tmp.Chmod(info.Mode().Perm())
	}
	if err := p.Encode(tmp, img, format); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace image: %w", err)
	}
	return nil
}

// FormatFromPath returns the lower-case extension of path without the dot
func FormatFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "jpg"
	}
	return ext[1:]
}
