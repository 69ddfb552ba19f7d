package store

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/types"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func newTestStore(t *testing.T) (*FileStore, string, string) {
	t.Helper()
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "labels")
	writeImage(t, filepath.Join(src, "b.png"), 8, 4)
	writeImage(t, filepath.Join(src, "a.jpg"), 8, 4)
	writeImage(t, filepath.Join(src, "nested", "c.png"), 8, 4)

	logger, _ := test.NewNullLogger()
	s, err := New(src, dst, processing.NewProcessor(90, false), logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, src, dst
}

func TestNewValidatesDirs(t *testing.T) {
	proc := processing.NewProcessor(90, false)
	if _, err := New(filepath.Join(t.TempDir(), "missing"), t.TempDir(), proc, nil); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, got %v", err)
	}
	if _, err := New("", "", proc, nil); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for empty dirs, got %v", err)
	}

	_, _, dst := newTestStore(t)
	if info, err := os.Stat(dst); err != nil || !info.IsDir() {
		t.Errorf("Expected dest dir to be created, got %v", err)
	}
}

func TestListImages(t *testing.T) {
	s, _, _ := newTestStore(t)
	images, err := s.ListImages(context.Background())
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	want := []string{"a.jpg", "b.png", "nested/c.png"}
	if !slices.Equal(images, want) {
		t.Errorf("Expected %v, got %v", want, images)
	}
}

func TestImagePathRejectsTraversal(t *testing.T) {
	s, _, _ := newTestStore(t)
	for _, ref := range []string{"../secret.png", "nested/../../x.png", "/etc/passwd", ""} {
		if _, err := s.ImagePath(ref); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("ImagePath(%q): expected ErrInvalidPath, got %v", ref, err)
		}
	}
	if _, err := s.ImagePath("missing.png"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestAnnotationsRoundTrip(t *testing.T) {
	s, _, dst := newTestStore(t)
	ctx := context.Background()

	boxes, err := s.LoadAnnotations(ctx, "nested/c.png")
	if err != nil {
		t.Fatalf("LoadAnnotations failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("Expected no boxes before save, got %v", boxes)
	}

	in := []types.BoundingBox{
		{X: 0.5, Y: 0.5, W: 0.25, H: 0.2, Class: 1},
		{X: 0.1234, Y: 0.9, W: 0.05, H: 0.1, Class: 0},
	}
	if err := s.SaveAnnotations(ctx, "nested/c.png", in); err != nil {
		t.Fatalf("SaveAnnotations failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "c.txt"))
	if err != nil {
		t.Fatalf("Expected label file keyed by base name: %v", err)
	}
	if !strings.HasPrefix(string(data), "1 0.5 0.5 0.25 0.2\n") {
		t.Errorf("Unexpected label file contents %q", data)
	}

	out, err := s.LoadAnnotations(ctx, "nested/c.png")
	if err != nil {
		t.Fatalf("LoadAnnotations failed: %v", err)
	}
	if !slices.Equal(in, out) {
		t.Errorf("Expected %v, got %v", in, out)
	}
}

func TestSaveAnnotationsRejectsTraversal(t *testing.T) {
	s, _, _ := newTestStore(t)
	err := s.SaveAnnotations(context.Background(), "../a.jpg", nil)
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath, got %v", err)
	}
}

func TestRotateImageFile(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.RotateImageFile(ctx, "b.png", types.Left); err != nil {
		t.Fatalf("RotateImageFile failed: %v", err)
	}
	img, err := s.ImagePixels(ctx, "b.png")
	if err != nil {
		t.Fatalf("ImagePixels failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 8 {
		t.Errorf("Expected 4x8 after rotation, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestParseYOLOSkipsBadLines(t *testing.T) {
	logger, hook := test.NewNullLogger()
	input := "0 0.5 0.5 0.1 0.1\n\nbad line\n2 0.1 0.2 x 0.4\n3 0.1 0.2 0.3 0.4 extra\n"

	boxes, err := ParseYOLO(strings.NewReader(input), logger)
	if err != nil {
		t.Fatalf("ParseYOLO failed: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("Expected 2 boxes, got %d", len(boxes))
	}
	if boxes[1].Class != 3 || boxes[1].H != 0.4 {
		t.Errorf("Unexpected second box %+v", boxes[1])
	}
	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("Expected 2 warnings, got %d", warnings)
	}
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	p, err := NewProjects(filepath.Join(t.TempDir(), "projects"))
	if err != nil {
		t.Fatalf("NewProjects failed: %v", err)
	}

	project := types.Project{SourceDir: "/src", DestDir: "/dst", Images: []string{"a.jpg", "b.jpg"}, Index: 1}
	if err := p.SaveProject(ctx, "zebra", project); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}
	if err := p.SaveProject(ctx, "alpha", types.Project{}); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}

	names, err := p.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if !slices.Equal(names, []string{"alpha", "zebra"}) {
		t.Errorf("Expected [alpha zebra], got %v", names)
	}

	got, err := p.LoadProject(ctx, "zebra")
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	if got.SourceDir != "/src" || got.Index != 1 || !slices.Equal(got.Images, project.Images) {
		t.Errorf("Expected %+v, got %+v", project, got)
	}

	if _, err := p.LoadProject(ctx, "missing"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Expected ErrProjectNotFound, got %v", err)
	}
	if err := p.SaveProject(ctx, "../escape", project); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath, got %v", err)
	}
}
