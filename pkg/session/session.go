// Package session owns the state of one annotation session: the image list
// and position, the annotation editor and the view controller. Every mutation
// goes through the Session mutex; collaborator I/O runs with it released and
// load results are matched against a generation ticket before being applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"path"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/detection"
	"github.com/menta2k/image-annotator/pkg/editor"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/render"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/view"
)

var (
	// ErrNoImages is returned by image operations before any image is loaded
	ErrNoImages = errors.New("no images loaded")
	// ErrNoSelection is returned by Delete when no box is selected
	ErrNoSelection = errors.New("no box selected")
	// ErrNoProjects is returned when no project store is configured
	ErrNoProjects = errors.New("projects not configured")
	// ErrAssistDisabled is returned by Assist when no detector is configured
	ErrAssistDisabled = errors.New("assist not configured")
	// ErrStale is returned when a load finished after a newer navigation
	ErrStale = errors.New("superseded by a newer load")
)

// Opener creates the collaborator for a pair of directories
type Opener func(sourceDir, destDir string) (client.Collaborator, error)

// AssistConfig controls how the current image is sent to the vision model
type AssistConfig struct {
	Detector    *detection.Detector
	Processor   *processing.Processor
	SendFormat  string
	SendSize    int
	SendQuality int
}

// Config holds session settings and dependencies
type Config struct {
	Editor       editor.Config
	View         view.Config
	Style        render.Style
	Autosave     bool
	DefaultClass int
	ClassNames   []string
	Viewport     types.Size

	Opener   Opener
	Projects client.ProjectStore
	Assist   *AssistConfig
	Surface  editor.Surface
	Logger   logrus.FieldLogger
}

// ticket identifies one load; its result is applied only while it is current
type ticket struct {
	generation uint64
	ref        string
	collab     client.Collaborator
}

// Session is the single owner of annotation state
type Session struct {
	mu     sync.Mutex
	config Config
	logger logrus.FieldLogger

	editor *editor.Editor
	view   *view.Controller

	collab     client.Collaborator
	sourceDir  string
	destDir    string
	images     []string
	index      int
	generation uint64
	pixels     image.Image
	status     string
}

// New creates an empty session; call SetDirs or LoadProject to load images
func New(config Config) *Session {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	edCfg := config.Editor
	if edCfg.Labeler == nil {
		names := config.ClassNames
		edCfg.Labeler = func(class int) string {
			if class >= 0 && class < len(names) {
				return names[class]
			}
			return strconv.Itoa(class)
		}
	}
	config.Editor = edCfg

	ed := editor.NewWithConfig(edCfg)
	ed.SetLogger(logger)
	ed.SetSurface(config.Surface)
	ed.Dispatch(editor.SetClass{Class: config.DefaultClass})

	vc := view.NewWithConfig(config.View)
	vc.Dispatch(view.Resize{Viewport: config.Viewport})

	return &Session{
		config: config,
		logger: logger,
		editor: ed,
		view:   vc,
		status: "set source and destination directories",
	}
}

// OnRedraw registers a hook called after every redraw pass with the frame
// number. It runs with the session locked and must not call back into it.
func (s *Session) OnRedraw(fn func(frame uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.OnRedraw(fn)
}

// SetDirs opens a source/destination pair, scans it and loads the first image
func (s *Session) SetDirs(ctx context.Context, sourceDir, destDir string) (int, error) {
	if s.config.Opener == nil {
		return 0, fmt.Errorf("no opener configured")
	}
	collab, err := s.config.Opener(sourceDir, destDir)
	if err != nil {
		s.setStatus("error: " + err.Error())
		return 0, err
	}
	images, err := collab.ListImages(ctx)
	if err != nil {
		s.setStatus("error: " + err.Error())
		return 0, err
	}

	s.mu.Lock()
	s.collab = collab
	s.sourceDir, s.destDir = sourceDir, destDir
	s.images = images
	s.index = 0
	s.status = fmt.Sprintf("found %d images", len(images))
	s.logger.WithFields(logrus.Fields{
		"source": sourceDir,
		"dest":   destDir,
		"count":  len(images),
	}).Info("directories set")
	if len(images) == 0 {
		s.resetEmpty()
		s.mu.Unlock()
		return 0, nil
	}
	t := s.beginLoad()
	s.mu.Unlock()

	return len(images), s.finishLoad(ctx, t)
}

// Next moves to the following image, autosaving the current one
func (s *Session) Next(ctx context.Context) error { return s.navigate(ctx, 1) }

// Prev moves to the preceding image, autosaving the current one
func (s *Session) Prev(ctx context.Context) error { return s.navigate(ctx, -1) }

func (s *Session) navigate(ctx context.Context, delta int) error {
	s.mu.Lock()
	if len(s.images) == 0 {
		s.mu.Unlock()
		return ErrNoImages
	}
	target := s.index + delta
	if target < 0 || target >= len(s.images) {
		s.mu.Unlock()
		return nil
	}

	collab := s.collab
	ref := s.images[s.index]
	boxes := s.editor.Boxes()
	autosave := s.config.Autosave && s.pixels != nil

	s.index = target
	t := s.beginLoad()
	s.mu.Unlock()

	if autosave {
		if err := collab.SaveAnnotations(ctx, ref, boxes); err != nil {
			s.logger.WithFields(logrus.Fields{
				"image": ref,
				"error": err,
			}).Warn("autosave failed")
		}
	}
	return s.finishLoad(ctx, t)
}

// beginLoad bumps the generation and clears per-image state; s.mu must be held
func (s *Session) beginLoad() ticket {
	s.generation++
	s.pixels = nil
	s.view.Reset(types.Size{})
	s.editor.Load(nil)
	s.editor.SetGeometry(s.geometry())
	return ticket{generation: s.generation, ref: s.images[s.index], collab: s.collab}
}

// finishLoad fetches pixels and annotations for t and applies them if t is
// still current
func (s *Session) finishLoad(ctx context.Context, t ticket) error {
	img, err := t.collab.ImagePixels(ctx, t.ref)
	var boxes []types.BoundingBox
	if err == nil {
		boxes, err = t.collab.LoadAnnotations(ctx, t.ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.generation != s.generation {
		s.logger.WithFields(logrus.Fields{
			"image":      t.ref,
			"generation": t.generation,
			"current":    s.generation,
		}).Debug("discarding stale load")
		return ErrStale
	}
	if err != nil {
		s.status = "error: " + err.Error()
		s.logger.WithFields(logrus.Fields{"image": t.ref, "error": err}).Error("load failed")
		return err
	}

	s.pixels = img
	s.view.Reset(boundsSize(img))
	s.editor.Load(s.validBoxes(t.ref, boxes))
	s.editor.SetGeometry(s.geometry())
	s.status = "loaded " + t.ref
	s.logger.WithFields(logrus.Fields{
		"image": t.ref,
		"boxes": len(boxes),
		"index": s.index,
	}).Debug("image loaded")
	return nil
}

// validBoxes drops records that cannot be drawn or saved
func (s *Session) validBoxes(ref string, boxes []types.BoundingBox) []types.BoundingBox {
	out := make([]types.BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		if err := b.Validate(); err != nil {
			s.logger.WithFields(logrus.Fields{"image": ref, "error": err}).Warn("dropping invalid annotation")
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *Session) resetEmpty() {
	s.generation++
	s.pixels = nil
	s.view.Reset(types.Size{})
	s.editor.Load(nil)
	s.editor.SetGeometry(s.geometry())
	s.status = "no images"
}

// Save writes the current annotation set. It fails with ErrNoImages while
// an image is still loading.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.pixels == nil {
		s.mu.Unlock()
		return ErrNoImages
	}
	collab := s.collab
	ref := s.images[s.index]
	boxes := s.editor.Boxes()
	s.mu.Unlock()

	err := collab.SaveAnnotations(ctx, ref, boxes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = "error: " + err.Error()
		s.logger.WithFields(logrus.Fields{"image": ref, "error": err}).Error("save failed")
		return err
	}
	s.status = "saved"
	return nil
}

// Rotate turns the current image file a quarter-turn and reloads its pixels.
// The annotation set is kept as is; the view is reset.
func (s *Session) Rotate(ctx context.Context, dir types.Direction) error {
	s.mu.Lock()
	if len(s.images) == 0 {
		s.mu.Unlock()
		return ErrNoImages
	}
	if s.pixels == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is still loading", ErrNoImages, s.images[s.index])
	}
	t := ticket{generation: s.generation, ref: s.images[s.index], collab: s.collab}
	s.mu.Unlock()

	err := t.collab.RotateImageFile(ctx, t.ref, dir)
	var img image.Image
	if err == nil {
		img, err = t.collab.ImagePixels(ctx, t.ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.generation != s.generation {
		s.logger.WithField("image", t.ref).Debug("discarding superseded rotate")
		return ErrStale
	}
	if err != nil {
		s.status = "error: " + err.Error()
		s.logger.WithFields(logrus.Fields{"image": t.ref, "error": err}).Error("rotate failed")
		return err
	}
	s.pixels = img
	s.view.Reset(boundsSize(img))
	s.editor.SetGeometry(s.geometry())
	s.status = "rotated " + string(dir)
	return nil
}

// SaveProject stores the image list and position under name
func (s *Session) SaveProject(ctx context.Context, name string) error {
	if s.config.Projects == nil {
		return ErrNoProjects
	}
	s.mu.Lock()
	project := types.Project{
		SourceDir: s.sourceDir,
		DestDir:   s.destDir,
		Images:    append([]string(nil), s.images...),
		Index:     s.index,
	}
	s.mu.Unlock()

	if err := s.config.Projects.SaveProject(ctx, name, project); err != nil {
		s.setStatus("error: " + err.Error())
		return err
	}
	s.setStatus("project saved")
	return nil
}

// LoadProject restores a saved project and loads its current image
func (s *Session) LoadProject(ctx context.Context, name string) error {
	if s.config.Projects == nil {
		return ErrNoProjects
	}
	if s.config.Opener == nil {
		return fmt.Errorf("no opener configured")
	}
	project, err := s.config.Projects.LoadProject(ctx, name)
	if err != nil {
		s.setStatus("error: " + err.Error())
		return err
	}
	collab, err := s.config.Opener(project.SourceDir, project.DestDir)
	if err != nil {
		s.setStatus("error: " + err.Error())
		return err
	}
	images := project.Images
	if images == nil {
		if images, err = collab.ListImages(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.collab = collab
	s.sourceDir, s.destDir = project.SourceDir, project.DestDir
	s.images = images
	s.index = min(max(project.Index, 0), max(len(images)-1, 0))
	if len(images) == 0 {
		s.resetEmpty()
		s.mu.Unlock()
		return nil
	}
	t := s.beginLoad()
	s.mu.Unlock()

	if err := s.finishLoad(ctx, t); err != nil {
		return err
	}
	s.setStatus("project loaded")
	return nil
}

// ListProjects returns the names of saved projects
func (s *Session) ListProjects(ctx context.Context) ([]string, error) {
	if s.config.Projects == nil {
		return nil, ErrNoProjects
	}
	return s.config.Projects.ListProjects(ctx)
}

// Assist asks the vision model for boxes on the current image and appends
// the accepted ones as one undoable change. It returns the number added.
func (s *Session) Assist(ctx context.Context) (int, error) {
	a := s.config.Assist
	if a == nil || a.Detector == nil || a.Processor == nil {
		return 0, ErrAssistDisabled
	}

	s.mu.Lock()
	if s.pixels == nil {
		s.mu.Unlock()
		return 0, ErrNoImages
	}
	img := s.pixels
	gen := s.generation
	class := s.editor.Class()
	s.status = "asking model..."
	s.mu.Unlock()

	b64, err := a.Processor.PrepareImageForModel(img, a.SendFormat, a.SendSize, a.SendQuality)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare image: %w", err)
	}
	w, h := sentSize(img.Bounds(), a.SendSize)
	boxes, result, err := a.Detector.Suggest(ctx, b64, w, h, class)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = "error: " + err.Error()
		s.logger.WithError(err).Error("assist failed")
		return 0, err
	}
	if gen != s.generation {
		return 0, ErrStale
	}
	added := s.editor.Append(boxes...)
	s.status = fmt.Sprintf("assist: %d boxes", added)
	s.logger.WithFields(logrus.Fields{
		"detections":  len(result.Objects),
		"added":       added,
		"description": result.Description,
	}).Info("assist finished")
	return added, nil
}

// Delete removes the selected box
func (s *Session) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editor.Dispatch(editor.DeleteSelected{}) {
		return ErrNoSelection
	}
	return nil
}

// Undo restores the previous annotation set; a no-op on empty history
func (s *Session) Undo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.Dispatch(editor.Undo{})
}

// Redo re-applies an undone change; a no-op on empty history
func (s *Session) Redo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.Dispatch(editor.Redo{})
}

// SetClass selects the class id for new boxes
func (s *Session) SetClass(class int) error {
	if class < 0 {
		return fmt.Errorf("%w: class must not be negative: %d", ErrInvalidCommand, class)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor.Dispatch(editor.SetClass{Class: class})
	return nil
}

// Pixels returns the decoded current image and its ref
func (s *Session) Pixels() (image.Image, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pixels == nil {
		return nil, "", ErrNoImages
	}
	return s.pixels, s.images[s.index], nil
}

// Collaborator returns the collaborator of the open directories, or nil
func (s *Session) Collaborator() client.Collaborator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collab
}

// Preview renders the current image with its boxes burned in
func (s *Session) Preview() (image.Image, error) {
	s.mu.Lock()
	if s.pixels == nil {
		s.mu.Unlock()
		return nil, ErrNoImages
	}
	img := s.pixels
	boxes := s.editor.Boxes()
	selected := s.editor.Selected()
	s.mu.Unlock()

	return render.Annotate(img, boxes, selected, s.config.Editor.Labeler, s.config.Style)
}

// geometry derives the editor geometry from the view; s.mu must be held
func (s *Session) geometry() editor.Geometry {
	return editor.Geometry{
		Natural: s.view.Natural(),
		Display: s.view.CanvasSize(),
		View:    s.view.State(),
	}
}

func (s *Session) setStatus(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = msg
}

func boundsSize(img image.Image) types.Size {
	b := img.Bounds()
	return types.Size{W: float64(b.Dx()), H: float64(b.Dy())}
}

// sentSize mirrors the downscale done by PrepareImageForModel
func sentSize(b image.Rectangle, maxDim int) (int, int) {
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, int(math.Round(float64(h)*float64(maxDim)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(maxDim)/float64(h)))), maxDim
}

// baseName returns the file name part of a slash-separated ref
func baseName(ref string) string {
	return path.Base(ref)
}
