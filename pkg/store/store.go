// Package store is the filesystem collaborator: images are read from a
// source directory, YOLO label files live in a destination directory and
// projects are JSON files in a projects directory.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/types"
)

var (
	// ErrInvalidPath is returned for refs that escape the source directory
	ErrInvalidPath = errors.New("invalid path")
	// ErrProjectNotFound is returned when a named project does not exist
	ErrProjectNotFound = errors.New("project not found")
	// ErrSourceNotFound is returned when the source directory is missing
	ErrSourceNotFound = errors.New("source_dir not found")
)

// FileStore implements client.Collaborator on local directories
type FileStore struct {
	sourceDir string
	destDir   string
	processor *processing.Processor
	logger    logrus.FieldLogger
}

// New validates sourceDir and creates destDir if needed
func New(sourceDir, destDir string, processor *processing.Processor, logger logrus.FieldLogger) (*FileStore, error) {
	if sourceDir == "" || destDir == "" {
		return nil, fmt.Errorf("source_dir and dest_dir required: %w", ErrInvalidPath)
	}
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source_dir: %w", err)
	}
	dst, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dest_dir: %w", err)
	}
	if !utils.DirExists(src) {
		return nil, ErrSourceNotFound
	}
	if err := utils.EnsureDir(dst); err != nil {
		return nil, fmt.Errorf("failed to create dest_dir: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileStore{sourceDir: src, destDir: dst, processor: processor, logger: logger}, nil
}

// SourceDir returns the absolute source directory
func (s *FileStore) SourceDir() string { return s.sourceDir }

// DestDir returns the absolute destination directory
func (s *FileStore) DestDir() string { return s.destDir }

// ListImages scans the source directory recursively
func (s *FileStore) ListImages(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	images, err := utils.ListImageFiles(s.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.sourceDir, err)
	}
	return images, nil
}

// ImagePath resolves ref to an existing file inside the source directory
func (s *FileStore) ImagePath(ref string) (string, error) {
	if ref == "" || filepath.IsAbs(ref) {
		return "", ErrInvalidPath
	}
	path := filepath.Join(s.sourceDir, filepath.FromSlash(ref))
	if !utils.WithinDir(s.sourceDir, path) {
		return "", ErrInvalidPath
	}
	if !utils.FileExists(path) {
		return "", fmt.Errorf("image %s: %w", ref, fs.ErrNotExist)
	}
	return path, nil
}

// ImagePixels decodes the image behind ref
func (s *FileStore) ImagePixels(ctx context.Context, ref string) (image.Image, error) {
	path, err := s.ImagePath(ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.processor.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ref, err)
	}
	return img, nil
}

// LoadAnnotations reads the label file of ref; a missing file means no boxes
func (s *FileStore) LoadAnnotations(ctx context.Context, ref string) ([]types.BoundingBox, error) {
	if _, err := s.ImagePath(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(utils.AnnotationFilename(s.destDir, ref, "txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return []types.BoundingBox{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation: %w", err)
	}
	return ParseYOLO(bytes.NewReader(data), s.logger.WithField("image", ref))
}

// SaveAnnotations replaces the label file of ref
func (s *FileStore) SaveAnnotations(ctx context.Context, ref string, boxes []types.BoundingBox) error {
	if _, err := s.ImagePath(ref); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.EnsureDir(s.destDir); err != nil {
		return fmt.Errorf("failed to create dest_dir: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteYOLO(&buf, boxes); err != nil {
		return fmt.Errorf("failed to encode annotation: %w", err)
	}
	return writeFileAtomic(utils.AnnotationFilename(s.destDir, ref, "txt"), buf.Bytes())
}

// RotateImageFile rotates the image behind ref a quarter-turn in place
func (s *FileStore) RotateImageFile(ctx context.Context, ref string, dir types.Direction) error {
	path, err := s.ImagePath(ref)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.processor.RotateFile(path, dir); err != nil {
		return fmt.Errorf("failed to rotate %s: %w", ref, err)
	}
	return nil
}

// Projects stores projects as indented JSON named <name>.json
type Projects struct {
	dir string
}

// NewProjects creates the projects directory if needed
func NewProjects(dir string) (*Projects, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create projects dir: %w", err)
	}
	return &Projects{dir: dir}, nil
}

func (p *Projects) path(name string) (string, error) {
	if name == "" || utils.SanitizeFilename(name) != name {
		return "", fmt.Errorf("project name %q: %w", name, ErrInvalidPath)
	}
	return filepath.Join(p.dir, name+".json"), nil
}

// SaveProject writes a project under name
func (p *Projects) SaveProject(ctx context.Context, name string, project types.Project) error {
	path, err := p.path(name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return writeFileAtomic(path, data)
}

// LoadProject reads the project saved under name
func (p *Projects) LoadProject(ctx context.Context, name string) (types.Project, error) {
	path, err := p.path(name)
	if err != nil {
		return types.Project{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Project{}, fmt.Errorf("%s: %w", name, ErrProjectNotFound)
	}
	if err != nil {
		return types.Project{}, fmt.Errorf("failed to read project: %w", err)
	}
	var project types.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return types.Project{}, fmt.Errorf("failed to parse project: %w", err)
	}
	return project, nil
}

// ListProjects returns the stems of all saved projects, sorted
func (p *Projects) ListProjects(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	slices.Sort(names)
	return names, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}
