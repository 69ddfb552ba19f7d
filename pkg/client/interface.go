package client

import (
	"context"
	"image"

	"github.com/menta2k/image-annotator/pkg/types"
)

// Collaborator performs all I/O on behalf of an annotation session.
// ref is an image path relative to the source directory.
type Collaborator interface {
	ListImages(ctx context.Context) ([]string, error)
	ImagePixels(ctx context.Context, ref string) (image.Image, error)
	LoadAnnotations(ctx context.Context, ref string) ([]types.BoundingBox, error)
	SaveAnnotations(ctx context.Context, ref string, boxes []types.BoundingBox) error
	RotateImageFile(ctx context.Context, ref string, dir types.Direction) error
}

// ProjectStore persists named snapshots of a session
type ProjectStore interface {
	SaveProject(ctx context.Context, name string, p types.Project) error
	LoadProject(ctx context.Context, name string) (types.Project, error)
	ListProjects(ctx context.Context) ([]string, error)
}

// VisionClient asks a vision model for object boxes
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectObjects(ctx context.Context, model, prompt, imgB64 string) (*types.DetectionResult, error)
}
