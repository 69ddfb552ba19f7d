// Package imageannotator wires the annotation engine into a ready-to-serve
// application.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		imageannotator "github.com/menta2k/image-annotator"
//		"github.com/menta2k/image-annotator/internal/config"
//	)
//
//	func main() {
//		cfg := config.Default()
//		cfg.Session.SourceDir = "images"
//		cfg.Session.DestDir = "labels"
//
//		app, err := imageannotator.NewWithConfig(cfg)
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := app.Open(context.Background()); err != nil {
//			log.Fatal(err)
//		}
//		log.Fatal(app.Serve(context.Background()))
//	}
//
// The engine consists of four components:
//
// 1. Transform (pkg/transform): normalized box to canvas rectangle mapping
// 2. History (pkg/history): bounded undo/redo of annotation snapshots
// 3. Editor (pkg/editor): box creation, selection and deletion
// 4. View (pkg/view): rotation, zoom and pan of the displayed image
//
// pkg/session ties them to a collaborator for image and label I/O
// (pkg/store on local directories) and internal/server exposes the session
// to a browser over JSON.
package imageannotator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/server"
	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/detection"
	"github.com/menta2k/image-annotator/pkg/editor"
	"github.com/menta2k/image-annotator/pkg/llamacpp"
	"github.com/menta2k/image-annotator/pkg/ollama"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/render"
	"github.com/menta2k/image-annotator/pkg/session"
	"github.com/menta2k/image-annotator/pkg/store"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/view"
)

// Version of the image annotator
const Version = "1.0.0"

// Annotator owns one session and everything it needs
type Annotator struct {
	config    *config.Config
	logger    *logrus.Logger
	processor *processing.Processor
	canvas    *render.Canvas
	session   *session.Session
}

// New creates an Annotator with the default configuration
func New() (*Annotator, error) {
	return NewWithConfig(config.Default())
}

// NewWithConfig validates cfg and builds the session, its drawing surface
// and, when enabled, the vision assist
func NewWithConfig(cfg *config.Config) (*Annotator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.NewLogger()
	processor := processing.NewProcessor(cfg.Session.RotateQuality, false)

	canvas, err := render.NewCanvas(types.Size{}, cfg.Render)
	if err != nil {
		return nil, fmt.Errorf("failed to create canvas: %w", err)
	}

	projects, err := store.NewProjects(cfg.Session.ProjectsDir)
	if err != nil {
		return nil, err
	}

	var assist *session.AssistConfig
	if cfg.Assist.Enabled {
		vc, err := NewVisionClient(cfg.Assist.Backend, cfg.Assist.URL)
		if err != nil {
			return nil, err
		}
		assist = &session.AssistConfig{
			Detector: detection.NewDetector(vc, detection.Config{
				Model:         cfg.Assist.Model,
				MinConfidence: cfg.Assist.MinConfidence,
				ClassNames:    cfg.Session.ClassNames,
			}),
			Processor:   processor,
			SendFormat:  cfg.Assist.SendFormat,
			SendSize:    cfg.Assist.SendSize,
			SendQuality: cfg.Assist.SendQuality,
		}
	}

	sess := session.New(session.Config{
		Editor: editor.Config{
			ClickThreshold:  cfg.Editor.ClickThreshold,
			HistoryCapacity: cfg.Editor.HistoryCapacity,
		},
		View: view.Config{
			MinZoom:  cfg.View.MinZoom,
			MaxZoom:  cfg.View.MaxZoom,
			ZoomIn:   cfg.View.ZoomIn,
			ZoomOut:  cfg.View.ZoomOut,
			PanRange: cfg.View.PanRange,
		},
		Style:        cfg.Render,
		Autosave:     cfg.Session.Autosave,
		DefaultClass: cfg.Session.DefaultClass,
		ClassNames:   cfg.Session.ClassNames,
		Viewport: types.Size{
			W: float64(cfg.Session.ViewportWidth),
			H: float64(cfg.Session.ViewportHeight),
		},
		Opener: func(src, dst string) (client.Collaborator, error) {
			return store.New(src, dst, processor, logger)
		},
		Projects: projects,
		Assist:   assist,
		Surface:  canvas,
		Logger:   logger,
	})

	return &Annotator{
		config:    cfg,
		logger:    logger,
		processor: processor,
		canvas:    canvas,
		session:   sess,
	}, nil
}

// NewVisionClient creates the client for an assist backend
func NewVisionClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case "ollama":
		if url == "" {
			url = "http://localhost:11434"
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", backend)
}

// Open loads the configured source and destination directories, if any
func (a *Annotator) Open(ctx context.Context) error {
	src, dst := a.config.Session.SourceDir, a.config.Session.DestDir
	if src == "" || dst == "" {
		return nil
	}
	n, err := a.session.SetDirs(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	a.logger.WithField("count", n).Info("images found")
	return nil
}

// Session returns the annotation session
func (a *Annotator) Session() *session.Session {
	return a.session
}

// Canvas returns the drawing surface the session renders to
func (a *Annotator) Canvas() *render.Canvas {
	return a.canvas
}

// Logger returns the configured logger
func (a *Annotator) Logger() *logrus.Logger {
	return a.logger
}

// Handler returns the HTTP API for the session
func (a *Annotator) Handler() http.Handler {
	return server.New(a.session, a.canvas, a.processor, a.logger)
}

// Serve runs the HTTP API on the configured address until ctx is done
func (a *Annotator) Serve(ctx context.Context) error {
	return server.New(a.session, a.canvas, a.processor, a.logger).ListenAndServe(ctx, a.config.Server.Addr)
}

// GetVersion returns the application version
func GetVersion() string {
	return Version
}
