// Package server exposes an annotation session to a browser host shell over
// a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/render"
	"github.com/menta2k/image-annotator/pkg/session"
	"github.com/menta2k/image-annotator/pkg/store"
)

// imagePather is implemented by collaborators backed by local files
type imagePather interface {
	ImagePath(ref string) (string, error)
}

// Server routes HTTP requests to a session
type Server struct {
	session   *session.Session
	canvas    *render.Canvas
	processor *processing.Processor
	logger    logrus.FieldLogger
	mux       *http.ServeMux
}

// New creates a server for sess. canvas is the session's drawing surface and
// may be nil, in which case the overlay endpoint is unavailable.
func New(sess *session.Session, canvas *render.Canvas, processor *processing.Processor, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if processor == nil {
		processor = processing.NewProcessor(90, false)
	}
	s := &Server{
		session:   sess,
		canvas:    canvas,
		processor: processor,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/dirs", s.handleDirs)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("GET /api/image", s.handleImage)
	s.mux.HandleFunc("GET /api/overlay.png", s.handleOverlay)
	s.mux.HandleFunc("GET /api/preview.png", s.handlePreview)
	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("POST /api/projects/{name}", s.handleSaveProject)
	s.mux.HandleFunc("POST /api/projects/{name}/load", s.handleLoadProject)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"duration": time.Since(start),
	}).Debug("request")
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.WithField("addr", addr).Info("listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

type dirsRequest struct {
	SourceDir string `json:"source_dir"`
	DestDir   string `json:"dest_dir"`
}

func (s *Server) handleDirs(w http.ResponseWriter, r *http.Request) {
	var req dirsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	count, err := s.session.SetDirs(r.Context(), req.SourceDir, req.DestDir)
	if err != nil && !errors.Is(err, session.ErrStale) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd session.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	if err := s.session.Dispatch(r.Context(), cmd); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, ref, err := s.session.Pixels()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if fp, ok := s.session.Collaborator().(imagePather); ok {
		path, err := fp.ImagePath(ref)
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, path)
		return
	}
	s.writePNG(w, func(w http.ResponseWriter) error {
		return s.processor.Encode(w, img, "png")
	})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	if s.canvas == nil {
		s.writeError(w, fmt.Errorf("overlay: %w", fs.ErrNotExist))
		return
	}
	s.writePNG(w, func(w http.ResponseWriter) error {
		return s.canvas.EncodePNG(w)
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	img, err := s.session.Preview()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writePNG(w, func(w http.ResponseWriter) error {
		return s.processor.Encode(w, img, "png")
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	names, err := s.session.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"projects": names})
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	if err := s.session.SaveProject(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	if err := s.session.LoadProject(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) writePNG(w http.ResponseWriter, encode func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := encode(w); err != nil {
		s.logger.WithError(err).Error("failed to encode png")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return requestError{err: fmt.Errorf("invalid request body: %w", err)}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, session.ErrInvalidCommand),
		errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, store.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoImages),
		errors.Is(err, session.ErrNoSelection),
		errors.Is(err, session.ErrStale),
		errors.Is(err, session.ErrNoProjects),
		errors.Is(err, session.ErrAssistDisabled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
