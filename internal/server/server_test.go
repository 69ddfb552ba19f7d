package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/render"
	"github.com/menta2k/image-annotator/pkg/session"
	"github.com/menta2k/image-annotator/pkg/store"
	"github.com/menta2k/image-annotator/pkg/types"
)

type testEnv struct {
	srv  *httptest.Server
	src  string
	dst  string
	dirs dirsRequest
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "labels")
	for _, name := range []string{"a.png", "b.png"} {
		img := imaging.New(200, 150, image.White.C)
		if err := imaging.Save(img, filepath.Join(src, name)); err != nil {
			t.Fatal(err)
		}
	}

	logger, _ := test.NewNullLogger()
	proc := processing.NewProcessor(90, false)
	projects, err := store.NewProjects(filepath.Join(t.TempDir(), "projects"))
	if err != nil {
		t.Fatal(err)
	}
	canvas, err := render.NewCanvas(types.Size{}, render.DefaultStyle())
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New(session.Config{
		Autosave: true,
		Viewport: types.Size{W: 400, H: 300},
		Opener: func(s, d string) (client.Collaborator, error) {
			return store.New(s, d, proc, logger)
		},
		Projects: projects,
		Surface:  canvas,
		Logger:   logger,
	})

	srv := httptest.NewServer(New(sess, canvas, proc, logger))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, src: src, dst: dst, dirs: dirsRequest{SourceDir: src, DestDir: dst}}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) command(t *testing.T, cmd session.Command) session.Snapshot {
	t.Helper()
	resp := e.post(t, "/api/command", cmd)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Command %s: expected 200, got %d", cmd.Type, resp.StatusCode)
	}
	var st session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return st
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Expected JSON error body: %v", err)
	}
	return body["error"]
}

func TestCommandBeforeDirs(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/command", session.Command{Type: session.CmdNext})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
	if msg := decodeError(t, resp); msg != session.ErrNoImages.Error() {
		t.Errorf("Expected %q, got %q", session.ErrNoImages, msg)
	}

	if resp := env.get(t, "/api/image"); resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for image, got %d", resp.StatusCode)
	}
}

func TestSetDirs(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/dirs", dirsRequest{SourceDir: filepath.Join(env.src, "missing"), DestDir: env.dst})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for missing source, got %d", resp.StatusCode)
	}

	resp = env.post(t, "/api/dirs", env.dirs)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["count"] != 2 {
		t.Errorf("Expected count 2, got %v", body)
	}

	resp = env.get(t, "/api/state")
	var st session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Image != "a.png" || st.Canvas != (types.Size{W: 200, H: 150}) {
		t.Errorf("Expected a.png on a 200x150 canvas, got %q %+v", st.Image, st.Canvas)
	}
}

func TestDrawAndSave(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/dirs", env.dirs)

	env.command(t, session.Command{Type: session.CmdPointerDown, X: 20, Y: 20})
	env.command(t, session.Command{Type: session.CmdPointerMove, X: 120, Y: 95})
	st := env.command(t, session.Command{Type: session.CmdPointerUp, X: 120, Y: 95})
	if len(st.Boxes) != 1 {
		t.Fatalf("Expected one box, got %+v", st.Boxes)
	}

	st = env.command(t, session.Command{Type: session.CmdSave})
	if st.Status != "saved" {
		t.Errorf("Expected saved status, got %q", st.Status)
	}
	data, err := os.ReadFile(filepath.Join(env.dst, "a.txt"))
	if err != nil {
		t.Fatalf("Expected label file: %v", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 5 || fields[0] != "0" || fields[1] != "0.35" {
		t.Errorf("Unexpected label file %q", data)
	}

	resp := env.get(t, "/api/overlay.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for overlay, got %d", resp.StatusCode)
	}
	overlay, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("Expected PNG overlay: %v", err)
	}
	if b := overlay.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Errorf("Expected overlay at canvas size, got %v", b)
	}

	resp = env.get(t, "/api/preview.png")
	if ct := resp.Header.Get("Content-Type"); resp.StatusCode != http.StatusOK || ct != "image/png" {
		t.Errorf("Expected PNG preview, got %d %q", resp.StatusCode, ct)
	}

	resp = env.get(t, "/api/image")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for image, got %d", resp.StatusCode)
	}
	if _, _, err := image.Decode(resp.Body); err != nil {
		t.Errorf("Expected decodable image bytes: %v", err)
	}
}

func TestNavigateAutosaves(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/dirs", env.dirs)

	st := env.command(t, session.Command{Type: session.CmdKey, Key: "d"})
	if st.Image != "b.png" || st.Index != 1 {
		t.Errorf("Expected b.png, got %q", st.Image)
	}
	if _, err := os.Stat(filepath.Join(env.dst, "a.txt")); err != nil {
		t.Errorf("Expected autosaved label file for a.png: %v", err)
	}
	if st.Info != "2 images — 2/2 | b.png" {
		t.Errorf("Unexpected info %q", st.Info)
	}
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/dirs", env.dirs)

	resp := env.post(t, "/api/command", session.Command{Type: "teleport"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown command, got %d", resp.StatusCode)
	}
	if msg := decodeError(t, resp); !strings.Contains(msg, "teleport") {
		t.Errorf("Expected error naming the command, got %q", msg)
	}

	raw, err := http.Post(env.srv.URL+"/api/command", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", raw.StatusCode)
	}

	if resp := env.post(t, "/api/command", session.Command{Type: session.CmdDelete}); resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for delete without selection, got %d", resp.StatusCode)
	}
	if resp := env.get(t, "/api/command"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET command, got %d", resp.StatusCode)
	}
}

func TestProjects(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/dirs", env.dirs)
	env.command(t, session.Command{Type: session.CmdNext})

	if resp := env.post(t, "/api/projects/birds", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 saving project, got %d", resp.StatusCode)
	}
	if resp := env.post(t, "/api/projects/.hidden", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid name, got %d", resp.StatusCode)
	}

	resp := env.get(t, "/api/projects")
	var list map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list["projects"]) != 1 || list["projects"][0] != "birds" {
		t.Errorf("Expected [birds], got %v", list)
	}

	env.command(t, session.Command{Type: session.CmdPrev})
	if resp := env.post(t, "/api/projects/nothing/load", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for missing project, got %d", resp.StatusCode)
	}
	resp = env.post(t, "/api/projects/birds/load", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 loading project, got %d", resp.StatusCode)
	}
	var st session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Index != 1 || st.Status != "project loaded" {
		t.Errorf("Expected project position restored, got %d %q", st.Index, st.Status)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{badRequest(errors.New("eof")), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", session.ErrInvalidCommand), http.StatusBadRequest},
		{store.ErrInvalidPath, http.StatusBadRequest},
		{fmt.Errorf("x: %w", fs.ErrNotExist), http.StatusNotFound},
		{store.ErrProjectNotFound, http.StatusNotFound},
		{store.ErrSourceNotFound, http.StatusNotFound},
		{session.ErrNoImages, http.StatusConflict},
		{session.ErrAssistDisabled, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
