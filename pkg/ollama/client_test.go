package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newChatServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test",
			"message": map[string]any{"role": "assistant", "content": content},
			"done":    true,
		})
	}))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url"); err == nil {
		t.Error("Expected error for URL without scheme and host")
	}
	if _, err := NewClient("http://localhost:11434/api/chat"); err != nil {
		t.Errorf("Expected URL with path to be accepted, got %v", err)
	}
}

func TestDetectObjects(t *testing.T) {
	var seen map[string]any
	srv := newChatServer(t, `{"objects":[{"label":"cat","confidence":0.8,"box":{"x":0.5,"y":0.5,"w":0.2,"h":0.3}}],"description":"a cat"}`, &seen)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	img := base64.StdEncoding.EncodeToString([]byte("fake-image"))
	result, err := c.DetectObjects(context.Background(), "llava", "find things", img)
	if err != nil {
		t.Fatalf("DetectObjects failed: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].Label != "cat" {
		t.Errorf("Expected one cat, got %+v", result)
	}
	if result.Objects[0].Box.H != 0.3 {
		t.Errorf("Expected box height 0.3, got %v", result.Objects[0].Box.H)
	}
	if seen["model"] != "llava" {
		t.Errorf("Expected model llava in request, got %v", seen["model"])
	}
}

func TestSimpleQuery(t *testing.T) {
	srv := newChatServer(t, "A cat on a sofa.", nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	got, err := c.SimpleQuery(context.Background(), "llava", "what?", base64.StdEncoding.EncodeToString([]byte("x")))
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if got != "A cat on a sofa." {
		t.Errorf("Expected answer text, got %q", got)
	}
}

func TestBadBase64(t *testing.T) {
	c, _ := NewClient("http://127.0.0.1:1")
	if _, err := c.SimpleQuery(context.Background(), "m", "p", "%%%"); err == nil {
		t.Error("Expected base64 decode error")
	}
}
