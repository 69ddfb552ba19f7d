package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDetectObjects(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": "```json\n{\"objects\":[{\"label\":\"dog\",\"confidence\":0.9,\"box\":{\"x\":0.4,\"y\":0.6,\"w\":0.2,\"h\":0.2}}],\"description\":\"a dog\"}\n```",
				},
			}},
		})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL + "/")
	result, err := c.DetectObjects(context.Background(), "qwen-vl", "find", "aGVsbG8=")
	if err != nil {
		t.Fatalf("DetectObjects failed: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].Label != "dog" {
		t.Errorf("Expected one dog, got %+v", result)
	}
	if got.Model != "qwen-vl" || len(got.Messages) != 1 {
		t.Errorf("Unexpected request %+v", got)
	}
	parts, ok := got.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %#v", got.Messages[0].Content)
	}
	image, _ := parts[1].(map[string]interface{})
	url, _ := image["image_url"].(map[string]interface{})
	if !strings.HasPrefix(url["url"].(string), "data:image/jpeg;base64,") {
		t.Errorf("Expected data URL, got %v", url["url"])
	}
}

func TestArrayContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":[{"type":"text","text":"a bird"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	text, err := c.SimpleQuery(context.Background(), "m", "what?", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "a bird" {
		t.Errorf("Expected %q, got %q", "a bird", text)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.DetectObjects(context.Background(), "m", "p", "")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.SimpleQuery(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for empty choices")
	}
}
