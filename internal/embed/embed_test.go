package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEncode(t *testing.T) {
	var gotModel, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel, gotPrompt = req.Model, req.Prompt
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float32{0.25, -0.5, 0.75},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "nomic-embed-text")
	vec, err := c.Encode(context.Background(), "a story about honesty")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if gotModel != "nomic-embed-text" {
		t.Errorf("model: got %q", gotModel)
	}
	if gotPrompt != "a story about honesty" {
		t.Errorf("prompt: got %q", gotPrompt)
	}
	if len(vec) != 3 || vec[0] != 0.25 {
		t.Errorf("vector: got %v", vec)
	}
}

func TestEncodeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "missing").Encode(context.Background(), "q"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestEncodeEmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{}})
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "m").Encode(context.Background(), "q"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}
