package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeOllama serves the daemon endpoints an adapter touches.
func fakeOllama(t *testing.T, models []map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"models": models})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":    req.Model,
			"response": "generated by " + req.Model,
			"done":     true,
		})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "chat reply"},
			"done":    true,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func twoModels() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name":        "llama3.2:latest",
			"size":        2019393189,
			"modified_at": "2025-06-01T10:00:00Z",
			"details":     map[string]string{"family": "llama"},
		},
		{
			"name":        "mistral:7b",
			"size":        4113301824,
			"modified_at": "2025-05-12T08:30:00Z",
			"details":     map[string]string{"family": "mistral"},
		},
	}
}

func TestNewOllamaSelectsFirstModelByDefault(t *testing.T) {
	srv := fakeOllama(t, twoModels())

	o, err := NewOllama(nopLogger(), srv.URL, "")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if o.Model() != "llama3.2:latest" {
		t.Errorf("default model: got %q", o.Model())
	}
	if o.Label() != "ollama (llama3.2:latest)" {
		t.Errorf("Label() = %q", o.Label())
	}

	models := o.Models()
	if len(models) != 2 {
		t.Fatalf("catalog size: got %d, want 2", len(models))
	}
	if models[0].Size != "1.9 GB" {
		t.Errorf("size formatting: got %q, want %q", models[0].Size, "1.9 GB")
	}
	if models[0].Family != "llama" {
		t.Errorf("family: got %q", models[0].Family)
	}
}

func TestNewOllamaExplicitModel(t *testing.T) {
	srv := fakeOllama(t, twoModels())

	o, err := NewOllama(nopLogger(), srv.URL, "mistral:7b")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if o.Model() != "mistral:7b" {
		t.Errorf("model: got %q", o.Model())
	}
}

func TestNewOllamaUnknownModel(t *testing.T) {
	srv := fakeOllama(t, twoModels())

	_, err := NewOllama(nopLogger(), srv.URL, "nonexistent:1b")
	var unknown *UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModelError, got %v", err)
	}
	if len(unknown.Available) != 2 {
		t.Errorf("available list: got %v", unknown.Available)
	}
}

func TestNewOllamaEmptyCatalog(t *testing.T) {
	srv := fakeOllama(t, nil)

	_, err := NewOllama(nopLogger(), srv.URL, "")
	if !errors.Is(err, ErrNoModels) {
		t.Fatalf("expected ErrNoModels, got %v", err)
	}
}

func TestOllamaSetModel(t *testing.T) {
	srv := fakeOllama(t, twoModels())

	o, err := NewOllama(nopLogger(), srv.URL, "")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}

	if err := o.SetModel("mistral:7b"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if o.Model() != "mistral:7b" {
		t.Errorf("model after switch: got %q", o.Model())
	}

	// The catalog snapshot from construction decides validity.
	var unknown *UnknownModelError
	if err := o.SetModel("pulled-later:1b"); !errors.As(err, &unknown) {
		t.Errorf("expected UnknownModelError, got %v", err)
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := fakeOllama(t, twoModels())

	o, err := NewOllama(nopLogger(), srv.URL, "")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}

	got, err := o.Generate(context.Background(), "a question")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "generated by llama3.2:latest" {
		t.Errorf("Generate() = %q", got)
	}
}

func TestOllamaChat(t *testing.T) {
	srv := fakeOllama(t, twoModels())

	o, err := NewOllama(nopLogger(), srv.URL, "")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}

	got, err := o.Chat(context.Background(), []ChatMessage{
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "chat reply" {
		t.Errorf("Chat() = %q", got)
	}
}

func TestOllamaGenerateDaemonError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"models": twoModels()})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o, err := NewOllama(nopLogger(), srv.URL, "")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}

	if _, err := o.Generate(context.Background(), "q"); err == nil {
		t.Fatal("expected error from failing daemon")
	}
}

func TestNewOllamaDaemonDown(t *testing.T) {
	// Closed port: construction must fail, not hang.
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	if _, err := NewOllama(nopLogger(), url, ""); err == nil {
		t.Fatal("expected error when daemon is unreachable")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512.0 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{2019393189, "1.9 GB"},
		{3 * 1024 * 1024 * 1024 * 1024, "3.0 TB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
