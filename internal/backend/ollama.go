package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fablerag/fablerag/internal/telemetry"
)

// ModelInfo describes one entry of the Ollama model catalog.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       string `json:"size"`
	ModifiedAt string `json:"modified_at"`
	Family     string `json:"family"`
}

// ChatMessage is a single turn of a multi-turn conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Ollama adapts a local Ollama daemon to the Generator contract.
//
// The model catalog is queried once at construction; the snapshot is
// what SetModel validates against for the adapter's lifetime.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
	models  []ModelInfo
	logger  *zap.Logger
}

// NewOllama queries the daemon's catalog and selects a model. An empty
// model name selects the first catalog entry; a named model absent
// from the catalog is an UnknownModelError; an empty catalog is
// ErrNoModels.
func NewOllama(logger *zap.Logger, baseURL, model string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	o := &Ollama{
		client: &http.Client{
			Timeout: 120 * time.Second, // generation can be slow on CPU
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}

	models, err := o.listModels()
	if err != nil {
		return nil, fmt.Errorf("failed to list ollama models: %w", err)
	}
	o.models = models

	switch {
	case model != "":
		if !o.hasModel(model) {
			return nil, &UnknownModelError{Model: model, Available: o.modelNames()}
		}
		o.model = model
	case len(models) > 0:
		o.model = models[0].Name
	default:
		return nil, ErrNoModels
	}

	return o, nil
}

// listModels fetches /api/tags and formats sizes with binary prefixes.
func (o *Ollama) listModels() ([]ModelInfo, error) {
	resp, err := o.client.Get(o.baseURL + "/api/tags")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name       string `json:"name"`
			Size       int64  `json:"size"`
			ModifiedAt string `json:"modified_at"`
			Details    struct {
				Family string `json:"family"`
			} `json:"details"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	models := make([]ModelInfo, 0, len(payload.Models))
	for _, m := range payload.Models {
		models = append(models, ModelInfo{
			Name:       m.Name,
			Size:       formatSize(m.Size),
			ModifiedAt: m.ModifiedAt,
			Family:     m.Details.Family,
		})
	}
	return models, nil
}

// formatSize renders bytes with binary-prefix units at 1024 scaling.
func formatSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}

func (o *Ollama) hasModel(name string) bool {
	for _, m := range o.models {
		if m.Name == name {
			return true
		}
	}
	return false
}

func (o *Ollama) modelNames() []string {
	names := make([]string, len(o.models))
	for i, m := range o.models {
		names[i] = m.Name
	}
	return names
}

// Name returns the provider identifier.
func (o *Ollama) Name() string {
	return ProviderOllama
}

// Label returns "ollama (<model>)".
func (o *Ollama) Label() string {
	return fmt.Sprintf("%s (%s)", ProviderOllama, o.model)
}

// Model returns the active model name.
func (o *Ollama) Model() string {
	return o.model
}

// Models returns the catalog snapshot taken at construction.
func (o *Ollama) Models() []ModelInfo {
	return o.models
}

// SetModel switches the active model for subsequent calls. The catalog
// is not re-queried; name must be in the construction-time snapshot.
func (o *Ollama) SetModel(name string) error {
	if !o.hasModel(name) {
		return &UnknownModelError{Model: name, Available: o.modelNames()}
	}
	o.model = name
	return nil
}

// Generate produces a single-turn completion via /api/generate.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.StartLLMSpan(ctx, "backend.generate", o.Label())
	defer span.End()
	span.SetInput(prompt)

	var result struct {
		Response string `json:"response"`
	}
	if err := o.post(ctx, "/api/generate", map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	}, &result); err != nil {
		o.logger.Warn("ollama generation failed",
			zap.String("model", o.model),
			zap.Error(err))
		span.SetError(err)
		return "", err
	}

	span.SetOutput(result.Response)
	return result.Response, nil
}

// Chat runs a multi-turn conversation via /api/chat and returns the
// assistant's message content.
func (o *Ollama) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, span := telemetry.StartLLMSpan(ctx, "backend.chat", o.Label())
	defer span.End()

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := o.post(ctx, "/api/chat", map[string]interface{}{
		"model":    o.model,
		"messages": messages,
		"stream":   false,
	}, &result); err != nil {
		o.logger.Warn("ollama chat failed",
			zap.String("model", o.model),
			zap.Error(err))
		span.SetError(err)
		return "", err
	}

	span.SetOutput(result.Message.Content)
	return result.Message.Content, nil
}

// post sends a JSON request to the daemon and decodes the response
// into out.
func (o *Ollama) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse ollama response: %w", err)
	}
	return nil
}
