// Package backend provides the multi-backend generation gateway: one
// uniform Generator contract over heterogeneous text-generation
// backends. Three backends shell out to external CLIs that emit
// irregular JSON (claude_code, gemini_cli, codex); one talks to a
// local Ollama daemon over HTTP with model discovery. A Registry
// caches constructed adapters per (backend, model) key so expensive
// availability probes and catalog queries happen once per process.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names recognized by the factory. These match the values
// accepted in request payloads and the providers configuration list.
const (
	ProviderOllama    = "ollama"
	ProviderClaudeCLI = "claude_code"
	ProviderGeminiCLI = "gemini_cli"
	ProviderCodexCLI  = "codex"
)

// DefaultTimeout bounds a single CLI generation call unless configured
// otherwise.
const DefaultTimeout = 60 * time.Second

// Generator is the uniform contract every backend adapter implements.
//
// Generate returns the extracted answer text, or an error when the
// backend could not produce one. Operational failures (timeouts,
// process exits, unreachable daemon) are absorbed into the returned
// error after being logged; they never panic and carry no partial
// output.
type Generator interface {
	// Name returns the provider identifier (e.g. "claude_code").
	Name() string

	// Label returns a human-readable backend+model label for
	// responses (e.g. "ollama (llama3.2:latest)").
	Label() string

	// Generate produces an answer for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrNoModels is returned when the Ollama daemon reports an empty
// model catalog at adapter construction.
var ErrNoModels = errors.New("no models available: pull a model first (ollama pull <model>)")

// UnavailableError reports a required external program missing at
// adapter construction. A missing binary cannot appear within the
// process lifetime, so this is not retried.
type UnavailableError struct {
	Backend string
	Program string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s is unavailable: %s not found in PATH", e.Backend, e.Program)
}

// UnknownModelError reports a requested model absent from the Ollama
// catalog snapshot taken at construction.
type UnknownModelError struct {
	Model     string
	Available []string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q not found, available: %s", e.Model, strings.Join(e.Available, ", "))
}

// UnknownBackendError reports a provider name outside the factory's
// enumeration. This is a request-level client error.
type UnknownBackendError struct {
	Name string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}
