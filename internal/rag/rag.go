// Package rag sequences retrieval-augmented generation: vectorize the
// query, retrieve relevant fables, assemble a context document, build
// the prompt, and invoke the selected generation backend.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fablerag/fablerag/internal/backend"
	"github.com/fablerag/fablerag/internal/telemetry"
)

// Passage is one retrieved fable with its relevance score, used as
// generation context and cited as a source. Read-only within the
// pipeline.
type Passage struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Moral     string  `json:"moral"`
	Score     float64 `json:"score"`
	Language  string  `json:"language"`
	WordCount int     `json:"word_count"`
}

// Retriever is the vector-search collaborator. Results come back in
// relevance order; the pipeline imposes no re-sort.
type Retriever interface {
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]Passage, error)
}

// Embedder is the vectorization collaborator.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Request is one generation request at the pipeline boundary.
type Request struct {
	Query    string
	Limit    int
	Provider string // empty selects the default provider
	Model    string // Ollama model, empty selects the default
}

// Result is the assembled answer with its sources and the identity of
// the backend that produced it.
type Result struct {
	Query    string    `json:"query"`
	Answer   string    `json:"answer"`
	Sources  []Passage `json:"sources"`
	Provider string    `json:"llm_provider"`
}

// promptTemplate embeds the context block and the verbatim user query.
const promptTemplate = `Based on the following fables, answer the user's question.

%s

User's question: %s

Please provide a helpful answer based on the fables above. Reference specific fables when relevant.`

// Orchestrator wires the collaborators into the generation pipeline.
type Orchestrator struct {
	embedder        Embedder
	retriever       Retriever
	registry        *backend.Registry
	defaultProvider string
	defaultModel    string // default Ollama model, may be empty
	logger          *zap.Logger
}

// New creates an orchestrator. defaultModel applies only when the
// resolved provider is Ollama and the request names no model.
func New(embedder Embedder, retriever Retriever, registry *backend.Registry, defaultProvider, defaultModel string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		embedder:        embedder,
		retriever:       retriever,
		registry:        registry,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		logger:          logger,
	}
}

// Retrieve embeds the query and searches the store. It backs both the
// generation pipeline and the standalone search endpoint.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, limit int, scoreThreshold float64) ([]Passage, error) {
	ctx, span := telemetry.StartSpan(ctx, "rag.retrieve")
	defer span.End()

	vector, err := o.embedder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize query: %w", err)
	}

	passages, err := o.retriever.Search(ctx, vector, limit, scoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return passages, nil
}

// Answer runs the full pipeline for one request. An empty retrieval
// set still generates: a prompt with zero context is valid input. A
// backend that produces no text surfaces as a single error with no
// retry; retry policy belongs to the caller.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "rag.answer")
	defer span.End()

	passages, err := o.Retrieve(ctx, req.Query, req.Limit, 0)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(BuildContext(passages), req.Query)

	gen, err := o.resolve(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	answer, err := gen.Generate(ctx, prompt)
	if err != nil {
		o.logger.Error("generation failed",
			zap.String("backend", gen.Label()),
			zap.Error(err))
		return nil, fmt.Errorf("%s failed to generate response: %w", gen.Name(), err)
	}

	return &Result{
		Query:    req.Query,
		Answer:   answer,
		Sources:  passages,
		Provider: gen.Label(),
	}, nil
}

// resolve picks the backend for a request, falling back to the
// configured defaults, and fetches it through the registry.
func (o *Orchestrator) resolve(provider, model string) (backend.Generator, error) {
	if provider == "" {
		provider = o.defaultProvider
	}
	if provider == backend.ProviderOllama && model == "" {
		model = o.defaultModel
	}
	return o.registry.GetOrCreate(provider, model)
}

// BuildContext renders passages as numbered blocks in retrieval order,
// separated by blank lines. Pure function of its input.
func BuildContext(passages []Passage) string {
	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = fmt.Sprintf("Fable %d: %s\nContent: %s\nMoral: %s", i+1, p.Title, p.Content, p.Moral)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompt embeds the context block and the verbatim query into the
// fixed template.
func BuildPrompt(contextBlock, query string) string {
	return fmt.Sprintf(promptTemplate, contextBlock, query)
}
