package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/fablerag/fablerag/internal/backend"
	"github.com/fablerag/fablerag/internal/rag"
)

const (
	maxQueryLength = 10000

	defaultSearchLimit   = 5
	maxSearchLimit       = 20
	defaultGenerateLimit = 3
	maxGenerateLimit     = 10
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// handleRoot serves the welcome payload.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to Fable RAG API",
		"health":  "/health",
		"models":  "/models",
	})
}

// handleModels lists configured providers and the Ollama model catalog
// restriction.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.cfg.OllamaModels
	if !s.cfg.HasProvider(backend.ProviderOllama) {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers":        s.cfg.Providers,
		"default_provider": s.cfg.DefaultProvider,
		"ollama_models":    models,
	})
}

type healthResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	CollectionName string `json:"collection_name"`
	TotalFables    int64  `json:"total_fables"`
	LLMProvider    string `json:"llm_provider"`
}

// handleHealth reports store connectivity and the provider summary.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("health check failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Message:        "System running normally",
		CollectionName: s.cfg.Collection,
		TotalFables:    count,
		LLMProvider:    fmt.Sprintf("%s (default: %s)", strings.Join(s.cfg.Providers, ", "), s.cfg.DefaultProvider),
	})
}

type searchRequest struct {
	Query          string  `json:"query"`
	Limit          int     `json:"limit"`
	ScoreThreshold float64 `json:"score_threshold"`
}

type searchResponse struct {
	Query        string        `json:"query"`
	Results      []rag.Passage `json:"results"`
	TotalResults int           `json:"total_results"`
}

// handleSearch embeds the query and returns ranked fables.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultSearchLimit
	}
	if req.Limit < 1 || req.Limit > maxSearchLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit))
		return
	}
	if req.ScoreThreshold < 0 || req.ScoreThreshold > 1 {
		writeError(w, http.StatusBadRequest, "score_threshold must be between 0 and 1")
		return
	}

	results, err := s.rag.Retrieve(r.Context(), req.Query, req.Limit, req.ScoreThreshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("search failed: %v", err))
		return
	}
	retrievedPassages.Observe(float64(len(results)))

	writeJSON(w, http.StatusOK, searchResponse{
		Query:        req.Query,
		Results:      results,
		TotalResults: len(results),
	})
}

type generateRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// handleGenerate runs the full RAG pipeline for one question.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if len(req.Query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query too long: %d characters (max %d)", len(req.Query), maxQueryLength))
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultGenerateLimit
	}
	if req.Limit < 1 || req.Limit > maxGenerateLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxGenerateLimit))
		return
	}

	// Validate the backend selection before any adapter is constructed.
	provider := req.Provider
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	if !s.cfg.HasProvider(provider) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("provider %q not available, configured: %s", provider, strings.Join(s.cfg.Providers, ", ")))
		return
	}
	if provider == backend.ProviderOllama && req.Model != "" && !s.cfg.HasOllamaModel(req.Model) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("model %q not available, configured: %s", req.Model, strings.Join(s.cfg.OllamaModels, ", ")))
		return
	}

	start := time.Now()
	result, err := s.rag.Answer(r.Context(), rag.Request{
		Query:    req.Query,
		Limit:    req.Limit,
		Provider: provider,
		Model:    req.Model,
	})
	if err != nil {
		writeError(w, statusForGenerateError(err), fmt.Sprintf("generate failed: %v", err))
		return
	}
	generateDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}

// statusForGenerateError maps pipeline errors onto HTTP statuses:
// a bad backend or model name is the client's fault, everything else
// (missing binary, empty catalog, failed generation) is a server-side
// failure for this request.
func statusForGenerateError(err error) int {
	var unknownBackend *backend.UnknownBackendError
	var unknownModel *backend.UnknownModelError
	if errors.As(err, &unknownBackend) || errors.As(err, &unknownModel) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleFable fetches a single fable by ID.
func (s *Server) handleFable(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fable id")
		return
	}

	passage, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get fable: %v", err))
		return
	}
	if passage == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("fable with ID %d not found", id))
		return
	}

	writeJSON(w, http.StatusOK, passage)
}
