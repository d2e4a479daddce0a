package backend

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Factory constructs an adapter for a provider name. model is only
// meaningful for the Ollama branch; other providers ignore it.
type Factory func(provider, model string) (Generator, error)

// NewFactory returns the standard factory over the four known
// providers. Construction performs the real-world probes (PATH lookups,
// catalog queries), so it is only ever called through the Registry.
func NewFactory(logger *zap.Logger, ollamaURL string, timeout time.Duration) Factory {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return func(provider, model string) (Generator, error) {
		switch provider {
		case ProviderOllama:
			return NewOllama(logger, ollamaURL, model)
		case ProviderClaudeCLI:
			return NewClaudeCLI(logger, timeout)
		case ProviderGeminiCLI:
			return NewGeminiCLI(logger, timeout, "")
		case ProviderCodexCLI:
			return NewCodexCLI(logger, timeout)
		default:
			return nil, &UnknownBackendError{Name: provider}
		}
	}
}

// Registry lazily constructs and caches adapter instances. At most one
// adapter exists per (provider, model) key for the process lifetime;
// successful entries are never evicted. Construction failures are not
// cached, so a later request after the environment is fixed can succeed.
//
// The registry is shared across all requests; the map is serialized
// with a mutex while construction itself runs outside the lock behind
// a per-key once, so concurrent first users of a key await one
// construction instead of duplicating it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
}

type entry struct {
	once sync.Once
	gen  Generator
	err  error
}

// NewRegistry creates an empty registry over the given factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		factory: factory,
	}
}

// Key returns the cache key for a provider/model pair. Only the
// model-selecting Ollama backend participates with its model name.
func Key(provider, model string) string {
	if provider == ProviderOllama {
		return provider + ":" + model
	}
	return provider
}

// GetOrCreate returns the cached adapter for the key, constructing it
// on first use. Concurrent callers with the same key share a single
// construction.
func (r *Registry) GetOrCreate(provider, model string) (Generator, error) {
	key := Key(provider, model)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.gen, e.err = r.factory(provider, model)
	})

	if e.err != nil {
		// Drop the failed slot so a later retry constructs anew.
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.gen, nil
}

// Len returns the number of cached adapters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
