// Package store provides the retrieval collaborator over a Weaviate
// vector database. Fables live in one class with their embedding
// vectors; similarity search is GraphQL nearVector.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/fablerag/fablerag/internal/rag"
)

// Config holds connection settings for the fable store.
type Config struct {
	Host   string // host:port, e.g. "localhost:8080"
	Scheme string // "http" or "https"
	Class  string // collection class name, e.g. "Fable"
}

// Store is a Weaviate-backed fable retriever.
type Store struct {
	client *weaviate.Client
	class  string
	logger *zap.Logger
}

// passageFields are the class properties fetched for every query.
var passageFields = []graphql.Field{
	{Name: "fableId"},
	{Name: "title"},
	{Name: "content"},
	{Name: "moral"},
	{Name: "language"},
	{Name: "wordCount"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "certainty"},
	}},
}

// Connect builds the client and waits for the cluster to report ready,
// retrying with exponential backoff for up to maxWait. Startup is the
// one place a transient environment (database still booting) gets a
// bounded retry; per-request calls stay single-attempt.
func Connect(ctx context.Context, cfg Config, maxWait time.Duration, logger *zap.Logger) (*Store, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		ready, err := client.Misc().ReadyChecker().Do(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if !ready {
			return struct{}{}, fmt.Errorf("weaviate at %s not ready", cfg.Host)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxWait),
	)
	if err != nil {
		return nil, fmt.Errorf("weaviate at %s unreachable: %w", cfg.Host, err)
	}

	logger.Info("connected to weaviate",
		zap.String("host", cfg.Host),
		zap.String("class", cfg.Class))

	return &Store{client: client, class: cfg.Class, logger: logger}, nil
}

// Search returns the fables nearest to vector in relevance order.
// scoreThreshold > 0 filters results below that certainty.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]rag.Passage, error) {
	near := (&graphql.NearVectorArgumentBuilder{}).WithVector(vector)
	if scoreThreshold > 0 {
		near = near.WithCertainty(float32(scoreThreshold))
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(near).
		WithFields(passageFields...).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search failed: %s", result.Errors[0].Message)
	}

	return s.parsePassages(result.Data)
}

// Get fetches one fable by its numeric identifier.
func (s *Store) Get(ctx context.Context, id int64) (*rag.Passage, error) {
	where := filters.Where().
		WithPath([]string{"fableId"}).
		WithOperator(filters.Equal).
		WithValueInt(id)

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithWhere(where).
		WithFields(passageFields...).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate get failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate get failed: %s", result.Errors[0].Message)
	}

	passages, err := s.parsePassages(result.Data)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return nil, nil
	}
	return &passages[0], nil
}

// Count returns the number of fables in the collection.
func (s *Store) Count(ctx context.Context) (int64, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("weaviate aggregate failed: %s", result.Errors[0].Message)
	}

	agg, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate response shape")
	}
	items, ok := agg[s.class].([]interface{})
	if !ok || len(items) == 0 {
		return 0, fmt.Errorf("class %s missing from aggregate response", s.class)
	}
	item, _ := items[0].(map[string]interface{})
	meta, _ := item["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int64(count), nil
}

// parsePassages converts a GraphQL Get payload into passages,
// preserving the returned order.
func (s *Store) parsePassages(data map[string]models.JSONObject) ([]rag.Passage, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected search response shape")
	}
	items, ok := get[s.class].([]interface{})
	if !ok {
		return []rag.Passage{}, nil
	}

	passages := make([]rag.Passage, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		p := rag.Passage{
			Title:    str(item["title"]),
			Content:  str(item["content"]),
			Moral:    str(item["moral"]),
			Language: str(item["language"]),
		}
		if v, ok := item["fableId"].(float64); ok {
			p.ID = int64(v)
		}
		if v, ok := item["wordCount"].(float64); ok {
			p.WordCount = int(v)
		}
		if add, ok := item["_additional"].(map[string]interface{}); ok {
			if v, ok := add["certainty"].(float64); ok {
				p.Score = v
			}
		}
		passages = append(passages, p)
	}
	return passages, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
