// internal/retrieval/vector.go
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ErrVectorStoreUnreachable = errors.New("VECTOR_STORE_UNREACHABLE")

// Document is one entry of the metadata corpus held by the vector store.
// Documents are keyed by globally unique ID; upserting an existing ID overwrites.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score,omitempty"`
}

// VectorStore is the nearest-neighbor text search contract the retriever
// depends on. Implementations must return results ranked by score descending.
type VectorStore interface {
	Query(ctx context.Context, text string, topK int) ([]Document, error)
	Upsert(ctx context.Context, docs []Document) error
}

// ElasticStore implements VectorStore over an Elasticsearch index.
type ElasticStore struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticStore(client *elasticsearch.Client, index string) *ElasticStore {
	return &ElasticStore{client: client, index: index}
}

func (s *ElasticStore) Query(ctx context.Context, text string, topK int) ([]Document, error) {
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"text": map[string]interface{}{
					"query": text,
				},
			},
		},
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		Size:  &topK,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreUnreachable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrVectorStoreUnreachable, res.Status())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrVectorStoreUnreachable, err)
	}

	docs := make([]Document, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		var src struct {
			Text     string            `json:"text"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			continue
		}
		docs = append(docs, Document{
			ID:       hit.ID,
			Text:     src.Text,
			Metadata: src.Metadata,
			Score:    hit.Score,
		})
	}
	return docs, nil
}

func (s *ElasticStore) Upsert(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		source := map[string]interface{}{
			"text":     doc.Text,
			"metadata": doc.Metadata,
		}
		body, _ := json.Marshal(source)

		req := esapi.IndexRequest{
			Index:      s.index,
			DocumentID: doc.ID,
			Body:       bytes.NewReader(body),
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVectorStoreUnreachable, err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("%w: upsert %s: %s", ErrVectorStoreUnreachable, doc.ID, res.Status())
		}
	}
	return nil
}

// MemoryStore is an in-process VectorStore ranking documents by token overlap
// with the query. Used in tests and in local mode without a search cluster.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) Upsert(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, text string, topK int) ([]Document, error) {
	queryTokens := Tokenize(text)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		score := overlapScore(queryTokens, strings.ToLower(d.Text))
		if score > 0 {
			d.Score = score
			scored = append(scored, d)
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func overlapScore(queryTokens []string, docText string) float64 {
	matched := 0
	for _, tok := range queryTokens {
		if strings.Contains(docText, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
