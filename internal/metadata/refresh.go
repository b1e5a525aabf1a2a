// internal/metadata/refresh.go
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/retrieval"
)

const upsertBatchSize = 100

// CacheFlusher is the slice of the answer cache the refresher needs.
type CacheFlusher interface {
	InvalidateAll(ctx context.Context) error
}

// Refresher reloads the retrieval corpus after the metadata extractor has
// produced a new docs file and graph snapshot, then flushes the answer cache:
// cached answers assume a stable corpus and must not survive a refresh.
type Refresher struct {
	vector retrieval.VectorStore
	graph  *retrieval.Graph
	cache  CacheFlusher
	cfg    config.RetrievalConfig
	logger logger.Logger
}

func NewRefresher(vector retrieval.VectorStore, graph *retrieval.Graph, cache CacheFlusher, cfg config.RetrievalConfig, log logger.Logger) *Refresher {
	return &Refresher{
		vector: vector,
		graph:  graph,
		cache:  cache,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "refresher"}),
	}
}

// Refresh loads the docs corpus into the vector store, reloads the graph
// snapshot, and invalidates all cached answers. Returns the number of
// documents indexed.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	docs, err := loadDocs(r.cfg.DocsPath)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for start := 0; start < len(docs); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := r.vector.Upsert(ctx, docs[start:end]); err != nil {
			return indexed, fmt.Errorf("upsert docs [%d:%d]: %w", start, end, err)
		}
		indexed = end
	}

	if err := r.graph.Load(r.cfg.GraphPath); err != nil {
		// Graph fallback degrades to empty; vector retrieval still works.
		r.logger.WithError(err).Warn("graph snapshot reload failed", map[string]interface{}{
			"path": r.cfg.GraphPath,
		})
	}

	if err := r.cache.InvalidateAll(ctx); err != nil {
		r.logger.WithError(err).Warn("cache invalidation after refresh failed", nil)
	}

	r.logger.Info("metadata refreshed", map[string]interface{}{
		"docsIndexed": indexed,
		"graphNodes":  r.graph.Size(),
	})
	return indexed, nil
}

func loadDocs(path string) ([]retrieval.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read docs corpus: %w", err)
	}

	var docs []retrieval.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse docs corpus: %w", err)
	}
	return docs, nil
}
