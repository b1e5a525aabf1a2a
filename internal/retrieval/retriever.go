// internal/retrieval/retriever.go
package retrieval

import (
	"context"
	"strings"
	"time"
	"unicode"

	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/common/metrics"
	"insight-agent/internal/models"
)

// GraphSearcher is the keyword/node lookup contract of the graph store.
type GraphSearcher interface {
	FindNodesByKeyword(tokens []string, max int) []GraphMatch
}

// Retriever produces ranked context for a question: vector store first, graph
// keyword fallback on sparse recall, empty on total failure. Read-only.
type Retriever struct {
	vector VectorStore
	graph  GraphSearcher
	cfg    config.RetrievalConfig
	logger logger.Logger
}

func NewRetriever(vector VectorStore, graph GraphSearcher, cfg config.RetrievalConfig, log logger.Logger) *Retriever {
	return &Retriever{
		vector: vector,
		graph:  graph,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "retriever"}),
	}
}

// Retrieve never returns an error: both sources failing is degraded mode,
// not a fatal condition, and the pipeline proceeds context-free.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) []models.ContextItem {
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	vctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Timeout)*time.Millisecond)
	defer cancel()

	docs, err := r.vector.Query(vctx, question, topK)
	if err != nil {
		r.logger.WithError(err).Warn("vector store query failed, falling back to graph", map[string]interface{}{
			"question": question,
		})
		docs = nil
	}

	if len(docs) >= r.cfg.MinRecall {
		metrics.ContextRetrieved.WithLabelValues("vector").Inc()
		items := make([]models.ContextItem, 0, len(docs))
		for _, d := range docs {
			items = append(items, models.ContextItem{
				Source: models.SourceVector,
				Text:   d.Text,
				Score:  d.Score,
			})
		}
		return items
	}

	tokens := Tokenize(question)
	matches := r.graph.FindNodesByKeyword(tokens, topK)
	if len(matches) > 0 {
		metrics.ContextRetrieved.WithLabelValues("graph").Inc()
		items := make([]models.ContextItem, 0, len(matches))
		for _, m := range matches {
			items = append(items, models.ContextItem{
				Source: models.SourceGraph,
				Text:   m.AssociatedText,
			})
		}
		return items
	}

	// Sparse vector recall beats nothing when the graph also came up empty.
	if len(docs) > 0 {
		metrics.ContextRetrieved.WithLabelValues("vector").Inc()
		items := make([]models.ContextItem, 0, len(docs))
		for _, d := range docs {
			items = append(items, models.ContextItem{
				Source: models.SourceVector,
				Text:   d.Text,
				Score:  d.Score,
			})
		}
		return items
	}

	metrics.ContextRetrieved.WithLabelValues("none").Inc()
	r.logger.Warn("retrieval degraded: no context from vector or graph", map[string]interface{}{
		"question": question,
	})
	return nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "by": true, "for": true,
	"from": true, "how": true, "in": true, "is": true, "of": true, "on": true,
	"or": true, "our": true, "show": true, "the": true, "to": true, "was": true,
	"what": true, "which": true, "with": true,
}

// Tokenize lowercases the question and splits it into keyword tokens,
// dropping stopwords and single characters.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
