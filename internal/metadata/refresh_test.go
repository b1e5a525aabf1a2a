// internal/metadata/refresh_test.go
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/retrieval"
)

type countingFlusher struct{ calls int }

func (f *countingFlusher) InvalidateAll(context.Context) error {
	f.calls++
	return nil
}

func writeDocs(t *testing.T, docs []retrieval.Document) string {
	t.Helper()
	data, err := json.Marshal(docs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "metadata_docs.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeGraphSnapshot(t *testing.T) string {
	t.Helper()
	g := retrieval.NewGraph()
	g.BuildFromMetadata(
		[]retrieval.TableMeta{{Database: "ANALYTICS", Schema: "SALES", Table: "REVENUE_DAILY"}},
		[]retrieval.ColumnMeta{{Database: "ANALYTICS", Schema: "SALES", Table: "REVENUE_DAILY", Column: "TOTAL_SALES", DataType: "NUMBER"}},
	)
	path := filepath.Join(t.TempDir(), "graphdb.json")
	require.NoError(t, g.Save(path))
	return path
}

func TestRefresh_IndexesDocsAndFlushesCache(t *testing.T) {
	docs := []retrieval.Document{
		{ID: "t1", Text: "TABLE ANALYTICS.SALES.REVENUE_DAILY"},
		{ID: "c1", Text: "COLUMN TOTAL_SALES NUMBER"},
	}
	cfg := config.RetrievalConfig{
		DocsPath:  writeDocs(t, docs),
		GraphPath: writeGraphSnapshot(t),
	}

	store := retrieval.NewMemoryStore()
	graph := retrieval.NewGraph()
	flusher := &countingFlusher{}

	r := NewRefresher(store, graph, flusher, cfg, logger.NewTestLogger(t))
	indexed, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, indexed)
	assert.Equal(t, 1, flusher.calls)
	assert.Greater(t, graph.Size(), 0)

	results, err := store.Query(context.Background(), "revenue", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "t1", results[0].ID)
}

func TestRefresh_BatchesLargeCorpus(t *testing.T) {
	docs := make([]retrieval.Document, 250)
	for i := range docs {
		docs[i] = retrieval.Document{ID: fmt.Sprintf("doc-%03d", i), Text: "column description"}
	}
	cfg := config.RetrievalConfig{
		DocsPath:  writeDocs(t, docs),
		GraphPath: filepath.Join(t.TempDir(), "missing.json"),
	}

	r := NewRefresher(retrieval.NewMemoryStore(), retrieval.NewGraph(), &countingFlusher{}, cfg, logger.NewTestLogger(t))
	indexed, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, indexed)
}

func TestRefresh_MissingDocsFileFails(t *testing.T) {
	cfg := config.RetrievalConfig{
		DocsPath:  filepath.Join(t.TempDir(), "nope.json"),
		GraphPath: filepath.Join(t.TempDir(), "nope-graph.json"),
	}

	flusher := &countingFlusher{}
	r := NewRefresher(retrieval.NewMemoryStore(), retrieval.NewGraph(), flusher, cfg, logger.NewTestLogger(t))
	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, flusher.calls)
}
