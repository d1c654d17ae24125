package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveLexicalIndex_IndexAndSearch_Basic(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		{ID: "1", Content: "select total_revenue from orders where user_id = ?"},
		{ID: "2", Content: "insert into orders values user order creation"},
		{ID: "3", Content: "delete from orders where order_id = ?"},
	}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "orders", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBleveLexicalIndex_Search_FindsSnakeCaseColumns(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "1", Content: "total monthly revenue by user_account_id"}}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "account", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].DocID)

	results, err = idx.Search(context.Background(), "user_account_id", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBleveLexicalIndex_Search_MultiTermRanking(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		{ID: "1", Content: "top customers by total order revenue"},
		{ID: "2", Content: "total shipping cost by region"},
		{ID: "3", Content: "top products by order count"},
	}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "total order revenue", 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 1)
	assert.Equal(t, "1", results[0].DocID)
}

func TestBleveLexicalIndex_Search_IDFAffectsRanking(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		{ID: "1", Content: "orders placed this week"},
		{ID: "2", Content: "orders shipped this week"},
		{ID: "3", Content: "chargeback disputes this week"},
	}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "chargeback", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "3", results[0].DocID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBleveLexicalIndex_Delete_RemovesDocument(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		{ID: "1", Content: "distinct unique exemplar about refunds"},
		{ID: "2", Content: "different exemplar about shipments"},
	}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	err = idx.Delete(context.Background(), []string{"1"})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "refunds", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "shipments", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "2", results[0].DocID)
}

func TestBleveLexicalIndex_Persistence_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "lexical.bleve")

	idx1, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)

	docs := []*Document{{ID: "1", Content: "persistent exemplar about warehouse queries"}}
	err = idx1.Index(context.Background(), docs)
	require.NoError(t, err)

	err = idx1.Close()
	require.NoError(t, err)

	idx2, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	results, err := idx2.Search(context.Background(), "persistent", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "1", results[0].DocID)
}

func TestBleveLexicalIndex_Search_EmptyQuery(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "1", Content: "some exemplar content here"}}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveLexicalIndex_Stats_Accuracy(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		{ID: "1", Content: "top orders"},
		{ID: "2", Content: "top orders this month"},
	}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	stats := idx.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
}

func TestBleveLexicalIndex_Index_EmptyDocs(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Index(context.Background(), []*Document{})
	require.NoError(t, err)

	stats := idx.Stats()
	assert.Equal(t, 0, stats.DocumentCount)
}

func TestBleveLexicalIndex_Index_NilDocs(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Index(context.Background(), nil)
	require.NoError(t, err)
}

func TestBleveLexicalIndex_Close_Idempotent(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)

	err = idx.Close()
	require.NoError(t, err)

	err = idx.Close()
	require.NoError(t, err)
}

func TestBleveLexicalIndex_Search_AfterClose(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)

	docs := []*Document{{ID: "1", Content: "exemplar content"}}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	err = idx.Close()
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), "exemplar", 10)
	assert.Error(t, err)
}

func TestBleveLexicalIndex_Search_MatchedTerms(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "1", Content: "total revenue grouped by region"}}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "total revenue", 10)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].MatchedTerms)
}

func TestBleveLexicalIndex_Delete_NonExistent(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "1", Content: "exemplar content"}}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	err = idx.Delete(context.Background(), []string{"non-existent-id"})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "exemplar", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBleveLexicalIndex_PersistentPath_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "nested", "dir", "lexical.bleve")

	idx, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	_, err = os.Stat(indexPath)
	assert.NoError(t, err)
}

// Tests that Load() is safe during concurrent searches: the implementation
// acquires the lock before swapping the underlying index.
func TestBleveLexicalIndex_ConcurrentLoadAndSearch(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "lexical.bleve")

	idx, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)

	docs := []*Document{{ID: "1", Content: "concurrent exemplar data"}}
	require.NoError(t, idx.Index(context.Background(), docs))
	require.NoError(t, idx.Close())

	idx, err = NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	var wg sync.WaitGroup
	errChan := make(chan error, 100)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := idx.Search(context.Background(), "exemplar", 10)
				if err != nil && err.Error() != "index is closed" {
					errChan <- err
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if err := idx.Load(indexPath); err != nil {
					errChan <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Errorf("concurrent operation error: %v", err)
	}
}

func generateBenchDocs(count, tokensPerDoc int) []*Document {
	docs := make([]*Document, count)
	words := []string{"orders", "revenue", "refund", "shipment", "customer", "region", "discount", "invoice", "tax", "total"}

	for i := 0; i < count; i++ {
		var content string
		for j := 0; j < tokensPerDoc; j++ {
			content += words[j%len(words)] + " "
		}
		docs[i] = &Document{
			ID:      fmt.Sprintf("exemplar-%d", i),
			Content: content,
		}
	}
	return docs
}

func BenchmarkBleveLexicalIndex_Index_1K(b *testing.B) {
	docs := generateBenchDocs(1000, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx, _ := NewBleveLexicalIndex("", DefaultBM25Config())
		_ = idx.Index(context.Background(), docs)
		_ = idx.Close()
	}
}

func BenchmarkBleveLexicalIndex_Search(b *testing.B) {
	idx, _ := NewBleveLexicalIndex("", DefaultBM25Config())
	docs := generateBenchDocs(10000, 100)
	_ = idx.Index(context.Background(), docs)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(context.Background(), "revenue orders", 10)
	}
	_ = idx.Close()
}

// Index corruption detection and recovery tests.

func TestBleveLexicalIndex_CorruptedEmptyMetaJSON(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "lexical.bleve")

	require.NoError(t, os.MkdirAll(indexPath, 0755))
	metaPath := filepath.Join(indexPath, "index_meta.json")
	require.NoError(t, os.WriteFile(metaPath, []byte{}, 0644))

	idx, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "1", Content: "test after recovery"}}
	require.NoError(t, idx.Index(context.Background(), docs))

	results, err := idx.Search(context.Background(), "recovery", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBleveLexicalIndex_CorruptedInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "lexical.bleve")

	require.NoError(t, os.MkdirAll(indexPath, 0755))
	metaPath := filepath.Join(indexPath, "index_meta.json")
	require.NoError(t, os.WriteFile(metaPath, []byte(`{"truncated`), 0644))

	idx, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "1", Content: "test after recovery"}}
	require.NoError(t, idx.Index(context.Background(), docs))

	results, err := idx.Search(context.Background(), "recovery", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBleveLexicalIndex_MissingMetaJSON(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "lexical.bleve")

	require.NoError(t, os.MkdirAll(indexPath, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(indexPath, "store"), 0755))

	idx, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "1", Content: "test after recovery"}}
	require.NoError(t, idx.Index(context.Background(), docs))

	results, err := idx.Search(context.Background(), "recovery", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBleveLexicalIndex_ValidIndexNotCleared(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "lexical.bleve")

	idx, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)

	docs := []*Document{{ID: "1", Content: "original data"}}
	require.NoError(t, idx.Index(context.Background(), docs))
	require.NoError(t, idx.Close())

	idx, err = NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), "original", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "1", results[0].DocID)
}

func TestValidateIndexIntegrity(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, path string)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "non-existent path is valid",
			setup:     func(t *testing.T, path string) {},
			wantError: false,
		},
		{
			name: "valid index is valid",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0755))
				meta := `{"storage":"scorch","index_type":"upside_down"}`
				require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(meta), 0644))
			},
			wantError: false,
		},
		{
			name: "empty meta is corrupt",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0755))
				require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte{}, 0644))
			},
			wantError: true,
			errorMsg:  "empty",
		},
		{
			name: "invalid JSON is corrupt",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0755))
				require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(`{invalid`), 0644))
			},
			wantError: true,
			errorMsg:  "corrupt",
		},
		{
			name: "missing meta in existing dir is corrupt",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0755))
			},
			wantError: true,
			errorMsg:  "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			path := filepath.Join(tmpDir, "test.bleve")

			tt.setup(t, path)

			err := validateIndexIntegrity(path)

			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIsCorruptionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "unexpected end of JSON", err: fmt.Errorf("error parsing mapping JSON: unexpected end of JSON input"), expected: true},
		{name: "failed to load segment", err: fmt.Errorf("unable to load snapshot, failed to load segment: error"), expected: true},
		{name: "error opening bolt", err: fmt.Errorf("error opening bolt segment: file not found"), expected: true},
		{name: "no such file or directory", err: fmt.Errorf("open /path/file.zap: no such file or directory"), expected: true},
		{name: "normal error", err: fmt.Errorf("connection refused"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isCorruptionError(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBleveLexicalIndex_AllIDs_Empty(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBleveLexicalIndex_AllIDs_WithDocuments(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		{ID: "exemplar1", Content: "first exemplar"},
		{ID: "exemplar2", Content: "second exemplar"},
		{ID: "exemplar3", Content: "third exemplar"},
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	idSet := make(map[string]bool)
	for _, id := range ids {
		idSet[id] = true
	}
	assert.True(t, idSet["exemplar1"])
	assert.True(t, idSet["exemplar2"])
	assert.True(t, idSet["exemplar3"])
}

func TestBleveLexicalIndex_AllIDs_AfterDelete(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		{ID: "exemplar1", Content: "first exemplar"},
		{ID: "exemplar2", Content: "second exemplar"},
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	require.NoError(t, idx.Delete(context.Background(), []string{"exemplar1"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, "exemplar2", ids[0])
}

func TestBleveLexicalIndex_AllIDs_ClosedIndex(t *testing.T) {
	idx, err := NewBleveLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)

	require.NoError(t, idx.Close())

	_, err = idx.AllIDs()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestBleveLexicalIndex_Save(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "lexical.bleve")

	idx, err := NewBleveLexicalIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{{ID: "exemplar1", Content: "test content"}}
	require.NoError(t, idx.Index(context.Background(), docs))

	err = idx.Save(indexPath)
	require.NoError(t, err)

	_, err = os.Stat(indexPath)
	require.NoError(t, err)
}
