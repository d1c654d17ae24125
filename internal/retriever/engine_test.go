package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlrag/engine/internal/index"
)

type fakeVectorIndex struct {
	results     []*index.VectorResult
	fingerprint string
	searchErr   error
	searches    int
	lastSearchK int
}

func (f *fakeVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return nil
}
func (f *fakeVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*index.VectorResult, error) {
	f.searches++
	f.lastSearchK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}
func (f *fakeVectorIndex) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVectorIndex) AllIDs() []string                              { return nil }
func (f *fakeVectorIndex) Contains(id string) bool                       { return false }
func (f *fakeVectorIndex) Count() int                                    { return len(f.results) }
func (f *fakeVectorIndex) Fingerprint() string                           { return f.fingerprint }
func (f *fakeVectorIndex) Save(path string) error                        { return nil }
func (f *fakeVectorIndex) Load(path string) error                        { return nil }
func (f *fakeVectorIndex) Close() error                                  { return nil }

var _ index.VectorIndex = (*fakeVectorIndex)(nil)

type fakeLexicalIndex struct {
	results   []*index.BM25Result
	searchErr error
}

func (f *fakeLexicalIndex) Index(ctx context.Context, docs []*index.Document) error { return nil }
func (f *fakeLexicalIndex) Search(ctx context.Context, query string, limit int) ([]*index.BM25Result, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}
func (f *fakeLexicalIndex) Delete(ctx context.Context, docIDs []string) error { return nil }
func (f *fakeLexicalIndex) AllIDs() ([]string, error)                        { return nil, nil }
func (f *fakeLexicalIndex) Stats() *index.IndexStats                         { return &index.IndexStats{} }
func (f *fakeLexicalIndex) Save(path string) error                           { return nil }
func (f *fakeLexicalIndex) Load(path string) error                           { return nil }
func (f *fakeLexicalIndex) Close() error                                     { return nil }

var _ index.LexicalIndex = (*fakeLexicalIndex)(nil)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func newTestRetriever(t *testing.T, vec *fakeVectorIndex, lex *fakeLexicalIndex, emb *fakeEmbedder, lookup ExemplarLookup, cfg Config) *Retriever {
	t.Helper()
	r, err := New(vec, lex, emb, lookup, cfg, nil)
	require.NoError(t, err)
	return r
}

func TestRetriever_New_RequiresDependencies(t *testing.T) {
	vec := &fakeVectorIndex{}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{}
	lookup := lookupFor()
	cfg := DefaultConfig()

	_, err := New(nil, lex, emb, lookup, cfg, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(vec, nil, emb, lookup, cfg, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(vec, lex, nil, lookup, cfg, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(vec, lex, emb, nil, cfg, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestRetriever_Retrieve_FusesBothSources(t *testing.T) {
	vec := &fakeVectorIndex{
		results:     vecResults([]string{"a", "b"}, []float32{0.9, 0.6}),
		fingerprint: "fp1",
	}
	lex := &fakeLexicalIndex{
		results: lexResults([]string{"a", "c"}, []float64{10, 5}),
	}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a", "b", "c")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "total revenue by customer", 10)
	require.NoError(t, err)
	require.Len(t, result.Results, 3)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 1, emb.calls)
}

func TestRetriever_Retrieve_CachesResults(t *testing.T) {
	vec := &fakeVectorIndex{
		results:     vecResults([]string{"a"}, []float32{0.9}),
		fingerprint: "fp1",
	}
	lex := &fakeLexicalIndex{results: lexResults([]string{"a"}, []float64{10})}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)

	result2, err := r.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.True(t, result2.CacheHit)
	assert.Equal(t, 1, emb.calls, "second call should hit cache, not re-embed")
}

func TestRetriever_Retrieve_TruncatesToK(t *testing.T) {
	vec := &fakeVectorIndex{
		results:     vecResults([]string{"a", "b", "c"}, []float32{0.9, 0.8, 0.7}),
		fingerprint: "fp1",
	}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a", "b", "c")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
	assert.Equal(t, "a", result.Results[0].Exemplar.ID)
}

func TestRetriever_Retrieve_VectorSearchErrorPropagates(t *testing.T) {
	vec := &fakeVectorIndex{searchErr: assertError("boom")}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor()

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q", 5)
	assert.Error(t, err)
}

func TestRetriever_Retrieve_EmbedErrorPropagates(t *testing.T) {
	vec := &fakeVectorIndex{}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{err: assertError("embed failed")}
	lookup := lookupFor()

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q", 5)
	assert.Error(t, err)
}

func TestRetriever_SetIndexFingerprint_InvalidatesCache(t *testing.T) {
	vec := &fakeVectorIndex{
		results:     vecResults([]string{"a"}, []float32{0.9}),
		fingerprint: "fp1",
	}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, r.cache.Len())

	r.SetIndexFingerprint("fp2")
	assert.Equal(t, 0, r.cache.Len())
}

func TestRetriever_Retrieve_EmptyQuerySkipsEmbedding(t *testing.T) {
	vec := &fakeVectorIndex{}
	lex := &fakeLexicalIndex{results: lexResults([]string{"a"}, []float64{5})}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, emb.calls)
}

func TestRetriever_Retrieve_CandidateKFloorsAt20(t *testing.T) {
	vec := &fakeVectorIndex{
		results:     vecResults([]string{"a"}, []float32{0.9}),
		fingerprint: "fp1",
	}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q", 4)
	require.NoError(t, err)
	assert.Equal(t, 20, vec.lastSearchK, "candidateK must be max(k, 20), not k itself")
}

func TestRetriever_Retrieve_CandidateKPassesThroughAboveFloor(t *testing.T) {
	vec := &fakeVectorIndex{
		results:     vecResults([]string{"a"}, []float32{0.9}),
		fingerprint: "fp1",
	}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, vec.lastSearchK)
}

func TestRetriever_Retrieve_ExplicitZeroSkipsBothIndexes(t *testing.T) {
	vec := &fakeVectorIndex{results: vecResults([]string{"a"}, []float32{0.9})}
	lex := &fakeLexicalIndex{results: lexResults([]string{"a"}, []float64{5})}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a")

	r := newTestRetriever(t, vec, lex, emb, lookup, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, 0, vec.searches)
	assert.Equal(t, 0, emb.calls)
}

func TestRetriever_Retrieve_NegativeKFallsBackToDefault(t *testing.T) {
	vec := &fakeVectorIndex{results: vecResults([]string{"a"}, []float32{0.9})}
	lex := &fakeLexicalIndex{}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	lookup := lookupFor("a")

	cfg := DefaultConfig()
	cfg.DefaultK = 3
	r := newTestRetriever(t, vec, lex, emb, lookup, cfg)

	result, err := r.Retrieve(context.Background(), "q", -1)
	require.NoError(t, err)
	assert.Equal(t, 3, result.K)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func assertError(msg string) error { return assertErr{msg: msg} }
