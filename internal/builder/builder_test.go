package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlrag/engine/internal/embedprovider"
	"github.com/sqlrag/engine/internal/index"
)

const sampleCorpusCSV = `query,description,tables,joins
"SELECT SUM(amount) FROM ds.orders","total revenue","ds.orders",
"SELECT u.id FROM ds.users u JOIN ds.orders o ON o.user_id = u.id","users with orders","ds.users,ds.orders","ds.users.id=ds.orders.user_id"
`

const sampleSchemaCSV = `table_id,column,datatype,description
ds.orders,id,INT64,order id
ds.orders,amount,FLOAT64,order amount
ds.users,id,INT64,user id
`

const sampleSafeJoinJSON = `[{"left":"ds.users.id","right":"ds.orders.user_id","relationship":"one_to_many","cardinality":"one_to_many"}]`

func writeFixtures(t *testing.T, dir string) Config {
	t.Helper()

	corpusPath := filepath.Join(dir, "corpus.csv")
	schemaPath := filepath.Join(dir, "schema.csv")
	joinPath := filepath.Join(dir, "safe_joins.json")

	require.NoError(t, os.WriteFile(corpusPath, []byte(sampleCorpusCSV), 0o644))
	require.NoError(t, os.WriteFile(schemaPath, []byte(sampleSchemaCSV), 0o644))
	require.NoError(t, os.WriteFile(joinPath, []byte(sampleSafeJoinJSON), 0o644))

	return Config{
		CorpusCSVPath:    corpusPath,
		SchemaCSVPath:    schemaPath,
		SafeJoinMapPath:  joinPath,
		VectorIndexPath:  filepath.Join(dir, "vector_index.bin"),
		LexicalIndexPath: filepath.Join(dir, "lexical.bleve"),
		VectorStoreConfig: index.VectorStoreConfig{
			Dimensions: 8,
		},
	}
}

func TestBuild_EmbedsAndWritesBothIndices(t *testing.T) {
	// Given two well-formed corpus rows and a matching schema/safe-join pair
	dir := t.TempDir()
	cfg := writeFixtures(t, dir)
	embedder := embedprovider.NewStaticEmbedder(8)

	// When the offline build runs
	result, err := Build(context.Background(), cfg, embedder, nil)

	// Then it embeds every surviving row and writes both index files
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExemplarCount)
	assert.Equal(t, 0, result.DroppedRows)
	assert.Equal(t, 8, result.Dimensions)
	assert.NotEmpty(t, result.Fingerprint)
	assert.FileExists(t, cfg.VectorIndexPath)
	assert.DirExists(t, cfg.LexicalIndexPath)
}

func TestBuild_MissingCorpusFileIsCorpusStage(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFixtures(t, dir)
	cfg.CorpusCSVPath = filepath.Join(dir, "does-not-exist.csv")
	embedder := embedprovider.NewStaticEmbedder(8)

	_, err := Build(context.Background(), cfg, embedder, nil)

	require.Error(t, err)
	var buildErr *Error
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, StageCorpus, buildErr.Stage)
}

func TestBuild_UnvalidatedSafeJoinMapIsConfigStage(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFixtures(t, dir)
	require.NoError(t, os.WriteFile(cfg.SafeJoinMapPath,
		[]byte(`[{"left":"ds.users.id","right":"ds.nope.user_id","relationship":"one_to_many","cardinality":"one_to_many"}]`), 0o644))
	embedder := embedprovider.NewStaticEmbedder(8)

	_, err := Build(context.Background(), cfg, embedder, nil)

	require.Error(t, err)
	var buildErr *Error
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, StageConfig, buildErr.Stage)
}
