package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(content string) (string, error) {
	dir, err := os.MkdirTemp("", "schema-test-*")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "safe_joins.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

const sampleSchemaCSV = `table_id,column,datatype,description
ds.users,id,INT64,primary key
ds.users,name,STRING,display name
ds.orders,user_id,INT64,fk to ds.users.id
ds.orders,amount,FLOAT64,order total
`

func TestParseSchemaCSV_GroupsColumnsByTable(t *testing.T) {
	store, err := parseSchemaCSV(strings.NewReader(sampleSchemaCSV))
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	table, ok := store.Table("ds.users")
	require.True(t, ok)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "id", table.Columns[0].Name)
}

func TestParseSchemaCSV_HasColumn(t *testing.T) {
	store, err := parseSchemaCSV(strings.NewReader(sampleSchemaCSV))
	require.NoError(t, err)

	assert.True(t, store.HasColumn("ds.orders", "amount"))
	assert.True(t, store.HasColumn("ds.orders", "AMOUNT"))
	assert.False(t, store.HasColumn("ds.orders", "nonexistent"))
	assert.False(t, store.HasColumn("ds.unknown", "amount"))
}

func TestParseSchemaCSV_MissingRequiredColumn(t *testing.T) {
	_, err := parseSchemaCSV(strings.NewReader("column,datatype\nid,INT64\n"))
	assert.Error(t, err)
}

func TestLoadSchemaCSV_MissingFile(t *testing.T) {
	_, err := LoadSchemaCSV("/nonexistent/schema.csv")
	assert.Error(t, err)
}

const sampleSafeJoinJSON = `[
  {"left": "ds.users.id", "right": "ds.orders.user_id", "relationship": "one_to_many", "cardinality": "left"}
]`

func TestSafeJoinMap_Find(t *testing.T) {
	m, err := loadSafeJoinMapFromString(sampleSafeJoinJSON)
	require.NoError(t, err)

	edge, ok := m.Find("ds.users.id", "ds.orders.user_id")
	require.True(t, ok)
	assert.Equal(t, OneToMany, edge.Relationship)

	_, ok = m.Find("ds.orders.user_id", "ds.users.id")
	assert.True(t, ok, "edge should be found regardless of argument order")

	_, ok = m.Find("ds.users.id", "ds.orders.id")
	assert.False(t, ok)
}

func TestSafeJoinMap_Between(t *testing.T) {
	m, err := loadSafeJoinMapFromString(sampleSafeJoinJSON)
	require.NoError(t, err)

	edges := m.Between(map[string]bool{"ds.users": true, "ds.orders": true})
	assert.Len(t, edges, 1)

	edges = m.Between(map[string]bool{"ds.users": true})
	assert.Empty(t, edges)
}

func TestSafeJoinMap_Validate_CatchesUnknownColumn(t *testing.T) {
	store, err := parseSchemaCSV(strings.NewReader(sampleSchemaCSV))
	require.NoError(t, err)

	m, err := loadSafeJoinMapFromString(`[{"left":"ds.users.ghost","right":"ds.orders.user_id","relationship":"one_to_many","cardinality":"left"}]`)
	require.NoError(t, err)

	err = m.Validate(store)
	assert.Error(t, err)
}

func TestSafeJoinMap_Validate_PassesForConsistentMap(t *testing.T) {
	store, err := parseSchemaCSV(strings.NewReader(sampleSchemaCSV))
	require.NoError(t, err)

	m, err := loadSafeJoinMapFromString(sampleSafeJoinJSON)
	require.NoError(t, err)

	assert.NoError(t, m.Validate(store))
}

func TestJoinEdge_TableExtraction(t *testing.T) {
	e := JoinEdge{Left: "ds.users.id", Right: "ds.orders.user_id"}
	assert.Equal(t, "ds.users", e.LeftTable())
	assert.Equal(t, "ds.orders", e.RightTable())
}

// loadSafeJoinMapFromString is a small test helper mirroring
// LoadSafeJoinMapJSON without touching the filesystem.
func loadSafeJoinMapFromString(raw string) (*SafeJoinMap, error) {
	tmp, err := writeTempFile(raw)
	if err != nil {
		return nil, err
	}
	return LoadSafeJoinMapJSON(tmp)
}
