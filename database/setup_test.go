package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGraphFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func recordById(t *testing.T, records []VertexRecord, id string) VertexRecord {
	t.Helper()
	for _, r := range records {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("no record for vertex %v", id)
	return VertexRecord{}
}

func TestParseInputGraphWeighted(t *testing.T) {
	path := writeGraphFile(t, `
# weighted test graph
S A 1.5
S B 4
A B 1
`)
	records, err := ParseInputGraph(path, "weight")
	require.NoError(t, err)
	require.Len(t, records, 3)

	s := recordById(t, records, "S")
	require.Len(t, s.Edges, 2)
	assert.Equal(t, "A", s.Edges[0].Target)
	assert.Equal(t, 1.5, s.Edges[0].Properties["weight"])
	assert.Equal(t, 4.0, s.Edges[1].Properties["weight"])

	// B only ever appears as a destination, it still gets a record
	b := recordById(t, records, "B")
	assert.Empty(t, b.Edges)
}

func TestParseInputGraphUnweighted(t *testing.T) {
	path := writeGraphFile(t, "S A\nA B\n")

	records, err := ParseInputGraph(path, "")
	require.NoError(t, err)
	s := recordById(t, records, "S")
	require.Len(t, s.Edges, 1)
	assert.Nil(t, s.Edges[0].Properties)
}

func TestParseInputGraphRejectsShortLine(t *testing.T) {
	path := writeGraphFile(t, "S\n")

	_, err := ParseInputGraph(path, "weight")
	assert.Error(t, err)
}

func TestParseInputGraphRejectsBadWeight(t *testing.T) {
	path := writeGraphFile(t, "S A fast\n")

	_, err := ParseInputGraph(path, "weight")
	assert.Error(t, err)
}

func TestCreateBatchesSplitsAtLimit(t *testing.T) {
	vertices := make([]VertexRecord, MAXIMUM_ITEMS_PER_BATCH+3)
	batches := CreateBatches(vertices)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], MAXIMUM_ITEMS_PER_BATCH)
	assert.Len(t, batches[1], 3)
}

func TestCreateBatchesEmpty(t *testing.T) {
	assert.Empty(t, CreateBatches(nil))
}
