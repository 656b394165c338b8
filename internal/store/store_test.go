package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "hdql.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func records(entities []Entity) []Record {
	out := make([]Record, len(entities))
	for i, e := range entities {
		out[i] = Record{Entity: e, Source: "test.yaml", Hash: e.Key()}
	}
	return out
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := openTestStore(t)

	dim, err := s.Dimension()
	require.NoError(t, err)
	assert.Zero(t, dim)

	require.NoError(t, s.UpsertEntities(records(testEntities())))

	dim, err = s.Dimension()
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Len())

	e, ok := snap.LookupExact("feature", "deploy-x")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 0, 1}, e.Vector)
	cov, ok := e.Attributes["coverage"].Float()
	require.True(t, ok)
	assert.Equal(t, 0.7, cov)
}

func TestSQLiteUpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertEntities(records(testEntities())))

	updated := Entity{Name: "init", Type: "command", Description: "new", Vector: []float32{0, 0, 1}}
	require.NoError(t, s.UpsertEntities([]Record{{Entity: updated, Hash: "v2"}}))

	hash, err := s.GetEntityHash("command", "init")
	require.NoError(t, err)
	assert.Equal(t, "v2", hash)

	vec, err := s.Vector("command", "init")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1}, vec)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSQLiteRejectsDimensionChange(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertEntities(records(testEntities())))

	err := s.UpsertEntities([]Record{{Entity: Entity{Name: "x", Type: "job", Vector: []float32{1, 2}}}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteSearch(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertEntities(records(testEntities())))

	results, err := s.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "deps-add", results[0].Entity.Name)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-5)
	assert.Equal(t, "deps-remove", results[1].Entity.Name)
}

func TestSQLiteDeleteAll(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertEntities(records(testEntities())))
	require.NoError(t, s.DeleteAll())

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	// A fresh dimension is accepted after a reset.
	require.NoError(t, s.UpsertEntities([]Record{{Entity: Entity{Name: "x", Type: "job", Vector: []float32{1, 2}}}}))
	dim, err := s.Dimension()
	require.NoError(t, err)
	assert.Equal(t, 2, dim)
}

func TestSQLiteMeta(t *testing.T) {
	s := openTestStore(t)
	v, err := s.GetMeta("embedder")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMeta("embedder", "hash/1000"))
	v, err = s.GetMeta("embedder")
	require.NoError(t, err)
	assert.Equal(t, "hash/1000", v)
}
