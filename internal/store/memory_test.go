package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntities() []Entity {
	return []Entity{
		{Name: "deps-add", Type: "command", Vector: []float32{1, 0, 0}},
		{Name: "deps-remove", Type: "command", Vector: []float32{0.9, 0.1, 0}},
		{Name: "init", Type: "command", Vector: []float32{0, 1, 0}},
		{Name: "deploy-x", Type: "feature", Vector: []float32{0, 0, 1},
			Attributes: map[string]Value{"coverage": Number(0.7)}},
	}
}

func TestNewMemory(t *testing.T) {
	m, err := NewMemory(0, testEntities())
	require.NoError(t, err)
	assert.Equal(t, 3, m.Dimension())
	assert.Equal(t, 4, m.Len())
	assert.Equal(t, []string{"command", "feature"}, m.Types())

	keys := make([]string, 0, m.Len())
	for _, e := range m.Entities() {
		keys = append(keys, e.Key())
	}
	assert.Equal(t, []string{"command:deps-add", "command:deps-remove", "command:init", "feature:deploy-x"}, keys)
}

func TestNewMemoryRejectsBadInput(t *testing.T) {
	_, err := NewMemory(3, []Entity{{Name: "a", Type: "command", Vector: []float32{1, 2}}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewMemory(0, []Entity{
		{Name: "a", Type: "command", Vector: []float32{1}},
		{Name: "a", Type: "command", Vector: []float32{2}},
	})
	require.ErrorIs(t, err, ErrDuplicateEntity)

	_, err = NewMemory(0, []Entity{
		{Name: "a", Type: "command", Vector: []float32{1}},
		{Name: "a", Type: "feature", Vector: []float32{2}},
	})
	require.NoError(t, err, "names only need to be unique within a type")
}

func TestNewMemoryFixesDimensionFromFirstEntity(t *testing.T) {
	_, err := NewMemory(0, []Entity{
		{Name: "a", Type: "command"},
		{Name: "b", Type: "command", Vector: []float32{1, 0, 0}},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewMemory(0, []Entity{
		{Name: "a", Type: "command", Vector: []float32{1, 0, 0}},
		{Name: "b", Type: "command"},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewMemory(0, []Entity{
		{Name: "a", Type: "command", Vector: []float32{1, 0}},
		{Name: "b", Type: "command", Vector: []float32{1, 0, 0}},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	m, err := NewMemory(0, nil)
	require.NoError(t, err)
	assert.Zero(t, m.Dimension())
}

func TestLookup(t *testing.T) {
	m, err := NewMemory(0, testEntities())
	require.NoError(t, err)

	e, ok := m.LookupExact("command", "init")
	require.True(t, ok)
	assert.Equal(t, "init", e.Name)

	_, ok = m.LookupExact("feature", "init")
	assert.False(t, ok)

	got := m.LookupPrefix("command", "dep")
	require.Len(t, got, 2)
	assert.Equal(t, "deps-add", got[0].Name)
	assert.Equal(t, "deps-remove", got[1].Name)

	assert.Empty(t, m.LookupPrefix("command", "zzz"))
	assert.Empty(t, m.LookupPrefix("job", ""))
	assert.Len(t, m.LookupPrefix("command", ""), 3)
	assert.Equal(t, 2, m.EstimateCardinality("command", "dep"))
}

func TestNearest(t *testing.T) {
	m, err := NewMemory(0, testEntities())
	require.NoError(t, err)

	got := m.Nearest([]float32{1, 0, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "command:deps-add", got[0].Name)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "command:deps-remove", got[1].Name)
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(3)
	require.NoError(t, err)
	f, ok := v.Float()
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	v, err = ValueOf("x")
	require.NoError(t, err)
	_, ok = v.Float()
	assert.False(t, ok)
	assert.Equal(t, `"x"`, v.String())

	_, err = ValueOf([]int{1})
	assert.Error(t, err)
}
