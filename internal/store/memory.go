package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"hdql/internal/vector"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrDuplicateEntity   = errors.New("duplicate entity")
)

// Store is the read-only view the query engine runs against.
type Store interface {
	// LookupExact returns the entity with the given type and name.
	LookupExact(entityType, name string) (*Entity, bool)
	// LookupPrefix returns all entities of entityType whose name starts with
	// prefix, ordered by name.
	LookupPrefix(entityType, prefix string) []*Entity
	// Entities returns every entity ordered by key.
	Entities() []*Entity
	// Vectors returns every vector keyed by entity key.
	Vectors() map[string][]float32
	// Dimension is the length shared by all vectors.
	Dimension() int
}

// Memory is an immutable in-memory snapshot of named vectors. It is safe
// for concurrent readers; build a new one to change its contents.
type Memory struct {
	dim    int
	byKey  map[string]*Entity
	byType map[string][]*Entity
	all    []*Entity
}

var _ Store = (*Memory)(nil)

// NewMemory builds a snapshot from entities. dim of 0 takes the dimension
// of the first entity. Every vector must be non-empty with exactly dim
// elements.
func NewMemory(dim int, entities []Entity) (*Memory, error) {
	m := &Memory{
		dim:    dim,
		byKey:  make(map[string]*Entity, len(entities)),
		byType: make(map[string][]*Entity),
		all:    make([]*Entity, 0, len(entities)),
	}
	if m.dim == 0 && len(entities) > 0 {
		m.dim = len(entities[0].Vector)
	}
	for i := range entities {
		e := entities[i]
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("%s: empty vector: %w", e.Key(), ErrDimensionMismatch)
		}
		if len(e.Vector) != m.dim {
			return nil, fmt.Errorf("%s: got %d, want %d: %w", e.Key(), len(e.Vector), m.dim, ErrDimensionMismatch)
		}
		key := e.Key()
		if _, ok := m.byKey[key]; ok {
			return nil, fmt.Errorf("%s: %w", key, ErrDuplicateEntity)
		}
		m.byKey[key] = &e
		m.byType[e.Type] = append(m.byType[e.Type], &e)
		m.all = append(m.all, &e)
	}
	for _, list := range m.byType {
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	sort.Slice(m.all, func(i, j int) bool { return m.all[i].Key() < m.all[j].Key() })
	return m, nil
}

func (m *Memory) Dimension() int { return m.dim }

// Len returns the number of entities.
func (m *Memory) Len() int { return len(m.all) }

func (m *Memory) LookupExact(entityType, name string) (*Entity, bool) {
	e, ok := m.byKey[Key(entityType, name)]
	return e, ok
}

func (m *Memory) LookupPrefix(entityType, prefix string) []*Entity {
	list := m.byType[entityType]
	start := sort.Search(len(list), func(i int) bool { return list[i].Name >= prefix })
	var out []*Entity
	for _, e := range list[start:] {
		if !strings.HasPrefix(e.Name, prefix) {
			break
		}
		out = append(out, e)
	}
	return out
}

func (m *Memory) Entities() []*Entity {
	out := make([]*Entity, len(m.all))
	copy(out, m.all)
	return out
}

func (m *Memory) Vectors() map[string][]float32 {
	out := make(map[string][]float32, len(m.all))
	for _, e := range m.all {
		out[e.Key()] = e.Vector
	}
	return out
}

// Types returns the entity types present, sorted.
func (m *Memory) Types() []string {
	types := make([]string, 0, len(m.byType))
	for t := range m.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// EstimateCardinality counts the entities a prefix lookup would return.
func (m *Memory) EstimateCardinality(entityType, prefix string) int {
	return len(m.LookupPrefix(entityType, prefix))
}

// Nearest returns the k entities closest to query by cosine similarity.
func (m *Memory) Nearest(query []float32, k int) []vector.Scored {
	return vector.FindSimilar(query, m.Vectors(), k)
}
