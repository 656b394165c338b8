package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const metaDimension = "dimension"

// Record is an entity as persisted, with the catalog file it came from and
// a content hash used to skip unchanged entities on reload.
type Record struct {
	Entity Entity
	Source string
	Hash   string
}

// SQLiteStore persists entities in SQLite with vectors in a sqlite-vec
// vec0 table. Queries never run against it directly; Snapshot loads an
// immutable Memory for the engine.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and initializes the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Dimension returns the vector width recorded for this database, or 0 if
// nothing has been stored yet.
func (s *SQLiteStore) Dimension() (int, error) {
	v, err := s.GetMeta(metaDimension)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}

// GetEntityHash returns the stored hash for an entity, or "" if absent.
func (s *SQLiteStore) GetEntityHash(entityType, name string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT hash FROM entities WHERE type = ? AND name = ?", entityType, name).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// UpsertEntities inserts or replaces a batch of entities and their vectors
// in one transaction. The first batch fixes the database dimension.
func (s *SQLiteStore) UpsertEntities(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	dim, err := s.Dimension()
	if err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if dim == 0 {
		dim = len(records[0].Entity.Vector)
		if err := initVec(tx, dim); err != nil {
			return fmt.Errorf("create vector table: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			metaDimension, strconv.Itoa(dim),
		); err != nil {
			return err
		}
	}

	for _, r := range records {
		e := r.Entity
		if len(e.Vector) != dim {
			return fmt.Errorf("%s: got %d, want %d: %w", e.Key(), len(e.Vector), dim, ErrDimensionMismatch)
		}
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes for %s: %w", e.Key(), err)
		}
		if e.Attributes == nil {
			attrs = []byte("{}")
		}

		var id int64
		err = tx.QueryRow("SELECT id FROM entities WHERE type = ? AND name = ?", e.Type, e.Name).Scan(&id)
		switch {
		case err == nil:
			if _, err := tx.Exec("DELETE FROM vec_entities WHERE entity_id = ?", id); err != nil {
				return err
			}
			_, err = tx.Exec(
				"UPDATE entities SET description = ?, attributes = ?, source = ?, hash = ?, loaded_at = CURRENT_TIMESTAMP WHERE id = ?",
				e.Description, string(attrs), r.Source, r.Hash, id,
			)
			if err != nil {
				return err
			}
		case err == sql.ErrNoRows:
			res, err := tx.Exec(
				"INSERT INTO entities (type, name, description, attributes, source, hash) VALUES (?, ?, ?, ?, ?, ?)",
				e.Type, e.Name, e.Description, string(attrs), r.Source, r.Hash,
			)
			if err != nil {
				return err
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
		default:
			return err
		}

		blob, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return fmt.Errorf("serialize vector for %s: %w", e.Key(), err)
		}
		if _, err := tx.Exec("INSERT INTO vec_entities (entity_id, embedding) VALUES (?, ?)", id, blob); err != nil {
			return fmt.Errorf("insert vector for %s: %w", e.Key(), err)
		}
	}
	return tx.Commit()
}

// Snapshot loads every entity into an immutable Memory store.
func (s *SQLiteStore) Snapshot() (*Memory, error) {
	dim, err := s.Dimension()
	if err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	if dim == 0 {
		return NewMemory(0, nil)
	}

	rows, err := s.db.Query(`
		SELECT e.type, e.name, e.description, e.attributes, v.embedding
		FROM entities e
		JOIN vec_entities v ON v.entity_id = e.id
		ORDER BY e.type, e.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var (
			e     Entity
			attrs string
			blob  []byte
		)
		if err := rows.Scan(&e.Type, &e.Name, &e.Description, &attrs, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes for %s: %w", e.Key(), err)
		}
		e.Vector = deserializeFloat32(blob)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewMemory(dim, entities)
}

// Search finds the k entities closest to query using the vec0 KNN index.
func (s *SQLiteStore) Search(query []float32, k int) ([]SearchResult, error) {
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}
	rows, err := s.db.Query(`
		SELECT v.distance, e.type, e.name, e.description, e.attributes
		FROM vec_entities v
		JOIN entities e ON e.id = v.entity_id
		WHERE v.embedding MATCH ?
		ORDER BY v.distance
		LIMIT ?
	`, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r     SearchResult
			attrs string
		)
		if err := rows.Scan(&r.Distance, &r.Entity.Type, &r.Entity.Name, &r.Entity.Description, &attrs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &r.Entity.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes for %s: %w", r.Entity.Key(), err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Vector returns the stored vector of one entity.
func (s *SQLiteStore) Vector(entityType, name string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRow(`
		SELECT v.embedding FROM vec_entities v
		JOIN entities e ON e.id = v.entity_id
		WHERE e.type = ? AND e.name = ?
	`, entityType, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s not found", Key(entityType, name))
	}
	if err != nil {
		return nil, err
	}
	return deserializeFloat32(blob), nil
}

// Count returns the number of stored entities.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&n)
	return n, err
}

// GetMeta returns a metadata value by key, or "" if not set.
func (s *SQLiteStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMeta sets a metadata key-value pair.
func (s *SQLiteStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// DeleteAll removes every entity and vector and forgets the dimension, so
// the next load may use a different embedder.
func (s *SQLiteStore) DeleteAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DROP TABLE IF EXISTS vec_entities"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM entities"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM meta WHERE key = ?", metaDimension); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// deserializeFloat32 is the inverse of sqlite_vec.SerializeFloat32
// (little-endian float32s).
func deserializeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
