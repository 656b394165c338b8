package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"hdql/internal/store"
)

// ErrInvalidEntity marks a catalog entry that cannot be stored.
var ErrInvalidEntity = errors.New("invalid catalog entity")

// entityDoc is one catalog entry. Vector is optional; entries without one
// are embedded from their text.
type entityDoc struct {
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	Description string                 `yaml:"description"`
	Attributes  map[string]store.Value `yaml:"attributes"`
	Vector      []float32              `yaml:"vector"`
}

// fileDoc is a catalog file. Type is the default for entries without one.
type fileDoc struct {
	Type     string      `yaml:"type"`
	Entities []entityDoc `yaml:"entities"`
}

// Decode parses a YAML or JSON catalog. The document is either a mapping
// with an "entities" list or a bare list of entities.
func Decode(data []byte) ([]store.Entity, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var doc fileDoc
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		if err := root.Content[0].Decode(&doc.Entities); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		if err := root.Content[0].Decode(&doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("line %d: catalog must be a mapping or a list", root.Content[0].Line)
	}

	out := make([]store.Entity, 0, len(doc.Entities))
	for i, d := range doc.Entities {
		if d.Type == "" {
			d.Type = doc.Type
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("entity %d: %w", i+1, err)
		}
		out = append(out, store.Entity{
			Name:        d.Name,
			Type:        d.Type,
			Description: d.Description,
			Attributes:  d.Attributes,
			Vector:      d.Vector,
		})
	}
	return out, nil
}

func (d entityDoc) validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidEntity)
	case d.Type == "":
		return fmt.Errorf("%w: %s has no type", ErrInvalidEntity, d.Name)
	case strings.ContainsAny(d.Name, `"'*`):
		return fmt.Errorf("%w: name %q may not contain quotes or *", ErrInvalidEntity, d.Name)
	case strings.ContainsAny(d.Type, " \t()\"'"):
		return fmt.Errorf("%w: bad type %q", ErrInvalidEntity, d.Type)
	}
	return nil
}

// embedText is what the embedder sees for an entity without a vector.
func embedText(e *store.Entity) string {
	if e.Description == "" {
		return e.Type + " " + e.Name
	}
	return e.Type + " " + e.Name + ": " + e.Description
}

// contentHash fingerprints everything that ends up in the store, so an
// unchanged entry can be skipped on reload.
func contentHash(e *store.Entity, embedderName string) (string, error) {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return "", err
	}
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, part := range [][]byte{[]byte(embedderName), []byte(e.Type), []byte(e.Name), []byte(e.Description), attrs, vec} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
