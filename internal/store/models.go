package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Entity is a named, typed vector. Name is unique within a Type.
// Entities handed out by a store are shared and must not be modified.
type Entity struct {
	Name        string
	Type        string
	Description string
	Attributes  map[string]Value
	Vector      []float32
}

// Key returns the store-wide identity of the entity.
func (e *Entity) Key() string { return Key(e.Type, e.Name) }

// Key joins an entity type and name into a store key ("command:deps").
func Key(entityType, name string) string { return entityType + ":" + name }

// Attr returns the named attribute and whether it is present.
func (e *Entity) Attr(name string) (Value, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// ValueKind tags the payload of a Value.
type ValueKind int

const (
	KindNumber ValueKind = iota + 1
	KindString
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	}
	return "invalid"
}

// Value is a typed entity attribute.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
}

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

// Float returns the numeric payload; ok is false for non-numbers.
func (v Value) Float() (float64, bool) {
	return v.Num, v.Kind == KindNumber
}

// Any returns the payload as a plain Go value.
func (v Value) Any() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	}
	return nil
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return "<invalid>"
}

// ValueOf converts a decoded JSON/YAML scalar into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	}
	return Value{}, fmt.Errorf("unsupported attribute value %v (%T)", x, x)
}

func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Any()) }

func (v *Value) UnmarshalJSON(b []byte) error {
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	val, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func (v Value) MarshalYAML() (any, error) { return v.Any(), nil }

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var x any
	if err := node.Decode(&x); err != nil {
		return err
	}
	val, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// SearchResult is an entity with its cosine distance to a query vector.
type SearchResult struct {
	Entity   Entity
	Distance float64
}
