package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Schema is a self-describing message type announcement. A payload is a
// schema iff it carries all three of fields, namespace and name.
type Schema struct {
	Name      string                 `mapstructure:"name"`
	Namespace string                 `mapstructure:"namespace"`
	Fields    map[string]interface{} `mapstructure:"fields"`
}

// SchemaRegistry learns message schemas as they arrive. Single writer
// (the listener), many readers.
type SchemaRegistry struct {
	mu      sync.Mutex
	schemas map[string]*Schema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*Schema)}
}

// RegisterIfSchema inspects payload and, when it is a schema document,
// stores it keyed by typeName and returns true (the message is not a
// data message). Non-schema payloads return false untouched.
func (r *SchemaRegistry) RegisterIfSchema(typeName string, payload []byte) (bool, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return false, fmt.Errorf("schema candidate is not JSON: %w", err)
	}
	for _, key := range []string{"fields", "namespace", "name"} {
		if _, ok := doc[key]; !ok {
			return false, nil
		}
	}
	var schema Schema
	if err := mapstructure.Decode(doc, &schema); err != nil {
		return false, fmt.Errorf("malformed schema for %s: %w", typeName, err)
	}
	r.mu.Lock()
	r.schemas[typeName] = &schema
	r.mu.Unlock()
	return true, nil
}

// HasSchema reports whether a schema for typeName has been learned.
func (r *SchemaRegistry) HasSchema(typeName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.schemas[typeName]
	return ok
}

func (r *SchemaRegistry) schema(typeName string) *Schema {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schemas[typeName]
}

// ParsedMessage is one data message bound to its learned schema.
//
// Single-element array unwrap is policy here, applied both when the
// message is built (top-level fields) and at every descent of a dotted
// lookup: a field whose value is a one-element array reads as the
// element inside it. Callers relying on list semantics must not route
// length-1 lists through this type.
type ParsedMessage struct {
	msgType string
	topic   string
	schema  *Schema
	doc     map[string]interface{}
}

func (m *ParsedMessage) Type() string    { return m.msgType }
func (m *ParsedMessage) Topic() string   { return m.topic }
func (m *ParsedMessage) Schema() *Schema { return m.schema }

// BuildParsedMessage constructs a ParsedMessage for a known type,
// unwrapping top-level single-element arrays.
func (r *SchemaRegistry) BuildParsedMessage(typeName, topic string, payload []byte) (*ParsedMessage, error) {
	schema := r.schema(typeName)
	if schema == nil {
		return nil, fmt.Errorf("no schema known for type %s", typeName)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("payload for %s is not JSON: %w", typeName, err)
	}
	for key, value := range doc {
		doc[key] = unwrapSingle(value)
	}
	return &ParsedMessage{
		msgType: typeName,
		topic:   topic,
		schema:  schema,
		doc:     doc,
	}, nil
}

func unwrapSingle(v interface{}) interface{} {
	if arr, ok := v.([]interface{}); ok && len(arr) == 1 {
		return arr[0]
	}
	return v
}

// Lookup walks a dotted path ("a.b.c") through the message document,
// unwrapping single-element arrays at each descent.
func (m *ParsedMessage) Lookup(path string) (interface{}, error) {
	var cursor interface{} = m.doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cursor.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: %q is not an object", m.topic, path)
		}
		next, ok := obj[part]
		if !ok {
			return nil, fmt.Errorf("%s: field %q not found in %q", m.topic, part, path)
		}
		cursor = unwrapSingle(next)
	}
	return cursor, nil
}

// Get reads a typed field at a dotted path. Numeric fields decode from
// JSON as float64 and convert to any numeric T; mismatches fail with a
// descriptive error.
func Get[T any](m *ParsedMessage, path string) (T, error) {
	var zero T
	raw, err := m.Lookup(path)
	if err != nil {
		return zero, err
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}
	// JSON numbers arrive as float64; convert to the requested width.
	if f, ok := raw.(float64); ok {
		var out interface{}
		switch any(zero).(type) {
		case float32:
			out = float32(f)
		case int:
			out = int(f)
		case int32:
			out = int32(f)
		case int64:
			out = int64(f)
		case uint64:
			out = uint64(f)
		}
		if v, ok := out.(T); ok {
			return v, nil
		}
	}
	return zero, fmt.Errorf("%s: field %q has type %T, not %T", m.topic, path, raw, zero)
}
