package core

import (
	"bytes"
	"encoding/json"
)

// Record is one structured row: an ordered mapping from column title to
// value. Keys keep insertion order, which the builder sets to the resolved
// column order. JSON encoding preserves that order.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record with room for n keys.
func NewRecord(n int) Record {
	return Record{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set stores v under key. Setting an existing key replaces its value and
// keeps its original position.
func (r *Record) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value for key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in order. The returned slice must not be modified.
func (r Record) Keys() []string {
	return r.keys
}

// Len returns the number of keys.
func (r Record) Len() int {
	return len(r.keys)
}

// Map returns an unordered copy of the record.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the record as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
