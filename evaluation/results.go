package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Results maps sample keys to post-processed outputs, keeping the order in
// which samples were evaluated.
type Results struct {
	keys   []string
	values map[string]any
}

// NewResults returns an empty result set.
func NewResults() *Results {
	return &Results{values: make(map[string]any)}
}

// Set stores the output for key. A new key is appended; an existing key
// keeps its position.
func (r *Results) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Len returns the number of outputs.
func (r *Results) Len() int {
	return len(r.keys)
}

// Keys returns sample keys in evaluation order.
func (r *Results) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Get returns the output for key.
func (r *Results) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Values returns outputs in evaluation order.
func (r *Results) Values() []any {
	out := make([]any, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.values[k]
	}
	return out
}

// Range calls fn for each output in order until fn returns false.
func (r *Results) Range(fn func(key string, value any) bool) {
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// Map returns the outputs as a plain map.
func (r *Results) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the results as a JSON object in evaluation order.
func (r *Results) MarshalJSON() ([]byte, error) {
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
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal output %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping its key order.
func (r *Results) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("results: expected JSON object, got %v", tok)
	}

	out := NewResults()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode output %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = *out
	return nil
}
