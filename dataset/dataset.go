// Package dataset provides the tabular sample collections fed to an
// evaluation run.
package dataset

import (
	"errors"
	"fmt"
	"strconv"
)

// Dataset errors.
var (
	// ErrDuplicateKey is returned when two rows resolve to the same key.
	ErrDuplicateKey = errors.New("duplicate sample key")

	// ErrMissingKeyColumn is returned when a row lacks the key column.
	ErrMissingKeyColumn = errors.New("missing key column")
)

// Sample is one row of a dataset.
type Sample struct {
	// Index is the zero-based row position.
	Index int

	// Key is the primary key, either the key column value or the row index.
	Key string

	// Fields holds the row's named values.
	Fields map[string]any
}

// Get returns a named field.
func (s Sample) Get(name string) (any, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// String returns a named field formatted as text, or "" when absent.
func (s Sample) String(name string) string {
	v, ok := s.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Dataset is an ordered collection of samples.
type Dataset struct {
	// Columns lists field names in first-seen order.
	Columns []string

	// Samples holds the rows in order.
	Samples []Sample
}

// Len returns the number of samples.
func (d Dataset) Len() int {
	return len(d.Samples)
}

// Keys returns sample keys in row order.
func (d Dataset) Keys() []string {
	keys := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		keys[i] = s.Key
	}
	return keys
}

// FromRecords builds a dataset from row maps. When keyColumn is empty the
// row index is the key; otherwise every row must carry keyColumn and its
// values must be unique.
func FromRecords(records []map[string]any, keyColumn string) (Dataset, error) {
	b := newBuilder(keyColumn)
	for _, rec := range records {
		if err := b.add(rec, nil); err != nil {
			return Dataset{}, err
		}
	}
	return b.dataset(), nil
}

// builder accumulates rows while tracking columns and key uniqueness.
type builder struct {
	keyColumn string
	columns   []string
	seenCol   map[string]bool
	seenKey   map[string]bool
	samples   []Sample
}

func newBuilder(keyColumn string) *builder {
	return &builder{
		keyColumn: keyColumn,
		seenCol:   make(map[string]bool),
		seenKey:   make(map[string]bool),
	}
}

// add appends a row. order fixes column order when the source has one.
func (b *builder) add(fields map[string]any, order []string) error {
	if order == nil {
		order = sortedKeys(fields)
	}
	for _, col := range order {
		if !b.seenCol[col] {
			b.seenCol[col] = true
			b.columns = append(b.columns, col)
		}
	}

	index := len(b.samples)
	key := strconv.Itoa(index)
	if b.keyColumn != "" {
		v, ok := fields[b.keyColumn]
		if !ok || v == nil {
			return fmt.Errorf("row %d: %w %q", index, ErrMissingKeyColumn, b.keyColumn)
		}
		key = fmt.Sprint(v)
	}
	if b.seenKey[key] {
		return fmt.Errorf("row %d: %w %q", index, ErrDuplicateKey, key)
	}
	b.seenKey[key] = true

	b.samples = append(b.samples, Sample{Index: index, Key: key, Fields: fields})
	return nil
}

func (b *builder) dataset() Dataset {
	return Dataset{Columns: b.columns, Samples: b.samples}
}
