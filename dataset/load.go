package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 * 1024 * 1024 // 16MB

// LoadCSV reads a CSV stream whose first record is the header.
// All values are kept as strings.
func LoadCSV(r io.Reader, keyColumn string) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Dataset{}, nil
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("read csv header: %w", err)
	}

	b := newBuilder(keyColumn)
	b.columns = append(b.columns, header...)
	for _, col := range header {
		b.seenCol[col] = true
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		fields := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				fields[col] = record[i]
			}
		}
		if err := b.add(fields, header); err != nil {
			return Dataset{}, err
		}
	}
	return b.dataset(), nil
}

// LoadJSONL reads one JSON object per line. Blank lines are skipped and
// numbers are kept as json.Number.
func LoadJSONL(r io.Reader, keyColumn string) (Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	b := newBuilder(keyColumn)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var fields map[string]any
		if err := dec.Decode(&fields); err != nil {
			return Dataset{}, fmt.Errorf("parse jsonl line %d: %w", line, err)
		}
		if err := b.add(fields, nil); err != nil {
			return Dataset{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Dataset{}, fmt.Errorf("read jsonl: %w", err)
	}
	return b.dataset(), nil
}

// LoadFile reads a .csv, .jsonl or .ndjson file.
func LoadFile(path, keyColumn string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f, keyColumn)
	case ".jsonl", ".ndjson":
		return LoadJSONL(f, keyColumn)
	default:
		return Dataset{}, fmt.Errorf("unsupported dataset format: %s", path)
	}
}

// LoadFiles loads every file matching a doublestar pattern (e.g.
// "data/**/*.jsonl") in lexical order and concatenates them. Row indices
// and index-derived keys run across files.
func LoadFiles(pattern, keyColumn string) (Dataset, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return Dataset{}, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return Dataset{}, fmt.Errorf("no dataset files match %q", pattern)
	}
	sort.Strings(matches)

	b := newBuilder(keyColumn)
	for _, path := range matches {
		part, err := LoadFile(path, keyColumn)
		if err != nil {
			return Dataset{}, err
		}
		for _, s := range part.Samples {
			if err := b.add(s.Fields, part.Columns); err != nil {
				return Dataset{}, fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return b.dataset(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
