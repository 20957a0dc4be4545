package prep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360studio/evalinstruments/dataset"
	"github.com/c360studio/evalinstruments/evaluation"
)

var (
	// ErrNoColumn is returned when JSONFromColumn is given no column name.
	ErrNoColumn = errors.New("column must be provided")

	// ErrUnsafeName is returned for column values that would resolve
	// outside the data directory.
	ErrUnsafeName = errors.New("document name must not contain path separators or \"..\"")
)

// DocumentFunc builds a prompt from a side-loaded JSON document.
type DocumentFunc func(ctx context.Context, doc map[string]any) (any, error)

// JSONFromColumn returns a PrepareFunc that reads <dataPath>/<value>.json,
// where value is the sample's column, and hands the decoded object to fn.
// A missing file yields an empty document. Values naming anything other
// than a file directly inside dataPath are rejected with ErrUnsafeName.
func JSONFromColumn(column, dataPath string, fn DocumentFunc) (evaluation.PrepareFunc, error) {
	if column == "" {
		return nil, ErrNoColumn
	}

	return func(ctx context.Context, sample dataset.Sample) (any, error) {
		name := sample.String(column)
		if name == "" {
			return nil, fmt.Errorf("sample %q: column %q is empty", sample.Key, column)
		}
		if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
			return nil, fmt.Errorf("sample %q: %w: %q", sample.Key, ErrUnsafeName, name)
		}

		doc, err := readDocument(filepath.Join(dataPath, name+".json"))
		if err != nil {
			return nil, fmt.Errorf("sample %q: %w", sample.Key, err)
		}
		return fn(ctx, doc)
	}, nil
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}
