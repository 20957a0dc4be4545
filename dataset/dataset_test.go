package dataset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRecords_IndexKeys(t *testing.T) {
	ds, err := FromRecords([]map[string]any{
		{"id": 1, "data": "test1"},
		{"id": 2, "data": "test2"},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"0", "1"}, ds.Keys())
	assert.Equal(t, []string{"data", "id"}, ds.Columns)
	assert.Equal(t, "test2", ds.Samples[1].String("data"))
	assert.Equal(t, 1, ds.Samples[1].Index)
}

func TestFromRecords_KeyColumn(t *testing.T) {
	ds, err := FromRecords([]map[string]any{
		{"id": "a", "data": "x"},
		{"id": "b", "data": "y"},
	}, "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ds.Keys())

	_, err = FromRecords([]map[string]any{{"id": "a"}, {"id": "a"}}, "id")
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	_, err = FromRecords([]map[string]any{{"data": "x"}}, "id")
	assert.True(t, errors.Is(err, ErrMissingKeyColumn))
}

func TestFromRecords_Empty(t *testing.T) {
	ds, err := FromRecords(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
}

func TestSample_String(t *testing.T) {
	s := Sample{Fields: map[string]any{"n": json.Number("42"), "nil": nil, "s": "text"}}
	assert.Equal(t, "42", s.String("n"))
	assert.Equal(t, "", s.String("nil"))
	assert.Equal(t, "", s.String("missing"))
	assert.Equal(t, "text", s.String("s"))

	v, ok := s.Get("s")
	assert.True(t, ok)
	assert.Equal(t, "text", v)
}

func TestLoadCSV(t *testing.T) {
	input := "id,question,answer\nq1,What?,That\nq2,Why?,Because\n"

	ds, err := LoadCSV(strings.NewReader(input), "id")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "question", "answer"}, ds.Columns)
	assert.Equal(t, []string{"q1", "q2"}, ds.Keys())
	assert.Equal(t, "Because", ds.Samples[1].String("answer"))
}

func TestLoadCSV_HeaderOnly(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader("id,data\n"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.Equal(t, []string{"id", "data"}, ds.Columns)
}

func TestLoadJSONL(t *testing.T) {
	input := `{"id": 7, "text": "first"}

{"id": 8, "text": "second"}
`
	ds, err := LoadJSONL(strings.NewReader(input), "id")
	require.NoError(t, err)

	assert.Equal(t, []string{"7", "8"}, ds.Keys())
	assert.Equal(t, json.Number("8"), ds.Samples[1].Fields["id"])
}

func TestLoadJSONL_Malformed(t *testing.T) {
	_, err := LoadJSONL(strings.NewReader("{not json}\n"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte(`{"text":"one"}`+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.jsonl"), []byte(`{"text":"two"}`+"\n"+`{"text":"three"}`+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("noise"), 0644))

	ds, err := LoadFiles(filepath.Join(dir, "**", "*.jsonl"), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "1", "2"}, ds.Keys())
	assert.Equal(t, "one", ds.Samples[0].String("text"))
	assert.Equal(t, "three", ds.Samples[2].String("text"))
}

func TestLoadFiles_NoMatch(t *testing.T) {
	_, err := LoadFiles(filepath.Join(t.TempDir(), "*.csv"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset files")
}

func TestLoadFile_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.parquet")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := LoadFile(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dataset format")
}
