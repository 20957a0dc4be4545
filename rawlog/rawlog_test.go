package rawlog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runStart = time.Date(2025, 3, 1, 11, 59, 0, 0, time.UTC)

// tickingClock returns strictly increasing times.
func tickingClock() func() time.Time {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Microsecond)
	}
}

func TestFileSink_LazyDirectory(t *testing.T) {
	base := t.TempDir()
	sink := NewFileSink(base, runStart)

	_, err := os.Stat(sink.Dir())
	assert.True(t, os.IsNotExist(err), "run directory must not exist before the first write")

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSink_OneDirectoryOneFilePerSample(t *testing.T) {
	base := t.TempDir()
	sink := newFileSink(base, runStart, tickingClock())
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, "test_01", map[string]any{"test": "data"}))
	require.NoError(t, sink.Write(ctx, "test_02", map[string]any{"test": "data"}))
	require.NoError(t, sink.Close())

	runs, err := os.ReadDir(filepath.Join(base, DirName))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].IsDir())

	files, err := os.ReadDir(filepath.Join(base, DirName, runs[0].Name()))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, strings.HasPrefix(files[0].Name(), "test_01_raw_"))
	assert.True(t, strings.HasPrefix(files[1].Name(), "test_02_raw_"))
	assert.Equal(t, ".json", filepath.Ext(files[0].Name()))

	data, err := os.ReadFile(filepath.Join(sink.Dir(), files[0].Name()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"test":"data"}`, string(data))
}

func TestFileSink_SanitizesKeys(t *testing.T) {
	sink := newFileSink(t.TempDir(), runStart, tickingClock())
	require.NoError(t, sink.Write(context.Background(), "../etc/passwd", map[string]any{}))

	files, err := os.ReadDir(sink.Dir())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), ".._etc_passwd_raw_"))
}

func TestFileFactory_FreshSinkPerRun(t *testing.T) {
	factory := FileFactory(t.TempDir())

	a, err := factory(runStart)
	require.NoError(t, err)
	b, err := factory(runStart.Add(time.Second))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.(*FileSink).Dir(), b.(*FileSink).Dir())
}

func TestFileSink_DirectoryNamedForRunStart(t *testing.T) {
	base := t.TempDir()
	// Writes happen well after the run started.
	sink := newFileSink(base, runStart, tickingClock())
	require.NoError(t, sink.Write(context.Background(), "0", map[string]any{}))

	assert.Equal(t, filepath.Join(base, DirName, "20250301_115900.000000000"), sink.Dir())
	files, err := os.ReadDir(sink.Dir())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "0_raw_20250301_120000.000001000.json", files[0].Name())
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	flushed  int
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) Flush() error {
	f.flushed++
	return nil
}

func TestNATSSink_PublishesEntries(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "eval.raw.", runStart)

	require.NoError(t, sink.Write(context.Background(), "sample.1", map[string]any{"id": "x"}))
	require.NoError(t, sink.Close())

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "eval.raw."+sink.RunID()+".sample_1", pub.subjects[0])
	assert.Equal(t, 1, pub.flushed)

	var entry Entry
	require.NoError(t, json.Unmarshal(pub.payloads[0], &entry))
	assert.Equal(t, sink.RunID(), entry.RunID)
	assert.True(t, entry.RunStart.Equal(runStart))
	assert.Equal(t, "sample.1", entry.SampleKey)
	assert.Equal(t, map[string]any{"id": "x"}, entry.Raw)
}

func TestNATSSink_DefaultPrefixAndErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("disconnected")}
	sink := NewNATSSink(pub, "", runStart)

	assert.True(t, strings.HasPrefix(sink.Subject("k"), DefaultSubjectPrefix+"."))

	err := sink.Write(context.Background(), "k", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disconnected")

	_, err = NATSFactory(nil, "")(runStart)
	assert.Error(t, err)
}
