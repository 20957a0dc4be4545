package rawlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DirName is the directory created under the base directory for all runs.
const DirName = "evaluation_logs"

// FileSink writes each raw completion to
// <base>/evaluation_logs/<run-start>/<key>_raw_<timestamp>.json.
// The run directory is created on the first write.
type FileSink struct {
	dir     string
	created bool
	now     func() time.Time
}

// NewFileSink creates a sink for a run started at runStart. An empty
// baseDir uses the platform temp directory.
func NewFileSink(baseDir string, runStart time.Time) *FileSink {
	return newFileSink(baseDir, runStart, time.Now)
}

func newFileSink(baseDir string, runStart time.Time, now func() time.Time) *FileSink {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &FileSink{
		dir: filepath.Join(baseDir, DirName, runStart.Format(timestampLayout)),
		now: now,
	}
}

// FileFactory returns a Factory creating a fresh FileSink per run.
func FileFactory(baseDir string) Factory {
	return func(runStart time.Time) (Sink, error) {
		return NewFileSink(baseDir, runStart), nil
	}
}

// Dir returns the run directory. It exists only after the first write.
func (s *FileSink) Dir() string {
	return s.dir
}

// Write stores raw as indented JSON.
func (s *FileSink) Write(_ context.Context, key string, raw map[string]any) error {
	if !s.created {
		if err := os.MkdirAll(s.dir, 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		s.created = true
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal raw completion: %w", err)
	}

	name := fmt.Sprintf("%s_raw_%s.json", sanitizeKey(key), s.now().Format(timestampLayout))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return fmt.Errorf("write raw completion: %w", err)
	}
	return nil
}

// Close is a no-op; every write is flushed to its own file.
func (s *FileSink) Close() error {
	return nil
}
