package rawlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "evaluation.raw"

// Publisher is the part of a NATS connection the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// flusher is implemented by *nats.Conn.
type flusher interface {
	Flush() error
}

// Entry is the payload published for each sample.
type Entry struct {
	RunID     string         `json:"run_id"`
	RunStart  time.Time      `json:"run_start"`
	SampleKey string         `json:"sample_key"`
	LoggedAt  time.Time      `json:"logged_at"`
	Raw       map[string]any `json:"raw"`
}

// NATSSink publishes raw completions on <prefix>.<run-id>.<key>.
type NATSSink struct {
	pub    Publisher
	prefix   string
	runID    string
	runStart time.Time
	now      func() time.Time
}

// NewNATSSink creates a sink for a run started at runStart with a fresh
// run ID.
func NewNATSSink(pub Publisher, prefix string, runStart time.Time) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{
		pub:      pub,
		prefix:   strings.TrimSuffix(prefix, "."),
		runID:    uuid.New().String(),
		runStart: runStart.UTC(),
		now:      time.Now,
	}
}

// NATSFactory returns a Factory creating a NATSSink per run.
func NATSFactory(pub Publisher, prefix string) Factory {
	return func(runStart time.Time) (Sink, error) {
		if pub == nil {
			return nil, fmt.Errorf("nats sink: no connection")
		}
		return NewNATSSink(pub, prefix, runStart), nil
	}
}

// RunID identifies this run in published subjects.
func (s *NATSSink) RunID() string {
	return s.runID
}

// Subject returns the subject used for a sample key.
func (s *NATSSink) Subject(key string) string {
	// NATS tokens may not contain dots.
	token := strings.ReplaceAll(sanitizeKey(key), ".", "_")
	return fmt.Sprintf("%s.%s.%s", s.prefix, s.runID, token)
}

// Write publishes the raw completion wrapped in an Entry.
func (s *NATSSink) Write(ctx context.Context, key string, raw map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Entry{
		RunID:     s.runID,
		RunStart:  s.runStart,
		SampleKey: key,
		LoggedAt:  s.now().UTC(),
		Raw:       raw,
	})
	if err != nil {
		return fmt.Errorf("marshal raw completion: %w", err)
	}
	if err := s.pub.Publish(s.Subject(key), data); err != nil {
		return fmt.Errorf("publish raw completion: %w", err)
	}
	return nil
}

// Close flushes the connection when it supports flushing.
func (s *NATSSink) Close() error {
	if f, ok := s.pub.(flusher); ok {
		return f.Flush()
	}
	return nil
}
