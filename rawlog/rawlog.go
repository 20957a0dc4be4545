// Package rawlog records raw model completions, one entry per sample, so a
// run can be audited after post-processing has discarded the original reply.
package rawlog

import (
	"context"
	"regexp"
	"time"
)

// Sink receives raw completions during one evaluation run.
type Sink interface {
	// Write records the raw completion for a sample.
	Write(ctx context.Context, key string, raw map[string]any) error

	// Close releases the sink at the end of the run.
	Close() error
}

// Factory creates the sink for a run that started at runStart. It is only
// called once a run has a completion to log, so disabled logging never
// touches the destination.
type Factory func(runStart time.Time) (Sink, error)

// timestampLayout is used for run directories and per-sample file names.
const timestampLayout = "20060102_150405.000000000"

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeKey makes a sample key safe for file names and subject tokens.
func sanitizeKey(key string) string {
	clean := unsafeKeyChars.ReplaceAllString(key, "_")
	if clean == "" {
		return "_"
	}
	return clean
}
