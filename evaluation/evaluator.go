// Package evaluation runs datasets through a prepare, complete and
// post-process pipeline while tracking token usage against a capacity.
package evaluation

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360studio/evalinstruments/dataset"
	"github.com/c360studio/evalinstruments/rawlog"
	"github.com/c360studio/evalinstruments/usage"
)

// DefaultCapacity is the total token capacity of a new Evaluator.
const DefaultCapacity = 10000

// PrepareFunc turns a sample into a prompt for the complete function.
type PrepareFunc func(ctx context.Context, sample dataset.Sample) (any, error)

// CompleteFunc obtains a raw completion for a prompt. The result must be a
// map[string]any, a Mapper, or a value that encodes to a JSON object.
type CompleteFunc func(ctx context.Context, prompt any, args map[string]any) (any, error)

// PostProcessFunc extracts the output and usage fields from a raw
// completion. Usage fields use the usage.Field* keys.
type PostProcessFunc func(key string, raw map[string]any) (any, map[string]any, error)

// Evaluator holds the pipeline callables and run settings. It is not safe
// for concurrent use while its setters are being called.
type Evaluator struct {
	prepare     PrepareFunc
	complete    CompleteFunc
	postProcess PostProcessFunc
	modelArgs   map[string]any
	capacity    usage.Usage
	logEnabled  bool
	sinks       rawlog.Factory
	logger      *slog.Logger
	recorder    Recorder
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPrepare sets the prepare function.
func WithPrepare(fn PrepareFunc) Option {
	return func(e *Evaluator) {
		e.prepare = fn
	}
}

// WithComplete sets the complete function.
func WithComplete(fn CompleteFunc) Option {
	return func(e *Evaluator) {
		e.complete = fn
	}
}

// WithPostProcess replaces PostProcessDefault.
func WithPostProcess(fn PostProcessFunc) Option {
	return func(e *Evaluator) {
		e.SetPostProcess(fn)
	}
}

// WithModelArgs sets the arguments forwarded to the complete function.
func WithModelArgs(args map[string]any) Option {
	return func(e *Evaluator) {
		e.SetModelArgs(args)
	}
}

// WithCapacity sets the usage ceiling.
func WithCapacity(capacity usage.Usage) Option {
	return func(e *Evaluator) {
		e.capacity = capacity
	}
}

// WithLogEnabled turns raw completion logging on or off.
func WithLogEnabled(enabled bool) Option {
	return func(e *Evaluator) {
		e.logEnabled = enabled
	}
}

// WithSink sets the factory that creates each run's raw completion sink.
func WithSink(factory rawlog.Factory) Option {
	return func(e *Evaluator) {
		if factory != nil {
			e.sinks = factory
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the recorder notified of run progress.
func WithMetrics(r Recorder) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New creates an Evaluator. Without options it post-processes with
// PostProcessDefault, forwards no model arguments, allows DefaultCapacity
// total tokens and logs raw completions under the temp directory.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		postProcess: PostProcessDefault,
		modelArgs:   map[string]any{},
		capacity:    usage.Total(DefaultCapacity),
		logEnabled:  true,
		sinks:       rawlog.FileFactory(""),
		logger:      slog.Default(),
		recorder:    nopRecorder{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Prepare returns the prepare function.
func (e *Evaluator) Prepare() PrepareFunc { return e.prepare }

// SetPrepare replaces the prepare function.
func (e *Evaluator) SetPrepare(fn PrepareFunc) { e.prepare = fn }

// Complete returns the complete function.
func (e *Evaluator) Complete() CompleteFunc { return e.complete }

// SetComplete replaces the complete function.
func (e *Evaluator) SetComplete(fn CompleteFunc) { e.complete = fn }

// PostProcess returns the post-process function.
func (e *Evaluator) PostProcess() PostProcessFunc { return e.postProcess }

// SetPostProcess replaces the post-process function. nil restores
// PostProcessDefault.
func (e *Evaluator) SetPostProcess(fn PostProcessFunc) {
	if fn == nil {
		fn = PostProcessDefault
	}
	e.postProcess = fn
}

// ModelArgs returns the arguments forwarded to the complete function.
func (e *Evaluator) ModelArgs() map[string]any { return e.modelArgs }

// SetModelArgs replaces the forwarded arguments.
func (e *Evaluator) SetModelArgs(args map[string]any) {
	if args == nil {
		args = map[string]any{}
	}
	e.modelArgs = args
}

// Capacity returns the configured usage ceiling.
func (e *Evaluator) Capacity() usage.Usage { return e.capacity }

// SetCapacity replaces the usage ceiling.
func (e *Evaluator) SetCapacity(capacity usage.Usage) { e.capacity = capacity }

// LogEnabled reports whether raw completions are logged.
func (e *Evaluator) LogEnabled() bool { return e.logEnabled }

// SetLogEnabled turns raw completion logging on or off.
func (e *Evaluator) SetLogEnabled(enabled bool) { e.logEnabled = enabled }

// ToggleLogging flips raw completion logging and returns the new state.
func (e *Evaluator) ToggleLogging() bool {
	e.logEnabled = !e.logEnabled
	return e.logEnabled
}

// RunOption adjusts a single run.
type RunOption func(*runConfig)

type runConfig struct {
	capacity usage.Usage
}

// WithCapacityOverride replaces the configured capacity for one run.
func WithCapacityOverride(total int) RunOption {
	return func(c *runConfig) {
		c.capacity = usage.Total(total)
	}
}

// Run evaluates samples in dataset order and returns the outputs keyed by
// sample key together with the accumulated usage.
//
// After each sample the accumulated total is compared with the capacity;
// once it is strictly greater the run stops, keeping the sample that went
// over. A callable failure, or a usage mapping with an unreadable counter,
// stops the run with a *StageError and the results gathered so far are
// returned alongside it.
func (e *Evaluator) Run(ctx context.Context, ds dataset.Dataset, opts ...RunOption) (*Results, usage.Usage, error) {
	results := NewResults()
	total := usage.Zero()

	if ds.Len() == 0 {
		e.logger.Warn("Empty dataset, nothing to evaluate")
		return results, total, nil
	}
	if e.prepare == nil || e.complete == nil {
		return results, total, ErrNotConfigured
	}

	cfg := runConfig{capacity: e.capacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	var rawLog runLog
	if e.logEnabled {
		rawLog = runLog{factory: e.sinks, logger: e.logger, runStart: time.Now()}
		defer rawLog.close()
	}

	e.logger.Info("Starting evaluation",
		"samples", ds.Len(),
		"capacity", cfg.capacity.TotalTokens().String(),
		"log_enabled", e.logEnabled)

	for _, sample := range ds.Samples {
		if err := ctx.Err(); err != nil {
			return results, total, err
		}

		startedAt := time.Now()

		prompt, err := e.prepare(ctx, sample)
		if err != nil {
			return results, total, &StageError{Stage: StagePrepare, Key: sample.Key, Err: err}
		}

		raw, err := e.complete(ctx, prompt, e.modelArgs)
		if err != nil {
			return results, total, &StageError{Stage: StageComplete, Key: sample.Key, Err: err}
		}
		rawMap, err := normalize(raw)
		if err != nil {
			return results, total, &StageError{Stage: StageComplete, Key: sample.Key, Err: err}
		}

		output, fields, err := e.postProcess(sample.Key, rawMap)
		if err != nil {
			return results, total, &StageError{Stage: StagePostProcess, Key: sample.Key, Err: err}
		}

		sampleUsage, err := usage.FromFields(fields)
		total = total.Add(sampleUsage)
		if err != nil {
			// The counters that did decode were spent and stay in the total.
			return results, total, &StageError{Stage: StagePostProcess, Key: sample.Key, Err: err}
		}

		results.Set(sample.Key, output)
		e.recorder.ObserveSample(sample.Key, sampleUsage, time.Since(startedAt))

		e.logger.Debug("Sample evaluated",
			"key", sample.Key,
			"sample_tokens", sampleUsage.TotalTokens().String(),
			"total_tokens", total.TotalTokens().String())

		if e.logEnabled {
			rawLog.write(ctx, sample.Key, rawMap)
		}

		if total.Exceeds(cfg.capacity) {
			e.logger.Info("Capacity exceeded, stopping evaluation",
				"evaluated", results.Len(),
				"remaining", ds.Len()-results.Len(),
				"total_tokens", total.TotalTokens().String(),
				"capacity", cfg.capacity.TotalTokens().String())
			e.recorder.BudgetStop(total, cfg.capacity)
			break
		}
	}

	return results, total, nil
}

// runLog opens the run's sink on the first write, stamped with the time the
// run started. Sink failures are logged and never abort the run; after a
// failed open nothing more is attempted.
type runLog struct {
	factory  rawlog.Factory
	logger   *slog.Logger
	runStart time.Time
	sink     rawlog.Sink
	failed   bool
}

func (l *runLog) write(ctx context.Context, key string, raw map[string]any) {
	if l.failed {
		return
	}
	if l.sink == nil {
		sink, err := l.factory(l.runStart)
		if err != nil {
			l.failed = true
			l.logger.Warn("Failed to open raw completion log", "error", err)
			return
		}
		l.sink = sink
	}
	if err := l.sink.Write(ctx, key, raw); err != nil {
		l.logger.Warn("Failed to log raw completion", "key", key, "error", err)
	}
}

func (l *runLog) close() {
	if l.sink == nil {
		return
	}
	if err := l.sink.Close(); err != nil {
		l.logger.Warn("Failed to close raw completion log", "error", err)
	}
}
