package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/c360studio/evalinstruments/config"
	"github.com/c360studio/evalinstruments/dataset"
	"github.com/c360studio/evalinstruments/evaluation"
	"github.com/c360studio/evalinstruments/llm"
	"github.com/c360studio/evalinstruments/metrics"
	"github.com/c360studio/evalinstruments/prep"
	"github.com/c360studio/evalinstruments/rawlog"
	"github.com/c360studio/evalinstruments/usage"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	datasetPattern string
	keyColumn      string
	capacity       int
	noLog          bool
	output         string
	natsURL        string
	metricsFile    string
}

// runOutput is the document written after a run.
type runOutput struct {
	Results *evaluation.Results `json:"results"`
	Usage   usage.Usage         `json:"usage"`
	Stopped bool                `json:"stopped_by_capacity"`
}

func runCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a dataset",
		Example: `  evalrun run --dataset 'data/**/*.csv' --key-column id
  evalrun run -c grading.yaml --dataset answers.jsonl --capacity 50000 -o results.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger := newLogger(global.logLevel, cmd.ErrOrStderr())
			cfg, err := config.NewLoader(logger).Load(global.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyRunFlags(cmd, cfg, opts)

			return runEvaluation(ctx, cmd, cfg, opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.datasetPattern, "dataset", "d", "", "Dataset file or glob (.csv, .jsonl)")
	cmd.Flags().StringVar(&opts.keyColumn, "key-column", "", "Primary key column (default: row index)")
	cmd.Flags().IntVar(&opts.capacity, "capacity", 0, "Token capacity for this run, overriding the configured one")
	cmd.Flags().BoolVar(&opts.noLog, "no-log", false, "Do not log raw completions")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write results JSON to this file (default: stdout)")
	cmd.Flags().StringVar(&opts.natsURL, "nats-url", "", "Publish raw completions to this NATS server instead of files")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

// applyRunFlags lets flags override the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	if cmd.Flags().Changed("key-column") {
		cfg.Dataset.KeyColumn = opts.keyColumn
	}
	if opts.noLog {
		off := false
		cfg.Evaluation.LogEnabled = &off
	}
	if opts.natsURL != "" {
		cfg.NATS.URL = opts.natsURL
	}
	if opts.metricsFile != "" {
		cfg.Metrics.Textfile = opts.metricsFile
	}
}

func runEvaluation(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *runOptions, logger *slog.Logger) error {
	ds, err := dataset.LoadFiles(opts.datasetPattern, cfg.Dataset.KeyColumn)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	prepare, err := buildPrepare(cfg)
	if err != nil {
		return err
	}

	client := llm.NewClient(cfg.Endpoint(),
		llm.WithTimeout(cfg.Model.Timeout),
		llm.WithLogger(logger))

	sinks, closeSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ev := evaluation.New(
		evaluation.WithPrepare(prepare),
		evaluation.WithComplete(client.Complete),
		evaluation.WithModelArgs(cfg.ModelArgs()),
		evaluation.WithCapacity(usage.Total(cfg.Evaluation.Capacity)),
		evaluation.WithLogEnabled(cfg.LogEnabled()),
		evaluation.WithSink(sinks),
		evaluation.WithLogger(logger),
		evaluation.WithMetrics(collector),
	)

	var runOpts []evaluation.RunOption
	capacity := usage.Total(cfg.Evaluation.Capacity)
	if cmd.Flags().Changed("capacity") {
		runOpts = append(runOpts, evaluation.WithCapacityOverride(opts.capacity))
		capacity = usage.Total(opts.capacity)
	}

	results, total, runErr := ev.Run(ctx, ds, runOpts...)

	// Crossing the capacity on the last sample skips nothing.
	stopped := runErr == nil && results.Len() < ds.Len() && total.Exceeds(capacity)
	out := runOutput{Results: results, Usage: total, Stopped: stopped}
	if err := writeOutput(cmd.OutOrStdout(), opts.output, out); err != nil {
		return err
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(registry, cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	logger.Info("Evaluation finished",
		"evaluated", results.Len(),
		"samples", ds.Len(),
		"usage", total.GoString())

	return runErr
}

// buildPrepare assembles the prompt pipeline from the prompt section.
func buildPrepare(cfg *config.Config) (evaluation.PrepareFunc, error) {
	template := cfg.Prompt.Template
	if template == "" && cfg.Prompt.TemplateFile != "" {
		data, err := os.ReadFile(cfg.Prompt.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		template = string(data)
	}
	if template == "" {
		return nil, errors.New("prompt.template or prompt.template_file is required")
	}

	var keys []string
	if len(cfg.Prompt.RubricKeys) > 0 {
		keys = cfg.Prompt.RubricKeys
	}
	compile := func(vars map[string]string) string {
		return prep.CompilePrompt(template, vars, cfg.Prompt.Rubrics, keys)
	}

	if cfg.Prompt.JSONColumn != "" {
		return prep.JSONFromColumn(cfg.Prompt.JSONColumn, cfg.Prompt.JSONDir,
			func(_ context.Context, doc map[string]any) (any, error) {
				return prep.UserMessages(cfg.Prompt.System, compile(stringVars(doc))), nil
			})
	}

	return prep.ToUserMessages(cfg.Prompt.System, func(_ context.Context, s dataset.Sample) (string, error) {
		return compile(stringVars(s.Fields)), nil
	}), nil
}

// stringVars formats field values for template substitution.
func stringVars(fields map[string]any) map[string]string {
	vars := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case nil:
			vars[k] = ""
		case string:
			vars[k] = val
		default:
			vars[k] = fmt.Sprint(val)
		}
	}
	return vars
}

// buildSinks picks the raw completion destination. A NATS URL publishes to
// NATS; otherwise completions go to files under the log directory.
func buildSinks(cfg *config.Config) (rawlog.Factory, func(), error) {
	if cfg.NATS.URL == "" || !cfg.LogEnabled() {
		return rawlog.FileFactory(cfg.Evaluation.LogDir), func() {}, nil
	}

	conn, err := nats.Connect(cfg.NATS.URL, nats.Name(appName))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return rawlog.NATSFactory(conn, cfg.NATS.Subject), conn.Close, nil
}

func writeOutput(stdout io.Writer, path string, out runOutput) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
