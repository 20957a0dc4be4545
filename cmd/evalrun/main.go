// Package main provides the evalrun binary entry point.
// Evalrun grades a dataset with an LLM under a token capacity and writes
// the per-sample outputs together with the total usage.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	// Register LLM providers via init()
	_ "github.com/c360studio/evalinstruments/llm/providers"

	"github.com/c360studio/evalinstruments/config"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "evalrun"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Budget-aware LLM evaluation runner",
		Long: `Evalrun sends every sample of a dataset through a prompt, a model
completion and a post-processor, accumulating token usage and stopping
once the configured capacity is exceeded.

Configuration is layered: defaults, ~/.config/evalinstruments/config.yaml,
evalinstruments.yaml in the working directory or a parent, then --config.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(runCmd(opts))
	cmd.AddCommand(frameCmd())
	cmd.AddCommand(initCmd(opts))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func initCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default user config if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.NewLoader(newLogger(global.logLevel, cmd.ErrOrStderr())).EnsureUserConfig()
		},
	}
}

// newLogger builds a text logger at the named level.
func newLogger(logLevel string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
