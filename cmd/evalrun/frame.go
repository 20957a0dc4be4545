package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/c360studio/evalinstruments/evaluation"
	"github.com/c360studio/evalinstruments/post"
	"github.com/spf13/cobra"
)

type frameOptions struct {
	input   string
	outputs []string
	csv     bool
}

func frameCmd() *cobra.Command {
	opts := &frameOptions{}

	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Tabulate per-criterion outputs of a run",
		Long: `Frame reads the JSON written by "run" and prints one row per sample,
in the order the samples were evaluated, with a column for every criterion
and output name. Each sample output must map criterion names to value
lists such as ["evidence", score].`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var criteriaOutputs []string
			if cmd.Flags().Changed("outputs") {
				criteriaOutputs = opts.outputs
				if criteriaOutputs == nil {
					criteriaOutputs = []string{}
				}
			}
			return renderFrame(cmd.OutOrStdout(), cmd.InOrStdin(), opts, criteriaOutputs)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Results JSON from run (default: stdin)")
	cmd.Flags().StringSliceVar(&opts.outputs, "outputs", nil, "Output names per criterion (default: evidence,score)")
	cmd.Flags().BoolVar(&opts.csv, "csv", false, "Render CSV instead of a table")

	return cmd
}

func renderFrame(w io.Writer, stdin io.Reader, opts *frameOptions, criteriaOutputs []string) error {
	r := stdin
	if opts.input != "" {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("open results: %w", err)
		}
		defer f.Close()
		r = f
	}

	doc := struct {
		Results *evaluation.Results `json:"results"`
	}{Results: evaluation.NewResults()}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}
	if doc.Results == nil {
		doc.Results = evaluation.NewResults()
	}

	frame := post.FrameFromResults(doc.Results, criteriaOutputs)
	if frame.Empty() {
		fmt.Fprintln(w, "no tabular outputs")
		return nil
	}
	if opts.csv {
		frame.RenderCSV(w)
	} else {
		frame.Render(w)
	}
	return nil
}
