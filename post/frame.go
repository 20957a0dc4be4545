// Package post reshapes evaluation outputs into tables.
package post

import (
	"fmt"
	"io"
	"sort"

	"github.com/c360studio/evalinstruments/evaluation"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

// DefaultCriteriaOutputs names the values each criterion reports.
var DefaultCriteriaOutputs = []string{"evidence", "score"}

// Column identifies a frame column. Output is empty for single-level frames.
type Column struct {
	Criterion string
	Output    string
}

// String renders the column as "criterion" or "criterion/output".
func (c Column) String() string {
	if c.Output == "" {
		return c.Criterion
	}
	return c.Criterion + "/" + c.Output
}

// Frame is a table with one row per sample and one column per criterion,
// or per criterion and output name.
type Frame struct {
	Index   []string
	Columns []Column
	Rows    [][]any
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Index) == 0
}

// MultiLevel reports whether columns carry output names.
func (f *Frame) MultiLevel() bool {
	return len(f.Columns) > 0 && f.Columns[0].Output != ""
}

// Get returns the cell for a sample key and column.
func (f *Frame) Get(key string, col Column) (any, bool) {
	row := lo.IndexOf(f.Index, key)
	c := lo.IndexOf(f.Columns, col)
	if row < 0 || c < 0 {
		return nil, false
	}
	return f.Rows[row][c], true
}

// FrameFromEvals converts per-sample, per-criterion value lists into a
// frame. Each list is paired positionally with criteriaOutputs, which
// defaults to DefaultCriteriaOutputs when nil; extra values are dropped and
// missing ones are nil. With fewer than two output names the columns are
// the criteria and each cell holds the whole list.
//
// A plain map carries no order, so rows are sorted by key. FrameFromResults
// keeps the order of the run instead.
func FrameFromEvals(outputs map[string]map[string][]any, criteriaOutputs []string) *Frame {
	index := lo.Keys(outputs)
	sort.Strings(index)
	return buildFrame(index, outputs, criteriaOutputs)
}

// buildFrame lays out one row per index key, in the order given.
func buildFrame(index []string, outputs map[string]map[string][]any, criteriaOutputs []string) *Frame {
	if len(index) == 0 {
		return &Frame{}
	}
	if criteriaOutputs == nil {
		criteriaOutputs = DefaultCriteriaOutputs
	}

	criteria := lo.Uniq(lo.FlatMap(index, func(key string, _ int) []string {
		return lo.Keys(outputs[key])
	}))
	sort.Strings(criteria)

	frame := &Frame{Index: index}
	if len(criteriaOutputs) < 2 {
		frame.Columns = lo.Map(criteria, func(c string, _ int) Column { return Column{Criterion: c} })
		frame.Rows = lo.Map(index, func(key string, _ int) []any {
			return lo.Map(criteria, func(c string, _ int) any {
				values, ok := outputs[key][c]
				if !ok {
					return nil
				}
				return values
			})
		})
		return frame
	}

	for _, c := range criteria {
		for _, name := range criteriaOutputs {
			frame.Columns = append(frame.Columns, Column{Criterion: c, Output: name})
		}
	}
	frame.Rows = lo.Map(index, func(key string, _ int) []any {
		row := make([]any, 0, len(frame.Columns))
		for _, c := range criteria {
			values := outputs[key][c]
			for i := range criteriaOutputs {
				if i < len(values) {
					row = append(row, values[i])
				} else {
					row = append(row, nil)
				}
			}
		}
		return row
	})
	return frame
}

// FrameFromResults builds a frame from a run whose post-processor returned
// map[string]any outputs of criterion to value list. Rows follow the order
// in which the samples were evaluated. Outputs of any other shape are
// skipped.
func FrameFromResults(results *evaluation.Results, criteriaOutputs []string) *Frame {
	outputs := make(map[string]map[string][]any, results.Len())
	index := make([]string, 0, results.Len())
	results.Range(func(key string, value any) bool {
		criteria, ok := value.(map[string]any)
		if !ok {
			return true
		}
		row := make(map[string][]any, len(criteria))
		for name, v := range criteria {
			switch vals := v.(type) {
			case []any:
				row[name] = vals
			default:
				row[name] = []any{vals}
			}
		}
		outputs[key] = row
		index = append(index, key)
		return true
	})
	return buildFrame(index, outputs, criteriaOutputs)
}

// Render writes the frame as a text table.
func (f *Frame) Render(w io.Writer) {
	if f.Empty() {
		return
	}
	f.writer(w).Render()
}

// RenderCSV writes the frame as CSV.
func (f *Frame) RenderCSV(w io.Writer) {
	if f.Empty() {
		return
	}
	f.writer(w).RenderCSV()
}

func (f *Frame) writer(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	if f.MultiLevel() {
		criteria := lo.Map(f.Columns, func(c Column, _ int) any { return c.Criterion })
		names := lo.Map(f.Columns, func(c Column, _ int) any { return c.Output })
		tw.AppendHeader(append(table.Row{""}, criteria...), table.RowConfig{AutoMerge: true})
		tw.AppendHeader(append(table.Row{""}, names...))
	} else {
		criteria := lo.Map(f.Columns, func(c Column, _ int) any { return c.Criterion })
		tw.AppendHeader(append(table.Row{""}, criteria...))
	}

	for i, key := range f.Index {
		cells := lo.Map(f.Rows[i], func(v any, _ int) any { return formatCell(v) })
		tw.AppendRow(append(table.Row{key}, cells...))
	}
	return tw
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
