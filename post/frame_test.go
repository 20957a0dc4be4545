package post

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/c360studio/evalinstruments/evaluation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluationOutput() map[string]map[string][]any {
	return map[string]map[string][]any{
		"sample1": {
			"criteria1": {"strong evidence", 5, "additional info"},
			"criteria2": {"weak evidence", 2, "notes"},
		},
		"sample2": {
			"criteria1": {"moderate evidence", 3, "more info"},
			"criteria2": {"no evidence", 1, "other notes"},
		},
	}
}

func TestFrameFromEvals_Default(t *testing.T) {
	frame := FrameFromEvals(evaluationOutput(), nil)

	assert.Equal(t, []string{"sample1", "sample2"}, frame.Index)
	assert.Equal(t, []Column{
		{"criteria1", "evidence"}, {"criteria1", "score"},
		{"criteria2", "evidence"}, {"criteria2", "score"},
	}, frame.Columns)
	assert.Equal(t, [][]any{
		{"strong evidence", 5, "weak evidence", 2},
		{"moderate evidence", 3, "no evidence", 1},
	}, frame.Rows)
	assert.True(t, frame.MultiLevel())
}

func TestFrameFromEvals_CustomOutputs(t *testing.T) {
	frame := FrameFromEvals(evaluationOutput(), []string{"explanation", "rating", "notes"})

	require.Len(t, frame.Columns, 6)
	assert.Equal(t, Column{"criteria1", "notes"}, frame.Columns[2])

	v, ok := frame.Get("sample2", Column{"criteria2", "notes"})
	require.True(t, ok)
	assert.Equal(t, "other notes", v)

	v, ok = frame.Get("sample1", Column{"criteria1", "rating"})
	require.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestFrameFromEvals_ShortValuesPadWithNil(t *testing.T) {
	frame := FrameFromEvals(map[string]map[string][]any{
		"a": {"c": {"only evidence"}},
	}, nil)

	v, ok := frame.Get("a", Column{"c", "score"})
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestFrameFromEvals_SingleItem(t *testing.T) {
	frame := FrameFromEvals(map[string]map[string][]any{
		"sample1": {"criteria1": {"evidence", 4}},
	}, nil)

	assert.Equal(t, []string{"sample1"}, frame.Index)
	assert.Equal(t, []Column{{"criteria1", "evidence"}, {"criteria1", "score"}}, frame.Columns)
	assert.Equal(t, [][]any{{"evidence", 4}}, frame.Rows)
}

func TestFrameFromEvals_SingleLevel(t *testing.T) {
	for _, outputs := range [][]string{{}, {"score"}} {
		frame := FrameFromEvals(evaluationOutput(), outputs)

		assert.False(t, frame.MultiLevel())
		assert.Equal(t, []Column{{Criterion: "criteria1"}, {Criterion: "criteria2"}}, frame.Columns)

		v, ok := frame.Get("sample1", Column{Criterion: "criteria2"})
		require.True(t, ok)
		assert.Equal(t, []any{"weak evidence", 2, "notes"}, v)
	}
}

func TestFrameFromEvals_Empty(t *testing.T) {
	assert.True(t, FrameFromEvals(nil, nil).Empty())
	assert.True(t, FrameFromEvals(map[string]map[string][]any{}, nil).Empty())

	var buf bytes.Buffer
	FrameFromEvals(nil, nil).Render(&buf)
	assert.Empty(t, strings.TrimSpace(buf.String()))
}

func TestFrameFromResults(t *testing.T) {
	results := evaluation.NewResults()
	results.Set("b", map[string]any{
		"clarity":  []any{"reads well", float64(4)},
		"accuracy": []any{"one error", float64(3)},
	})
	results.Set("a", map[string]any{"clarity": "bare value"})
	results.Set("skipped", "not a mapping")

	frame := FrameFromResults(results, nil)

	assert.Equal(t, []string{"b", "a"}, frame.Index)
	v, ok := frame.Get("b", Column{"accuracy", "score"})
	require.True(t, ok)
	assert.Equal(t, float64(3), v)

	v, ok = frame.Get("a", Column{"clarity", "evidence"})
	require.True(t, ok)
	assert.Equal(t, "bare value", v)

	v, ok = frame.Get("a", Column{"accuracy", "evidence"})
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestFrameFromResults_KeepsEvaluationOrder(t *testing.T) {
	results := evaluation.NewResults()
	want := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		key := strconv.Itoa(i)
		want = append(want, key)
		results.Set(key, map[string]any{"clarity": []any{"ok", i}})
	}

	frame := FrameFromResults(results, nil)
	assert.Equal(t, want, frame.Index)

	v, ok := frame.Get("10", Column{"clarity", "score"})
	require.True(t, ok)
	assert.Equal(t, 10, v)

	// Plain maps have no order of their own and are sorted by key.
	outputs := make(map[string]map[string][]any, 12)
	for _, key := range want {
		outputs[key] = map[string][]any{"clarity": {"ok"}}
	}
	assert.Equal(t, []string{"0", "1", "10", "11", "2"}, FrameFromEvals(outputs, nil).Index[:5])
}

func TestFrame_Render(t *testing.T) {
	frame := FrameFromEvals(evaluationOutput(), nil)

	var buf bytes.Buffer
	frame.Render(&buf)
	out := strings.ToLower(buf.String())

	for _, want := range []string{"criteria1", "criteria2", "evidence", "score", "sample1", "strong evidence", "no evidence"} {
		assert.Contains(t, out, want)
	}
}

func TestFrame_RenderCSV(t *testing.T) {
	frame := FrameFromEvals(evaluationOutput(), []string{"score"})

	var buf bytes.Buffer
	frame.RenderCSV(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	require.Len(t, lines, 3)
	assert.Contains(t, strings.ToLower(lines[0]), "criteria1")
	assert.True(t, strings.HasPrefix(lines[1], "sample1,"), lines[1])
}

func TestColumn_String(t *testing.T) {
	assert.Equal(t, "clarity", Column{Criterion: "clarity"}.String())
	assert.Equal(t, "clarity/score", Column{"clarity", "score"}.String())
}
