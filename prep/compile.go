package prep

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// RubricSet is the placeholder replaced by the selected rubrics.
const RubricSet = "RUBRIC_SET"

// rubricSeparator joins rubrics inside the compiled prompt.
const rubricSeparator = "\n\n"

// CompilePrompt fills a prompt pattern. {name} placeholders take their value
// from vars and {RUBRIC_SET} takes the rubrics named by keys, in that order.
// A nil keys selects every rubric in key order. Keys missing from rubrics
// are skipped. Doubled braces are literal braces, and placeholders with no
// value are left untouched.
func CompilePrompt(pattern string, vars map[string]string, rubrics map[string]string, keys []string) string {
	values := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		values[k] = v
	}
	if strings.Contains(pattern, "{"+RubricSet+"}") {
		values[RubricSet] = selectRubrics(rubrics, keys)
	}
	return substitute(pattern, values)
}

func selectRubrics(rubrics map[string]string, keys []string) string {
	if keys == nil {
		keys = lo.Keys(rubrics)
		sort.Strings(keys)
	}

	selected := make([]string, 0, len(keys))
	for _, key := range keys {
		text, ok := rubrics[key]
		if !ok {
			slog.Debug("Requested rubric not found, skipping", "rubric", key)
			continue
		}
		selected = append(selected, text)
	}
	return strings.Join(selected, rubricSeparator)
}

// substitute expands {name} placeholders and {{ }} escapes in one pass.
func substitute(pattern string, values map[string]string) string {
	var b strings.Builder
	b.Grow(len(pattern))

	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '{' && i+1 < len(pattern) && pattern[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(pattern) && pattern[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				b.WriteString(pattern[i:])
				return b.String()
			}
			name := pattern[i+1 : i+1+end]
			if v, ok := values[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(pattern[i : i+2+end])
			}
			i += end + 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
