// Package usage models token consumption where any of the counters may be
// unknown. Usage values are additive and ordered by their total.
package usage

import (
	"encoding/json"
	"fmt"
)

// Field names as they appear in provider usage payloads.
const (
	FieldPromptTokens     = "prompt_tokens"
	FieldCompletionTokens = "completion_tokens"
	FieldTotalTokens      = "total_tokens"
)

// Counters is implemented by anything exposing the three usage counters.
type Counters interface {
	PromptTokens() Count
	CompletionTokens() Count
	TotalTokens() Count
}

// Usage is a snapshot of prompt, completion and total token counts.
// Construct it with New so the total is resolved; the zero value has every
// counter unknown.
type Usage struct {
	prompt     Count
	completion Count
	total      Count
}

var _ Counters = Usage{}

// New builds a Usage. A known total is kept as given. An unknown total is
// derived from whichever of prompt and completion are known, treating the
// other as zero; with both unknown the total stays unknown.
func New(prompt, completion, total Count) Usage {
	if !total.IsKnown() && (prompt.IsKnown() || completion.IsKnown()) {
		total = Known(prompt.Or(0) + completion.Or(0))
	}
	return Usage{prompt: prompt, completion: completion, total: total}
}

// FromInts builds a Usage from optional ints; nil pointers are unknown.
func FromInts(prompt, completion, total *int) Usage {
	return New(Of(prompt), Of(completion), Of(total))
}

// Total returns a Usage with only the total known, the usual shape of a
// token budget.
func Total(n int) Usage {
	return New(Unknown(), Unknown(), Known(n))
}

// Zero returns a fully known Usage of zero tokens.
func Zero() Usage {
	return New(Known(0), Known(0), Known(0))
}

// PromptTokens returns the consumed input tokens.
func (u Usage) PromptTokens() Count { return u.prompt }

// CompletionTokens returns the consumed output tokens.
func (u Usage) CompletionTokens() Count { return u.completion }

// TotalTokens returns the total tokens.
func (u Usage) TotalTokens() Count { return u.total }

// Add sums two usages field by field. The total is summed directly and
// never re-derived from the summed components.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		prompt:     u.prompt.Plus(other.prompt),
		completion: u.completion.Plus(other.completion),
		total:      u.total.Plus(other.total),
	}
}

// Equal reports whether every counter known on u matches other.
// Unknown counters on u are skipped, so a.Equal(b) need not equal b.Equal(a).
func (u Usage) Equal(other Usage) bool {
	pairs := [][2]Count{
		{u.prompt, other.prompt},
		{u.completion, other.completion},
		{u.total, other.total},
	}
	for _, p := range pairs {
		if p[0].IsKnown() && p[0] != p[1] {
			return false
		}
	}
	return true
}

// Compare orders two usages by total tokens, returning -1, 0 or +1.
// An unknown total sorts before every known total and equals another
// unknown total.
func (u Usage) Compare(other Usage) int {
	a, aok := u.total.Value()
	b, bok := other.total.Value()
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether u's total is below other's.
func (u Usage) Less(other Usage) bool { return u.Compare(other) < 0 }

// LessOrEqual reports whether u's total is at most other's.
func (u Usage) LessOrEqual(other Usage) bool { return u.Compare(other) <= 0 }

// Greater reports whether u's total is above other's.
func (u Usage) Greater(other Usage) bool { return u.Compare(other) > 0 }

// GreaterOrEqual reports whether u's total is at least other's.
func (u Usage) GreaterOrEqual(other Usage) bool { return u.Compare(other) >= 0 }

// Exceeds reports whether u strictly exceeds capacity. Both totals must be
// known; reaching the capacity exactly does not exceed it.
func (u Usage) Exceeds(capacity Usage) bool {
	used, ok := u.total.Value()
	if !ok {
		return false
	}
	limit, ok := capacity.total.Value()
	if !ok {
		return false
	}
	return used > limit
}

// String returns the short form, e.g. "Total Tokens=15".
func (u Usage) String() string {
	return "Total Tokens=" + u.total.String()
}

// GoString returns every counter.
func (u Usage) GoString() string {
	return fmt.Sprintf("Usage(prompt_tokens=%s, completion_tokens=%s, total_tokens=%s)",
		u.prompt, u.completion, u.total)
}

type usageJSON struct {
	PromptTokens     Count `json:"prompt_tokens"`
	CompletionTokens Count `json:"completion_tokens"`
	TotalTokens      Count `json:"total_tokens"`
}

// MarshalJSON encodes the three counters, unknown as null.
func (u Usage) MarshalJSON() ([]byte, error) {
	return json.Marshal(usageJSON{
		PromptTokens:     u.prompt,
		CompletionTokens: u.completion,
		TotalTokens:      u.total,
	})
}

// UnmarshalJSON decodes the three counters and applies the construction rule
// when total_tokens is null or absent.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var raw usageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode usage: %w", err)
	}
	*u = New(raw.PromptTokens, raw.CompletionTokens, raw.TotalTokens)
	return nil
}
