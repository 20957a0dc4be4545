package evaluation

import (
	"encoding/json"

	"github.com/c360studio/evalinstruments/llm"
	"github.com/c360studio/evalinstruments/usage"
	"github.com/mitchellh/mapstructure"
)

// PostProcessDefault reads an OpenAI-style chat completion. The output is
// the JSON object in choices[0].message.content, or an empty map when the
// content is missing or holds no object. The usage fields are always
// concrete integers: an absent usage block or absent key reads as zero.
// It never returns an error.
func PostProcessDefault(_ string, raw map[string]any) (any, map[string]any, error) {
	return parseContent(raw), usageFields(raw), nil
}

func parseContent(raw map[string]any) map[string]any {
	content, ok := messageContent(raw)
	if !ok {
		return map[string]any{}
	}

	if out := decodeObject(content); out != nil {
		return out
	}
	if extracted := llm.ExtractJSON(content); extracted != "" {
		if out := decodeObject(extracted); out != nil {
			return out
		}
	}
	return map[string]any{}
}

func decodeObject(s string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// messageContent walks choices[0].message.content.
func messageContent(raw map[string]any) (string, bool) {
	var first any
	switch choices := raw["choices"].(type) {
	case []any:
		if len(choices) == 0 {
			return "", false
		}
		first = choices[0]
	case []map[string]any:
		if len(choices) == 0 {
			return "", false
		}
		first = choices[0]
	default:
		return "", false
	}

	choice, ok := first.(map[string]any)
	if !ok {
		return "", false
	}

	switch msg := choice["message"].(type) {
	case map[string]any:
		content, ok := msg["content"].(string)
		return content, ok
	case map[string]string:
		content, ok := msg["content"]
		return content, ok
	default:
		return "", false
	}
}

// usageFields decodes each usage key on its own so one unreadable counter
// does not discard the others; absent or unreadable keys read as zero.
func usageFields(raw map[string]any) map[string]any {
	out := map[string]any{
		usage.FieldPromptTokens:     0,
		usage.FieldCompletionTokens: 0,
		usage.FieldTotalTokens:      0,
	}

	var block map[string]any
	if err := mapstructure.Decode(raw["usage"], &block); err != nil {
		return out
	}
	for key := range out {
		var n int
		if v, ok := block[key]; ok && v != nil {
			if err := mapstructure.WeakDecode(v, &n); err == nil {
				out[key] = n
			}
		}
	}
	return out
}
