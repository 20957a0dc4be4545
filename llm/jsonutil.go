package llm

import (
	"regexp"
	"strings"
)

var (
	// fencedObjectPattern matches a JSON object inside a markdown code fence.
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// bareObjectPattern matches the outermost braces anywhere in the text.
	bareObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls a JSON object out of a model reply that wraps it in a
// code fence or surrounding prose, dropping // comments and trailing commas.
// It returns "" when the reply holds no object.
func ExtractJSON(content string) string {
	var raw string
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = bareObjectPattern.FindString(content)
	}
	if raw == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a trailing // comment that sits outside any
// string literal, so URLs inside values survive.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
