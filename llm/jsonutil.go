package llm

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for pulling structured fragments out of model prose.
var (
	// fencePattern matches a markdown code fence at the start of a line,
	// with an optional language tag, or at the end of a line, plus the
	// whitespace around it. Applied with ReplaceAll it unwraps the
	// canonical ```json ... ``` envelope without touching brace content.
	fencePattern = regexp.MustCompile("(?m)^```[a-zA-Z0-9]*\\s*|\\s*```$")

	// specBlockPattern matches the first fenced JSON object in a response:
	// ```json { ... } ```. Non-greedy so prose after the block is ignored.
	specBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")
)

// StripFences removes markdown code-fence lines wrapping a model response and
// trims surrounding whitespace. It returns "" when nothing usable remains.
// Running it on its own output is a no-op.
func StripFences(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
}

// ExtractSpecBlock returns the first fenced JSON object embedded in a model
// response, cleaned of common LLM artifacts (line comments, trailing commas).
// Returns "" when the response carries no fenced object.
func ExtractSpecBlock(content string) string {
	m := specBlockPattern.FindStringSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return CleanJSON(m[1])
}

// CleanJSON removes JavaScript-style line comments and trailing commas, two
// artifacts models regularly produce inside otherwise valid JSON.
func CleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return stripTrailingCommas(strings.Join(lines, "\n"))
}

// stripLineComment drops a // comment from a single line unless the slashes
// sit inside a string literal.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inString {
				i++ // skip the escaped byte
			}
		case '"':
			inString = !inString
		case '/':
			if !inString && i+1 < len(line) && line[i+1] == '/' {
				return strings.TrimRight(line[:i], " \t")
			}
		}
	}
	return line
}

// stripTrailingCommas removes commas that directly precede a closing brace or
// bracket, ignoring intervening whitespace.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
