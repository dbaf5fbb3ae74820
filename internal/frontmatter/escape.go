package frontmatter

import (
	"regexp"
	"strings"
)

var newlineRun = regexp.MustCompile(`[\r\n]+`)

// blockIndent is the fixed indent used for block scalars.
const blockIndent = "  "

// EscapeValue wraps a display string so it can be embedded after "key: " in a
// YAML template. With multiline set, the value becomes a literal block scalar.
func EscapeValue(value string, multiline bool) string {
	if value == "" {
		return `""`
	}
	if multiline {
		return blockScalar(value)
	}

	value = newlineRun.ReplaceAllString(value, " ")
	if isQuoted(value) {
		return value
	}

	hasDouble := strings.Contains(value, `"`)
	hasSingle := strings.Contains(value, "'")
	switch {
	case hasDouble && hasSingle:
		return doubleQuote(value)
	case hasDouble:
		return "'" + value + "'"
	default:
		return doubleQuote(value)
	}
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return first == last && (first == '"' || first == '\'')
}

func doubleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// blockScalar renders s as "|" followed by indented lines. Clip chomping keeps
// a single trailing newline when parsed.
func blockScalar(s string) string {
	s = strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	lines := strings.Split(s, "\n")
	header := "|"
	if strings.HasPrefix(lines[0], " ") {
		header = "|2"
	}
	var b strings.Builder
	b.WriteString(header)
	for _, l := range lines {
		b.WriteString("\n")
		if l != "" {
			b.WriteString(blockIndent + l)
		}
	}
	return b.String()
}
