package frontmatter

import "strings"

// EnsureTrackingProperty rewrites a rendered YAML block so that the line
// "prop: value" appears exactly once. The first occurrence keeps its position;
// other occurrences (with their indented continuation lines) are removed. If
// the template omitted the property it is appended.
func EnsureTrackingProperty(text, prop, value string) string {
	line := prop + ": " + value
	src := strings.Split(strings.TrimRight(text, "\n"), "\n")
	out := make([]string, 0, len(src)+1)
	inserted := false
	skipping := false

	for _, l := range src {
		if skipping {
			if isContinuation(l) {
				continue
			}
			skipping = false
		}
		if isKeyLine(l, prop) {
			skipping = true
			if !inserted {
				out = append(out, line)
				inserted = true
			}
			continue
		}
		out = append(out, l)
	}
	if !inserted {
		if len(out) == 1 && out[0] == "" {
			out = out[:0]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n") + "\n"
}

func isKeyLine(l, prop string) bool {
	if !strings.HasPrefix(l, prop) {
		return false
	}
	rest := strings.TrimLeft(l[len(prop):], " \t")
	return strings.HasPrefix(rest, ":")
}

func isContinuation(l string) bool {
	return strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t") || strings.HasPrefix(l, "- ") || l == "-"
}
