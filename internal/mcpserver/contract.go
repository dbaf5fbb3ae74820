package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/marginalia/internal/writer"
)

// FormatContract describes how mirrored files are laid out so LLM consumers
// know which frontmatter keys are owned by the sync and which are theirs.
func FormatContract(baseFolder, trackingProp string, protected []string) string {
	var b strings.Builder
	b.WriteString("# Mirrored Highlights File Format\n\n")
	fmt.Fprintf(&b, "Every remote document is mirrored to `%s/<Category>/<Title>.md`.\n", baseFolder)
	b.WriteString("Categories are capitalized (`Books`, `Articles`, `Podcasts`). Titles have\n")
	b.WriteString("the characters `\\ / : * ? \" < > | # ^ [ ]` removed.\n\n")

	b.WriteString("## Frontmatter\n\n")
	b.WriteString("The sync renders a YAML frontmatter block and merges it over what is on disk.\n")
	b.WriteString("Keys the sync does not render are left untouched, so custom keys survive every pass.\n\n")
	if trackingProp != "" {
		fmt.Fprintf(&b, "- `%s` holds the document identity. Do not edit it: the sync uses it to\n", trackingProp)
		b.WriteString("  find the file after renames and to detect duplicates.\n")
	} else {
		b.WriteString("- File tracking is disabled. Files are matched by path only.\n")
	}
	fmt.Fprintf(&b, "- `%s: true` marks a file that mirrors the same document as another file.\n", writer.DuplicateKey)
	if len(protected) > 0 {
		quoted := make([]string, len(protected))
		for i, p := range protected {
			quoted[i] = "`" + p + "`"
		}
		fmt.Fprintf(&b, "- Protected keys (%s) keep their on-disk value once set.\n", strings.Join(quoted, ", "))
	}

	b.WriteString("\n## Body\n\n")
	b.WriteString("The body is rewritten on every change to the remote document. Put your own\n")
	b.WriteString("notes in frontmatter keys or in separate files.\n")
	return b.String()
}
