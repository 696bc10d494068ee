// Package evidence renders and orders evidence documents for prompts.
package evidence

import (
	"strconv"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
)

// Format renders documents in the given order as one prompt block:
//
//	[문서 1] 출처: <source>, 섹션: <section>
//	<content>
//
// Missing source renders as "Unknown". The section part is omitted when empty.
func Format(docs []contracts.Document) string {
	var b strings.Builder
	for i, doc := range docs {
		source := doc.Source()
		if source == "" {
			source = "Unknown"
		}

		b.WriteString("[문서 ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] 출처: ")
		b.WriteString(source)
		if section := doc.Section(); section != "" {
			b.WriteString(", 섹션: ")
			b.WriteString(section)
		}
		b.WriteString("\n")
		b.WriteString(doc.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// FormatText is the pass-through case for context already rendered as text
func FormatText(text string) string {
	return text
}
