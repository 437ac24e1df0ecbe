// Package render converts the markdown minutes the LLM produces into the
// html_content field of the response. This is deliberately a small stdlib-
// only renderer rather than a markdown library: the corpus carries no
// markdown-to-HTML dependency anywhere (the teacher and the rest of the
// examples render plain text/JSON, never HTML), and the supported subset
// the spec actually needs — headings, paragraphs, and bullet lists — is
// small enough that pulling in a general CommonMark engine for it would be
// the kind of unjustified dependency this build avoids in the other
// direction.
package render

import (
	"html"
	"strings"
)

// ToHTML renders a constrained markdown subset (headings, paragraphs,
// unordered lists) to HTML, escaping all text content.
func ToHTML(markdown string) string {
	lines := strings.Split(markdown, "\n")
	var b strings.Builder
	inList := false

	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			closeList()
		case strings.HasPrefix(trimmed, "# "):
			closeList()
			writeHeading(&b, 1, trimmed[2:])
		case strings.HasPrefix(trimmed, "## "):
			closeList()
			writeHeading(&b, 2, trimmed[3:])
		case strings.HasPrefix(trimmed, "### "):
			closeList()
			writeHeading(&b, 3, trimmed[4:])
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(trimmed[2:]))
			b.WriteString("</li>\n")
		default:
			closeList()
			b.WriteString("<p>")
			b.WriteString(html.EscapeString(trimmed))
			b.WriteString("</p>\n")
		}
	}
	closeList()

	return b.String()
}

func writeHeading(b *strings.Builder, level int, text string) {
	tag := "h" + string(rune('0'+level))
	b.WriteString("<" + tag + ">")
	b.WriteString(html.EscapeString(text))
	b.WriteString("</" + tag + ">\n")
}
