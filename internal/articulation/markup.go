package articulation

import (
	"regexp"
	"strings"

	"ghostbot/internal/transport"
)

var (
	// bulletPattern matches a leading list marker. Lists are flattened into
	// prose.
	bulletPattern = regexp.MustCompile(`(?m)^\s*[*\-]\s+`)

	// tokenPattern alternatives are tried in order at each position:
	// fenced code > bold > italic > inline code.
	tokenPattern = regexp.MustCompile("(```(?:[a-zA-Z]+\\n)?[\\s\\S]*?```)|" +
		`(\*\*.*?\*\*|__.*?__)|` +
		`(\*.*?\*|_.*?_)|` +
		"(`.*?`)")

	fenceEdges = regexp.MustCompile("^```[a-zA-Z]*\\n?|```$")
)

// ToHTML converts model markdown into Telegram HTML in a single pass.
// Everything outside recognized tokens is escaped.
func ToHTML(text string) string {
	text = strings.TrimSpace(text)
	text = bulletPattern.ReplaceAllString(text, "")

	var sb strings.Builder
	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		sb.WriteString(transport.EscapeHTML(text[last:start]))
		last = end
		token := text[start:end]

		switch {
		case m[2] >= 0:
			inner := strings.TrimSpace(fenceEdges.ReplaceAllString(token, ""))
			sb.WriteString("<pre><code>" + transport.EscapeHTML(inner) + "</code></pre>")
		case m[4] >= 0:
			sb.WriteString("<b>" + transport.EscapeHTML(strings.Trim(token, "*_")) + "</b>")
		case m[6] >= 0:
			sb.WriteString("<i>" + transport.EscapeHTML(strings.Trim(token, "*_")) + "</i>")
		default:
			sb.WriteString("<code>" + transport.EscapeHTML(strings.Trim(token, "`")) + "</code>")
		}
	}
	sb.WriteString(transport.EscapeHTML(text[last:]))
	return sb.String()
}
