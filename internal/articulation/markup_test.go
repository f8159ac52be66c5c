package articulation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "halo dunia", "halo dunia"},
		{"escapes", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"bold", "ini **penting** sekali", "ini <b>penting</b> sekali"},
		{"bold underscore", "__tebal__", "<b>tebal</b>"},
		{"italic", "kata *miring* dan _juga_", "kata <i>miring</i> dan <i>juga</i>"},
		{"inline code", "pakai `x < y` saja", "pakai <code>x &lt; y</code> saja"},
		{"fenced", "```go\nif a < b {\n}\n```", "<pre><code>if a &lt; b {\n}</code></pre>"},
		{"fenced without language", "```\nls -la\n```", "<pre><code>ls -la</code></pre>"},
		{"fence wins over emphasis", "```\n**x**\n```", "<pre><code>**x**</code></pre>"},
		{"bullets flattened", "- satu\n- dua\n* tiga", "satu\ndua\ntiga"},
		{"trimmed", "  \n halo \n", "halo"},
		{"empty", "   ", ""},
		{
			"all tokens together",
			"**tebal** & _miring_ < `kode` >\n```\nx < y\n```",
			"<b>tebal</b> &amp; <i>miring</i> &lt; <code>kode</code> &gt;\n<pre><code>x &lt; y</code></pre>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTML(tt.in))
		})
	}
}

func TestToHTMLOneSpanPerToken(t *testing.T) {
	got := ToHTML("**bold** and _em_ and `code` and a fenced block\n```\nif a < b && c > d {}\n```")

	assert.Equal(t, 1, strings.Count(got, "<b>"))
	assert.Equal(t, 1, strings.Count(got, "<i>"))
	assert.Equal(t, 1, strings.Count(got, "<pre><code>"))
	assert.Equal(t, 2, strings.Count(got, "<code>"), "inline span plus the fenced block")
	assert.Contains(t, got, "if a &lt; b &amp;&amp; c &gt; d {}")
	text := StripTags(got)
	assert.NotContains(t, text, "<")
	assert.NotContains(t, text, ">")
}
