package articulation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"ghostbot/internal/transport"

	"golang.org/x/net/html"
)

// DefaultMessageLimit is the transport's per-message text limit.
const DefaultMessageLimit = 4096

var (
	codeBlockPattern = regexp.MustCompile(`(?s)<pre><code>.*?</code></pre>`)
	tagPattern       = regexp.MustCompile(`<[^>]+>`)
)

const (
	codeOpen  = "<pre><code>"
	codeClose = "</code></pre>"
)

// Split cuts markup into chunks of at most limit runes.
//
// Code blocks are kept whole unless they exceed the limit on their own, in
// which case they are cut into ceil(len/limit) equal pieces, each rewrapped
// in its code tags. Other text is cut only between tags; every chunk reopens
// the tags left open by the previous one and closes its own, so each chunk
// is well-formed by itself.
func Split(markup string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if utf8.RuneCountInString(markup) <= limit {
		return []string{markup}
	}

	c := &chunker{limit: limit}
	last := 0
	for _, loc := range codeBlockPattern.FindAllStringIndex(markup, -1) {
		c.text(markup[last:loc[0]])
		c.code(markup[loc[0]:loc[1]])
		last = loc[1]
	}
	c.text(markup[last:])
	c.flush()
	if len(c.chunks) == 0 {
		return []string{markup}
	}
	return c.chunks
}

type chunker struct {
	limit  int
	chunks []string
	cur    strings.Builder
	length int      // runes in cur
	body   bool     // cur holds more than reopened tags
	open   []string // open tags, outermost first
}

func runes(s string) int { return utf8.RuneCountInString(s) }

func (c *chunker) closers() string {
	var sb strings.Builder
	for i := len(c.open) - 1; i >= 0; i-- {
		sb.WriteString("</" + tagName(c.open[i]) + ">")
	}
	return sb.String()
}

func (c *chunker) room() int {
	return c.limit - c.length - runes(c.closers())
}

func (c *chunker) write(s string) {
	c.cur.WriteString(s)
	c.length += runes(s)
}

// flush ends the current chunk and starts the next with the open tags.
func (c *chunker) flush() {
	if c.body {
		c.cur.WriteString(c.closers())
		c.chunks = append(c.chunks, c.cur.String())
	}
	c.cur.Reset()
	c.length = 0
	c.body = false
	c.write(strings.Join(c.open, ""))
}

func (c *chunker) code(block string) {
	n := runes(block)
	if n <= c.limit {
		if n > c.room() {
			c.flush()
		}
		c.write(block)
		c.body = true
		return
	}

	c.flush()
	c.chunks = append(c.chunks, splitCode(block, c.limit)...)
}

// splitCode cuts an oversized code block into the fewest equal pieces that
// fit the limit once escaped and rewrapped.
func splitCode(block string, limit int) []string {
	inner := []rune(html.UnescapeString(block[len(codeOpen) : len(block)-len(codeClose)]))
	budget := max(limit-runes(codeOpen+codeClose), 1)
	pieces := max((runes(block)-runes(codeOpen+codeClose)+budget-1)/budget, 1)
	for ; pieces <= len(inner); pieces++ {
		if out, ok := cutCode(inner, pieces, budget); ok {
			return out
		}
	}
	out, _ := cutCode(inner, max(len(inner), 1), budget)
	return out
}

func cutCode(inner []rune, pieces, budget int) ([]string, bool) {
	size := (len(inner) + pieces - 1) / pieces
	out := make([]string, 0, pieces)
	for start := 0; start < len(inner); start += size {
		end := min(start+size, len(inner))
		escaped := transport.EscapeHTML(string(inner[start:end]))
		if runes(escaped) > budget {
			return nil, false
		}
		out = append(out, codeOpen+escaped+codeClose)
	}
	return out, true
}

func (c *chunker) text(segment string) {
	last := 0
	for _, loc := range tagPattern.FindAllStringIndex(segment, -1) {
		c.plain(segment[last:loc[0]])
		c.tag(segment[loc[0]:loc[1]])
		last = loc[1]
	}
	c.plain(segment[last:])
}

func (c *chunker) tag(t string) {
	closing := strings.HasPrefix(t, "</")
	opening := !closing && !strings.HasSuffix(t, "/>")
	if !closing {
		need := runes(t)
		if opening {
			need += runes("</" + tagName(t) + ">")
		}
		if need > c.room() && c.body {
			c.flush()
		}
	}
	if opening {
		c.write(t)
		c.open = append(c.open, t)
		return
	}
	name := tagName(t)
	for i := len(c.open) - 1; i >= 0; i-- {
		if tagName(c.open[i]) == name {
			c.open = append(c.open[:i], c.open[i+1:]...)
			break
		}
	}
	if closing && !c.body {
		// Only open tags so far: drop the pair instead of emitting an
		// empty element.
		c.cur.Reset()
		c.length = 0
		c.write(strings.Join(c.open, ""))
		return
	}
	c.write(t)
	c.body = true
}

func (c *chunker) plain(s string) {
	for s != "" {
		head, tail := cutText(s, c.room(), !c.body)
		if head == "" {
			if c.body {
				c.flush()
				continue
			}
			// A fresh chunk must always make progress.
			n := firstUnit(s)
			head, tail = s[:n], s[n:]
		}
		c.write(head)
		c.body = true
		s = tail
		if s != "" {
			c.flush()
		}
	}
}

// cutText returns the longest prefix of s within room runes that ends at a
// line or word break and does not split an HTML entity. Only a fresh chunk
// may be cut mid-word.
func cutText(s string, room int, fresh bool) (string, string) {
	if room <= 0 {
		return "", s
	}
	if runes(s) <= room {
		return s, ""
	}
	idx := 0
	for i := 0; i < room; i++ {
		_, size := utf8.DecodeRuneInString(s[idx:])
		idx += size
	}
	prefix := s[:idx]
	switch {
	case strings.LastIndexByte(prefix, '\n') >= 0:
		idx = strings.LastIndexByte(prefix, '\n') + 1
	case strings.LastIndexByte(prefix, ' ') >= 0:
		idx = strings.LastIndexByte(prefix, ' ') + 1
	case !fresh:
		return "", s
	}
	if amp := strings.LastIndexByte(s[:idx], '&'); amp >= 0 && !strings.Contains(s[amp:idx], ";") {
		idx = amp
	}
	return s[:idx], s[idx:]
}

// firstUnit is the byte length of the leading entity or rune of s.
func firstUnit(s string) int {
	if strings.HasPrefix(s, "&") {
		if semi := strings.IndexByte(s, ';'); semi > 0 && semi < 10 {
			return semi + 1
		}
	}
	_, size := utf8.DecodeRuneInString(s)
	return size
}

func tagName(tag string) string {
	name := strings.Trim(tag, "</>")
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name = name[:i]
	}
	return name
}

// StripTags removes markup tags, leaving entities as they are.
func StripTags(markup string) string {
	return tagPattern.ReplaceAllString(markup, "")
}
