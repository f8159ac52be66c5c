package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"ghostbot/internal/logging"
	"ghostbot/internal/usage"

	"golang.org/x/net/html"
)

// Pre-compile regex patterns to avoid recompilation overhead
var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// ErrNoContent is returned when no stage produced any text.
var ErrNoContent = errors.New("no content extracted")

// Page is the extracted text of a web page.
type Page struct {
	Title string
	Text  string
	Stage string // structured, generic, rendered
}

// PageRenderer returns the HTML of a page after client-side rendering.
type PageRenderer interface {
	RenderHTML(ctx context.Context, url string) (string, error)
}

// ExtractOptions configures an Extractor.
type ExtractOptions struct {
	Timeout   time.Duration
	MinChars  int   // below this the next stage runs
	MaxBytes  int64 // response body cap
	UserAgent string
	Client    *http.Client
	Cache     *ResearchCache
	// Renderer enables the headless third stage when set.
	Renderer PageRenderer
}

// Extractor turns a URL into readable text.
type Extractor struct {
	opts ExtractOptions
}

// NewExtractor creates an Extractor with defaults filled in.
func NewExtractor(opts ExtractOptions) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MinChars <= 0 {
		opts.MinChars = 150
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 2 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Extractor{opts: opts}
}

// Extract fetches url and runs the extraction stages in order: structured
// (article/main paragraphs), generic (whole body text without chrome), and
// the headless render when configured. A later stage runs only while the
// text is shorter than MinChars.
func (e *Extractor) Extract(ctx context.Context, url string) (Page, error) {
	key := hashKey("web_fetch", url)
	if entry, ok := e.opts.Cache.Get(key); ok {
		if page, ok := entry.Value.(Page); ok {
			logging.ToolsDebug("Web fetch cache hit: %s", url)
			return page, nil
		}
	}

	timer := logging.StartTimer(logging.CategoryTools, "Extract")
	defer timer.Stop()

	page, err := e.extract(ctx, url)
	if err != nil {
		usage.RecordToolCall("web_fetch", "error")
		logging.ToolsWarn("All extraction stages failed for %s: %v", url, err)
		return Page{}, err
	}
	usage.RecordToolCall("web_fetch", page.Stage)
	logging.Tools("Web fetch completed: %s via %s (%d chars)", url, page.Stage, len(page.Text))
	e.opts.Cache.Set(key, page, "web_fetch")
	return page, nil
}

func (e *Extractor) extract(ctx context.Context, url string) (Page, error) {
	body, contentType, fetchErr := e.fetch(ctx, url)

	var best Page
	if fetchErr == nil {
		if strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") {
			return Page{Title: untitled, Text: cleanText(body), Stage: "plain"}, nil
		}

		best = structuredText(body)
		if e.enough(best.Text) {
			return best, nil
		}
		logging.ToolsDebug("Structured extraction too short for %s (%d chars), trying generic", url, utf8.RuneCountInString(best.Text))

		if generic := genericText(body); generic.Text != "" {
			best = generic
		}
		if e.enough(best.Text) || e.opts.Renderer == nil {
			return finish(best, nil)
		}
	} else {
		logging.ToolsWarn("Fetch failed for %s: %v", url, fetchErr)
		if e.opts.Renderer == nil {
			return Page{}, fetchErr
		}
	}

	rendered, err := e.opts.Renderer.RenderHTML(ctx, url)
	if err != nil {
		logging.ToolsWarn("Headless render failed for %s: %v", url, err)
		if best.Text != "" {
			return best, nil
		}
		if fetchErr != nil {
			return Page{}, fetchErr
		}
		return Page{}, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	page := structuredText(rendered)
	if !e.enough(page.Text) {
		page = genericText(rendered)
	}
	page.Stage = "rendered"
	if utf8.RuneCountInString(page.Text) < utf8.RuneCountInString(best.Text) {
		return best, nil
	}
	return finish(page, nil)
}

func finish(p Page, err error) (Page, error) {
	if err != nil {
		return Page{}, err
	}
	if p.Text == "" {
		return Page{}, ErrNoContent
	}
	return p, nil
}

func (e *Extractor) enough(text string) bool {
	return utf8.RuneCountInString(text) > e.opts.MinChars
}

func (e *Extractor) fetch(ctx context.Context, url string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := e.opts.Client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.MaxBytes))
	if err != nil {
		return "", "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), resp.Header.Get("Content-Type"), nil
}

// skipped elements never contribute text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true, "svg": true,
	"nav": true, "footer": true, "header": true,
}

// structuredText reads paragraphs and headings inside <article>, falling
// back to <main>.
func structuredText(htmlContent string) Page {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return Page{}
	}
	page := Page{Title: pageTitle(doc), Stage: "structured"}

	root := findElement(doc, "article")
	if root == nil {
		root = findElement(doc, "main")
	}
	if root == nil {
		return page
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.Data] {
				return
			}
			switch n.Data {
			case "p", "h1", "h2", "h3", "h4", "li", "blockquote", "pre":
				if text := collapse(textOf(n)); text != "" {
					blocks = append(blocks, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	page.Text = cleanText(strings.Join(blocks, "\n\n"))
	return page
}

// genericText is the whole body text without page chrome, space-joined.
func genericText(htmlContent string) Page {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return Page{}
	}
	page := Page{Title: pageTitle(doc), Stage: "generic"}
	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}
	page.Text = collapse(textOf(body))
	return page
}

func pageTitle(doc *html.Node) string {
	if t := findElement(doc, "title"); t != nil {
		if title := collapse(textOf(t)); title != "" {
			return title
		}
	}
	return untitled
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node, int)
	walk = func(n *html.Node, depth int) {
		if depth > 200 {
			return // Prevent excessive recursion
		}
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		case html.ElementNode:
			if skipped[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText removes excessive whitespace.
func cleanText(s string) string {
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
