package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ghostbot/internal/logging"
	"ghostbot/internal/types"
	"ghostbot/internal/usage"

	"golang.org/x/net/html"
)

const (
	defaultSearchEndpoint = "https://html.duckduckgo.com/html/"
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

	untitled  = "Tanpa Judul"
	noSummary = "Tidak ada ringkasan."
)

// SearchOptions configures a Searcher.
type SearchOptions struct {
	Endpoint   string // DuckDuckGo HTML endpoint
	Region     string // kl parameter, e.g. id-id
	MaxResults int    // default cap when a call passes 0
	Timeout    time.Duration
	UserAgent  string
	Client     *http.Client
	Cache      *ResearchCache
}

// Searcher queries DuckDuckGo's HTML interface.
type Searcher struct {
	opts SearchOptions
}

// NewSearcher creates a Searcher with defaults filled in.
func NewSearcher(opts SearchOptions) *Searcher {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultSearchEndpoint
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Searcher{opts: opts}
}

// Search returns up to maxResults results for query, deduplicated by URL.
// Missing titles and snippets get placeholder text.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = s.opts.MaxResults
	}
	if maxResults > 30 {
		maxResults = 30
	}

	key := hashKey("web_search", s.opts.Region, query, strconv.Itoa(maxResults))
	if entry, ok := s.opts.Cache.Get(key); ok {
		if cached, ok := entry.Value.([]types.SearchResult); ok {
			logging.ToolsDebug("Web search cache hit: %q", query)
			return append([]types.SearchResult(nil), cached...), nil
		}
	}

	logging.ToolsDebug("Web search: query=%q, max_results=%d, region=%s", query, maxResults, s.opts.Region)
	results, err := s.searchDuckDuckGo(ctx, query, maxResults)
	if err != nil {
		usage.RecordToolCall("web_search", "error")
		return nil, fmt.Errorf("search failed: %w", err)
	}
	usage.RecordToolCall("web_search", "success")

	if len(results) == 0 {
		logging.ToolsWarn("Web search returned no results for: %s", query)
	} else {
		logging.Tools("Web search completed: %d results for %q", len(results), query)
	}
	s.opts.Cache.Set(key, results, "web_search")
	return append([]types.SearchResult(nil), results...), nil
}

// searchDuckDuckGo performs a search using DuckDuckGo HTML interface.
func (s *Searcher) searchDuckDuckGo(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if s.opts.Region != "" {
		params.Set("kl", s.opts.Region)
	}
	searchURL := s.opts.Endpoint + "?" + params.Encode()

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to look like a browser
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "id-ID,id;q=0.9,en;q=0.5")

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseDuckDuckGoResults(string(body), maxResults)
}

// parseDuckDuckGoResults extracts search results from DuckDuckGo HTML.
func parseDuckDuckGoResults(htmlContent string, maxResults int) ([]types.SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []types.SearchResult
	seen := make(map[string]bool)

	// DuckDuckGo HTML uses class="result results_links" for organic results
	var findResults func(*html.Node)
	findResults = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}

		if n.Type == html.ElementNode && n.Data == "div" {
			class := getAttr(n, "class")
			if strings.Contains(class, "result") && strings.Contains(class, "results_links") {
				result := extractResult(n)
				if result.URL != "" && !seen[result.URL] {
					seen[result.URL] = true
					results = append(results, result)
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findResults(c)
		}
	}

	findResults(doc)
	return results, nil
}

// extractResult extracts a single search result from a result div.
func extractResult(n *html.Node) types.SearchResult {
	var result types.SearchResult

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := getAttr(n, "class")
			switch {
			case strings.Contains(class, "result__a"):
				result.URL = getAttr(n, "href")
				result.Title = getTextContent(n)
			case strings.Contains(class, "result__snippet"):
				result.Body = getTextContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)

	result.URL = unwrapRedirect(result.URL)
	if result.Title == "" {
		result.Title = untitled
	}
	if result.Body == "" {
		result.Body = noSummary
	}
	return result
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg= redirect links.
func unwrapRedirect(raw string) string {
	if !strings.Contains(raw, "duckduckgo.com/l/") {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

// getAttr returns the value of an attribute.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// getTextContent returns all text content within a node.
func getTextContent(n *html.Node) string {
	var sb strings.Builder
	var getText func(*html.Node)
	getText = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			getText(c)
		}
	}
	getText(n)
	return strings.TrimSpace(sb.String())
}
