package research

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ghostbot/internal/tools"
)

// WebSearchTool wraps s as a registry tool.
func WebSearchTool(s *Searcher) *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web using DuckDuckGo",
		Category:    tools.CategoryResearch,
		Priority:    75,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			query := tools.StringArg(args, "query")
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			results, err := s.Search(ctx, query, tools.IntArg(args, "max_results", 0))
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "No results found for: " + query, nil
			}
			var sb strings.Builder
			for i, r := range results {
				fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, r.Body)
			}
			return strings.TrimSpace(sb.String()), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query":       {Type: "string", Description: "The search query"},
				"max_results": {Type: "integer", Description: "Maximum number of results (default: 10)", Default: 10},
			},
		},
	}
}

// WebFetchTool wraps e as a registry tool.
func WebFetchTool(e *Extractor) *tools.Tool {
	return &tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and extract its readable text",
		Category:    tools.CategoryResearch,
		Priority:    70,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			url := tools.StringArg(args, "url")
			if url == "" {
				return "", fmt.Errorf("url is required")
			}
			page, err := e.Extract(ctx, url)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("# %s\n(stage: %s)\n\n%s", page.Title, page.Stage, page.Text), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url": {Type: "string", Description: "The URL to fetch"},
			},
		},
	}
}

// CacheStatsTool reports cache contents.
func CacheStatsTool(c *ResearchCache) *tools.Tool {
	return &tools.Tool{
		Name:        "research_cache_stats",
		Description: "Get statistics about the research cache",
		Category:    tools.CategoryResearch,
		Priority:    30,
		Execute: func(context.Context, map[string]any) (string, error) {
			stats := c.Stats()
			var sb strings.Builder
			sb.WriteString("Cache Statistics:\n")
			fmt.Fprintf(&sb, "  Total entries: %d\n", stats.Entries)
			fmt.Fprintf(&sb, "  Valid entries: %d\n", stats.Valid)
			fmt.Fprintf(&sb, "  Max size: %d entries\n", stats.MaxSize)
			fmt.Fprintf(&sb, "  TTL: %v\n", stats.TTL)
			sources := make([]string, 0, len(stats.BySource))
			for source := range stats.BySource {
				sources = append(sources, source)
			}
			sort.Strings(sources)
			sb.WriteString("\nBy source:\n")
			for _, source := range sources {
				fmt.Fprintf(&sb, "  %s: %d\n", source, stats.BySource[source])
			}
			return sb.String(), nil
		},
	}
}

// RegisterAll registers the research tools with the given registry.
func RegisterAll(registry *tools.Registry, s *Searcher, e *Extractor, c *ResearchCache) error {
	all := []*tools.Tool{WebSearchTool(s), WebFetchTool(e)}
	if c != nil {
		all = append(all, CacheStatsTool(c))
	}
	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
