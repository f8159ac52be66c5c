// Package researcher runs multi-query web research for one user request.
//
// A run moves through four phases:
//
//	QUERY_EXPANSION  the model proposes 5-6 search queries as a JSON array
//	DEDUP            the model merges near-duplicates (only with >1 query)
//	FETCH            each query is searched in order, emitting a progress event
//	MERGE            results are combined across queries, first URL wins
//
// Model failures in the first two phases fall back (single raw query, or the
// unrefined list). Search failures for one query count as zero results.
package researcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ghostbot/internal/logging"
	"ghostbot/internal/perception"
	"ghostbot/internal/prompt"
	"ghostbot/internal/types"
)

// ErrNoResults means every query came back empty.
var ErrNoResults = errors.New("no web search results")

// NoResultsText is shown when a run finds nothing.
const NoResultsText = "Tidak ditemukan hasil pencarian yang relevan di web."

const (
	OperationExpand = "expand_queries"
	OperationDedup  = "dedup_queries"
)

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// Searcher is the web search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error)
}

// Emit delivers a progress event to the caller. A non-nil error stops the run.
type Emit func(types.StreamEvent) error

// Config holds configuration for a Coordinator.
type Config struct {
	MaxResults int // per query
	Retry      RetryConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults: 10,
		Retry: RetryConfig{
			MaxRetries:     1,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}
}

// Result is the merged outcome of a run.
type Result struct {
	Queries []string
	Results []types.SearchResult
}

// QuerySummary joins the final query list for the web-context key.
func (r Result) QuerySummary() string {
	return strings.Join(r.Queries, ", ")
}

// Coordinator expands, deduplicates and executes search queries.
type Coordinator struct {
	search Searcher
	cfg    Config
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(search Searcher, cfg Config) *Coordinator {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Coordinator{search: search, cfg: cfg}
}

// Run researches utterance using model for query planning. It returns
// ErrNoResults when the merged list is empty.
func (c *Coordinator) Run(ctx context.Context, model perception.Model, utterance string, history []types.Turn, emit Emit) (Result, error) {
	timer := logging.StartTimer(logging.CategoryResearcher, "Research")
	defer timer.Stop()

	serialized := types.SerializeHistory(history)
	queries := c.expand(ctx, model, utterance, serialized)
	if len(queries) > 1 {
		queries = c.dedup(ctx, model, queries)
	}
	logging.Researcher("Research queries: %v", queries)

	result := Result{Queries: queries}
	seen := make(map[string]bool)
	for _, query := range queries {
		if err := emit(types.ResearchQuery(query)); err != nil {
			return result, err
		}
		hits, err := WithRetry(ctx, c.cfg.Retry, "search "+query, func(ctx context.Context) ([]types.SearchResult, error) {
			return c.search.Search(ctx, query, c.cfg.MaxResults)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			logging.ResearcherWarn("Search failed for %q: %v", query, err)
			continue
		}
		result.Results = Merge(seen, result.Results, hits)
	}

	if len(result.Results) == 0 {
		logging.ResearcherWarn("No search results for any of %d queries", len(queries))
		return result, ErrNoResults
	}
	logging.Researcher("Research merged %d results from %d queries", len(result.Results), len(queries))
	return result, nil
}

// Merge appends hits whose URL is not yet in seen. Hits without a URL are
// dropped.
func Merge(seen map[string]bool, merged, hits []types.SearchResult) []types.SearchResult {
	for _, hit := range hits {
		if hit.URL == "" || seen[hit.URL] {
			continue
		}
		seen[hit.URL] = true
		merged = append(merged, hit)
	}
	return merged
}

func (c *Coordinator) expand(ctx context.Context, model perception.Model, utterance, history string) []string {
	text, err := perception.Complete(ctx, model, OperationExpand, prompt.QueryExpansion(utterance, history))
	if err != nil {
		logging.ResearcherWarn("Query expansion failed, using the raw request: %v", err)
		return []string{utterance}
	}
	queries, err := ParseQueries(text)
	if err != nil {
		logging.ResearcherWarn("Query expansion returned no usable list, using the raw request: %v", err)
		return []string{utterance}
	}
	return queries
}

func (c *Coordinator) dedup(ctx context.Context, model perception.Model, queries []string) []string {
	text, err := perception.Complete(ctx, model, OperationDedup, prompt.QueryDedup(queries))
	if err != nil {
		logging.ResearcherWarn("Query dedup failed, keeping %d queries: %v", len(queries), err)
		return queries
	}
	refined, err := ParseQueries(text)
	if err != nil {
		logging.ResearcherWarn("Query dedup returned no usable list, keeping %d queries: %v", len(queries), err)
		return queries
	}
	return refined
}

// ParseQueries extracts a non-empty JSON array of strings from model output.
// Surrounding prose and code fences are ignored; blank entries are dropped.
func ParseQueries(text string) ([]string, error) {
	match := jsonArrayPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no JSON array in %q", truncate(text, 80))
	}
	var raw []any
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}
	queries := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d is %T, not a string", i, item)
		}
		if s = strings.TrimSpace(s); s != "" {
			queries = append(queries, s)
		}
	}
	if len(queries) == 0 {
		return nil, errors.New("empty query list")
	}
	return queries, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
