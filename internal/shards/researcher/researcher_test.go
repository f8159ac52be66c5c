package researcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ghostbot/internal/perception/perceptiontest"
	"ghostbot/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]types.SearchResult
	errs    map[string]error
	calls   []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, max int) ([]types.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	hits := f.results[query]
	if len(hits) > max {
		hits = hits[:max]
	}
	return hits, nil
}

type recorder struct {
	events []types.StreamEvent
}

func (r *recorder) emit(ev types.StreamEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) queries() []string {
	var out []string
	for _, ev := range r.events {
		if ev.Kind == types.EventResearchQuery {
			out = append(out, ev.Text)
		}
	}
	return out
}

func noRetry() Config {
	return Config{MaxResults: 10}
}

func TestRunMergesFirstOccurrenceByURL(t *testing.T) {
	model := perceptiontest.New().
		On(OperationExpand, perceptiontest.Reply{Text: "Berikut kuerinya:\n```json\n[\"harga emas\", \"emas hari ini\", \"harga emas antam\"]\n```"}).
		On(OperationDedup, perceptiontest.Reply{Text: `["harga emas", "emas hari ini"]`})
	search := &fakeSearcher{results: map[string][]types.SearchResult{
		"harga emas": {
			{Title: "A1", Body: "first", URL: "https://a"},
			{Title: "B", Body: "b", URL: "https://b"},
		},
		"emas hari ini": {
			{Title: "A2", Body: "second", URL: "https://a"},
			{Title: "C", Body: "c", URL: "https://c"},
		},
	}}

	rec := &recorder{}
	res, err := NewCoordinator(search, noRetry()).Run(context.Background(), model, "berapa harga emas?", nil, rec.emit)
	require.NoError(t, err)

	want := []types.SearchResult{
		{Title: "A1", Body: "first", URL: "https://a"},
		{Title: "B", Body: "b", URL: "https://b"},
		{Title: "C", Body: "c", URL: "https://c"},
	}
	if diff := cmp.Diff(want, res.Results); diff != "" {
		t.Errorf("merged results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"harga emas", "emas hari ini"}, rec.queries())
	assert.Equal(t, "harga emas, emas hari ini", res.QuerySummary())
	assert.Equal(t, search.calls, rec.queries(), "search order follows query order")
}

func TestRunFallsBackToRawQueryOnBadExpansion(t *testing.T) {
	model := perceptiontest.New().On(OperationExpand, perceptiontest.Reply{Text: "maaf, saya tidak bisa"})
	search := &fakeSearcher{results: map[string][]types.SearchResult{
		"cuaca jakarta": {{Title: "T", Body: "B", URL: "https://x"}},
	}}

	rec := &recorder{}
	res, err := NewCoordinator(search, noRetry()).Run(context.Background(), model, "cuaca jakarta", nil, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"cuaca jakarta"}, res.Queries)
	assert.Equal(t, 0, model.Calls(OperationDedup), "a single query skips dedup")
}

func TestRunKeepsExpandedListWhenDedupFails(t *testing.T) {
	model := perceptiontest.New().
		On(OperationExpand, perceptiontest.Reply{Text: `["a", "b", "c"]`}).
		On(OperationDedup, perceptiontest.Reply{Err: errors.New("quota")})
	search := &fakeSearcher{results: map[string][]types.SearchResult{
		"c": {{URL: "https://c"}},
	}}

	res, err := NewCoordinator(search, noRetry()).Run(context.Background(), model, "q", nil, (&recorder{}).emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, res.Queries)
	assert.Len(t, res.Results, 1)
}

func TestRunNoResults(t *testing.T) {
	model := perceptiontest.New().On(OperationExpand, perceptiontest.Reply{Text: `["x", "y"]`}).
		On(OperationDedup, perceptiontest.Reply{Text: "not json"})
	search := &fakeSearcher{errs: map[string]error{"x": errors.New("HTTP 403")}}

	rec := &recorder{}
	res, err := NewCoordinator(search, noRetry()).Run(context.Background(), model, "q", nil, rec.emit)
	assert.ErrorIs(t, err, ErrNoResults)
	assert.Empty(t, res.Results)
	assert.Equal(t, []string{"x", "y"}, rec.queries(), "every query still reports progress")
}

func TestRunStopsWhenEmitFails(t *testing.T) {
	model := perceptiontest.New().On(OperationExpand, perceptiontest.Reply{Text: `["x"]`})
	search := &fakeSearcher{}
	stop := errors.New("consumer gone")

	_, err := NewCoordinator(search, noRetry()).Run(context.Background(), model, "q", nil, func(types.StreamEvent) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Empty(t, search.calls)
}

func TestRunRetriesSearch(t *testing.T) {
	model := perceptiontest.New().On(OperationExpand, perceptiontest.Reply{Text: `["x"]`})
	flaky := &flakySearcher{failures: 1}
	cfg := Config{MaxResults: 5, Retry: RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond}}

	res, err := NewCoordinator(flaky, cfg).Run(context.Background(), model, "q", nil, (&recorder{}).emit)
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, 2, flaky.calls)
}

type flakySearcher struct {
	failures int
	calls    int
}

func (f *flakySearcher) Search(context.Context, string, int) ([]types.SearchResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("temporary")
	}
	return []types.SearchResult{{URL: "https://ok"}}, nil
}

func TestRunPassesHistoryToExpansion(t *testing.T) {
	model := perceptiontest.New().On(OperationExpand, perceptiontest.Reply{Text: `["x"]`})
	search := &fakeSearcher{results: map[string][]types.SearchResult{"x": {{URL: "u"}}}}
	history := []types.Turn{types.NewTurn(types.RoleUser, "siapa presiden pertama?")}

	_, err := NewCoordinator(search, noRetry()).Run(context.Background(), model, "lahir di mana?", history, (&recorder{}).emit)
	require.NoError(t, err)
	req, ok := model.Last(OperationExpand)
	require.True(t, ok)
	assert.Contains(t, req.Prompt, "user: siapa presiden pertama?")
	assert.Contains(t, req.Prompt, `"lahir di mana?"`)
	assert.False(t, req.Safety)
}

func TestParseQueries(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: `["a", " b "]`, want: []string{"a", "b"}},
		{in: "prefix [\"a\",\n\"b\"] suffix", want: []string{"a", "b"}},
		{in: `["a", ""]`, want: []string{"a"}},
		{in: `[]`, wantErr: true},
		{in: `["a", 1]`, wantErr: true},
		{in: `no list`, wantErr: true},
		{in: `[not json]`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseQueries(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMergeDropsEmptyURLs(t *testing.T) {
	seen := map[string]bool{}
	got := Merge(seen, nil, []types.SearchResult{{URL: ""}, {URL: "a"}, {URL: "a"}})
	assert.Len(t, got, 1)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(cfg, 0))
	assert.Equal(t, 2*time.Second, calculateBackoff(cfg, 1))
	assert.Equal(t, 3*time.Second, calculateBackoff(cfg, 5))
}
