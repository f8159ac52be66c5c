package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ghostbot/internal/perception"
	"ghostbot/internal/shards/artist"
	"ghostbot/internal/shards/researcher"
	"ghostbot/internal/store"
	"ghostbot/internal/types"

	"github.com/stretchr/testify/require"
)

// staticSource always hands out the same model, or err.
type staticSource struct {
	model perception.Model
	err   error
}

func (s staticSource) Acquire(context.Context) (perception.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.model, nil
}

// faultyStore wraps a real store and injects failures.
type faultyStore struct {
	*store.ContextStore
	mu      sync.Mutex
	saveErr error
	getErr  error
	saves   int
}

func (s *faultyStore) Get(ctx context.Context, userID int64) (*types.ConversationState, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.ContextStore.Get(ctx, userID)
}

func (s *faultyStore) Save(ctx context.Context, userID int64, history []types.Turn, name *string, files map[string]string) error {
	s.mu.Lock()
	s.saves++
	err := s.saveErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.ContextStore.Save(ctx, userID, history, name, files)
}

func (s *faultyStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newTestStore(t *testing.T) *faultyStore {
	t.Helper()
	backend, err := store.NewSQLiteBackend(":memory:", time.UTC)
	require.NoError(t, err)
	cs := store.New(backend, store.Options{SystemPrompt: func() string { return "SYSTEM" }})
	t.Cleanup(func() { _ = cs.Close() })
	return &faultyStore{ContextStore: cs}
}

// fakeResearch replays a fixed result and emits one progress event per query.
type fakeResearch struct {
	result researcher.Result
	err    error
	calls  int
}

func (r *fakeResearch) Run(_ context.Context, _ perception.Model, _ string, _ []types.Turn, emit researcher.Emit) (researcher.Result, error) {
	r.calls++
	for _, q := range r.result.Queries {
		if err := emit(types.ResearchQuery(q)); err != nil {
			return r.result, err
		}
	}
	return r.result, r.err
}

// fakeArtist emits a single image event.
type fakeArtist struct {
	calls int
}

func (a *fakeArtist) Run(_ context.Context, _ perception.Model, request string, emit artist.Emit) error {
	a.calls++
	return emit(types.Image([]byte("png"), request))
}

var errBoom = errors.New("boom")

func kinds(events []types.StreamEvent) []types.EventKind {
	out := make([]types.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
