package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ghostbot/internal/prompt"
	"ghostbot/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func newSQLiteStore(t *testing.T, clock *fakeClock) *ContextStore {
	t.Helper()
	backend, err := NewSQLiteBackend(":memory:", time.UTC)
	require.NoError(t, err)
	s := New(backend, Options{
		SystemPrompt: func() string { return "SYSTEM@" + clock.Now().Format(time.RFC3339) },
		Now:          clock.Now,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedisStore(t *testing.T, clock *fakeClock) (*ContextStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(NewRedisBackend(client, WithLocation(time.UTC), WithPrefix("test:")), Options{
		SystemPrompt: func() string { return "SYSTEM@" + clock.Now().Format(time.RFC3339) },
		Now:          clock.Now,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// Records keep microseconds; the store truncates before encoding.
func TestRecordRoundTrip(t *testing.T) {
	loc := time.UTC
	state := &types.ConversationState{
		UserID: 42,
		History: []types.Turn{
			types.NewTurn(types.RoleUser, "sys"),
			types.NewTurn(types.RoleModel, "halo"),
		},
		ActiveSessionName: types.StringPtr("Riset"),
		SessionFiles:      map[string]string{"a.txt": "isi"},
		LastActivity:      time.Date(2024, 1, 2, 3, 4, 5, 123456000, loc),
	}

	data, err := EncodeRecord(state, loc)
	require.NoError(t, err)
	got, err := DecodeRecord(data, loc)
	require.NoError(t, err)

	if diff := cmp.Diff(state, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistedStateMatchesReread(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)}
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	created, err := s.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 123456000, created.LastActivity.Nanosecond())

	reread, err := s.Get(ctx, 3)
	require.NoError(t, err)
	if diff := cmp.Diff(created, reread); diff != "" {
		t.Errorf("reread mismatch (-created +reread):\n%s", diff)
	}
}

func TestRecordTimestampIsNaive(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02T03:04:05", FormatTimestamp(ts, time.UTC))

	parsed, err := ParseTimestamp("2024-01-02T03:04:05.5", time.UTC)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts.Add(500*time.Millisecond)))
}

func TestDecodeRecordCorrupt(t *testing.T) {
	_, err := DecodeRecord([]byte("{not json"), time.UTC)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeRecord([]byte(`{"user_id":1,"history":[],"last_activity":"yesterday"}`), time.UTC)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestGetCreatesGreeting(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	state, err := s.Get(ctx, 7)
	require.NoError(t, err)
	require.Len(t, state.History, 2)
	assert.Equal(t, types.RoleUser, state.History[0].Role)
	assert.Equal(t, types.RoleModel, state.History[1].Role)
	assert.Equal(t, prompt.Greeting, state.History[1].Text())
	assert.False(t, state.HasSession())
	assert.Empty(t, state.SessionFiles)
	assert.True(t, state.LastActivity.Equal(clock.Now()))
}

func TestGetRefreshesSystemTurn(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	state, err := s.Get(ctx, 1)
	require.NoError(t, err)
	first := state.History[0].Text()

	clock.Advance(time.Hour)
	state, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, state.History[0].Text())
	assert.Equal(t, "SYSTEM@"+clock.Now().Format(time.RFC3339), state.History[0].Text())
}

func TestGetExpiryKeepsSession(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.AddFile(ctx, 1, "notes.txt", "isi catatan"))
	state, err := s.Get(ctx, 1)
	require.NoError(t, err)
	history := append(state.History,
		types.NewTurn(types.RoleUser, "pertanyaan"),
		types.NewTurn(types.RoleModel, "jawaban"))
	require.NoError(t, s.Save(ctx, 1, history, state.ActiveSessionName, state.SessionFiles))

	clock.Advance(12*time.Hour + time.Minute)
	state, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, state.History, 2)
	assert.Equal(t, AutoSessionName, state.SessionName())
	assert.Equal(t, "isi catatan", state.SessionFiles["notes.txt"])
}

func TestGetWithinTTLKeepsHistory(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	state, err := s.Get(ctx, 1)
	require.NoError(t, err)
	history := append(state.History, types.NewTurn(types.RoleUser, "hai"))
	require.NoError(t, s.Save(ctx, 1, history, nil, nil))

	clock.Advance(11 * time.Hour)
	state, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, state.History, 3)
}

func TestReset(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	existed, err := s.Reset(ctx, 5)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Get(ctx, 5)
	require.NoError(t, err)
	existed, err = s.Reset(ctx, 5)
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestEndSession(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	_, ok, err := s.EndSession(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddFile(ctx, 3, "a.txt", "A"))
	name, ok, err := s.EndSession(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, AutoSessionName, name)

	state, err := s.Get(ctx, 3)
	require.NoError(t, err)
	assert.False(t, state.HasSession())
	assert.Empty(t, state.SessionFiles)

	_, ok, err = s.SessionContext(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddFileOverwrites(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.AddFile(ctx, 1, "a.txt", "lama"))
	require.NoError(t, s.AddFile(ctx, 1, "a.txt", "baru"))
	state, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.txt": "baru"}, state.SessionFiles)
}

func TestAddWebResult(t *testing.T) {
	clock := newTestClock()
	s := newSQLiteStore(t, clock)
	ctx := context.Background()

	query := strings.Repeat("q", 60)
	results := []types.SearchResult{
		{Title: "Judul", Body: "Ringkas", URL: "https://a.example"},
	}
	require.NoError(t, s.AddWebResult(ctx, 1, query, results))

	state, err := s.Get(ctx, 1)
	require.NoError(t, err)
	key := "Konteks Web: '" + strings.Repeat("q", 50) + "...'"
	require.Contains(t, state.SessionFiles, key)
	assert.Equal(t,
		"Hasil pencarian untuk kueri '"+query+"':\n\nSumber 1: Judul (https://a.example)\nRingkasan: Ringkas\n---\n",
		state.SessionFiles[key])
}

func TestSessionContextTruncatesPerFile(t *testing.T) {
	clock := newTestClock()
	backend, err := NewSQLiteBackend(":memory:", time.UTC)
	require.NoError(t, err)
	s := New(backend, Options{FileContextLimit: 5, Now: clock.Now, SystemPrompt: func() string { return "sys" }})
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.AddFile(ctx, 1, "b.txt", "0123456789"))
	require.NoError(t, s.AddFile(ctx, 1, "a.txt", "abc"))

	got, ok, err := s.SessionContext(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(got, "KONTEKS TAMBAHAN:"))
	assert.Contains(t, got, "--- KONTEN SUMBER 1: `a.txt` ---\nabc...\n--- AKHIR KONTEN: `a.txt` ---\n\n")
	assert.Contains(t, got, "--- KONTEN SUMBER 2: `b.txt` ---\n01234...\n--- AKHIR KONTEN: `b.txt` ---\n\n")
}

func TestSQLiteCorruptRecord(t *testing.T) {
	clock := newTestClock()
	backend, err := NewSQLiteBackend(":memory:", time.UTC)
	require.NoError(t, err)
	s := New(backend, Options{Now: clock.Now})
	defer s.Close()

	_, err = backend.db.Exec(
		`INSERT INTO user_contexts (user_id, history_json, timestamp) VALUES (9, 'garbage', '2024-01-01T00:00:00')`)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), 9)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSQLiteFileBacked(t *testing.T) {
	path := t.TempDir() + "/nested/context.db"
	clock := newTestClock()

	backend, err := NewSQLiteBackend(path, time.UTC)
	require.NoError(t, err)
	s := New(backend, Options{Now: clock.Now, SystemPrompt: func() string { return "sys" }})
	require.NoError(t, s.AddFile(context.Background(), 1, "a.txt", "A"))
	require.NoError(t, s.Close())

	backend, err = NewSQLiteBackend(path, time.UTC)
	require.NoError(t, err)
	s = New(backend, Options{Now: clock.Now, SystemPrompt: func() string { return "sys" }})
	defer s.Close()
	state, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "A", state.SessionFiles["a.txt"])
}

func TestRedisBackend(t *testing.T) {
	clock := newTestClock()
	s, mr := newRedisStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.AddFile(ctx, 11, "a.txt", "A"))
	assert.True(t, mr.Exists("test:11"))

	state, err := s.Get(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, AutoSessionName, state.SessionName())

	existed, err := s.Reset(ctx, 11)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.False(t, mr.Exists("test:11"))
}

func TestRedisBackendTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, WithTTL(time.Hour))
	defer backend.Close()

	state := newState(1, []types.Turn{types.NewTurn(types.RoleUser, "x")}, time.Now(), nil, nil)
	require.NoError(t, backend.Upsert(context.Background(), state))
	assert.Equal(t, time.Hour, mr.TTL("ghost:context:1"))

	mr.FastForward(2 * time.Hour)
	_, err := backend.Load(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCorruptRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client)
	defer backend.Close()

	require.NoError(t, mr.Set("ghost:context:2", "nope"))
	_, err := backend.Load(context.Background(), 2)
	assert.ErrorIs(t, err, ErrCorrupt)
}
