// Package store keeps durable per-user conversation state: the turn history,
// the active session name and the session's auxiliary text files.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"ghostbot/internal/logging"
	"ghostbot/internal/prompt"
	"ghostbot/internal/types"
)

// AutoSessionName is given to a session that starts implicitly.
const AutoSessionName = "Sesi Otomatis"

// Options configures a ContextStore.
type Options struct {
	// TTL after which a conversation restarts from a greeting. Default 12h.
	TTL time.Duration
	// FileContextLimit truncates each session file when assembled. Default 4000.
	FileContextLimit int
	// SystemPrompt renders the system turn text; called on every read.
	SystemPrompt func() string
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// ContextStore is the per-user conversation memory.
type ContextStore struct {
	backend   Backend
	ttl       time.Duration
	fileLimit int
	system    func() string
	now       func() time.Time
}

// New builds a ContextStore over backend.
func New(backend Backend, opts Options) *ContextStore {
	s := &ContextStore{
		backend:   backend,
		ttl:       opts.TTL,
		fileLimit: opts.FileContextLimit,
		system:    opts.SystemPrompt,
		now:       opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 12 * time.Hour
	}
	if s.fileLimit <= 0 {
		s.fileLimit = 4000
	}
	if s.system == nil {
		s.system = func() string { return prompt.System("", prompt.Clock{}) }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *ContextStore) systemTurn() types.Turn {
	return types.NewTurn(types.RoleUser, s.system())
}

func (s *ContextStore) greetingHistory() []types.Turn {
	return []types.Turn{
		s.systemTurn(),
		types.NewTurn(types.RoleModel, prompt.Greeting),
	}
}

// Get loads the user's state, creating it on first access. A conversation
// idle for longer than the TTL restarts from a greeting but keeps its
// session. history[0] is always a freshly rendered system turn.
func (s *ContextStore) Get(ctx context.Context, userID int64) (*types.ConversationState, error) {
	state, err := s.backend.Load(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		logging.StoreDebug("Creating new context for user %d", userID)
		state = newState(userID, s.greetingHistory(), time.Time{}, nil, nil)
		if err := s.persist(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, err
	}

	if s.now().Sub(state.LastActivity) > s.ttl {
		logging.Store("Context for user %d expired (last activity %s), keeping session %q",
			userID, state.LastActivity.Format(time.RFC3339), state.SessionName())
		state.History = s.greetingHistory()
		if err := s.persist(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}

	if len(state.History) == 0 {
		state.History = []types.Turn{s.systemTurn()}
	} else {
		state.History[0] = s.systemTurn()
	}
	return state, nil
}

// Save upserts the user's state and stamps last activity.
func (s *ContextStore) Save(ctx context.Context, userID int64, history []types.Turn, sessionName *string, files map[string]string) error {
	return s.persist(ctx, newState(userID, history, time.Time{}, sessionName, files))
}

// persist stamps last activity at the record's microsecond precision, so the
// returned state equals what a later read decodes.
func (s *ContextStore) persist(ctx context.Context, state *types.ConversationState) error {
	state.LastActivity = s.now().Truncate(time.Microsecond)
	return s.backend.Upsert(ctx, state)
}

// Reset deletes the user's record and reports whether one existed.
func (s *ContextStore) Reset(ctx context.Context, userID int64) (bool, error) {
	existed, err := s.backend.Delete(ctx, userID)
	if err != nil {
		return false, err
	}
	logging.Store("Reset context for user %d (existed=%v)", userID, existed)
	return existed, nil
}

// EndSession clears the active session and its files. It returns the name of
// the session that was ended, or "" and false when none was active.
func (s *ContextStore) EndSession(ctx context.Context, userID int64) (string, bool, error) {
	state, err := s.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if !state.HasSession() {
		return "", false, nil
	}
	name := state.SessionName()
	if err := s.Save(ctx, userID, state.History, nil, nil); err != nil {
		return "", false, err
	}
	return name, true, nil
}

// AddFile stores content under name in the session, starting an automatic
// session when none is active. An existing entry with the same name is
// overwritten.
func (s *ContextStore) AddFile(ctx context.Context, userID int64, name, content string) error {
	state, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	state.SessionFiles[name] = content
	sessionName := state.ActiveSessionName
	if !state.HasSession() {
		sessionName = types.StringPtr(AutoSessionName)
	}
	return s.Save(ctx, userID, state.History, sessionName, state.SessionFiles)
}

// AddWebResult stores formatted search results as a session file keyed by
// the query summary.
func (s *ContextStore) AddWebResult(ctx context.Context, userID int64, query string, results []types.SearchResult) error {
	return s.AddFile(ctx, userID, WebResultKey(query), FormatWebResults(query, results))
}

// WebResultKey names the session file holding results for query.
func WebResultKey(query string) string {
	return fmt.Sprintf("Konteks Web: '%s...'", truncateRunes(query, 50))
}

// FormatWebResults renders search results as plain text.
func FormatWebResults(query string, results []types.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hasil pencarian untuk kueri '%s':\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "Sumber %d: %s (%s)\nRingkasan: %s\n---\n", i+1, r.Title, r.URL, r.Body)
	}
	return sb.String()
}

// SessionContext assembles all session files into one prompt block, each
// truncated to the file limit. It returns false when the session is empty.
// There is no cap on the total size.
func (s *ContextStore) SessionContext(ctx context.Context, userID int64) (string, bool, error) {
	state, err := s.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if len(state.SessionFiles) == 0 {
		return "", false, nil
	}
	return AssembleContext(state.SessionFiles, s.fileLimit), true, nil
}

// AssembleContext renders files in name order.
func AssembleContext(files map[string]string, limit int) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("KONTEKS TAMBAHAN: Selain pengetahuan umum Anda, gunakan informasi dari " +
		"sumber-sumber berikut (file, tautan, atau hasil pencarian web) untuk " +
		"memperkaya jawaban Anda jika relevan dengan pertanyaan pengguna.\n\n")
	for i, name := range names {
		fmt.Fprintf(&sb, "--- KONTEN SUMBER %d: `%s` ---\n", i+1, name)
		sb.WriteString(truncateRunes(files[name], limit))
		sb.WriteString("...\n")
		fmt.Fprintf(&sb, "--- AKHIR KONTEN: `%s` ---\n\n", name)
	}
	return sb.String()
}

// Close releases the backend.
func (s *ContextStore) Close() error {
	return s.backend.Close()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
