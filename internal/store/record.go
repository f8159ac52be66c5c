package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ghostbot/internal/types"
)

var (
	// ErrNotFound is returned by backends when no record exists for a user.
	ErrNotFound = errors.New("context record not found")
	// ErrCorrupt wraps decode failures of stored state.
	ErrCorrupt = errors.New("corrupt context record")
)

// TimestampLayout is the naive local timestamp format of last_activity.
const TimestampLayout = "2006-01-02T15:04:05.999999"

// record is the persisted shape of a ConversationState.
type record struct {
	UserID            int64             `json:"user_id"`
	History           []types.Turn      `json:"history"`
	LastActivity      string            `json:"last_activity"`
	ActiveSessionName *string           `json:"active_session_name,omitempty"`
	SessionFiles      map[string]string `json:"session_files"`
}

// FormatTimestamp renders t as a naive timestamp in loc.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimestampLayout)
}

// ParseTimestamp reads a naive timestamp as wall time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(TimestampLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q: %v", ErrCorrupt, s, err)
	}
	return t, nil
}

// EncodeRecord serializes state for storage.
func EncodeRecord(state *types.ConversationState, loc *time.Location) ([]byte, error) {
	rec := record{
		UserID:            state.UserID,
		History:           state.History,
		LastActivity:      FormatTimestamp(state.LastActivity, loc),
		ActiveSessionName: state.ActiveSessionName,
		SessionFiles:      state.SessionFiles,
	}
	if rec.History == nil {
		rec.History = []types.Turn{}
	}
	if rec.SessionFiles == nil {
		rec.SessionFiles = map[string]string{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a stored record.
func DecodeRecord(data []byte, loc *time.Location) (*types.ConversationState, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	ts, err := ParseTimestamp(rec.LastActivity, loc)
	if err != nil {
		return nil, err
	}
	return newState(rec.UserID, rec.History, ts, rec.ActiveSessionName, rec.SessionFiles), nil
}

// encodeHistory and encodeFiles serialize the column values of the sqlite
// backend.
func encodeHistory(history []types.Turn) (string, error) {
	if history == nil {
		history = []types.Turn{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("failed to marshal history: %w", err)
	}
	return string(data), nil
}

func decodeHistory(s string) ([]types.Turn, error) {
	var history []types.Turn
	if err := json.Unmarshal([]byte(s), &history); err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrCorrupt, err)
	}
	return history, nil
}

func encodeFiles(files map[string]string) (string, error) {
	if files == nil {
		files = map[string]string{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session files: %w", err)
	}
	return string(data), nil
}

func decodeFiles(s string) (map[string]string, error) {
	files := map[string]string{}
	if s == "" {
		return files, nil
	}
	if err := json.Unmarshal([]byte(s), &files); err != nil {
		return nil, fmt.Errorf("%w: session files: %v", ErrCorrupt, err)
	}
	if files == nil {
		files = map[string]string{}
	}
	return files, nil
}

func newState(userID int64, history []types.Turn, last time.Time, name *string, files map[string]string) *types.ConversationState {
	if files == nil {
		files = map[string]string{}
	}
	if name != nil && *name == "" {
		name = nil
	}
	return &types.ConversationState{
		UserID:            userID,
		History:           history,
		ActiveSessionName: name,
		SessionFiles:      files,
		LastActivity:      last,
	}
}
