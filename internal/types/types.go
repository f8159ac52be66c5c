// Package types provides shared type definitions used across ghostbot packages.
// This package exists to break import cycles between store, session, shards and articulation.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION TYPES
// =============================================================================

// Role tags the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one role-tagged entry in a conversation history.
type Turn struct {
	Role  Role     `json:"role"`
	Parts []string `json:"parts"`
}

// NewTurn builds a single-part turn.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []string{text}}
}

// Text joins all parts of the turn.
func (t Turn) Text() string {
	return strings.Join(t.Parts, "\n")
}

// ConversationState is the durable per-user state kept by the context store.
type ConversationState struct {
	UserID            int64             `json:"user_id"`
	History           []Turn            `json:"history"`
	ActiveSessionName *string           `json:"active_session_name"`
	SessionFiles      map[string]string `json:"session_files"`
	LastActivity      time.Time         `json:"last_activity"`
}

// HasSession reports whether a named session is active.
func (s *ConversationState) HasSession() bool {
	return s.ActiveSessionName != nil && *s.ActiveSessionName != ""
}

// SessionName returns the active session name or "".
func (s *ConversationState) SessionName() string {
	if s.ActiveSessionName == nil {
		return ""
	}
	return *s.ActiveSessionName
}

// FileNames lists the session file names in sorted order.
func (s *ConversationState) FileNames() []string {
	names := make([]string, 0, len(s.SessionFiles))
	for name := range s.SessionFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SerializeHistory renders turns as "role: text" lines for classifier and
// research prompts. The first part of each turn is used.
func SerializeHistory(history []Turn) string {
	var sb strings.Builder
	for _, turn := range history {
		if len(turn.Parts) == 0 {
			continue
		}
		sb.WriteString(string(turn.Role))
		sb.WriteString(": ")
		sb.WriteString(turn.Parts[0])
		sb.WriteString("\n")
	}
	return sb.String()
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// =============================================================================
// RESEARCH TYPES
// =============================================================================

// SearchResult is one web search hit.
type SearchResult struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}
