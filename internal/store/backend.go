package store

import (
	"context"

	"ghostbot/internal/types"
)

// Backend persists one record per user. Implementations hold no lock across
// calls; concurrent upserts for the same user are last-write-wins.
type Backend interface {
	// Load returns ErrNotFound when no record exists and an error wrapping
	// ErrCorrupt when the stored record cannot be decoded.
	Load(ctx context.Context, userID int64) (*types.ConversationState, error)
	// Upsert writes state as-is, including LastActivity.
	Upsert(ctx context.Context, state *types.ConversationState) error
	// Delete removes the record and reports whether one existed.
	Delete(ctx context.Context, userID int64) (bool, error)
	Close() error
}
