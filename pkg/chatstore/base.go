// Package chatstore provides interfaces and types for structured conversation storage.
//
// It defines the Store interface that all structured storage implementations must
// satisfy: durable per-user profiles (key/value facts) and an append-only log of
// chat turns queryable by recency.
package chatstore

import (
	"context"
	"time"
)

// Role identifies the speaker of a chat turn.
type Role string

const (
	// RoleUser marks a turn sent by the user.
	RoleUser Role = "user"

	// RoleAssistant marks a turn generated by the assistant.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known speaker roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Profile holds the structured facts remembered about a user.
//
// Facts are free-form name/value pairs. A fact value may itself be structured
// text (for example a JSON fragment); the store treats it as opaque.
type Profile struct {
	// UserID identifies the user this profile belongs to.
	UserID string `json:"user_id"`

	// Facts maps fact names to fact values.
	// A freshly created profile has an empty (non-nil) map.
	Facts map[string]string `json:"facts"`

	// CreatedAt is when the profile row was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the profile was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatTurn is a single message in a user's conversation log.
//
// Turns are append-only: once written they are never mutated, and they are
// removed only when the whole user is purged.
type ChatTurn struct {
	// ID is the store-assigned sequence number. IDs are monotonically
	// increasing per store, so they double as a chronological tiebreaker
	// when timestamps collide.
	ID int64 `json:"id"`

	// UserID identifies the user the turn belongs to.
	UserID string `json:"user_id"`

	// Role is the speaker of the turn.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// CreatedAt is the server-assigned creation time.
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for structured conversation storage backends.
//
// Implementations are responsible for their own internal concurrency safety;
// callers may invoke any method from multiple goroutines.
type Store interface {
	// GetOrCreateProfile returns the profile for the user, creating an empty
	// one if none exists yet. Concurrent calls for the same user must not
	// create duplicate rows: uniqueness is enforced on the user id.
	GetOrCreateProfile(ctx context.Context, userID string) (*Profile, error)

	// UpdateProfile merges the given facts into the user's profile and writes
	// the merged mapping back as a whole. New keys override existing keys of
	// the same name, other keys are retained.
	//
	// The read-merge-write sequence is not serialized against concurrent
	// updates for the same user: the last writer wins. This is acceptable
	// because fact merges are idempotent, not counters.
	UpdateProfile(ctx context.Context, userID string, facts map[string]string) error

	// AppendTurn appends one turn to the user's conversation log.
	// It returns an error if the write cannot be durably committed; a turn
	// is never silently dropped.
	AppendTurn(ctx context.Context, userID string, role Role, content string) error

	// RecentHistory returns at most limit most-recent turns for the user in
	// chronological (oldest-first) order. A user with no history yields an
	// empty slice, not an error.
	RecentHistory(ctx context.Context, userID string, limit int) ([]ChatTurn, error)

	// PurgeUser deletes the user's profile and complete conversation log.
	// Purging a user that does not exist succeeds with no effect.
	PurgeUser(ctx context.Context, userID string) error

	// Close closes the store and releases resources.
	Close() error
}
