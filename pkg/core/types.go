package core

import "github.com/stanchat/convomem-go/pkg/chatstore"

// ContextBundle is the assembled input handed to the generation provider for
// one turn. It is constructed fresh per turn and discarded after the
// generation call; nothing in it is persisted.
type ContextBundle struct {
	// UserID identifies the conversation partner.
	UserID string

	// Message is the user's latest message.
	Message string

	// Profile holds the structured facts known about the user.
	Profile map[string]string

	// History is the recent conversation in chronological order, bounded
	// by the configured history limit.
	History []chatstore.ChatTurn

	// Memories are the semantically relevant snippets recalled for the
	// message, most similar first, bounded by the configured top-k.
	// Empty when the semantic side degraded or holds nothing yet.
	Memories []string
}
