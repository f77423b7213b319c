package core

import (
	"encoding/json"
	"strings"
)

// FallbackReply is returned to the user whenever generation fails. It is
// recorded in the chat log like any other assistant turn.
const FallbackReply = "Sorry, my brain just buffered for a second. Could you say that again?"

const personaPreamble = `You are Stan, a friendly and attentive conversational assistant.
You remember what users tell you across conversations and use that knowledge
naturally, without announcing that you are consulting memory. Keep replies
concise and warm.`

// buildPrompt renders a context bundle into the system prompt sent to the
// generation provider. The user's current message travels separately as the
// final conversation message.
func buildPrompt(bundle *ContextBundle) string {
	var b strings.Builder

	b.WriteString(personaPreamble)
	b.WriteString("\n\n")

	b.WriteString("## What you know about this user\n")
	if len(bundle.Profile) == 0 {
		b.WriteString("Nothing yet.\n")
	} else {
		// Deterministic rendering keeps prompts stable across turns.
		facts, err := json.MarshalIndent(bundle.Profile, "", "  ")
		if err != nil {
			b.WriteString("Nothing yet.\n")
		} else {
			b.Write(facts)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Relevant memories from past conversations\n")
	if len(bundle.Memories) == 0 {
		b.WriteString("No relevant memories.\n")
	} else {
		for _, m := range bundle.Memories {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
	}

	return b.String()
}
