package dialogue

import (
	"fmt"
	"strings"

	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/types"
)

// promptInput is everything a prompt is rendered from.
type promptInput struct {
	Persona   string
	UserName  string
	WordLimit int
	Recent    []types.Message
	Memories  []memory.Turn
	NewTopic  bool
}

// openerPrompt renders the first question of a session. Stored memories are
// deliberately left out so the conversation starts fresh.
func openerPrompt(in promptInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. You are speaking to %s.", in.Persona, in.UserName)
	sb.WriteString(" Address them by name and get to know them by asking about experiences from their life.")
	fmt.Fprintf(&sb, " Keep your message brief, %d words maximum.", in.WordLimit)
	sb.WriteString(" The conversation happens through text to speech, so use emotional cues to show genuine interest.")
	sb.WriteString(" Ask one question to start the conversation.")
	return sb.String()
}

// followUpPrompt renders every later question from the recent messages and
// what is remembered about the user.
func followUpPrompt(in promptInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, continuing a conversation with %s.", in.Persona, in.UserName)

	// ── Recent conversation ─────────────────────────────────────────────────
	if len(in.Recent) > 0 {
		sb.WriteString("\n\n## Recent Conversation\n")
		for _, m := range in.Recent {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}

	// ── Memories ────────────────────────────────────────────────────────────
	if s := formatMemories(in.Memories); s != "" {
		fmt.Fprintf(&sb, "\n## What You Remember About %s\n", in.UserName)
		sb.WriteString(s)
	}

	sb.WriteString("\n")
	if in.NewTopic {
		sb.WriteString("You have followed up on this topic enough. Move on and ask about a different part of their life.")
	} else {
		sb.WriteString("Based on this context, ask a follow-up question or make a comment that keeps the conversation flowing.")
	}
	fmt.Fprintf(&sb, " Keep your response brief, %d words maximum.", in.WordLimit)
	sb.WriteString(" Show genuine interest in their answers and ask for more details when appropriate.")
	return sb.String()
}

// formatMemories renders turns with at least one remembered answer.
func formatMemories(turns []memory.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		if len(t.Answers) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "- Asked %q, they said: %s\n", t.Question, strings.Join(t.Answers, " "))
	}
	return sb.String()
}
