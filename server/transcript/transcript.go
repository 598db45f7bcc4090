// Package transcript turns a conversation history and a new message into the
// single prompt string sent to the completion API.
//
// A transcript with two prior turns looks like:
//
//	Human: hi
//	Vitsa: hello
//	Human: how are you?
//	Vitsa:
//
// The trailing bare assistant label is the cue where the model continues.
// Content is copied verbatim: nothing is escaped, truncated or reordered.
package transcript

import (
	"strings"
)

// HumanLabel prefixes every human turn and the new message.
const HumanLabel = "Human"

// Roles accepted for the human side of a conversation. Everything else is
// rendered with the assistant label.
const (
	RoleHuman     = "human"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=human user assistant"`
	Content string `json:"content" validate:"required"`
}

// IsHuman reports whether the turn was written by the human side.
func (t Turn) IsHuman() bool {
	return t.Role == RoleHuman || t.Role == RoleUser
}

// Formatter renders transcripts with a fixed assistant persona label.
// The zero value is not usable; create one with NewFormatter.
type Formatter struct {
	assistantLabel string
}

// NewFormatter returns a Formatter that labels assistant turns with label.
func NewFormatter(assistantLabel string) *Formatter {
	return &Formatter{assistantLabel: assistantLabel}
}

// AssistantLabel returns the persona label used for assistant turns.
func (f *Formatter) AssistantLabel() string {
	return f.assistantLabel
}

// Format builds the transcript for history followed by message.
func (f *Formatter) Format(history []Turn, message string) string {
	var b strings.Builder
	for _, turn := range history {
		if turn.IsHuman() {
			b.WriteString(HumanLabel)
		} else {
			b.WriteString(f.assistantLabel)
		}
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}

	b.WriteString(HumanLabel)
	b.WriteString(": ")
	b.WriteString(message)
	b.WriteByte('\n')
	b.WriteString(f.assistantLabel)
	b.WriteByte(':')
	return b.String()
}
