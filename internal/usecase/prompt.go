package usecase

import (
	"strings"

	"discord-ollama/internal/domain"
)

const rejoinInstructions = "Continue where the conversation left off. Answer everything in the same style as the bot in the following conversation."

// Attachment is a file attached to an incoming chat message.
type Attachment struct {
	Name        string
	ContentType string
	URL         string
}

func (a Attachment) isText() bool {
	return strings.HasPrefix(a.ContentType, "text/")
}

// promptParts are the pieces of one user turn.
type promptParts struct {
	content     string
	attachments []string
	replied     *string
}

// buildUserInput appends text attachments and the replied-to message to the
// user's own text.
func buildUserInput(p promptParts) string {
	var b strings.Builder
	b.WriteString(p.content)
	if len(p.attachments) > 0 {
		b.WriteString("\n\nText Attachments:\n")
		b.WriteString(strings.Join(p.attachments, "\n\n"))
	}
	if p.replied != nil {
		b.WriteString("\n\nReplied Message:\n")
		b.WriteString(*p.replied)
	}
	return b.String()
}

func attachmentText(name, body string) string {
	return "File: " + name + "\n" + body
}

func attachmentError(name string) string {
	return "Error processing file: " + name
}

// withRestoredConversation prefixes input with a rejoined conversation.
func withRestoredConversation(st domain.BotState, input string) string {
	if st.RestoredConversation == "" {
		return input
	}
	return st.RestoredInstructions + "\n\nConversation history:\n" + st.RestoredConversation + "\n\nNew user message: " + input
}

// formatConversation renders cached messages as a plain transcript.
func formatConversation(messages []domain.CachedMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		role := "bot message:"
		if m.Data.IsUserMessage {
			role = "user message:"
		}
		parts = append(parts, role+"\n"+m.Data.Content+"\n")
	}
	return strings.Join(parts, "\n")
}
