package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/leadqual-platform/internal/business"
)

// MaxHistoryMessages is how many prior messages are handed to the generator.
const MaxHistoryMessages = 20

// BuildContext assembles the generator input: one system message describing
// the business and assistant, prior messages in order, then the latest lead
// message. It never touches storage; callers pass the history they want.
func BuildContext(profile business.Business, assistant business.AssistantConfig, history []Message, latest string) []ChatMessage {
	if len(history) > MaxHistoryMessages {
		history = history[len(history)-MaxHistoryMessages:]
	}

	out := make([]ChatMessage, 0, len(history)+2)
	out = append(out, ChatMessage{Role: ChatRoleSystem, Content: systemPrompt(profile, assistant)})
	for _, msg := range history {
		role := ChatRoleAssistant
		if msg.IsFromLead {
			role = ChatRoleUser
		}
		out = append(out, ChatMessage{Role: role, Content: msg.Content})
	}
	out = append(out, ChatMessage{Role: ChatRoleUser, Content: latest})
	return out
}

func systemPrompt(profile business.Business, assistant business.AssistantConfig) string {
	var b strings.Builder

	name := strings.TrimSpace(assistant.Name)
	if name == "" {
		name = "the assistant"
	}
	fmt.Fprintf(&b, "You are %s, %s for %s", name, orDefault(assistant.Role, "a sales assistant"), orDefault(profile.Name, "this business"))
	if industry := strings.TrimSpace(profile.Industry); industry != "" {
		fmt.Fprintf(&b, ", a business in the %s industry", industry)
	}
	b.WriteString(".\n")

	if desc := strings.TrimSpace(profile.ServiceDescription); desc != "" {
		fmt.Fprintf(&b, "Services offered: %s\n", desc)
	}
	if tone := strings.TrimSpace(assistant.Tone); tone != "" {
		fmt.Fprintf(&b, "Keep a %s tone.\n", tone)
	}
	if len(assistant.QualificationFields) > 0 {
		fmt.Fprintf(&b, "Over the conversation, naturally learn the lead's %s. Ask one question at a time.\n",
			strings.Join(assistant.QualificationFields, ", "))
	}
	b.WriteString("Keep replies short enough for a text message. When the lead seems ready, suggest booking a meeting.")
	return b.String()
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
