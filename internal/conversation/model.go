package conversation

import (
	"time"

	"github.com/wolfman30/leadqual-platform/internal/leads"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Conversation is one thread of messages with a lead. A lead has at most one
// active conversation; closed conversations are never reopened.
type Conversation struct {
	ID            string        `json:"id"`
	LeadID        string        `json:"lead_id"`
	BusinessID    string        `json:"business_id"`
	Status        Status        `json:"status"`
	Channel       leads.Channel `json:"channel"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
}

// Message is a single utterance in a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	IsFromLead     bool           `json:"is_from_lead"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// GeneratedByAI reports whether the assistant authored the message.
func (m Message) GeneratedByAI() bool {
	v, _ := m.Metadata[metaGeneratedByAI].(bool)
	return v
}

const (
	metaGeneratedByAI     = "generated_by_ai"
	metaProviderMessageID = "provider_message_id"
	metaChannel           = "channel"
)

// InboundMessage is a lead-authored message arriving from a messaging provider.
type InboundMessage struct {
	Phone             string        `json:"phone"`
	Text              string        `json:"text"`
	Channel           leads.Channel `json:"channel"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
}

// InboundResult describes what HandleInbound persisted and sent.
type InboundResult struct {
	LeadID           string `json:"lead_id" dynamodbav:"leadId"`
	BusinessID       string `json:"business_id" dynamodbav:"businessId"`
	ConversationID   string `json:"conversation_id" dynamodbav:"conversationId"`
	InboundMessageID string `json:"inbound_message_id" dynamodbav:"inboundMessageId"`
	ReplyMessageID   string `json:"reply_message_id,omitempty" dynamodbav:"replyMessageId,omitempty"`
	Reply            string `json:"reply,omitempty" dynamodbav:"reply,omitempty"`
	NewConversation  bool   `json:"new_conversation" dynamodbav:"newConversation"`
}

// Transcript is a closed conversation with all of its messages.
type Transcript struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}
