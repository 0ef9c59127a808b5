package archive

import "time"

const recordVersion = "1.0"

// TranscriptRecord is the document written to S3 for each closed conversation.
type TranscriptRecord struct {
	Version         string     `json:"version"`
	ConversationID  string     `json:"conversation_id"`
	BusinessID      string     `json:"business_id"`
	LeadHash        string     `json:"lead_hash"`
	Channel         string     `json:"channel"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ArchivedAt      time.Time  `json:"archived_at"`
	DurationSeconds int        `json:"duration_seconds"`
	MessageCount    int        `json:"message_count"`
	LeadMessages    int        `json:"lead_messages"`
	Messages        []Message  `json:"messages"`
}

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"` // lead|assistant|operator
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in a business's monthly manifest.
type ManifestEntry struct {
	ConversationID string `json:"conversation_id"`
	S3Key          string `json:"s3_key"`
	ArchivedAt     string `json:"archived_at"`
	MessageCount   int    `json:"message_count"`
	Channel        string `json:"channel"`
}
