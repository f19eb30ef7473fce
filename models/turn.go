package models

import "time"

// Fragment is one raw inbound message awaiting aggregation.
type Fragment struct {
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn is one logical unit of conversational input, assembled from the
// fragments a sender produced within the quiet period.
type Turn struct {
	ConversationID string     `json:"conversation_id"`
	Content        string     `json:"content"` // Fragments joined in arrival order
	Fragments      []Fragment `json:"fragments"`
	FlushedAt      time.Time  `json:"flushed_at"`
}

// ContextMessage is one entry of the rolling conversation history handed to
// the decision model.
type ContextMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
