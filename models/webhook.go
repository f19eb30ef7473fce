package models

// Webhook event names from the messaging platform.
const (
	EventMessageCreated      = "message_created"
	EventConversationCreated = "conversation_created"
	EventStatusChanged       = "conversation_status_changed"
)

// WebhookSender identifies who produced a message. Type "user" means a human
// agent replied from the platform dashboard; "contact" is the end client.
type WebhookSender struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// WebhookContact carries the client identity attached to a conversation.
type WebhookContact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier"`
}

// WebhookConversation is the conversation snapshot inside a webhook payload.
type WebhookConversation struct {
	ID      int64           `json:"id"`
	Status  string          `json:"status"`
	Contact *WebhookContact `json:"contact,omitempty"`
}

// WebhookAttachment references media uploaded with a message. Content is
// fetched by URL on demand, never stored.
type WebhookAttachment struct {
	FileType  string `json:"file_type"`
	DataURL   string `json:"data_url"`
	Extension string `json:"extension"`
}

// WebhookPayload is the inbound event envelope. Delivery is at-least-once,
// so events are deduped on (conversation id, message id, timestamp).
type WebhookPayload struct {
	Event        string               `json:"event"`
	ID           int64                `json:"id"`
	Content      string               `json:"content"`
	MessageType  string               `json:"message_type"` // incoming | outgoing
	Private      bool                 `json:"private"`
	CreatedAt    int64                `json:"created_at"` // Unix seconds
	Status       string               `json:"status,omitempty"`
	Sender       *WebhookSender       `json:"sender,omitempty"`
	Conversation *WebhookConversation `json:"conversation,omitempty"`
	Attachments  []WebhookAttachment  `json:"attachments,omitempty"`
}

// WebhookResult reports how an inbound event was handled.
type WebhookResult struct {
	Status         string `json:"status"` // queued | skipped | rate_limited | transferred | created | ...
	Reason         string `json:"reason,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}
