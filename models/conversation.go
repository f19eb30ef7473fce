package models

import "time"

// Conversation control states.
const (
	ControlAutomated = "automated"
	ControlPaused    = "paused"
)

// Pause reasons. Invariant: ControlState == paused <=> PauseReason != "".
const (
	PauseReasonHumanReply   = "human_reply"
	PauseReasonKeywordMatch = "keyword_match"
)

// Conversation tracks whether the assistant or a human currently owns a
// conversation. Records are created on first contact and only ever
// transitioned, never deleted.
type Conversation struct {
	ID            string     `bson:"id" json:"id"` // Messaging-platform conversation id
	SenderPhone   string     `bson:"sender_phone" json:"sender_phone"`
	ClientName    string     `bson:"client_name,omitempty" json:"client_name,omitempty"`
	ControlState  string     `bson:"control_state" json:"control_state"` // automated | paused
	PauseReason   string     `bson:"pause_reason,omitempty" json:"pause_reason,omitempty"`
	PausedBy      string     `bson:"paused_by,omitempty" json:"paused_by,omitempty"`
	PausedAt      *time.Time `bson:"paused_at,omitempty" json:"paused_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	LastMessageAt time.Time  `bson:"last_message_at" json:"last_message_at"`
}

// Paused reports whether a human agent currently owns the conversation.
func (c *Conversation) Paused() bool {
	return c.ControlState == ControlPaused
}
