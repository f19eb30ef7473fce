package messaging

import "context"

// Messenger sends outbound messages into a support-desk conversation and
// fetches message attachments. The processor re-checks the conversation
// gate immediately before calling SendReply, so implementations never need
// to reason about pause state.
type Messenger interface {
	SendReply(ctx context.Context, conversationID, content string) error
	SendPrivateNote(ctx context.Context, conversationID, content string) error
	DownloadAttachment(ctx context.Context, url string) ([]byte, error)
}
