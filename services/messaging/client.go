package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type outboundMessage struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private,omitempty"`
}

// Client talks to the support-desk REST API.
type Client struct {
	http      *resty.Client
	accountID string
	logger    *zap.Logger
}

// NewClient builds a Messenger for the support desk at baseURL.
func NewClient(baseURL, apiToken, accountID string, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("api_access_token", apiToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: http, accountID: accountID, logger: logger}
}

func (c *Client) SendReply(ctx context.Context, conversationID, content string) error {
	return c.post(ctx, conversationID, outboundMessage{Content: content, MessageType: "outgoing"})
}

// SendPrivateNote posts an internal note visible to human agents only.
func (c *Client) SendPrivateNote(ctx context.Context, conversationID, content string) error {
	return c.post(ctx, conversationID, outboundMessage{Content: content, MessageType: "outgoing", Private: true})
}

func (c *Client) post(ctx context.Context, conversationID string, msg outboundMessage) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		Post(fmt.Sprintf("/api/v1/accounts/%s/conversations/%s/messages", c.accountID, conversationID))
	if err != nil {
		return fmt.Errorf("message post failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("message post returned %d: %s", resp.StatusCode(), resp.String())
	}
	c.logger.Debug("message sent",
		zap.String("conversation", conversationID),
		zap.Bool("private", msg.Private))
	return nil
}

// DownloadAttachment fetches an attachment payload from its data URL.
func (c *Client) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("attachment download failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("attachment download returned %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
