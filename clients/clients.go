package clients

import (
	"context"
)

// MessageMetadata represents metadata forwarded alongside a posted message
type MessageMetadata struct {
	EventType    string
	EventPayload map[string]any
}

// PostMessageRequest carries everything needed to post a message
type PostMessageRequest struct {
	Channel  string
	Text     string
	ThreadTS string // optional; when set the message is posted as a threaded reply
	Metadata *MessageMetadata
}

// PostMessageResponse carries the API-assigned identifiers of a posted message
type PostMessageResponse struct {
	Channel   string
	Timestamp string
}

// MessagingClient defines the outbound messaging API surface used by the relay.
// Implementations must be safe for concurrent use and must return failures
// already classified as *core.APIError so the retry executor can decide
// whether a call is worth retrying.
type MessagingClient interface {
	AuthTest(ctx context.Context) error
	PostMessage(ctx context.Context, req PostMessageRequest) (*PostMessageResponse, error)
	DeleteMessage(ctx context.Context, channel, ts string) error
	RemoveReaction(ctx context.Context, channel, ts, reaction string) error
}
