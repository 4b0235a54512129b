package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"slackrelay/clients"
)

// SlackClient implements the clients.MessagingClient interface using the
// slack-go/slack SDK
type SlackClient struct {
	client *slack.Client
}

// NewSlackClient creates a new Slack client with the provided bot token
func NewSlackClient(authToken string) clients.MessagingClient {
	return &SlackClient{
		client: slack.New(authToken),
	}
}

// AuthTest verifies the bot token is valid
func (c *SlackClient) AuthTest(ctx context.Context) error {
	if _, err := c.client.AuthTestContext(ctx); err != nil {
		return classifyAPIError(fmt.Errorf("auth test failed: %w", err))
	}
	return nil
}

// PostMessage sends a message to a Slack channel and returns the
// API-assigned channel ID and message timestamp
func (c *SlackClient) PostMessage(
	ctx context.Context,
	req clients.PostMessageRequest,
) (*clients.PostMessageResponse, error) {
	options := []slack.MsgOption{
		slack.MsgOptionText(req.Text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	}
	if req.ThreadTS != "" {
		options = append(options, slack.MsgOptionTS(req.ThreadTS))
	}
	if req.Metadata != nil {
		options = append(options, slack.MsgOptionMetadata(slack.SlackMetadata{
			EventType:    req.Metadata.EventType,
			EventPayload: req.Metadata.EventPayload,
		}))
	}

	channel, timestamp, err := c.client.PostMessageContext(ctx, req.Channel, options...)
	if err != nil {
		return nil, classifyAPIError(fmt.Errorf("failed to post message: %w", err))
	}

	return &clients.PostMessageResponse{
		Channel:   channel,
		Timestamp: timestamp,
	}, nil
}

// DeleteMessage deletes a previously posted message
func (c *SlackClient) DeleteMessage(ctx context.Context, channel, ts string) error {
	if _, _, err := c.client.DeleteMessageContext(ctx, channel, ts); err != nil {
		return classifyAPIError(fmt.Errorf("failed to delete message: %w", err))
	}
	return nil
}

// RemoveReaction removes an emoji reaction from a message
func (c *SlackClient) RemoveReaction(ctx context.Context, channel, ts, reaction string) error {
	itemRef := slack.ItemRef{
		Channel:   channel,
		Timestamp: ts,
	}
	if err := c.client.RemoveReactionContext(ctx, reaction, itemRef); err != nil {
		return classifyAPIError(fmt.Errorf("failed to remove reaction: %w", err))
	}
	return nil
}
