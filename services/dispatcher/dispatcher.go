package dispatcher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"slackrelay/clients"
	"slackrelay/models"
	"slackrelay/services/retry"
)

// TimeBombRegistrar arms a scheduled deletion for a freshly posted message
type TimeBombRegistrar interface {
	Register(ctx context.Context, deletion *models.ScheduledDeletion) error
}

// Dispatcher routes validated commands to the matching messaging API
// operation. It holds no mutable state of its own: side effects are the API
// calls and the TimeBomb registrations it hands to the scheduler. Every
// outbound call goes through the retry executor, never directly.
type Dispatcher struct {
	client    clients.MessagingClient
	executor  *retry.Executor
	registrar TimeBombRegistrar
	clock     func() time.Time
}

func NewDispatcher(
	client clients.MessagingClient,
	executor *retry.Executor,
	registrar TimeBombRegistrar,
) *Dispatcher {
	return &Dispatcher{
		client:    client,
		executor:  executor,
		registrar: registrar,
		clock:     time.Now,
	}
}

// Dispatch routes cmd to its handler
func (d *Dispatcher) Dispatch(ctx context.Context, cmd models.Command) error {
	switch c := cmd.(type) {
	case *models.PostMessageCommand:
		_, err := d.HandlePost(ctx, c)
		return err
	case *models.RemoveReactionCommand:
		return d.HandleRemoveReaction(ctx, c)
	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type())
	}
}

// HandlePost posts the message and, when a TTL is present, arms a TimeBomb
// for the API-assigned timestamp. Metadata does not alter posting behavior;
// it is attached to the message and surfaced in the logs.
func (d *Dispatcher) HandlePost(
	ctx context.Context,
	cmd *models.PostMessageCommand,
) (*clients.PostMessageResponse, error) {
	log.Printf("📋 Starting to post message to channel %s", cmd.Channel)

	req := clients.PostMessageRequest{
		Channel:  cmd.Channel,
		Text:     cmd.Text,
		ThreadTS: cmd.ThreadTS,
	}
	if cmd.Metadata != nil {
		log.Printf("📎 Including metadata with event_type: %s", cmd.Metadata.EventType)
		req.Metadata = &clients.MessageMetadata{
			EventType:    cmd.Metadata.EventType,
			EventPayload: cmd.Metadata.EventPayload,
		}
	}

	var response *clients.PostMessageResponse
	postedAt := d.clock()
	_, err := d.executor.Do(ctx, "post message", func(ctx context.Context) error {
		resp, err := d.client.PostMessage(ctx, req)
		if err != nil {
			return err
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Message posted to channel %s (timestamp: %s)", response.Channel, response.Timestamp)

	if cmd.TTL > 0 {
		deletion := &models.ScheduledDeletion{
			Channel:   response.Channel,
			MessageTS: response.Timestamp,
			DeleteAt:  postedAt.Add(time.Duration(cmd.TTL) * time.Second),
		}
		if err := d.registrar.Register(ctx, deletion); err != nil {
			return response, fmt.Errorf(
				"message posted but TimeBomb registration failed for ts %s: %w",
				response.Timestamp, err)
		}
	}

	return response, nil
}

// HandleRemoveReaction removes a reaction from a message. The API reporting
// the reaction as already absent counts as success: the desired end state
// already holds.
func (d *Dispatcher) HandleRemoveReaction(ctx context.Context, cmd *models.RemoveReactionCommand) error {
	log.Printf("📋 Starting to remove reaction %s from message %s in channel %s",
		cmd.Reaction, cmd.TS, cmd.Channel)

	_, err := d.executor.Do(ctx, "remove reaction", func(ctx context.Context) error {
		return d.client.RemoveReaction(ctx, cmd.Channel, cmd.TS, cmd.Reaction)
	})
	if err != nil {
		if strings.Contains(err.Error(), "no_reaction") {
			log.Printf("✅ Reaction %s already absent from message %s, nothing to do", cmd.Reaction, cmd.TS)
			return nil
		}
		return err
	}

	log.Printf("✅ Reaction %s removed from message %s in channel %s", cmd.Reaction, cmd.TS, cmd.Channel)
	return nil
}
