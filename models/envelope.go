package models

// CommandType identifies which envelope variant a command was decoded from.
type CommandType string

const (
	CommandTypePostMessage    CommandType = "post_message"
	CommandTypeRemoveReaction CommandType = "remove_reaction"
)

// Command is the common interface over the envelope variants popped from the queue.
type Command interface {
	Type() CommandType
}

// MessageMetadata represents optional metadata to attach to a posted message.
// EventPayload is opaque to the relay - it is forwarded as-is, never interpreted.
type MessageMetadata struct {
	EventType    string         `json:"event_type"`
	EventPayload map[string]any `json:"event_payload"`
}

// PostMessageCommand represents a request to post a message to a channel,
// optionally as a threaded reply, with an optional TTL after which the
// message is deleted by the TimeBomb scheduler.
type PostMessageCommand struct {
	Channel  string
	Text     string
	ThreadTS string
	TTL      int // seconds; 0 means no scheduled deletion
	Metadata *MessageMetadata
}

func (c *PostMessageCommand) Type() CommandType {
	return CommandTypePostMessage
}

// RemoveReactionCommand represents a request to remove an emoji reaction
// from an existing message.
type RemoveReactionCommand struct {
	Reaction string // emoji short name without colons, e.g. "heart_eyes_cat"
	Channel  string
	TS       string // message timestamp, dot-decimal format
}

func (c *RemoveReactionCommand) Type() CommandType {
	return CommandTypeRemoveReaction
}
