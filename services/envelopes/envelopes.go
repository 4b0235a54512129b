package envelopes

import (
	"encoding/json"
	"regexp"
	"strings"

	"slackrelay/core"
	"slackrelay/models"
)

// Message timestamps are dot-decimal, e.g. "1712345678.000100"
var messageTSPattern = regexp.MustCompile(`^\d+\.\d+$`)

// rawEnvelope is the superset of both wire shapes. Which variant a payload
// is gets decided by which fields are present.
type rawEnvelope struct {
	Channel  string                  `json:"channel"`
	Text     string                  `json:"text"`
	ThreadTS string                  `json:"thread_ts"`
	TTL      *int                    `json:"ttl"`
	Metadata *models.MessageMetadata `json:"metadata"`
	Reaction string                  `json:"reaction"`
	TS       string                  `json:"ts"`
	Remove   *bool                   `json:"remove"`
}

// Codec parses raw queue entries into typed commands. Decoding is a pure
// function: malformed input produces a *core.MalformedEnvelopeError and
// never anything worse.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Decode parses and validates one raw queue entry
func (c *Codec) Decode(payload string) (models.Command, error) {
	var raw rawEnvelope
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, &core.MalformedEnvelopeError{
			Payload: payload,
			Reason:  "unparseable structure: " + err.Error(),
		}
	}

	if raw.Reaction != "" || raw.TS != "" || raw.Remove != nil {
		return c.decodeRemoveReaction(payload, raw)
	}
	return c.decodePostMessage(payload, raw)
}

func (c *Codec) decodePostMessage(payload string, raw rawEnvelope) (models.Command, error) {
	channel := strings.TrimSpace(raw.Channel)
	text := strings.TrimSpace(raw.Text)
	if channel == "" {
		return nil, &core.MalformedEnvelopeError{Payload: payload, Reason: "channel is required"}
	}
	if text == "" {
		return nil, &core.MalformedEnvelopeError{Payload: payload, Reason: "text is required"}
	}

	ttl := 0
	if raw.TTL != nil {
		if *raw.TTL < 0 {
			return nil, &core.MalformedEnvelopeError{Payload: payload, Reason: "ttl must be non-negative"}
		}
		ttl = *raw.TTL
	}

	if raw.Metadata != nil && strings.TrimSpace(raw.Metadata.EventType) == "" {
		return nil, &core.MalformedEnvelopeError{
			Payload: payload,
			Reason:  "metadata requires an event_type",
		}
	}

	return &models.PostMessageCommand{
		Channel:  channel,
		Text:     text,
		ThreadTS: strings.TrimSpace(raw.ThreadTS),
		TTL:      ttl,
		Metadata: raw.Metadata,
	}, nil
}

func (c *Codec) decodeRemoveReaction(payload string, raw rawEnvelope) (models.Command, error) {
	reaction := strings.TrimSpace(raw.Reaction)
	channel := strings.TrimSpace(raw.Channel)
	if reaction == "" {
		return nil, &core.MalformedEnvelopeError{Payload: payload, Reason: "reaction is required"}
	}
	if strings.ContainsAny(reaction, ": ") {
		return nil, &core.MalformedEnvelopeError{
			Payload: payload,
			Reason:  "reaction must be an emoji short name without delimiters",
		}
	}
	if channel == "" {
		return nil, &core.MalformedEnvelopeError{Payload: payload, Reason: "channel is required"}
	}
	if !messageTSPattern.MatchString(raw.TS) {
		return nil, &core.MalformedEnvelopeError{Payload: payload, Reason: "ts must be a dot-decimal timestamp"}
	}
	if raw.Remove == nil || !*raw.Remove {
		return nil, &core.MalformedEnvelopeError{
			Payload: payload,
			Reason:  "reaction envelopes must set remove: true",
		}
	}

	return &models.RemoveReactionCommand{
		Reaction: reaction,
		Channel:  channel,
		TS:       raw.TS,
	}, nil
}
