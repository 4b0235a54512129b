package envelopes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackrelay/core"
	"slackrelay/models"
)

func TestCodecDecode(t *testing.T) {
	codec := NewCodec()

	t.Run("PostMessage", func(t *testing.T) {
		t.Run("AllFieldsRoundTrip", func(t *testing.T) {
			payload := `{"channel":"#general","text":"hi","thread_ts":"1712345678.000100","ttl":300,` +
				`"metadata":{"event_type":"deploy","event_payload":{"service":"api","nested":{"ok":true}}}}`

			cmd, err := codec.Decode(payload)
			require.NoError(t, err)

			postCmd, ok := cmd.(*models.PostMessageCommand)
			require.True(t, ok)
			assert.Equal(t, "#general", postCmd.Channel)
			assert.Equal(t, "hi", postCmd.Text)
			assert.Equal(t, "1712345678.000100", postCmd.ThreadTS)
			assert.Equal(t, 300, postCmd.TTL)
			require.NotNil(t, postCmd.Metadata)
			assert.Equal(t, "deploy", postCmd.Metadata.EventType)
			assert.Equal(t, "api", postCmd.Metadata.EventPayload["service"])
			assert.Equal(t, map[string]any{"ok": true}, postCmd.Metadata.EventPayload["nested"])
		})

		t.Run("MinimalFields", func(t *testing.T) {
			cmd, err := codec.Decode(`{"channel":"C123","text":"hello"}`)
			require.NoError(t, err)

			postCmd, ok := cmd.(*models.PostMessageCommand)
			require.True(t, ok)
			assert.Equal(t, 0, postCmd.TTL)
			assert.Nil(t, postCmd.Metadata)
		})

		t.Run("TrimsWhitespace", func(t *testing.T) {
			cmd, err := codec.Decode(`{"channel":"  C123  ","text":"  hello  "}`)
			require.NoError(t, err)

			postCmd := cmd.(*models.PostMessageCommand)
			assert.Equal(t, "C123", postCmd.Channel)
			assert.Equal(t, "hello", postCmd.Text)
		})

		t.Run("ZeroTTLAllowed", func(t *testing.T) {
			cmd, err := codec.Decode(`{"channel":"C123","text":"hello","ttl":0}`)
			require.NoError(t, err)
			assert.Equal(t, 0, cmd.(*models.PostMessageCommand).TTL)
		})
	})

	t.Run("RemoveReaction", func(t *testing.T) {
		t.Run("Valid", func(t *testing.T) {
			payload := `{"reaction":"heart_eyes_cat","channel":"C1234567890","ts":"1712345678.000100","remove":true}`

			cmd, err := codec.Decode(payload)
			require.NoError(t, err)

			reactionCmd, ok := cmd.(*models.RemoveReactionCommand)
			require.True(t, ok)
			assert.Equal(t, "heart_eyes_cat", reactionCmd.Reaction)
			assert.Equal(t, "C1234567890", reactionCmd.Channel)
			assert.Equal(t, "1712345678.000100", reactionCmd.TS)
		})
	})

	t.Run("Malformed", func(t *testing.T) {
		tests := []struct {
			name    string
			payload string
			reason  string
		}{
			{"UnparseableStructure", `{not json`, "unparseable structure"},
			{"WrongFieldType", `{"channel":"C123","text":"x","ttl":"soon"}`, "unparseable structure"},
			{"MissingChannel", `{"text":"hello"}`, "channel is required"},
			{"MissingText", `{"channel":"C123"}`, "text is required"},
			{"BlankText", `{"channel":"C123","text":"   "}`, "text is required"},
			{"NegativeTTL", `{"channel":"C123","text":"x","ttl":-1}`, "ttl must be non-negative"},
			{"MetadataWithoutEventType", `{"channel":"C123","text":"x","metadata":{"event_payload":{}}}`, "event_type"},
			{"ReactionMissingName", `{"channel":"C123","ts":"1.2","remove":true}`, "reaction is required"},
			{"ReactionWithColons", `{"reaction":":tada:","channel":"C123","ts":"1.2","remove":true}`, "delimiters"},
			{"ReactionMissingChannel", `{"reaction":"tada","ts":"1.2","remove":true}`, "channel is required"},
			{"ReactionBadTS", `{"reaction":"tada","channel":"C123","ts":"not-a-ts","remove":true}`, "dot-decimal"},
			{"ReactionMissingRemove", `{"reaction":"tada","channel":"C123","ts":"1.2"}`, "remove: true"},
			{"ReactionRemoveFalse", `{"reaction":"tada","channel":"C123","ts":"1.2","remove":false}`, "remove: true"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cmd, err := codec.Decode(tt.payload)
				require.Error(t, err)
				assert.Nil(t, cmd)

				var malformed *core.MalformedEnvelopeError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, tt.payload, malformed.Payload)
				assert.Contains(t, malformed.Reason, tt.reason)
			})
		}
	})
}
