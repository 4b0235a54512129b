package slack

import (
	"errors"
	"net/http"

	"github.com/slack-go/slack"

	"slackrelay/core"
)

// Slack API error codes that indicate a server-side problem worth retrying.
// Everything else the Web API names (channel_not_found, invalid_auth, ...)
// is a problem with the request itself and will not get better on retry.
var transientSlackErrors = map[string]bool{
	"internal_error":      true,
	"fatal_error":         true,
	"service_unavailable": true,
	"request_timeout":     true,
}

// classifyAPIError maps a slack-go error to the relay's failure taxonomy.
// Rate-limit responses carry the advertised wait so the retry executor can
// honor it exactly.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return core.NewRateLimitedError(err, rateLimited.RetryAfter)
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests {
			return core.NewTransientError(err)
		}
		return core.NewPermanentError(err)
	}

	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		if transientSlackErrors[slackErr.Err] {
			return core.NewTransientError(err)
		}
		return core.NewPermanentError(err)
	}

	// Transport-level failures (connection reset, DNS, timeouts)
	return core.NewTransientError(err)
}
