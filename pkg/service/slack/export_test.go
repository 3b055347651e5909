package slack

import "time"

// Export internal functions and types for testing
var (
	SlackErrorCode = slackErrorCode
)

// WithRetryInterval shortens the first backoff interval for testing
func WithRetryInterval(d time.Duration) Option {
	return func(c *client) {
		c.retryInterval = d
	}
}
