package config

import "time"

// NewAckForTest creates an Ack config with default values for testing purposes
func NewAckForTest(configPath string) *Ack {
	return &Ack{
		configPath:        configPath,
		reaction:          "thumbsup",
		reminderTemplate:  "<@{{ .Requester }}> {{ .Permalink }}",
		concurrency:       3,
		reminderFrequency: time.Hour,
		expiry:            DefaultExpiry,
	}
}

// Apply is exported for testing
func (x *Ack) Apply(file *AckFile, isSet func(name string) bool) error {
	return x.apply(file, isSet)
}

// Validate is exported for testing
func (x *Ack) Validate() error {
	return x.validate()
}

// Values returns the effective settings for testing
func (x *Ack) Values() (reaction string, concurrency int, frequency, expiry time.Duration) {
	return x.reaction, x.concurrency, x.reminderFrequency, x.expiry
}

// NewQueueForTest creates a Queue config for testing purposes
func NewQueueForTest(backend, redisAddr, redisURL, projectID string) *Queue {
	return &Queue{
		backend:   backend,
		redisAddr: redisAddr,
		redisURL:  redisURL,
		projectID: projectID,
		redisKey:  "ackbot:test",
	}
}

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, signingSecret string, cacheTTL time.Duration) *Slack {
	return &Slack{
		botToken:      botToken,
		signingSecret: signingSecret,
		cacheTTL:      cacheTTL,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewRedactor is exported for testing
var NewRedactor = newRedactor

// NewSlackSecretsForTest creates a Slack config whose credentials come from secrets
func NewSlackSecretsForTest(botToken, botTokenSecret, signingSecretName string) *Slack {
	return &Slack{
		botToken:          botToken,
		botTokenSecret:    botTokenSecret,
		signingSecretName: signingSecretName,
	}
}

// BotToken returns the bot token for testing
func (x *Slack) BotToken() string {
	return x.botToken
}
