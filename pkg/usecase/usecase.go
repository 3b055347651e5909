package usecase

import (
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/utils/async"
	"github.com/secmon-lab/ackbot/pkg/utils/keylock"
)

const (
	// DefaultReaction is the emoji the bot adds when it is asked to acknowledge a message itself
	DefaultReaction = "thumbsup"

	// DefaultReminderTemplate renders the direct message sent to outstanding users
	DefaultReminderTemplate = "<@{{ .Requester }}> requested that you acknowledge this message by reacting to it: {{ .Permalink }}"

	// DefaultReminderFrequency is how long a check waits in the queue before it is due again
	DefaultReminderFrequency = time.Hour
)

type config struct {
	reaction          string
	reminderTemplate  string
	concurrency       int
	reminderFrequency time.Duration
	expiry            time.Duration
	rescheduleFailed  bool
	now               func() time.Time
}

type UseCases struct {
	Ack   *AckUseCase
	Sweep *SweepUseCase
	Slack *SlackUseCases
}

type Option func(*config)

// WithReaction sets the emoji used for self acknowledgement
func WithReaction(emoji string) Option {
	return func(c *config) {
		c.reaction = emoji
	}
}

// WithReminderTemplate sets the text/template of reminder messages.
// Available fields: .Requester, .Permalink, .User
func WithReminderTemplate(tmpl string) Option {
	return func(c *config) {
		c.reminderTemplate = tmpl
	}
}

// WithConcurrency bounds in-flight Slack calls of every fan-out
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

func WithReminderFrequency(d time.Duration) Option {
	return func(c *config) {
		c.reminderFrequency = d
	}
}

// WithExpiry drops checks of messages older than d during sweeps. Zero keeps them forever.
func WithExpiry(d time.Duration) Option {
	return func(c *config) {
		c.expiry = d
	}
}

// WithRescheduleFailed re-scores entries whose evaluation failed instead of leaving them due
func WithRescheduleFailed(enabled bool) Option {
	return func(c *config) {
		c.rescheduleFailed = enabled
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

func New(slackClient interfaces.SlackClient, queue interfaces.RetryQueue, opts ...Option) (*UseCases, error) {
	if slackClient == nil {
		return nil, goerr.New("slack client is required")
	}
	if queue == nil {
		return nil, goerr.New("retry queue is required")
	}

	cfg := &config{
		reaction:          DefaultReaction,
		reminderTemplate:  DefaultReminderTemplate,
		concurrency:       async.DefaultConcurrency,
		reminderFrequency: DefaultReminderFrequency,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.concurrency <= 0 {
		return nil, goerr.New("concurrency must be positive", goerr.V("concurrency", cfg.concurrency))
	}
	if cfg.reminderFrequency < 0 {
		return nil, goerr.New("reminder frequency must not be negative", goerr.V("frequency", cfg.reminderFrequency))
	}

	tmpl, err := template.New("reminder").Option("missingkey=error").Parse(cfg.reminderTemplate)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse reminder template", goerr.V("template", cfg.reminderTemplate))
	}

	ack := &AckUseCase{
		slack:       slackClient,
		queue:       queue,
		locker:      keylock.New(),
		reaction:    cfg.reaction,
		reminder:    tmpl,
		concurrency: cfg.concurrency,
		now:         cfg.now,
	}

	sweep := &SweepUseCase{
		ack:              ack,
		queue:            queue,
		frequency:        cfg.reminderFrequency,
		expiry:           cfg.expiry,
		rescheduleFailed: cfg.rescheduleFailed,
		concurrency:      cfg.concurrency,
		now:              cfg.now,
	}

	return &UseCases{
		Ack:   ack,
		Sweep: sweep,
		Slack: NewSlackUseCases(ack, queue),
	}, nil
}
