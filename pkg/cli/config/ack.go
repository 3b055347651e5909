package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/ackbot/pkg/usecase"
	"github.com/secmon-lab/ackbot/pkg/utils/async"
	"github.com/urfave/cli/v3"
)

// DefaultExpiry drops checks of messages older than a week
const DefaultExpiry = 7 * 24 * time.Hour

// AckFile is the optional TOML file of acknowledgement settings.
// Values set on the command line take precedence over the file.
type AckFile struct {
	Reaction          string `toml:"reaction"`
	ReminderTemplate  string `toml:"reminder_template"`
	Concurrency       int    `toml:"concurrency"`
	ReminderFrequency string `toml:"reminder_frequency"`
	Expiry            string `toml:"expiry"`
}

// Ack holds CLI flags of acknowledgement tracking
type Ack struct {
	configPath        string
	reaction          string
	reminderTemplate  string
	concurrency       int
	reminderFrequency time.Duration
	expiry            time.Duration
	rescheduleFailed  bool
}

func (x *Ack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML file of acknowledgement settings",
			Category:    "Ack",
			Destination: &x.configPath,
			Sources:     cli.EnvVars("ACKBOT_CONFIG"),
		},
		&cli.StringFlag{
			Name:        "reaction",
			Usage:       "Emoji the bot reacts with when it is mentioned",
			Category:    "Ack",
			Value:       usecase.DefaultReaction,
			Destination: &x.reaction,
			Sources:     cli.EnvVars("ACKBOT_REACTION"),
		},
		&cli.StringFlag{
			Name:        "reminder-template",
			Usage:       "Go template of reminder messages (fields: .Requester .Permalink .User)",
			Category:    "Ack",
			Value:       usecase.DefaultReminderTemplate,
			Destination: &x.reminderTemplate,
			Sources:     cli.EnvVars("ACKBOT_REMINDER_TEMPLATE"),
		},
		&cli.IntFlag{
			Name:        "concurrency",
			Usage:       "Maximum number of in-flight Slack calls per fan-out",
			Category:    "Ack",
			Value:       async.DefaultConcurrency,
			Destination: &x.concurrency,
			Sources:     cli.EnvVars("ACKBOT_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:        "reminder-frequency",
			Usage:       "Minimum interval between reminders for the same message",
			Category:    "Ack",
			Value:       usecase.DefaultReminderFrequency,
			Destination: &x.reminderFrequency,
			Sources:     cli.EnvVars("ACKBOT_REMINDER_FREQUENCY", "REMINDER_FREQUENCY"),
		},
		&cli.DurationFlag{
			Name:        "expiry",
			Usage:       "Stop tracking messages older than this (0 keeps them forever)",
			Category:    "Ack",
			Value:       DefaultExpiry,
			Destination: &x.expiry,
			Sources:     cli.EnvVars("ACKBOT_EXPIRY"),
		},
		&cli.BoolFlag{
			Name:        "reschedule-failed",
			Usage:       "Rescore entries whose evaluation failed instead of retrying them on the next sweep",
			Category:    "Ack",
			Destination: &x.rescheduleFailed,
			Sources:     cli.EnvVars("ACKBOT_RESCHEDULE_FAILED"),
		},
	}
}

func (x Ack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("config", x.configPath),
		slog.String("reaction", x.reaction),
		slog.Int("concurrency", x.concurrency),
		slog.Duration("reminder-frequency", x.reminderFrequency),
		slog.Duration("expiry", x.expiry),
		slog.Bool("reschedule-failed", x.rescheduleFailed),
	)
}

// LoadAckFile reads acknowledgement settings from a TOML file
func LoadAckFile(path string) (*AckFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var file AckFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V(ConfigPathKey, path))
	}

	return &file, nil
}

// apply copies file values into x unless the flag was set explicitly
func (x *Ack) apply(file *AckFile, isSet func(name string) bool) error {
	if file.Reaction != "" && !isSet("reaction") {
		x.reaction = file.Reaction
	}
	if file.ReminderTemplate != "" && !isSet("reminder-template") {
		x.reminderTemplate = file.ReminderTemplate
	}
	if file.Concurrency != 0 && !isSet("concurrency") {
		x.concurrency = file.Concurrency
	}
	if file.ReminderFrequency != "" && !isSet("reminder-frequency") {
		d, err := time.ParseDuration(file.ReminderFrequency)
		if err != nil {
			return goerr.Wrap(ErrInvalidConfig, "invalid reminder_frequency", goerr.V(OptionKey, file.ReminderFrequency))
		}
		x.reminderFrequency = d
	}
	if file.Expiry != "" && !isSet("expiry") {
		d, err := time.ParseDuration(file.Expiry)
		if err != nil {
			return goerr.Wrap(ErrInvalidConfig, "invalid expiry", goerr.V(OptionKey, file.Expiry))
		}
		x.expiry = d
	}
	return nil
}

func (x *Ack) validate() error {
	if x.reaction == "" {
		return goerr.Wrap(ErrInvalidConfig, "reaction must not be empty")
	}
	if x.concurrency <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "concurrency must be positive", goerr.V(OptionKey, x.concurrency))
	}
	if x.reminderFrequency < 0 {
		return goerr.Wrap(ErrInvalidConfig, "reminder-frequency must not be negative", goerr.V(OptionKey, x.reminderFrequency))
	}
	if x.expiry < 0 {
		return goerr.Wrap(ErrInvalidConfig, "expiry must not be negative", goerr.V(OptionKey, x.expiry))
	}
	return nil
}

// Configure merges the TOML file, if given, and returns use case options
func (x *Ack) Configure(c *cli.Command) ([]usecase.Option, error) {
	if x.configPath != "" {
		file, err := LoadAckFile(x.configPath)
		if err != nil {
			return nil, err
		}
		if err := x.apply(file, c.IsSet); err != nil {
			return nil, goerr.Wrap(err, "invalid config file", goerr.V(ConfigPathKey, x.configPath))
		}
	}

	if err := x.validate(); err != nil {
		return nil, err
	}

	return x.options(), nil
}

func (x *Ack) options() []usecase.Option {
	return []usecase.Option{
		usecase.WithReaction(x.reaction),
		usecase.WithReminderTemplate(x.reminderTemplate),
		usecase.WithConcurrency(x.concurrency),
		usecase.WithReminderFrequency(x.reminderFrequency),
		usecase.WithExpiry(x.expiry),
		usecase.WithRescheduleFailed(x.rescheduleFailed),
	}
}
