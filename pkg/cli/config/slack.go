package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	botToken          string
	signingSecret     string
	botTokenSecret    string
	signingSecretName string
	apiURL            string
	cacheTTL          time.Duration
	retryMaxElapsed   time.Duration
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("ACKBOT_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for webhook verification)",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("ACKBOT_SLACK_SIGNING_SECRET"),
		},
		&cli.StringFlag{
			Name:        "slack-bot-token-secret",
			Usage:       "Secret Manager secret holding the bot token (instead of --slack-bot-token)",
			Category:    "Slack",
			Destination: &x.botTokenSecret,
			Sources:     cli.EnvVars("ACKBOT_SLACK_BOT_TOKEN_SECRET"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret-secret",
			Usage:       "Secret Manager secret holding the signing secret (instead of --slack-signing-secret)",
			Category:    "Slack",
			Destination: &x.signingSecretName,
			Sources:     cli.EnvVars("ACKBOT_SLACK_SIGNING_SECRET_SECRET"),
		},
		&cli.StringFlag{
			Name:        "slack-api-url",
			Usage:       "Slack Web API base URL (for testing)",
			Category:    "Slack",
			Destination: &x.apiURL,
			Sources:     cli.EnvVars("ACKBOT_SLACK_API_URL"),
		},
		&cli.DurationFlag{
			Name:        "slack-group-cache-ttl",
			Usage:       "How long user group members are cached (0s disables)",
			Category:    "Slack",
			Value:       slack.DefaultCacheTTL,
			Destination: &x.cacheTTL,
			Sources:     cli.EnvVars("ACKBOT_SLACK_GROUP_CACHE_TTL"),
		},
		&cli.DurationFlag{
			Name:        "slack-retry-max-elapsed",
			Usage:       "How long rate limited Slack calls are retried (0s disables)",
			Category:    "Slack",
			Value:       slack.DefaultRetryMaxElapsed,
			Destination: &x.retryMaxElapsed,
			Sources:     cli.EnvVars("ACKBOT_SLACK_RETRY_MAX_ELAPSED"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
		slog.String("bot-token-secret", x.botTokenSecret),
		slog.String("signing-secret-secret", x.signingSecretName),
		slog.String("api-url", x.apiURL),
		slog.Duration("group-cache-ttl", x.cacheTTL),
		slog.Duration("retry-max-elapsed", x.retryMaxElapsed),
	)
}

// UsesSecretManager reports whether any credential is read from Secret Manager
func (x *Slack) UsesSecretManager() bool {
	return x.botTokenSecret != "" || x.signingSecretName != ""
}

// LoadSecrets fills credentials named by the *-secret flags. A credential may
// be given directly or by secret name, not both.
func (x *Slack) LoadSecrets(ctx context.Context, loader interfaces.SecretLoader) error {
	targets := []struct {
		option string
		name   string
		dst    *string
	}{
		{option: "slack-bot-token-secret", name: x.botTokenSecret, dst: &x.botToken},
		{option: "slack-signing-secret-secret", name: x.signingSecretName, dst: &x.signingSecret},
	}

	for _, target := range targets {
		if target.name == "" {
			continue
		}
		if *target.dst != "" {
			return goerr.Wrap(ErrInvalidConfig, "credential is given both directly and by secret name",
				goerr.V(OptionKey, target.option))
		}

		value, err := loader.Load(ctx, target.name)
		if err != nil {
			return goerr.Wrap(err, "failed to load slack credential", goerr.V(OptionKey, target.option))
		}
		*target.dst = value
	}

	return nil
}

// Configure creates the Slack Web API client
func (x *Slack) Configure() (interfaces.SlackClient, error) {
	if x.botToken == "" {
		return nil, goerr.Wrap(ErrMissingRequired, "slack bot token is required", goerr.V(OptionKey, "slack-bot-token"))
	}

	if x.cacheTTL < 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "slack-group-cache-ttl must not be negative", goerr.V(OptionKey, x.cacheTTL))
	}

	if x.retryMaxElapsed < 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "slack-retry-max-elapsed must not be negative", goerr.V(OptionKey, x.retryMaxElapsed))
	}

	opts := []slack.Option{
		slack.WithCacheTTL(x.cacheTTL),
		slack.WithRetryMaxElapsed(x.retryMaxElapsed),
	}
	if x.apiURL != "" {
		opts = append(opts, slack.WithAPIURL(x.apiURL))
	}

	client, err := slack.New(x.botToken, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create slack client")
	}
	return client, nil
}

// IsWebhookConfigured checks if Slack webhook is configured
func (x *Slack) IsWebhookConfigured() bool {
	return x.signingSecret != ""
}

// SigningSecret returns the Slack signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}
