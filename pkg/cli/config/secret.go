package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/service/secret"
	"github.com/urfave/cli/v3"
)

// Secret configures Google Cloud Secret Manager as a source of Slack credentials
type Secret struct {
	projectID string
}

func (x *Secret) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "secret-project-id",
			Usage:       "Google Cloud project that holds secrets referenced by bare ID",
			Category:    "Secret Manager",
			Destination: &x.projectID,
			Sources:     cli.EnvVars("ACKBOT_SECRET_PROJECT_ID"),
		},
	}
}

func (x Secret) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project-id", x.projectID),
	)
}

// Configure creates the Secret Manager client. The caller closes it.
func (x *Secret) Configure(ctx context.Context) (*secret.Manager, error) {
	m, err := secret.New(ctx, x.projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize secret manager")
	}
	return m, nil
}
