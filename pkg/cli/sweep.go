package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/cli/config"
	"github.com/secmon-lab/ackbot/pkg/usecase"
	"github.com/secmon-lab/ackbot/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdSweep() *cli.Command {
	var all bool
	var asJSON bool
	var slackCfg config.Slack
	var secretCfg config.Secret
	var queueCfg config.Queue
	var ackCfg config.Ack

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "sweep-all",
			Aliases:     []string{"all"},
			Usage:       "Evaluate every queued message regardless of the reminder frequency (debug)",
			Sources:     cli.EnvVars("ACKBOT_SWEEP_ALL"),
			Destination: &all,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the result as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, secretCfg.Flags()...)
	flags = append(flags, queueCfg.Flags()...)
	flags = append(flags, ackCfg.Flags()...)

	return &cli.Command{
		Name:  "sweep",
		Usage: "Run one sweep of the retry queue and exit",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := loadSlackSecrets(ctx, &secretCfg, &slackCfg); err != nil {
				return err
			}

			uc, queue, err := buildUseCases(ctx, c, &slackCfg, &queueCfg, &ackCfg)
			if err != nil {
				return err
			}
			defer safe.Close(ctx, queue)

			result, err := uc.Sweep.Sweep(ctx, usecase.SweepOptions{All: all})
			if result != nil {
				if asJSON {
					safe.WriteJSON(ctx, os.Stdout, result)
				} else {
					printSweepResult(os.Stdout, result)
				}
			}
			if err != nil {
				return goerr.Wrap(err, "sweep failed")
			}
			return nil
		},
	}
}
