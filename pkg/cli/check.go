package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/cli/config"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/usecase"
	"github.com/secmon-lab/ackbot/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdCheck() *cli.Command {
	var channel string
	var timestamp string
	var permalink string
	var enqueue bool
	var dryRun bool
	var asJSON bool
	var slackCfg config.Slack
	var secretCfg config.Secret
	var queueCfg config.Queue
	var ackCfg config.Ack

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "channel",
			Usage:       "Channel ID of the message",
			Destination: &channel,
		},
		&cli.StringFlag{
			Name:        "ts",
			Usage:       "Timestamp of the message",
			Destination: &timestamp,
		},
		&cli.StringFlag{
			Name:        "permalink",
			Usage:       "Permalink of the message (instead of --channel and --ts)",
			Destination: &permalink,
		},
		&cli.BoolFlag{
			Name:        "enqueue",
			Usage:       "Track the message in the retry queue when users are outstanding",
			Destination: &enqueue,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Do not send reminders",
			Destination: &dryRun,
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
		Name:  "check",
		Usage: "Evaluate acknowledgement of a single message",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ref, err := resolveRef(channel, timestamp, permalink)
			if err != nil {
				return err
			}

			if err := loadSlackSecrets(ctx, &secretCfg, &slackCfg); err != nil {
				return err
			}

			uc, queue, err := buildUseCases(ctx, c, &slackCfg, &queueCfg, &ackCfg)
			if err != nil {
				return err
			}
			defer safe.Close(ctx, queue)

			result, err := uc.Ack.Evaluate(ctx, ref, usecase.EvaluateOptions{
				EnqueueOnIncomplete: enqueue,
				SkipReminders:       dryRun,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to evaluate message", goerr.V("message", ref.Key()))
			}

			if asJSON {
				safe.WriteJSON(ctx, os.Stdout, result)
			} else {
				printEvaluateResult(os.Stdout, result)
			}
			return nil
		},
	}
}

func resolveRef(channel, timestamp, permalink string) (model.MessageRef, error) {
	if permalink != "" {
		if channel != "" || timestamp != "" {
			return model.MessageRef{}, goerr.New("--permalink cannot be combined with --channel or --ts")
		}
		return model.ParsePermalink(permalink)
	}

	ref := model.NewMessageRef(channel, timestamp)
	if err := ref.Validate(); err != nil {
		return model.MessageRef{}, goerr.Wrap(err, "--channel and --ts are required, or use --permalink")
	}
	return ref, nil
}
