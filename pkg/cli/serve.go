package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/cli/config"
	httpctrl "github.com/secmon-lab/ackbot/pkg/controller/http"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/service/worker"
	"github.com/secmon-lab/ackbot/pkg/usecase"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
	"github.com/secmon-lab/ackbot/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var checkToken string
	var sweepInterval time.Duration
	var slackCfg config.Slack
	var secretCfg config.Secret
	var queueCfg config.Queue
	var ackCfg config.Ack

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ACKBOT_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "check-token",
			Usage:       "Shared secret expected in the X-Ackbot-Verify header of /hooks/check (endpoint disabled when empty)",
			Sources:     cli.EnvVars("ACKBOT_CHECK_TOKEN"),
			Destination: &checkToken,
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "Interval of the built-in sweep worker (0 disables it, e.g. when an external scheduler calls /hooks/check)",
			Value:       worker.DefaultSweepInterval,
			Sources:     cli.EnvVars("ACKBOT_SWEEP_INTERVAL"),
			Destination: &sweepInterval,
		},
	}

	// Add shared config flags
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, secretCfg.Flags()...)
	flags = append(flags, queueCfg.Flags()...)
	flags = append(flags, ackCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server receiving Slack events",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Serve configuration",
				"addr", addr,
				"sweep_interval", sweepInterval,
				"slack", slackCfg,
				"queue", queueCfg,
				"ack", ackCfg,
			)

			if err := loadSlackSecrets(ctx, &secretCfg, &slackCfg); err != nil {
				return err
			}

			if !slackCfg.IsWebhookConfigured() {
				return goerr.Wrap(config.ErrMissingRequired, "slack signing secret is required to receive events",
					goerr.V(config.OptionKey, "slack-signing-secret"))
			}

			uc, queue, err := buildUseCases(ctx, c, &slackCfg, &queueCfg, &ackCfg)
			if err != nil {
				return err
			}
			defer safe.Close(ctx, queue)

			httpOpts := []httpctrl.Options{
				httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(uc.Slack), slackCfg.SigningSecret()),
			}
			if checkToken != "" {
				httpOpts = append(httpOpts, httpctrl.WithCheck(httpctrl.NewCheckHandler(uc.Sweep), checkToken))
				logging.Default().Info("Check trigger enabled", "path", "/hooks/check")
			} else {
				logging.Default().Info("Check token not configured, /hooks/check is disabled")
			}

			var sweepWorker *worker.SweepWorker
			if sweepInterval > 0 {
				sweepWorker = worker.NewSweepWorker(func(ctx context.Context) (*model.SweepResult, error) {
					return uc.Sweep.Sweep(ctx, usecase.SweepOptions{})
				}, sweepInterval)
				if err := sweepWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start sweep worker")
				}
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				if sweepWorker != nil {
					sweepWorker.Stop()
				}
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop the worker first so no sweep runs against a closing queue
				if sweepWorker != nil {
					sweepWorker.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}

// loadSlackSecrets resolves Slack credentials held in Secret Manager, if any
func loadSlackSecrets(ctx context.Context, secretCfg *config.Secret, slackCfg *config.Slack) error {
	if !slackCfg.UsesSecretManager() {
		return nil
	}

	loader, err := secretCfg.Configure(ctx)
	if err != nil {
		return err
	}
	defer safe.Close(ctx, loader)

	if err := slackCfg.LoadSecrets(ctx, loader); err != nil {
		return goerr.Wrap(err, "failed to load slack credentials")
	}
	return nil
}

// buildUseCases wires the Slack client and the retry queue into use cases.
// The caller closes the returned queue.
func buildUseCases(ctx context.Context, c *cli.Command, slackCfg *config.Slack, queueCfg *config.Queue, ackCfg *config.Ack) (*usecase.UseCases, interfaces.RetryQueue, error) {
	ucOpts, err := ackCfg.Configure(c)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load ack configuration")
	}

	slackClient, err := slackCfg.Configure()
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to configure slack client")
	}

	queue, err := queueCfg.Configure(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize retry queue")
	}

	uc, err := usecase.New(slackClient, queue, ucOpts...)
	if err != nil {
		safe.Close(ctx, queue)
		return nil, nil, goerr.Wrap(err, "failed to initialize use cases")
	}

	return uc, queue, nil
}
