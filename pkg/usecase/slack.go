package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/domain/model/slack"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
	"github.com/slack-go/slack/slackevents"
)

// SlackUseCases routes Slack events to acknowledgement checks
type SlackUseCases struct {
	ack   *AckUseCase
	queue interfaces.RetryQueue
}

// NewSlackUseCases creates a new SlackUseCases instance
func NewSlackUseCases(ack *AckUseCase, queue interfaces.RetryQueue) *SlackUseCases {
	return &SlackUseCases{
		ack:   ack,
		queue: queue,
	}
}

// HandleSlackEvent processes Slack Events API events.
//
// A mention of the bot starts a check and queues it when users are outstanding. Reaction
// changes only re-evaluate messages that are already queued and never send reminders; a check
// that became complete is removed from the queue. Reactions land on any message in any channel
// the bot is in, and reminding on every reaction would DM people far more often than the
// reminder frequency, so reminders are left to the sweep.
func (uc *SlackUseCases) HandleSlackEvent(ctx context.Context, event *slackevents.EventsAPIEvent) error {
	logger := logging.From(ctx)

	ev := slack.NewEvent(event)
	if ev == nil {
		logger.Debug("ignore slack event", "type", event.Type, "innerType", event.InnerEvent.Type)
		return nil
	}

	ref := ev.Ref()
	if err := ref.Validate(); err != nil {
		logger.Warn("slack event without valid message reference", "kind", ev.Kind(), "error", err.Error())
		return nil
	}

	ctx = logging.With(ctx, logger.With("message", ref.Key(), "kind", ev.Kind()))

	if !ev.IsReaction() {
		if _, err := uc.ack.Evaluate(ctx, ref, EvaluateOptions{EnqueueOnIncomplete: true}); err != nil {
			return goerr.Wrap(err, "failed to evaluate mentioned message", goerr.V(MessageKey, ref.Key()))
		}
		return nil
	}

	entry, err := uc.queue.Score(ctx, ref)
	if err != nil {
		return goerr.Wrap(err, "failed to look up queue entry", goerr.V(MessageKey, ref.Key()))
	}
	if entry == nil {
		return nil
	}

	result, err := uc.ack.Evaluate(ctx, ref, EvaluateOptions{SkipReminders: true})
	if err != nil {
		return goerr.Wrap(err, "failed to re-evaluate tracked message", goerr.V(MessageKey, ref.Key()))
	}

	if result.IsComplete {
		if err := uc.queue.Remove(ctx, []model.MessageRef{ref}); err != nil {
			return goerr.Wrap(err, "failed to remove completed check", goerr.V(MessageKey, ref.Key()))
		}
		logging.From(ctx).Info("check completed by reaction")
	}

	return nil
}
