package usecase

import (
	"bytes"
	"context"
	"errors"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/utils/async"
	"github.com/secmon-lab/ackbot/pkg/utils/errutil"
	"github.com/secmon-lab/ackbot/pkg/utils/keylock"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
)

// AckUseCase decides whether everyone mentioned in a message has reacted to it
type AckUseCase struct {
	slack       interfaces.SlackClient
	queue       interfaces.RetryQueue
	locker      *keylock.Locker
	reaction    string
	reminder    *template.Template
	concurrency int
	now         func() time.Time
}

// EvaluateOptions controls the side effects of Evaluate
type EvaluateOptions struct {
	// EnqueueOnIncomplete schedules the message for another sweep when users are outstanding
	EnqueueOnIncomplete bool
	// SkipReminders suppresses the permalink lookup and reminder messages
	SkipReminders bool
}

// Resolution is the state of a tracked message at one point in time
type Resolution struct {
	Message  *model.Message
	Required model.UserSet
	Reacted  model.UserSet
	// UnresolvedGroups lists mentioned groups whose members could not be listed
	UnresolvedGroups []string
}

// Outstanding returns required users who have not reacted yet, sorted
func (r *Resolution) Outstanding() []string {
	return r.Required.Difference(r.Reacted).Sorted()
}

type reminderParams struct {
	Requester string
	Permalink string
	User      string
}

// Resolve fetches the message and computes required and reacted users. Mentioned user groups
// are expanded to their members. A group that cannot be expanded is logged and recorded in
// UnresolvedGroups; the users that did resolve are still required. It returns
// ErrMessageNotFound when the message is gone.
func (uc *AckUseCase) Resolve(ctx context.Context, ref model.MessageRef) (*Resolution, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	msg, err := uc.slack.GetMessage(ctx, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get message", goerr.V(MessageKey, ref.Key()))
	}
	if msg == nil {
		return nil, goerr.Wrap(ErrMessageNotFound, "message is not available", goerr.V(MessageKey, ref.Key()))
	}

	mentions := model.ExtractMentions(msg.Blocks)
	required := model.NewUserSet(mentions.UserIDs.Sorted()...)

	groups := mentions.UserGroupIDs.Sorted()
	results := async.Map(ctx, groups, uc.concurrency, func(ctx context.Context, groupID string) ([]string, error) {
		return uc.slack.ListGroupMembers(ctx, groupID)
	})

	var unresolved []string
	for i, res := range results {
		if res.Err != nil {
			_ = errutil.Handle(ctx, goerr.Wrap(res.Err, "failed to list group members",
				goerr.V(GroupIDKey, groups[i]),
				goerr.V(MessageKey, ref.Key()),
			), "group members are left out of this pass")
			unresolved = append(unresolved, groups[i])
			continue
		}
		required.Add(res.Value...)
	}

	return &Resolution{
		Message:          msg,
		Required:         required,
		Reacted:          msg.ReactedUsers(),
		UnresolvedGroups: unresolved,
	}, nil
}

// Evaluate runs one evaluation pass for ref. Passes for the same message are serialized.
//
// A message that no longer exists is reported complete with NotFound set. When the bot itself
// is required it reacts with the configured emoji exactly once per pass and counts as reacted. Remaining users
// receive a reminder unless opts.SkipReminders is set. Individual reminder failures are logged
// and do not fail the pass.
func (uc *AckUseCase) Evaluate(ctx context.Context, ref model.MessageRef, opts EvaluateOptions) (*model.EvaluateResult, error) {
	unlock := uc.locker.Lock(ref.Key())
	defer unlock()

	logger := logging.From(ctx).With("message", ref.Key())

	resolution, err := uc.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			logger.Info("tracked message is gone, treating as complete")
			return &model.EvaluateResult{Ref: ref, IsComplete: true, NotFound: true}, nil
		}
		return nil, err
	}

	selfID, err := uc.slack.SelfIdentity(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get bot identity", goerr.V(MessageKey, ref.Key()))
	}

	if len(resolution.UnresolvedGroups) > 0 {
		logger.Warn("evaluating without some group members", "groups", resolution.UnresolvedGroups)
	}

	// One attempt per pass, even when the reaction is already there
	if resolution.Required.Has(selfID) {
		if err := uc.slack.AddReaction(ctx, ref, uc.reaction); err != nil {
			_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to add reaction",
				goerr.V(MessageKey, ref.Key()),
				goerr.V("emoji", uc.reaction),
			), "self acknowledgement failed")
		}
		resolution.Required.Remove(selfID)
	}

	// Members of an unresolved group may still owe a reaction, so the pass cannot complete
	outstanding := resolution.Outstanding()
	result := &model.EvaluateResult{
		Ref:              ref,
		IsComplete:       len(outstanding) == 0 && len(resolution.UnresolvedGroups) == 0,
		Outstanding:      outstanding,
		UnresolvedGroups: resolution.UnresolvedGroups,
	}
	if result.IsComplete {
		logger.Debug("all required users have reacted", "required", resolution.Required.Len())
		return result, nil
	}

	logger.Info("users have not reacted yet", "outstanding", outstanding)

	if !opts.SkipReminders && len(outstanding) > 0 {
		result.Reminded = uc.remind(ctx, resolution.Message, outstanding)
	}

	if opts.EnqueueOnIncomplete {
		if err := uc.queue.Upsert(ctx, ref, uc.now()); err != nil {
			return result, goerr.Wrap(err, "failed to enqueue message", goerr.V(MessageKey, ref.Key()))
		}
	}

	return result, nil
}

func (uc *AckUseCase) remind(ctx context.Context, msg *model.Message, users []string) int {
	permalink, err := uc.slack.GetPermalink(ctx, msg.Ref)
	if err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to get permalink", goerr.V(MessageKey, msg.Ref.Key())),
			"skip reminders")
		return 0
	}

	return uc.DispatchReminders(ctx, users, msg.User, permalink)
}

// DispatchReminders sends one direct message per user with bounded concurrency and waits for
// all of them. It returns the number of messages delivered.
func (uc *AckUseCase) DispatchReminders(ctx context.Context, users []string, requester, permalink string) int {
	results := async.Map(ctx, users, uc.concurrency, func(ctx context.Context, userID string) (struct{}, error) {
		text, err := uc.renderReminder(reminderParams{
			Requester: requester,
			Permalink: permalink,
			User:      userID,
		})
		if err != nil {
			return struct{}{}, err
		}
		if err := uc.slack.PostDirectMessage(ctx, userID, text); err != nil {
			return struct{}{}, goerr.Wrap(err, "failed to send reminder", goerr.V(UserIDKey, userID))
		}
		return struct{}{}, nil
	})

	sent := 0
	for _, res := range results {
		if res.Err != nil {
			_ = errutil.Handle(ctx, res.Err, "reminder was not delivered")
			continue
		}
		sent++
	}

	logging.From(ctx).Info("reminders dispatched", "sent", sent, "failed", len(users)-sent)
	return sent
}

func (uc *AckUseCase) renderReminder(p reminderParams) (string, error) {
	var buf bytes.Buffer
	if err := uc.reminder.Execute(&buf, p); err != nil {
		return "", goerr.Wrap(err, "failed to render reminder")
	}
	return buf.String(), nil
}
