package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/utils/async"
	"github.com/secmon-lab/ackbot/pkg/utils/errutil"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
)

// SweepUseCase re-evaluates queued checks whose reminder interval has elapsed
type SweepUseCase struct {
	ack              *AckUseCase
	queue            interfaces.RetryQueue
	frequency        time.Duration
	expiry           time.Duration
	rescheduleFailed bool
	concurrency      int
	now              func() time.Time
}

// SweepOptions controls a single sweep
type SweepOptions struct {
	// All evaluates every queued entry regardless of its score
	All bool
}

// Enqueue schedules ref with score. An already queued ref keeps the later score.
func (uc *SweepUseCase) Enqueue(ctx context.Context, ref model.MessageRef, score time.Time) error {
	if err := uc.queue.Upsert(ctx, ref, score); err != nil {
		return goerr.Wrap(err, "failed to enqueue", goerr.V(MessageKey, ref.Key()))
	}
	return nil
}

// DueEntries returns references whose score is at or before now minus frequency, oldest first
func (uc *SweepUseCase) DueEntries(ctx context.Context, now time.Time, frequency time.Duration) ([]model.MessageRef, error) {
	return uc.rangeRefs(ctx, now.Add(-frequency))
}

// Remove deletes refs from the queue
func (uc *SweepUseCase) Remove(ctx context.Context, refs []model.MessageRef) error {
	if len(refs) == 0 {
		return nil
	}
	if err := uc.queue.Remove(ctx, refs); err != nil {
		return goerr.Wrap(err, "failed to remove entries", goerr.V("count", len(refs)))
	}
	return nil
}

func (uc *SweepUseCase) rangeRefs(ctx context.Context, max time.Time) ([]model.MessageRef, error) {
	entries, err := uc.queue.RangeByScore(ctx, max)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to range queue", goerr.V("max", max))
	}

	refs := make([]model.MessageRef, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref
	}
	return refs, nil
}

func (uc *SweepUseCase) isExpired(ref model.MessageRef, now time.Time) bool {
	if uc.expiry <= 0 {
		return false
	}
	postedAt, err := ref.PostedAt()
	if err != nil {
		return false
	}
	return now.Sub(postedAt) > uc.expiry
}

// Sweep evaluates every due entry once. Complete and expired entries are removed, incomplete
// entries are rescored with the sweep start time. Entries whose evaluation failed keep their
// score unless rescheduling of failures is enabled, so they stay due for the next sweep.
func (uc *SweepUseCase) Sweep(ctx context.Context, opts SweepOptions) (*model.SweepResult, error) {
	now := uc.now()
	result := &model.SweepResult{
		SweepID:    uuid.Must(uuid.NewV7()).String(),
		StartedAt:  now,
		Complete:   []model.MessageRef{},
		Incomplete: []model.MessageRef{},
		Failed:     []model.MessageRef{},
		Expired:    []model.MessageRef{},
	}

	logger := logging.From(ctx).With("sweep_id", result.SweepID)
	ctx = logging.With(ctx, logger)

	max := now.Add(-uc.frequency)
	if opts.All {
		max = model.ScoreInfinity
	}

	due, err := uc.rangeRefs(ctx, max)
	if err != nil {
		return nil, err
	}
	logger.Info("sweep started", "due", len(due), "all", opts.All)

	var targets []model.MessageRef
	for _, ref := range due {
		if uc.isExpired(ref, now) {
			result.Expired = append(result.Expired, ref)
			continue
		}
		targets = append(targets, ref)
	}

	evaluated := async.Map(ctx, targets, uc.concurrency, func(ctx context.Context, ref model.MessageRef) (*model.EvaluateResult, error) {
		return uc.ack.Evaluate(ctx, ref, EvaluateOptions{})
	})

	for i, res := range evaluated {
		ref := targets[i]
		switch {
		case res.Err != nil:
			_ = errutil.Handle(ctx, res.Err, "failed to evaluate queued message")
			result.Failed = append(result.Failed, ref)
		case res.Value.IsComplete:
			result.Complete = append(result.Complete, ref)
		default:
			result.Incomplete = append(result.Incomplete, ref)
		}
	}

	var errs []error
	removing := append(append([]model.MessageRef{}, result.Complete...), result.Expired...)
	if err := uc.Remove(ctx, removing); err != nil {
		errs = append(errs, err)
	}

	rescore := result.Incomplete
	if uc.rescheduleFailed {
		rescore = append(append([]model.MessageRef{}, result.Incomplete...), result.Failed...)
	}
	for _, ref := range rescore {
		if err := uc.Enqueue(ctx, ref, now); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("sweep finished",
		"complete", len(result.Complete),
		"incomplete", len(result.Incomplete),
		"failed", len(result.Failed),
		"expired", len(result.Expired),
	)

	if len(errs) > 0 {
		return result, goerr.Wrap(errs[0], "failed to update queue after sweep",
			goerr.V("sweep_id", result.SweepID),
			goerr.V("errors", len(errs)),
		)
	}
	return result, nil
}
