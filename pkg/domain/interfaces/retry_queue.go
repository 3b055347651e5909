package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

// RetryQueue is a score ordered set of message references. Each reference appears at most once.
type RetryQueue interface {
	// Upsert adds ref with score. An existing entry keeps the later of the two scores.
	Upsert(ctx context.Context, ref model.MessageRef, score time.Time) error

	// RangeByScore returns entries with score <= max in ascending score order
	RangeByScore(ctx context.Context, max time.Time) ([]*model.QueueEntry, error)

	// Remove deletes the given references. Missing references are ignored.
	Remove(ctx context.Context, refs []model.MessageRef) error

	// Score returns the entry for ref, or nil when ref is not queued
	Score(ctx context.Context, ref model.MessageRef) (*model.QueueEntry, error)

	Close() error
}
