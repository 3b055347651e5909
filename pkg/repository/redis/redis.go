package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

// DefaultKey is the sorted set holding pending acknowledgement checks
const DefaultKey = "ackbot:pending"

// Redis stores the retry queue in a sorted set scored by unix time in milliseconds
type Redis struct {
	client *redis.Client
	key    string
}

var _ interfaces.RetryQueue = &Redis{}

type Option func(*Redis)

// WithKey sets the sorted set name
func WithKey(key string) Option {
	return func(r *Redis) {
		r.key = key
	}
}

// New connects to Redis and checks the connection
func New(ctx context.Context, opt *redis.Options, opts ...Option) (*Redis, error) {
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", opt.Addr))
	}

	r := &Redis{
		client: client,
		key:    DefaultKey,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func toScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func fromScore(score float64) time.Time {
	return time.UnixMilli(int64(score))
}

func (r *Redis) Upsert(ctx context.Context, ref model.MessageRef, score time.Time) error {
	if err := ref.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message reference")
	}

	// GT only moves an existing score forward; new members are always added
	err := r.client.ZAddArgs(ctx, r.key, redis.ZAddArgs{
		GT: true,
		Members: []redis.Z{
			{Score: toScore(score), Member: ref.Key()},
		},
	}).Err()
	if err != nil {
		return goerr.Wrap(err, "failed to upsert queue entry", goerr.V("key", ref.Key()))
	}
	return nil
}

func (r *Redis) RangeByScore(ctx context.Context, max time.Time) ([]*model.QueueEntry, error) {
	upper := "+inf"
	if max.Before(model.ScoreInfinity) {
		upper = strconv.FormatFloat(toScore(max), 'f', 0, 64)
	}

	zs, err := r.client.ZRangeByScoreWithScores(ctx, r.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: upper,
	}).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to range queue entries", goerr.V("max", max))
	}

	entries := make([]*model.QueueEntry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		ref, err := model.ParseMessageRef(member)
		if err != nil {
			// foreign members in the set are not ours to touch
			continue
		}
		entries = append(entries, &model.QueueEntry{Ref: ref, Score: fromScore(z.Score)})
	}
	return entries, nil
}

func (r *Redis) Remove(ctx context.Context, refs []model.MessageRef) error {
	if len(refs) == 0 {
		return nil
	}

	members := make([]interface{}, len(refs))
	for i, ref := range refs {
		members[i] = ref.Key()
	}

	if err := r.client.ZRem(ctx, r.key, members...).Err(); err != nil {
		return goerr.Wrap(err, "failed to remove queue entries", goerr.V("count", len(refs)))
	}
	return nil
}

func (r *Redis) Score(ctx context.Context, ref model.MessageRef) (*model.QueueEntry, error) {
	score, err := r.client.ZScore(ctx, r.key, ref.Key()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get queue entry", goerr.V("key", ref.Key()))
	}
	return &model.QueueEntry{Ref: ref, Score: fromScore(score)}, nil
}

func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
