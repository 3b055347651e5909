package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

// Memory is an in-process retry queue for development and tests
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*model.QueueEntry
}

var _ interfaces.RetryQueue = &Memory{}

func New() *Memory {
	return &Memory{
		entries: make(map[string]*model.QueueEntry),
	}
}

func (m *Memory) Upsert(ctx context.Context, ref model.MessageRef, score time.Time) error {
	if err := ref.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message reference")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := ref.Key()
	if cur, ok := m.entries[key]; ok && cur.Score.After(score) {
		return nil
	}
	m.entries[key] = &model.QueueEntry{Ref: ref, Score: score}
	return nil
}

func (m *Memory) RangeByScore(ctx context.Context, max time.Time) ([]*model.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*model.QueueEntry
	for _, e := range m.entries {
		if e.Score.After(max) {
			continue
		}
		// Return a copy to prevent external modifications
		entryCopy := *e
		result = append(result, &entryCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Score.Equal(result[j].Score) {
			return result[i].Ref.Key() < result[j].Ref.Key()
		}
		return result[i].Score.Before(result[j].Score)
	})
	return result, nil
}

func (m *Memory) Remove(ctx context.Context, refs []model.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ref := range refs {
		delete(m.entries, ref.Key())
	}
	return nil
}

func (m *Memory) Score(ctx context.Context, ref model.MessageRef) (*model.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[ref.Key()]
	if !ok {
		return nil, nil
	}
	entryCopy := *e
	return &entryCopy, nil
}

func (m *Memory) Close() error {
	return nil
}
