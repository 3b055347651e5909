package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/service/worker"
)

type mockSweeper struct {
	mu     sync.Mutex
	calls  int
	err    error
	result *model.SweepResult
}

func (m *mockSweeper) Sweep(ctx context.Context) (*model.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &model.SweepResult{SweepID: "sweep-1"}, nil
}

func (m *mockSweeper) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockSweeper) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestSweepWorker_ImmediateInitialSweep(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewSweepWorker(sweeper.Sweep, time.Hour)

	gt.NoError(t, w.Start(context.Background())).Required()
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	gt.Number(t, sweeper.callCount()).Equal(1)
}

func TestSweepWorker_PeriodicSweep(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewSweepWorker(sweeper.Sweep, 20*time.Millisecond)

	gt.NoError(t, w.Start(context.Background())).Required()
	time.Sleep(150 * time.Millisecond)
	w.Stop()

	gt.Bool(t, sweeper.callCount() >= 3).True()
}

func TestSweepWorker_ContinuesAfterFailure(t *testing.T) {
	sweeper := &mockSweeper{}
	sweeper.setErr(errors.New("redis unavailable"))
	w := worker.NewSweepWorker(sweeper.Sweep, 20*time.Millisecond)

	gt.NoError(t, w.Start(context.Background())).Required()
	time.Sleep(50 * time.Millisecond)
	sweeper.setErr(nil)
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	gt.Bool(t, sweeper.callCount() >= 3).True()
}

func TestSweepWorker_StopsOnContextCancel(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewSweepWorker(sweeper.Sweep, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	gt.NoError(t, w.Start(ctx)).Required()
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestSweepWorker_StopIsIdempotent(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewSweepWorker(sweeper.Sweep, time.Hour)

	gt.NoError(t, w.Start(context.Background())).Required()
	w.Stop()
	w.Stop()
}
