package workers_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/system/workers"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/dalemusser/dikshahub/internal/testutil"
	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepLapsedUnlocks(context.Context) (int, error) {
	s.calls.Add(1)
	return 0, s.err
}

func TestUnlockSweeper_Loop(t *testing.T) {
	s := &countingSweeper{}
	w := workers.NewUnlockSweeper(s, zap.NewNop(), 5*time.Millisecond)
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for s.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	w.Stop()

	if s.calls.Load() < 2 {
		t.Fatalf("sweeper ran %d times, want at least 2", s.calls.Load())
	}
	after := s.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if s.calls.Load() != after {
		t.Error("sweeper kept running after Stop")
	}
}

func TestUnlockSweeper_ErrorIsLogged(t *testing.T) {
	s := &countingSweeper{err: errors.New("store down")}
	w := workers.NewUnlockSweeper(s, nil, time.Minute)
	if n := w.Sweep(); n != 0 {
		t.Errorf("Sweep() = %d, want 0 on error", n)
	}
}

func TestUnlockSweeper_RelocksEngine(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c, err := env.Engine.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	if err != nil {
		t.Fatalf("ResolveContainer: %v", err)
	}
	if _, err := env.Engine.Unlock(ctx, c.ID, 5, testutil.Actor); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	w := workers.NewUnlockSweeper(env.Engine, zap.NewNop(), time.Minute)
	if n := w.Sweep(); n != 0 {
		t.Errorf("Sweep before expiry = %d, want 0", n)
	}
	env.Clock.Advance(6 * time.Minute)
	if n := w.Sweep(); n != 1 {
		t.Errorf("Sweep after expiry = %d, want 1", n)
	}
}
