package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/store/sqlitestore"
	"go.uber.org/zap"
)

// FakeClock is a settable scheduling.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts the clock at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Recorder captures audit entries and published events.
type Recorder struct {
	mu      sync.Mutex
	Entries []scheduling.AuditEntry
	Events  []RecordedEvent
}

// RecordedEvent is one captured publish.
type RecordedEvent struct {
	Key     string
	Payload any
}

// Record implements scheduling.Auditor.
func (r *Recorder) Record(_ context.Context, e scheduling.AuditEntry) {
	r.mu.Lock()
	r.Entries = append(r.Entries, e)
	r.mu.Unlock()
}

// Publish implements scheduling.Publisher.
func (r *Recorder) Publish(_ context.Context, key string, payload any) error {
	r.mu.Lock()
	r.Events = append(r.Events, RecordedEvent{Key: key, Payload: payload})
	r.mu.Unlock()
	return nil
}

// EventKeys returns the keys published so far, in order.
func (r *Recorder) EventKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Key
	}
	return out
}

// Env bundles an engine wired to an in-memory store for tests.
type Env struct {
	Engine   *scheduling.Engine
	Store    *sqlitestore.Store
	Clock    *FakeClock
	Recorder *Recorder
}

// EngineStart is the fake clock's starting instant.
var EngineStart = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewEngine builds an Engine over a fresh SQLite store with a fake clock
// and a recording auditor/publisher. Defaults: limit 20 per stage, 5m
// cooldown; cfg fields left zero keep those defaults.
func NewEngine(t *testing.T, cfg scheduling.Config) *Env {
	t.Helper()
	if cfg.DefaultMeetingLimit == 0 {
		cfg.DefaultMeetingLimit = 20
	}
	if cfg.DefaultDikshaLimit == 0 {
		cfg.DefaultDikshaLimit = 20
	}
	if cfg.MoveCooldown == 0 {
		cfg.MoveCooldown = scheduling.DefaultMoveCooldown
	}
	st := SetupSQLite(t)
	clock := NewFakeClock(EngineStart)
	rec := &Recorder{}
	eng := scheduling.New(st, cfg, zap.NewNop(),
		scheduling.WithClock(clock),
		scheduling.WithAuditor(rec),
		scheduling.WithPublisher(rec),
	)
	return &Env{Engine: eng, Store: st, Clock: clock, Recorder: rec}
}

// Actor is the default caller used by tests.
var Actor = scheduling.Meta{
	Actor:         scheduling.Actor{ID: "op-1", Name: "Test Operator"},
	CommitMessage: "test",
}
