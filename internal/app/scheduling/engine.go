// Package scheduling is the capacity and admission-control core for the
// meeting → diksha funnel.
//
// An Engine places customers into date-bound containers, derives capacity
// and lock state from live assignments, keeps MEETING cards' reservations on
// DIKSHA containers consistent, and relocates cards between dates. Every
// operation is one short transactional unit: it is fully validated against
// current state inside the unit and either commits everything or nothing.
package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reference values.
const (
	DefaultMoveCooldown = 5 * time.Minute
	MaxUnlockMinutes    = 1440
)

// Config holds the engine's tunables.
type Config struct {
	DefaultMeetingLimit int
	DefaultDikshaLimit  int
	MoveCooldown        time.Duration
}

// Engine implements the scheduling operation surface. It is safe for
// concurrent use.
type Engine struct {
	repo    Repository
	cfg     Config
	clock   Clock
	audit   Auditor
	events  Publisher
	metrics *Metrics
	log     *zap.Logger

	locks    *lockTable
	sanitize *bluemonday.Policy
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock (tests).
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithAuditor sets the audit collaborator.
func WithAuditor(a Auditor) Option { return func(e *Engine) { e.audit = a } }

// WithPublisher sets the event collaborator.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.events = p } }

// WithMetrics enables Prometheus collection.
func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// New builds an Engine over repo.
func New(repo Repository, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.DefaultMeetingLimit < 1 {
		cfg.DefaultMeetingLimit = 20
	}
	if cfg.DefaultDikshaLimit < 1 {
		cfg.DefaultDikshaLimit = 20
	}
	if cfg.MoveCooldown < 0 {
		cfg.MoveCooldown = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		repo:     repo,
		cfg:      cfg,
		clock:    systemClock{},
		audit:    nopAuditor{},
		events:   nopPublisher{},
		log:      logger.With(zap.String("component", "scheduling")),
		locks:    newLockTable(),
		sanitize: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ping checks the repository.
func (e *Engine) Ping(ctx context.Context) error {
	return e.repo.Ping(ctx)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func (e *Engine) defaultLimit(stage models.Stage) int {
	if stage == models.StageDiksha {
		return e.cfg.DefaultDikshaLimit
	}
	return e.cfg.DefaultMeetingLimit
}

/*─────────────────────────────────────────────────────────────────────────────*
| Per-container serialization                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// lockTable hands out one mutex per container key (stage:date). Keys are
// known before the container exists, so lazily created containers are
// covered too.
type lockTable struct {
	m *xsync.Map[string, *sync.Mutex]
}

func newLockTable() *lockTable {
	return &lockTable{m: xsync.NewMap[string, *sync.Mutex]()}
}

// lock acquires every key in sorted order and returns the release func.
func (t *lockTable) lock(keys []string) func() {
	keys = uniqueSorted(keys)
	held := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		mu, _ := t.m.LoadOrStore(k, &sync.Mutex{})
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func uniqueSorted(keys []string) []string {
	set := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := set[k]; ok {
			continue
		}
		set[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func subset(keys, of []string) bool {
	set := make(map[string]struct{}, len(of))
	for _, k := range of {
		set[k] = struct{}{}
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

var errKeysMoved = errors.New("scheduling: lock keys changed")

const maxLockAttempts = 5

// exec runs fn inside a repository transaction while holding the locks for
// every container key fn will touch. keysFn reports those keys from current
// state; it runs once before locking and again inside the transaction. If
// the set grew in between (a concurrent move), the attempt is retried with
// the new set. A unit that fails with ErrConflict is retried unchanged.
func (e *Engine) exec(ctx context.Context, keysFn func(ctx context.Context, tx Tx) ([]string, error), fn func(ctx context.Context, tx Tx) error) error {
	var keys []string
	if err := e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		k, err := keysFn(ctx, tx)
		keys = k
		return err
	}); err != nil {
		return err
	}

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		unlock := e.locks.lock(keys)
		var grown []string
		err := e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
			now, err := keysFn(ctx, tx)
			if err != nil {
				return err
			}
			if !subset(now, keys) {
				grown = now
				return errKeysMoved
			}
			return fn(ctx, tx)
		})
		unlock()
		if errors.Is(err, errKeysMoved) {
			keys = append(keys, grown...)
			continue
		}
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return &Error{Kind: KindConcurrentModification, Message: "state kept changing; refresh and retry"}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Observation                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// begin opens a span for op and returns the finisher, which records metrics
// and logs the outcome. Call as: defer func() { done(err) }().
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "scheduling."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "ok"
		switch kind := KindOf(err); {
		case err == nil:
		case kind != "":
			outcome = string(kind)
			span.SetAttributes(attribute.String("error_kind", outcome))
			e.log.Info("operation rejected", zap.String("op", op), zap.String("error_kind", outcome), zap.Error(err))
		default:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.log.Error("operation failed", zap.String("op", op), zap.Error(err))
		}
		e.metrics.observe(op, outcome, time.Since(start).Seconds())
		span.End()
	}
}

// finish hands a committed operation to the audit and event collaborators.
func (e *Engine) finish(ctx context.Context, entry AuditEntry, key string, ev Event) {
	entry.At = ev.At
	e.audit.Record(ctx, entry)
	e.publish(ctx, key, ev)
}

func (e *Engine) publish(ctx context.Context, key string, ev Event) {
	if err := e.events.Publish(ctx, key, ev); err != nil {
		e.log.Warn("event publish failed", zap.String("event", key), zap.Error(err))
	}
}

func (e *Engine) event(typ string, meta Meta, at time.Time) Event {
	return Event{
		Type:          typ,
		At:            at,
		ActorID:       meta.Actor.ID,
		ActorName:     meta.Actor.Name,
		CommitMessage: meta.CommitMessage,
	}
}

// clean strips markup from free text echoed onto stored records.
func (e *Engine) clean(s string) string {
	return e.sanitize.Sanitize(s)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Shared reads                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func loadContainer(ctx context.Context, tx Tx, id string) (models.Container, error) {
	c, err := tx.ContainerByID(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return models.Container{}, containerNotFound(id)
	}
	return c, err
}

func loadAssignment(ctx context.Context, tx Tx, id string) (models.Assignment, error) {
	a, err := tx.Assignment(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return models.Assignment{}, assignmentNotFound(id)
	}
	return a, err
}

// loadGroup returns every member of a's group in role order, or just a.
func loadGroup(ctx context.Context, tx Tx, a models.Assignment) ([]models.Assignment, error) {
	if !a.InGroup() {
		return []models.Assignment{a}, nil
	}
	members, err := tx.AssignmentsByPair(ctx, a.PairID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []models.Assignment{a}, nil
	}
	return members, nil
}

// ensureContainer returns the container for (stage, date), creating it with
// the configured default limit on first reference.
func (e *Engine) ensureContainer(ctx context.Context, tx Tx, stage models.Stage, date string) (models.Container, error) {
	c, err := tx.ContainerByKey(ctx, stage, date)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNoRecord) {
		return models.Container{}, err
	}
	now := e.now()
	return tx.EnsureContainer(ctx, models.Container{
		ID:        uuid.NewString(),
		Date:      date,
		Stage:     stage,
		Limit:     e.defaultLimit(stage),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// groupKeys lists container keys a group occupies, including reserved
// DIKSHA dates.
func groupKeys(members []models.Assignment) []string {
	keys := make([]string, 0, len(members)*2)
	for _, m := range members {
		keys = append(keys, models.ContainerKey(m.Stage, m.Date))
		if m.Stage == models.StageMeeting && m.OccupiedDate != "" {
			keys = append(keys, models.ContainerKey(models.StageDiksha, m.OccupiedDate))
		}
	}
	return keys
}

func ids(as []models.Assignment) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

// bump stamps a write on a, returning the version it must replace.
func bump(a *models.Assignment, now time.Time) int64 {
	prev := a.Version
	a.Version++
	a.UpdatedAt = now
	return prev
}

func updateAll(ctx context.Context, tx Tx, as []models.Assignment, prev []int64) error {
	for i, a := range as {
		if err := tx.UpdateAssignment(ctx, a, prev[i]); err != nil {
			if errors.Is(err, ErrStaleVersion) {
				return staleVersion(a.ID, prev[i], -1)
			}
			return err
		}
	}
	return nil
}
