package scheduling

import (
	"context"
	"strconv"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
)

// LockStatus is the effective lock state of a container at one instant.
// It is always recomputed; nothing here is cached.
type LockStatus struct {
	ContainerID     string     `json:"container_id"`
	IsFull          bool       `json:"is_full"`
	IsLocked        bool       `json:"is_locked"`
	IsUnlocked      bool       `json:"is_unlocked"`
	UnlockExpiresAt *time.Time `json:"unlock_expires_at,omitempty"`
}

func lockStatusOf(c models.Container, cp Capacity, now time.Time) LockStatus {
	full := cp.Used >= c.Limit
	unlocked := c.ManualUnlockExpiresAt != nil && c.ManualUnlockExpiresAt.After(now)
	return LockStatus{
		ContainerID:     c.ID,
		IsFull:          full,
		IsLocked:        full && !unlocked,
		IsUnlocked:      unlocked,
		UnlockExpiresAt: c.ManualUnlockExpiresAt,
	}
}

// LockStatus reports whether a container currently refuses mutations.
func (e *Engine) LockStatus(ctx context.Context, containerID string) (ls LockStatus, err error) {
	ctx, done := e.begin(ctx, "lock_status", attribute.String("container_id", containerID))
	defer func() { done(err) }()

	err = e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := loadContainer(ctx, tx, containerID)
		if err != nil {
			return err
		}
		_, ls, err = inspect(ctx, tx, c, e.now())
		return err
	})
	return ls, err
}

// Unlock opens a container for minutes (1..1440) regardless of fill. The
// limit is unchanged; once the window lapses a still-full container is
// locked again. Admin capability is checked by the caller.
func (e *Engine) Unlock(ctx context.Context, containerID string, minutes int, meta Meta) (ls LockStatus, err error) {
	ctx, done := e.begin(ctx, "unlock", attribute.String("container_id", containerID), attribute.Int("minutes", minutes))
	defer func() { done(err) }()

	var c models.Container
	var now time.Time
	err = e.exec(ctx, containerKeys(containerID), func(ctx context.Context, tx Tx) error {
		var err error
		if c, err = loadContainer(ctx, tx, containerID); err != nil {
			return err
		}
		if minutes < 1 || minutes > MaxUnlockMinutes {
			return &Error{
				Kind:        KindInvalidDuration,
				Message:     "unlock minutes must be between 1 and " + strconv.Itoa(MaxUnlockMinutes),
				ContainerID: c.ID,
			}
		}
		now = e.now()
		until := now.Add(time.Duration(minutes) * time.Minute)
		if err := tx.SetContainerUnlock(ctx, c.ID, &until, now); err != nil {
			return err
		}
		c.ManualUnlockExpiresAt = &until
		c.UpdatedAt = now
		_, ls, err = inspect(ctx, tx, c, now)
		return err
	})
	if err != nil {
		return LockStatus{}, err
	}

	ev := e.event(EventUnlocked, meta, now)
	ev.ContainerID, ev.Stage, ev.Date, ev.UnlockUntil = c.ID, c.Stage, c.Date, c.ManualUnlockExpiresAt
	e.finish(ctx, AuditEntry{
		Action:        ActionUnlock,
		Actor:         meta.Actor,
		CommitMessage: meta.CommitMessage,
		ContainerID:   c.ID,
		Stage:         c.Stage,
		Date:          c.Date,
		Details:       map[string]string{"minutes": strconv.Itoa(minutes), "until": c.ManualUnlockExpiresAt.Format(time.RFC3339)},
	}, EventUnlocked, ev)
	return ls, nil
}

// SetLimit changes a container's capacity. Lowering it below current use is
// allowed; the container simply reads as full.
func (e *Engine) SetLimit(ctx context.Context, containerID string, limit int, meta Meta) (cp Capacity, err error) {
	ctx, done := e.begin(ctx, "set_limit", attribute.String("container_id", containerID), attribute.Int("limit", limit))
	defer func() { done(err) }()

	var c models.Container
	var prev int
	var now time.Time
	err = e.exec(ctx, containerKeys(containerID), func(ctx context.Context, tx Tx) error {
		var err error
		if c, err = loadContainer(ctx, tx, containerID); err != nil {
			return err
		}
		if limit < 1 {
			return &Error{Kind: KindInvalidLimit, Message: "limit must be at least 1", ContainerID: c.ID}
		}
		now = e.now()
		if err := tx.SetContainerLimit(ctx, c.ID, limit, now); err != nil {
			return err
		}
		prev = c.Limit
		c.Limit = limit
		c.UpdatedAt = now
		cp, err = capacityTx(ctx, tx, c)
		return err
	})
	if err != nil {
		return Capacity{}, err
	}

	ev := e.event(EventLimitChanged, meta, now)
	ev.ContainerID, ev.Stage, ev.Date, ev.Limit = c.ID, c.Stage, c.Date, limit
	e.finish(ctx, AuditEntry{
		Action:        ActionSetLimit,
		Actor:         meta.Actor,
		CommitMessage: meta.CommitMessage,
		ContainerID:   c.ID,
		Stage:         c.Stage,
		Date:          c.Date,
		Details:       map[string]string{"from": strconv.Itoa(prev), "to": strconv.Itoa(limit)},
	}, EventLimitChanged, ev)
	return cp, nil
}

// SweepLapsedUnlocks clears expired manual unlocks and reports the
// containers that reverted. Lock state never depends on this running; it
// only tidies stored state and announces the relock.
func (e *Engine) SweepLapsedUnlocks(ctx context.Context) (n int, err error) {
	ctx, done := e.begin(ctx, "sweep_unlocks")
	defer func() { done(err) }()

	var lapsed []models.Container
	now := e.now()
	err = e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		lapsed, err = tx.LapsedUnlocks(ctx, now)
		if err != nil {
			return err
		}
		for _, c := range lapsed {
			if err := tx.SetContainerUnlock(ctx, c.ID, nil, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, c := range lapsed {
		ev := e.event(EventRelocked, Meta{Actor: Actor{Name: "system"}}, now)
		ev.ContainerID, ev.Stage, ev.Date, ev.UnlockUntil = c.ID, c.Stage, c.Date, c.ManualUnlockExpiresAt
		e.publish(ctx, EventRelocked, ev)
	}
	return len(lapsed), nil
}

// containerKeys resolves the lock key for a container id.
func containerKeys(id string) func(context.Context, Tx) ([]string, error) {
	return func(ctx context.Context, tx Tx) ([]string, error) {
		c, err := loadContainer(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return []string{c.Key()}, nil
	}
}
