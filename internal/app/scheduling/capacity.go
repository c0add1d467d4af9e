package scheduling

import (
	"context"
	"math"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
)

// Tier is an advisory fill band for a container. It is never a gate.
type Tier string

const (
	TierOK   Tier = "OK"
	TierMid  Tier = "MID"
	TierHigh Tier = "HIGH"
	TierFull Tier = "FULL"
)

// TierFor bands used/limit.
func TierFor(used, limit int) Tier {
	if limit < 1 {
		return TierFull
	}
	p := float64(used) / float64(limit)
	switch {
	case p >= 1.0:
		return TierFull
	case p >= 0.8:
		return TierHigh
	case p >= 0.5:
		return TierMid
	default:
		return TierOK
	}
}

// maxRangeDays bounds CapacityRange requests.
const maxRangeDays = 400

// Capacity is the derived occupancy of one container. Used counts live
// assignments plus, for DIKSHA containers, live reservations on its date.
type Capacity struct {
	ContainerID string       `json:"container_id"`
	Date        string       `json:"date"`
	Stage       models.Stage `json:"stage"`
	Limit       int          `json:"limit"`
	Used        int          `json:"used"`
	Assigned    int          `json:"assigned"`
	Reserved    int          `json:"reserved"`
	Remaining   int          `json:"remaining"`
	Percent     float64      `json:"percent"`
	Tier        Tier         `json:"tier"`
}

func newCapacity(c models.Container, assigned, reserved int) Capacity {
	used := assigned + reserved
	remaining := c.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	var pct float64
	if c.Limit > 0 {
		pct = math.Round(float64(used)/float64(c.Limit)*10000) / 10000
	}
	return Capacity{
		ContainerID: c.ID,
		Date:        c.Date,
		Stage:       c.Stage,
		Limit:       c.Limit,
		Used:        used,
		Assigned:    assigned,
		Reserved:    reserved,
		Remaining:   remaining,
		Percent:     pct,
		Tier:        TierFor(used, c.Limit),
	}
}

// capacityTx counts c's occupancy inside tx.
func capacityTx(ctx context.Context, tx Tx, c models.Container) (Capacity, error) {
	counts, err := tx.CountAssignments(ctx, []string{c.ID})
	if err != nil {
		return Capacity{}, err
	}
	reserved := 0
	if c.Stage == models.StageDiksha {
		r, err := tx.CountReservations(ctx, c.Date, c.Date)
		if err != nil {
			return Capacity{}, err
		}
		reserved = r[c.Date]
	}
	return newCapacity(c, counts[c.ID], reserved), nil
}

// ResolveContainer returns the container for (date, stage), creating it with
// the stage's default limit on first reference.
func (e *Engine) ResolveContainer(ctx context.Context, date string, stage models.Stage) (c models.Container, err error) {
	ctx, done := e.begin(ctx, "resolve_container", attribute.String("date", date), attribute.String("stage", string(stage)))
	defer func() { done(err) }()

	d, ok := models.NormalizeDate(date)
	if !ok {
		return models.Container{}, invalid("date %q is not YYYY-MM-DD", date)
	}
	if !stage.Valid() {
		return models.Container{}, invalid("unknown stage %q", stage)
	}
	key := models.ContainerKey(stage, d)
	err = e.exec(ctx,
		func(context.Context, Tx) ([]string, error) { return []string{key}, nil },
		func(ctx context.Context, tx Tx) error {
			var err error
			c, err = e.ensureContainer(ctx, tx, stage, d)
			return err
		})
	return c, err
}

// Capacity reports the derived occupancy of a container.
func (e *Engine) Capacity(ctx context.Context, containerID string) (cp Capacity, err error) {
	ctx, done := e.begin(ctx, "capacity", attribute.String("container_id", containerID))
	defer func() { done(err) }()

	err = e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := loadContainer(ctx, tx, containerID)
		if err != nil {
			return err
		}
		cp, err = capacityTx(ctx, tx, c)
		return err
	})
	return cp, err
}

// CapacityRange reports capacity for every date in [from, to] on stage with
// a fixed number of store queries. Dates with no container yet report the
// stage's default limit and an empty container id.
func (e *Engine) CapacityRange(ctx context.Context, from, to string, stage models.Stage) (out map[string]Capacity, err error) {
	ctx, done := e.begin(ctx, "capacity_range",
		attribute.String("from", from), attribute.String("to", to), attribute.String("stage", string(stage)))
	defer func() { done(err) }()

	f, ok1 := models.NormalizeDate(from)
	t, ok2 := models.NormalizeDate(to)
	if !ok1 || !ok2 {
		return nil, invalid("range dates must be YYYY-MM-DD")
	}
	if !stage.Valid() {
		return nil, invalid("unknown stage %q", stage)
	}
	if t < f {
		return nil, invalid("range end %s is before start %s", t, f)
	}
	if span := models.DaySpan(f, t); span > maxRangeDays {
		return nil, invalid("range spans %d days; at most %d allowed", span, maxRangeDays)
	}
	dates := models.DatesBetween(f, t)

	err = e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		cs, err := tx.ContainersInRange(ctx, stage, f, t)
		if err != nil {
			return err
		}
		byDate := make(map[string]models.Container, len(cs))
		cids := make([]string, 0, len(cs))
		for _, c := range cs {
			byDate[c.Date] = c
			cids = append(cids, c.ID)
		}
		counts := map[string]int{}
		if len(cids) > 0 {
			if counts, err = tx.CountAssignments(ctx, cids); err != nil {
				return err
			}
		}
		reserved := map[string]int{}
		if stage == models.StageDiksha {
			if reserved, err = tx.CountReservations(ctx, f, t); err != nil {
				return err
			}
		}

		out = make(map[string]Capacity, len(dates))
		for _, d := range dates {
			c, ok := byDate[d]
			if !ok {
				c = models.Container{Date: d, Stage: stage, Limit: e.defaultLimit(stage)}
			}
			out[d] = newCapacity(c, counts[c.ID], reserved[d])
		}
		return nil
	})
	return out, err
}

// inspect reads c's capacity and lock state at now.
func inspect(ctx context.Context, tx Tx, c models.Container, now time.Time) (Capacity, LockStatus, error) {
	cp, err := capacityTx(ctx, tx, c)
	if err != nil {
		return Capacity{}, LockStatus{}, err
	}
	return cp, lockStatusOf(c, cp, now), nil
}
