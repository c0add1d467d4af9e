package scheduling

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
)

// MoveMode selects which members of a card's group a move applies to.
type MoveMode string

const (
	MoveAll    MoveMode = "ALL"
	MoveSingle MoveMode = "SINGLE"
	MoveIDs    MoveMode = "IDS"
)

// ParseMoveMode accepts any casing; empty means ALL.
func ParseMoveMode(v string) (MoveMode, bool) {
	m := MoveMode(strings.ToUpper(strings.TrimSpace(v)))
	switch m {
	case "":
		return MoveAll, true
	case MoveAll, MoveSingle, MoveIDs:
		return m, true
	}
	return m, false
}

// MoveMembers picks the moving set. IDs is used with MoveIDs only.
type MoveMembers struct {
	Mode MoveMode
	IDs  []string
}

// MoveRequest relocates cards to another date and/or occupied date, or
// detaches part of a group. ExpectedVersion is the anchor card's version as
// last read by the caller.
type MoveRequest struct {
	AssignmentID    string
	Members         MoveMembers
	NewDate         string
	NewOccupiedDate string
	Reason          string
	ExpectedVersion int64
	Meta            Meta
}

// movePlan is the validated target state for one member.
type movePlan struct {
	date     string
	occupied string
	bypass   bool
}

// Move applies req and returns every card it changed: the moved members
// first, then any remaining group members whose kind or pair changed.
func (e *Engine) Move(ctx context.Context, req MoveRequest) (out []models.Assignment, err error) {
	ctx, done := e.begin(ctx, "move",
		attribute.String("assignment_id", req.AssignmentID), attribute.String("mode", string(req.Members.Mode)))
	defer func() { done(err) }()

	var (
		source   models.Container
		moved    []models.Assignment
		from     models.Assignment
		detached bool
		now      time.Time
	)
	err = e.exec(ctx, e.moveKeys(req), func(ctx context.Context, tx Tx) error {
		a, err := loadAssignment(ctx, tx, req.AssignmentID)
		if err != nil {
			return err
		}
		target, err := parseMoveTarget(req, a)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != a.Version {
			return staleVersion(a.ID, req.ExpectedVersion, a.Version)
		}
		group, err := loadGroup(ctx, tx, a)
		if err != nil {
			return err
		}
		moving, staying, err := splitGroup(req.Members, a, group)
		if err != nil {
			return err
		}
		for _, m := range group {
			if m.IsQualified() {
				return lockedQualified(m)
			}
		}

		plans := make([]movePlan, len(moving))
		changed := false
		for i, m := range moving {
			p := movePlan{date: m.Date, occupied: m.OccupiedDate, bypass: m.Bypass}
			if target.date != "" {
				p.date = target.date
			}
			if target.bypass {
				p.occupied, p.bypass = "", true
			} else if target.occupied != "" {
				p.occupied, p.bypass = target.occupied, false
			}
			if p != (movePlan{date: m.Date, occupied: m.OccupiedDate, bypass: m.Bypass}) {
				changed = true
			}
			plans[i] = p
		}
		detach := len(staying) > 0
		if !changed && !detach {
			return invalid("move changes nothing")
		}

		if source, err = loadContainer(ctx, tx, a.ContainerID); err != nil {
			return err
		}
		now = e.now()

		// Containers gaining members or reservations, keyed by container key.
		gains := map[string]int{}
		gainC := map[string]models.Container{}
		touched := map[string]models.Container{source.Key(): source}
		leaving := false
		for i, m := range moving {
			p := plans[i]
			if p.date != m.Date {
				leaving = true
				t, err := e.ensureContainer(ctx, tx, m.Stage, p.date)
				if err != nil {
					return err
				}
				gains[t.Key()]++
				gainC[t.Key()] = t
				touched[t.Key()] = t
			}
			if m.HoldsReservation() && (p.bypass || p.occupied != m.OccupiedDate) {
				old, err := e.ensureContainer(ctx, tx, models.StageDiksha, m.OccupiedDate)
				if err != nil {
					return err
				}
				touched[old.Key()] = old
			}
			if !p.bypass && p.occupied != "" && (m.Bypass || p.occupied != m.OccupiedDate) {
				d, err := e.ensureContainer(ctx, tx, models.StageDiksha, p.occupied)
				if err != nil {
					return err
				}
				gains[d.Key()]++
				gainC[d.Key()] = d
				touched[d.Key()] = d
			}
		}

		gated := make([]models.Container, 0, len(gainC)+1)
		if leaving {
			gated = append(gated, source)
		}
		for _, k := range uniqueSorted(keysOf(gainC)) {
			gated = append(gated, gainC[k])
		}
		if err := e.checkLocks(ctx, tx, now, gated...); err != nil {
			return err
		}

		if err := e.checkCooldown(moving, now); err != nil {
			return err
		}

		for i, m := range moving {
			p := plans[i]
			if m.Stage == models.StageMeeting && !p.bypass && p.occupied != "" && p.occupied < p.date {
				return occupyBeforeMeeting(p.date, p.occupied)
			}
		}

		seats := make([]seat, 0, len(gains))
		for _, k := range uniqueSorted(keysOf(gainC)) {
			seats = append(seats, seat{gainC[k], gains[k]})
		}
		if err := e.checkRoom(ctx, tx, now, seats...); err != nil {
			return err
		}

		reason := e.clean(req.Reason)
		msg := e.clean(req.Meta.CommitMessage)
		movedAt := now
		prev := make([]int64, 0, len(group))
		changedCards := make([]models.Assignment, 0, len(group))
		for i := range moving {
			m := moving[i]
			p := plans[i]
			entry := models.MoveEntry{
				FromDate:         m.Date,
				ToDate:           p.date,
				FromOccupiedDate: m.OccupiedDate,
				ToOccupiedDate:   p.occupied,
				MovedAt:          now,
				MovedByID:        req.Meta.Actor.ID,
				MovedBy:          req.Meta.Actor.Name,
				Reason:           reason,
				CommitMessage:    msg,
				Detached:         detach,
			}
			if p.date != m.Date {
				t := touched[models.ContainerKey(m.Stage, p.date)]
				m.ContainerID, m.Date = t.ID, t.Date
			}
			m.OccupiedDate, m.Bypass = p.occupied, p.bypass
			if detach {
				m.Kind, m.PairID, m.RoleInPair = models.KindSingle, "", 1
			}
			m.MoveHistory = append(append([]models.MoveEntry{}, m.MoveHistory...), entry)
			m.MoveCount++
			m.LastMovedAt = &movedAt
			prev = append(prev, bump(&m, now))
			changedCards = append(changedCards, m)
		}
		if detach {
			kind := models.KindForSize(len(staying))
			for i := range staying {
				m := staying[i]
				m.Kind = kind
				m.RoleInPair = i + 1
				if len(staying) < 2 {
					m.PairID = ""
				}
				prev = append(prev, bump(&m, now))
				changedCards = append(changedCards, m)
			}
		}
		if err := updateAll(ctx, tx, changedCards, prev); err != nil {
			return err
		}

		tids := make([]string, 0, len(touched))
		for _, k := range uniqueSorted(keysOf(touched)) {
			tids = append(tids, touched[k].ID)
		}
		if err := tx.TouchContainers(ctx, tids); err != nil {
			return err
		}
		moved, from, detached = changedCards, a, detach
		return nil
	})
	if err != nil {
		return nil, err
	}

	anchor := moved[0]
	ev := e.event(EventMoved, req.Meta, now)
	ev.ContainerID, ev.Stage, ev.Date, ev.Assignments = source.ID, source.Stage, source.Date, moved
	e.finish(ctx, AuditEntry{
		Action:        ActionMove,
		Actor:         req.Meta.Actor,
		CommitMessage: req.Meta.CommitMessage,
		ContainerID:   source.ID,
		Stage:         source.Stage,
		Date:          source.Date,
		AssignmentIDs: ids(moved),
		Details: map[string]string{
			"from_date":          from.Date,
			"to_date":            anchor.Date,
			"from_occupied_date": from.OccupiedDate,
			"to_occupied_date":   anchor.OccupiedDate,
			"reason":             req.Reason,
			"detached":           strconv.FormatBool(detached),
		},
	}, EventMoved, ev)
	return moved, nil
}

// parseMoveTarget validates the request shape for anchor a.
func parseMoveTarget(req MoveRequest, a models.Assignment) (movePlan, error) {
	var t movePlan
	if _, ok := ParseMoveMode(string(req.Members.Mode)); !ok {
		return t, invalid("unknown move mode %q", req.Members.Mode)
	}
	if req.ExpectedVersion < 1 {
		return t, invalid("expected version is required")
	}
	if nd := strings.TrimSpace(req.NewDate); nd != "" {
		d, ok := models.NormalizeDate(nd)
		if !ok {
			return t, invalid("new date %q is not YYYY-MM-DD", nd)
		}
		t.date = d
	}
	if no := strings.TrimSpace(req.NewOccupiedDate); no != "" {
		if a.Stage != models.StageMeeting {
			return t, invalid("occupied date applies to MEETING cards only")
		}
		if strings.EqualFold(no, models.BypassSentinel) {
			t.bypass = true
		} else {
			d, ok := models.NormalizeDate(no)
			if !ok {
				return t, invalid("new occupied date %q is not YYYY-MM-DD", no)
			}
			t.occupied = d
		}
	}
	return t, nil
}

// splitGroup resolves the moving set and the members left behind.
func splitGroup(sel MoveMembers, anchor models.Assignment, group []models.Assignment) ([]models.Assignment, []models.Assignment, error) {
	mode, _ := ParseMoveMode(string(sel.Mode))
	pick := map[string]bool{}
	switch mode {
	case MoveAll:
		for _, m := range group {
			pick[m.ID] = true
		}
	case MoveSingle:
		pick[anchor.ID] = true
	case MoveIDs:
		if len(sel.IDs) == 0 {
			return nil, nil, invalid("member ids are required for mode IDS")
		}
		inGroup := map[string]bool{}
		for _, m := range group {
			inGroup[m.ID] = true
		}
		for _, id := range sel.IDs {
			if !inGroup[id] {
				return nil, nil, invalid("card %s is not in this group", id)
			}
			pick[id] = true
		}
	}
	var moving, staying []models.Assignment
	for _, m := range group {
		if pick[m.ID] {
			moving = append(moving, m)
		} else {
			staying = append(staying, m)
		}
	}
	return moving, staying, nil
}

// checkCooldown fails CooldownActive with the longest wait among moving.
func (e *Engine) checkCooldown(moving []models.Assignment, now time.Time) error {
	if e.cfg.MoveCooldown <= 0 {
		return nil
	}
	var wait time.Duration
	var blocked models.Assignment
	for _, m := range moving {
		if m.LastMovedAt == nil {
			continue
		}
		if left := m.LastMovedAt.Add(e.cfg.MoveCooldown).Sub(now); left > wait {
			wait, blocked = left, m
		}
	}
	if wait <= 0 {
		return nil
	}
	secs := int(math.Ceil(wait.Seconds()))
	return &Error{
		Kind:             KindCooldownActive,
		Message:          "moved " + blocked.LastMovedAt.Format(time.RFC3339) + "; wait " + strconv.Itoa(secs) + "s",
		AssignmentID:     blocked.ID,
		ContainerID:      blocked.ContainerID,
		RemainingSeconds: secs,
	}
}

// moveKeys covers the card's current group plus every requested target.
func (e *Engine) moveKeys(req MoveRequest) func(context.Context, Tx) ([]string, error) {
	return func(ctx context.Context, tx Tx) ([]string, error) {
		a, err := loadAssignment(ctx, tx, req.AssignmentID)
		if err != nil {
			return nil, err
		}
		members, err := loadGroup(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		keys := groupKeys(members)
		if d, ok := models.NormalizeDate(req.NewDate); ok {
			keys = append(keys, models.ContainerKey(a.Stage, d))
		}
		if d, ok := models.NormalizeDate(req.NewOccupiedDate); ok {
			keys = append(keys, models.ContainerKey(models.StageDiksha, d))
		}
		return keys, nil
	}
}

func keysOf(m map[string]models.Container) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
