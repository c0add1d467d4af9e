package scheduling

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// AssignRequest places one customer (SINGLE) or a group (COUPLE/FAMILY)
// into a container. OccupyDate is MEETING-only and names the DIKSHA date to
// reserve; it may be models.BypassSentinel in place of Bypass=true.
type AssignRequest struct {
	ContainerID string
	CustomerIDs []string
	Kind        models.Kind
	OccupyDate  string
	Bypass      bool
	Meta        Meta
}

// seat is a container an operation needs room in.
type seat struct {
	c    models.Container
	gain int
}

// checkLocks fails ContainerLocked on the first locked container.
func (e *Engine) checkLocks(ctx context.Context, tx Tx, now time.Time, cs ...models.Container) error {
	for _, c := range cs {
		_, ls, err := inspect(ctx, tx, c, now)
		if err != nil {
			return err
		}
		if ls.IsLocked {
			return containerLocked(c)
		}
	}
	return nil
}

// checkRoom fails Housefull when a seat's container has fewer than gain
// seats left. A manual unlock admits past the limit while it lasts.
func (e *Engine) checkRoom(ctx context.Context, tx Tx, now time.Time, seats ...seat) error {
	for _, s := range seats {
		if s.gain <= 0 {
			continue
		}
		cp, ls, err := inspect(ctx, tx, s.c, now)
		if err != nil {
			return err
		}
		if ls.IsUnlocked {
			continue
		}
		if cp.Remaining < s.gain {
			return housefull(s.c, s.gain, cp.Remaining)
		}
	}
	return nil
}

// normalizeAssign validates request shape against the target container and
// returns the deduplicated customer ids, kind, and normalized occupy date.
func normalizeAssign(req AssignRequest, c models.Container) ([]string, models.Kind, string, bool, error) {
	seen := make(map[string]struct{}, len(req.CustomerIDs))
	var customers []string
	for _, id := range req.CustomerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, "", "", false, invalid("customer ids must not be blank")
		}
		if _, dup := seen[id]; dup {
			return nil, "", "", false, invalid("customer %s listed twice", id)
		}
		seen[id] = struct{}{}
		customers = append(customers, id)
	}
	if len(customers) == 0 {
		return nil, "", "", false, invalid("at least one customer id is required")
	}

	kind := req.Kind
	if kind == "" {
		kind = models.KindForSize(len(customers))
	}
	if !kind.Valid() {
		return nil, "", "", false, invalid("unknown kind %q", kind)
	}
	if !kind.AcceptsSize(len(customers)) {
		return nil, "", "", false, invalid("kind %s does not fit %d customer(s)", kind, len(customers))
	}

	occupy := strings.TrimSpace(req.OccupyDate)
	bypass := req.Bypass
	if strings.EqualFold(occupy, models.BypassSentinel) {
		bypass, occupy = true, ""
	}

	if c.Stage == models.StageDiksha {
		if occupy != "" || bypass {
			return nil, "", "", false, invalid("occupy date and bypass apply to MEETING containers only")
		}
		return customers, kind, "", false, nil
	}

	if bypass {
		if occupy != "" {
			return nil, "", "", false, invalid("occupy date and bypass are mutually exclusive")
		}
		return customers, kind, "", true, nil
	}
	if occupy == "" {
		return nil, "", "", false, &Error{Kind: KindOccupyRequired, Message: "an occupy date or bypass is required", ContainerID: c.ID, Date: c.Date, Stage: c.Stage}
	}
	d, ok := models.NormalizeDate(occupy)
	if !ok {
		return nil, "", "", false, invalid("occupy date %q is not YYYY-MM-DD", occupy)
	}
	if d < c.Date {
		return nil, "", "", false, occupyBeforeMeeting(c.Date, d)
	}
	return customers, kind, d, false, nil
}

// Assign creates new ACTIVE cards for every customer in req, atomically.
func (e *Engine) Assign(ctx context.Context, req AssignRequest) (out []models.Assignment, err error) {
	ctx, done := e.begin(ctx, "assign",
		attribute.String("container_id", req.ContainerID), attribute.Int("customers", len(req.CustomerIDs)))
	defer func() { done(err) }()

	var c models.Container
	var now time.Time
	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		c, err := loadContainer(ctx, tx, req.ContainerID)
		if err != nil {
			return nil, err
		}
		keys := []string{c.Key()}
		if occ, ok := models.NormalizeDate(req.OccupyDate); ok && c.Stage == models.StageMeeting {
			keys = append(keys, models.ContainerKey(models.StageDiksha, occ))
		}
		return keys, nil
	}
	err = e.exec(ctx, keys, func(ctx context.Context, tx Tx) error {
		var err error
		if c, err = loadContainer(ctx, tx, req.ContainerID); err != nil {
			return err
		}
		customers, kind, occupy, bypass, err := normalizeAssign(req, c)
		if err != nil {
			return err
		}
		placed, err := tx.AssignmentsForCustomers(ctx, c.Stage, customers)
		if err != nil {
			return err
		}
		if len(placed) > 0 {
			a := placed[0]
			return invalid("customer %s is already placed on %s %s", a.CustomerID, a.Stage, a.Date)
		}

		now = e.now()
		n := len(customers)
		touched := []models.Container{c}
		if err := e.checkLocks(ctx, tx, now, c); err != nil {
			return err
		}
		var diksha models.Container
		if occupy != "" {
			if diksha, err = e.ensureContainer(ctx, tx, models.StageDiksha, occupy); err != nil {
				return err
			}
			if err := e.checkLocks(ctx, tx, now, diksha); err != nil {
				return err
			}
			touched = append(touched, diksha)
		}
		if err := e.checkRoom(ctx, tx, now, seat{c, n}, seat{diksha, reservationGain(occupy, n)}); err != nil {
			return err
		}

		pairID := ""
		if n > 1 {
			pairID = uuid.NewString()
		}
		out = make([]models.Assignment, 0, n)
		for i, cid := range customers {
			a := models.Assignment{
				ID:            uuid.NewString(),
				CustomerID:    cid,
				ContainerID:   c.ID,
				Stage:         c.Stage,
				Date:          c.Date,
				Kind:          kind,
				PairID:        pairID,
				RoleInPair:    i + 1,
				CardStatus:    models.CardActive,
				OccupiedDate:  occupy,
				Bypass:        bypass,
				Version:       1,
				CreatedByID:   req.Meta.Actor.ID,
				CreatedByName: req.Meta.Actor.Name,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			out = append(out, a)
		}
		if err := tx.InsertAssignments(ctx, out); err != nil {
			return err
		}
		return tx.TouchContainers(ctx, containerIDs(touched))
	})
	if err != nil {
		return nil, err
	}

	ev := e.event(EventAssigned, req.Meta, now)
	ev.ContainerID, ev.Stage, ev.Date, ev.Assignments = c.ID, c.Stage, c.Date, out
	e.finish(ctx, AuditEntry{
		Action:        ActionAssign,
		Actor:         req.Meta.Actor,
		CommitMessage: req.Meta.CommitMessage,
		ContainerID:   c.ID,
		Stage:         c.Stage,
		Date:          c.Date,
		AssignmentIDs: ids(out),
		Details:       map[string]string{"kind": string(out[0].Kind), "occupied_date": out[0].OccupiedDate, "bypass": strconv.FormatBool(out[0].Bypass)},
	}, EventAssigned, ev)
	return out, nil
}

func reservationGain(occupy string, n int) int {
	if occupy == "" {
		return 0
	}
	return n
}

func containerIDs(cs []models.Container) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.ID != "" {
			out = append(out, c.ID)
		}
	}
	return out
}

// groupOf loads the card and its whole group and fails LockedQualified if
// any member is terminal. want restricts the stage ("" for any).
func groupOf(ctx context.Context, tx Tx, id string, want models.Stage, op string) (models.Assignment, []models.Assignment, error) {
	a, err := loadAssignment(ctx, tx, id)
	if err != nil {
		return models.Assignment{}, nil, err
	}
	if a.IsQualified() {
		return models.Assignment{}, nil, lockedQualified(a)
	}
	if want != "" && a.Stage != want {
		return models.Assignment{}, nil, invalid("%s applies to %s cards only", op, want)
	}
	members, err := loadGroup(ctx, tx, a)
	if err != nil {
		return models.Assignment{}, nil, err
	}
	for _, m := range members {
		if m.IsQualified() {
			return models.Assignment{}, nil, lockedQualified(m)
		}
	}
	return a, members, nil
}

// assignmentKeys resolves lock keys for a card's whole group.
func assignmentKeys(id string) func(context.Context, Tx) ([]string, error) {
	return func(ctx context.Context, tx Tx) ([]string, error) {
		a, err := loadAssignment(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		members, err := loadGroup(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		return groupKeys(members), nil
	}
}

// Confirm qualifies a MEETING card (and its group). Reserved seats convert
// into new DIKSHA cards on the occupied date; bypass cards are flagged for
// the external pending pool instead. The updated meeting card is returned.
func (e *Engine) Confirm(ctx context.Context, assignmentID string, meta Meta) (anchor models.Assignment, err error) {
	ctx, done := e.begin(ctx, "confirm", attribute.String("assignment_id", assignmentID))
	defer func() { done(err) }()

	var c models.Container
	var members, created []models.Assignment
	var now time.Time
	err = e.exec(ctx, assignmentKeys(assignmentID), func(ctx context.Context, tx Tx) error {
		a, group, err := groupOf(ctx, tx, assignmentID, models.StageMeeting, "confirm")
		if err != nil {
			return err
		}
		if c, err = loadContainer(ctx, tx, a.ContainerID); err != nil {
			return err
		}
		now = e.now()
		if err := e.checkLocks(ctx, tx, now, c); err != nil {
			return err
		}

		touched := []models.Container{c}
		dikshaByDate := map[string]models.Container{}
		for _, m := range group {
			if m.Bypass {
				continue
			}
			if m.OccupiedDate == "" {
				return &Error{Kind: KindOccupyRequired, Message: "card has neither an occupy date nor bypass", AssignmentID: m.ID}
			}
			if _, ok := dikshaByDate[m.OccupiedDate]; ok {
				continue
			}
			d, err := e.ensureContainer(ctx, tx, models.StageDiksha, m.OccupiedDate)
			if err != nil {
				return err
			}
			dikshaByDate[m.OccupiedDate] = d
			touched = append(touched, d)
		}

		dikshaPair := ""
		if len(dikshaByDate) > 0 && len(group) > 1 {
			dikshaPair = uuid.NewString()
		}
		msg := e.clean(meta.CommitMessage)
		confirmedAt := now
		prev := make([]int64, len(group))
		history := make([]models.HistoryRecord, 0, len(group))
		created = created[:0]
		for i := range group {
			m := &group[i]
			rec := models.HistoryRecord{
				ID:            uuid.NewString(),
				Event:         models.HistoryConfirmed,
				AssignmentID:  m.ID,
				CustomerID:    m.CustomerID,
				Stage:         m.Stage,
				Date:          m.Date,
				Kind:          m.Kind,
				PairID:        m.PairID,
				OccupiedDate:  m.OccupiedDate,
				Bypass:        m.Bypass,
				ActorID:       meta.Actor.ID,
				ActorName:     meta.Actor.Name,
				CommitMessage: msg,
				At:            now,
			}
			if m.Bypass {
				m.PendingHandoff = true
			} else {
				d := dikshaByDate[m.OccupiedDate]
				card := models.Assignment{
					ID:            uuid.NewString(),
					CustomerID:    m.CustomerID,
					ContainerID:   d.ID,
					Stage:         models.StageDiksha,
					Date:          d.Date,
					Kind:          m.Kind,
					PairID:        dikshaPair,
					RoleInPair:    m.RoleInPair,
					CardStatus:    models.CardActive,
					Version:       1,
					CreatedByID:   meta.Actor.ID,
					CreatedByName: meta.Actor.Name,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				created = append(created, card)
				rec.DikshaAssignmentID = card.ID
			}
			m.CardStatus = models.CardQualified
			m.ConfirmedAt = &confirmedAt
			m.ConfirmedByID = meta.Actor.ID
			prev[i] = bump(m, now)
			history = append(history, rec)
		}

		if err := updateAll(ctx, tx, group, prev); err != nil {
			return err
		}
		if len(created) > 0 {
			if err := tx.InsertAssignments(ctx, created); err != nil {
				return err
			}
		}
		if err := tx.InsertHistory(ctx, history); err != nil {
			return err
		}
		members = group
		for _, m := range group {
			if m.ID == assignmentID {
				anchor = m
			}
		}
		return tx.TouchContainers(ctx, containerIDs(touched))
	})
	if err != nil {
		return models.Assignment{}, err
	}

	ev := e.event(EventConfirmed, meta, now)
	ev.ContainerID, ev.Stage, ev.Date = c.ID, c.Stage, c.Date
	ev.Assignments = append(append([]models.Assignment{}, members...), created...)
	e.finish(ctx, AuditEntry{
		Action:        ActionConfirm,
		Actor:         meta.Actor,
		CommitMessage: meta.CommitMessage,
		ContainerID:   c.ID,
		Stage:         c.Stage,
		Date:          c.Date,
		AssignmentIDs: ids(members),
		Details:       map[string]string{"diksha_cards": strconv.Itoa(len(created)), "bypass": strconv.FormatBool(anchor.Bypass)},
	}, EventConfirmed, ev)
	if anchor.Bypass {
		handoff := e.event(EventPendingHandoff, meta, now)
		handoff.ContainerID, handoff.Stage, handoff.Date, handoff.Assignments = c.ID, c.Stage, c.Date, members
		e.publish(ctx, EventPendingHandoff, handoff)
	}
	return anchor, nil
}

// Reject removes an ACTIVE meeting card (and its group), releasing any
// reservation, and hands it to action's external destination.
func (e *Engine) Reject(ctx context.Context, assignmentID string, action models.RejectAction, meta Meta) (err error) {
	ctx, done := e.begin(ctx, "reject", attribute.String("assignment_id", assignmentID), attribute.String("action", string(action)))
	defer func() { done(err) }()

	var c models.Container
	var members []models.Assignment
	var now time.Time
	err = e.exec(ctx, assignmentKeys(assignmentID), func(ctx context.Context, tx Tx) error {
		a, err := loadAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if !action.Valid() {
			return invalid("unknown reject action %q", action)
		}
		a, group, err := groupOf(ctx, tx, a.ID, models.StageMeeting, "reject")
		if err != nil {
			return err
		}
		if c, err = loadContainer(ctx, tx, a.ContainerID); err != nil {
			return err
		}
		now = e.now()
		if err := e.checkLocks(ctx, tx, now, c); err != nil {
			return err
		}

		msg := e.clean(meta.CommitMessage)
		history := make([]models.HistoryRecord, 0, len(group))
		for _, m := range group {
			if err := deleteCard(ctx, tx, m); err != nil {
				return err
			}
			history = append(history, models.HistoryRecord{
				ID:            uuid.NewString(),
				Event:         models.HistoryRejected,
				AssignmentID:  m.ID,
				CustomerID:    m.CustomerID,
				Stage:         m.Stage,
				Date:          m.Date,
				Kind:          m.Kind,
				PairID:        m.PairID,
				OccupiedDate:  m.OccupiedDate,
				Bypass:        m.Bypass,
				RejectAction:  action,
				ActorID:       meta.Actor.ID,
				ActorName:     meta.Actor.Name,
				CommitMessage: msg,
				At:            now,
			})
		}
		if err := tx.InsertHistory(ctx, history); err != nil {
			return err
		}
		members = group
		return tx.TouchContainers(ctx, []string{c.ID})
	})
	if err != nil {
		return err
	}

	ev := e.event(EventRejected, meta, now)
	ev.ContainerID, ev.Stage, ev.Date, ev.RejectAction, ev.Assignments = c.ID, c.Stage, c.Date, action, members
	e.finish(ctx, AuditEntry{
		Action:        ActionReject,
		Actor:         meta.Actor,
		CommitMessage: meta.CommitMessage,
		ContainerID:   c.ID,
		Stage:         c.Stage,
		Date:          c.Date,
		AssignmentIDs: ids(members),
		Details:       map[string]string{"reject_action": string(action)},
	}, EventRejected, ev)
	return nil
}

// Out removes a non-qualified card (and its group) from its container,
// releasing capacity and any reservation.
func (e *Engine) Out(ctx context.Context, assignmentID string, meta Meta) (err error) {
	ctx, done := e.begin(ctx, "out", attribute.String("assignment_id", assignmentID))
	defer func() { done(err) }()

	var c models.Container
	var members []models.Assignment
	var now time.Time
	err = e.exec(ctx, assignmentKeys(assignmentID), func(ctx context.Context, tx Tx) error {
		a, group, err := groupOf(ctx, tx, assignmentID, "", "out")
		if err != nil {
			return err
		}
		if c, err = loadContainer(ctx, tx, a.ContainerID); err != nil {
			return err
		}
		now = e.now()
		if err := e.checkLocks(ctx, tx, now, c); err != nil {
			return err
		}
		for _, m := range group {
			if err := deleteCard(ctx, tx, m); err != nil {
				return err
			}
		}
		members = group
		return tx.TouchContainers(ctx, []string{c.ID})
	})
	if err != nil {
		return err
	}

	ev := e.event(EventOut, meta, now)
	ev.ContainerID, ev.Stage, ev.Date, ev.Assignments = c.ID, c.Stage, c.Date, members
	e.finish(ctx, AuditEntry{
		Action:        ActionOut,
		Actor:         meta.Actor,
		CommitMessage: meta.CommitMessage,
		ContainerID:   c.ID,
		Stage:         c.Stage,
		Date:          c.Date,
		AssignmentIDs: ids(members),
	}, EventOut, ev)
	return nil
}

// Done qualifies a DIKSHA card (and its group). QUALIFIED is terminal.
func (e *Engine) Done(ctx context.Context, assignmentID string, meta Meta) (anchor models.Assignment, err error) {
	ctx, done := e.begin(ctx, "done", attribute.String("assignment_id", assignmentID))
	defer func() { done(err) }()

	var c models.Container
	var members []models.Assignment
	var now time.Time
	err = e.exec(ctx, assignmentKeys(assignmentID), func(ctx context.Context, tx Tx) error {
		a, group, err := groupOf(ctx, tx, assignmentID, models.StageDiksha, "done")
		if err != nil {
			return err
		}
		if c, err = loadContainer(ctx, tx, a.ContainerID); err != nil {
			return err
		}
		now = e.now()
		if err := e.checkLocks(ctx, tx, now, c); err != nil {
			return err
		}
		doneAt := now
		prev := make([]int64, len(group))
		for i := range group {
			group[i].CardStatus = models.CardQualified
			group[i].ConfirmedAt = &doneAt
			group[i].ConfirmedByID = meta.Actor.ID
			prev[i] = bump(&group[i], now)
		}
		if err := updateAll(ctx, tx, group, prev); err != nil {
			return err
		}
		members = group
		for _, m := range group {
			if m.ID == assignmentID {
				anchor = m
			}
		}
		return tx.TouchContainers(ctx, []string{c.ID})
	})
	if err != nil {
		return models.Assignment{}, err
	}

	ev := e.event(EventDone, meta, now)
	ev.ContainerID, ev.Stage, ev.Date, ev.Assignments = c.ID, c.Stage, c.Date, members
	e.finish(ctx, AuditEntry{
		Action:        ActionDone,
		Actor:         meta.Actor,
		CommitMessage: meta.CommitMessage,
		ContainerID:   c.ID,
		Stage:         c.Stage,
		Date:          c.Date,
		AssignmentIDs: ids(members),
	}, EventDone, ev)
	return anchor, nil
}

func deleteCard(ctx context.Context, tx Tx, a models.Assignment) error {
	err := tx.DeleteAssignment(ctx, a.ID, a.Version)
	if errors.Is(err, ErrStaleVersion) {
		return staleVersion(a.ID, a.Version, -1)
	}
	return err
}
