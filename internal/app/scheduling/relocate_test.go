package scheduling_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/dalemusser/dikshahub/internal/testutil"
)

func TestMove_FamilyDetach(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	dateA := container(t, env, "2025-03-05", models.StageMeeting)
	fam := assign(t, env, dateA, "2025-03-20", "f1", "f2", "f3")

	moved, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID:    fam[0].ID,
		Members:         scheduling.MoveMembers{Mode: scheduling.MoveSingle},
		NewDate:         "2025-03-06",
		Reason:          "travel",
		ExpectedVersion: fam[0].Version,
		Meta:            testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(moved) != 3 {
		t.Fatalf("changed cards = %d, want 3", len(moved))
	}

	dateB := container(t, env, "2025-03-06", models.StageMeeting)
	onB := listed(t, env, dateB)
	if len(onB) != 1 {
		t.Fatalf("rows on B = %d, want 1", len(onB))
	}
	m := onB[0]
	if m.ID != fam[0].ID || m.Kind != models.KindSingle || m.PairID != "" || m.RoleInPair != 1 {
		t.Errorf("moved card = %+v", m)
	}
	if m.MoveCount != 1 || m.LastMovedAt == nil || len(m.MoveHistory) != 1 || m.Version != 2 {
		t.Errorf("move bookkeeping = %+v", m)
	}
	h := m.MoveHistory[0]
	if h.FromDate != "2025-03-05" || h.ToDate != "2025-03-06" || h.Reason != "travel" || !h.Detached || h.MovedBy != "Test Operator" {
		t.Errorf("move entry = %+v", h)
	}
	if m.OccupiedDate != "2025-03-20" {
		t.Errorf("occupied date = %q, want kept", m.OccupiedDate)
	}

	onA := listed(t, env, dateA)
	if len(onA) != 2 {
		t.Fatalf("rows on A = %d, want 2", len(onA))
	}
	for i, r := range onA {
		if r.Kind != models.KindCouple || r.PairID != fam[0].PairID || r.RoleInPair != i+1 {
			t.Errorf("remaining %d = kind %s pair %q role %d", i, r.Kind, r.PairID, r.RoleInPair)
		}
		if r.MoveCount != 0 || r.LastMovedAt != nil || len(r.MoveHistory) != 0 {
			t.Errorf("remaining %d must not record a move: %+v", i, r)
		}
	}
	diksha := container(t, env, "2025-03-20", models.StageDiksha)
	if dc := capacityOf(t, env, diksha); dc.Reserved != 3 {
		t.Errorf("reserved = %d, want 3", dc.Reserved)
	}
	assertConserved(t, env, dateA, dateB, diksha)
}

func TestMove_DetachLeavesSingle(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := container(t, env, "2025-03-10", models.StageDiksha)
	couple := assign(t, env, c, "", "a", "b")

	_, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID:    couple[0].ID,
		Members:         scheduling.MoveMembers{Mode: scheduling.MoveIDs, IDs: []string{couple[1].ID}},
		ExpectedVersion: 1,
		Meta:            testutil.Actor,
	})
	if err != nil {
		t.Fatalf("pure detach: %v", err)
	}
	for _, r := range listed(t, env, c) {
		if r.Kind != models.KindSingle || r.PairID != "" {
			t.Errorf("card = kind %s pair %q", r.Kind, r.PairID)
		}
	}
}

func TestMove_Cooldown(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := container(t, env, "2025-03-10", models.StageDiksha)
	card := assign(t, env, c, "", "a")[0]

	moved, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-11", ExpectedVersion: card.Version, Meta: testutil.Actor,
	})
	if err != nil {
		t.Fatalf("first move: %v", err)
	}

	env.Clock.Advance(2 * time.Minute)
	_, err = env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-12", ExpectedVersion: moved[0].Version, Meta: testutil.Actor,
	})
	se := wantKind(t, err, scheduling.ErrCooldownActive)
	if se.RemainingSeconds != 180 {
		t.Errorf("remaining = %ds, want 180", se.RemainingSeconds)
	}

	env.Clock.Advance(3 * time.Minute)
	if _, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-12", ExpectedVersion: moved[0].Version, Meta: testutil.Actor,
	}); err != nil {
		t.Fatalf("move after cooldown: %v", err)
	}
}

func TestMove_StaleVersion(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	card := assign(t, env, container(t, env, "2025-03-10", models.StageDiksha), "", "a")[0]

	_, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-11", ExpectedVersion: 7, Meta: testutil.Actor,
	})
	se := wantKind(t, err, scheduling.ErrConcurrentModification)
	if se.ExpectedVersion != 7 || se.ActualVersion != 1 {
		t.Errorf("payload = %+v", se)
	}
}

func TestMove_ConcurrentSameVersion(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	card := assign(t, env, container(t, env, "2025-03-10", models.StageDiksha), "", "a")[0]

	targets := []string{"2025-03-11", "2025-03-12"}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, d := range targets {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			_, errs[i] = env.Engine.Move(ctx, scheduling.MoveRequest{
				AssignmentID: card.ID, NewDate: d, ExpectedVersion: card.Version, Meta: testutil.Actor,
			})
		}(i, d)
	}
	wg.Wait()

	ok, stale := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case scheduling.KindOf(err) == scheduling.KindConcurrentModification:
			stale++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || stale != 1 {
		t.Fatalf("ok=%d stale=%d, want exactly one of each", ok, stale)
	}
}

func TestMove_BoundaryAndReservationShift(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	meeting := container(t, env, "2025-03-05", models.StageMeeting)
	card := assign(t, env, meeting, "2025-03-10", "a")[0]
	oldD := container(t, env, "2025-03-10", models.StageDiksha)

	_, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-12", ExpectedVersion: 1, Meta: testutil.Actor,
	})
	wantKind(t, err, scheduling.ErrOccupyMustBeAfterMeeting)

	moved, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-12", NewOccupiedDate: "2025-03-15", ExpectedVersion: 1, Meta: testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved[0].Date != "2025-03-12" || moved[0].OccupiedDate != "2025-03-15" {
		t.Errorf("card = %+v", moved[0])
	}
	h := moved[0].MoveHistory[0]
	if h.FromOccupiedDate != "2025-03-10" || h.ToOccupiedDate != "2025-03-15" {
		t.Errorf("entry = %+v", h)
	}
	newD := container(t, env, "2025-03-15", models.StageDiksha)
	if c := capacityOf(t, env, oldD); c.Reserved != 0 {
		t.Errorf("old reservation held: %+v", c)
	}
	if c := capacityOf(t, env, newD); c.Reserved != 1 {
		t.Errorf("new reservation missing: %+v", c)
	}
	assertConserved(t, env, meeting, oldD, newD, container(t, env, "2025-03-12", models.StageMeeting))
}

func TestMove_ReservationTargetFullKeepsOld(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	meeting := container(t, env, "2025-03-05", models.StageMeeting)
	couple := assign(t, env, meeting, "2025-03-10", "a", "b")
	target := withLimit(t, env, container(t, env, "2025-03-15", models.StageDiksha), 2)
	assign(t, env, meeting, "2025-03-15", "x")

	_, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: couple[0].ID, NewOccupiedDate: "2025-03-15", ExpectedVersion: 1, Meta: testutil.Actor,
	})
	se := wantKind(t, err, scheduling.ErrHousefull)
	if se.ContainerID != target.ID || se.Needed != 2 || se.Remaining != 1 {
		t.Errorf("payload = %+v", se)
	}
	old := container(t, env, "2025-03-10", models.StageDiksha)
	if c := capacityOf(t, env, old); c.Reserved != 2 {
		t.Errorf("old reservation released: %+v", c)
	}
	for _, r := range listed(t, env, meeting) {
		if r.Version != 1 {
			t.Errorf("card %s mutated: version %d", r.ID, r.Version)
		}
	}
}

func TestMove_LockedSourceAndTarget(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	src := withLimit(t, env, container(t, env, "2025-03-10", models.StageDiksha), 1)
	card := assign(t, env, src, "", "a")[0]

	_, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-11", ExpectedVersion: 1, Meta: testutil.Actor,
	})
	se := wantKind(t, err, scheduling.ErrContainerLocked)
	if se.ContainerID != src.ID {
		t.Errorf("locked container = %s, want source", se.ContainerID)
	}

	if _, err := env.Engine.Unlock(ctx, src.ID, 10, testutil.Actor); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	dst := withLimit(t, env, container(t, env, "2025-03-11", models.StageDiksha), 1)
	assign(t, env, dst, "", "b")
	_, err = env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: card.ID, NewDate: "2025-03-11", ExpectedVersion: 1, Meta: testutil.Actor,
	})
	se = wantKind(t, err, scheduling.ErrContainerLocked)
	if se.ContainerID != dst.ID {
		t.Errorf("locked container = %s, want target", se.ContainerID)
	}
}

func TestMove_Invalid(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	diksha := container(t, env, "2025-03-10", models.StageDiksha)
	single := assign(t, env, diksha, "", "a")[0]
	couple := assign(t, env, diksha, "", "b", "c")

	tests := []struct {
		name string
		req  scheduling.MoveRequest
		want *scheduling.Error
	}{
		{"unknown card", scheduling.MoveRequest{AssignmentID: "nope", NewDate: "2025-03-11", ExpectedVersion: 1}, scheduling.ErrNotFound},
		{"no version", scheduling.MoveRequest{AssignmentID: single.ID, NewDate: "2025-03-11"}, scheduling.ErrInvalidRequest},
		{"no change", scheduling.MoveRequest{AssignmentID: single.ID, NewDate: "2025-03-10", ExpectedVersion: 1}, scheduling.ErrInvalidRequest},
		{"nothing requested", scheduling.MoveRequest{AssignmentID: single.ID, ExpectedVersion: 1}, scheduling.ErrInvalidRequest},
		{"bad mode", scheduling.MoveRequest{AssignmentID: single.ID, NewDate: "2025-03-11", ExpectedVersion: 1, Members: scheduling.MoveMembers{Mode: "HALF"}}, scheduling.ErrInvalidRequest},
		{"occupied on diksha", scheduling.MoveRequest{AssignmentID: single.ID, NewOccupiedDate: "2025-03-11", ExpectedVersion: 1}, scheduling.ErrInvalidRequest},
		{"foreign member", scheduling.MoveRequest{AssignmentID: couple[0].ID, NewDate: "2025-03-11", ExpectedVersion: 1, Members: scheduling.MoveMembers{Mode: scheduling.MoveIDs, IDs: []string{single.ID}}}, scheduling.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.Move(ctx, tc.req)
			wantKind(t, err, tc.want)
		})
	}
}

func TestCapacityConservation_Sequence(t *testing.T) {
	env := testutil.NewEngine(t, scheduling.Config{MoveCooldown: -1})
	ctx, cancel := testutil.TestContext()
	defer cancel()
	m5 := container(t, env, "2025-03-05", models.StageMeeting)
	m6 := container(t, env, "2025-03-06", models.StageMeeting)
	d10 := container(t, env, "2025-03-10", models.StageDiksha)
	d12 := container(t, env, "2025-03-12", models.StageDiksha)

	fam := assign(t, env, m5, "2025-03-10", "f1", "f2", "f3")
	pair := assign(t, env, m5, "2025-03-12", "p1", "p2")
	solo := assign(t, env, m6, "2025-03-10", "s1")[0]
	assertConserved(t, env, m5, m6, d10, d12)

	if _, err := env.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID: fam[1].ID, Members: scheduling.MoveMembers{Mode: scheduling.MoveSingle},
		NewDate: "2025-03-06", NewOccupiedDate: "2025-03-12", ExpectedVersion: 1, Meta: testutil.Actor,
	}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	assertConserved(t, env, m5, m6, d10, d12)

	if _, err := env.Engine.Confirm(ctx, pair[0].ID, testutil.Actor); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	assertConserved(t, env, m5, m6, d10, d12)

	if err := env.Engine.Reject(ctx, solo.ID, models.RejectTrash, testutil.Actor); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := env.Engine.Out(ctx, fam[0].ID, testutil.Actor); err != nil {
		t.Fatalf("Out: %v", err)
	}
	assertConserved(t, env, m5, m6, d10, d12)

	if c := capacityOf(t, env, d10); c.Used != 0 {
		t.Errorf("d10 used = %d, want 0", c.Used)
	}
	if c := capacityOf(t, env, d12); c.Used != 3 || c.Assigned != 2 || c.Reserved != 1 {
		t.Errorf("d12 = %+v", c)
	}
}
