package mongorepo_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/store/mongorepo"
	"github.com/dalemusser/dikshahub/internal/app/system/indexes"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/dalemusser/dikshahub/internal/testutil"
	"go.uber.org/zap"
)

func newEngine(t *testing.T) (*scheduling.Engine, *testutil.FakeClock) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	clock := testutil.NewFakeClock(testutil.EngineStart)
	eng := scheduling.New(mongorepo.New(db, zap.NewNop()), scheduling.Config{
		DefaultMeetingLimit: 3,
		DefaultDikshaLimit:  3,
		MoveCooldown:        -1,
	}, zap.NewNop(), scheduling.WithClock(clock))
	return eng, clock
}

func TestRepo_Ping(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := mongorepo.New(db, nil).Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestRepo_ResolveContainerIsStable(t *testing.T) {
	eng, _ := newEngine(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, err := eng.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	b, err := eng.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("resolve returned %s then %s; want the same container", a.ID, b.ID)
	}
	if a.Limit != 3 {
		t.Errorf("limit = %d, want default 3", a.Limit)
	}
}

func TestRepo_AssignCountsReservation(t *testing.T) {
	eng, _ := newEngine(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	meeting, _ := eng.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	diksha, _ := eng.ResolveContainer(ctx, "2025-03-12", models.StageDiksha)

	out, err := eng.Assign(ctx, scheduling.AssignRequest{
		ContainerID: meeting.ID,
		CustomerIDs: []string{"cust-1", "cust-2"},
		OccupyDate:  "2025-03-12",
		Meta:        testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(out) != 2 || out[0].PairID == "" || out[0].PairID != out[1].PairID {
		t.Fatalf("expected two cards sharing a pair id, got %+v", out)
	}

	mc, err := eng.Capacity(ctx, meeting.ID)
	if err != nil {
		t.Fatalf("Capacity(meeting): %v", err)
	}
	if mc.Used != 2 || mc.Remaining != 1 {
		t.Errorf("meeting used=%d remaining=%d, want 2/1", mc.Used, mc.Remaining)
	}
	dc, err := eng.Capacity(ctx, diksha.ID)
	if err != nil {
		t.Fatalf("Capacity(diksha): %v", err)
	}
	if dc.Reserved != 2 || dc.Used != 2 {
		t.Errorf("diksha reserved=%d used=%d, want 2/2", dc.Reserved, dc.Used)
	}

	reserved, err := eng.ListReserved(ctx, diksha.ID)
	if err != nil {
		t.Fatalf("ListReserved: %v", err)
	}
	if len(reserved) != 2 {
		t.Errorf("ListReserved = %d cards, want 2", len(reserved))
	}

	rng, err := eng.CapacityRange(ctx, "2025-03-10", "2025-03-13", models.StageDiksha)
	if err != nil {
		t.Fatalf("CapacityRange: %v", err)
	}
	if rng["2025-03-12"].Reserved != 2 {
		t.Errorf("range reserved on 03-12 = %d, want 2", rng["2025-03-12"].Reserved)
	}
	if rng["2025-03-13"].ContainerID != "" || rng["2025-03-13"].Limit != 3 {
		t.Errorf("missing date should report default limit and no id, got %+v", rng["2025-03-13"])
	}
}

func TestRepo_HousefullLeavesNoTrace(t *testing.T) {
	eng, _ := newEngine(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	meeting, _ := eng.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	if _, err := eng.Assign(ctx, scheduling.AssignRequest{
		ContainerID: meeting.ID,
		CustomerIDs: []string{"a", "b"},
		Bypass:      true,
		Meta:        testutil.Actor,
	}); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	_, err := eng.Assign(ctx, scheduling.AssignRequest{
		ContainerID: meeting.ID,
		CustomerIDs: []string{"c", "d"},
		Bypass:      true,
		Meta:        testutil.Actor,
	})
	var se *scheduling.Error
	if !errors.As(err, &se) || se.Kind != scheduling.KindHousefull {
		t.Fatalf("err = %v, want housefull", err)
	}
	if se.Needed != 2 || se.Remaining != 1 {
		t.Errorf("needed=%d remaining=%d, want 2/1", se.Needed, se.Remaining)
	}

	cards, err := eng.ListAssignments(ctx, meeting.ID)
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(cards) != 2 {
		t.Errorf("cards = %d, want 2 after rejected assign", len(cards))
	}
}

func TestRepo_MoveStaleVersion(t *testing.T) {
	eng, clock := newEngine(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	meeting, _ := eng.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	out, err := eng.Assign(ctx, scheduling.AssignRequest{
		ContainerID: meeting.ID,
		CustomerIDs: []string{"solo"},
		OccupyDate:  "2025-03-12",
		Meta:        testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	card := out[0]

	clock.Advance(time.Minute)
	moved, err := eng.Move(ctx, scheduling.MoveRequest{
		AssignmentID:    card.ID,
		NewDate:         "2025-03-11",
		ExpectedVersion: card.Version,
		Reason:          "customer asked",
		Meta:            testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved[0].Date != "2025-03-11" || moved[0].MoveCount != 1 || len(moved[0].MoveHistory) != 1 {
		t.Errorf("unexpected moved card %+v", moved[0])
	}

	_, err = eng.Move(ctx, scheduling.MoveRequest{
		AssignmentID:    card.ID,
		NewDate:         "2025-03-10",
		ExpectedVersion: card.Version,
		Meta:            testutil.Actor,
	})
	if !errors.Is(err, scheduling.ErrConcurrentModification) {
		t.Fatalf("err = %v, want concurrent modification", err)
	}
}

func TestRepo_ConfirmAndHistory(t *testing.T) {
	eng, _ := newEngine(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	meeting, _ := eng.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	diksha, _ := eng.ResolveContainer(ctx, "2025-03-12", models.StageDiksha)
	out, err := eng.Assign(ctx, scheduling.AssignRequest{
		ContainerID: meeting.ID,
		CustomerIDs: []string{"solo"},
		OccupyDate:  "2025-03-12",
		Meta:        testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if _, err := eng.Confirm(ctx, out[0].ID, testutil.Actor); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	cards, err := eng.ListAssignments(ctx, diksha.ID)
	if err != nil {
		t.Fatalf("ListAssignments(diksha): %v", err)
	}
	if len(cards) != 1 || cards[0].CustomerID != "solo" {
		t.Fatalf("diksha cards = %+v, want the confirmed customer", cards)
	}
	dc, _ := eng.Capacity(ctx, diksha.ID)
	if dc.Used != 1 || dc.Reserved != 0 {
		t.Errorf("diksha used=%d reserved=%d, want 1/0", dc.Used, dc.Reserved)
	}

	hist, err := eng.ListHistory(ctx, "2025-03-10", models.StageMeeting)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(hist) != 1 || hist[0].Event != models.HistoryConfirmed {
		t.Errorf("history = %+v, want one confirmed record", hist)
	}
}

func TestRepo_UnlockAndSweep(t *testing.T) {
	eng, clock := newEngine(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	meeting, _ := eng.ResolveContainer(ctx, "2025-03-10", models.StageMeeting)
	ls, err := eng.Unlock(ctx, meeting.ID, 10, testutil.Actor)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !ls.IsUnlocked || ls.UnlockExpiresAt == nil {
		t.Fatalf("expected active unlock, got %+v", ls)
	}

	clock.Advance(11 * time.Minute)
	n, err := eng.SweepLapsedUnlocks(ctx)
	if err != nil {
		t.Fatalf("SweepLapsedUnlocks: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	ls, _ = eng.LockStatus(ctx, meeting.ID)
	if ls.IsUnlocked || ls.UnlockExpiresAt != nil {
		t.Errorf("unlock should be cleared, got %+v", ls)
	}
}

func TestRepo_CustomerPlacedOncePerStage(t *testing.T) {
	eng, _ := newEngine(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m5, _ := eng.ResolveContainer(ctx, "2025-03-05", models.StageMeeting)
	m6, _ := eng.ResolveContainer(ctx, "2025-03-06", models.StageMeeting)
	if _, err := eng.Assign(ctx, scheduling.AssignRequest{
		ContainerID: m5.ID, CustomerIDs: []string{"cust-1"}, OccupyDate: "2025-03-10", Meta: testutil.Actor,
	}); err != nil {
		t.Fatalf("first Assign: %v", err)
	}

	_, err := eng.Assign(ctx, scheduling.AssignRequest{
		ContainerID: m6.ID, CustomerIDs: []string{"cust-1"}, OccupyDate: "2025-03-10", Meta: testutil.Actor,
	})
	if !errors.Is(err, scheduling.ErrInvalidRequest) {
		t.Fatalf("second Assign err = %v, want invalid_request", err)
	}
	dc, _ := eng.ResolveContainer(ctx, "2025-03-10", models.StageDiksha)
	cp, err := eng.Capacity(ctx, dc.ID)
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	if cp.Reserved != 1 {
		t.Errorf("reserved = %d, want 1", cp.Reserved)
	}
}
