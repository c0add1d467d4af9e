package cli

import (
	"bytes"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/features/schedule"
	"github.com/dalemusser/dikshahub/internal/app/features/userinfo"
	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/system/auth"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/dalemusser/dikshahub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// startTestServer serves the scheduling API over an in-memory SQLite engine
// with gateway identity headers trusted.
func startTestServer(t *testing.T) (*testutil.Env, string) {
	t.Helper()
	env := testutil.NewEngine(t, scheduling.Config{})
	sm, err := auth.NewSessionManager("cli-test-session-key-0123456789ab", "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	sm.TrustIdentityHeaders(true)

	r := chi.NewRouter()
	r.Use(sm.LoadSessionUser)
	userinfo.MountRoutes(r, userinfo.NewHandler(sm))
	r.Mount("/api", schedule.Routes(schedule.NewHandler(env.Engine, zap.NewNop()), sm))

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return env, ts.URL
}

func runCLI(t *testing.T, serverURL, role string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--server", serverURL, "--user", "cli-1", "--name", "CLI User", "--role", role}, args...))

	err := root.Execute()
	return buf.String(), err
}

func resolve(t *testing.T, env *testutil.Env, date string, stage models.Stage) models.Container {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c, err := env.Engine.ResolveContainer(ctx, date, stage)
	if err != nil {
		t.Fatalf("ResolveContainer: %v", err)
	}
	return c
}

func TestWhoamiCommand(t *testing.T) {
	_, url := startTestServer(t)

	out, err := runCLI(t, url, auth.RoleAdmin, "whoami")
	if err != nil {
		t.Fatalf("whoami error: %v", err)
	}
	for _, want := range []string{"cli-1", "CLI User", "Role:   admin", "Admin:  true"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestAssignAndListCommands(t *testing.T) {
	env, url := startTestServer(t)
	c := resolve(t, env, "2025-03-10", models.StageDiksha)

	out, err := runCLI(t, url, auth.RoleOperator, "assign", c.ID, "cust-1", "cust-2", "-m", "couple")
	if err != nil {
		t.Fatalf("assign error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Assigned 2 card(s)") || !strings.Contains(out, "COUPLE") {
		t.Errorf("unexpected assign output: %s", out)
	}

	out, err = runCLI(t, url, auth.RoleViewer, "capacity", c.ID)
	if err != nil {
		t.Fatalf("capacity error: %v", err)
	}
	if !strings.Contains(out, "Used:      2 (2 assigned, 0 reserved)") {
		t.Errorf("unexpected capacity output: %s", out)
	}

	out, err = runCLI(t, url, auth.RoleViewer, "assignments", c.ID)
	if err != nil {
		t.Fatalf("assignments error: %v", err)
	}
	if !strings.Contains(out, "cust-1") || !strings.Contains(out, "cust-2") {
		t.Errorf("expected both customers in output, got: %s", out)
	}
}

func TestErrorsCarryKind(t *testing.T) {
	env, url := startTestServer(t)
	c := resolve(t, env, "2025-03-10", models.StageDiksha)

	if _, err := runCLI(t, url, auth.RoleAdmin, "set-limit", c.ID, "1"); err != nil {
		t.Fatalf("set-limit error: %v", err)
	}

	_, err := runCLI(t, url, auth.RoleOperator, "assign", c.ID, "a", "b")
	if err == nil || !strings.Contains(err.Error(), "housefull") || !strings.Contains(err.Error(), "needed 2") {
		t.Errorf("assign into full container: got %v", err)
	}

	_, err = runCLI(t, url, auth.RoleOperator, "unlock", c.ID, "--minutes", "10")
	if err == nil || !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("operator unlock: got %v", err)
	}

	_, err = runCLI(t, url, auth.RoleViewer, "capacity", "missing")
	if err == nil || !strings.Contains(err.Error(), "not_found") {
		t.Errorf("missing container: got %v", err)
	}
}

func TestUnlockAndSweepCommands(t *testing.T) {
	env, url := startTestServer(t)
	c := resolve(t, env, "2025-03-10", models.StageMeeting)

	out, err := runCLI(t, url, auth.RoleAdmin, "unlock", c.ID, "--minutes", "15", "-m", "overflow")
	if err != nil {
		t.Fatalf("unlock error: %v", err)
	}
	if !strings.Contains(out, "manually unlocked") {
		t.Errorf("unexpected unlock output: %s", out)
	}

	env.Clock.Advance(16 * time.Minute)
	out, err = runCLI(t, url, auth.RoleAdmin, "sweep")
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if !strings.Contains(out, "Relocked 1 container(s)") {
		t.Errorf("unexpected sweep output: %s", out)
	}
}

func TestMoveCommand(t *testing.T) {
	env, url := startTestServer(t)
	c := resolve(t, env, "2025-03-10", models.StageDiksha)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	placed, err := env.Engine.Assign(ctx, scheduling.AssignRequest{
		ContainerID: c.ID,
		CustomerIDs: []string{"mover"},
		Meta:        testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if _, err := runCLI(t, url, auth.RoleOperator, "move", placed[0].ID, "--date", "2025-03-11"); err == nil {
		t.Error("expected error without --version")
	}

	out, err := runCLI(t, url, auth.RoleOperator, "move", placed[0].ID,
		"--date", "2025-03-11", "--version", strconv.FormatInt(placed[0].Version, 10), "--reason", "asked")
	if err != nil {
		t.Fatalf("move error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Moved 1 card(s)") {
		t.Errorf("unexpected move output: %s", out)
	}
}

func TestRangeAndHistoryCommands(t *testing.T) {
	_, url := startTestServer(t)

	out, err := runCLI(t, url, auth.RoleViewer, "range", "--from", "2025-03-10", "--to", "2025-03-12", "--stage", "diksha")
	if err != nil {
		t.Fatalf("range error: %v", err)
	}
	for _, d := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		if !strings.Contains(out, d) {
			t.Errorf("expected %s in range output, got: %s", d, out)
		}
	}

	out, err = runCLI(t, url, auth.RoleViewer, "history", "--date", "2025-03-10")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, "No history found.") {
		t.Errorf("unexpected history output: %s", out)
	}
}
