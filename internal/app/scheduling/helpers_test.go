package scheduling_test

import (
	"errors"
	"testing"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/dalemusser/dikshahub/internal/testutil"
)

func container(t *testing.T, env *testutil.Env, date string, stage models.Stage) models.Container {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c, err := env.Engine.ResolveContainer(ctx, date, stage)
	if err != nil {
		t.Fatalf("ResolveContainer(%s, %s): %v", date, stage, err)
	}
	return c
}

func withLimit(t *testing.T, env *testutil.Env, c models.Container, limit int) models.Container {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := env.Engine.SetLimit(ctx, c.ID, limit, testutil.Actor); err != nil {
		t.Fatalf("SetLimit(%d): %v", limit, err)
	}
	c.Limit = limit
	return c
}

func assign(t *testing.T, env *testutil.Env, c models.Container, occupy string, customers ...string) []models.Assignment {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	out, err := env.Engine.Assign(ctx, scheduling.AssignRequest{
		ContainerID: c.ID,
		CustomerIDs: customers,
		OccupyDate:  occupy,
		Meta:        testutil.Actor,
	})
	if err != nil {
		t.Fatalf("Assign(%v): %v", customers, err)
	}
	return out
}

func capacityOf(t *testing.T, env *testutil.Env, c models.Container) scheduling.Capacity {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	cp, err := env.Engine.Capacity(ctx, c.ID)
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	return cp
}

func listed(t *testing.T, env *testutil.Env, c models.Container) []models.Assignment {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	out, err := env.Engine.ListAssignments(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	return out
}

func wantKind(t *testing.T, err error, target *scheduling.Error) *scheduling.Error {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want kind %s", err, target.Kind)
	}
	var se *scheduling.Error
	errors.As(err, &se)
	return se
}

// assertConserved checks used == live rows + live reservations.
func assertConserved(t *testing.T, env *testutil.Env, cs ...models.Container) {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	for _, c := range cs {
		cp := capacityOf(t, env, c)
		rows := len(listed(t, env, c))
		reserved := 0
		if c.Stage == models.StageDiksha {
			r, err := env.Engine.ListReserved(ctx, c.ID)
			if err != nil {
				t.Fatalf("ListReserved: %v", err)
			}
			reserved = len(r)
		}
		if cp.Used != rows+reserved {
			t.Errorf("%s: used = %d, want %d rows + %d reserved", c.Key(), cp.Used, rows, reserved)
		}
	}
}
