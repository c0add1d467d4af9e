package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/system/validators"
	"github.com/dalemusser/dikshahub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesCollections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	collMap := make(map[string]bool)
	for _, name := range names {
		collMap[name] = true
	}
	for _, expected := range []string{"containers", "assignments", "assignment_history", "audit_events"} {
		if !collMap[expected] {
			t.Errorf("expected collection %q to exist", expected)
		}
	}
}

func TestContainersValidator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	now := time.Now().UTC()
	tests := []struct {
		name    string
		doc     bson.M
		wantErr bool
	}{
		{"valid", bson.M{"_id": "c-1", "date": "2025-03-10", "stage": "MEETING", "limit": 20, "rev": 0, "created_at": now}, false},
		{"missing limit", bson.M{"_id": "c-2", "date": "2025-03-10", "stage": "DIKSHA"}, true},
		{"zero limit", bson.M{"_id": "c-3", "date": "2025-03-11", "stage": "MEETING", "limit": 0}, true},
		{"bad stage", bson.M{"_id": "c-4", "date": "2025-03-12", "stage": "LOBBY", "limit": 5}, true},
		{"bad date", bson.M{"_id": "c-5", "date": "10/03/2025", "stage": "MEETING", "limit": 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Collection("containers").InsertOne(ctx, tt.doc)
			if (err != nil) != tt.wantErr {
				t.Errorf("insert err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssignmentsValidator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	valid := func() bson.M {
		return bson.M{
			"customer_id": "cust-1", "container_id": "c-1", "stage": "MEETING", "date": "2025-03-10",
			"kind": "SINGLE", "role_in_pair": 1, "card_status": "ACTIVE", "bypass": false,
			"move_count": 0, "version": int64(1),
		}
	}
	tests := []struct {
		name    string
		mutate  func(bson.M)
		wantErr bool
	}{
		{"valid", func(bson.M) {}, false},
		{"blank customer", func(d bson.M) { d["customer_id"] = "   " }, true},
		{"bad kind", func(d bson.M) { d["kind"] = "GROUP" }, true},
		{"bad status", func(d bson.M) { d["card_status"] = "PENDING" }, true},
		{"zero version", func(d bson.M) { d["version"] = int64(0) }, true},
		{"zero role", func(d bson.M) { d["role_in_pair"] = 0 }, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := valid()
			doc["_id"] = "a-" + string(rune('a'+i))
			tt.mutate(doc)
			_, err := db.Collection("assignments").InsertOne(ctx, doc)
			if (err != nil) != tt.wantErr {
				t.Errorf("insert err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHistoryValidator_RejectAction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	_, err := db.Collection("assignment_history").InsertOne(ctx, bson.M{
		"_id": "h-1", "event": "REJECTED", "assignment_id": "a-1", "stage": "MEETING",
		"date": "2025-03-10", "kind": "SINGLE", "reject_action": "SHRED", "at": time.Now(),
	})
	if err == nil {
		t.Error("expected validation error for unknown reject action")
	}
}
