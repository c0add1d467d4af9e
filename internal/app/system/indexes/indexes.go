// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup when the Mongo backend is selected. Each
ensure* function is idempotent. Problems are aggregated so every broken
collection is reported and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureContainers(ctx, db); err != nil {
		problems = append(problems, "containers: "+err.Error())
	}
	if err := ensureAssignments(ctx, db); err != nil {
		problems = append(problems, "assignments: "+err.Error())
	}
	if err := ensureHistory(ctx, db); err != nil {
		problems = append(problems, "assignment_history: "+err.Error())
	}
	if err := ensureAuditEvents(ctx, db); err != nil {
		problems = append(problems, "audit_events: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                       */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolOf(p *bool) bool { return p != nil && *p }

// isDuplicateKeyErr recognizes E11000 from any server flavour.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo and DocumentDB report IndexOptionsConflict when the key pattern
// already exists under another name or with other options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

// listBySig loads the collection's indexes keyed by key signature.
func listBySig(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// recreate drops an index and builds the desired one in its place.
func recreate(ctx context.Context, coll *mongo.Collection, old string, m mongo.IndexModel, name string, unique bool) error {
	if _, err := coll.Indexes().DropOne(ctx, old); err != nil {
		return fmt.Errorf("drop %s failed: %w", old, err)
	}
	if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
		if unique && isDuplicateKeyErr(err) {
			return fmt.Errorf("cannot create unique index %s (duplicates present)", name)
		}
		return err
	}
	return nil
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var name string
		var uniquePtr *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			uniquePtr = m.Options.Unique
		}
		unique := boolOf(uniquePtr)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique),
		}

		ex, found := listBySig(ctx, coll)[sig]
		switch {
		case found && boolOf(ex.Unique) == unique && (name == "" || ex.Name == name):
			zap.L().Debug("reusing existing index", fields...)
			continue

		case found:
			// Same keys but a different name or uniqueness: rebuild under the desired definition.
			if err := recreate(ctx, coll, ex.Name, m, name, unique); err != nil {
				zap.L().Warn("index rebuild failed", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
				continue
			}
			zap.L().Info("index rebuilt", append(fields,
				zap.String("from", ex.Name),
				zap.String("took", time.Since(start).String()))...)
			continue
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err == nil {
			zap.L().Info("index ensured", append(fields,
				zap.String("created_name", created),
				zap.String("took", time.Since(start).String()))...)
			continue
		}

		if isOptionsConflictErr(err) {
			if match, ok := listBySig(ctx, coll)[sig]; ok {
				if boolOf(match.Unique) == unique {
					continue
				}
				if err = recreate(ctx, coll, match.Name, m, name, unique); err == nil {
					continue
				}
			}
		}
		zap.L().Warn("index ensure failed", append(fields, zap.Error(err))...)
		errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureContainers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("containers")
	models := []mongo.IndexModel{
		{
			// One container per (stage, date); Ensure relies on this to resolve upsert races.
			Keys: bson.D{{Key: "stage", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().
				SetName("uniq_containers_stage_date").
				SetUnique(true),
		},
		{
			// Lapsed-unlock sweep
			Keys:    bson.D{{Key: "manual_unlock_expires_at", Value: 1}},
			Options: options.Index().SetName("idx_containers_unlock_expires"),
		},
	}
	return ensureIndexSet(ctx, c, models)
}

func ensureAssignments(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("assignments")
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "container_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_assignments_container_created"),
		},
		{
			Keys: bson.D{
				{Key: "pair_id", Value: 1},
				{Key: "role_in_pair", Value: 1},
			},
			Options: options.Index().SetName("idx_assignments_pair_role"),
		},
		{
			// Reservations held on a diksha date by meeting cards
			Keys: bson.D{
				{Key: "stage", Value: 1},
				{Key: "occupied_date", Value: 1},
				{Key: "bypass", Value: 1},
				{Key: "card_status", Value: 1},
			},
			Options: options.Index().SetName("idx_assignments_reservation"),
		},
		{
			Keys:    bson.D{{Key: "stage", Value: 1}, {Key: "customer_id", Value: 1}},
			Options: options.Index().SetName("idx_assignments_stage_customer"),
		},
	}
	return ensureIndexSet(ctx, c, models)
}

func ensureHistory(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("assignment_history")
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "stage", Value: 1},
				{Key: "date", Value: 1},
				{Key: "at", Value: 1},
			},
			Options: options.Index().SetName("idx_history_stage_date_at"),
		},
		{
			Keys:    bson.D{{Key: "assignment_id", Value: 1}},
			Options: options.Index().SetName("idx_history_assignment"),
		},
	}
	return ensureIndexSet(ctx, c, models)
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("audit_events")
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "container_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_container_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "actor_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_actor_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_type_timestamp"),
		},
	}
	return ensureIndexSet(ctx, c, models)
}
