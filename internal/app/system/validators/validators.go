// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/dikshahub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the scheduling collections (if missing) and attaches
// JSON-Schema validators. Collections must exist before the first
// multi-document transaction touches them. On servers without
// collMod/validators (some DocumentDB versions) we log and skip.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("containers", containersSchema())
	ensure("assignments", assignmentsSchema())
	ensure("assignment_history", historySchema())

	// Free-form details; no validator.
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

const datePattern = "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"

var (
	integer  = bson.A{"int", "long"}
	nullDate = bson.A{"date", "null"}
)

func stageEnum() bson.A {
	return bson.A{string(models.StageMeeting), string(models.StageDiksha)}
}

func kindEnum() bson.A {
	return bson.A{string(models.KindSingle), string(models.KindCouple), string(models.KindFamily)}
}

func containersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"date", "stage", "limit"},
			"properties": bson.M{
				"date":                     bson.M{"bsonType": "string", "pattern": datePattern},
				"stage":                    bson.M{"enum": stageEnum()},
				"limit":                    bson.M{"bsonType": integer, "minimum": 1},
				"manual_unlock_expires_at": bson.M{"bsonType": nullDate},
				"rev":                      bson.M{"bsonType": integer, "minimum": 0},
			},
		},
	}
}

func assignmentsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"customer_id", "container_id", "stage", "date", "kind", "card_status", "version"},
			"properties": bson.M{
				"customer_id":   bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"container_id":  bson.M{"bsonType": "string", "minLength": 1},
				"stage":         bson.M{"enum": stageEnum()},
				"date":          bson.M{"bsonType": "string", "pattern": datePattern},
				"kind":          bson.M{"enum": kindEnum()},
				"role_in_pair":  bson.M{"bsonType": integer, "minimum": 1},
				"card_status":   bson.M{"enum": bson.A{string(models.CardActive), string(models.CardQualified)}},
				"occupied_date": bson.M{"bsonType": "string", "pattern": datePattern},
				"bypass":        bson.M{"bsonType": "bool"},
				"move_count":    bson.M{"bsonType": integer, "minimum": 0},
				"version":       bson.M{"bsonType": integer, "minimum": 1},
			},
		},
	}
}

func historySchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"event", "assignment_id", "stage", "date", "at"},
			"properties": bson.M{
				"event":         bson.M{"enum": bson.A{string(models.HistoryConfirmed), string(models.HistoryRejected)}},
				"assignment_id": bson.M{"bsonType": "string", "minLength": 1},
				"stage":         bson.M{"enum": stageEnum()},
				"date":          bson.M{"bsonType": "string", "pattern": datePattern},
				"kind":          bson.M{"enum": kindEnum()},
				"reject_action": bson.M{"enum": bson.A{
					string(models.RejectTrash), string(models.RejectPushPending), string(models.RejectApproveFor),
				}},
				"at": bson.M{"bsonType": "date"},
			},
		},
	}
}
