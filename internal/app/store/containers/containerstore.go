// internal/app/store/containers/containerstore.go
package containerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the containers collection name.
const Collection = "containers"

// ErrKeyTaken is returned by Ensure when a concurrent writer created the
// same (stage, date) first. Inside a transaction the unit is aborted by
// then, so callers re-run it rather than read back.
var ErrKeyTaken = errors.New("container key already taken")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Container, error) {
	var c models.Container
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return models.Container{}, err
	}
	return c, nil
}

func (s *Store) GetByKey(ctx context.Context, stage models.Stage, date string) (models.Container, error) {
	var c models.Container
	if err := s.c.FindOne(ctx, bson.M{"stage": stage, "date": date}).Decode(&c); err != nil {
		return models.Container{}, err
	}
	return c, nil
}

// ListRange returns stage's containers with from <= date <= to, by date.
func (s *Store) ListRange(ctx context.Context, stage models.Stage, from, to string) ([]models.Container, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"stage": stage, "date": bson.M{"$gte": from, "$lte": to}},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Container
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ensure inserts c unless (stage, date) already exists and returns the
// stored document either way.
func (s *Store) Ensure(ctx context.Context, c models.Container) (models.Container, error) {
	filter := bson.M{"stage": c.Stage, "date": c.Date}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":        c.ID,
		"limit":      c.Limit,
		"rev":        int64(0),
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.Container
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err != nil && wafflemongo.IsDup(err) {
		return models.Container{}, fmt.Errorf("%w: %s %s: %v", ErrKeyTaken, c.Stage, c.Date, err)
	}
	return out, err
}

func (s *Store) SetLimit(ctx context.Context, id string, limit int, now time.Time) error {
	return s.update1(ctx, id, bson.M{
		"$set": bson.M{"limit": limit, "updated_at": now},
		"$inc": bson.M{"rev": 1},
	})
}

// SetUnlock sets or (until == nil) clears the manual unlock expiry.
func (s *Store) SetUnlock(ctx context.Context, id string, until *time.Time, now time.Time) error {
	update := bson.M{
		"$set": bson.M{"updated_at": now},
		"$inc": bson.M{"rev": 1},
	}
	if until == nil {
		update["$unset"] = bson.M{"manual_unlock_expires_at": ""}
	} else {
		update["$set"] = bson.M{"updated_at": now, "manual_unlock_expires_at": *until}
	}
	return s.update1(ctx, id, update)
}

// Touch bumps rev on every id so that concurrent transactions over the same
// containers write-conflict.
func (s *Store) Touch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.c.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$inc": bson.M{"rev": 1}})
	return err
}

// Lapsed returns containers whose manual unlock expired at or before now.
func (s *Store) Lapsed(ctx context.Context, now time.Time) ([]models.Container, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"manual_unlock_expires_at": bson.M{"$lte": now}},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Container
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) update1(ctx context.Context, id string, update bson.M) error {
	res, err := s.c.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
