// internal/app/store/assignments/assignmentstore.go
package assignmentstore

import (
	"context"
	"errors"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the assignments collection name.
const Collection = "assignments"

// ErrVersionMismatch is returned when a conditional write finds a different
// version (or no document).
var ErrVersionMismatch = errors.New("assignment version mismatch")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// reservationFilter matches live reservations; keep in step with
// models.Assignment.HoldsReservation.
func reservationFilter() bson.M {
	return bson.M{
		"stage":         models.StageMeeting,
		"bypass":        false,
		"card_status":   models.CardActive,
		"occupied_date": bson.M{"$exists": true, "$ne": ""},
	}
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Assignment, error) {
	var a models.Assignment
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return models.Assignment{}, err
	}
	return a, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, sort bson.D) ([]models.Assignment, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Assignment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByPair returns a group's members by role.
func (s *Store) ListByPair(ctx context.Context, pairID string) ([]models.Assignment, error) {
	if pairID == "" {
		return nil, nil
	}
	return s.find(ctx, bson.M{"pair_id": pairID}, bson.D{{Key: "role_in_pair", Value: 1}, {Key: "_id", Value: 1}})
}

// ListByContainer returns a container's cards in creation order.
func (s *Store) ListByContainer(ctx context.Context, containerID string) ([]models.Assignment, error) {
	return s.find(ctx, bson.M{"container_id": containerID}, bson.D{
		{Key: "created_at", Value: 1}, {Key: "pair_id", Value: 1}, {Key: "role_in_pair", Value: 1}, {Key: "_id", Value: 1},
	})
}

// ListByCustomers returns stage's cards held by any of customerIDs.
func (s *Store) ListByCustomers(ctx context.Context, stage models.Stage, customerIDs []string) ([]models.Assignment, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	return s.find(ctx,
		bson.M{"stage": stage, "customer_id": bson.M{"$in": customerIDs}},
		bson.D{{Key: "date", Value: 1}, {Key: "customer_id", Value: 1}})
}

// ListReservations returns MEETING cards reserving a seat on date.
func (s *Store) ListReservations(ctx context.Context, date string) ([]models.Assignment, error) {
	f := reservationFilter()
	f["occupied_date"] = date
	return s.find(ctx, f, bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}, {Key: "role_in_pair", Value: 1}})
}

type groupCount struct {
	ID    string `bson:"_id"`
	Count int    `bson:"count"`
}

func (s *Store) countBy(ctx context.Context, match bson.M, field string) (map[string]int, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var rows []groupCount
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Count
	}
	return out, nil
}

// CountByContainers counts cards per container id.
func (s *Store) CountByContainers(ctx context.Context, ids []string) (map[string]int, error) {
	if len(ids) == 0 {
		return map[string]int{}, nil
	}
	return s.countBy(ctx, bson.M{"container_id": bson.M{"$in": ids}}, "container_id")
}

// CountReservations counts live reservations per occupied date in [from, to].
func (s *Store) CountReservations(ctx context.Context, from, to string) (map[string]int, error) {
	f := reservationFilter()
	f["occupied_date"] = bson.M{"$gte": from, "$lte": to, "$ne": ""}
	return s.countBy(ctx, f, "occupied_date")
}

func (s *Store) InsertMany(ctx context.Context, as []models.Assignment) error {
	if len(as) == 0 {
		return nil
	}
	docs := make([]any, len(as))
	for i := range as {
		docs[i] = as[i]
	}
	_, err := s.c.InsertMany(ctx, docs)
	return err
}

// ReplaceIfVersion replaces a when the stored version equals expected.
func (s *Store) ReplaceIfVersion(ctx context.Context, a models.Assignment, expected int64) error {
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": a.ID, "version": expected}, a)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionMismatch
	}
	return nil
}

// DeleteIfVersion removes id when the stored version equals expected.
func (s *Store) DeleteIfVersion(ctx context.Context, id string, expected int64) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "version": expected})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrVersionMismatch
	}
	return nil
}
