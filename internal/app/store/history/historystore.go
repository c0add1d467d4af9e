// internal/app/store/history/historystore.go
package historystore

import (
	"context"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the confirm/reject history collection name.
const Collection = "assignment_history"

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

func (s *Store) InsertMany(ctx context.Context, recs []models.HistoryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]any, len(recs))
	for i := range recs {
		docs[i] = recs[i]
	}
	_, err := s.c.InsertMany(ctx, docs)
	return err
}

// ListByDate returns records for (stage, date), oldest first.
func (s *Store) ListByDate(ctx context.Context, stage models.Stage, date string) ([]models.HistoryRecord, error) {
	cur, err := s.c.Find(ctx, bson.M{"stage": stage, "date": date},
		options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.HistoryRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
