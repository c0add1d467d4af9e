// Package mongorepo adapts the MongoDB collection stores to
// scheduling.Repository. Each unit runs in a multi-document transaction;
// every unit that changes occupancy bumps the rev of the containers it
// touches so concurrent units over the same containers conflict.
package mongorepo

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	assignmentstore "github.com/dalemusser/dikshahub/internal/app/store/assignments"
	containerstore "github.com/dalemusser/dikshahub/internal/app/store/containers"
	historystore "github.com/dalemusser/dikshahub/internal/app/store/history"
	"github.com/dalemusser/dikshahub/internal/app/system/txn"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

var _ scheduling.Repository = (*Repo)(nil)

// Repo is a scheduling.Repository over the containers, assignments and
// history collections of one database.
type Repo struct {
	db          *mongo.Database
	containers  *containerstore.Store
	assignments *assignmentstore.Store
	history     *historystore.Store
	log         *zap.Logger
}

// New wires the collection stores for db. A nil logger is replaced by a
// no-op logger.
func New(db *mongo.Database, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{
		db:          db,
		containers:  containerstore.New(db),
		assignments: assignmentstore.New(db),
		history:     historystore.New(db),
		log:         logger.With(zap.String("component", "mongorepo")),
	}
}

// Ping checks the primary is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, readpref.Primary())
}

// Tx runs fn through txn.Run. The driver may re-run fn on transient
// transaction errors, and a lost container upsert surfaces as
// scheduling.ErrConflict so the engine re-runs the whole unit.
func (r *Repo) Tx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	return txn.Run(ctx, r.db, r.log, func(sc mongo.SessionContext) error {
		return fn(sc, &tx{r: r})
	})
}

// tx translates driver sentinels into scheduling's.
type tx struct {
	r *Repo
}

func noRecord(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return scheduling.ErrNoRecord
	}
	return err
}

func stale(err error) error {
	if errors.Is(err, assignmentstore.ErrVersionMismatch) {
		return scheduling.ErrStaleVersion
	}
	return err
}

func (t *tx) ContainerByID(ctx context.Context, id string) (models.Container, error) {
	c, err := t.r.containers.GetByID(ctx, id)
	return c, noRecord(err)
}

func (t *tx) ContainerByKey(ctx context.Context, stage models.Stage, date string) (models.Container, error) {
	c, err := t.r.containers.GetByKey(ctx, stage, date)
	return c, noRecord(err)
}

func (t *tx) ContainersInRange(ctx context.Context, stage models.Stage, from, to string) ([]models.Container, error) {
	return t.r.containers.ListRange(ctx, stage, from, to)
}

func (t *tx) EnsureContainer(ctx context.Context, c models.Container) (models.Container, error) {
	out, err := t.r.containers.Ensure(ctx, c)
	if errors.Is(err, containerstore.ErrKeyTaken) {
		return models.Container{}, scheduling.ErrConflict
	}
	return out, err
}

func (t *tx) SetContainerLimit(ctx context.Context, id string, limit int, now time.Time) error {
	return noRecord(t.r.containers.SetLimit(ctx, id, limit, now))
}

func (t *tx) SetContainerUnlock(ctx context.Context, id string, until *time.Time, now time.Time) error {
	return noRecord(t.r.containers.SetUnlock(ctx, id, until, now))
}

func (t *tx) TouchContainers(ctx context.Context, ids []string) error {
	return t.r.containers.Touch(ctx, ids)
}

func (t *tx) LapsedUnlocks(ctx context.Context, now time.Time) ([]models.Container, error) {
	return t.r.containers.Lapsed(ctx, now)
}

func (t *tx) Assignment(ctx context.Context, id string) (models.Assignment, error) {
	a, err := t.r.assignments.GetByID(ctx, id)
	return a, noRecord(err)
}

func (t *tx) AssignmentsByPair(ctx context.Context, pairID string) ([]models.Assignment, error) {
	return t.r.assignments.ListByPair(ctx, pairID)
}

func (t *tx) AssignmentsByContainer(ctx context.Context, containerID string) ([]models.Assignment, error) {
	return t.r.assignments.ListByContainer(ctx, containerID)
}

func (t *tx) AssignmentsForCustomers(ctx context.Context, stage models.Stage, customerIDs []string) ([]models.Assignment, error) {
	return t.r.assignments.ListByCustomers(ctx, stage, customerIDs)
}

func (t *tx) ReservationsFor(ctx context.Context, date string) ([]models.Assignment, error) {
	return t.r.assignments.ListReservations(ctx, date)
}

func (t *tx) CountAssignments(ctx context.Context, containerIDs []string) (map[string]int, error) {
	return t.r.assignments.CountByContainers(ctx, containerIDs)
}

func (t *tx) CountReservations(ctx context.Context, from, to string) (map[string]int, error) {
	return t.r.assignments.CountReservations(ctx, from, to)
}

func (t *tx) InsertAssignments(ctx context.Context, as []models.Assignment) error {
	return t.r.assignments.InsertMany(ctx, as)
}

func (t *tx) UpdateAssignment(ctx context.Context, a models.Assignment, expectedVersion int64) error {
	return stale(t.r.assignments.ReplaceIfVersion(ctx, a, expectedVersion))
}

func (t *tx) DeleteAssignment(ctx context.Context, id string, expectedVersion int64) error {
	return stale(t.r.assignments.DeleteIfVersion(ctx, id, expectedVersion))
}

func (t *tx) InsertHistory(ctx context.Context, recs []models.HistoryRecord) error {
	return t.r.history.InsertMany(ctx, recs)
}

func (t *tx) History(ctx context.Context, stage models.Stage, date string) ([]models.HistoryRecord, error) {
	return t.r.history.ListByDate(ctx, stage, date)
}
