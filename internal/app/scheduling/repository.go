// internal/app/scheduling/repository.go
package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
)

// Store-level sentinels. Repository implementations translate their driver's
// "no rows/documents" and compare-and-swap misses into these.
var (
	ErrNoRecord     = errors.New("scheduling: no record")
	ErrStaleVersion = errors.New("scheduling: stale version")
	// ErrConflict means the unit lost a race inside the store (for example
	// two writers creating the same container) and can be re-run as is.
	ErrConflict = errors.New("scheduling: write conflict")
)

// Repository is the authoritative store for containers, assignments and
// history.
type Repository interface {
	// Tx runs fn as one all-or-nothing unit. Implementations may re-run fn
	// on transient conflicts, so fn must not have effects outside tx.
	Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}

// Tx is the set of reads and writes available inside a Repository.Tx unit.
// Capacity is never stored; it is always counted from assignments.
type Tx interface {
	ContainerByID(ctx context.Context, id string) (models.Container, error)
	ContainerByKey(ctx context.Context, stage models.Stage, date string) (models.Container, error)
	ContainersInRange(ctx context.Context, stage models.Stage, from, to string) ([]models.Container, error)
	// EnsureContainer inserts c unless a container already exists for
	// (c.Stage, c.Date), and returns the stored container either way.
	EnsureContainer(ctx context.Context, c models.Container) (models.Container, error)
	SetContainerLimit(ctx context.Context, id string, limit int, now time.Time) error
	SetContainerUnlock(ctx context.Context, id string, until *time.Time, now time.Time) error
	// TouchContainers bumps the revision of each container so concurrent
	// units touching the same containers conflict.
	TouchContainers(ctx context.Context, ids []string) error
	LapsedUnlocks(ctx context.Context, now time.Time) ([]models.Container, error)

	Assignment(ctx context.Context, id string) (models.Assignment, error)
	// AssignmentsByPair returns members ordered by role_in_pair.
	AssignmentsByPair(ctx context.Context, pairID string) ([]models.Assignment, error)
	AssignmentsByContainer(ctx context.Context, containerID string) ([]models.Assignment, error)
	// AssignmentsForCustomers returns every live card in stage held by any
	// of customerIDs, on any date.
	AssignmentsForCustomers(ctx context.Context, stage models.Stage, customerIDs []string) ([]models.Assignment, error)
	// ReservationsFor returns live MEETING cards holding a seat on the
	// DIKSHA container for date.
	ReservationsFor(ctx context.Context, date string) ([]models.Assignment, error)
	CountAssignments(ctx context.Context, containerIDs []string) (map[string]int, error)
	// CountReservations groups live reservations by occupied date within
	// [from, to].
	CountReservations(ctx context.Context, from, to string) (map[string]int, error)
	InsertAssignments(ctx context.Context, as []models.Assignment) error
	// UpdateAssignment replaces a when the stored version equals
	// expectedVersion, otherwise it returns ErrStaleVersion.
	UpdateAssignment(ctx context.Context, a models.Assignment, expectedVersion int64) error
	DeleteAssignment(ctx context.Context, id string, expectedVersion int64) error

	InsertHistory(ctx context.Context, recs []models.HistoryRecord) error
	History(ctx context.Context, stage models.Stage, date string) ([]models.HistoryRecord, error)
}
