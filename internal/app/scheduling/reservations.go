package scheduling

import (
	"context"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
)

// ListAssignments returns the live cards in a container in creation order.
func (e *Engine) ListAssignments(ctx context.Context, containerID string) (out []models.Assignment, err error) {
	ctx, done := e.begin(ctx, "list_assignments", attribute.String("container_id", containerID))
	defer func() { done(err) }()

	err = e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := loadContainer(ctx, tx, containerID)
		if err != nil {
			return err
		}
		out, err = tx.AssignmentsByContainer(ctx, c.ID)
		return err
	})
	return out, err
}

// ListReserved returns the MEETING cards currently holding a seat on a
// DIKSHA container.
func (e *Engine) ListReserved(ctx context.Context, containerID string) (out []models.Assignment, err error) {
	ctx, done := e.begin(ctx, "list_reserved", attribute.String("container_id", containerID))
	defer func() { done(err) }()

	err = e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := loadContainer(ctx, tx, containerID)
		if err != nil {
			return err
		}
		if c.Stage != models.StageDiksha {
			return invalid("reservations are held on DIKSHA containers only")
		}
		out, err = tx.ReservationsFor(ctx, c.Date)
		return err
	})
	return out, err
}

// ListHistory returns confirm/reject records made against (date, stage),
// oldest first.
func (e *Engine) ListHistory(ctx context.Context, date string, stage models.Stage) (out []models.HistoryRecord, err error) {
	ctx, done := e.begin(ctx, "list_history", attribute.String("date", date), attribute.String("stage", string(stage)))
	defer func() { done(err) }()

	d, ok := models.NormalizeDate(date)
	if !ok {
		return nil, invalid("date %q is not YYYY-MM-DD", date)
	}
	if !stage.Valid() {
		return nil, invalid("unknown stage %q", stage)
	}
	err = e.repo.Tx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.History(ctx, stage, d)
		return err
	})
	return out, err
}
