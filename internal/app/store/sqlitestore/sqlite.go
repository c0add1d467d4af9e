// Package sqlitestore is the embedded SQLite scheduling.Repository used for
// single-node deployments, the admin CLI and tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ scheduling.Repository = (*Store)(nil)

// Store implements scheduling.Repository on SQLite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path. Use ":memory:" in tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite has a single writer, and every ":memory:" connection is its own
	// database; one connection keeps both cases consistent.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma wal: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, log: logger.With(zap.String("component", "sqlitestore"))}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	s.log.Debug("sql", zap.String("op", "migrate"))
	return migrate(ctx, s.db)
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx runs fn in one SQLite transaction.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type tx struct {
	tx *sql.Tx
}

/*─────────────────────────────────────────────────────────────────────────────*
| Containers                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

const containerCols = `id, date, stage, seat_limit, manual_unlock_expires_at, rev, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContainer(r rowScanner) (models.Container, error) {
	var c models.Container
	var stage, createdAt, updatedAt string
	var unlock sql.NullString
	if err := r.Scan(&c.ID, &c.Date, &stage, &c.Limit, &unlock, &c.Rev, &createdAt, &updatedAt); err != nil {
		return models.Container{}, err
	}
	c.Stage = models.Stage(stage)
	c.ManualUnlockExpiresAt = parseNullTime(unlock)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

func (t *tx) containerWhere(ctx context.Context, where string, args ...any) (models.Container, error) {
	c, err := scanContainer(t.tx.QueryRowContext(ctx, `SELECT `+containerCols+` FROM containers WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Container{}, scheduling.ErrNoRecord
	}
	return c, err
}

func (t *tx) ContainerByID(ctx context.Context, id string) (models.Container, error) {
	return t.containerWhere(ctx, `id = ?`, id)
}

func (t *tx) ContainerByKey(ctx context.Context, stage models.Stage, date string) (models.Container, error) {
	return t.containerWhere(ctx, `stage = ? AND date = ?`, string(stage), date)
}

func (t *tx) ContainersInRange(ctx context.Context, stage models.Stage, from, to string) ([]models.Container, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+containerCols+` FROM containers WHERE stage = ? AND date >= ? AND date <= ? ORDER BY date`,
		string(stage), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) EnsureContainer(ctx context.Context, c models.Container) (models.Container, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO containers (`+containerCols+`) VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (stage, date) DO NOTHING`,
		c.ID, c.Date, string(c.Stage), c.Limit, formatNullTime(c.ManualUnlockExpiresAt),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return models.Container{}, err
	}
	return t.ContainerByKey(ctx, c.Stage, c.Date)
}

func (t *tx) exec1(ctx context.Context, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return scheduling.ErrNoRecord
	}
	return nil
}

func (t *tx) SetContainerLimit(ctx context.Context, id string, limit int, now time.Time) error {
	return t.exec1(ctx, `UPDATE containers SET seat_limit = ?, rev = rev + 1, updated_at = ? WHERE id = ?`,
		limit, formatTime(now), id)
}

func (t *tx) SetContainerUnlock(ctx context.Context, id string, until *time.Time, now time.Time) error {
	return t.exec1(ctx, `UPDATE containers SET manual_unlock_expires_at = ?, rev = rev + 1, updated_at = ? WHERE id = ?`,
		formatNullTime(until), formatTime(now), id)
}

func (t *tx) TouchContainers(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `UPDATE containers SET rev = rev + 1 WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) LapsedUnlocks(ctx context.Context, now time.Time) ([]models.Container, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+containerCols+` FROM containers
		 WHERE manual_unlock_expires_at IS NOT NULL AND manual_unlock_expires_at <= ?
		 ORDER BY date`, formatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

/*─────────────────────────────────────────────────────────────────────────────*
| Assignments                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

const assignmentCols = `id, customer_id, container_id, stage, date, kind, pair_id, role_in_pair, card_status,
	occupied_date, bypass, pending_handoff, move_count, last_moved_at, move_history,
	confirmed_at, confirmed_by_id, version, created_by_id, created_by_name, created_at, updated_at`

func scanAssignment(r rowScanner) (models.Assignment, error) {
	var a models.Assignment
	var stage, kind, status, history, createdAt, updatedAt string
	var lastMoved, confirmed sql.NullString
	err := r.Scan(&a.ID, &a.CustomerID, &a.ContainerID, &stage, &a.Date, &kind, &a.PairID, &a.RoleInPair, &status,
		&a.OccupiedDate, &a.Bypass, &a.PendingHandoff, &a.MoveCount, &lastMoved, &history,
		&confirmed, &a.ConfirmedByID, &a.Version, &a.CreatedByID, &a.CreatedByName, &createdAt, &updatedAt)
	if err != nil {
		return models.Assignment{}, err
	}
	a.Stage = models.Stage(stage)
	a.Kind = models.Kind(kind)
	a.CardStatus = models.CardStatus(status)
	a.LastMovedAt = parseNullTime(lastMoved)
	a.ConfirmedAt = parseNullTime(confirmed)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	if history != "" && history != "[]" {
		if err := json.Unmarshal([]byte(history), &a.MoveHistory); err != nil {
			return models.Assignment{}, fmt.Errorf("unmarshal move_history: %w", err)
		}
	}
	return a, nil
}

func (t *tx) assignmentsWhere(ctx context.Context, where string, args ...any) ([]models.Assignment, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tx) Assignment(ctx context.Context, id string) (models.Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Assignment{}, scheduling.ErrNoRecord
	}
	return a, err
}

func (t *tx) AssignmentsByPair(ctx context.Context, pairID string) ([]models.Assignment, error) {
	if pairID == "" {
		return nil, nil
	}
	return t.assignmentsWhere(ctx, `pair_id = ? ORDER BY role_in_pair, id`, pairID)
}

func (t *tx) AssignmentsByContainer(ctx context.Context, containerID string) ([]models.Assignment, error) {
	return t.assignmentsWhere(ctx, `container_id = ? ORDER BY created_at, pair_id, role_in_pair, id`, containerID)
}

func (t *tx) AssignmentsForCustomers(ctx context.Context, stage models.Stage, customerIDs []string) ([]models.Assignment, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(customerIDs)+1)
	args = append(args, string(stage))
	for _, id := range customerIDs {
		args = append(args, id)
	}
	return t.assignmentsWhere(ctx, `stage = ? AND customer_id IN (`+placeholders(len(customerIDs))+`) ORDER BY date, customer_id`, args...)
}

// reservationWhere selects live reservations; keep in step with
// models.Assignment.HoldsReservation.
const reservationWhere = `stage = 'MEETING' AND bypass = 0 AND card_status = 'ACTIVE' AND occupied_date != ''`

func (t *tx) ReservationsFor(ctx context.Context, date string) ([]models.Assignment, error) {
	return t.assignmentsWhere(ctx, reservationWhere+` AND occupied_date = ? ORDER BY date, created_at, role_in_pair, id`, date)
}

func (t *tx) CountAssignments(ctx context.Context, containerIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(containerIDs))
	if len(containerIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(containerIDs))
	for i, id := range containerIDs {
		args[i] = id
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT container_id, COUNT(*) FROM assignments WHERE container_id IN (`+placeholders(len(args))+`) GROUP BY container_id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (t *tx) CountReservations(ctx context.Context, from, to string) (map[string]int, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT occupied_date, COUNT(*) FROM assignments WHERE `+reservationWhere+`
		 AND occupied_date >= ? AND occupied_date <= ? GROUP BY occupied_date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[d] = n
	}
	return out, rows.Err()
}

func assignmentArgs(a models.Assignment) ([]any, error) {
	history := "[]"
	if len(a.MoveHistory) > 0 {
		b, err := json.Marshal(a.MoveHistory)
		if err != nil {
			return nil, fmt.Errorf("marshal move_history: %w", err)
		}
		history = string(b)
	}
	return []any{
		a.CustomerID, a.ContainerID, string(a.Stage), a.Date, string(a.Kind), a.PairID, a.RoleInPair, string(a.CardStatus),
		a.OccupiedDate, a.Bypass, a.PendingHandoff, a.MoveCount, formatNullTime(a.LastMovedAt), history,
		formatNullTime(a.ConfirmedAt), a.ConfirmedByID, a.Version, a.CreatedByID, a.CreatedByName,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	}, nil
}

func (t *tx) InsertAssignments(ctx context.Context, as []models.Assignment) error {
	for _, a := range as {
		args, err := assignmentArgs(a)
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO assignments (`+assignmentCols+`) VALUES (?, `+placeholders(len(args))+`)`,
			append([]any{a.ID}, args...)...); err != nil {
			return fmt.Errorf("insert assignment %s: %w", a.ID, err)
		}
	}
	return nil
}

func (t *tx) UpdateAssignment(ctx context.Context, a models.Assignment, expectedVersion int64) error {
	args, err := assignmentArgs(a)
	if err != nil {
		return err
	}
	err = t.exec1(ctx,
		`UPDATE assignments SET customer_id = ?, container_id = ?, stage = ?, date = ?, kind = ?, pair_id = ?,
		 role_in_pair = ?, card_status = ?, occupied_date = ?, bypass = ?, pending_handoff = ?, move_count = ?,
		 last_moved_at = ?, move_history = ?, confirmed_at = ?, confirmed_by_id = ?, version = ?,
		 created_by_id = ?, created_by_name = ?, created_at = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		append(args, a.ID, expectedVersion)...)
	if errors.Is(err, scheduling.ErrNoRecord) {
		return scheduling.ErrStaleVersion
	}
	return err
}

func (t *tx) DeleteAssignment(ctx context.Context, id string, expectedVersion int64) error {
	err := t.exec1(ctx, `DELETE FROM assignments WHERE id = ? AND version = ?`, id, expectedVersion)
	if errors.Is(err, scheduling.ErrNoRecord) {
		return scheduling.ErrStaleVersion
	}
	return err
}

/*─────────────────────────────────────────────────────────────────────────────*
| History                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

const historyCols = `id, event, assignment_id, customer_id, stage, date, kind, pair_id, occupied_date, bypass,
	reject_action, diksha_assignment_id, actor_id, actor_name, commit_message, at`

func (t *tx) InsertHistory(ctx context.Context, recs []models.HistoryRecord) error {
	for _, h := range recs {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO history (`+historyCols+`) VALUES (`+placeholders(16)+`)`,
			h.ID, string(h.Event), h.AssignmentID, h.CustomerID, string(h.Stage), h.Date, string(h.Kind), h.PairID,
			h.OccupiedDate, h.Bypass, string(h.RejectAction), h.DikshaAssignmentID, h.ActorID, h.ActorName,
			h.CommitMessage, formatTime(h.At)); err != nil {
			return fmt.Errorf("insert history %s: %w", h.ID, err)
		}
	}
	return nil
}

func (t *tx) History(ctx context.Context, stage models.Stage, date string) ([]models.HistoryRecord, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+historyCols+` FROM history WHERE stage = ? AND date = ? ORDER BY at, id`, string(stage), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.HistoryRecord
	for rows.Next() {
		var h models.HistoryRecord
		var event, st, kind, action, at string
		if err := rows.Scan(&h.ID, &event, &h.AssignmentID, &h.CustomerID, &st, &h.Date, &kind, &h.PairID,
			&h.OccupiedDate, &h.Bypass, &action, &h.DikshaAssignmentID, &h.ActorID, &h.ActorName,
			&h.CommitMessage, &at); err != nil {
			return nil, err
		}
		h.Event = models.HistoryEvent(event)
		h.Stage = models.Stage(st)
		h.Kind = models.Kind(kind)
		h.RejectAction = models.RejectAction(action)
		h.At = parseTime(at)
		out = append(out, h)
	}
	return out, rows.Err()
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(tsLayout, s)
	return t.UTC()
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
