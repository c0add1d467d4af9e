// internal/domain/models/assignment.go
package models

import "time"

// Assignment is one customer's placement inside a container.
//
// Stage and Date are copies of the owning container's values so that
// reservation and history queries don't need a join.
//
// Reservation rule: a MEETING assignment with a non-empty OccupiedDate,
// Bypass=false and CardStatus=ACTIVE holds one seat on the DIKSHA container
// for OccupiedDate.
type Assignment struct {
	ID          string `bson:"_id" json:"id"`
	CustomerID  string `bson:"customer_id" json:"customer_id"`
	ContainerID string `bson:"container_id" json:"container_id"`
	Stage       Stage  `bson:"stage" json:"stage"`
	Date        string `bson:"date" json:"date"`

	Kind       Kind   `bson:"kind" json:"kind"`
	PairID     string `bson:"pair_id,omitempty" json:"pair_id,omitempty"`
	RoleInPair int    `bson:"role_in_pair" json:"role_in_pair"`

	CardStatus CardStatus `bson:"card_status" json:"card_status"`

	OccupiedDate string `bson:"occupied_date,omitempty" json:"occupied_date,omitempty"`
	Bypass       bool   `bson:"bypass" json:"bypass"`

	// PendingHandoff marks a confirmed bypass card that an external
	// pending-pool collaborator still has to pick up.
	PendingHandoff bool `bson:"pending_handoff,omitempty" json:"pending_handoff,omitempty"`

	MoveCount   int         `bson:"move_count" json:"move_count"`
	LastMovedAt *time.Time  `bson:"last_moved_at,omitempty" json:"last_moved_at,omitempty"`
	MoveHistory []MoveEntry `bson:"move_history,omitempty" json:"move_history,omitempty"`

	ConfirmedAt   *time.Time `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	ConfirmedByID string     `bson:"confirmed_by_id,omitempty" json:"confirmed_by_id,omitempty"`

	// Version is the optimistic-concurrency token; every write increments it.
	Version int64 `bson:"version" json:"version"`

	CreatedByID   string    `bson:"created_by_id,omitempty" json:"created_by_id,omitempty"`
	CreatedByName string    `bson:"created_by_name,omitempty" json:"created_by_name,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// IsQualified reports whether the card reached its terminal state.
func (a *Assignment) IsQualified() bool {
	return a.CardStatus == CardQualified
}

// HoldsReservation reports whether the card currently counts against the
// DIKSHA container at OccupiedDate.
func (a *Assignment) HoldsReservation() bool {
	return a.Stage == StageMeeting && !a.Bypass && a.OccupiedDate != "" && a.CardStatus == CardActive
}

// InGroup reports whether the card belongs to a COUPLE/FAMILY group.
func (a *Assignment) InGroup() bool {
	return a.PairID != ""
}

// MoveEntry is one append-only relocation record.
type MoveEntry struct {
	FromDate         string    `bson:"from_date" json:"from_date"`
	ToDate           string    `bson:"to_date" json:"to_date"`
	FromOccupiedDate string    `bson:"from_occupied_date,omitempty" json:"from_occupied_date,omitempty"`
	ToOccupiedDate   string    `bson:"to_occupied_date,omitempty" json:"to_occupied_date,omitempty"`
	MovedAt          time.Time `bson:"moved_at" json:"moved_at"`
	MovedByID        string    `bson:"moved_by_id,omitempty" json:"moved_by_id,omitempty"`
	MovedBy          string    `bson:"moved_by" json:"moved_by"`
	Reason           string    `bson:"reason,omitempty" json:"reason,omitempty"`
	CommitMessage    string    `bson:"commit_message,omitempty" json:"commit_message,omitempty"`
	Detached         bool      `bson:"detached,omitempty" json:"detached,omitempty"`
}
