// internal/domain/models/history.go
package models

import "time"

// HistoryRecord keeps the outcome of a confirm or reject queryable against
// the container date the card was on when it happened.
type HistoryRecord struct {
	ID           string       `bson:"_id" json:"id"`
	Event        HistoryEvent `bson:"event" json:"event"`
	AssignmentID string       `bson:"assignment_id" json:"assignment_id"`
	CustomerID   string       `bson:"customer_id" json:"customer_id"`
	Stage        Stage        `bson:"stage" json:"stage"`
	Date         string       `bson:"date" json:"date"`
	Kind         Kind         `bson:"kind" json:"kind"`
	PairID       string       `bson:"pair_id,omitempty" json:"pair_id,omitempty"`

	OccupiedDate string       `bson:"occupied_date,omitempty" json:"occupied_date,omitempty"`
	Bypass       bool         `bson:"bypass" json:"bypass"`
	RejectAction RejectAction `bson:"reject_action,omitempty" json:"reject_action,omitempty"`

	// DikshaAssignmentID links a confirmation to the DIKSHA card it produced.
	DikshaAssignmentID string `bson:"diksha_assignment_id,omitempty" json:"diksha_assignment_id,omitempty"`

	ActorID       string    `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	ActorName     string    `bson:"actor_name,omitempty" json:"actor_name,omitempty"`
	CommitMessage string    `bson:"commit_message,omitempty" json:"commit_message,omitempty"`
	At            time.Time `bson:"at" json:"at"`
}
