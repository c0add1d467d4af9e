// internal/domain/models/container.go
package models

import "time"

// Container is the capacity-limited bucket for one (date, stage) pair.
//
// NOTE:
//   - At most one container exists per (date, stage); a unique index enforces it.
//   - Containers are created lazily and never deleted.
//   - Used/remaining are never stored here; they are derived from live
//     assignments and reservations at read time.
type Container struct {
	ID    string `bson:"_id" json:"id"`
	Date  string `bson:"date" json:"date"`
	Stage Stage  `bson:"stage" json:"stage"`
	Limit int    `bson:"limit" json:"limit"`

	ManualUnlockExpiresAt *time.Time `bson:"manual_unlock_expires_at,omitempty" json:"manual_unlock_expires_at,omitempty"`

	// Rev is bumped by every write that changes occupancy so that concurrent
	// transactions touching the same container conflict.
	Rev int64 `bson:"rev" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Key identifies the container independent of its storage id.
func (c Container) Key() string {
	return ContainerKey(c.Stage, c.Date)
}

// ContainerKey builds the (stage, date) key used for lock tables and maps.
func ContainerKey(stage Stage, date string) string {
	return string(stage) + ":" + date
}
