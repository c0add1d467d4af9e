// internal/app/scheduling/collaborators.go
package scheduling

import (
	"context"
	"time"

	"github.com/dalemusser/dikshahub/internal/domain/models"
)

// Clock supplies wall-clock time. Lock and cooldown state are always
// recomputed from Now; nothing is cached.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Actor identifies who performed an operation. Identity is resolved by the
// caller's authentication layer.
type Actor struct {
	ID   string
	Name string
}

// Meta accompanies every mutating call. CommitMessage is opaque; it is
// forwarded verbatim to the Auditor and echoed (sanitized) onto produced
// history and move records.
type Meta struct {
	Actor         Actor
	CommitMessage string
}

// Audit actions.
const (
	ActionAssign   = "assign"
	ActionConfirm  = "confirm"
	ActionReject   = "reject"
	ActionOut      = "out"
	ActionDone     = "done"
	ActionMove     = "move"
	ActionUnlock   = "unlock"
	ActionSetLimit = "set_limit"
)

// AuditEntry is handed to the audit collaborator after a successful commit.
type AuditEntry struct {
	Action        string
	Actor         Actor
	CommitMessage string
	ContainerID   string
	Stage         models.Stage
	Date          string
	AssignmentIDs []string
	Details       map[string]string
	At            time.Time
}

// Auditor records audit entries. Implementations must not block on failure.
type Auditor interface {
	Record(ctx context.Context, e AuditEntry)
}

// Event routing keys.
const (
	EventAssigned       = "assignment.assigned"
	EventConfirmed      = "assignment.confirmed"
	EventRejected       = "assignment.rejected"
	EventOut            = "assignment.out"
	EventDone           = "assignment.done"
	EventMoved          = "assignment.moved"
	EventPendingHandoff = "pending.handoff"
	EventUnlocked       = "container.unlocked"
	EventLimitChanged   = "container.limit_changed"
	EventRelocked       = "container.relocked"
)

// Event is the payload published after a successful commit.
type Event struct {
	Type          string              `json:"type"`
	At            time.Time           `json:"at"`
	ActorID       string              `json:"actor_id,omitempty"`
	ActorName     string              `json:"actor_name,omitempty"`
	CommitMessage string              `json:"commit_message,omitempty"`
	ContainerID   string              `json:"container_id,omitempty"`
	Stage         models.Stage        `json:"stage,omitempty"`
	Date          string              `json:"date,omitempty"`
	RejectAction  models.RejectAction `json:"reject_action,omitempty"`
	Assignments   []models.Assignment `json:"assignments,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
	UnlockUntil   *time.Time          `json:"unlock_until,omitempty"`
}

// Publisher delivers events to downstream collaborators (pending pool,
// notifications). Publish errors never roll back a committed operation.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }
