// internal/app/scheduling/errors.go
package scheduling

import (
	"errors"
	"fmt"

	"github.com/dalemusser/dikshahub/internal/domain/models"
)

// ErrorKind classifies a rejected operation. The set is closed; callers
// switch on it to render a specific message.
type ErrorKind string

const (
	KindHousefull                ErrorKind = "housefull"
	KindContainerLocked          ErrorKind = "container_locked"
	KindInvalidLimit             ErrorKind = "invalid_limit"
	KindInvalidDuration          ErrorKind = "invalid_duration"
	KindOccupyRequired           ErrorKind = "occupy_required"
	KindOccupyMustBeAfterMeeting ErrorKind = "occupy_must_be_after_meeting"
	KindLockedQualified          ErrorKind = "locked_qualified"
	KindCooldownActive           ErrorKind = "cooldown_active"
	KindConcurrentModification   ErrorKind = "concurrent_modification"
	KindNotFound                 ErrorKind = "not_found"
	KindInvalidRequest           ErrorKind = "invalid_request"
)

// Error is a rejected operation. No state is mutated when one is returned.
// Only the payload fields relevant to Kind are set.
type Error struct {
	Kind    ErrorKind
	Message string

	ContainerID string
	Date        string
	Stage       models.Stage

	AssignmentID string

	// Housefull
	Needed    int
	Remaining int

	// CooldownActive
	RemainingSeconds int

	// ConcurrentModification
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrHousefull)
// works regardless of payload.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrHousefull                = &Error{Kind: KindHousefull}
	ErrContainerLocked          = &Error{Kind: KindContainerLocked}
	ErrInvalidLimit             = &Error{Kind: KindInvalidLimit}
	ErrInvalidDuration          = &Error{Kind: KindInvalidDuration}
	ErrOccupyRequired           = &Error{Kind: KindOccupyRequired}
	ErrOccupyMustBeAfterMeeting = &Error{Kind: KindOccupyMustBeAfterMeeting}
	ErrLockedQualified          = &Error{Kind: KindLockedQualified}
	ErrCooldownActive           = &Error{Kind: KindCooldownActive}
	ErrConcurrentModification   = &Error{Kind: KindConcurrentModification}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrInvalidRequest           = &Error{Kind: KindInvalidRequest}
)

// KindOf returns the taxonomy kind of err, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func containerNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: "container not found", ContainerID: id}
}

func assignmentNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: "assignment not found", AssignmentID: id}
}

func housefull(c models.Container, needed, remaining int) *Error {
	return &Error{
		Kind:        KindHousefull,
		Message:     fmt.Sprintf("%s %s has %d seat(s) left, %d needed", c.Stage, c.Date, remaining, needed),
		ContainerID: c.ID,
		Date:        c.Date,
		Stage:       c.Stage,
		Needed:      needed,
		Remaining:   remaining,
	}
}

func containerLocked(c models.Container) *Error {
	return &Error{
		Kind:        KindContainerLocked,
		Message:     fmt.Sprintf("%s %s is full and locked", c.Stage, c.Date),
		ContainerID: c.ID,
		Date:        c.Date,
		Stage:       c.Stage,
	}
}

func lockedQualified(a models.Assignment) *Error {
	return &Error{
		Kind:         KindLockedQualified,
		Message:      "assignment is qualified and can no longer change",
		AssignmentID: a.ID,
		ContainerID:  a.ContainerID,
		Date:         a.Date,
		Stage:        a.Stage,
	}
}

func occupyBeforeMeeting(meetingDate, occupyDate string) *Error {
	return &Error{
		Kind:    KindOccupyMustBeAfterMeeting,
		Message: fmt.Sprintf("occupy date %s is before meeting date %s", occupyDate, meetingDate),
		Date:    occupyDate,
		Stage:   models.StageDiksha,
	}
}

func staleVersion(id string, expected, actual int64) *Error {
	return &Error{
		Kind:            KindConcurrentModification,
		Message:         "assignment changed since it was read; refresh and retry",
		AssignmentID:    id,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}
