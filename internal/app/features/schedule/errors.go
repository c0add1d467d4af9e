// internal/app/features/schedule/errors.go
package schedule

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every non-2xx response. Only the payload
// fields relevant to the error kind are set.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`

	ContainerID  string       `json:"container_id,omitempty"`
	Date         string       `json:"date,omitempty"`
	Stage        models.Stage `json:"stage,omitempty"`
	AssignmentID string       `json:"assignment_id,omitempty"`

	Needed           *int   `json:"needed,omitempty"`
	Remaining        *int   `json:"remaining,omitempty"`
	RemainingSeconds *int   `json:"remaining_seconds,omitempty"`
	ExpectedVersion  *int64 `json:"expected_version,omitempty"`
	ActualVersion    *int64 `json:"actual_version,omitempty"`

	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps an engine error kind to its HTTP status.
func statusFor(kind scheduling.ErrorKind) int {
	switch kind {
	case scheduling.KindNotFound:
		return http.StatusNotFound
	case scheduling.KindInvalidRequest,
		scheduling.KindInvalidLimit,
		scheduling.KindInvalidDuration,
		scheduling.KindOccupyRequired,
		scheduling.KindOccupyMustBeAfterMeeting:
		return http.StatusUnprocessableEntity
	case scheduling.KindHousefull,
		scheduling.KindLockedQualified,
		scheduling.KindConcurrentModification:
		return http.StatusConflict
	case scheduling.KindContainerLocked:
		return http.StatusLocked
	case scheduling.KindCooldownActive:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func bodyFor(e *scheduling.Error) errorBody {
	b := errorBody{
		Error:        string(e.Kind),
		Message:      e.Message,
		ContainerID:  e.ContainerID,
		Date:         e.Date,
		Stage:        e.Stage,
		AssignmentID: e.AssignmentID,
	}
	switch e.Kind {
	case scheduling.KindHousefull:
		b.Needed, b.Remaining = &e.Needed, &e.Remaining
	case scheduling.KindCooldownActive:
		b.RemainingSeconds = &e.RemainingSeconds
	case scheduling.KindConcurrentModification:
		b.ExpectedVersion = &e.ExpectedVersion
		if e.ActualVersion >= 0 {
			b.ActualVersion = &e.ActualVersion
		}
	}
	return b
}

// writeError renders err. Engine rejections keep their kind and payload;
// anything else is logged and reported as a bare 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var se *scheduling.Error
	if errors.As(err, &se) {
		if se.Kind == scheduling.KindCooldownActive && se.RemainingSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(se.RemainingSeconds))
		}
		writeJSON(w, statusFor(se.Kind), bodyFor(se))
		return
	}
	h.Log.Error("schedule request failed",
		zap.String("op", op),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}

// validationBody flattens validator errors into a field → rule map.
func validationBody(err error) errorBody {
	b := errorBody{Error: string(scheduling.KindInvalidRequest), Message: "request failed validation"}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		b.Message = err.Error()
		return b
	}
	b.Fields = make(map[string]string, len(ves))
	for _, fe := range ves {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", rule, fe.Param())
		}
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		b.Fields[field] = rule
	}
	return b
}
