// internal/app/features/schedule/handler.go
package schedule

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/system/auth"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxBody bounds request bodies; the largest payload is a family assign.
const maxBody = 64 << 10

// Handler serves the scheduling JSON API.
type Handler struct {
	Engine *scheduling.Engine
	Log    *zap.Logger

	validate *validator.Validate
}

// NewHandler constructs a schedule Handler over engine.
func NewHandler(engine *scheduling.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Log:      logger.With(zap.String("feature", "schedule")),
		validate: newValidator(),
	}
}

// newValidator registers the wire formats the API accepts.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("day", func(fl validator.FieldLevel) bool {
		_, ok := models.NormalizeDate(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("occupy", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if strings.EqualFold(s, models.BypassSentinel) {
			return true
		}
		_, ok := models.NormalizeDate(s)
		return ok
	})
	_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseStage(fl.Field().String())
		return ok
	})
	return v
}

// meta builds the engine call metadata from the signed-in user.
func meta(r *http.Request, commitMessage string) scheduling.Meta {
	m := scheduling.Meta{CommitMessage: commitMessage}
	if u, ok := auth.CurrentUser(r); ok {
		m.Actor = scheduling.Actor{ID: u.ID, Name: u.Name}
	}
	return m
}

// decode reads a JSON body into dst and runs struct validation. On failure
// it writes the 4xx response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, validationBody(err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
