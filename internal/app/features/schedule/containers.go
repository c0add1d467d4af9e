// internal/app/features/schedule/containers.go
package schedule

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/system/timeouts"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

type unlockRequest struct {
	Minutes       int    `json:"minutes"`
	CommitMessage string `json:"commit_message" validate:"max=2000"`
}

type limitRequest struct {
	Limit         int    `json:"limit"`
	CommitMessage string `json:"commit_message" validate:"max=2000"`
}

// containerResponse is a container together with its derived state.
type containerResponse struct {
	models.Container
	Capacity scheduling.Capacity   `json:"capacity"`
	Lock     scheduling.LockStatus `json:"lock"`
}

func (h *Handler) badParam(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: string(scheduling.KindInvalidRequest), Message: msg})
}

// stageParam reads the stage query parameter (any casing).
func stageParam(r *http.Request) (models.Stage, bool) {
	return models.ParseStage(r.URL.Query().Get("stage"))
}

// ServeResolve handles GET /containers/resolve?date=YYYY-MM-DD&stage=MEETING.
// The container is created with the stage's default limit on first reference.
func (h *Handler) ServeResolve(w http.ResponseWriter, r *http.Request) {
	stage, ok := stageParam(r)
	if !ok {
		h.badParam(w, "stage must be MEETING or DIKSHA")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	c, err := h.Engine.ResolveContainer(ctx, r.URL.Query().Get("date"), stage)
	if err != nil {
		h.writeError(w, r, "resolve", err)
		return
	}
	h.writeContainer(ctx, w, r, c)
}

func (h *Handler) writeContainer(ctx context.Context, w http.ResponseWriter, r *http.Request, c models.Container) {
	cp, err := h.Engine.Capacity(ctx, c.ID)
	if err != nil {
		h.writeError(w, r, "capacity", err)
		return
	}
	ls, err := h.Engine.LockStatus(ctx, c.ID)
	if err != nil {
		h.writeError(w, r, "lock_status", err)
		return
	}
	writeJSON(w, http.StatusOK, containerResponse{Container: c, Capacity: cp, Lock: ls})
}

// ServeCapacity handles GET /containers/{id}/capacity.
func (h *Handler) ServeCapacity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Read())
	defer cancel()

	cp, err := h.Engine.Capacity(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "capacity", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// ServeCapacityRange handles GET /capacity?from=&to=&stage= and returns a
// date → capacity map covering every day in the range.
func (h *Handler) ServeCapacityRange(w http.ResponseWriter, r *http.Request) {
	stage, ok := stageParam(r)
	if !ok {
		h.badParam(w, "stage must be MEETING or DIKSHA")
		return
	}
	q := r.URL.Query()
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Read())
	defer cancel()

	out, err := h.Engine.CapacityRange(ctx, q.Get("from"), q.Get("to"), stage)
	if err != nil {
		h.writeError(w, r, "capacity_range", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ServeLockStatus handles GET /containers/{id}/lock.
func (h *Handler) ServeLockStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Read())
	defer cancel()

	ls, err := h.Engine.LockStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "lock_status", err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

// HandleUnlock handles POST /containers/{id}/unlock.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	ls, err := h.Engine.Unlock(ctx, chi.URLParam(r, "id"), req.Minutes, meta(r, req.CommitMessage))
	if err != nil {
		h.writeError(w, r, "unlock", err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

// HandleSetLimit handles PUT /containers/{id}/limit.
func (h *Handler) HandleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	cp, err := h.Engine.SetLimit(ctx, chi.URLParam(r, "id"), req.Limit, meta(r, req.CommitMessage))
	if err != nil {
		h.writeError(w, r, "set_limit", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// ServeAssignments handles GET /containers/{id}/assignments.
func (h *Handler) ServeAssignments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Read())
	defer cancel()

	out, err := h.Engine.ListAssignments(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "list_assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

// ServeReserved handles GET /containers/{id}/reserved: the MEETING cards
// holding a seat on a DIKSHA container.
func (h *Handler) ServeReserved(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Read())
	defer cancel()

	out, err := h.Engine.ListReserved(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "list_reserved", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

// ServeHistory handles GET /history?date=&stage=.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	stage, ok := stageParam(r)
	if !ok {
		h.badParam(w, "stage must be MEETING or DIKSHA")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Read())
	defer cancel()

	out, err := h.Engine.ListHistory(ctx, strings.TrimSpace(r.URL.Query().Get("date")), stage)
	if err != nil {
		h.writeError(w, r, "list_history", err)
		return
	}
	if out == nil {
		out = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSweep handles POST /maintenance/sweep-unlocks.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Sweep())
	defer cancel()

	n, err := h.Engine.SweepLapsedUnlocks(ctx)
	if err != nil {
		h.writeError(w, r, "sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"relocked": n})
}

func nonNil(as []models.Assignment) []models.Assignment {
	if as == nil {
		return []models.Assignment{}
	}
	return as
}
