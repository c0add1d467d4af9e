// internal/app/features/schedule/assignments.go
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

type assignRequest struct {
	CustomerIDs   []string `json:"customer_ids" validate:"required,min=1,max=50,dive,required,max=128"`
	Kind          string   `json:"kind" validate:"max=16"`
	OccupyDate    string   `json:"occupy_date" validate:"omitempty,occupy"`
	Bypass        bool     `json:"bypass"`
	CommitMessage string   `json:"commit_message" validate:"max=2000"`
}

type commitRequest struct {
	CommitMessage string `json:"commit_message" validate:"max=2000"`
}

type rejectRequest struct {
	Action        string `json:"action" validate:"required"`
	CommitMessage string `json:"commit_message" validate:"max=2000"`
}

type moveMembers struct {
	Mode string   `json:"mode" validate:"omitempty,oneof=ALL SINGLE IDS all single ids"`
	IDs  []string `json:"ids" validate:"required_if=Mode IDS,required_if=Mode ids,dive,required"`
}

type moveRequest struct {
	Members         moveMembers `json:"members"`
	NewDate         string      `json:"new_date" validate:"omitempty,day"`
	NewOccupiedDate string      `json:"new_occupied_date" validate:"omitempty,occupy"`
	Reason          string      `json:"reason" validate:"max=500"`
	ExpectedVersion int64       `json:"expected_version" validate:"required"`
	CommitMessage   string      `json:"commit_message" validate:"max=2000"`
}

// HandleAssign handles POST /containers/{id}/assignments.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	out, err := h.Engine.Assign(ctx, scheduling.AssignRequest{
		ContainerID: chi.URLParam(r, "id"),
		CustomerIDs: req.CustomerIDs,
		Kind:        models.Kind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		OccupyDate:  req.OccupyDate,
		Bypass:      req.Bypass,
		Meta:        meta(r, req.CommitMessage),
	})
	if err != nil {
		h.writeError(w, r, "assign", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// HandleConfirm handles POST /assignments/{id}/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	a, err := h.Engine.Confirm(ctx, chi.URLParam(r, "id"), meta(r, req.CommitMessage))
	if err != nil {
		h.writeError(w, r, "confirm", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleReject handles POST /assignments/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	action, ok := models.ParseRejectAction(req.Action)
	if !ok {
		h.badParam(w, "action must be TRASH, PUSH_PENDING or APPROVE_FOR")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	if err := h.Engine.Reject(ctx, chi.URLParam(r, "id"), action, meta(r, req.CommitMessage)); err != nil {
		h.writeError(w, r, "reject", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleOut handles POST /assignments/{id}/out.
func (h *Handler) HandleOut(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	if err := h.Engine.Out(ctx, chi.URLParam(r, "id"), meta(r, req.CommitMessage)); err != nil {
		h.writeError(w, r, "out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDone handles POST /assignments/{id}/done.
func (h *Handler) HandleDone(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	a, err := h.Engine.Done(ctx, chi.URLParam(r, "id"), meta(r, req.CommitMessage))
	if err != nil {
		h.writeError(w, r, "done", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleMove handles POST /assignments/{id}/move.
func (h *Handler) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !h.decode(w, r, &req) {
		return
	}
	mode, ok := scheduling.ParseMoveMode(req.Members.Mode)
	if !ok {
		h.badParam(w, "members.mode must be ALL, SINGLE or IDS")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Write())
	defer cancel()

	out, err := h.Engine.Move(ctx, scheduling.MoveRequest{
		AssignmentID:    chi.URLParam(r, "id"),
		Members:         scheduling.MoveMembers{Mode: mode, IDs: req.Members.IDs},
		NewDate:         req.NewDate,
		NewOccupiedDate: req.NewOccupiedDate,
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
		Meta:            meta(r, req.CommitMessage),
	})
	if err != nil {
		h.writeError(w, r, "move", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
