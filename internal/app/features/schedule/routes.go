// internal/app/features/schedule/routes.go
package schedule

import (
	"github.com/dalemusser/dikshahub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the scheduling API subrouter. Every route needs a signed-in
// user; mutations need operator or admin, container administration needs
// admin.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/containers/resolve", h.ServeResolve)
	r.Get("/containers/{id}/capacity", h.ServeCapacity)
	r.Get("/containers/{id}/lock", h.ServeLockStatus)
	r.Get("/containers/{id}/assignments", h.ServeAssignments)
	r.Get("/containers/{id}/reserved", h.ServeReserved)
	r.Get("/capacity", h.ServeCapacityRange)
	r.Get("/history", h.ServeHistory)

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireRole(auth.RoleOperator, auth.RoleAdmin))
		r.Post("/containers/{id}/assignments", h.HandleAssign)
		r.Post("/assignments/{id}/confirm", h.HandleConfirm)
		r.Post("/assignments/{id}/reject", h.HandleReject)
		r.Post("/assignments/{id}/out", h.HandleOut)
		r.Post("/assignments/{id}/done", h.HandleDone)
		r.Post("/assignments/{id}/move", h.HandleMove)
	})

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireRole(auth.RoleAdmin))
		r.Post("/containers/{id}/unlock", h.HandleUnlock)
		r.Put("/containers/{id}/limit", h.HandleSetLimit)
		r.Post("/maintenance/sweep-unlocks", h.HandleSweep)
	})

	return r
}
