// internal/app/features/userinfo/handler.go
package userinfo

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dalemusser/dikshahub/internal/app/system/auth"
)

// Handler reports who the caller is and what the scheduling API lets them do.
type Handler struct {
	sessions *auth.SessionManager
}

// NewHandler creates a new userinfo handler. sm clears the session cookie
// on sign-out.
func NewHandler(sm *auth.SessionManager) *Handler {
	return &Handler{sessions: sm}
}

// Info is the /api/me response.
type Info struct {
	Authenticated bool   `json:"authenticated"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	CanAssign     bool   `json:"can_assign"`
	CanAdminister bool   `json:"can_administer"`
}

// ServeUserInfo handles GET /api/me. Anonymous callers get 200 with
// authenticated=false so clients can check without handling a 401.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var info Info
	if user, ok := auth.CurrentUser(r); ok {
		role := strings.ToLower(user.Role)
		info = Info{
			Authenticated: true,
			ID:            user.ID,
			Name:          user.Name,
			Role:          role,
			CanAssign:     role == auth.RoleOperator || role == auth.RoleAdmin,
			CanAdminister: role == auth.RoleAdmin,
		}
	}
	_ = json.NewEncoder(w).Encode(info)
}

// ServeSignOut handles POST /api/logout by expiring the session cookie.
// Gateway identity headers are unaffected.
func (h *Handler) ServeSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(w, r); err != nil {
		http.Error(w, "sign out failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
