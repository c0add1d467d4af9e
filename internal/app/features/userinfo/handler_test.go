package userinfo_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/features/userinfo"
	"github.com/dalemusser/dikshahub/internal/app/system/auth"
	"github.com/dalemusser/dikshahub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) (*userinfo.Handler, *auth.SessionManager) {
	t.Helper()
	sm, err := auth.NewSessionManager("userinfo-test-session-key-0123456789", "dikshahub-session", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return userinfo.NewHandler(sm), sm
}

func TestServeUserInfo_Unauthenticated(t *testing.T) {
	h, _ := newHandler(t)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/api/me", nil)
	rec := testutil.NewRecorder()
	h.ServeUserInfo(rec, req)

	rec.AssertStatus(t, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	var info userinfo.Info
	rec.DecodeJSON(t, &info)
	if info != (userinfo.Info{}) {
		t.Errorf("anonymous info: got %+v, want zero value", info)
	}
}

func TestServeUserInfo_Roles(t *testing.T) {
	tests := []struct {
		name      string
		user      testutil.TestUser
		canAssign bool
		canAdmin  bool
	}{
		{"viewer", testutil.ViewerUser(), false, false},
		{"operator", testutil.OperatorUser(), true, false},
		{"admin", testutil.AdminUser(), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.WithUser(testutil.NewJSONRequest(t, http.MethodGet, "/api/me", nil), tt.user)
			rec := testutil.NewRecorder()
			h, _ := newHandler(t)
			h.ServeUserInfo(rec, req)

			var info userinfo.Info
			rec.DecodeJSON(t, &info)
			if !info.Authenticated || info.ID != tt.user.ID || info.Name != tt.user.Name || info.Role != tt.user.Role {
				t.Errorf("identity: got %+v, want %+v", info, tt.user)
			}
			if info.CanAssign != tt.canAssign || info.CanAdminister != tt.canAdmin {
				t.Errorf("capabilities: got assign=%v admin=%v, want %v/%v",
					info.CanAssign, info.CanAdminister, tt.canAssign, tt.canAdmin)
			}
		})
	}
}

func TestMountRoutes(t *testing.T) {
	h, _ := newHandler(t)
	r := chi.NewRouter()
	userinfo.MountRoutes(r, h)

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewJSONRequest(t, http.MethodGet, "/api/me", nil))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"authenticated":false`)
}

func TestServeSignOut_ClearsSession(t *testing.T) {
	h, sm := newHandler(t)

	signIn := testutil.NewRecorder()
	if err := sm.SignIn(signIn, testutil.NewJSONRequest(t, http.MethodPost, "/session", nil),
		auth.SessionUser{ID: "u-9", Name: "Ravi", Role: auth.RoleOperator}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	r := chi.NewRouter()
	r.Use(sm.LoadSessionUser)
	userinfo.MountRoutes(r, h)

	withCookies := func(req *http.Request, cookies []*http.Cookie) *http.Request {
		for _, c := range cookies {
			req.AddCookie(c)
		}
		return req
	}

	me := testutil.NewRecorder()
	r.ServeHTTP(me, withCookies(testutil.NewJSONRequest(t, http.MethodGet, "/api/me", nil), signIn.Result().Cookies()))
	me.AssertContains(t, `"id":"u-9"`)

	out := testutil.NewRecorder()
	r.ServeHTTP(out, withCookies(testutil.NewJSONRequest(t, http.MethodPost, "/api/logout", nil), signIn.Result().Cookies()))
	out.AssertStatus(t, http.StatusNoContent)

	cleared := out.Result().Cookies()
	if len(cleared) == 0 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected an expired session cookie, got %+v", cleared)
	}

	after := testutil.NewRecorder()
	r.ServeHTTP(after, withCookies(testutil.NewJSONRequest(t, http.MethodGet, "/api/me", nil), cleared))
	after.AssertContains(t, `"authenticated":false`)
}
