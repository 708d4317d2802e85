package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequire(t *testing.T) {
	t.Run("rejects missing header", func(t *testing.T) {
		called := false
		h := Require(func(w http.ResponseWriter, r *http.Request) { called = true })

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
		if called {
			t.Error("expected next handler not to be called")
		}
	})

	t.Run("stores principal in context", func(t *testing.T) {
		var got Principal
		h := Require(func(w http.ResponseWriter, r *http.Request) {
			got, _ = FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})

		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(HeaderUserID, " user-42 ")
		req.Header.Set(HeaderUserEmail, "asha@shop.test")
		rec := httptest.NewRecorder()
		h(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rec.Code)
		}
		if got.UserID != "user-42" || got.Email != "asha@shop.test" || got.IsAdmin() {
			t.Errorf("unexpected principal: %+v", got)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		role   string
		want   int
	}{
		{"anonymous", "", RoleAdmin, http.StatusUnauthorized},
		{"customer", "u1", "", http.StatusForbidden},
		{"admin", "staff-1", RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodDelete, "/support/messages/expired", nil)
			Principal{UserID: tt.userID, Role: tt.role}.SetHeaders(req.Header)
			rec := httptest.NewRecorder()
			h(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestPrincipal_SetHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserRole, RoleAdmin)

	Principal{UserID: "u1"}.SetHeaders(h)

	if h.Get(HeaderUserID) != "u1" {
		t.Errorf("expected user u1, got %q", h.Get(HeaderUserID))
	}
	if _, ok := h[HeaderUserRole]; ok {
		t.Errorf("expected stale role to be removed, got %q", h.Get(HeaderUserRole))
	}
}
