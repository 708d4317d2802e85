// Package identity carries the authenticated caller through a request. The
// gateway verifies the caller's token and forwards the result in the
// X-User-* headers; services behind it trust those headers.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

const RoleAdmin = "admin"

// Principal is the caller a request acts for.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Headers lists the header names a Principal travels in.
func Headers() []string {
	return []string{HeaderUserID, HeaderUserEmail, HeaderUserRole}
}

// SetHeaders writes p to h, removing any header p leaves empty.
func (p Principal) SetHeaders(h http.Header) {
	for name, value := range map[string]string{
		HeaderUserID:    p.UserID,
		HeaderUserEmail: p.Email,
		HeaderUserRole:  p.Role,
	} {
		if value == "" {
			h.Del(name)
			continue
		}
		h.Set(name, value)
	}
}

func fromHeaders(h http.Header) Principal {
	return Principal{
		UserID: strings.TrimSpace(h.Get(HeaderUserID)),
		Email:  strings.TrimSpace(h.Get(HeaderUserEmail)),
		Role:   strings.TrimSpace(h.Get(HeaderUserRole)),
	}
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return WithPrincipal(ctx, Principal{UserID: userID})
}

// FromContext returns the caller stored by Require, or the zero Principal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// UserID returns the user stored by Require, or "" outside an authenticated request.
func UserID(ctx context.Context) string {
	p, _ := FromContext(ctx)
	return p.UserID
}

// Require rejects requests without a user id with 401.
func Require(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fromHeaders(r.Header)
		if p.UserID == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h(w, r.WithContext(WithPrincipal(r.Context(), p)))
	}
}

// RequireAdmin is Require plus a 403 for callers without the admin role.
func RequireAdmin(h http.HandlerFunc) http.HandlerFunc {
	return Require(func(w http.ResponseWriter, r *http.Request) {
		if p, _ := FromContext(r.Context()); !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		h(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
