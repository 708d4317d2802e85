package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/shopledger/internal/identity"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the token body the gateway accepts. The user id comes from
// user_id when present, otherwise from sub.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	logger *slog.Logger
}

type AuthOption func(*[]jwt.ParserOption)

// WithIssuer rejects tokens whose iss claim differs.
func WithIssuer(issuer string) AuthOption {
	return func(opts *[]jwt.ParserOption) {
		*opts = append(*opts, jwt.WithIssuer(issuer))
	}
}

// WithClock overrides the time used for exp and nbf checks.
func WithClock(now func() time.Time) AuthOption {
	return func(opts *[]jwt.ParserOption) {
		*opts = append(*opts, jwt.WithTimeFunc(now))
	}
}

func NewAuthenticator(secret []byte, logger *slog.Logger, opts ...AuthOption) *Authenticator {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	for _, opt := range opts {
		opt(&parserOpts)
	}

	return &Authenticator{
		secret: secret,
		parser: jwt.NewParser(parserOpts...),
		logger: logger,
	}
}

// Verify parses the Authorization header value and returns the caller it names.
func (a *Authenticator) Verify(header string) (identity.Principal, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return identity.Principal{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	claims := &Claims{}
	if _, err := a.parser.ParseWithClaims(strings.TrimSpace(token), claims, a.key); err != nil {
		return identity.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return identity.Principal{}, fmt.Errorf("%w: token names no user", ErrUnauthenticated)
	}

	return identity.Principal{
		UserID: userID,
		Email:  strings.TrimSpace(claims.Email),
		Role:   strings.TrimSpace(claims.Role),
	}, nil
}

func (a *Authenticator) key(*jwt.Token) (any, error) {
	return a.secret, nil
}

// Require rejects requests without a valid bearer token with 401 and stores
// the verified caller in the request context.
func (a *Authenticator) Require(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Verify(r.Header.Get("Authorization"))
		if err != nil {
			a.logger.Warn("rejected request", "error", err, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="shop"`)
			writeJSONError(w, a.logger, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		h(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
	}
}

// principalFrom returns the verified caller, if any.
func principalFrom(ctx context.Context) identity.Principal {
	p, _ := identity.FromContext(ctx)
	return p
}
