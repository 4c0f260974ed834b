// handler.go -- AuthHandler dependencies shared by the login, user and health
// handlers and the authentication middleware.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/oauth"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
	"github.com/MGallo-Code/cloudy/internal/users"
	"github.com/gofrs/uuid/v5"
)

// TokenCodec issues and verifies session tokens.
// Satisfied by *token.Codec.
type TokenCodec interface {
	Issue(u *domain.User) (string, error)
	Verify(raw string) (domain.Principal, error)
}

// UserService is the account lifecycle the handlers drive.
// Satisfied by *users.Service.
type UserService interface {
	UserResolver

	// CreateOrUpdate maps a provider identity to a stored user on login.
	CreateOrUpdate(ctx context.Context, provider domain.AuthProvider, identity oauth.Identity) (*domain.User, error)

	List(ctx context.Context) ([]*domain.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetRoles(ctx context.Context, id uuid.UUID, admin, editor bool) (domain.RoleSet, error)
}

// HealthChecker pings one backing service.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// AuthHandler holds dependencies for the login, user and actuator handlers and middleware.
type AuthHandler struct {
	Tokens  TokenCodec
	Users   UserService
	Cookies *CookieTransport
	Pending *PendingAuthorizationStore

	// Providers is keyed by the lowercase name used in /login/{provider}.
	Providers map[string]oauth.Provider

	// PostLogonURL is where a completed login redirects.
	PostLogonURL string

	PS HealthChecker // Postgres
	RS HealthChecker // Redis user cache
}

// ResolveCaller returns the store-resolved user for an authenticated request.
// It writes the error response itself and returns false when the request
// must stop: 401 when anonymous, 403 with the session cookie cleared when
// the account no longer exists, 500 otherwise.
func (h *AuthHandler) ResolveCaller(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	a, ok := AuthenticationFromContext(r.Context())
	if !ok {
		Unauthorized(w, r, "unauthorized")
		return nil, false
	}
	u, err := a.CurrentUser(r.Context())
	switch {
	case err == nil:
		return u, true
	case errors.Is(err, users.ErrUserGone):
		reqlog.Warn(r, "valid token but no stored user", "subject", a.Principal().Subject, "provider", a.Principal().Provider)
		h.Cookies.ExpireSession(w)
		Forbidden(w)
	default:
		InternalServerError(w, r, err)
	}
	return nil, false
}
