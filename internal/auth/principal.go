// principal.go -- Per-request authentication context.
package auth

import (
	"context"

	"github.com/MGallo-Code/cloudy/internal/domain"
)

// UserResolver fetches the stored user behind a verified token identity.
// Satisfied by *users.Service.
type UserResolver interface {
	ResolveUser(ctx context.Context, subject string, provider domain.AuthProvider) (*domain.User, error)
}

// Authentication is the verified caller of one request.
type Authentication struct {
	principal domain.Principal
	resolver  UserResolver
}

// NewAuthentication wraps a verified principal.
func NewAuthentication(p domain.Principal, resolver UserResolver) *Authentication {
	return &Authentication{principal: p, resolver: resolver}
}

func (a *Authentication) Principal() domain.Principal { return a.principal }

func (a *Authentication) HasRole(role domain.Role) bool { return a.principal.HasRole(role) }

func (a *Authentication) HighestRole() (domain.Role, error) {
	return domain.HighestRole(a.principal.Roles)
}

// TokenUser is the caller as described by the token alone. Good enough for
// read paths; mutations must use CurrentUser.
func (a *Authentication) TokenUser() *domain.User { return a.principal.User() }

// CurrentUser re-reads the caller from the user store (through the cache).
func (a *Authentication) CurrentUser(ctx context.Context) (*domain.User, error) {
	return a.resolver.ResolveUser(ctx, a.principal.Subject, a.principal.Provider)
}

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const authenticationKey contextKey = "authentication"

// WithAuthentication returns ctx carrying a.
func WithAuthentication(ctx context.Context, a *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, a)
}

// AuthenticationFromContext returns the request's Authentication.
// Returns nil and false for anonymous requests.
func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	a, ok := ctx.Value(authenticationKey).(*Authentication)
	return a, ok && a != nil
}

// TokenUserFromContext returns the token-only caller, or nil when anonymous.
func TokenUserFromContext(ctx context.Context) *domain.User {
	a, ok := AuthenticationFromContext(ctx)
	if !ok {
		return nil
	}
	return a.TokenUser()
}
