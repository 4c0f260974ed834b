// user.go -- Users, auth providers and the immutable principal.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrUnknownProvider is returned when an auth provider name is not recognised.
var ErrUnknownProvider = errors.New("unknown auth provider")

// AuthProvider names the identity provider a user authenticated with.
type AuthProvider string

const (
	ProviderGoogle   AuthProvider = "GOOGLE"
	ProviderFacebook AuthProvider = "FACEBOOK"
	ProviderLocal    AuthProvider = "LOCAL"
)

// ParseAuthProvider validates a provider name.
func ParseAuthProvider(s string) (AuthProvider, error) {
	switch p := AuthProvider(s); p {
	case ProviderGoogle, ProviderFacebook, ProviderLocal:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// User is the durable account record. At most one User exists per
// (AuthenticationServiceID, AuthProvider).
type User struct {
	ID                      uuid.UUID    `json:"id"`
	AuthenticationServiceID string       `json:"authenticationServiceId"`
	AuthProvider            AuthProvider `json:"authProvider"`
	FullName                string       `json:"fullName"`
	FirstName               string       `json:"firstName"`
	LastName                string       `json:"lastName"`
	Email                   string       `json:"email"`
	Link                    string       `json:"link"`
	Picture                 string       `json:"picture"`
	FirstLogon              time.Time    `json:"firstLogon"`
	LastLogon               time.Time    `json:"lastLogon"`
	Roles                   RoleSet      `json:"roles"`
}

// HighestRole returns the user's greatest ordered role.
func (u *User) HighestRole() (Role, error) {
	return HighestRole(u.Roles)
}

// IsFirstVisit reports whether the current logon is the user's first.
func (u *User) IsFirstVisit() bool {
	return u.FirstLogon.Equal(u.LastLogon)
}

// SameIdentity reports whether u and other belong to the same external account.
func (u *User) SameIdentity(subject string, provider AuthProvider) bool {
	return u.AuthenticationServiceID != "" &&
		u.AuthenticationServiceID == subject &&
		u.AuthProvider == provider
}

// Principal is the verified identity extracted from a session token.
// It is a plain value; no fields change after verification.
type Principal struct {
	Subject    string
	Provider   AuthProvider
	FullName   string
	Roles      RoleSet
	VerifiedAt time.Time
}

// HasRole reports whether the principal holds role exactly.
func (p Principal) HasRole(role Role) bool {
	return p.Roles.Has(role)
}

// User builds the token-only view of the principal. Fields that only live in
// the store (ID, email, logon times) are left zero.
func (p Principal) User() *User {
	roles := make(RoleSet, len(p.Roles))
	copy(roles, p.Roles)
	return &User{
		AuthenticationServiceID: p.Subject,
		AuthProvider:            p.Provider,
		FullName:                p.FullName,
		Roles:                   roles,
	}
}
