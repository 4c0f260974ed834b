// service.go -- User accounts: first-login creation, profile refresh,
// store-backed principal resolution and admin role management.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/oauth"
	"github.com/MGallo-Code/cloudy/internal/store"
	"github.com/gofrs/uuid/v5"
)

// ErrUserGone is returned when a verified token names an identity that no
// longer has a stored account.
var ErrUserGone = errors.New("no stored user for identity")

// ErrAmbiguousUser is returned when more than one stored account matches a
// (subject, provider) identity.
var ErrAmbiguousUser = errors.New("multiple stored users for identity")

// ErrActuatorTarget is returned when a role patch targets the actuator account.
var ErrActuatorTarget = errors.New("actuator user roles cannot be changed")

// ActuatorSubject is the subject of the bootstrap monitoring account.
const ActuatorSubject = "actuator"

// Store is the persistence the service needs.
type Store interface {
	FindUsersByIdentity(ctx context.Context, subject string, provider domain.AuthProvider) ([]*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUserProfile(ctx context.Context, u *domain.User) error
	UpdateUserRoles(ctx context.Context, id uuid.UUID, roles domain.RoleSet) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// Cache is a short-lived cache of store-resolved users. SetUser only writes
// if the identity is still at the generation read before the store lookup;
// DeleteUser advances it.
type Cache interface {
	GetUser(ctx context.Context, subject string, provider domain.AuthProvider) (*domain.User, error)
	Generation(ctx context.Context, subject string, provider domain.AuthProvider) (int64, error)
	SetUser(ctx context.Context, u *domain.User, gen int64, ttl time.Duration) error
	DeleteUser(ctx context.Context, subject string, provider domain.AuthProvider) error
}

// Service owns the user lifecycle.
type Service struct {
	Store    Store
	Cache    Cache
	CacheTTL time.Duration

	// DefaultAdminEmail grants EDITOR and ADMIN to a new user with this email.
	DefaultAdminEmail string

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateOrUpdate maps a provider identity onto a stored user, creating the
// account on first login and refreshing the profile afterwards.
func (s *Service) CreateOrUpdate(ctx context.Context, provider domain.AuthProvider, identity oauth.Identity) (*domain.User, error) {
	profile, err := profileFromIdentity(provider, identity)
	if err != nil {
		return nil, err
	}

	existing, err := s.findOne(ctx, profile.AuthenticationServiceID, provider)
	switch {
	case errors.Is(err, ErrUserGone):
		return s.create(ctx, profile)
	case err != nil:
		return nil, err
	}

	existing.FirstName = profile.FirstName
	existing.LastName = profile.LastName
	existing.FullName = profile.FullName
	existing.Link = profile.Link
	existing.Email = profile.Email
	// Facebook may omit the picture; keep the previous one then.
	if profile.Picture != "" || provider == domain.ProviderGoogle {
		existing.Picture = profile.Picture
	}
	existing.LastLogon = s.now()

	if err := s.Store.UpdateUserProfile(ctx, existing); err != nil {
		return nil, fmt.Errorf("updating user profile: %w", err)
	}
	s.evict(ctx, existing)
	slog.Info("user profile refreshed", "user_id", existing.ID, "provider", provider)
	return existing, nil
}

func (s *Service) create(ctx context.Context, u *domain.User) (*domain.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating user id: %w", err)
	}
	now := s.now()
	u.ID = id
	u.FirstLogon = now
	u.LastLogon = now
	u.Roles = domain.RoleSet{domain.RoleUser}
	if s.DefaultAdminEmail != "" && strings.EqualFold(u.Email, s.DefaultAdminEmail) {
		u.Roles = domain.RoleSet{domain.RoleUser, domain.RoleEditor, domain.RoleAdmin}
		slog.Warn("default admin email matched, granting editor and admin", "user_id", id)
	}

	if err := s.Store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	slog.Info("user created", "user_id", id, "provider", u.AuthProvider)
	return u, nil
}

// profileFromIdentity reads the provider-specific attribute names.
func profileFromIdentity(provider domain.AuthProvider, id oauth.Identity) (*domain.User, error) {
	u := &domain.User{AuthProvider: provider}
	switch provider {
	case domain.ProviderGoogle:
		u.AuthenticationServiceID = id.String("sub")
		u.FirstName = id.String("given_name")
		u.LastName = id.String("family_name")
		u.Picture = id.String("picture")
	case domain.ProviderFacebook:
		u.AuthenticationServiceID = id.String("id")
		u.FirstName = id.String("first_name")
		u.LastName = id.String("last_name")
		u.Picture = id.Nested("picture", "data", "url")
	default:
		return nil, fmt.Errorf("%w: %q cannot sign in through oauth", domain.ErrUnknownProvider, provider)
	}
	u.FullName = id.String("name")
	u.Link = id.String("link")
	u.Email = id.String("email")

	if u.AuthenticationServiceID == "" {
		return nil, fmt.Errorf("%s identity has no subject", provider)
	}
	return u, nil
}

// ResolveUser returns the stored user for a verified token identity, going
// through the cache first.
func (s *Service) ResolveUser(ctx context.Context, subject string, provider domain.AuthProvider) (*domain.User, error) {
	if s.Cache != nil {
		u, err := s.Cache.GetUser(ctx, subject, provider)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			slog.Warn("user cache read failed, falling back to store", "error", err)
		}
	}

	fill := s.Cache != nil
	var gen int64
	if fill {
		var err error
		if gen, err = s.Cache.Generation(ctx, subject, provider); err != nil {
			slog.Warn("user cache generation read failed, not caching", "error", err)
			fill = false
		}
	}

	u, err := s.findOne(ctx, subject, provider)
	if err != nil {
		return nil, err
	}
	if fill {
		err := s.Cache.SetUser(ctx, u, gen, s.CacheTTL)
		switch {
		case errors.Is(err, store.ErrCacheStale):
			slog.Debug("user evicted during lookup, not caching", "user_id", u.ID)
		case err != nil:
			slog.Warn("user cache write failed", "error", err, "user_id", u.ID)
		}
	}
	return u, nil
}

func (s *Service) findOne(ctx context.Context, subject string, provider domain.AuthProvider) (*domain.User, error) {
	found, err := s.Store.FindUsersByIdentity(ctx, subject, provider)
	if err != nil {
		return nil, fmt.Errorf("finding user by identity: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, ErrUserGone
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %d rows for %s/%s", ErrAmbiguousUser, len(found), provider, subject)
	}
}

// List returns every stored user.
func (s *Service) List(ctx context.Context) ([]*domain.User, error) {
	return s.Store.ListUsers(ctx)
}

// Delete removes a user and evicts it from the cache.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	u, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, u)
	return nil
}

// SetRoles replaces a user's editor/admin grants. ROLE_USER is always kept.
func (s *Service) SetRoles(ctx context.Context, id uuid.UUID, admin, editor bool) (domain.RoleSet, error) {
	u, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Roles.Has(domain.RoleActuator) {
		return nil, ErrActuatorTarget
	}

	roles := domain.RoleSet{domain.RoleUser}
	if editor {
		roles = append(roles, domain.RoleEditor)
	}
	if admin {
		roles = append(roles, domain.RoleAdmin)
	}
	if err := s.Store.UpdateUserRoles(ctx, id, roles); err != nil {
		return nil, err
	}
	s.evict(ctx, u)
	return roles, nil
}

// EnsureActuatorUser returns the LOCAL monitoring account, creating it if needed.
func (s *Service) EnsureActuatorUser(ctx context.Context) (*domain.User, error) {
	u, err := s.findOne(ctx, ActuatorSubject, domain.ProviderLocal)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserGone) {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating user id: %w", err)
	}
	now := s.now()
	u = &domain.User{
		ID:                      id,
		AuthenticationServiceID: ActuatorSubject,
		AuthProvider:            domain.ProviderLocal,
		FullName:                "Actuator User",
		FirstLogon:              now,
		LastLogon:               now,
		Roles:                   domain.RoleSet{domain.RoleActuator},
	}
	if err := s.Store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("creating actuator user: %w", err)
	}
	return u, nil
}

func (s *Service) evict(ctx context.Context, u *domain.User) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.DeleteUser(ctx, u.AuthenticationServiceID, u.AuthProvider); err != nil {
		slog.Warn("user cache evict failed", "error", err, "user_id", u.ID)
	}
}
