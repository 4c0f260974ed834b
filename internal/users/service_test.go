package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/oauth"
	"github.com/MGallo-Code/cloudy/internal/store"
	"github.com/MGallo-Code/cloudy/internal/testutil"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newService wires the mocks; a nil cache leaves Service.Cache unset.
func newService(ms *testutil.MockStore, mc *testutil.MockCache) *Service {
	svc := &Service{
		Store:             ms,
		CacheTTL:          30 * time.Second,
		DefaultAdminEmail: "boss@example.com",
		Now:               func() time.Time { return fixedNow },
	}
	if mc != nil {
		svc.Cache = mc
	}
	return svc
}

func googleIdentity(sub, email string) oauth.Identity {
	return oauth.Identity{
		"sub":         sub,
		"given_name":  "Ada",
		"family_name": "Lovelace",
		"name":        "Ada Lovelace",
		"picture":     "https://img.example/ada.png",
		"email":       email,
	}
}

func seededUser(sub string, provider domain.AuthProvider, roles ...domain.Role) *domain.User {
	return &domain.User{
		ID:                      uuid.Must(uuid.NewV7()),
		AuthenticationServiceID: sub,
		AuthProvider:            provider,
		FullName:                "Old Name",
		Email:                   "old@example.com",
		Picture:                 "https://img.example/old.png",
		FirstLogon:              fixedNow.Add(-48 * time.Hour),
		LastLogon:               fixedNow.Add(-48 * time.Hour),
		Roles:                   domain.NewRoleSet(roles...),
	}
}

// --- CreateOrUpdate ---

func TestCreateOrUpdateFirstLogin(t *testing.T) {
	ms := testutil.NewMockStore()
	svc := newService(ms, testutil.NewMockCache())

	u, err := svc.CreateOrUpdate(context.Background(), domain.ProviderGoogle, googleIdentity("g-1", "ada@example.com"))
	require.NoError(t, err)

	assert.Equal(t, "g-1", u.AuthenticationServiceID)
	assert.Equal(t, domain.ProviderGoogle, u.AuthProvider)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, "Lovelace", u.LastName)
	assert.Equal(t, "Ada Lovelace", u.FullName)
	assert.Equal(t, "https://img.example/ada.png", u.Picture)
	assert.Equal(t, domain.RoleSet{domain.RoleUser}, u.Roles)
	assert.True(t, u.IsFirstVisit())
	assert.Equal(t, fixedNow, u.FirstLogon)
	assert.False(t, u.ID.IsNil())
	assert.Len(t, ms.Users, 1)
}

func TestCreateOrUpdateDefaultAdmin(t *testing.T) {
	svc := newService(testutil.NewMockStore(), testutil.NewMockCache())

	u, err := svc.CreateOrUpdate(context.Background(), domain.ProviderGoogle, googleIdentity("g-2", "Boss@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSet{domain.RoleUser, domain.RoleEditor, domain.RoleAdmin}, u.Roles)
}

func TestCreateOrUpdateFacebook(t *testing.T) {
	svc := newService(testutil.NewMockStore(), testutil.NewMockCache())

	u, err := svc.CreateOrUpdate(context.Background(), domain.ProviderFacebook, oauth.Identity{
		"id":         "fb-9",
		"first_name": "Grace",
		"last_name":  "Hopper",
		"name":       "Grace Hopper",
		"link":       "https://facebook.example/grace",
		"email":      "grace@example.com",
		"picture":    map[string]any{"data": map[string]any{"url": "https://img.example/grace.png"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "fb-9", u.AuthenticationServiceID)
	assert.Equal(t, domain.ProviderFacebook, u.AuthProvider)
	assert.Equal(t, "https://facebook.example/grace", u.Link)
	assert.Equal(t, "https://img.example/grace.png", u.Picture)
}

func TestCreateOrUpdateRefreshesProfile(t *testing.T) {
	existing := seededUser("g-3", domain.ProviderGoogle, domain.RoleUser, domain.RoleEditor)
	ms := testutil.NewMockStore(existing)
	mc := testutil.NewMockCache()
	require.NoError(t, mc.SetUser(context.Background(), existing, 0, time.Minute))
	svc := newService(ms, mc)

	u, err := svc.CreateOrUpdate(context.Background(), domain.ProviderGoogle, googleIdentity("g-3", "ada@example.com"))
	require.NoError(t, err)

	assert.Equal(t, existing.ID, u.ID)
	assert.Equal(t, "Ada Lovelace", u.FullName)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, fixedNow, u.LastLogon)
	assert.False(t, u.IsFirstVisit())
	assert.Equal(t, domain.RoleSet{domain.RoleUser, domain.RoleEditor}, u.Roles, "roles are never touched by login")
	assert.False(t, mc.Has("g-3", domain.ProviderGoogle), "refresh must evict the cached copy")

	stored, err := ms.GetUserByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", stored.FullName)
}

func TestCreateOrUpdateFacebookKeepsPictureWhenAbsent(t *testing.T) {
	existing := seededUser("fb-1", domain.ProviderFacebook, domain.RoleUser)
	svc := newService(testutil.NewMockStore(existing), testutil.NewMockCache())

	u, err := svc.CreateOrUpdate(context.Background(), domain.ProviderFacebook, oauth.Identity{"id": "fb-1", "name": "New"})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/old.png", u.Picture)
}

func TestCreateOrUpdateRejects(t *testing.T) {
	svc := newService(testutil.NewMockStore(), testutil.NewMockCache())
	ctx := context.Background()

	t.Run("missing subject", func(t *testing.T) {
		_, err := svc.CreateOrUpdate(ctx, domain.ProviderGoogle, oauth.Identity{"email": "x@example.com"})
		assert.Error(t, err)
	})

	t.Run("local provider", func(t *testing.T) {
		_, err := svc.CreateOrUpdate(ctx, domain.ProviderLocal, oauth.Identity{"sub": "x"})
		assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	})

	t.Run("store failure", func(t *testing.T) {
		ms := testutil.NewMockStore()
		ms.CreateUserErr = errors.New("db down")
		_, err := newService(ms, nil).CreateOrUpdate(ctx, domain.ProviderGoogle, googleIdentity("g-4", "a@example.com"))
		assert.Error(t, err)
	})

	t.Run("ambiguous identity", func(t *testing.T) {
		ms := testutil.NewMockStore(
			seededUser("dup", domain.ProviderGoogle, domain.RoleUser),
			seededUser("dup", domain.ProviderGoogle, domain.RoleUser),
		)
		_, err := newService(ms, nil).CreateOrUpdate(ctx, domain.ProviderGoogle, googleIdentity("dup", "a@example.com"))
		assert.ErrorIs(t, err, ErrAmbiguousUser)
	})
}

// --- ResolveUser ---

func TestResolveUser(t *testing.T) {
	ctx := context.Background()

	t.Run("store hit populates cache", func(t *testing.T) {
		u := seededUser("s-1", domain.ProviderGoogle, domain.RoleUser)
		ms := testutil.NewMockStore(u)
		mc := testutil.NewMockCache()
		svc := newService(ms, mc)

		got, err := svc.ResolveUser(ctx, "s-1", domain.ProviderGoogle)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.True(t, mc.Has("s-1", domain.ProviderGoogle))
		assert.Equal(t, 30*time.Second, mc.TTLs["GOOGLE:s-1"])

		_, err = svc.ResolveUser(ctx, "s-1", domain.ProviderGoogle)
		require.NoError(t, err)
		assert.Equal(t, 1, ms.Calls, "second lookup must come from the cache")
	})

	t.Run("cache failure falls back to store", func(t *testing.T) {
		u := seededUser("s-2", domain.ProviderGoogle, domain.RoleUser)
		mc := testutil.NewMockCache()
		mc.GetUserErr = errors.New("redis down")
		mc.SetUserErr = errors.New("redis down")
		svc := newService(testutil.NewMockStore(u), mc)

		got, err := svc.ResolveUser(ctx, "s-2", domain.ProviderGoogle)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("role change during lookup is not re-cached", func(t *testing.T) {
		u := seededUser("s-5", domain.ProviderGoogle, domain.RoleUser, domain.RoleEditor)
		ms := testutil.NewMockStore(u)
		mc := testutil.NewMockCache()
		svc := newService(ms, mc)

		// The store read has already returned EDITOR when the admin demotes the user.
		ms.AfterFind = func() {
			ms.AfterFind = nil
			_, err := svc.SetRoles(ctx, u.ID, false, false)
			require.NoError(t, err)
		}

		got, err := svc.ResolveUser(ctx, "s-5", domain.ProviderGoogle)
		require.NoError(t, err)
		assert.True(t, got.Roles.Has(domain.RoleEditor), "in-flight lookup sees the old row")
		assert.False(t, mc.Has("s-5", domain.ProviderGoogle), "stale row must not be cached")

		got, err = svc.ResolveUser(ctx, "s-5", domain.ProviderGoogle)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleSet{domain.RoleUser}, got.Roles)
	})

	t.Run("generation read failure skips the fill", func(t *testing.T) {
		u := seededUser("s-6", domain.ProviderGoogle, domain.RoleUser)
		mc := testutil.NewMockCache()
		mc.GenerationErr = errors.New("redis down")
		svc := newService(testutil.NewMockStore(u), mc)

		got, err := svc.ResolveUser(ctx, "s-6", domain.ProviderGoogle)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.False(t, mc.Has("s-6", domain.ProviderGoogle))
	})

	t.Run("no cache configured", func(t *testing.T) {
		u := seededUser("s-3", domain.ProviderFacebook, domain.RoleUser)
		svc := newService(testutil.NewMockStore(u), nil)

		got, err := svc.ResolveUser(ctx, "s-3", domain.ProviderFacebook)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("deleted user", func(t *testing.T) {
		svc := newService(testutil.NewMockStore(), testutil.NewMockCache())
		_, err := svc.ResolveUser(ctx, "gone", domain.ProviderGoogle)
		assert.ErrorIs(t, err, ErrUserGone)
	})

	t.Run("same subject other provider is not a match", func(t *testing.T) {
		svc := newService(testutil.NewMockStore(seededUser("s-4", domain.ProviderGoogle, domain.RoleUser)), nil)
		_, err := svc.ResolveUser(ctx, "s-4", domain.ProviderFacebook)
		assert.ErrorIs(t, err, ErrUserGone)
	})
}

// --- Admin operations ---

func TestSetRoles(t *testing.T) {
	ctx := context.Background()
	target := seededUser("t-1", domain.ProviderGoogle, domain.RoleUser)
	ms := testutil.NewMockStore(target)
	mc := testutil.NewMockCache()
	require.NoError(t, mc.SetUser(ctx, target, 0, time.Minute))
	svc := newService(ms, mc)

	roles, err := svc.SetRoles(ctx, target.ID, true, true)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSet{domain.RoleUser, domain.RoleEditor, domain.RoleAdmin}, roles)
	assert.False(t, mc.Has("t-1", domain.ProviderGoogle))

	roles, err = svc.SetRoles(ctx, target.ID, false, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSet{domain.RoleUser}, roles)

	stored, err := ms.GetUserByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSet{domain.RoleUser}, stored.Roles)

	_, err = svc.SetRoles(ctx, uuid.Must(uuid.NewV7()), true, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetRolesRefusesActuator(t *testing.T) {
	act := seededUser(ActuatorSubject, domain.ProviderLocal, domain.RoleActuator)
	svc := newService(testutil.NewMockStore(act), nil)

	_, err := svc.SetRoles(context.Background(), act.ID, true, false)
	assert.ErrorIs(t, err, ErrActuatorTarget)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	target := seededUser("d-1", domain.ProviderGoogle, domain.RoleUser)
	ms := testutil.NewMockStore(target)
	mc := testutil.NewMockCache()
	require.NoError(t, mc.SetUser(ctx, target, 0, time.Minute))
	svc := newService(ms, mc)

	require.NoError(t, svc.Delete(ctx, target.ID))
	assert.Empty(t, ms.Users)
	assert.False(t, mc.Has("d-1", domain.ProviderGoogle))

	assert.ErrorIs(t, svc.Delete(ctx, target.ID), store.ErrNotFound)
}

func TestEnsureActuatorUser(t *testing.T) {
	ctx := context.Background()
	ms := testutil.NewMockStore()
	svc := newService(ms, nil)

	first, err := svc.EnsureActuatorUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderLocal, first.AuthProvider)
	assert.True(t, first.Roles.IsActuatorOnly())

	second, err := svc.EnsureActuatorUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "bootstrap is idempotent")
	assert.Len(t, ms.Users, 1)
}
