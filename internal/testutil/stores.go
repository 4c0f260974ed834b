// stores.go
//
// Shared in-memory implementations of the user store, book store and user cache.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/store"
	"github.com/gofrs/uuid/v5"
)

// MockStore implements the user and book store interfaces for tests.

// Always stateful...Users is a slice (so duplicate identities can be seeded),
// Books is a map, like a real store. Returned values are copies.
// Use *Err fields to inject errors for specific operations.
type MockStore struct {
	// Error injection...zero value means no error
	FindUsersErr   error
	CreateUserErr  error
	UpdateUserErr  error
	DeleteUserErr  error
	ListUsersErr   error
	GetBookErr     error
	SaveBookErr    error
	HealthErr      error

	Users []*domain.User
	Books map[uuid.UUID]*domain.Book

	// Calls counts FindUsersByIdentity lookups, for cache tests.
	Calls int

	// AfterFind, when set, runs after FindUsersByIdentity has read its result
	// and before it returns. Tests use it to interleave a concurrent write.
	AfterFind func()

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users.
func NewMockStore(users ...*domain.User) *MockStore {
	ms := &MockStore{Books: make(map[uuid.UUID]*domain.Book)}
	for _, u := range users {
		ms.Users = append(ms.Users, copyUser(u))
	}
	return ms
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

func (m *MockStore) CheckHealth(context.Context) error { return m.HealthErr }

func (m *MockStore) FindUsersByIdentity(_ context.Context, subject string, provider domain.AuthProvider) ([]*domain.User, error) {
	if m.FindUsersErr != nil {
		return nil, m.FindUsersErr
	}
	m.mu.Lock()
	m.Calls++
	var out []*domain.User
	for _, u := range m.Users {
		if u.AuthenticationServiceID == subject && u.AuthProvider == provider {
			out = append(out, copyUser(u))
		}
	}
	hook := m.AfterFind
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *MockStore) GetUserByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.ID == id {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) ListUsers(context.Context) ([]*domain.User, error) {
	if m.ListUsersErr != nil {
		return nil, m.ListUsersErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.User, len(m.Users))
	for i, u := range m.Users {
		out[i] = copyUser(u)
	}
	return out, nil
}

func (m *MockStore) CreateUser(_ context.Context, u *domain.User) error {
	if m.CreateUserErr != nil {
		return m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Users {
		if existing.SameIdentity(u.AuthenticationServiceID, u.AuthProvider) {
			return store.ErrDuplicateUser
		}
	}
	m.Users = append(m.Users, copyUser(u))
	return nil
}

func (m *MockStore) UpdateUserProfile(_ context.Context, u *domain.User) error {
	if m.UpdateUserErr != nil {
		return m.UpdateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.Users {
		if existing.ID == u.ID {
			roles := existing.Roles
			m.Users[i] = copyUser(u)
			m.Users[i].Roles = roles
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockStore) UpdateUserRoles(_ context.Context, id uuid.UUID, roles domain.RoleSet) error {
	if m.UpdateUserErr != nil {
		return m.UpdateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.ID == id {
			u.Roles = slices.Clone(roles)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	if m.DeleteUserErr != nil {
		return m.DeleteUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.Users {
		if u.ID == id {
			m.Users = slices.Delete(m.Users, i, i+1)
			return nil
		}
	}
	return store.ErrNotFound
}

// --- Books ---

// AddBook seeds a book directly.
func (m *MockStore) AddBook(b *domain.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Books == nil {
		m.Books = make(map[uuid.UUID]*domain.Book)
	}
	m.Books[b.ID] = b.Clone()
}

func (m *MockStore) GetBook(_ context.Context, id uuid.UUID) (*domain.Book, error) {
	if m.GetBookErr != nil {
		return nil, m.GetBookErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Books[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b.Clone(), nil
}

// ListBooks orders by Entered descending, like the Postgres store.
func (m *MockStore) ListBooks(_ context.Context, page, size int) (domain.Page[*domain.Book], error) {
	if m.GetBookErr != nil {
		return domain.Page[*domain.Book]{}, m.GetBookErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.Book, 0, len(m.Books))
	for _, b := range m.Books {
		all = append(all, b.Clone())
	}
	slices.SortFunc(all, func(a, b *domain.Book) int { return b.Entered.Compare(a.Entered) })

	start := min(page*size, len(all))
	end := min(start+size, len(all))
	return domain.Page[*domain.Book]{
		Content:       all[start:end],
		Number:        page,
		Size:          size,
		TotalElements: int64(len(all)),
	}, nil
}

func (m *MockStore) CreateBook(_ context.Context, b *domain.Book) error {
	if m.SaveBookErr != nil {
		return m.SaveBookErr
	}
	m.AddBook(b)
	return nil
}

func (m *MockStore) UpdateBook(_ context.Context, b *domain.Book) error {
	if m.SaveBookErr != nil {
		return m.SaveBookErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Books[b.ID]
	if !ok {
		return store.ErrNotFound
	}
	updated := b.Clone()
	updated.Comments = existing.Comments
	updated.CreatedBy = existing.CreatedBy
	updated.Entered = existing.Entered
	m.Books[b.ID] = updated
	return nil
}

func (m *MockStore) DeleteBook(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Books[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.Books, id)
	return nil
}

func (m *MockStore) AddComment(_ context.Context, bookID uuid.UUID, c *domain.Comment) error {
	if m.SaveBookErr != nil {
		return m.SaveBookErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Books[bookID]
	if !ok {
		return store.ErrNotFound
	}
	b.Comments = append(b.Comments, c.Clone())
	return nil
}

func (m *MockStore) MarkCommentDeleted(_ context.Context, bookID, commentID uuid.UUID, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Books[bookID]
	if !ok {
		return store.ErrNotFound
	}
	i := b.FindComment(commentID)
	if i < 0 {
		return store.ErrNotFound
	}
	b.Comments[i].Deleted = true
	b.Comments[i].DeletedBy = deletedBy
	return nil
}

// MockCache implements the user cache for tests.
// Always stateful...Users is a map, like a real cache. TTLs are recorded, never enforced.
// Generations follow the Redis cache: DeleteUser bumps them and SetUser
// refuses a stale one.
// Use *Err fields to inject errors for specific operations.
type MockCache struct {
	// Error injection...zero value means no error
	GetUserErr    error
	GenerationErr error
	SetUserErr    error
	DeleteUserErr error
	HealthErr     error

	Users map[string]*domain.User // keyed by provider + ":" + subject
	TTLs  map[string]time.Duration
	Gens  map[string]int64

	mu sync.Mutex
}

// NewMockCache returns an empty MockCache ready for use.
func NewMockCache() *MockCache {
	return &MockCache{
		Users: make(map[string]*domain.User),
		TTLs:  make(map[string]time.Duration),
		Gens:  make(map[string]int64),
	}
}

func cacheKey(subject string, provider domain.AuthProvider) string {
	return string(provider) + ":" + subject
}

func (m *MockCache) GetUser(_ context.Context, subject string, provider domain.AuthProvider) (*domain.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[cacheKey(subject, provider)]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return copyUser(u), nil
}

func (m *MockCache) Generation(_ context.Context, subject string, provider domain.AuthProvider) (int64, error) {
	if m.GenerationErr != nil {
		return 0, m.GenerationErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gens[cacheKey(subject, provider)], nil
}

func (m *MockCache) SetUser(_ context.Context, u *domain.User, gen int64, ttl time.Duration) error {
	if m.SetUserErr != nil {
		return m.SetUserErr
	}
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Users == nil {
		m.Users = make(map[string]*domain.User)
		m.TTLs = make(map[string]time.Duration)
	}
	key := cacheKey(u.AuthenticationServiceID, u.AuthProvider)
	if m.Gens[key] != gen {
		return store.ErrCacheStale
	}
	m.Users[key] = copyUser(u)
	m.TTLs[key] = ttl
	return nil
}

func (m *MockCache) DeleteUser(_ context.Context, subject string, provider domain.AuthProvider) error {
	if m.DeleteUserErr != nil {
		return m.DeleteUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Gens == nil {
		m.Gens = make(map[string]int64)
	}
	key := cacheKey(subject, provider)
	m.Gens[key]++
	delete(m.Users, key)
	return nil
}

func (m *MockCache) CheckHealth(context.Context) error { return m.HealthErr }

// Has reports whether the identity is cached.
func (m *MockCache) Has(subject string, provider domain.AuthProvider) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Users[cacheKey(subject, provider)]
	return ok
}
