// models.go -- Store errors and row helpers shared by Postgres and Redis.
package store

import (
	"errors"

	"github.com/MGallo-Code/cloudy/internal/domain"
)

// ErrNotFound is returned when a user, book or comment row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned by CreateUser when the (subject, provider)
// identity already has an account.
var ErrDuplicateUser = errors.New("user identity already exists")

// ErrCacheMiss is returned by GetUser when the key is not in Redis.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheStale is returned by SetUser when the identity was evicted after the
// caller read its generation. Nothing was written.
var ErrCacheStale = errors.New("cache generation changed")

// ErrCacheDisabled is returned by NoopUserCache.CheckHealth when Redis is not configured.
var ErrCacheDisabled = errors.New("cache disabled")

// rolesToColumn converts a RoleSet to the SMALLINT[] column form.
func rolesToColumn(roles domain.RoleSet) []int16 {
	out := make([]int16, len(roles))
	for i, r := range roles {
		out[i] = int16(r)
	}
	return out
}

// rolesFromColumn converts a SMALLINT[] column back to a RoleSet.
// Unknown codes are kept so HighestRole can fail closed on them.
func rolesFromColumn(codes []int16) domain.RoleSet {
	out := make(domain.RoleSet, len(codes))
	for i, c := range codes {
		out[i] = domain.Role(c)
	}
	return out
}
