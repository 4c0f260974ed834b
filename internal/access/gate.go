// Package access decides what a caller may see and change.
//
// gate.go -- ownership and role checks applied before any mutation.
// Callers must pass a user re-fetched from the store, not the token-only view,
// so revoked roles take effect before the token expires.
package access

import (
	"errors"
	"fmt"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/gofrs/uuid/v5"
)

var (
	// ErrForbidden means the caller lacks the role or ownership required.
	ErrForbidden = errors.New("forbidden")
	// ErrSelfDelete means an admin tried to delete their own account.
	ErrSelfDelete = errors.New("cannot delete own logged on user")
	// ErrSelfRoleChange means an admin tried to change their own roles.
	ErrSelfRoleChange = errors.New("cannot change permissions for own logged on user")
	// ErrIllegalRole means the caller's roles could not be ranked.
	ErrIllegalRole = errors.New("illegal role state")
)

// IsOwner compares identities only: provider subject id and provider.
// Names and emails are never used; they are mutable and not unique.
func IsOwner(caller *domain.User, owner *domain.Owner) bool {
	if caller == nil || owner == nil {
		return false
	}
	return caller.SameIdentity(owner.AuthenticationServiceID, owner.AuthProvider)
}

// CanModifyBook allows the book's creator while still an EDITOR, or any ADMIN.
func CanModifyBook(caller *domain.User, b *domain.Book) error {
	if caller == nil {
		return ErrForbidden
	}
	if caller.Roles.Has(domain.RoleAdmin) || editorOwns(caller, b.CreatedBy) {
		return nil
	}
	return fmt.Errorf("%w: not owner of book %s", ErrForbidden, b.ID)
}

// CanDeleteComment allows the comment's author while still an EDITOR, or any ADMIN.
func CanDeleteComment(caller *domain.User, c *domain.Comment) error {
	if caller == nil {
		return ErrForbidden
	}
	if caller.Roles.Has(domain.RoleAdmin) || editorOwns(caller, c.Owner) {
		return nil
	}
	return fmt.Errorf("%w: not owner of comment %s", ErrForbidden, c.ID)
}

// editorOwns is the owner path: ownership alone is not enough once EDITOR is revoked.
func editorOwns(caller *domain.User, owner *domain.Owner) bool {
	return caller.Roles.AtLeast(domain.RoleEditor) && IsOwner(caller, owner)
}

// CanAddComment allows EDITOR and above.
func CanAddComment(caller *domain.User) error {
	if caller == nil || !caller.Roles.AtLeast(domain.RoleEditor) {
		return ErrForbidden
	}
	return nil
}

// CanCreateBook allows EDITOR and above.
func CanCreateBook(caller *domain.User) error {
	return CanAddComment(caller)
}

// CheckUserDelete guards DELETE on a user record. Must run before the store is touched.
func CheckUserDelete(caller *domain.User, targetID uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if caller.ID == targetID {
		return ErrSelfDelete
	}
	return nil
}

// CheckRolePatch guards role changes on a user record. Must run before the store is touched.
func CheckRolePatch(caller *domain.User, targetID uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if caller.ID == targetID {
		return ErrSelfRoleChange
	}
	return nil
}

func requireAdmin(caller *domain.User) error {
	if caller == nil || !caller.Roles.Has(domain.RoleAdmin) {
		return ErrForbidden
	}
	return nil
}
