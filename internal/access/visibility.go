// visibility.go -- per-caller redaction of books and comments.
//
// Every read path goes through here. The input is never modified; callers
// get a filtered copy with the Allow* flags set for them.
package access

import (
	"fmt"

	"github.com/MGallo-Code/cloudy/internal/domain"
)

// tier is the redaction level a caller falls into.
type tier int

const (
	tierPublic tier = iota // anonymous, USER, actuator-only
	tierEditor
	tierAdmin
)

// TierName labels a caller's redaction level for logs and metrics.
func TierName(caller *domain.User) string {
	t, err := tierFor(caller)
	if err != nil {
		return "illegal"
	}
	return [...]string{"public", "editor", "admin"}[t]
}

// tierFor ranks caller. nil means anonymous. Unknown roles fail closed.
func tierFor(caller *domain.User) (tier, error) {
	if caller == nil {
		return tierPublic, nil
	}
	r, err := caller.HighestRole()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIllegalRole, err)
	}
	switch r {
	case domain.RoleUser, domain.RoleActuator:
		return tierPublic, nil
	case domain.RoleEditor:
		return tierEditor, nil
	case domain.RoleAdmin:
		return tierAdmin, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrIllegalRole, r)
}

// Book returns a copy of b redacted for caller.
func Book(b *domain.Book, caller *domain.User) (*domain.Book, error) {
	t, err := tierFor(caller)
	if err != nil {
		return nil, err
	}
	return filterBook(b, caller, t), nil
}

// Books filters every element of page, keeping order and count.
func Books(page domain.Page[*domain.Book], caller *domain.User) (domain.Page[*domain.Book], error) {
	t, err := tierFor(caller)
	if err != nil {
		return domain.Page[*domain.Book]{}, err
	}
	out := page
	out.Content = make([]*domain.Book, len(page.Content))
	for i, b := range page.Content {
		out.Content[i] = filterBook(b, caller, t)
	}
	return out, nil
}

// Comment returns a copy of c redacted for caller.
func Comment(c domain.Comment, caller *domain.User) (domain.Comment, error) {
	t, err := tierFor(caller)
	if err != nil {
		return domain.Comment{}, err
	}
	out := c.Clone()
	filterComment(&out, caller, t)
	return out, nil
}

func filterBook(b *domain.Book, caller *domain.User, t tier) *domain.Book {
	out := b.Clone()
	owns := IsOwner(caller, b.CreatedBy)

	out.AllowComment = t >= tierEditor
	out.AllowUpdate = t == tierAdmin || (t == tierEditor && owns)
	out.AllowDelete = out.AllowUpdate

	redactOwner(out.CreatedBy, t, owns)
	if t == tierPublic {
		out.LastModifiedBy = nil
	} else {
		redactOwner(out.LastModifiedBy, t, IsOwner(caller, b.LastModifiedBy))
	}

	for i := range out.Comments {
		filterComment(&out.Comments[i], caller, t)
	}
	return out
}

func filterComment(c *domain.Comment, caller *domain.User, t tier) {
	owns := IsOwner(caller, c.Owner)
	c.AllowDelete = t == tierAdmin || (t == tierEditor && owns)
	if t == tierPublic {
		c.DeletedBy = ""
	}
	redactOwner(c.Owner, t, owns)
}

// redactOwner blanks identity fields in place. o must already be a copy.
func redactOwner(o *domain.Owner, t tier, callerOwns bool) {
	if o == nil {
		return
	}
	switch t {
	case tierPublic:
		*o = domain.Owner{}
	case tierEditor:
		if callerOwns {
			return
		}
		o.AuthenticationServiceID = ""
		o.AuthProvider = ""
		o.Email = ""
	}
}
