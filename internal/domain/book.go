// book.go -- Books, comments and the owner snapshots attached to them.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Owner is a denormalised snapshot of a User taken when content is created.
// It is not refreshed when the User changes.
type Owner struct {
	AuthenticationServiceID string       `json:"authenticationServiceId"`
	AuthProvider            AuthProvider `json:"authProvider,omitempty"`
	FullName                string       `json:"fullName"`
	FirstName               string       `json:"firstName"`
	LastName                string       `json:"lastName"`
	Email                   string       `json:"email"`
	Link                    string       `json:"link"`
	Picture                 string       `json:"picture"`
}

// NewOwner snapshots u.
func NewOwner(u *User) *Owner {
	if u == nil {
		return nil
	}
	return &Owner{
		AuthenticationServiceID: u.AuthenticationServiceID,
		AuthProvider:            u.AuthProvider,
		FullName:                u.FullName,
		FirstName:               u.FirstName,
		LastName:                u.LastName,
		Email:                   u.Email,
		Link:                    u.Link,
		Picture:                 u.Picture,
	}
}

// Clone returns a copy of o, or nil.
func (o *Owner) Clone() *Owner {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// Rating is a review score, TERRIBLE(0) to GREAT(4).
type Rating int

const (
	RatingTerrible Rating = iota
	RatingPoor
	RatingOK
	RatingGood
	RatingGreat
)

var ratingNames = []string{"TERRIBLE", "POOR", "OK", "GOOD", "GREAT"}

func (r Rating) String() string {
	if r < RatingTerrible || r > RatingGreat {
		return "UNKNOWN"
	}
	return ratingNames[r]
}

// ParseRating matches a rating name case-insensitively.
func ParseRating(s string) (Rating, bool) {
	for i, name := range ratingNames {
		if strings.EqualFold(name, s) {
			return Rating(i), true
		}
	}
	return 0, false
}

// MarshalText renders the rating name.
func (r Rating) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts a rating name in any case.
func (r *Rating) UnmarshalText(text []byte) error {
	v, ok := ParseRating(string(text))
	if !ok {
		return fmt.Errorf("unknown rating %q", string(text))
	}
	*r = v
	return nil
}

// Comment is a reader comment on a book. Deleted comments are kept with
// DeletedBy recording who removed them.
type Comment struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"commentText"`
	Owner       *Owner    `json:"owner"`
	Entered     time.Time `json:"entered"`
	Deleted     bool      `json:"deleted"`
	DeletedBy   string    `json:"deletedBy"`
	AllowDelete bool      `json:"allowDelete"`
}

// Clone returns a deep copy of c.
func (c Comment) Clone() Comment {
	c.Owner = c.Owner.Clone()
	return c
}

// Book is a review entry. The Allow* flags are computed per caller and never stored.
type Book struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	Genre          string    `json:"genre"`
	Summary        string    `json:"summary"`
	Rating         Rating    `json:"rating"`
	GoogleBookID   string    `json:"googleBookId"`
	Entered        time.Time `json:"entered"`
	LastModified   time.Time `json:"lastModified"`
	CreatedBy      *Owner    `json:"createdBy"`
	LastModifiedBy *Owner    `json:"lastModifiedBy"`
	Comments       []Comment `json:"comments"`
	AllowUpdate    bool      `json:"allowUpdate"`
	AllowDelete    bool      `json:"allowDelete"`
	AllowComment   bool      `json:"allowComment"`
}

// Clone returns a deep copy of b.
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	c := *b
	c.CreatedBy = b.CreatedBy.Clone()
	c.LastModifiedBy = b.LastModifiedBy.Clone()
	if b.Comments != nil {
		c.Comments = make([]Comment, len(b.Comments))
		for i, cm := range b.Comments {
			c.Comments[i] = cm.Clone()
		}
	}
	return &c
}

// FindComment returns the index of the comment with id, or -1.
func (b *Book) FindComment(id uuid.UUID) int {
	for i, c := range b.Comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Page is one slice of a paged listing.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
}
