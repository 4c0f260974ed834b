// input.go -- Request bodies and their validation.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/auth"
	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
)

const maxBodyBytes = 64 << 10

type bookInput struct {
	Title        string         `json:"title" validate:"required,max=200"`
	Author       string         `json:"author" validate:"required,max=200"`
	Genre        string         `json:"genre" validate:"required,max=100"`
	Summary      string         `json:"summary" validate:"required,max=20000"`
	Rating       *domain.Rating `json:"rating" validate:"required"`
	GoogleBookID string         `json:"googleBookId" validate:"max=100"`
}

func (in bookInput) apply(b *domain.Book) {
	b.Title = in.Title
	b.Author = in.Author
	b.Genre = in.Genre
	b.Summary = in.Summary
	b.Rating = *in.Rating
	b.GoogleBookID = in.GoogleBookID
}

type commentInput struct {
	Text string `json:"commentText" validate:"required,max=1000"`
}

// decodeBody reads and validates a JSON body. Writes 400 and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		reqlog.Debug(r, "rejecting request body", "error", err)
		auth.BadRequest(w, r, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		reqlog.Debug(r, "request body failed validation", "error", err)
		auth.BadRequest(w, r, "invalid request body")
		return false
	}
	return true
}
