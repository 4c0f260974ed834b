// handler.go -- Book and comment HTTP handlers. Every book leaving this
// package passes through the visibility filter; every write passes the
// permission gate with a store-resolved caller.
package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MGallo-Code/cloudy/internal/access"
	"github.com/MGallo-Code/cloudy/internal/auth"
	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/metrics"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
	"github.com/MGallo-Code/cloudy/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps page*size well inside a Postgres OFFSET.
	maxPage = math.MaxInt32 / maxPageSize
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BookStore defines the book persistence the handlers need.
// Satisfied by *store.PostgresStore.
type BookStore interface {
	GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	ListBooks(ctx context.Context, page, size int) (domain.Page[*domain.Book], error)
	CreateBook(ctx context.Context, b *domain.Book) error
	UpdateBook(ctx context.Context, b *domain.Book) error
	DeleteBook(ctx context.Context, id uuid.UUID) error
	AddComment(ctx context.Context, bookID uuid.UUID, c *domain.Comment) error
	MarkCommentDeleted(ctx context.Context, bookID, commentID uuid.UUID, deletedBy string) error
}

// CallerResolver turns an authenticated request into the stored caller,
// writing the failure response itself. Satisfied by *auth.AuthHandler.
type CallerResolver interface {
	ResolveCaller(w http.ResponseWriter, r *http.Request) (*domain.User, bool)
}

// BookHandler serves /api/books and /secure/api/books.
type BookHandler struct {
	Books   BookStore
	Callers CallerResolver

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (h *BookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// ListBooks handles GET /api/books?page=&size= (zero-based page).
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	result, err := h.Books.ListBooks(r.Context(), page, size)
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}

	caller := auth.TokenUserFromContext(r.Context())
	filtered, err := access.Books(result, caller)
	if err != nil {
		h.illegalRole(w, r, err)
		return
	}
	metrics.RecordRedaction(access.TierName(caller))
	auth.JSON(w, http.StatusOK, filtered)
}

// GetBook handles GET /api/books/{id}.
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBook(w, r)
	if !ok {
		return
	}
	h.writeBook(w, r, http.StatusOK, b, auth.TokenUserFromContext(r.Context()))
}

// CreateBook handles POST /secure/api/books (EDITOR+).
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var in bookInput
	if !decodeBody(w, r, &in) {
		return
	}
	caller, ok := h.Callers.ResolveCaller(w, r)
	if !ok {
		return
	}
	if err := access.CanCreateBook(caller); err != nil {
		h.denied(w, r, "book create refused", err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}
	now := h.now()
	b := &domain.Book{
		ID:           id,
		Entered:      now,
		LastModified: now,
		CreatedBy:    domain.NewOwner(caller),
	}
	in.apply(b)

	if err := h.Books.CreateBook(r.Context(), b); err != nil {
		auth.InternalServerError(w, r, err)
		return
	}
	reqlog.Info(r, "book created", "book_id", b.ID, "by", caller.ID)
	h.writeBook(w, r, http.StatusCreated, b, caller)
}

// UpdateBook handles PUT /secure/api/books/{id} (owner or ADMIN).
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var in bookInput
	if !decodeBody(w, r, &in) {
		return
	}
	caller, ok := h.Callers.ResolveCaller(w, r)
	if !ok {
		return
	}
	b, ok := h.loadBook(w, r)
	if !ok {
		return
	}
	if err := access.CanModifyBook(caller, b); err != nil {
		h.denied(w, r, "book update refused", err, "book_id", b.ID)
		return
	}

	in.apply(b)
	b.LastModified = h.now()
	b.LastModifiedBy = domain.NewOwner(caller)
	if err := h.Books.UpdateBook(r.Context(), b); err != nil {
		h.storeError(w, r, err)
		return
	}
	reqlog.Info(r, "book updated", "book_id", b.ID, "by", caller.ID)
	h.writeBook(w, r, http.StatusOK, b, caller)
}

// DeleteBook handles DELETE /secure/api/books/{id} (owner or ADMIN).
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.Callers.ResolveCaller(w, r)
	if !ok {
		return
	}
	b, ok := h.loadBook(w, r)
	if !ok {
		return
	}
	if err := access.CanModifyBook(caller, b); err != nil {
		h.denied(w, r, "book delete refused", err, "book_id", b.ID)
		return
	}
	if err := h.Books.DeleteBook(r.Context(), b.ID); err != nil {
		h.storeError(w, r, err)
		return
	}
	reqlog.Info(r, "book deleted", "book_id", b.ID, "by", caller.ID)
	auth.OK(w, "book deleted")
}

// AddComment handles POST /secure/api/books/{id}/comments (EDITOR+).
func (h *BookHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var in commentInput
	if !decodeBody(w, r, &in) {
		return
	}
	caller, ok := h.Callers.ResolveCaller(w, r)
	if !ok {
		return
	}
	if err := access.CanAddComment(caller); err != nil {
		h.denied(w, r, "comment refused", err)
		return
	}
	bookID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}
	c := &domain.Comment{ID: id, Text: in.Text, Owner: domain.NewOwner(caller), Entered: h.now()}
	if err := h.Books.AddComment(r.Context(), bookID, c); err != nil {
		h.storeError(w, r, err)
		return
	}

	b, err := h.Books.GetBook(r.Context(), bookID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.writeBook(w, r, http.StatusCreated, b, caller)
}

// DeleteComment handles DELETE /secure/api/books/{id}/comments/{commentId}
// (comment owner or ADMIN). Comments are soft deleted, recording who removed them.
func (h *BookHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.Callers.ResolveCaller(w, r)
	if !ok {
		return
	}
	commentID, ok := uuidParam(w, r, "commentId")
	if !ok {
		return
	}
	b, ok := h.loadBook(w, r)
	if !ok {
		return
	}
	i := b.FindComment(commentID)
	if i < 0 {
		auth.NotFound(w)
		return
	}
	if err := access.CanDeleteComment(caller, &b.Comments[i]); err != nil {
		h.denied(w, r, "comment delete refused", err, "comment_id", commentID)
		return
	}

	if err := h.Books.MarkCommentDeleted(r.Context(), b.ID, commentID, caller.FullName); err != nil {
		h.storeError(w, r, err)
		return
	}
	b.Comments[i].Deleted = true
	b.Comments[i].DeletedBy = caller.FullName
	h.writeBook(w, r, http.StatusOK, b, caller)
}

// --- helpers ---

func (h *BookHandler) loadBook(w http.ResponseWriter, r *http.Request) (*domain.Book, bool) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return nil, false
	}
	b, err := h.Books.GetBook(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err)
		return nil, false
	}
	return b, true
}

func (h *BookHandler) writeBook(w http.ResponseWriter, r *http.Request, status int, b *domain.Book, caller *domain.User) {
	filtered, err := access.Book(b, caller)
	if err != nil {
		h.illegalRole(w, r, err)
		return
	}
	metrics.RecordRedaction(access.TierName(caller))
	auth.JSON(w, status, filtered)
}

func (h *BookHandler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		auth.NotFound(w)
		return
	}
	auth.InternalServerError(w, r, err)
}

func (h *BookHandler) denied(w http.ResponseWriter, r *http.Request, msg string, err error, kv ...any) {
	metrics.RecordAccessDenied("not_owner")
	reqlog.Warn(r, msg, append([]any{"error", err}, kv...)...)
	auth.Forbidden(w)
}

// illegalRole fails closed when a caller's role set cannot be ranked. That is
// corrupt account state, not a permission decision, so it is a 500.
func (h *BookHandler) illegalRole(w http.ResponseWriter, r *http.Request, err error) {
	auth.InternalServerError(w, r, fmt.Errorf("caller has illegal role state: %w", err))
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, name))
	if err != nil {
		auth.BadRequest(w, r, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, size := 0, defaultPageSize
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxPage {
			auth.BadRequest(w, r, "invalid page")
			return 0, 0, false
		}
		page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			auth.BadRequest(w, r, "invalid size")
			return 0, 0, false
		}
		size = n
	}
	return page, size, true
}
