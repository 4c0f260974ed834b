// user_handler.go -- Current user, logout and user administration handlers
// under /secure/api.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/access"
	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/metrics"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
	"github.com/MGallo-Code/cloudy/internal/store"
	"github.com/MGallo-Code/cloudy/internal/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// rolePatch is the PATCH /users/{id} body. Both flags must be present.
type rolePatch struct {
	Admin  *bool `json:"admin" validate:"required"`
	Editor *bool `json:"editor" validate:"required"`
}

// GetCurrentUser handles GET /secure/api/user -- returns the stored account of the caller.
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.ResolveCaller(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, u)
}

// Logout handles POST /secure/api/logout -- expires the session, CSRF and legacy cookies.
// Tokens are stateless, so there is nothing to revoke server side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.ExpireSession(w)
	h.Cookies.ExpireCSRF(w)
	h.Cookies.ExpireLegacy(w)
	reqlog.Info(r, "user logged out")
	OK(w, "logged out")
}

// ListUsers handles GET /secure/api/users (ADMIN).
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Users.List(r.Context())
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

// DeleteUser handles DELETE /secure/api/users/{id} (ADMIN). Admins cannot delete themselves.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	caller, ok := h.ResolveCaller(w, r)
	if !ok {
		return
	}
	if !h.checkAdminAction(w, r, access.CheckUserDelete(caller, id)) {
		return
	}

	if err := h.Users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w)
			return
		}
		InternalServerError(w, r, err)
		return
	}
	reqlog.Info(r, "user deleted", "user_id", id, "by", caller.ID)
	OK(w, "user deleted")
}

// PatchUserRoles handles PATCH /secure/api/users/{id} (ADMIN) with body
// {"admin":bool,"editor":bool}. Admins cannot change their own roles.
func (h *AuthHandler) PatchUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var body rolePatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		BadRequest(w, r, "admin and editor are required")
		return
	}

	caller, ok := h.ResolveCaller(w, r)
	if !ok {
		return
	}
	if !h.checkAdminAction(w, r, access.CheckRolePatch(caller, id)) {
		return
	}

	roles, err := h.Users.SetRoles(r.Context(), id, *body.Admin, *body.Editor)
	switch {
	case errors.Is(err, store.ErrNotFound):
		NotFound(w)
		return
	case errors.Is(err, users.ErrActuatorTarget):
		BadRequest(w, r, "actuator user roles cannot be changed")
		return
	case err != nil:
		InternalServerError(w, r, err)
		return
	}
	reqlog.Info(r, "user roles changed", "user_id", id, "roles", roles.Codes(), "by", caller.ID)
	JSON(w, http.StatusOK, struct {
		ID    uuid.UUID      `json:"id"`
		Roles domain.RoleSet `json:"roles"`
	}{id, roles})
}

// checkAdminAction maps a gate result to a response. Returns true when the action may proceed.
func (h *AuthHandler) checkAdminAction(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, access.ErrSelfDelete), errors.Is(err, access.ErrSelfRoleChange):
		metrics.RecordAccessDenied("self_protection")
		reqlog.Warn(r, "admin attempted to act on own account", "reason", err.Error())
		Conflict(w, err.Error())
	default:
		metrics.RecordAccessDenied("insufficient_role")
		reqlog.Warn(r, "admin action refused", "error", err)
		Forbidden(w)
	}
	return false
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, r, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
