// role.go -- Role hierarchy and role-set helpers.
//
// USER < EDITOR < ADMIN form a strict order. ACTUATOR sits outside it and is
// only ever granted on its own, to monitoring clients.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownRole is returned when a role code or value is outside the known set.
// Treated as an illegal state by callers; never defaulted to a lower role.
var ErrUnknownRole = errors.New("unknown role")

// ErrNoRoles is returned by HighestRole for an empty role set.
var ErrNoRoles = errors.New("role set is empty")

// ErrActuatorCombined is returned when ACTUATOR is mixed with any other role.
var ErrActuatorCombined = errors.New("actuator role cannot be combined with other roles")

// Role is a numeric role code. The number is the wire form inside session tokens.
type Role int

const (
	RoleUser     Role = 0
	RoleEditor   Role = 1
	RoleAdmin    Role = 2
	RoleActuator Role = 3
)

var roleNames = map[Role]string{
	RoleUser:     "ROLE_USER",
	RoleEditor:   "ROLE_EDITOR",
	RoleAdmin:    "ROLE_ADMIN",
	RoleActuator: "ROLE_ACTUATOR",
}

// String returns the ROLE_* name, or ROLE_UNKNOWN(n) for out-of-range values.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE_UNKNOWN(%d)", int(r))
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Ordered reports whether r takes part in the USER < EDITOR < ADMIN order.
func (r Role) Ordered() bool {
	return r == RoleUser || r == RoleEditor || r == RoleAdmin
}

// Code returns the numeric wire code.
func (r Role) Code() string {
	return strconv.Itoa(int(r))
}

// ParseRoleCode converts a numeric wire code back to a Role.
func ParseRoleCode(code string) (Role, error) {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, code)
	}
	r := Role(n)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownRole, n)
	}
	return r, nil
}

// RoleSet is a duplicate-free list of roles.
type RoleSet []Role

// NewRoleSet builds a RoleSet, dropping duplicates and keeping first-seen order.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		if !set.Has(r) {
			set = append(set, r)
		}
	}
	return set
}

// ParseRoleCodes parses a comma-delimited code list such as "0,1,2".
func ParseRoleCodes(codes string) (RoleSet, error) {
	if strings.TrimSpace(codes) == "" {
		return nil, ErrNoRoles
	}
	parts := strings.Split(codes, ",")
	roles := make([]Role, 0, len(parts))
	for _, p := range parts {
		r, err := ParseRoleCode(p)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return NewRoleSet(roles...), nil
}

// Has reports whether role is in the set.
func (s RoleSet) Has(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// IsActuatorOnly reports whether the set is exactly {ACTUATOR}.
func (s RoleSet) IsActuatorOnly() bool {
	return len(s) == 1 && s[0] == RoleActuator
}

// Codes returns the comma-delimited wire form, e.g. "0,1,2".
func (s RoleSet) Codes() string {
	codes := make([]string, len(s))
	for i, r := range s {
		codes[i] = r.Code()
	}
	return strings.Join(codes, ",")
}

// Validate rejects empty sets, unknown roles and ACTUATOR mixed with anything else.
func (s RoleSet) Validate() error {
	if len(s) == 0 {
		return ErrNoRoles
	}
	for _, r := range s {
		if !r.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
		}
	}
	if s.Has(RoleActuator) && len(s) > 1 {
		return ErrActuatorCombined
	}
	return nil
}

// HighestRole returns the greatest role under USER < EDITOR < ADMIN.
// An actuator-only set yields RoleActuator; an empty set is an error.
func HighestRole(roles RoleSet) (Role, error) {
	if len(roles) == 0 {
		return 0, ErrNoRoles
	}
	highest := Role(-1)
	for _, r := range roles {
		if !r.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
		}
		if r.Ordered() && r > highest {
			highest = r
		}
	}
	if highest < 0 {
		// Only ACTUATOR present.
		return RoleActuator, nil
	}
	return highest, nil
}

// AtLeast reports whether the set holds min or any ordered role above it.
// ACTUATOR never satisfies an ordered requirement.
func (s RoleSet) AtLeast(min Role) bool {
	for _, r := range s {
		if r.Ordered() && r >= min {
			return true
		}
	}
	return false
}

// MarshalText renders the ROLE_* name so JSON output stays readable.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts a ROLE_* name.
func (r *Role) UnmarshalText(text []byte) error {
	for role, name := range roleNames {
		if name == string(text) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownRole, string(text))
}
