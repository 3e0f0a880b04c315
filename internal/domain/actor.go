package domain

import "strings"

// Role is a user's role inside a project.
type Role string

const (
	RoleMember Role = "member"
	RoleLead   Role = "lead"
)

// ParseRole normalizes one role value.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleMember, RoleLead:
		return role, nil
	default:
		return "", ErrInvalidRole
	}
}

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID   string
	Role Role
}

// NewActor validates the injected caller identity.
func NewActor(id string, role Role) (Actor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Actor{}, ErrInvalidActor
	}
	role, err := ParseRole(string(role))
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: id, Role: role}, nil
}

// IsLead reports whether the actor holds the lead role.
func (a Actor) IsLead() bool {
	return a.Role == RoleLead
}
