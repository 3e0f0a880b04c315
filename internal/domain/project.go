package domain

import (
	"strings"
	"time"
)

// Project groups tasks and owns the lead/member roster.
type Project struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProject constructs a new value for this package.
func NewProject(id, name, description string, now time.Time) (Project, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Project{}, ErrInvalidID
	}
	if name == "" {
		return Project{}, ErrInvalidName
	}
	now = now.UTC()
	return Project{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Membership binds one user to one project with a role.
type Membership struct {
	ProjectID string
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// NewMembership validates one project membership.
func NewMembership(projectID, userID string, role Role, now time.Time) (Membership, error) {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return Membership{}, ErrInvalidID
	}
	role, err := ParseRole(string(role))
	if err != nil {
		return Membership{}, err
	}
	return Membership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now.UTC(),
	}, nil
}
