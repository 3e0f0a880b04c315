package domain

import (
	"strings"
	"time"
)

// Comment is an append-only note attached to one task.
type Comment struct {
	ID        string
	TaskID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// CommentInput holds input values for comment creation operations.
type CommentInput struct {
	ID       string
	TaskID   string
	AuthorID string
	Body     string
}

// NewComment validates and normalizes a comment.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.AuthorID = strings.TrimSpace(in.AuthorID)
	in.Body = strings.TrimSpace(in.Body)
	if in.ID == "" || in.TaskID == "" {
		return Comment{}, ErrInvalidID
	}
	if in.AuthorID == "" {
		return Comment{}, ErrInvalidActor
	}
	if in.Body == "" {
		return Comment{}, ErrInvalidBody
	}
	return Comment{
		ID:        in.ID,
		TaskID:    in.TaskID,
		AuthorID:  in.AuthorID,
		Body:      in.Body,
		CreatedAt: now.UTC(),
	}, nil
}

// LatestComment returns the most recently created comment.
// Ties on CreatedAt resolve to the later position in the slice.
func LatestComment(comments []Comment) (Comment, bool) {
	if len(comments) == 0 {
		return Comment{}, false
	}
	latest := comments[0]
	for _, c := range comments[1:] {
		if !c.CreatedAt.Before(latest.CreatedAt) {
			latest = c
		}
	}
	return latest, true
}
