// Package board keeps a client-side Kanban projection in sync with the task store.
package board

import (
	"slices"

	"github.com/hylla/nexus/internal/domain"
)

// Card is one task as rendered in a board column.
type Card struct {
	ID              string
	Title           string
	AssigneeID      string
	Status          domain.Status
	LastBlockReason string
}

// MoveIntent describes one drag or keyboard move on the board.
type MoveIntent struct {
	TaskID     string
	FromStatus domain.Status
	ToStatus   domain.Status
	FromIndex  int
	ToIndex    int
}

// Projection maps each status column to its ordered cards.
type Projection map[domain.Status][]Card

// NewProjection groups live tasks by status, keeping input order within a column.
func NewProjection(tasks []domain.Task) Projection {
	p := emptyProjection()
	for _, task := range tasks {
		if task.IsDeleted() || !task.Status.Valid() {
			continue
		}
		p[task.Status] = append(p[task.Status], cardFromTask(task))
	}
	return p
}

func emptyProjection() Projection {
	p := make(Projection, len(domain.Statuses()))
	for _, status := range domain.Statuses() {
		p[status] = []Card{}
	}
	return p
}

func cardFromTask(task domain.Task) Card {
	return Card{
		ID:              task.ID,
		Title:           task.Title,
		AssigneeID:      task.AssigneeID,
		Status:          task.Status,
		LastBlockReason: task.LastBlockReason,
	}
}

// Clone returns a deep copy.
func (p Projection) Clone() Projection {
	out := emptyProjection()
	for status, cards := range p {
		out[status] = slices.Clone(cards)
	}
	return out
}

// Column returns the cards of one status column.
func (p Projection) Column(status domain.Status) []Card {
	return p[status]
}

// Find locates a card by task id.
func (p Projection) Find(taskID string) (Card, int, bool) {
	for _, status := range domain.Statuses() {
		for i, card := range p[status] {
			if card.ID == taskID {
				return card, i, true
			}
		}
	}
	return Card{}, -1, false
}

// Len returns the number of cards across all columns.
func (p Projection) Len() int {
	n := 0
	for _, cards := range p {
		n += len(cards)
	}
	return n
}

// ApplyMove returns a copy of p with the card moved. The card is located by id, so a stale
// FromStatus or FromIndex does not corrupt the projection. ToIndex is clamped to the column.
func ApplyMove(p Projection, m MoveIntent) (Projection, bool) {
	card, index, ok := p.Find(m.TaskID)
	if !ok || !m.ToStatus.Valid() {
		return p, false
	}
	out := p.Clone()
	from := card.Status
	out[from] = slices.Delete(out[from], index, index+1)

	card.Status = m.ToStatus
	if m.ToStatus != domain.StatusBlocked {
		card.LastBlockReason = ""
	}
	target := out[m.ToStatus]
	at := min(max(m.ToIndex, 0), len(target))
	out[m.ToStatus] = slices.Insert(target, at, card)
	return out, true
}

// absorb overwrites a card with authoritative task fields, relocating it when the server
// placed the task in a different column than the projection.
func (p Projection) absorb(task domain.Task) Projection {
	card, index, ok := p.Find(task.ID)
	if !ok {
		if task.IsDeleted() {
			return p
		}
		out := p.Clone()
		out[task.Status] = append(out[task.Status], cardFromTask(task))
		return out
	}
	out := p.Clone()
	if task.IsDeleted() {
		out[card.Status] = slices.Delete(out[card.Status], index, index+1)
		return out
	}
	if card.Status != task.Status {
		moved, _ := ApplyMove(out, MoveIntent{TaskID: task.ID, ToStatus: task.Status, ToIndex: index})
		out = moved
		_, index, _ = out.Find(task.ID)
	}
	out[task.Status][index] = cardFromTask(task)
	return out
}
