package board

import (
	"testing"

	"github.com/hylla/nexus/internal/domain"
)

func TestNewProjectionGroupsLiveTasks(t *testing.T) {
	deleted := boardTask("t4", domain.StatusTodo)
	deleted.DeletedAt = &boardNow
	p := NewProjection([]domain.Task{
		boardTask("t1", domain.StatusTodo),
		boardTask("t2", domain.StatusInProgress),
		boardTask("t3", domain.StatusTodo),
		deleted,
	})

	wantColumn(t, p, domain.StatusTodo, "t1", "t3")
	wantColumn(t, p, domain.StatusInProgress, "t2")
	wantColumn(t, p, domain.StatusBlocked)
	if p.Column(domain.StatusDone) == nil {
		t.Fatal("expected every status column to exist")
	}
	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
}

func TestApplyMoveLocatesCardByID(t *testing.T) {
	blocked := boardTask("t2", domain.StatusBlocked)
	blocked.LastBlockReason = "waiting on API keys"
	p := NewProjection([]domain.Task{boardTask("t1", domain.StatusTodo), blocked})

	moved, ok := ApplyMove(p, MoveIntent{TaskID: "t2", FromStatus: domain.StatusDone, FromIndex: 9, ToStatus: domain.StatusTodo, ToIndex: 0})
	if !ok {
		t.Fatal("expected move to apply")
	}
	wantColumn(t, moved, domain.StatusTodo, "t2", "t1")
	wantColumn(t, moved, domain.StatusBlocked)

	if card, _, _ := moved.Find("t2"); card.LastBlockReason != "" {
		t.Fatalf("expected reason cleared outside BLOCKED, got %q", card.LastBlockReason)
	}
	wantColumn(t, p, domain.StatusBlocked, "t2")
}

func TestApplyMoveClampsIndex(t *testing.T) {
	p := NewProjection([]domain.Task{
		boardTask("t1", domain.StatusTodo),
		boardTask("t2", domain.StatusTodo),
		boardTask("t3", domain.StatusDone),
	})

	moved, ok := ApplyMove(p, MoveIntent{TaskID: "t3", ToStatus: domain.StatusTodo, ToIndex: 40})
	if !ok {
		t.Fatal("expected move to apply")
	}
	wantColumn(t, moved, domain.StatusTodo, "t1", "t2", "t3")

	moved, ok = ApplyMove(moved, MoveIntent{TaskID: "t2", ToStatus: domain.StatusTodo, ToIndex: -3})
	if !ok {
		t.Fatal("expected move to apply")
	}
	wantColumn(t, moved, domain.StatusTodo, "t2", "t1", "t3")
}

func TestApplyMoveRejectsUnknownCardOrStatus(t *testing.T) {
	p := NewProjection([]domain.Task{boardTask("t1", domain.StatusTodo)})

	if _, ok := ApplyMove(p, MoveIntent{TaskID: "missing", ToStatus: domain.StatusDone}); ok {
		t.Fatal("expected unknown card to be refused")
	}
	if _, ok := ApplyMove(p, MoveIntent{TaskID: "t1", ToStatus: domain.Status("ARCHIVED")}); ok {
		t.Fatal("expected unknown status to be refused")
	}
}

func TestAbsorbRelocatesAndRemoves(t *testing.T) {
	p := NewProjection([]domain.Task{boardTask("t1", domain.StatusTodo), boardTask("t2", domain.StatusTodo)})

	server := boardTask("t1", domain.StatusDone)
	server.Title = "renamed"
	p = p.absorb(server)
	wantColumn(t, p, domain.StatusTodo, "t2")
	card, _, ok := p.Find("t1")
	if !ok || card.Status != domain.StatusDone || card.Title != "renamed" {
		t.Fatalf("unexpected absorbed card %#v (found %t)", card, ok)
	}

	gone := boardTask("t2", domain.StatusTodo)
	gone.DeletedAt = &boardNow
	p = p.absorb(gone)
	if _, _, ok := p.Find("t2"); ok {
		t.Fatal("expected deleted task removed")
	}

	p = p.absorb(boardTask("t9", domain.StatusInProgress))
	wantColumn(t, p, domain.StatusInProgress, "t9")
}
