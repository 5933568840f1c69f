package access

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name string
		bc   BoardContext
		want Level
	}{
		{name: "not a workspace member", bc: BoardContext{}, want: Denied},
		{name: "owner admin private board", bc: BoardContext{IsMember: true, Role: RoleOwnerAdmin}, want: Edit},
		{name: "employee private board", bc: BoardContext{IsMember: true, Role: RoleEmployee}, want: Edit},
		{name: "owner admin ignores board membership", bc: BoardContext{IsMember: true, Role: RoleOwnerAdmin, HasBoardMembership: true, CanEdit: false}, want: Edit},
		{name: "employee ignores board membership", bc: BoardContext{IsMember: true, Role: RoleEmployee, HasBoardMembership: true, CanEdit: false}, want: Edit},
		{name: "customer no membership private board", bc: BoardContext{IsMember: true, Role: RoleCustomer}, want: Denied},
		{name: "customer public board without membership", bc: BoardContext{IsMember: true, Role: RoleCustomer, IsPublic: true}, want: Edit},
		{name: "customer read-only membership", bc: BoardContext{IsMember: true, Role: RoleCustomer, HasBoardMembership: true, CanEdit: false}, want: ReadOnly},
		{name: "customer edit membership", bc: BoardContext{IsMember: true, Role: RoleCustomer, HasBoardMembership: true, CanEdit: true}, want: Edit},
		{name: "non member ignores public flag", bc: BoardContext{IsPublic: true}, want: Denied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.bc); got != tc.want {
				t.Fatalf("Decide(%+v) = %v, want %v", tc.bc, got, tc.want)
			}
		})
	}
}

// Granting canEdit to a read-only customer upgrades the decision on the next
// resolve; nothing is cached in the resolver.
func TestResolveReflectsMembershipChanges(t *testing.T) {
	canEdit := false
	reads := &fakeReads{
		boardContextFn: func(_ context.Context, boardID, actorID string) (BoardContext, error) {
			return BoardContext{
				BoardID:            boardID,
				WorkspaceID:        "ws_1",
				IsMember:           true,
				Role:               RoleCustomer,
				HasBoardMembership: true,
				CanEdit:            canEdit,
			}, nil
		},
	}
	r := NewResolver(reads)

	d, err := r.Resolve(context.Background(), "u1", BoardRef("b1"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if d.Level != ReadOnly {
		t.Fatalf("expected ReadOnly before grant, got %v", d.Level)
	}

	canEdit = true
	d, err = r.Resolve(context.Background(), "u1", BoardRef("b1"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if d.Level != Edit {
		t.Fatalf("expected Edit after grant, got %v", d.Level)
	}
}

func TestResolveWalksParentChain(t *testing.T) {
	walked := []Ref{}
	reads := &fakeReads{
		owningBoardIDFn: func(_ context.Context, ref Ref) (string, error) {
			walked = append(walked, ref)
			return "b_owner", nil
		},
		boardContextFn: func(_ context.Context, boardID, actorID string) (BoardContext, error) {
			if boardID != "b_owner" {
				t.Fatalf("expected chain walk to reach b_owner, got %q", boardID)
			}
			return BoardContext{BoardID: boardID, IsMember: true, Role: RoleEmployee}, nil
		},
	}
	r := NewResolver(reads)

	for _, ref := range []Ref{GroupRef("g1"), TaskRef("t1"), SubTaskRef("st1"), ColumnRef("c1")} {
		d, err := r.Resolve(context.Background(), "u1", ref)
		if err != nil {
			t.Fatalf("Resolve(%v) error = %v", ref, err)
		}
		if d.Level != Edit {
			t.Fatalf("Resolve(%v) = %v, want Edit", ref, d.Level)
		}
	}
	if len(walked) != 4 {
		t.Fatalf("expected 4 chain walks, got %d", len(walked))
	}
}

func TestResolveBoardRefSkipsChainWalk(t *testing.T) {
	reads := &fakeReads{
		owningBoardIDFn: func(context.Context, Ref) (string, error) {
			t.Fatal("board refs must not trigger a chain walk")
			return "", nil
		},
		boardContextFn: func(_ context.Context, boardID, _ string) (BoardContext, error) {
			return BoardContext{BoardID: boardID, IsMember: true, Role: RoleOwnerAdmin}, nil
		},
	}
	if _, err := NewResolver(reads).Resolve(context.Background(), "u1", BoardRef("b1")); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestResolveKeepsNotFoundDistinctFromDenied(t *testing.T) {
	reads := &fakeReads{
		owningBoardIDFn: func(_ context.Context, ref Ref) (string, error) {
			return "", fmt.Errorf("task %s: %w", ref.ID, ErrNotFound)
		},
	}
	_, err := NewResolver(reads).Resolve(context.Background(), "u1", TaskRef("ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []Role{RoleOwnerAdmin, RoleEmployee, RoleCustomer} {
		if !ValidRole(role) {
			t.Fatalf("expected %q to be valid", role)
		}
	}
	if ValidRole("SUPERUSER") {
		t.Fatal("unknown roles must be rejected")
	}
}

type fakeReads struct {
	owningBoardIDFn func(context.Context, Ref) (string, error)
	boardContextFn  func(context.Context, string, string) (BoardContext, error)
}

func (f *fakeReads) OwningBoardID(ctx context.Context, ref Ref) (string, error) {
	if f.owningBoardIDFn != nil {
		return f.owningBoardIDFn(ctx, ref)
	}
	return "", ErrNotFound
}

func (f *fakeReads) BoardContext(ctx context.Context, boardID, actorID string) (BoardContext, error) {
	if f.boardContextFn != nil {
		return f.boardContextFn(ctx, boardID, actorID)
	}
	return BoardContext{}, ErrNotFound
}
