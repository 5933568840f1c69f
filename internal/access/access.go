// Package access computes an actor's effective permission on board-scoped
// entities. Permission lives at two levels only: the workspace membership
// role and, for customers, the per-board membership row. Groups, columns,
// tasks and sub-tasks always inherit from their owning board.
package access

import (
	"context"
	"errors"
)

// Role is a workspace-scoped membership role.
type Role string

const (
	RoleOwnerAdmin Role = "OWNER_ADMIN"
	RoleEmployee   Role = "EMPLOYEE"
	RoleCustomer   Role = "CUSTOMER"
)

// ValidRole reports whether role is one of the known workspace roles.
func ValidRole(role Role) bool {
	switch role {
	case RoleOwnerAdmin, RoleEmployee, RoleCustomer:
		return true
	default:
		return false
	}
}

// Level is the effective permission an actor holds on a board.
type Level int

const (
	Denied Level = iota
	ReadOnly
	Edit
)

func (l Level) String() string {
	switch l {
	case ReadOnly:
		return "read_only"
	case Edit:
		return "edit"
	default:
		return "denied"
	}
}

// Kind tags the entity a permission check targets.
type Kind string

const (
	KindBoard   Kind = "board"
	KindGroup   Kind = "group"
	KindColumn  Kind = "column"
	KindTask    Kind = "task"
	KindSubTask Kind = "subtask"
)

// Ref identifies the target of a permission check.
type Ref struct {
	Kind Kind
	ID   string
}

func BoardRef(id string) Ref   { return Ref{Kind: KindBoard, ID: id} }
func GroupRef(id string) Ref   { return Ref{Kind: KindGroup, ID: id} }
func ColumnRef(id string) Ref  { return Ref{Kind: KindColumn, ID: id} }
func TaskRef(id string) Ref    { return Ref{Kind: KindTask, ID: id} }
func SubTaskRef(id string) Ref { return Ref{Kind: KindSubTask, ID: id} }

// ErrNotFound signals that the target entity (or a link in its parent chain)
// does not exist. It is deliberately distinct from a Denied decision: a
// Denied actor was found and rejected, a NotFound target was never there.
var ErrNotFound = errors.New("entity not found")

// BoardContext is everything needed to decide an actor's level on a board,
// loaded in a single read.
type BoardContext struct {
	BoardID     string
	WorkspaceID string
	IsPublic    bool

	// Workspace membership of the actor, scoped to the board's workspace.
	IsMember bool
	Role     Role

	// Board membership of the actor, only consulted for customers.
	HasBoardMembership bool
	CanEdit            bool
}

// Decide applies the permission rules to an already-loaded context.
//
// Note the deliberate quirk inherited from the product: a public board grants
// Edit (not just read) to every active workspace member, customers included.
func Decide(bc BoardContext) Level {
	if !bc.IsMember {
		return Denied
	}
	switch bc.Role {
	case RoleOwnerAdmin, RoleEmployee:
		return Edit
	}
	if bc.IsPublic {
		return Edit
	}
	if bc.HasBoardMembership {
		if bc.CanEdit {
			return Edit
		}
		return ReadOnly
	}
	return Denied
}

// Reads is the minimal read surface the resolver needs. Implementations must
// return ErrNotFound (possibly wrapped) for missing or soft-deleted entities.
type Reads interface {
	// OwningBoardID walks the parent chain of ref up to its board
	// (Group→Board, Task→Group→Board, SubTask→Task→Group→Board).
	OwningBoardID(ctx context.Context, ref Ref) (string, error)
	// BoardContext loads the board together with the actor's workspace
	// membership and board membership rows in one read.
	BoardContext(ctx context.Context, boardID, actorID string) (BoardContext, error)
}

// Decision is the outcome of a resolve call.
type Decision struct {
	Level Level
	Board BoardContext
}

func (d Decision) CanRead() bool { return d.Level >= ReadOnly }
func (d Decision) CanEdit() bool { return d.Level == Edit }

// Resolver resolves effective permissions for any board-scoped entity.
type Resolver struct {
	reads Reads
}

func NewResolver(reads Reads) *Resolver {
	return &Resolver{reads: reads}
}

// Resolve walks ref to its owning board and decides the actor's level there.
// It performs reads only; callers act on the Decision.
func (r *Resolver) Resolve(ctx context.Context, actorID string, ref Ref) (Decision, error) {
	boardID := ref.ID
	if ref.Kind != KindBoard {
		id, err := r.reads.OwningBoardID(ctx, ref)
		if err != nil {
			return Decision{}, err
		}
		boardID = id
	}
	bc, err := r.reads.BoardContext(ctx, boardID, actorID)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Level: Decide(bc), Board: bc}, nil
}
