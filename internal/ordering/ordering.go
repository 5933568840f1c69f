// Package ordering maintains the position invariants for the four ordered
// sibling collections: groups and columns within a board, tasks within a
// group, sub-tasks within a task.
//
// Appends draw from a per-parent sequence counter instead of scanning
// max(position), so concurrent inserts serialize on the parent row and never
// collide. An explicit reorder is the only operation that produces a dense
// 0..N-1 sequence; it must name the complete active sibling set and is
// applied all-or-nothing.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ParentType names an ordered sibling collection.
type ParentType string

const (
	BoardGroups  ParentType = "board_groups"
	BoardColumns ParentType = "board_columns"
	GroupTasks   ParentType = "group_tasks"
	TaskSubTasks ParentType = "task_subtasks"
)

// Scope identifies one ordered collection: all children of one parent.
type Scope struct {
	Parent   ParentType
	ParentID string
}

func (s Scope) String() string {
	return string(s.Parent) + ":" + s.ParentID
}

// ErrConflictingPosition signals that a concurrent writer invalidated the
// position assumption mid-operation (detected by the store as an affected-row
// mismatch inside the reorder transaction).
var ErrConflictingPosition = errors.New("conflicting position update")

// InvalidOrderError rejects a reorder payload that does not exactly match the
// current active sibling set of the scope.
type InvalidOrderError struct {
	Scope      Scope
	Missing    []string
	Extra      []string
	Duplicates []string
}

func (e *InvalidOrderError) Error() string {
	parts := []string{fmt.Sprintf("invalid order for %s", e.Scope)}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ","))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(e.Extra, ","))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, "duplicate "+strings.Join(e.Duplicates, ","))
	}
	return strings.Join(parts, ": ")
}

// Store is the persistence surface the engine drives.
type Store interface {
	// NextPosition atomically advances the parent's sequence counter and
	// returns the claimed position. Implementations must serialize on the
	// parent row so concurrent appends never observe the same value.
	NextPosition(ctx context.Context, scope Scope) (int, error)
	// ListChildIDs returns the active child ids of the scope ordered by
	// ascending position.
	ListChildIDs(ctx context.Context, scope Scope) ([]string, error)
	// ApplyOrder assigns position=index for each id, all-or-nothing, and
	// resets the parent counter to len(orderedIDs). A row-count mismatch
	// must surface as ErrConflictingPosition.
	ApplyOrder(ctx context.Context, scope Scope, orderedIDs []string) error
	// Reparent moves a child into the scope at the given position.
	Reparent(ctx context.Context, childID string, to Scope, position int) error
	// InTx runs fn in one transaction; store calls made with the ctx fn
	// receives join it, and an error from fn rolls everything back. The
	// engine uses it to keep a position claim and the write that depends
	// on it atomic.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Engine composes the ordering primitives.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Append claims the next position at the end of the scope and runs insert
// with it inside the same transaction. Until that transaction commits the
// parent row lock taken by the claim blocks any reorder of the scope, so a
// reorder can never count the siblings while a claimed child is missing from
// the table.
func (e *Engine) Append(ctx context.Context, scope Scope, insert func(ctx context.Context, position int) error) (int, error) {
	var pos int
	err := e.store.InTx(ctx, func(ctx context.Context) error {
		p, err := e.store.NextPosition(ctx, scope)
		if err != nil {
			return err
		}
		pos = p
		return insert(ctx, p)
	})
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", scope, err)
	}
	return pos, nil
}

// Reorder rewrites the scope to the supplied sequence, position=index.
// The payload must name every active sibling exactly once; anything else is
// rejected with InvalidOrderError before a single row is touched.
func (e *Engine) Reorder(ctx context.Context, scope Scope, orderedIDs []string) error {
	current, err := e.store.ListChildIDs(ctx, scope)
	if err != nil {
		return fmt.Errorf("reorder %s: %w", scope, err)
	}
	if invalid := diffSets(scope, current, orderedIDs); invalid != nil {
		return invalid
	}
	if err := e.store.ApplyOrder(ctx, scope, orderedIDs); err != nil {
		return fmt.Errorf("reorder %s: %w", scope, err)
	}
	return nil
}

// Move re-parents childID into the destination scope, appending it at the
// end of that scope's order. The claim and the re-parent share a transaction
// for the same reason Append's claim and insert do.
func (e *Engine) Move(ctx context.Context, childID string, to Scope) (int, error) {
	var pos int
	err := e.store.InTx(ctx, func(ctx context.Context) error {
		p, err := e.store.NextPosition(ctx, to)
		if err != nil {
			return err
		}
		pos = p
		return e.store.Reparent(ctx, childID, to, p)
	})
	if err != nil {
		return 0, fmt.Errorf("move %s to %s: %w", childID, to, err)
	}
	return pos, nil
}

func diffSets(scope Scope, current, supplied []string) *InvalidOrderError {
	seen := make(map[string]int, len(supplied))
	var duplicates []string
	for _, id := range supplied {
		seen[id]++
		if seen[id] == 2 {
			duplicates = append(duplicates, id)
		}
	}

	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	var missing, extra []string
	for _, id := range current {
		if seen[id] == 0 {
			missing = append(missing, id)
		}
	}
	for id := range seen {
		if !have[id] {
			extra = append(extra, id)
		}
	}

	if len(missing) == 0 && len(extra) == 0 && len(duplicates) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	sort.Strings(duplicates)
	return &InvalidOrderError{Scope: scope, Missing: missing, Extra: extra, Duplicates: duplicates}
}
