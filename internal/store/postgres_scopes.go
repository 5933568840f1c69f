package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskdeck/api/internal/access"
	"taskdeck/api/internal/ordering"
)

// scopeSpec maps an ordering scope onto its physical tables. All four ordered
// collections share one shape: a child table with a parent FK, a position
// column, and a sequence counter on the parent row.
type scopeSpec struct {
	childTable  string
	parentCol   string
	parentTable string
	seqCol      string
	softDelete  bool
}

var scopeSpecs = map[ordering.ParentType]scopeSpec{
	ordering.BoardGroups:  {childTable: "groups", parentCol: "board_id", parentTable: "boards", seqCol: "group_seq", softDelete: true},
	ordering.BoardColumns: {childTable: "columns", parentCol: "board_id", parentTable: "boards", seqCol: "column_seq"},
	ordering.GroupTasks:   {childTable: "tasks", parentCol: "group_id", parentTable: "groups", seqCol: "task_seq", softDelete: true},
	ordering.TaskSubTasks: {childTable: "subtasks", parentCol: "task_id", parentTable: "tasks", seqCol: "subtask_seq"},
}

func specFor(scope ordering.Scope) (scopeSpec, error) {
	spec, ok := scopeSpecs[scope.Parent]
	if !ok {
		return scopeSpec{}, fmt.Errorf("unknown ordering scope %q", scope.Parent)
	}
	return spec, nil
}

// NextPosition claims the next append slot by advancing the parent's counter
// in a single UPDATE. Concurrent appends queue on the parent row lock, so no
// two callers ever see the same value. Called inside InTx, the claim holds
// the parent row lock until the enclosing transaction commits, so a reorder
// cannot slip in between the claim and the dependent insert.
func (s *PostgresStore) NextPosition(ctx context.Context, scope ordering.Scope) (int, error) {
	spec, err := specFor(scope)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE id=$1 RETURNING %s - 1`,
		spec.parentTable, spec.seqCol, spec.seqCol, spec.seqCol)
	var pos int
	if err := s.q(ctx).QueryRowContext(ctx, query, scope.ParentID).Scan(&pos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("parent %s: %w", scope.ParentID, sql.ErrNoRows)
		}
		return 0, fmt.Errorf("next position: %w", err)
	}
	return pos, nil
}

func (s *PostgresStore) ListChildIDs(ctx context.Context, scope ordering.Scope) ([]string, error) {
	spec, err := specFor(scope)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s=$1`, spec.childTable, spec.parentCol)
	if spec.softDelete {
		query += ` AND is_active`
	}
	query += ` ORDER BY position ASC`

	rows, err := s.q(ctx).QueryContext(ctx, query, scope.ParentID)
	if err != nil {
		return nil, fmt.Errorf("list child ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate child ids: %w", err)
	}
	return ids, nil
}

// ApplyOrder rewrites the scope's positions to position=index in one
// transaction. It locks the parent row first, which serializes against
// concurrent appends (NextPosition blocks on the same lock), then verifies
// the active sibling set still matches the payload before touching rows.
func (s *PostgresStore) ApplyOrder(ctx context.Context, scope ordering.Scope, orderedIDs []string) error {
	spec, err := specFor(scope)
	if err != nil {
		return err
	}

	return s.InTx(ctx, func(ctx context.Context) error {
		lock := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1 FOR UPDATE`, spec.seqCol, spec.parentTable)
		var seq int
		if err := s.q(ctx).QueryRowContext(ctx, lock, scope.ParentID).Scan(&seq); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("parent %s: %w", scope.ParentID, sql.ErrNoRows)
			}
			return fmt.Errorf("lock parent: %w", err)
		}

		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s=$1`, spec.childTable, spec.parentCol)
		if spec.softDelete {
			countQuery += ` AND is_active`
		}
		var active int
		if err := s.q(ctx).QueryRowContext(ctx, countQuery, scope.ParentID).Scan(&active); err != nil {
			return fmt.Errorf("count siblings: %w", err)
		}
		if active != len(orderedIDs) {
			return ordering.ErrConflictingPosition
		}

		update := fmt.Sprintf(`
			UPDATE %s AS c
			SET position = v.pos
			FROM (
				SELECT unnest($2::text[]) AS id,
				       generate_subscripts($2::text[], 1) - 1 AS pos
			) v
			WHERE c.id = v.id AND c.%s = $1
		`, spec.childTable, spec.parentCol)
		result, err := s.q(ctx).ExecContext(ctx, update, scope.ParentID, orderedIDs)
		if err != nil {
			return fmt.Errorf("apply order: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("apply order rows: %w", err)
		}
		if affected != int64(len(orderedIDs)) {
			return ordering.ErrConflictingPosition
		}

		reset := fmt.Sprintf(`UPDATE %s SET %s=$2 WHERE id=$1`, spec.parentTable, spec.seqCol)
		if _, err := s.q(ctx).ExecContext(ctx, reset, scope.ParentID, len(orderedIDs)); err != nil {
			return fmt.Errorf("reset counter: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Reparent(ctx context.Context, childID string, to ordering.Scope, position int) error {
	spec, err := specFor(to)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET %s=$2, position=$3 WHERE id=$1`, spec.childTable, spec.parentCol)
	if spec.softDelete {
		query += ` AND is_active`
	}
	result, err := s.q(ctx).ExecContext(ctx, query, childID, to.ParentID, position)
	if err != nil {
		return fmt.Errorf("reparent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reparent rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("child %s: %w", childID, sql.ErrNoRows)
	}
	return nil
}

// OwningBoardID resolves any board-scoped entity to its board in one query
// per kind. Soft-deleted links in the chain count as missing.
func (s *PostgresStore) OwningBoardID(ctx context.Context, ref access.Ref) (string, error) {
	var query string
	switch ref.Kind {
	case access.KindBoard:
		query = `SELECT id FROM boards WHERE id=$1 AND is_active`
	case access.KindGroup:
		query = `SELECT board_id FROM groups WHERE id=$1 AND is_active`
	case access.KindColumn:
		query = `SELECT board_id FROM columns WHERE id=$1`
	case access.KindTask:
		query = `
			SELECT g.board_id
			FROM tasks t
			JOIN groups g ON g.id = t.group_id
			WHERE t.id=$1 AND t.is_active AND g.is_active`
	case access.KindSubTask:
		query = `
			SELECT g.board_id
			FROM subtasks st
			JOIN tasks t ON t.id = st.task_id
			JOIN groups g ON g.id = t.group_id
			WHERE st.id=$1 AND t.is_active AND g.is_active`
	default:
		return "", fmt.Errorf("unknown entity kind %q", ref.Kind)
	}

	var boardID string
	if err := s.q(ctx).QueryRowContext(ctx, query, ref.ID).Scan(&boardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s %s: %w", ref.Kind, ref.ID, access.ErrNotFound)
		}
		return "", fmt.Errorf("owning board: %w", err)
	}
	return boardID, nil
}

// BoardContext loads the board plus the actor's workspace membership and
// board membership in a single round trip.
func (s *PostgresStore) BoardContext(ctx context.Context, boardID, actorID string) (access.BoardContext, error) {
	const query = `
		SELECT b.id, b.workspace_id, b.is_public,
		       wm.role,
		       bm.user_id IS NOT NULL,
		       COALESCE(bm.can_edit, FALSE)
		FROM boards b
		LEFT JOIN workspace_members wm
			ON wm.workspace_id = b.workspace_id AND wm.user_id = $2 AND wm.is_active
		LEFT JOIN board_members bm
			ON bm.board_id = b.id AND bm.user_id = $2
		WHERE b.id = $1 AND b.is_active
	`
	var bc access.BoardContext
	var role sql.NullString
	err := s.q(ctx).QueryRowContext(ctx, query, boardID, actorID).Scan(
		&bc.BoardID, &bc.WorkspaceID, &bc.IsPublic, &role, &bc.HasBoardMembership, &bc.CanEdit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.BoardContext{}, fmt.Errorf("board %s: %w", boardID, access.ErrNotFound)
		}
		return access.BoardContext{}, fmt.Errorf("board context: %w", err)
	}
	if role.Valid {
		bc.IsMember = true
		bc.Role = access.Role(role.String)
	}
	return bc, nil
}
