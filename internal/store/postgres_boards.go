package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) CreateBoard(ctx context.Context, board Board) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO boards (id, workspace_id, name, board_type, is_public, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`, board.ID, board.WorkspaceID, board.Name, board.BoardType, board.IsPublic, board.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var item Board
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, workspace_id, name, board_type, is_public, is_active, created_by, created_at, updated_at
		FROM boards
		WHERE id=$1 AND is_active
	`, boardID).Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.BoardType, &item.IsPublic,
		&item.IsActive, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateBoard(ctx context.Context, boardID, name string, isPublic bool) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE boards SET name=$2, is_public=$3, updated_at=NOW()
		WHERE id=$1 AND is_active
	`, boardID, name, isPublic)
	if err != nil {
		return false, fmt.Errorf("update board: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update board rows: %w", err)
	}
	return affected > 0, nil
}

// SoftDeleteBoard hides the board and everything under it from listings.
// Child rows keep their positions; they are filtered by the board join.
func (s *PostgresStore) SoftDeleteBoard(ctx context.Context, boardID string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE boards SET is_active=FALSE, updated_at=NOW()
		WHERE id=$1 AND is_active
	`, boardID)
	if err != nil {
		return false, fmt.Errorf("soft delete board: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete board rows: %w", err)
	}
	return affected > 0, nil
}

// ListBoardsForUser returns the boards in a workspace the given user may
// at least read: every active board for OWNER_ADMIN and EMPLOYEE members,
// and only public or explicitly shared boards for CUSTOMER members.
func (s *PostgresStore) ListBoardsForUser(ctx context.Context, workspaceID, userID string) ([]Board, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT DISTINCT b.id, b.workspace_id, b.name, b.board_type, b.is_public, b.is_active,
		       b.created_by, b.created_at, b.updated_at
		FROM boards b
		JOIN workspace_members wm ON wm.workspace_id = b.workspace_id AND wm.user_id = $2 AND wm.is_active
		LEFT JOIN board_members bm ON bm.board_id = b.id AND bm.user_id = $2
		WHERE b.workspace_id = $1
		  AND b.is_active
		  AND (wm.role IN ('OWNER_ADMIN', 'EMPLOYEE') OR b.is_public OR bm.user_id IS NOT NULL)
		ORDER BY b.created_at ASC
	`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var item Board
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.BoardType, &item.IsPublic,
			&item.IsActive, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertBoardMember(ctx context.Context, member BoardMember) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, can_edit)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, user_id) DO UPDATE SET can_edit=EXCLUDED.can_edit
	`, member.BoardID, member.UserID, member.CanEdit)
	if err != nil {
		return fmt.Errorf("upsert board member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveBoardMember(ctx context.Context, boardID, userID string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM board_members WHERE board_id=$1 AND user_id=$2
	`, boardID, userID)
	if err != nil {
		return false, fmt.Errorf("remove board member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove board member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListBoardMembers(ctx context.Context, boardID string) ([]BoardMember, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT bm.board_id, bm.user_id, bm.can_edit, bm.created_at, u.email, u.display_name
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id=$1
		ORDER BY bm.created_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board members: %w", err)
	}
	defer rows.Close()

	items := make([]BoardMember, 0)
	for rows.Next() {
		var item BoardMember
		if err := rows.Scan(&item.BoardID, &item.UserID, &item.CanEdit, &item.CreatedAt, &item.UserEmail, &item.UserName); err != nil {
			return nil, fmt.Errorf("scan board member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, group Group) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO groups (id, board_id, name, position, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, group.ID, group.BoardID, group.Name, group.Position)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameGroup(ctx context.Context, groupID, name string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE groups SET name=$2 WHERE id=$1 AND is_active
	`, groupID, name)
	if err != nil {
		return false, fmt.Errorf("rename group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rename group rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SoftDeleteGroup(ctx context.Context, groupID string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE groups SET is_active=FALSE WHERE id=$1 AND is_active
	`, groupID)
	if err != nil {
		return false, fmt.Errorf("soft delete group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete group rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, boardID string) ([]Group, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, board_id, name, position, is_active
		FROM groups
		WHERE board_id=$1 AND is_active
		ORDER BY position ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	items := make([]Group, 0)
	for rows.Next() {
		var item Group
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Name, &item.Position, &item.IsActive); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateColumn(ctx context.Context, column Column) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO columns (id, board_id, name, column_type, position)
		VALUES ($1, $2, $3, $4, $5)
	`, column.ID, column.BoardID, column.Name, column.ColumnType, column.Position)
	if err != nil {
		return fmt.Errorf("insert column: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameColumn(ctx context.Context, columnID, name string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE columns SET name=$2 WHERE id=$1
	`, columnID, name)
	if err != nil {
		return false, fmt.Errorf("rename column: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rename column rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteColumn is a hard delete; no other table references columns.
func (s *PostgresStore) DeleteColumn(ctx context.Context, columnID string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `DELETE FROM columns WHERE id=$1`, columnID)
	if err != nil {
		return false, fmt.Errorf("delete column: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete column rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, board_id, name, column_type, position
		FROM columns
		WHERE board_id=$1
		ORDER BY position ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	items := make([]Column, 0)
	for rows.Next() {
		var item Column
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Name, &item.ColumnType, &item.Position); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task Task) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO tasks (id, group_id, name, description, assignee_id, due_date, position, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
	`, task.ID, task.GroupID, task.Name, task.Description, task.AssigneeID, task.DueDate, task.Position, task.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	var item Task
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, group_id, name, description, assignee_id, due_date, position, is_active, created_by, created_at, updated_at
		FROM tasks
		WHERE id=$1 AND is_active
	`, taskID).Scan(&item.ID, &item.GroupID, &item.Name, &item.Description, &item.AssigneeID,
		&item.DueDate, &item.Position, &item.IsActive, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE tasks
		SET name=$2, description=$3, assignee_id=$4, due_date=$5, updated_at=NOW()
		WHERE id=$1 AND is_active
	`, task.ID, task.Name, task.Description, task.AssigneeID, task.DueDate)
	if err != nil {
		return false, fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update task rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SoftDeleteTask(ctx context.Context, taskID string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE tasks SET is_active=FALSE, updated_at=NOW() WHERE id=$1 AND is_active
	`, taskID)
	if err != nil {
		return false, fmt.Errorf("soft delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete task rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, groupID string) ([]Task, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, group_id, name, description, assignee_id, due_date, position, is_active, created_by, created_at, updated_at
		FROM tasks
		WHERE group_id=$1 AND is_active
		ORDER BY position ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTasksForBoard loads every active task on the board in one query so
// the board view does not fan out per group.
func (s *PostgresStore) ListTasksForBoard(ctx context.Context, boardID string) ([]Task, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT t.id, t.group_id, t.name, t.description, t.assignee_id, t.due_date, t.position,
		       t.is_active, t.created_by, t.created_at, t.updated_at
		FROM tasks t
		JOIN groups g ON g.id = t.group_id
		WHERE g.board_id=$1 AND g.is_active AND t.is_active
		ORDER BY g.position ASC, t.position ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(&item.ID, &item.GroupID, &item.Name, &item.Description, &item.AssigneeID,
			&item.DueDate, &item.Position, &item.IsActive, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateSubTask(ctx context.Context, subTask SubTask) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO subtasks (id, task_id, name, is_done, position)
		VALUES ($1, $2, $3, $4, $5)
	`, subTask.ID, subTask.TaskID, subTask.Name, subTask.IsDone, subTask.Position)
	if err != nil {
		return fmt.Errorf("insert subtask: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubTask(ctx context.Context, subTaskID string) (SubTask, error) {
	var item SubTask
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, task_id, name, is_done, position
		FROM subtasks
		WHERE id=$1
	`, subTaskID).Scan(&item.ID, &item.TaskID, &item.Name, &item.IsDone, &item.Position)
	if err != nil {
		return SubTask{}, fmt.Errorf("get subtask: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateSubTask(ctx context.Context, subTaskID, name string, isDone bool) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE subtasks SET name=$2, is_done=$3 WHERE id=$1
	`, subTaskID, name, isDone)
	if err != nil {
		return false, fmt.Errorf("update subtask: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update subtask rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteSubTask(ctx context.Context, subTaskID string) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx, `DELETE FROM subtasks WHERE id=$1`, subTaskID)
	if err != nil {
		return false, fmt.Errorf("delete subtask: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subtask rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListSubTasks(ctx context.Context, taskID string) ([]SubTask, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, task_id, name, is_done, position
		FROM subtasks
		WHERE task_id=$1
		ORDER BY position ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()

	items := make([]SubTask, 0)
	for rows.Next() {
		var item SubTask
		if err := rows.Scan(&item.ID, &item.TaskID, &item.Name, &item.IsDone, &item.Position); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateTaskComment(ctx context.Context, comment TaskComment) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, author_id, body)
		VALUES ($1, $2, $3, $4)
	`, comment.ID, comment.TaskID, comment.AuthorID, comment.Body)
	if err != nil {
		return fmt.Errorf("insert task comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string) ([]TaskComment, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT c.id, c.task_id, c.author_id, u.display_name, c.body, c.created_at
		FROM task_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.task_id=$1
		ORDER BY c.created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task comments: %w", err)
	}
	defer rows.Close()

	items := make([]TaskComment, 0)
	for rows.Next() {
		var item TaskComment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityEntry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("marshal activity detail: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO activity_log (workspace_id, board_id, actor_id, action, entity_type, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.WorkspaceID, entry.BoardID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, detail)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, boardID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT a.id, a.workspace_id, a.board_id, a.actor_id, u.display_name, a.action, a.entity_type, a.entity_id, a.detail, a.created_at
		FROM activity_log a
		JOIN users u ON u.id = a.actor_id
		WHERE a.board_id=$1
		ORDER BY a.id DESC
		LIMIT $2
	`, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityEntry, 0)
	for rows.Next() {
		var item ActivityEntry
		var detail []byte
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.BoardID, &item.ActorID, &item.ActorName,
			&item.Action, &item.EntityType, &item.EntityID, &detail, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &item.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal activity detail: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}
