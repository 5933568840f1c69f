package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdeck/api/internal/access"
	"taskdeck/api/internal/export"
	"taskdeck/api/internal/ordering"
	"taskdeck/api/internal/search"
	"taskdeck/api/internal/store"
	"taskdeck/api/internal/util"
)

type CreateBoardInput struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"isPublic"`
}

type UpdateBoardInput struct {
	Name     *string `json:"name"`
	IsPublic *bool   `json:"isPublic"`
}

type BoardMemberInput struct {
	CanEdit bool `json:"canEdit"`
}

type TaskInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	AssigneeID  *string    `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
}

type UpdateTaskInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	AssigneeID  *string    `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
	// GroupID, when present and different from the task's current group,
	// re-parents the task (Edit required on the destination board too).
	GroupID *string `json:"groupId"`
	// ClearAssignee / ClearDueDate distinguish "unset" from "leave alone".
	ClearAssignee bool `json:"clearAssignee"`
	ClearDueDate  bool `json:"clearDueDate"`
}

type ReorderInput struct {
	OrderedIDs []string `json:"orderedIds"`
}

type MoveTaskInput struct {
	GroupID string `json:"groupId"`
}

type SubTaskInput struct {
	Name string `json:"name"`
}

type UpdateSubTaskInput struct {
	Name   *string `json:"name"`
	IsDone *bool   `json:"isDone"`
}

type CommentInput struct {
	Body string `json:"body"`
}

// --- Boards ---

func (s *Service) CreateBoard(ctx context.Context, workspaceID, actorID string, input CreateBoardInput) (map[string]any, error) {
	if _, err := s.requireWorkspaceRole(ctx, workspaceID, actorID, access.RoleOwnerAdmin, access.RoleEmployee); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	board := store.Board{
		ID:          util.NewID("brd"),
		WorkspaceID: workspaceID,
		Name:        name,
		BoardType:   "tasks",
		IsPublic:    input.IsPublic,
		IsActive:    true,
		CreatedBy:   actorID,
	}
	if err := s.store.CreateBoard(ctx, board); err != nil {
		return nil, err
	}

	bc := access.BoardContext{BoardID: board.ID, WorkspaceID: workspaceID}
	s.recordActivity(ctx, bc, actorID, "board.created", "board", board.ID, map[string]any{"name": name})
	if s.search != nil {
		s.search.IndexBoard(search.BoardRecord{ID: board.ID, Name: name, WorkspaceID: workspaceID, IsPublic: board.IsPublic})
	}

	return boardPayload(board), nil
}

func (s *Service) ListBoards(ctx context.Context, workspaceID, actorID string) ([]map[string]any, error) {
	member, err := s.store.GetWorkspaceMember(ctx, workspaceID, actorID)
	if err != nil || !member.IsActive {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	boards, err := s.store.ListBoardsForUser(ctx, workspaceID, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(boards))
	for _, board := range boards {
		out = append(out, boardPayload(board))
	}
	return out, nil
}

// GetBoardView returns the full board tree: groups in order, columns in
// order, tasks per group in order, with sub-task progress.
func (s *Service) GetBoardView(ctx context.Context, boardID, actorID string) (map[string]any, error) {
	decision, err := s.requireRead(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return nil, err
	}

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	groups, err := s.store.ListGroups(ctx, boardID)
	if err != nil {
		return nil, err
	}
	columns, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	tasksByGroup := make(map[string][]map[string]any)
	for _, task := range tasks {
		subTasks, err := s.store.ListSubTasks(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		tasksByGroup[task.GroupID] = append(tasksByGroup[task.GroupID], taskPayload(task, subTasks))
	}

	groupList := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		taskList := tasksByGroup[group.ID]
		if taskList == nil {
			taskList = []map[string]any{}
		}
		groupList = append(groupList, map[string]any{
			"id":       group.ID,
			"name":     group.Name,
			"position": group.Position,
			"tasks":    taskList,
		})
	}

	columnList := make([]map[string]any, 0, len(columns))
	for _, column := range columns {
		columnList = append(columnList, map[string]any{
			"id":       column.ID,
			"name":     column.Name,
			"type":     column.ColumnType,
			"position": column.Position,
		})
	}

	payload := boardPayload(board)
	payload["groups"] = groupList
	payload["columns"] = columnList
	payload["viewerCanEdit"] = decision.CanEdit()
	return payload, nil
}

func (s *Service) UpdateBoard(ctx context.Context, boardID, actorID string, input UpdateBoardInput) (map[string]any, error) {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return nil, err
	}

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	name := board.Name
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name cannot be empty", nil)
		}
	}
	isPublic := board.IsPublic
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}

	updated, err := s.store.UpdateBoard(ctx, boardID, name, isPublic)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("board %s: %w", boardID, access.ErrNotFound)
	}

	s.recordActivity(ctx, decision.Board, actorID, "board.updated", "board", boardID, map[string]any{"name": name, "isPublic": isPublic})
	if s.search != nil {
		s.search.IndexBoard(search.BoardRecord{ID: boardID, Name: name, WorkspaceID: board.WorkspaceID, IsPublic: isPublic})
	}

	board.Name = name
	board.IsPublic = isPublic
	return boardPayload(board), nil
}

func (s *Service) DeleteBoard(ctx context.Context, boardID, actorID string) error {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return err
	}
	deleted, err := s.store.SoftDeleteBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("board %s: %w", boardID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "board.deleted", "board", boardID, nil)
	if s.search != nil {
		s.search.DeleteBoard(boardID)
	}
	return nil
}

// --- Board members ---

func (s *Service) ListBoardMembers(ctx context.Context, boardID, actorID string) ([]map[string]any, error) {
	if _, err := s.requireRead(ctx, actorID, access.BoardRef(boardID)); err != nil {
		return nil, err
	}
	members, err := s.store.ListBoardMembers(ctx, boardID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]any{
			"userId":  m.UserID,
			"name":    m.UserName,
			"email":   m.UserEmail,
			"canEdit": m.CanEdit,
		})
	}
	return out, nil
}

// SetBoardMember shares a board with a workspace member. Only workspace
// staff may manage sharing; board membership only matters for customers.
func (s *Service) SetBoardMember(ctx context.Context, boardID, actorID, userID string, input BoardMemberInput) error {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return err
	}
	if _, err := s.requireWorkspaceRole(ctx, decision.Board.WorkspaceID, actorID, access.RoleOwnerAdmin, access.RoleEmployee); err != nil {
		return err
	}
	target, err := s.store.GetWorkspaceMember(ctx, decision.Board.WorkspaceID, userID)
	if err != nil || !target.IsActive {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "user is not a member of this workspace", nil)
	}

	if err := s.store.UpsertBoardMember(ctx, store.BoardMember{
		BoardID: boardID,
		UserID:  userID,
		CanEdit: input.CanEdit,
	}); err != nil {
		return err
	}
	s.recordActivity(ctx, decision.Board, actorID, "board.shared", "board_member", userID, map[string]any{"canEdit": input.CanEdit})
	return nil
}

func (s *Service) RemoveBoardMember(ctx context.Context, boardID, actorID, userID string) error {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return err
	}
	if _, err := s.requireWorkspaceRole(ctx, decision.Board.WorkspaceID, actorID, access.RoleOwnerAdmin, access.RoleEmployee); err != nil {
		return err
	}
	removed, err := s.store.RemoveBoardMember(ctx, boardID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Board member not found", nil)
	}
	s.recordActivity(ctx, decision.Board, actorID, "board.unshared", "board_member", userID, nil)
	return nil
}

// --- Groups ---

func (s *Service) CreateGroup(ctx context.Context, boardID, actorID, name string) (map[string]any, error) {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	group := store.Group{
		ID:       util.NewID("grp"),
		BoardID:  boardID,
		Name:     name,
		IsActive: true,
	}
	scope := ordering.Scope{Parent: ordering.BoardGroups, ParentID: boardID}
	position, err := s.engine.Append(ctx, scope, func(ctx context.Context, position int) error {
		group.Position = position
		return s.store.CreateGroup(ctx, group)
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, decision.Board, actorID, "group.created", "group", group.ID, map[string]any{"name": name})
	return map[string]any{"id": group.ID, "name": name, "position": position}, nil
}

func (s *Service) RenameGroup(ctx context.Context, groupID, actorID, name string) error {
	decision, err := s.requireEdit(ctx, actorID, access.GroupRef(groupID))
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	renamed, err := s.store.RenameGroup(ctx, groupID, name)
	if err != nil {
		return err
	}
	if !renamed {
		return fmt.Errorf("group %s: %w", groupID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "group.renamed", "group", groupID, map[string]any{"name": name})
	return nil
}

func (s *Service) DeleteGroup(ctx context.Context, groupID, actorID string) error {
	decision, err := s.requireEdit(ctx, actorID, access.GroupRef(groupID))
	if err != nil {
		return err
	}
	deleted, err := s.store.SoftDeleteGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("group %s: %w", groupID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "group.deleted", "group", groupID, nil)
	return nil
}

func (s *Service) ReorderGroups(ctx context.Context, boardID, actorID string, input ReorderInput) error {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return err
	}
	scope := ordering.Scope{Parent: ordering.BoardGroups, ParentID: boardID}
	if err := s.engine.Reorder(ctx, scope, input.OrderedIDs); err != nil {
		return err
	}
	s.recordActivity(ctx, decision.Board, actorID, "group.reordered", "board", boardID, map[string]any{"count": len(input.OrderedIDs)})
	return nil
}

// --- Columns ---

func (s *Service) CreateColumn(ctx context.Context, boardID, actorID, name, columnType string) (map[string]any, error) {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if columnType == "" {
		columnType = "text"
	}

	column := store.Column{
		ID:         util.NewID("col"),
		BoardID:    boardID,
		Name:       name,
		ColumnType: columnType,
	}
	scope := ordering.Scope{Parent: ordering.BoardColumns, ParentID: boardID}
	position, err := s.engine.Append(ctx, scope, func(ctx context.Context, position int) error {
		column.Position = position
		return s.store.CreateColumn(ctx, column)
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, decision.Board, actorID, "column.created", "column", column.ID, map[string]any{"name": name, "type": columnType})
	return map[string]any{"id": column.ID, "name": name, "type": columnType, "position": position}, nil
}

func (s *Service) RenameColumn(ctx context.Context, columnID, actorID, name string) error {
	decision, err := s.requireEdit(ctx, actorID, access.ColumnRef(columnID))
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	renamed, err := s.store.RenameColumn(ctx, columnID, name)
	if err != nil {
		return err
	}
	if !renamed {
		return fmt.Errorf("column %s: %w", columnID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "column.renamed", "column", columnID, map[string]any{"name": name})
	return nil
}

func (s *Service) DeleteColumn(ctx context.Context, columnID, actorID string) error {
	decision, err := s.requireEdit(ctx, actorID, access.ColumnRef(columnID))
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteColumn(ctx, columnID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("column %s: %w", columnID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "column.deleted", "column", columnID, nil)
	return nil
}

func (s *Service) ReorderColumns(ctx context.Context, boardID, actorID string, input ReorderInput) error {
	decision, err := s.requireEdit(ctx, actorID, access.BoardRef(boardID))
	if err != nil {
		return err
	}
	scope := ordering.Scope{Parent: ordering.BoardColumns, ParentID: boardID}
	if err := s.engine.Reorder(ctx, scope, input.OrderedIDs); err != nil {
		return err
	}
	s.recordActivity(ctx, decision.Board, actorID, "column.reordered", "board", boardID, map[string]any{"count": len(input.OrderedIDs)})
	return nil
}

// --- Tasks ---

func (s *Service) CreateTask(ctx context.Context, groupID, actorID string, input TaskInput) (map[string]any, error) {
	decision, err := s.requireEdit(ctx, actorID, access.GroupRef(groupID))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	task := store.Task{
		ID:          util.NewID("tsk"),
		GroupID:     groupID,
		Name:        name,
		Description: input.Description,
		AssigneeID:  input.AssigneeID,
		DueDate:     input.DueDate,
		IsActive:    true,
		CreatedBy:   actorID,
	}
	scope := ordering.Scope{Parent: ordering.GroupTasks, ParentID: groupID}
	_, err = s.engine.Append(ctx, scope, func(ctx context.Context, position int) error {
		task.Position = position
		return s.store.CreateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, decision.Board, actorID, "task.created", "task", task.ID, map[string]any{"name": name})
	if s.search != nil {
		s.search.IndexTask(search.TaskRecord{
			ID: task.ID, Name: name, Description: task.Description,
			BoardID: decision.Board.BoardID, WorkspaceID: decision.Board.WorkspaceID,
		})
	}
	if input.AssigneeID != nil {
		s.notifyAssignment(ctx, decision.Board, *input.AssigneeID, task)
	}

	return taskPayload(task, nil), nil
}

func (s *Service) GetTaskView(ctx context.Context, taskID, actorID string) (map[string]any, error) {
	if _, err := s.requireRead(ctx, actorID, access.TaskRef(taskID)); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	subTasks, err := s.store.ListSubTasks(ctx, taskID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListTaskComments(ctx, taskID)
	if err != nil {
		return nil, err
	}

	payload := taskPayload(task, subTasks)
	commentList := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		commentList = append(commentList, map[string]any{
			"id":         c.ID,
			"authorId":   c.AuthorID,
			"authorName": c.AuthorName,
			"body":       c.Body,
			"createdAt":  c.CreatedAt,
		})
	}
	payload["comments"] = commentList
	return payload, nil
}

func (s *Service) UpdateTask(ctx context.Context, taskID, actorID string, input UpdateTaskInput) (map[string]any, error) {
	decision, err := s.requireEdit(ctx, actorID, access.TaskRef(taskID))
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if input.GroupID != nil && *input.GroupID != task.GroupID {
		if _, err := s.MoveTask(ctx, taskID, actorID, MoveTaskInput{GroupID: *input.GroupID}); err != nil {
			return nil, err
		}
		task, err = s.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		// Re-resolve so activity and indexing land on the new board.
		decision, err = s.requireEdit(ctx, actorID, access.TaskRef(taskID))
		if err != nil {
			return nil, err
		}
	}

	previousAssignee := task.AssigneeID
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name cannot be empty", nil)
		}
		task.Name = name
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.ClearAssignee {
		task.AssigneeID = nil
	} else if input.AssigneeID != nil {
		task.AssigneeID = input.AssigneeID
	}
	if input.ClearDueDate {
		task.DueDate = nil
	} else if input.DueDate != nil {
		task.DueDate = input.DueDate
	}

	updated, err := s.store.UpdateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("task %s: %w", taskID, access.ErrNotFound)
	}

	s.recordActivity(ctx, decision.Board, actorID, "task.updated", "task", taskID, map[string]any{"name": task.Name})
	if s.search != nil {
		s.search.IndexTask(search.TaskRecord{
			ID: task.ID, Name: task.Name, Description: task.Description,
			BoardID: decision.Board.BoardID, WorkspaceID: decision.Board.WorkspaceID,
		})
	}
	if task.AssigneeID != nil && (previousAssignee == nil || *previousAssignee != *task.AssigneeID) {
		s.notifyAssignment(ctx, decision.Board, *task.AssigneeID, task)
	}

	return taskPayload(task, nil), nil
}

func (s *Service) DeleteTask(ctx context.Context, taskID, actorID string) error {
	decision, err := s.requireEdit(ctx, actorID, access.TaskRef(taskID))
	if err != nil {
		return err
	}
	deleted, err := s.store.SoftDeleteTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("task %s: %w", taskID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "task.deleted", "task", taskID, nil)
	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	return nil
}

func (s *Service) ReorderTasks(ctx context.Context, groupID, actorID string, input ReorderInput) error {
	decision, err := s.requireEdit(ctx, actorID, access.GroupRef(groupID))
	if err != nil {
		return err
	}
	scope := ordering.Scope{Parent: ordering.GroupTasks, ParentID: groupID}
	if err := s.engine.Reorder(ctx, scope, input.OrderedIDs); err != nil {
		return err
	}
	s.recordActivity(ctx, decision.Board, actorID, "task.reordered", "group", groupID, map[string]any{"count": len(input.OrderedIDs)})
	return nil
}

// MoveTask re-parents a task into another group, appended at the end of the
// destination's order. When the destination group lives on a different board
// the actor needs Edit on both boards.
func (s *Service) MoveTask(ctx context.Context, taskID, actorID string, input MoveTaskInput) (map[string]any, error) {
	source, err := s.requireEdit(ctx, actorID, access.TaskRef(taskID))
	if err != nil {
		return nil, err
	}
	if input.GroupID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "groupId is required", nil)
	}
	destination, err := s.requireEdit(ctx, actorID, access.GroupRef(input.GroupID))
	if err != nil {
		return nil, err
	}

	position, err := s.engine.Move(ctx, taskID, ordering.Scope{Parent: ordering.GroupTasks, ParentID: input.GroupID})
	if err != nil {
		return nil, err
	}

	detail := map[string]any{"toGroup": input.GroupID, "position": position}
	if source.Board.BoardID != destination.Board.BoardID {
		detail["fromBoard"] = source.Board.BoardID
		detail["toBoard"] = destination.Board.BoardID
	}
	s.recordActivity(ctx, destination.Board, actorID, "task.moved", "task", taskID, detail)

	if s.search != nil && source.Board.BoardID != destination.Board.BoardID {
		if task, err := s.store.GetTask(ctx, taskID); err == nil {
			s.search.IndexTask(search.TaskRecord{
				ID: task.ID, Name: task.Name, Description: task.Description,
				BoardID: destination.Board.BoardID, WorkspaceID: destination.Board.WorkspaceID,
			})
		}
	}

	return map[string]any{"id": taskID, "groupId": input.GroupID, "position": position}, nil
}

// --- Sub-tasks ---

func (s *Service) CreateSubTask(ctx context.Context, taskID, actorID string, input SubTaskInput) (map[string]any, error) {
	decision, err := s.requireEdit(ctx, actorID, access.TaskRef(taskID))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	subTask := store.SubTask{
		ID:     util.NewID("sub"),
		TaskID: taskID,
		Name:   name,
	}
	scope := ordering.Scope{Parent: ordering.TaskSubTasks, ParentID: taskID}
	position, err := s.engine.Append(ctx, scope, func(ctx context.Context, position int) error {
		subTask.Position = position
		return s.store.CreateSubTask(ctx, subTask)
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, decision.Board, actorID, "subtask.created", "subtask", subTask.ID, map[string]any{"name": name})
	return map[string]any{"id": subTask.ID, "name": name, "isDone": false, "position": position}, nil
}

func (s *Service) UpdateSubTask(ctx context.Context, subTaskID, actorID string, input UpdateSubTaskInput) error {
	decision, err := s.requireEdit(ctx, actorID, access.SubTaskRef(subTaskID))
	if err != nil {
		return err
	}

	name := ""
	isDone := false
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name cannot be empty", nil)
		}
	}
	if input.IsDone != nil {
		isDone = *input.IsDone
	}
	if input.Name == nil || input.IsDone == nil {
		current, err := s.store.GetSubTask(ctx, subTaskID)
		if err != nil {
			return err
		}
		if input.Name == nil {
			name = current.Name
		}
		if input.IsDone == nil {
			isDone = current.IsDone
		}
	}

	updated, err := s.store.UpdateSubTask(ctx, subTaskID, name, isDone)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("subtask %s: %w", subTaskID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "subtask.updated", "subtask", subTaskID, map[string]any{"isDone": isDone})
	return nil
}

func (s *Service) DeleteSubTask(ctx context.Context, subTaskID, actorID string) error {
	decision, err := s.requireEdit(ctx, actorID, access.SubTaskRef(subTaskID))
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteSubTask(ctx, subTaskID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("subtask %s: %w", subTaskID, access.ErrNotFound)
	}
	s.recordActivity(ctx, decision.Board, actorID, "subtask.deleted", "subtask", subTaskID, nil)
	return nil
}

func (s *Service) ReorderSubTasks(ctx context.Context, taskID, actorID string, input ReorderInput) error {
	decision, err := s.requireEdit(ctx, actorID, access.TaskRef(taskID))
	if err != nil {
		return err
	}
	scope := ordering.Scope{Parent: ordering.TaskSubTasks, ParentID: taskID}
	if err := s.engine.Reorder(ctx, scope, input.OrderedIDs); err != nil {
		return err
	}
	s.recordActivity(ctx, decision.Board, actorID, "subtask.reordered", "task", taskID, map[string]any{"count": len(input.OrderedIDs)})
	return nil
}

// --- Comments ---

// AddComment requires read access, not edit: commenting is how read-only
// customers communicate on a shared board, and it never touches board
// structure or positions.
func (s *Service) AddComment(ctx context.Context, taskID, actorID string, input CommentInput) (map[string]any, error) {
	decision, err := s.requireRead(ctx, actorID, access.TaskRef(taskID))
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}

	comment := store.TaskComment{
		ID:       util.NewID("cmt"),
		TaskID:   taskID,
		AuthorID: actorID,
		Body:     body,
	}
	if err := s.store.CreateTaskComment(ctx, comment); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, decision.Board, actorID, "comment.created", "comment", comment.ID, nil)
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID: comment.ID, Body: body, TaskID: taskID,
			BoardID: decision.Board.BoardID, WorkspaceID: decision.Board.WorkspaceID,
		})
	}
	s.notifyComment(ctx, decision.Board, actorID, taskID, body)

	return map[string]any{"id": comment.ID, "taskId": taskID, "body": body}, nil
}

func (s *Service) ListComments(ctx context.Context, taskID, actorID string) ([]map[string]any, error) {
	if _, err := s.requireRead(ctx, actorID, access.TaskRef(taskID)); err != nil {
		return nil, err
	}
	comments, err := s.store.ListTaskComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		out = append(out, map[string]any{
			"id":         c.ID,
			"authorId":   c.AuthorID,
			"authorName": c.AuthorName,
			"body":       c.Body,
			"createdAt":  c.CreatedAt,
		})
	}
	return out, nil
}

// --- Activity ---

func (s *Service) ListActivity(ctx context.Context, boardID, actorID string, limit int) ([]map[string]any, error) {
	if _, err := s.requireRead(ctx, actorID, access.BoardRef(boardID)); err != nil {
		return nil, err
	}
	entries, err := s.store.ListActivity(ctx, boardID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":         e.ID,
			"actorId":    e.ActorID,
			"actorName":  e.ActorName,
			"action":     e.Action,
			"entityType": e.EntityType,
			"entityId":   e.EntityID,
			"detail":     e.Detail,
			"createdAt":  e.CreatedAt,
		})
	}
	return out, nil
}

// --- Search ---

func (s *Service) Search(ctx context.Context, actorID string, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	if q.FilterWorkspaceID == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "workspaceId is required", nil)
	}
	member, err := s.store.GetWorkspaceMember(ctx, q.FilterWorkspaceID, actorID)
	if err != nil || !member.IsActive {
		return search.Response{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	// Customers only see hits from boards they can read.
	if access.Role(member.Role) == access.RoleCustomer {
		boards, err := s.store.ListBoardsForUser(ctx, q.FilterWorkspaceID, actorID)
		if err != nil {
			return search.Response{}, err
		}
		allowed := make([]string, 0, len(boards))
		for _, board := range boards {
			allowed = append(allowed, board.ID)
		}
		q.AllowedBoardIDs = allowed
	}

	return s.search.Search(q), nil
}

// --- Export ---

func (s *Service) ExportBoard(ctx context.Context, boardID, actorID string) (*export.Result, error) {
	if _, err := s.requireRead(ctx, actorID, access.BoardRef(boardID)); err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{BoardID: boardID})
}

// --- Side effects ---

func (s *Service) notifyAssignment(ctx context.Context, board access.BoardContext, assigneeID string, task store.Task) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	assignee, err := s.store.GetUserByID(ctx, assigneeID)
	if err != nil {
		log.Printf("app: assignment notification lookup %s: %v", assigneeID, err)
		return
	}
	boardRow, err := s.store.GetBoard(ctx, board.BoardID)
	if err != nil {
		return
	}
	taskURL := fmt.Sprintf("%s/boards/%s/tasks/%s", s.cfg.AppBaseURL, board.BoardID, task.ID)
	go func() {
		if err := s.email.SendAssignmentEmail(assignee.Email, assignee.DisplayName, task.Name, boardRow.Name, taskURL); err != nil {
			log.Printf("app: send assignment email to %s: %v", assignee.Email, err)
		}
	}()
}

// notifyComment emails the task's assignee unless they wrote the comment.
func (s *Service) notifyComment(ctx context.Context, board access.BoardContext, authorID, taskID, body string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil || task.AssigneeID == nil || *task.AssigneeID == authorID {
		return
	}
	assignee, err := s.store.GetUserByID(ctx, *task.AssigneeID)
	if err != nil {
		return
	}
	author, err := s.store.GetUserByID(ctx, authorID)
	if err != nil {
		return
	}
	taskURL := fmt.Sprintf("%s/boards/%s/tasks/%s", s.cfg.AppBaseURL, board.BoardID, task.ID)
	go func() {
		if err := s.email.SendCommentEmail(assignee.Email, assignee.DisplayName, author.DisplayName, task.Name, body, taskURL); err != nil {
			log.Printf("app: send comment email to %s: %v", assignee.Email, err)
		}
	}()
}

// --- Payload helpers ---

func boardPayload(board store.Board) map[string]any {
	return map[string]any{
		"id":          board.ID,
		"workspaceId": board.WorkspaceID,
		"name":        board.Name,
		"boardType":   board.BoardType,
		"isPublic":    board.IsPublic,
		"createdBy":   board.CreatedBy,
	}
}

func taskPayload(task store.Task, subTasks []store.SubTask) map[string]any {
	payload := map[string]any{
		"id":          task.ID,
		"groupId":     task.GroupID,
		"name":        task.Name,
		"description": task.Description,
		"position":    task.Position,
	}
	if task.AssigneeID != nil {
		payload["assigneeId"] = *task.AssigneeID
	}
	if task.DueDate != nil {
		payload["dueDate"] = task.DueDate.Format(time.RFC3339)
	}
	if subTasks != nil {
		list := make([]map[string]any, 0, len(subTasks))
		done := 0
		for _, st := range subTasks {
			if st.IsDone {
				done++
			}
			list = append(list, map[string]any{
				"id":       st.ID,
				"name":     st.Name,
				"isDone":   st.IsDone,
				"position": st.Position,
			})
		}
		payload["subTasks"] = list
		payload["subTasksDone"] = done
		payload["subTasksTotal"] = len(subTasks)
	}
	return payload
}
