// Package export renders a board as a downloadable spreadsheet.
package export

import (
	"context"
	"fmt"
	"time"

	"taskdeck/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetBoard(ctx context.Context, boardID string) (store.Board, error)
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
	ListGroups(ctx context.Context, boardID string) ([]store.Group, error)
	ListColumns(ctx context.Context, boardID string) ([]store.Column, error)
	ListTasks(ctx context.Context, groupID string) ([]store.Task, error)
	ListSubTasks(ctx context.Context, taskID string) ([]store.SubTask, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
}

// Request identifies the board to export.
type Request struct {
	BoardID string
}

// Result is a rendered export ready to stream to the client.
type Result struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service provides board export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export renders the board as an XLSX workbook, one sheet per group.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	board, err := s.store.GetBoard(ctx, req.BoardID)
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}

	workspace, err := s.store.GetWorkspace(ctx, board.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	groups, err := s.store.ListGroups(ctx, board.ID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	sheets := make([]groupSheet, 0, len(groups))
	for _, group := range groups {
		tasks, err := s.store.ListTasks(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("list tasks for group %s: %w", group.ID, err)
		}

		rows := make([]taskRow, 0, len(tasks))
		for _, task := range tasks {
			row := taskRow{
				Name:        task.Name,
				Description: task.Description,
				DueDate:     task.DueDate,
			}
			if task.AssigneeID != nil {
				if assignee, err := s.store.GetUserByID(ctx, *task.AssigneeID); err == nil {
					row.Assignee = assignee.DisplayName
				}
			}
			subTasks, err := s.store.ListSubTasks(ctx, task.ID)
			if err != nil {
				return nil, fmt.Errorf("list subtasks for task %s: %w", task.ID, err)
			}
			for _, st := range subTasks {
				row.SubTasksTotal++
				if st.IsDone {
					row.SubTasksDone++
				}
			}
			rows = append(rows, row)
		}
		sheets = append(sheets, groupSheet{Name: group.Name, Tasks: rows})
	}

	data, err := renderXLSX(workbookData{
		BoardName:     board.Name,
		WorkspaceName: workspace.Name,
		ExportedAt:    time.Now(),
		Groups:        sheets,
	})
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}

	return &Result{
		Filename:    sanitizeFilename(board.Name) + ".xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        data,
	}, nil
}

type workbookData struct {
	BoardName     string
	WorkspaceName string
	ExportedAt    time.Time
	Groups        []groupSheet
}

type groupSheet struct {
	Name  string
	Tasks []taskRow
}

type taskRow struct {
	Name          string
	Description   string
	Assignee      string
	DueDate       *time.Time
	SubTasksDone  int
	SubTasksTotal int
}
