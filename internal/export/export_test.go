package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"taskdeck/api/internal/store"
)

type fakeDataStore struct {
	board     store.Board
	workspace store.Workspace
	groups    []store.Group
	tasks     map[string][]store.Task
	subTasks  map[string][]store.SubTask
	users     map[string]store.User
}

func (f *fakeDataStore) GetBoard(ctx context.Context, boardID string) (store.Board, error) {
	return f.board, nil
}

func (f *fakeDataStore) GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error) {
	return f.workspace, nil
}

func (f *fakeDataStore) ListGroups(ctx context.Context, boardID string) ([]store.Group, error) {
	return f.groups, nil
}

func (f *fakeDataStore) ListColumns(ctx context.Context, boardID string) ([]store.Column, error) {
	return nil, nil
}

func (f *fakeDataStore) ListTasks(ctx context.Context, groupID string) ([]store.Task, error) {
	return f.tasks[groupID], nil
}

func (f *fakeDataStore) ListSubTasks(ctx context.Context, taskID string) ([]store.SubTask, error) {
	return f.subTasks[taskID], nil
}

func (f *fakeDataStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	return f.users[userID], nil
}

func testStore() *fakeDataStore {
	assignee := "usr_1"
	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	return &fakeDataStore{
		board:     store.Board{ID: "brd_1", WorkspaceID: "ws_1", Name: "Q3 Roadmap"},
		workspace: store.Workspace{ID: "ws_1", Name: "Acme Inc"},
		groups: []store.Group{
			{ID: "grp_1", BoardID: "brd_1", Name: "In Progress", Position: 0},
			{ID: "grp_2", BoardID: "brd_1", Name: "Done", Position: 1},
		},
		tasks: map[string][]store.Task{
			"grp_1": {
				{ID: "tsk_1", GroupID: "grp_1", Name: "Ship onboarding", Description: "New flow", AssigneeID: &assignee, DueDate: &due, Position: 0},
			},
			"grp_2": {
				{ID: "tsk_2", GroupID: "grp_2", Name: "Fix login bug", Position: 0},
			},
		},
		subTasks: map[string][]store.SubTask{
			"tsk_1": {
				{ID: "sub_1", TaskID: "tsk_1", Name: "Design", IsDone: true, Position: 0},
				{ID: "sub_2", TaskID: "tsk_1", Name: "Build", IsDone: false, Position: 1},
			},
		},
		users: map[string]store.User{
			"usr_1": {ID: "usr_1", DisplayName: "Riley"},
		},
	}
}

func TestExportProducesWorkbook(t *testing.T) {
	svc := NewService(testStore())

	result, err := svc.Export(context.Background(), Request{BoardID: "brd_1"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if result.ContentType != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("unexpected content type %s", result.ContentType)
	}
	if !strings.HasSuffix(result.Filename, ".xlsx") {
		t.Errorf("expected .xlsx filename, got %s", result.Filename)
	}

	f, err := excelize.OpenReader(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("workbook does not reopen: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 { // overview + two groups
		t.Fatalf("expected 3 sheets, got %d: %v", len(sheets), sheets)
	}

	boardName, err := f.GetCellValue("Overview", "B1")
	if err != nil {
		t.Fatalf("read overview: %v", err)
	}
	if boardName != "Q3 Roadmap" {
		t.Errorf("expected board name in overview, got %q", boardName)
	}

	taskName, err := f.GetCellValue(sheets[1], "A2")
	if err != nil {
		t.Fatalf("read task cell: %v", err)
	}
	if taskName != "Ship onboarding" {
		t.Errorf("expected first task on group sheet, got %q", taskName)
	}

	progress, err := f.GetCellValue(sheets[1], "E2")
	if err != nil {
		t.Fatalf("read subtask cell: %v", err)
	}
	if progress != "1/2" {
		t.Errorf("expected sub-task progress 1/2, got %q", progress)
	}
}

func TestExportEmptyBoard(t *testing.T) {
	ds := testStore()
	ds.groups = nil

	svc := NewService(ds)
	result, err := svc.Export(context.Background(), Request{BoardID: "brd_1"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("workbook does not reopen: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 {
		t.Errorf("expected only the overview sheet, got %v", sheets)
	}
}

func TestSheetNameSanitization(t *testing.T) {
	tests := []struct {
		name  string
		index int
	}{
		{"Done / Archived [old]", 0},
		{strings.Repeat("x", 60), 1},
		{"", 2},
	}
	for _, tt := range tests {
		got := sheetName(tt.name, tt.index)
		if len(got) > 31 {
			t.Errorf("sheetName(%q) too long: %q", tt.name, got)
		}
		if strings.ContainsAny(got, `\/?*[]:`) {
			t.Errorf("sheetName(%q) contains forbidden chars: %q", tt.name, got)
		}
	}
}
