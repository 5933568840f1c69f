package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Workspace struct {
	ID              string
	Slug            string
	Name            string
	DefaultCurrency string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type WorkspaceMember struct {
	WorkspaceID string
	UserID      string
	Role        string
	IsActive    bool
	CreatedAt   time.Time
	// Joined fields for API responses
	UserEmail string
	UserName  string
}

type Board struct {
	ID          string
	WorkspaceID string
	Name        string
	BoardType   string
	IsPublic    bool
	IsActive    bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BoardMember struct {
	BoardID   string
	UserID    string
	CanEdit   bool
	CreatedAt time.Time
	// Joined fields for API responses
	UserEmail string
	UserName  string
}

type Group struct {
	ID       string
	BoardID  string
	Name     string
	Position int
	IsActive bool
}

type Column struct {
	ID         string
	BoardID    string
	Name       string
	ColumnType string
	Position   int
}

type Task struct {
	ID          string
	GroupID     string
	Name        string
	Description string
	AssigneeID  *string
	DueDate     *time.Time
	Position    int
	IsActive    bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type SubTask struct {
	ID       string
	TaskID   string
	Name     string
	IsDone   bool
	Position int
}

type TaskComment struct {
	ID         string
	TaskID     string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

type ActivityEntry struct {
	ID          int64
	WorkspaceID string
	BoardID     string
	ActorID     string
	ActorName   string
	Action      string
	EntityType  string
	EntityID    string
	Detail      map[string]any
	CreatedAt   time.Time
}

type Invitation struct {
	ID          string
	WorkspaceID string
	Email       string
	Role        string
	Token       string
	InvitedBy   string
	AcceptedAt  *time.Time
	CreatedAt   time.Time
}
