package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBoard   ResultType = "board"
	ResultTask    ResultType = "task"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	BoardID     string     `json:"boardId"`
	WorkspaceID string     `json:"workspaceId"`
}

// Query describes a search request.
type Query struct {
	Text              string
	FilterType        ResultType // empty = all types
	FilterWorkspaceID string
	// AllowedBoardIDs restricts hits to these boards. Nil means no
	// restriction (workspace staff); an empty non-nil slice matches nothing.
	AllowedBoardIDs []string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexBoard(b BoardRecord) error
	IndexTask(t TaskRecord) error
	IndexComment(c CommentRecord) error
	DeleteBoard(id string) error
	DeleteTask(id string) error
}

// BoardRecord is the data we index for a board.
type BoardRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	IsPublic    bool   `json:"isPublic"`
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	BoardID     string `json:"boardId"`
	WorkspaceID string `json:"workspaceId"`
}

// CommentRecord is the data we index for a task comment.
type CommentRecord struct {
	ID          string `json:"id"`
	Body        string `json:"body"`
	TaskID      string `json:"taskId"`
	BoardID     string `json:"boardId"`
	WorkspaceID string `json:"workspaceId"`
}
