package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across boards, tasks, and task_comments
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	scopeFilter := func(boardCol string) string {
		var clauses []string
		if q.FilterWorkspaceID != "" {
			clauses = append(clauses, fmt.Sprintf("b.workspace_id = $%d", argN))
			args = append(args, q.FilterWorkspaceID)
			argN++
		}
		if q.AllowedBoardIDs != nil {
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", boardCol, argN))
			args = append(args, q.AllowedBoardIDs)
			argN++
		}
		if len(clauses) == 0 {
			return ""
		}
		return " AND " + strings.Join(clauses, " AND ")
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultBoard {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'board'::text AS type, b.id, b.name AS title,
				''::text AS snippet,
				b.id AS board_id, b.workspace_id,
				ts_rank(to_tsvector('simple', b.name), %s) AS rank
			FROM boards b
			WHERE b.is_active AND to_tsvector('simple', b.name) @@ %s%s`,
			tsQuery, tsQuery, scopeFilter("b.id")))
	}

	if q.FilterType == "" || q.FilterType == ResultTask {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.name AS title,
				ts_headline('simple', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.id AS board_id, b.workspace_id,
				ts_rank(t.search_tsv, %s) AS rank
			FROM tasks t
			JOIN groups g ON g.id = t.group_id
			JOIN boards b ON b.id = g.board_id
			WHERE t.is_active AND g.is_active AND b.is_active AND t.search_tsv @@ %s%s`,
			tsQuery, tsQuery, tsQuery, scopeFilter("b.id")))
	}

	if q.FilterType == "" || q.FilterType == ResultComment {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, t.name AS title,
				ts_headline('simple', c.body, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.id AS board_id, b.workspace_id,
				ts_rank(to_tsvector('simple', c.body), %s) AS rank
			FROM task_comments c
			JOIN tasks t ON t.id = c.task_id
			JOIN groups g ON g.id = t.group_id
			JOIN boards b ON b.id = g.board_id
			WHERE t.is_active AND g.is_active AND b.is_active AND to_tsvector('simple', c.body) @@ %s%s`,
			tsQuery, tsQuery, tsQuery, scopeFilter("b.id")))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, board_id, workspace_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.Query(dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rtyp string
		if err := rows.Scan(&rtyp, &r.ID, &r.Title, &r.Snippet, &r.BoardID, &r.WorkspaceID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(rtyp)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts rows: %w", err)
	}

	return results, total, nil
}

// LoadAllRecords reads every indexable entity for a Meilisearch reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]BoardRecord, []TaskRecord, []CommentRecord, error) {
	boardRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, workspace_id, is_public FROM boards WHERE is_active
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load boards: %w", err)
	}
	defer boardRows.Close()

	var boards []BoardRecord
	for boardRows.Next() {
		var b BoardRecord
		if err := boardRows.Scan(&b.ID, &b.Name, &b.WorkspaceID, &b.IsPublic); err != nil {
			return nil, nil, nil, fmt.Errorf("scan board record: %w", err)
		}
		boards = append(boards, b)
	}
	if err := boardRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate board records: %w", err)
	}

	taskRows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.description, b.id, b.workspace_id
		FROM tasks t
		JOIN groups g ON g.id = t.group_id
		JOIN boards b ON b.id = g.board_id
		WHERE t.is_active AND g.is_active AND b.is_active
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	var tasks []TaskRecord
	for taskRows.Next() {
		var t TaskRecord
		if err := taskRows.Scan(&t.ID, &t.Name, &t.Description, &t.BoardID, &t.WorkspaceID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan task record: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate task records: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.body, c.task_id, b.id, b.workspace_id
		FROM task_comments c
		JOIN tasks t ON t.id = c.task_id
		JOIN groups g ON g.id = t.group_id
		JOIN boards b ON b.id = g.board_id
		WHERE t.is_active AND g.is_active AND b.is_active
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	var comments []CommentRecord
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.Body, &c.TaskID, &c.BoardID, &c.WorkspaceID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment record: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comment records: %w", err)
	}

	return boards, tasks, comments, nil
}
