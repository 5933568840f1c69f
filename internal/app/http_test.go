package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskdeck/api/internal/access"
	"taskdeck/api/internal/auth"
	"taskdeck/api/internal/config"
	"taskdeck/api/internal/ordering"
	"taskdeck/api/internal/store"
)

type fakeStoreForHealth struct {
	fakeStore
	pingFn func(context.Context) error
}

func (f *fakeStoreForHealth) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	fs := &fakeStoreForHealth{
		pingFn: func(context.Context) error {
			return errors.New("connection refused")
		},
	}
	svc := &Service{cfg: config.Config{}, store: fs}
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED code, got %v", response["code"])
	}
}

func authedRequest(t *testing.T, cfg config.Config, method, path string, body string) *http.Request {
	t.Helper()
	token, err := auth.IssueToken([]byte(cfg.JWTSecret), "usr_1", "Avery", "jti_1", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestReorderMismatchReturnsValidationDetails(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	fs := &fakeStore{
		boardContextFn: func(_ context.Context, boardID, _ string) (access.BoardContext, error) {
			return staffContext(boardID), nil
		},
		listChildIDsFn: func(context.Context, ordering.Scope) ([]string, error) {
			return []string{"grp_a", "grp_b"}, nil
		},
	}
	svc := &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		resolver: access.NewResolver(fs),
		engine:   ordering.NewEngine(fs),
	}
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, cfg, http.MethodPost, "/api/boards/brd_1/groups/reorder",
		`{"orderedIds":["grp_a"]}`)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}

	var response struct {
		Code    string `json:"code"`
		Details struct {
			Missing []string `json:"missing"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", response.Code)
	}
	if len(response.Details.Missing) != 1 || response.Details.Missing[0] != "grp_b" {
		t.Fatalf("expected missing grp_b in details, got %v", response.Details.Missing)
	}
}

func TestMissingBoardReturns404NotForbidden(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	fs := &fakeStore{}
	svc := &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		resolver: access.NewResolver(fs),
		engine:   ordering.NewEngine(fs),
	}
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, cfg, http.MethodDelete, "/api/tasks/tsk_missing", "")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing task, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSignInIssuesSessionTokens(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret", AccessTTL: time.Minute, RefreshTTL: time.Hour}
	fs := &fakeStore{}
	svc := &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		resolver: access.NewResolver(fs),
		engine:   ordering.NewEngine(fs),
	}

	user := store.User{ID: "usr_1", DisplayName: "Avery", Email: "avery@example.com"}
	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession() error = %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", session)
	}

	claims, err := auth.ParseToken([]byte(cfg.JWTSecret), session.Token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "usr_1" || claims.Name != "Avery" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}
