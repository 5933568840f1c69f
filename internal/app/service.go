package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdeck/api/internal/access"
	"taskdeck/api/internal/auth"
	"taskdeck/api/internal/authpw"
	"taskdeck/api/internal/config"
	"taskdeck/api/internal/email"
	"taskdeck/api/internal/export"
	"taskdeck/api/internal/ordering"
	"taskdeck/api/internal/search"
	"taskdeck/api/internal/store"
	"taskdeck/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service drives. *store.PostgresStore
// implements it; tests substitute a fake.
type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	CreateWorkspace(context.Context, store.Workspace) error
	GetWorkspace(context.Context, string) (store.Workspace, error)
	ListWorkspacesForUser(context.Context, string) ([]store.Workspace, error)
	GetWorkspaceMember(context.Context, string, string) (store.WorkspaceMember, error)
	UpsertWorkspaceMember(context.Context, store.WorkspaceMember) error
	DeactivateWorkspaceMember(context.Context, string, string) (bool, error)
	ListWorkspaceMembers(context.Context, string) ([]store.WorkspaceMember, error)

	CreateInvitation(context.Context, store.Invitation) error
	GetInvitationByToken(context.Context, string) (store.Invitation, error)
	MarkInvitationAccepted(context.Context, string) (bool, error)

	CreateBoard(context.Context, store.Board) error
	GetBoard(context.Context, string) (store.Board, error)
	UpdateBoard(context.Context, string, string, bool) (bool, error)
	SoftDeleteBoard(context.Context, string) (bool, error)
	ListBoardsForUser(context.Context, string, string) ([]store.Board, error)
	UpsertBoardMember(context.Context, store.BoardMember) error
	RemoveBoardMember(context.Context, string, string) (bool, error)
	ListBoardMembers(context.Context, string) ([]store.BoardMember, error)

	CreateGroup(context.Context, store.Group) error
	RenameGroup(context.Context, string, string) (bool, error)
	SoftDeleteGroup(context.Context, string) (bool, error)
	ListGroups(context.Context, string) ([]store.Group, error)

	CreateColumn(context.Context, store.Column) error
	RenameColumn(context.Context, string, string) (bool, error)
	DeleteColumn(context.Context, string) (bool, error)
	ListColumns(context.Context, string) ([]store.Column, error)

	CreateTask(context.Context, store.Task) error
	GetTask(context.Context, string) (store.Task, error)
	UpdateTask(context.Context, store.Task) (bool, error)
	SoftDeleteTask(context.Context, string) (bool, error)
	ListTasks(context.Context, string) ([]store.Task, error)
	ListTasksForBoard(context.Context, string) ([]store.Task, error)

	CreateSubTask(context.Context, store.SubTask) error
	GetSubTask(context.Context, string) (store.SubTask, error)
	UpdateSubTask(context.Context, string, string, bool) (bool, error)
	DeleteSubTask(context.Context, string) (bool, error)
	ListSubTasks(context.Context, string) ([]store.SubTask, error)

	CreateTaskComment(context.Context, store.TaskComment) error
	ListTaskComments(context.Context, string) ([]store.TaskComment, error)

	InsertActivity(context.Context, store.ActivityEntry) error
	ListActivity(context.Context, string, int) ([]store.ActivityEntry, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Redis when configured, Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	resolver *access.Resolver
	engine   *ordering.Engine
	accounts *authpw.Service
	search   *search.Service
	email    *email.Service
	export   *export.Service
}

func New(cfg config.Config, pg *store.PostgresStore, sessions sessionStore, searchSvc *search.Service, emailSvc *email.Service) *Service {
	if sessions == nil {
		sessions = pg
	}
	return &Service{
		cfg:      cfg,
		store:    pg,
		sessions: sessions,
		resolver: access.NewResolver(pg),
		engine:   ordering.NewEngine(pg),
		accounts: authpw.NewService(pg),
		search:   searchSvc,
		email:    emailSvc,
		export:   export.NewService(pg),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Sessions ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (map[string]any, error) {
	resp, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	if s.email != nil && s.email.IsConfigured() {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.AppBaseURL, resp.VerificationToken)
		go func() {
			if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, verifyURL); err != nil {
				log.Printf("app: send verification email to %s: %v", req.Email, err)
			}
		}()
	}

	return map[string]any{
		"userId":              resp.UserID,
		"requiresEmailVerify": resp.RequiresEmailVerify,
	}, nil
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	resp, err := s.accounts.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Email address not verified", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if err := s.accounts.VerifyEmail(ctx, token); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	token, err := s.accounts.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return err
	}
	if token == "" {
		// Unknown address; pretend success.
		return nil
	}

	if s.email != nil && s.email.IsConfigured() {
		user, err := s.store.GetUserByEmail(ctx, emailAddr)
		if err != nil {
			return nil
		}
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.AppBaseURL, token)
		go func() {
			if err := s.email.SendPasswordResetEmail(user.Email, user.DisplayName, resetURL); err != nil {
				log.Printf("app: send password reset email to %s: %v", user.Email, err)
			}
		}()
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	if err := s.accounts.ResetPassword(ctx, req); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- Workspaces ---

func (s *Service) CreateWorkspace(ctx context.Context, actorID, name, defaultCurrency string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}

	workspace := store.Workspace{
		ID:              util.NewID("ws"),
		Slug:            slugify(name),
		Name:            name,
		DefaultCurrency: defaultCurrency,
	}
	if err := s.store.CreateWorkspace(ctx, workspace); err != nil {
		return nil, err
	}

	// Creator becomes the first admin.
	member := store.WorkspaceMember{
		WorkspaceID: workspace.ID,
		UserID:      actorID,
		Role:        string(access.RoleOwnerAdmin),
		IsActive:    true,
	}
	if err := s.store.UpsertWorkspaceMember(ctx, member); err != nil {
		return nil, err
	}

	return map[string]any{
		"id":              workspace.ID,
		"slug":            workspace.Slug,
		"name":            workspace.Name,
		"defaultCurrency": workspace.DefaultCurrency,
	}, nil
}

func (s *Service) ListWorkspaces(ctx context.Context, actorID string) ([]map[string]any, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(workspaces))
	for _, workspace := range workspaces {
		out = append(out, map[string]any{
			"id":              workspace.ID,
			"slug":            workspace.Slug,
			"name":            workspace.Name,
			"defaultCurrency": workspace.DefaultCurrency,
		})
	}
	return out, nil
}

// requireWorkspaceRole loads the actor's active membership and checks it
// against the allowed roles.
func (s *Service) requireWorkspaceRole(ctx context.Context, workspaceID, actorID string, roles ...access.Role) (store.WorkspaceMember, error) {
	member, err := s.store.GetWorkspaceMember(ctx, workspaceID, actorID)
	if err != nil || !member.IsActive {
		return store.WorkspaceMember{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	for _, role := range roles {
		if access.Role(member.Role) == role {
			return member, nil
		}
	}
	return store.WorkspaceMember{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *Service) ListWorkspaceMembers(ctx context.Context, workspaceID, actorID string) ([]map[string]any, error) {
	member, err := s.store.GetWorkspaceMember(ctx, workspaceID, actorID)
	if err != nil || !member.IsActive {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	members, err := s.store.ListWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]any{
			"userId": m.UserID,
			"name":   m.UserName,
			"email":  m.UserEmail,
			"role":   m.Role,
		})
	}
	return out, nil
}

func (s *Service) SetWorkspaceMemberRole(ctx context.Context, workspaceID, actorID, userID, role string) error {
	if _, err := s.requireWorkspaceRole(ctx, workspaceID, actorID, access.RoleOwnerAdmin); err != nil {
		return err
	}
	if !access.ValidRole(access.Role(role)) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown role", nil)
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return s.store.UpsertWorkspaceMember(ctx, store.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		IsActive:    true,
	})
}

func (s *Service) RemoveWorkspaceMember(ctx context.Context, workspaceID, actorID, userID string) error {
	if _, err := s.requireWorkspaceRole(ctx, workspaceID, actorID, access.RoleOwnerAdmin); err != nil {
		return err
	}
	if actorID == userID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot remove yourself", nil)
	}
	removed, err := s.store.DeactivateWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Member not found", nil)
	}
	return nil
}

// --- Invitations ---

func (s *Service) InviteToWorkspace(ctx context.Context, workspaceID, actorID, emailAddr, role string) (map[string]any, error) {
	if _, err := s.requireWorkspaceRole(ctx, workspaceID, actorID, access.RoleOwnerAdmin); err != nil {
		return nil, err
	}
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "valid email is required", nil)
	}
	if !access.ValidRole(access.Role(role)) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown role", nil)
	}

	invitation := store.Invitation{
		ID:          util.NewID("inv"),
		WorkspaceID: workspaceID,
		Email:       emailAddr,
		Role:        role,
		Token:       util.NewID("ivt") + util.NewID(""),
		InvitedBy:   actorID,
	}
	if err := s.store.CreateInvitation(ctx, invitation); err != nil {
		return nil, err
	}

	if s.email != nil && s.email.IsConfigured() {
		workspace, wsErr := s.store.GetWorkspace(ctx, workspaceID)
		inviter, usrErr := s.store.GetUserByID(ctx, actorID)
		if wsErr == nil && usrErr == nil {
			acceptURL := fmt.Sprintf("%s/invitations/accept?token=%s", s.cfg.AppBaseURL, invitation.Token)
			go func() {
				if err := s.email.SendInvitationEmail(emailAddr, workspace.Name, inviter.DisplayName, acceptURL); err != nil {
					log.Printf("app: send invitation email to %s: %v", emailAddr, err)
				}
			}()
		}
	}

	return map[string]any{
		"id":    invitation.ID,
		"email": invitation.Email,
		"role":  invitation.Role,
		"token": invitation.Token,
	}, nil
}

func (s *Service) AcceptInvitation(ctx context.Context, actorID, token string) (map[string]any, error) {
	invitation, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation.AcceptedAt != nil {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Invitation already accepted", nil)
	}

	user, err := s.store.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, invitation.Email) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Invitation was issued for a different address", nil)
	}

	if err := s.store.UpsertWorkspaceMember(ctx, store.WorkspaceMember{
		WorkspaceID: invitation.WorkspaceID,
		UserID:      actorID,
		Role:        invitation.Role,
		IsActive:    true,
	}); err != nil {
		return nil, err
	}
	if _, err := s.store.MarkInvitationAccepted(ctx, invitation.ID); err != nil {
		return nil, err
	}

	return map[string]any{
		"workspaceId": invitation.WorkspaceID,
		"role":        invitation.Role,
	}, nil
}

// --- Helpers ---

// requireEdit resolves the actor's level on the target and rejects anything
// below Edit. NotFound from the resolver passes through untouched so the
// transport can answer 404 instead of 403.
func (s *Service) requireEdit(ctx context.Context, actorID string, ref access.Ref) (access.Decision, error) {
	decision, err := s.resolver.Resolve(ctx, actorID, ref)
	if err != nil {
		return access.Decision{}, err
	}
	if !decision.CanEdit() {
		return access.Decision{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return decision, nil
}

func (s *Service) requireRead(ctx context.Context, actorID string, ref access.Ref) (access.Decision, error) {
	decision, err := s.resolver.Resolve(ctx, actorID, ref)
	if err != nil {
		return access.Decision{}, err
	}
	if !decision.CanRead() {
		return access.Decision{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return decision, nil
}

// recordActivity appends to the activity log after a successful mutation.
// Failures are logged and swallowed; the mutation has already been committed.
func (s *Service) recordActivity(ctx context.Context, board access.BoardContext, actorID, action, entityType, entityID string, detail map[string]any) {
	entry := store.ActivityEntry{
		WorkspaceID: board.WorkspaceID,
		BoardID:     board.BoardID,
		ActorID:     actorID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Detail:      detail,
	}
	if err := s.store.InsertActivity(ctx, entry); err != nil {
		log.Printf("app: record activity %s %s/%s: %v", action, entityType, entityID, err)
	}
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "workspace"
	}
	// Suffix keeps slugs unique without a lookup.
	return slug + "-" + util.NewID("")[1:7]
}
