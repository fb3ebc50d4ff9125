package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"time"

	"filmware-sync/internal/domain"
	"filmware-sync/internal/errors"
	"filmware-sync/internal/record"
	"filmware-sync/internal/stream"
	"filmware-sync/internal/utils"
	"filmware-sync/internal/worker"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// dummyHash is compared against when the email is unknown, so a login
// attempt costs the same with or without a matching account.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

const tokenBytes = 32

// Snapshot is one session's authorization state at configure time: the
// account's primary user, every user merged into the account, and every
// project any of them can currently see.
type Snapshot struct {
	User     uuid.UUID
	Users    []uuid.UUID
	Projects []uuid.UUID
}

// Service defines the interface for identity business logic
type Service interface {
	Register(ctx context.Context, name, email, password string) (*domain.Account, error)
	VerifyPassword(ctx context.Context, email, password string) (*domain.Account, error)
	MintSession(ctx context.Context, account uuid.UUID) (*domain.Session, error)
	ValidateSession(ctx context.Context, session uuid.UUID, token []byte) (*domain.Session, error)
	InvalidateSession(ctx context.Context, session uuid.UUID) error
	InvalidateAccountSessions(ctx context.Context, account uuid.UUID) error
	Snapshot(ctx context.Context, account uuid.UUID) (*Snapshot, error)
	CreateProject(ctx context.Context, user uuid.UUID, name string) (*domain.Project, error)
	GrantPermission(ctx context.Context, author, user, project uuid.UUID, kind string, enable bool) (*domain.Permission, error)
}

type ServiceImpl struct {
	repo       Repository
	publisher  record.Publisher
	pool       *worker.Pool
	srvID      string
	sessionTTL time.Duration
}

// NewService creates a new identity service
func NewService(repo Repository, publisher record.Publisher, pool *worker.Pool, srvID string, sessionTTL time.Duration) Service {
	return &ServiceImpl{repo: repo, publisher: publisher, pool: pool, srvID: srvID, sessionTTL: sessionTTL}
}

func (s *ServiceImpl) publish(events ...stream.Event) {
	s.pool.Submit(func(ctx context.Context) error {
		for _, ev := range events {
			if err := s.publisher.Publish(ctx, ev); err != nil {
				return fmt.Errorf("publish %s event: %w", ev.Type(), err)
			}
		}
		return nil
	})
}

// Register creates an account with its primary user
func (s *ServiceImpl) Register(ctx context.Context, name, email, password string) (*domain.Account, error) {
	_, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		return nil, errors.ErrUnprocessableEntity(nil).WithMessage("Email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.ErrUnprocessableEntity(err)
	}

	now := utils.Now()
	account := &domain.Account{
		Account:        uuid.New(),
		User:           uuid.New(),
		Name:           name,
		Email:          email,
		PasswordHash:   string(hashedPassword),
		SrvID:          s.srvID,
		SubmissionTime: now,
	}
	user := &domain.User{
		User:           account.User,
		Account:        account.Account,
		SrvID:          s.srvID,
		SubmissionTime: now,
	}
	if err := s.repo.CreateAccountWithUser(ctx, account, user); err != nil {
		return nil, err
	}

	s.publish(record.AccountEvent(*account), record.UserEvent(*user))
	return account, nil
}

// VerifyPassword authenticates an account by email and password. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *ServiceImpl) VerifyPassword(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			// burn a comparison anyway
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, errors.NewUserError("bad credentials")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, errors.NewUserError("bad credentials")
	}
	return account, nil
}

// MintSession issues a fresh session grant for an account. The expiry is
// fixed now; activity does not extend it.
func (s *ServiceImpl) MintSession(ctx context.Context, account uuid.UUID) (*domain.Session, error) {
	token := make([]byte, tokenBytes)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}

	session := &domain.Session{
		Session: uuid.New(),
		Token:   token,
		Account: account,
		Expiry:  utils.Now().Add(s.sessionTTL),
		Valid:   true,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.publish(record.SessionEvent(*session))
	return session, nil
}

// ValidateSession checks a resumed session grant: the token must match
// byte for byte and the session must be live.
func (s *ServiceImpl) ValidateSession(ctx context.Context, sessionID uuid.UUID, token []byte) (*domain.Session, error) {
	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewUserError("bad credentials")
		}
		return nil, err
	}
	if !session.Valid || !bytes.Equal(session.Token, token) {
		return nil, errors.NewUserError("bad credentials")
	}
	if utils.Now().After(session.Expiry) {
		return nil, errors.NewUserError("session expired")
	}
	return session, nil
}

// InvalidateSession flips a session dead and announces it, booting any
// connection configured against it.
func (s *ServiceImpl) InvalidateSession(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Valid {
		return nil
	}
	if err := s.repo.InvalidateSession(ctx, sessionID); err != nil {
		return err
	}
	session.Valid = false
	s.publish(record.SessionEvent(*session))
	return nil
}

// InvalidateAccountSessions kills every live websocket grant of an account
// and announces each one, booting the account's open connections. Called on
// logout so a revoked login cannot keep streaming.
func (s *ServiceImpl) InvalidateAccountSessions(ctx context.Context, account uuid.UUID) error {
	sessions, err := s.repo.InvalidateAccountSessions(ctx, account)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	events := make([]stream.Event, 0, len(sessions))
	for _, sess := range sessions {
		events = append(events, record.SessionEvent(sess))
	}
	s.publish(events...)
	return nil
}

// Snapshot computes an account's authorization state. The account's
// primary user must still point back at the account; when it doesn't, the
// account has been folded into another one and can no longer log in.
func (s *ServiceImpl) Snapshot(ctx context.Context, accountID uuid.UUID) (*Snapshot, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	primary, err := s.repo.FindUserByID(ctx, account.User)
	if err != nil {
		return nil, err
	}
	if primary.Account != account.Account {
		return nil, errors.NewUserError("account has been invalidated by a merge")
	}

	users, err := s.repo.UsersByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		userIDs = append(userIDs, u.User)
	}

	perms, err := s.repo.PermissionsForUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	// replay the permission log; the last enable/disable per (user,
	// project) wins
	type grant struct{ user, project uuid.UUID }
	state := make(map[grant]bool)
	for _, p := range perms {
		state[grant{p.User, p.Project}] = p.Enable
	}
	projectSet := make(map[uuid.UUID]struct{})
	for g, enabled := range state {
		if enabled {
			projectSet[g.project] = struct{}{}
		}
	}
	projects := make([]uuid.UUID, 0, len(projectSet))
	for p := range projectSet {
		projects = append(projects, p)
	}

	return &Snapshot{User: account.User, Users: userIDs, Projects: projects}, nil
}

// CreateProject creates a project and grants its creator access
func (s *ServiceImpl) CreateProject(ctx context.Context, user uuid.UUID, name string) (*domain.Project, error) {
	project := &domain.Project{
		Project:        uuid.New(),
		Name:           name,
		User:           user,
		SrvID:          s.srvID,
		SubmissionTime: utils.Now(),
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	s.publish(record.ProjectEvent(*project))

	// the creator can always see their own project
	if _, err := s.GrantPermission(ctx, user, user, project.Project, "member", true); err != nil {
		return nil, err
	}
	return project, nil
}

// GrantPermission appends one enable/disable row to the permission log
func (s *ServiceImpl) GrantPermission(ctx context.Context, author, user, project uuid.UUID, kind string, enable bool) (*domain.Permission, error) {
	perm := &domain.Permission{
		Version:        uuid.New(),
		User:           user,
		Project:        project,
		Kind:           kind,
		Enable:         enable,
		Author:         author,
		SrvID:          s.srvID,
		SubmissionTime: utils.Now(),
	}
	if err := s.repo.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}

	s.publish(record.PermissionEvent(*perm))
	return perm, nil
}
