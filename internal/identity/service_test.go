package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"filmware-sync/internal/domain"
	"filmware-sync/internal/errors"
	"filmware-sync/internal/stream"
	"filmware-sync/internal/utils"
	"filmware-sync/internal/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockRepository) CreateAccountWithUser(ctx context.Context, account *domain.Account, user *domain.User) error {
	args := m.Called(ctx, account, user)
	return args.Error(0)
}

func (m *MockRepository) UsersByAccount(ctx context.Context, account uuid.UUID) ([]domain.User, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockRepository) PermissionsForUsers(ctx context.Context, users []uuid.UUID) ([]domain.Permission, error) {
	args := m.Called(ctx, users)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Permission), args.Error(1)
}

func (m *MockRepository) CreatePermission(ctx context.Context, perm *domain.Permission) error {
	args := m.Called(ctx, perm)
	return args.Error(0)
}

func (m *MockRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockRepository) SessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockRepository) InvalidateSession(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) InvalidateAccountSessions(ctx context.Context, account uuid.UUID) ([]domain.Session, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

type collectingPublisher struct {
	mu     sync.Mutex
	events []stream.Event
}

func (p *collectingPublisher) Publish(_ context.Context, ev stream.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *collectingPublisher) all() []stream.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stream.Event(nil), p.events...)
}

func newTestService(repo Repository, publisher *collectingPublisher) (Service, *worker.Pool) {
	pool := worker.NewPool(1)
	return NewService(repo, publisher, pool, "srv-1", 7*24*time.Hour), pool
}

// TestRegister_HashesPasswordAndPublishes tests that registration stores a
// bcrypt hash and announces the account and user
func TestRegister_HashesPasswordAndPublishes(t *testing.T) {
	repo := new(MockRepository)
	publisher := &collectingPublisher{}
	service, pool := newTestService(repo, publisher)

	repo.On("FindAccountByEmail", mock.Anything, "dp@example.com").Return(nil, gorm.ErrRecordNotFound)
	repo.On("CreateAccountWithUser", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	account, err := service.Register(context.Background(), "DP", "dp@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("hunter22")))
	assert.NotEqual(t, uuid.Nil, account.Account)
	assert.NotEqual(t, uuid.Nil, account.User)

	pool.Shutdown()
	got := publisher.all()
	require.Len(t, got, 2)
	assert.Equal(t, stream.KindAccount, got[0].Type())
	assert.Equal(t, stream.KindUser, got[1].Type())
	repo.AssertExpectations(t)
}

// TestRegister_DuplicateEmail tests rejection of an already-used email
func TestRegister_DuplicateEmail(t *testing.T) {
	repo := new(MockRepository)
	service, pool := newTestService(repo, &collectingPublisher{})
	defer pool.Shutdown()

	existing := &domain.Account{Account: uuid.New(), Email: "dp@example.com"}
	repo.On("FindAccountByEmail", mock.Anything, "dp@example.com").Return(existing, nil)

	_, err := service.Register(context.Background(), "DP", "dp@example.com", "hunter22")
	require.Error(t, err)
	repo.AssertNotCalled(t, "CreateAccountWithUser", mock.Anything, mock.Anything, mock.Anything)
}

// TestVerifyPassword tests the password check for known and unknown emails
func TestVerifyPassword(t *testing.T) {
	repo := new(MockRepository)
	service, pool := newTestService(repo, &collectingPublisher{})
	defer pool.Shutdown()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	account := &domain.Account{Account: uuid.New(), Email: "dp@example.com", PasswordHash: string(hash)}
	repo.On("FindAccountByEmail", mock.Anything, "dp@example.com").Return(account, nil)
	repo.On("FindAccountByEmail", mock.Anything, "nobody@example.com").Return(nil, gorm.ErrRecordNotFound)

	got, err := service.VerifyPassword(context.Background(), "dp@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, account.Account, got.Account)

	_, err = service.VerifyPassword(context.Background(), "dp@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.IsUserError(err))

	// an unknown email must produce the same error as a wrong password
	_, unknownErr := service.VerifyPassword(context.Background(), "nobody@example.com", "hunter22")
	require.Error(t, unknownErr)
	assert.Equal(t, err.Error(), unknownErr.Error())
}

// TestMintSession tests that a minted session carries a random token and a
// fixed expiry, and is announced
func TestMintSession(t *testing.T) {
	repo := new(MockRepository)
	publisher := &collectingPublisher{}
	service, pool := newTestService(repo, publisher)

	account := uuid.New()
	repo.On("CreateSession", mock.Anything, mock.Anything).Return(nil)

	session, err := service.MintSession(context.Background(), account)
	require.NoError(t, err)
	assert.Len(t, session.Token, tokenBytes)
	assert.True(t, session.Valid)
	assert.WithinDuration(t, utils.Now().Add(7*24*time.Hour), session.Expiry, time.Minute)

	pool.Shutdown()
	got := publisher.all()
	require.Len(t, got, 1)
	assert.Equal(t, stream.KindSession, got[0].Type())
	assert.Equal(t, session.Session.String(), got[0].String("session"))
}

// TestValidateSession tests the resume path: token mismatch, invalidated
// sessions, and expiry are all bad credentials
func TestValidateSession(t *testing.T) {
	repo := new(MockRepository)
	service, pool := newTestService(repo, &collectingPublisher{})
	defer pool.Shutdown()

	good := &domain.Session{
		Session: uuid.New(),
		Token:   []byte("0123456789abcdef0123456789abcdef"),
		Account: uuid.New(),
		Expiry:  utils.Now().Add(time.Hour),
		Valid:   true,
	}
	stale := &domain.Session{Session: uuid.New(), Token: good.Token, Expiry: utils.Now().Add(-time.Hour), Valid: true}
	dead := &domain.Session{Session: uuid.New(), Token: good.Token, Expiry: good.Expiry, Valid: false}

	repo.On("SessionByID", mock.Anything, good.Session).Return(good, nil)
	repo.On("SessionByID", mock.Anything, stale.Session).Return(stale, nil)
	repo.On("SessionByID", mock.Anything, dead.Session).Return(dead, nil)

	got, err := service.ValidateSession(context.Background(), good.Session, good.Token)
	require.NoError(t, err)
	assert.Equal(t, good.Account, got.Account)

	_, err = service.ValidateSession(context.Background(), good.Session, []byte("wrong token"))
	assert.True(t, errors.IsUserError(err))

	_, err = service.ValidateSession(context.Background(), stale.Session, stale.Token)
	assert.True(t, errors.IsUserError(err))

	_, err = service.ValidateSession(context.Background(), dead.Session, dead.Token)
	assert.True(t, errors.IsUserError(err))
}

// TestInvalidateSession_PublishesDeadSession tests that invalidation
// announces the session with valid=false
func TestInvalidateSession_PublishesDeadSession(t *testing.T) {
	repo := new(MockRepository)
	publisher := &collectingPublisher{}
	service, pool := newTestService(repo, publisher)

	session := &domain.Session{Session: uuid.New(), Valid: true}
	repo.On("SessionByID", mock.Anything, session.Session).Return(session, nil)
	repo.On("InvalidateSession", mock.Anything, session.Session).Return(nil)

	require.NoError(t, service.InvalidateSession(context.Background(), session.Session))

	pool.Shutdown()
	got := publisher.all()
	require.Len(t, got, 1)
	assert.Equal(t, stream.KindSession, got[0].Type())
	assert.False(t, got[0].Bool("valid"))
}

// TestInvalidateAccountSessions_PublishesEachKill tests that logging out
// announces every killed session so open connections get booted
func TestInvalidateAccountSessions_PublishesEachKill(t *testing.T) {
	repo := new(MockRepository)
	publisher := &collectingPublisher{}
	service, pool := newTestService(repo, publisher)

	account := uuid.New()
	killed := []domain.Session{
		{Session: uuid.New(), Account: account, Valid: false},
		{Session: uuid.New(), Account: account, Valid: false},
	}
	repo.On("InvalidateAccountSessions", mock.Anything, account).Return(killed, nil)

	require.NoError(t, service.InvalidateAccountSessions(context.Background(), account))

	pool.Shutdown()
	got := publisher.all()
	require.Len(t, got, 2)
	for i, ev := range got {
		assert.Equal(t, stream.KindSession, ev.Type())
		assert.Equal(t, killed[i].Session.String(), ev.String("session"))
		assert.False(t, ev.Bool("valid"))
	}
}

// TestSnapshot_PermissionReplay tests that the project set is the replay
// of the permission log, last write per (user, project) winning
func TestSnapshot_PermissionReplay(t *testing.T) {
	repo := new(MockRepository)
	service, pool := newTestService(repo, &collectingPublisher{})
	defer pool.Shutdown()

	accountID := uuid.New()
	userID := uuid.New()
	keptProject := uuid.New()
	revokedProject := uuid.New()

	account := &domain.Account{Account: accountID, User: userID}
	repo.On("FindAccountByID", mock.Anything, accountID).Return(account, nil)
	repo.On("FindUserByID", mock.Anything, userID).Return(&domain.User{User: userID, Account: accountID}, nil)
	repo.On("UsersByAccount", mock.Anything, accountID).Return([]domain.User{{User: userID, Account: accountID}}, nil)

	base := utils.Now()
	perms := []domain.Permission{
		{User: userID, Project: keptProject, Enable: true, SubmissionTime: base},
		{User: userID, Project: revokedProject, Enable: true, SubmissionTime: base.Add(time.Second)},
		{User: userID, Project: revokedProject, Enable: false, SubmissionTime: base.Add(2 * time.Second)},
	}
	repo.On("PermissionsForUsers", mock.Anything, []uuid.UUID{userID}).Return(perms, nil)

	snapshot, err := service.Snapshot(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, userID, snapshot.User)
	assert.Equal(t, []uuid.UUID{userID}, snapshot.Users)
	assert.Equal(t, []uuid.UUID{keptProject}, snapshot.Projects)
}

// TestSnapshot_MergedAccountRejected tests that an account whose primary
// user was moved to another account can no longer produce a snapshot
func TestSnapshot_MergedAccountRejected(t *testing.T) {
	repo := new(MockRepository)
	service, pool := newTestService(repo, &collectingPublisher{})
	defer pool.Shutdown()

	accountID := uuid.New()
	userID := uuid.New()
	account := &domain.Account{Account: accountID, User: userID}
	repo.On("FindAccountByID", mock.Anything, accountID).Return(account, nil)
	repo.On("FindUserByID", mock.Anything, userID).Return(&domain.User{User: userID, Account: uuid.New()}, nil)

	_, err := service.Snapshot(context.Background(), accountID)
	require.Error(t, err)
	assert.True(t, errors.IsUserError(err))
	assert.Contains(t, err.Error(), "merge")
}
