package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"filmware-sync/auth"
	"filmware-sync/internal/config"
	"filmware-sync/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redisLib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context, name, email, password string) (*domain.Account, error) {
	args := m.Called(ctx, name, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockService) VerifyPassword(ctx context.Context, email, password string) (*domain.Account, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockService) MintSession(ctx context.Context, account uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockService) ValidateSession(ctx context.Context, session uuid.UUID, token []byte) (*domain.Session, error) {
	args := m.Called(ctx, session, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockService) InvalidateSession(ctx context.Context, session uuid.UUID) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockService) InvalidateAccountSessions(ctx context.Context, account uuid.UUID) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockService) Snapshot(ctx context.Context, account uuid.UUID) (*Snapshot, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Snapshot), args.Error(1)
}

func (m *MockService) CreateProject(ctx context.Context, user uuid.UUID, name string) (*domain.Project, error) {
	args := m.Called(ctx, user, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Project), args.Error(1)
}

func (m *MockService) GrantPermission(ctx context.Context, author, user, project uuid.UUID, kind string, enable bool) (*domain.Permission, error) {
	args := m.Called(ctx, author, user, project, kind, enable)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Permission), args.Error(1)
}

func testAuth(t *testing.T) (*auth.Auth, *redisLib.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisLib.NewClient(&redisLib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cfg := &config.Config{JWTSecret: "test-secret", SessionTTL: time.Hour}
	return auth.New(cfg, client), client
}

// TestLogout_InvalidatesWebsocketSessions tests that logging out kills the
// account's live sync sessions and revokes the bearer token
func TestLogout_InvalidatesWebsocketSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockService := new(MockService)
	authManager, redisClient := testAuth(t)
	handler := NewHandler(mockService, authManager)

	account := uuid.New()
	token, err := authManager.GenerateJWT(account)
	require.NoError(t, err)
	require.NoError(t, authManager.StoreToken(context.Background(), token))

	mockService.On("InvalidateAccountSessions", mock.Anything, account).Return(nil)

	router := gin.New()
	router.DELETE("/logout", func(c *gin.Context) {
		c.Set("account_id", account)
		c.Set("jwt_token", token)
		handler.Logout(c)
	})

	req := httptest.NewRequest("DELETE", "/logout", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockService.AssertExpectations(t)

	// the token is gone from redis, so the middleware rejects it next time
	exists, err := redisClient.Exists(context.Background(), token).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
