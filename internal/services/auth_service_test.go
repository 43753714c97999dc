package services

import (
	"context"
	"testing"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) EnsureUser(ctx context.Context, userID int) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) CreateUserWithPassword(ctx context.Context, username, password string, isAdmin bool) (*models.User, error) {
	args := m.Called(ctx, username, password, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) error {
	return m.Called(ctx, userID, newPassword).Error(0)
}

func (m *mockUserService) GetAllUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *mockUserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error {
	return m.Called(ctx, adminUsername, adminPassword).Error(0)
}

func newTestAuthService(t *testing.T, users UserServiceInterface, secret string) *AuthService {
	t.Helper()
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{JWTSecret: secret, TokenTTL: time.Hour, Issuer: "test-issuer"}
	service, err := NewAuthService(users, cfg, testLogger())
	require.NoError(t, err)
	return service
}

func TestAuthService_IssueAndVerify(t *testing.T) {
	users := &mockUserService{}
	users.On("AuthenticateUser", mock.Anything, "admin", "s3cret").Return(&models.User{ID: 42, Username: "admin", IsAdmin: true}, nil)
	service := newTestAuthService(t, users, "signing-key")

	token, err := service.IssueToken(context.Background(), "admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := service.VerifyToken(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.IsAdmin)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, 42, id)
}

func TestAuthService_BadPassword(t *testing.T) {
	users := &mockUserService{}
	users.On("AuthenticateUser", mock.Anything, "admin", "wrong").Return(nil, contextutils.ErrInvalidCredentials)
	service := newTestAuthService(t, users, "signing-key")

	_, err := service.IssueToken(context.Background(), "admin", "wrong")
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidCredentials))
}

func TestAuthService_ExpiredToken(t *testing.T) {
	users := &mockUserService{}
	users.On("AuthenticateUser", mock.Anything, mock.Anything, mock.Anything).Return(&models.User{ID: 1, Username: "rep"}, nil)
	service := newTestAuthService(t, users, "signing-key")

	issuedAt := time.Now().Add(-2 * time.Hour)
	service.now = func() time.Time { return issuedAt }
	token, err := service.IssueToken(context.Background(), "rep", "pw")
	require.NoError(t, err)

	service.now = time.Now
	_, err = service.VerifyToken(context.Background(), token.AccessToken)
	assert.True(t, contextutils.IsError(err, contextutils.ErrTokenExpired), "got %v", err)
}

func TestAuthService_RejectsForeignTokens(t *testing.T) {
	service := newTestAuthService(t, &mockUserService{}, "signing-key")

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		Username:         "mallory",
		IsAdmin:          true,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "test-issuer", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("other-key"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{
		Username:         "mallory",
		IsAdmin:          true,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "test-issuer"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		Username:         "mallory",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"},
	}).SignedString([]byte("signing-key"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong key":    otherKey,
		"alg none":     unsigned,
		"wrong issuer": wrongIssuer,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := service.VerifyToken(context.Background(), token)
			assert.True(t, contextutils.IsError(err, contextutils.ErrUnauthorized), "got %v", err)
		})
	}
}

func TestNewAuthService_RequiresSecret(t *testing.T) {
	_, err := NewAuthService(&mockUserService{}, testConfig(), testLogger())
	assert.True(t, contextutils.IsError(err, contextutils.ErrMissingRequired))
}
