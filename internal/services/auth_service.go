package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
)

// TokenResponse is the OAuth2-style password grant reply
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenClaims are the claims carried by an access token
type TokenClaims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// AuthServiceInterface issues and verifies access tokens
type AuthServiceInterface interface {
	IssueToken(ctx context.Context, username, password string) (*TokenResponse, error)
	VerifyToken(ctx context.Context, token string) (*TokenClaims, error)
}

// AuthService signs HS256 tokens for password-authenticated users
type AuthService struct {
	users  UserServiceInterface
	cfg    config.AuthConfig
	logger *observability.Logger
	now    func() time.Time
}

// NewAuthService creates a new AuthService; cfg.Auth.JWTSecret must be set
func NewAuthService(users UserServiceInterface, cfg *config.Config, logger *observability.Logger) (*AuthService, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "auth.jwt_secret is required")
	}
	authCfg := cfg.Auth
	if authCfg.TokenTTL <= 0 {
		authCfg.TokenTTL = config.DefaultTokenTTL
	}
	if authCfg.Issuer == "" {
		authCfg.Issuer = config.DefaultTokenIssuer
	}
	return &AuthService{users: users, cfg: authCfg, logger: logger, now: time.Now}, nil
}

// IssueToken checks the password and returns a signed bearer token
func (s *AuthService) IssueToken(ctx context.Context, username, password string) (result0 *TokenResponse, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "issue_token", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	user, err := s.users.AuthenticateUser(ctx, username, password)
	if err != nil {
		s.logger.Warn(ctx, "Token request rejected", map[string]interface{}{"username": username})
		return nil, err
	}

	token, err := s.sign(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Access token issued", map[string]interface{}{"user_id": user.ID, "is_admin": user.IsAdmin})
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

func (s *AuthService) sign(user *models.User) (string, error) {
	now := s.now()
	claims := TokenClaims{
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to sign token: %v", err)
	}
	return signed, nil
}

// VerifyToken validates signature, issuer and expiry. Expired tokens yield ErrTokenExpired, anything
// else ErrUnauthorized.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (result0 *TokenClaims, err error) {
	_, span := observability.TraceUserFunction(ctx, "verify_token")
	defer observability.FinishSpan(span, &err)

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, contextutils.ErrTokenExpired
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrUnauthorized, "invalid token: %v", err)
	}
	if !parsed.Valid {
		return nil, contextutils.ErrUnauthorized
	}
	return claims, nil
}

// UserID returns the numeric subject of the token
func (c *TokenClaims) UserID() (int, error) {
	id, err := strconv.Atoi(c.Subject)
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrUnauthorized, "invalid subject %q", c.Subject)
	}
	return id, nil
}
