package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	EnsureUser(ctx context.Context, userID int) (*models.User, error)
	CreateUserWithPassword(ctx context.Context, username, password string, isAdmin bool) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, userID int, newPassword string) error
	GetAllUsers(ctx context.Context) ([]models.User, error)
	EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

const userSelectFields = `id, username, password_hash, is_admin, created_at, updated_at`

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (result0 *models.User, err error) {
	user := &models.User{}
	if err = row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// getUserByQuery returns nil, nil when no row matches
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (result0 *models.User, err error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return user, nil
}

// EnsureUser returns the user with userID, creating "user_<id>" when it does not exist yet
func (s *UserService) EnsureUser(ctx context.Context, userID int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_user", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if userID <= 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "user_id must be positive")
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil || user != nil {
		return user, err
	}

	username := fmt.Sprintf("user_%d", userID)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) ON CONFLICT DO NOTHING`,
		userID, username)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to create user %d: %v", userID, err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		// Explicit ids bypass the serial sequence; move it past them
		if _, err := s.db.ExecContext(ctx,
			`SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT MAX(id) FROM users), 1))`); err != nil {
			s.logger.Warn(ctx, "Failed to advance users id sequence", map[string]interface{}{"error": err.Error()})
		}
		s.logger.Info(ctx, "Created user on first session", map[string]interface{}{"user_id": userID, "username": username})
	}

	user, err = s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrConflict, "username %s is taken by another user", username)
	}
	return user, nil
}

// CreateUserWithPassword creates a user with a bcrypt password hash
func (s *UserService) CreateUserWithPassword(ctx context.Context, username, password string, isAdmin bool) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user_with_password",
		attribute.String("user.username", username),
		attribute.Bool("user.is_admin", isAdmin),
	)
	defer observability.FinishSpan(span, &err)

	if username == "" || password == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "username and password are required")
	}

	existing, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordExists, "user %s already exists", username)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	query := fmt.Sprintf(`INSERT INTO users (username, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW()) RETURNING %s`, userSelectFields)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username, string(hashedPassword), isAdmin))
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to create user: %v", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID; nil when absent
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", attribute.Int("user.id", id))
	defer observability.FinishSpan(span, &err)

	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userSelectFields)
	return s.getUserByQuery(ctx, query, id)
}

// GetUserByUsername retrieves a user by username; nil when absent
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userSelectFields)
	return s.getUserByQuery(ctx, query, username)
}

// AuthenticateUser checks a username and password. Every failure is ErrInvalidCredentials.
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.PasswordHash.Valid {
		return nil, contextutils.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)); err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}
	return user, nil
}

// UpdateUserPassword replaces a user's password hash
func (s *UserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_password", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	if newPassword == "" {
		return contextutils.ErrorWithContextf("password cannot be empty")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash password")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		string(hashedPassword), time.Now(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update user password")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "user not found")
	}

	s.logger.Info(ctx, "Password updated successfully", map[string]interface{}{"user_id": userID})
	return nil
}

// GetAllUsers lists users ordered by id
func (s *UserService) GetAllUsers(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_all_users")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM users ORDER BY id", userSelectFields))
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list users: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user")
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// EnsureAdminUserExists creates the admin account, or resets its password and admin flag if it drifted
func (s *UserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists", attribute.String("admin.username", adminUsername))
	defer observability.FinishSpan(span, &err)

	if adminUsername == "" {
		return contextutils.ErrorWithContextf("admin username cannot be empty")
	}
	if adminPassword == "" {
		return contextutils.ErrorWithContextf("admin password cannot be empty")
	}

	existingUser, err := s.GetUserByUsername(ctx, adminUsername)
	if err != nil {
		return contextutils.WrapError(err, "failed to check if admin user exists")
	}

	if existingUser == nil {
		if _, err = s.CreateUserWithPassword(ctx, adminUsername, adminPassword, true); err != nil {
			return contextutils.WrapError(err, "failed to create admin user")
		}
		s.logger.Info(ctx, "Created admin user", map[string]interface{}{"username": adminUsername})
		return nil
	}

	if !existingUser.PasswordHash.Valid ||
		bcrypt.CompareHashAndPassword([]byte(existingUser.PasswordHash.String), []byte(adminPassword)) != nil {
		if err = s.UpdateUserPassword(ctx, existingUser.ID, adminPassword); err != nil {
			return err
		}
	}

	if !existingUser.IsAdmin {
		if _, err = s.db.ExecContext(ctx, `UPDATE users SET is_admin = TRUE, updated_at = NOW() WHERE id = $1`, existingUser.ID); err != nil {
			return contextutils.WrapError(err, "failed to grant admin flag")
		}
	}
	return nil
}
