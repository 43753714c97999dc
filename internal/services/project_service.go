package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// ProjectServiceInterface defines project CRUD
type ProjectServiceInterface interface {
	CreateProject(ctx context.Context, name, description string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	GetProject(ctx context.Context, id int) (*models.Project, error)
	UpdateProject(ctx context.Context, id int, name, description string) (*models.Project, error)
	DeleteProject(ctx context.Context, id int) error
}

// ErrProjectExists is returned when a project name is already taken
var ErrProjectExists = contextutils.NewAppError(contextutils.ErrorCodeRecordExists, contextutils.SeverityWarn, "Project already exists", "")

const uniqueViolation = "23505"

// ProjectService stores projects
type ProjectService struct {
	db     *sql.DB
	logger *observability.Logger
}

const projectSelectFields = `id, name, description, created_at`

// NewProjectService creates a new ProjectService
func NewProjectService(db *sql.DB, logger *observability.Logger) *ProjectService {
	return &ProjectService{db: db, logger: logger}
}

func scanProject(row rowScanner) (result0 *models.Project, err error) {
	var p models.Project
	if err = row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullableString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateProject creates a project; a taken name yields ErrProjectExists
func (s *ProjectService) CreateProject(ctx context.Context, name, description string) (result0 *models.Project, err error) {
	ctx, span := observability.TraceProjectFunction(ctx, "create_project", attribute.String("project.name", name))
	defer observability.FinishSpan(span, &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "project name is required")
	}

	project, err := scanProject(s.db.QueryRowContext(ctx,
		`INSERT INTO projects (name, description, created_at) VALUES ($1, $2, NOW()) RETURNING `+projectSelectFields,
		name, nullableString(description)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrProjectExists
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to create project: %v", err)
	}

	s.logger.Info(ctx, "Project created", map[string]interface{}{"project_id": project.ID, "name": project.Name})
	return project, nil
}

// ListProjects lists all projects by id
func (s *ProjectService) ListProjects(ctx context.Context) (result0 []models.Project, err error) {
	ctx, span := observability.TraceProjectFunction(ctx, "list_projects")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+projectSelectFields+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list projects: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	projects := []models.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan project")
		}
		projects = append(projects, *project)
	}
	return projects, rows.Err()
}

// GetProject returns the project or ErrProjectNotFound
func (s *ProjectService) GetProject(ctx context.Context, id int) (result0 *models.Project, err error) {
	ctx, span := observability.TraceProjectFunction(ctx, "get_project", observability.AttributeProjectID(&id))
	defer observability.FinishSpan(span, &err)

	project, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectSelectFields+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrProjectNotFound
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get project %d: %v", id, err)
	}
	return project, nil
}

// UpdateProject renames a project and replaces its description
func (s *ProjectService) UpdateProject(ctx context.Context, id int, name, description string) (result0 *models.Project, err error) {
	ctx, span := observability.TraceProjectFunction(ctx, "update_project", observability.AttributeProjectID(&id))
	defer observability.FinishSpan(span, &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "project name is required")
	}

	project, err := scanProject(s.db.QueryRowContext(ctx,
		`UPDATE projects SET name = $1, description = $2 WHERE id = $3 RETURNING `+projectSelectFields,
		name, nullableString(description), id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, contextutils.ErrProjectNotFound
	case isUniqueViolation(err):
		return nil, ErrProjectExists
	case err != nil:
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to update project %d: %v", id, err)
	}
	return project, nil
}

// DeleteProject removes a project together with its topics and their questions
func (s *ProjectService) DeleteProject(ctx context.Context, id int) (err error) {
	ctx, span := observability.TraceProjectFunction(ctx, "delete_project", observability.AttributeProjectID(&id))
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to delete project %d: %v", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return contextutils.ErrProjectNotFound
	}

	s.logger.Info(ctx, "Project deleted", map[string]interface{}{"project_id": id})
	return nil
}
