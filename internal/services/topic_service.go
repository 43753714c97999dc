package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// TopicServiceInterface defines topic lookups and the per-project upsert used by ingestion
type TopicServiceInterface interface {
	GetTopic(ctx context.Context, id int) (*models.Topic, error)
	RandomTopic(ctx context.Context, projectID *int) (*models.Topic, error)
	ListTopics(ctx context.Context, projectID *int) ([]models.Topic, error)
	UpsertTopic(ctx context.Context, projectID *int, name, description string) (*models.Topic, bool, error)
}

// TopicService stores topics. Names are unique within a project, and "no project" is one scope.
type TopicService struct {
	db     *sql.DB
	logger *observability.Logger
}

const topicSelectFields = `id, project_id, name, description, created_at`

// NewTopicService creates a new TopicService
func NewTopicService(db *sql.DB, logger *observability.Logger) *TopicService {
	return &TopicService{db: db, logger: logger}
}

func scanTopic(row rowScanner) (result0 *models.Topic, err error) {
	var t models.Topic
	var projectID sql.NullInt64
	if err = row.Scan(&t.ID, &projectID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ProjectID = nullInt64ToIntPointer(projectID)
	return &t, nil
}

// GetTopic returns the topic or nil when it does not exist
func (s *TopicService) GetTopic(ctx context.Context, id int) (result0 *models.Topic, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "get_topic", observability.AttributeTopicID(id))
	defer observability.FinishSpan(span, &err)

	topic, err := scanTopic(s.db.QueryRowContext(ctx, `SELECT `+topicSelectFields+` FROM topics WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to get topic %d: %v", id, err)
	}
	return topic, nil
}

// RandomTopic picks a topic uniformly at random from the project's topics, or from all topics when
// projectID is nil. Returns nil when the scope is empty.
func (s *TopicService) RandomTopic(ctx context.Context, projectID *int) (result0 *models.Topic, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "random_topic", observability.AttributeProjectID(projectID))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + topicSelectFields + ` FROM topics WHERE ($1::int IS NULL OR project_id = $1) ORDER BY random() LIMIT 1`
	topic, err := scanTopic(s.db.QueryRowContext(ctx, query, intPointerArg(projectID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to pick topic: %v", err)
	}
	return topic, nil
}

// ListTopics lists topics of a project, or all topics when projectID is nil
func (s *TopicService) ListTopics(ctx context.Context, projectID *int) (result0 []models.Topic, err error) {
	ctx, span := observability.TraceAssessmentFunction(ctx, "list_topics", observability.AttributeProjectID(projectID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+topicSelectFields+` FROM topics WHERE ($1::int IS NULL OR project_id = $1) ORDER BY name`,
		intPointerArg(projectID))
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list topics: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	topics := []models.Topic{}
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan topic")
		}
		topics = append(topics, *topic)
	}
	return topics, rows.Err()
}

// UpsertTopic inserts the topic or returns the existing one with the same name in the same scope.
// The bool reports whether a new row was created.
func (s *TopicService) UpsertTopic(ctx context.Context, projectID *int, name, description string) (result0 *models.Topic, inserted bool, err error) {
	ctx, span := observability.TraceIngestionFunction(ctx, "upsert_topic",
		observability.AttributeProjectID(projectID),
		attribute.String("topic.name", name),
	)
	defer observability.FinishSpan(span, &err)

	if name == "" {
		return nil, false, contextutils.WrapError(contextutils.ErrInvalidInput, "topic name cannot be empty")
	}

	// The no-op update makes RETURNING yield the existing row; xmax = 0 only for fresh inserts
	query := `
		INSERT INTO topics (project_id, name, description, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT ((COALESCE(project_id, 0)), name) DO UPDATE SET name = topics.name
		RETURNING ` + topicSelectFields + `, (xmax = 0) AS inserted`

	var t models.Topic
	var pid sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, intPointerArg(projectID), name, description).
		Scan(&t.ID, &pid, &t.Name, &t.Description, &t.CreatedAt, &inserted)
	if err != nil {
		return nil, false, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to upsert topic %q: %v", name, err)
	}
	t.ProjectID = nullInt64ToIntPointer(pid)

	span.SetAttributes(attribute.Bool("topic.inserted", inserted))
	return &t, inserted, nil
}

func nullInt64ToIntPointer(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// intPointerArg turns an optional id into a driver argument that is NULL when absent
func intPointerArg(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
