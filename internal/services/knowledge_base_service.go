package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/models"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// KnowledgeBaseServiceInterface indexes ingested documents and retrieves excerpts from them
type KnowledgeBaseServiceInterface interface {
	IndexDocument(ctx context.Context, job *models.ProcessingJob, text string) (int, error)
	Search(ctx context.Context, query string, projectID *int, limit int) ([]models.SearchResult, error)
	ContextFor(ctx context.Context, query string, projectID *int) (string, error)
	ListFiles(ctx context.Context) ([]string, error)
	Reset(ctx context.Context) (int64, error)
}

// KnowledgeBaseService stores document chunks in Postgres and ranks them with full text search.
// project_id on each chunk is the metadata filter for scoped retrieval.
type KnowledgeBaseService struct {
	db     *sql.DB
	cfg    config.KnowledgeBaseConfig
	logger *observability.Logger
}

// NewKnowledgeBaseService creates a new KnowledgeBaseService
func NewKnowledgeBaseService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *KnowledgeBaseService {
	return &KnowledgeBaseService{db: db, cfg: cfg.KnowledgeBase, logger: logger}
}

// IndexDocument replaces the job's chunks with a fresh chunking of text and returns the chunk count
func (s *KnowledgeBaseService) IndexDocument(ctx context.Context, job *models.ProcessingJob, text string) (result0 int, err error) {
	ctx, span := observability.TraceKnowledgeBaseFunction(ctx, "index_document",
		observability.AttributeJobID(job.ID),
		observability.AttributeProjectID(job.ProjectID),
		attribute.String("document.filename", job.Filename),
	)
	defer observability.FinishSpan(span, &err)

	chunks := ChunkText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	span.SetAttributes(attribute.Int("document.chunks", len(chunks)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.Error(ctx, "Failed to rollback transaction", rollbackErr, map[string]interface{}{"job_id": job.ID})
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE job_id = $1`, job.ID); err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to clear chunks: %v", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (job_id, project_id, filename, chunk_index, content, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to prepare chunk insert")
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close statement", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	for i, chunk := range chunks {
		if _, err = stmt.ExecContext(ctx, job.ID, intPointerArg(job.ProjectID), job.Filename, i, chunk); err != nil {
			return 0, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to insert chunk %d: %v", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit chunks: %v", err)
	}

	s.logger.Info(ctx, "Document indexed", map[string]interface{}{
		"job_id":   job.ID,
		"filename": job.Filename,
		"chunks":   len(chunks),
	})
	return len(chunks), nil
}

// Search ranks chunks against a web-style query, restricted to one project when projectID is set
func (s *KnowledgeBaseService) Search(ctx context.Context, query string, projectID *int, limit int) (result0 []models.SearchResult, err error) {
	ctx, span := observability.TraceKnowledgeBaseFunction(ctx, "search",
		observability.AttributeProjectID(projectID),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "query is required")
	}
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content, ts_rank(c.content_tsv, q) AS score, c.filename
		FROM document_chunks c, websearch_to_tsquery('english', $1) q
		WHERE c.content_tsv @@ q AND ($2::int IS NULL OR c.project_id = $2)
		ORDER BY score DESC, c.id
		LIMIT $3`, query, intPointerArg(projectID), limit)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to search knowledge base: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	results := []models.SearchResult{}
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.Text, &r.Score, &r.Filename); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan search result")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

// ContextFor joins the best matching chunks for query. When nothing matches it falls back to the
// most recently indexed chunks in scope, so generation still sees some source material.
func (s *KnowledgeBaseService) ContextFor(ctx context.Context, query string, projectID *int) (result0 string, err error) {
	ctx, span := observability.TraceKnowledgeBaseFunction(ctx, "context_for", observability.AttributeProjectID(projectID))
	defer observability.FinishSpan(span, &err)

	limit := s.cfg.ContextChunks
	if limit <= 0 {
		return "", nil
	}

	var texts []string
	if strings.TrimSpace(query) != "" {
		results, err := s.Search(ctx, query, projectID, limit)
		if err != nil {
			return "", err
		}
		for _, r := range results {
			texts = append(texts, r.Text)
		}
	}

	if len(texts) == 0 {
		texts, err = s.recentChunks(ctx, projectID, limit)
		if err != nil {
			return "", err
		}
		span.SetAttributes(attribute.Bool("context.fallback", true))
	}

	return strings.Join(texts, "\n\n"), nil
}

func (s *KnowledgeBaseService) recentChunks(ctx context.Context, projectID *int, limit int) (result0 []string, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content FROM document_chunks
		WHERE ($1::int IS NULL OR project_id = $1)
		ORDER BY id DESC
		LIMIT $2`, intPointerArg(projectID), limit)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to load recent chunks: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var texts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan chunk")
		}
		texts = append(texts, content)
	}
	return texts, rows.Err()
}

// ListFiles returns the distinct filenames of successfully ingested documents
func (s *KnowledgeBaseService) ListFiles(ctx context.Context) (result0 []string, err error) {
	ctx, span := observability.TraceKnowledgeBaseFunction(ctx, "list_files")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT filename FROM processing_jobs WHERE status = $1 ORDER BY filename`, string(models.JobCompleted))
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list files: %v", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	files := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan filename")
		}
		files = append(files, name)
	}
	return files, rows.Err()
}

// Reset deletes every indexed chunk. Topics and questions are kept.
func (s *KnowledgeBaseService) Reset(ctx context.Context) (result0 int64, err error) {
	ctx, span := observability.TraceKnowledgeBaseFunction(ctx, "reset")
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks`)
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to reset knowledge base: %v", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Warn(ctx, "Knowledge base reset", map[string]interface{}{"chunks_deleted": n})
	return n, nil
}

// ChunkText splits text into chunks of at most size runes. Paragraphs are kept whole when they fit;
// consecutive chunks share about overlap runes, cut at a word boundary.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = config.DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paragraphs = append(paragraphs, splitLongParagraph(p, size, overlap)...)
	}

	var chunks []string
	var current []rune
	for _, p := range paragraphs {
		runes := []rune(p)
		if len(current) > 0 && len(current)+2+len(runes) > size {
			chunks = append(chunks, string(current))
			current = overlapTail(current, overlap)
			if len(current)+2+len(runes) > size {
				current = nil
			}
		}
		if len(current) > 0 {
			current = append(current, '\n', '\n')
		}
		current = append(current, runes...)
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}

func splitLongParagraph(p string, size, overlap int) []string {
	runes := []rune(p)
	if len(runes) <= size {
		return []string{p}
	}
	step := size - overlap
	var parts []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			parts = append(parts, strings.TrimSpace(string(runes[start:])))
			break
		}
		parts = append(parts, strings.TrimSpace(string(runes[start:end])))
	}
	return parts
}

// overlapTail returns at most n trailing runes of chunk, starting after a space when one exists
func overlapTail(chunk []rune, n int) []rune {
	if n <= 0 || len(chunk) == 0 {
		return nil
	}
	if n > len(chunk) {
		n = len(chunk)
	}
	tail := chunk[len(chunk)-n:]
	for i, r := range tail {
		if unicode.IsSpace(r) {
			tail = tail[i+1:]
			break
		}
	}
	out := make([]rune, len(tail))
	copy(out, tail)
	return []rune(strings.TrimSpace(string(out)))
}
