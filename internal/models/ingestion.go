package models

import (
	"time"
)

// JobStatus is the lifecycle state of an ingestion job
type JobStatus string

const (
	JobPending    JobStatus = "Pending"
	JobProcessing JobStatus = "Processing"
	JobCompleted  JobStatus = "Completed"
	JobFailed     JobStatus = "Failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ProcessingJob tracks one uploaded document through ingestion
type ProcessingJob struct {
	ID                 int        `json:"id"`
	Filename           string     `json:"filename"`
	ProjectID          *int       `json:"project_id"`
	Context            *string    `json:"context,omitempty"`
	StorageKey         string     `json:"-"`
	Status             JobStatus  `json:"status"`
	Message            string     `json:"message"`
	TopicsCreated      int        `json:"topics_created"`
	QuestionsGenerated int        `json:"questions_generated"`
	WorkerInstance     string     `json:"worker_instance,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// DocumentChunk is a retrievable slice of an ingested document
type DocumentChunk struct {
	ID         int    `json:"id"`
	JobID      int    `json:"job_id"`
	ProjectID  *int   `json:"project_id"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// SearchResult is one ranked knowledge base hit
type SearchResult struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
}

// ExtractionResult summarizes what ingestion produced from one document
type ExtractionResult struct {
	Topics             []Topic `json:"topics"`
	QuestionsGenerated int     `json:"questions_generated"`
	SkippedTiers       int     `json:"skipped_tiers"`
}

// WorkerStatus is the persisted heartbeat and counters of one ingestion worker instance
type WorkerStatus struct {
	WorkerInstance  string     `json:"worker_instance"`
	IsRunning       bool       `json:"is_running"`
	IsPaused        bool       `json:"is_paused"`
	CurrentActivity *string    `json:"current_activity"`
	LastHeartbeat   *time.Time `json:"last_heartbeat"`
	LastRunStart    *time.Time `json:"last_run_start"`
	LastRunFinish   *time.Time `json:"last_run_finish"`
	LastRunError    *string    `json:"last_run_error"`
	TotalJobs       int        `json:"total_jobs"`
	FailedJobs      int        `json:"failed_jobs"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
