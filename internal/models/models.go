// Package models defines data structures used throughout the training service.
package models

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// Level is a difficulty tier. Session levels and topic proficiency share the same scale.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// Levels returns every tier in ascending order
func Levels() []Level {
	return []Level{LevelBeginner, LevelIntermediate, LevelAdvanced}
}

// Rank orders levels; unknown values rank below Beginner
func (l Level) Rank() int {
	switch l {
	case LevelBeginner:
		return 1
	case LevelIntermediate:
		return 2
	case LevelAdvanced:
		return 3
	}
	return 0
}

// IsValid reports whether l is one of the three tiers
func (l Level) IsValid() bool {
	return l.Rank() > 0
}

// ParseLevel accepts a tier name in any case
func ParseLevel(s string) (Level, bool) {
	for _, l := range Levels() {
		if strings.EqualFold(strings.TrimSpace(s), string(l)) {
			return l, true
		}
	}
	return "", false
}

// User represents a learner or an administrator
type User struct {
	ID           int            `json:"id"`
	Username     string         `json:"username"`
	PasswordHash sql.NullString `json:"-"`
	IsAdmin      bool           `json:"is_admin"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Project groups topics and documents into an isolated scope
type Project struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Description sql.NullString `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MarshalJSON renders a NULL description as null rather than a struct
func (p Project) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int       `json:"id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ID:          p.ID,
		Name:        p.Name,
		Description: nullStringToPointer(p.Description),
		CreatedAt:   p.CreatedAt,
	})
}

// Topic is a subject extracted from training material. Names are unique per project scope.
type Topic struct {
	ID          int       `json:"id"`
	ProjectID   *int      `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TopicScore is a user's running score and proficiency on one topic
type TopicScore struct {
	ID               int       `json:"id"`
	UserID           int       `json:"user_id"`
	TopicID          int       `json:"topic_id"`
	TopicName        string    `json:"topic_name,omitempty"`
	Score            int       `json:"score"`
	ProficiencyLevel Level     `json:"proficiency_level"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}
