package models

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelOrdering(t *testing.T) {
	assert.Less(t, LevelBeginner.Rank(), LevelIntermediate.Rank())
	assert.Less(t, LevelIntermediate.Rank(), LevelAdvanced.Rank())
	assert.False(t, Level("Expert").IsValid())
	assert.Equal(t, []Level{LevelBeginner, LevelIntermediate, LevelAdvanced}, Levels())
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" advanced ")
	assert.True(t, ok)
	assert.Equal(t, LevelAdvanced, l)

	_, ok = ParseLevel("B2")
	assert.False(t, ok)
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobPending.IsTerminal())
	assert.False(t, JobProcessing.IsTerminal())
	assert.True(t, JobCompleted.IsTerminal())
	assert.True(t, JobFailed.IsTerminal())
}

func TestQuestionHistory_MarshalJSON_HidesAnswerWhilePending(t *testing.T) {
	h := QuestionHistory{
		ID:            11,
		SessionID:     2,
		ServingSeq:    1,
		TopicID:       5,
		QuestionText:  "What does BANT stand for?",
		Choices:       []string{"a", "b", "c", "d"},
		CorrectAnswer: "b",
		Source:        SourceBank,
		ServedAt:      time.Now(),
	}
	assert.True(t, h.IsPending())

	raw, err := json.Marshal(h)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotContains(t, out, "correct_answer")
	assert.Nil(t, out["is_correct"])
	assert.EqualValues(t, 11, out["history_id"])

	h.IsCorrect = sql.NullBool{Bool: false, Valid: true}
	h.UserAnswer = sql.NullString{String: "a", Valid: true}
	assert.False(t, h.IsPending())

	raw, err = json.Marshal(h)
	require.NoError(t, err)
	out = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "b", out["correct_answer"])
	assert.Equal(t, false, out["is_correct"])
	assert.Equal(t, "a", out["user_answer"])
}

func TestProject_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal(Project{ID: 1, Name: "Q3 Launch"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"description":null`)

	raw, err = json.Marshal(Project{ID: 1, Name: "Q3 Launch", Description: sql.NullString{String: "pricing", Valid: true}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"description":"pricing"`)
}
