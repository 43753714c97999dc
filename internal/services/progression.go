package services

import "github.com/mohankp/sales-enablement-training/internal/models"

// Progression thresholds and step size
const (
	PointsPerCorrectAnswer = 10

	SessionIntermediateThreshold = 50
	SessionAdvancedThreshold     = 100

	TopicIntermediateThreshold = 30
	TopicAdvancedThreshold     = 60
)

// ApplyAnswer returns the session score and level after one graded answer.
// An incorrect answer changes nothing; a level moves at most one step per answer.
func ApplyAnswer(score int, level models.Level, isCorrect bool) (int, models.Level) {
	if !isCorrect {
		return score, level
	}

	score += PointsPerCorrectAnswer
	switch {
	case level == models.LevelBeginner && score >= SessionIntermediateThreshold:
		level = models.LevelIntermediate
	case level == models.LevelIntermediate && score >= SessionAdvancedThreshold:
		level = models.LevelAdvanced
	}
	return score, level
}

// ApplyTopicAnswer credits one correct answer to a topic score. Proficiency never decreases.
func ApplyTopicAnswer(topicScore int, current models.Level) (int, models.Level) {
	topicScore += PointsPerCorrectAnswer
	proficiency := ProficiencyForScore(topicScore)
	if current.Rank() > proficiency.Rank() {
		proficiency = current
	}
	return topicScore, proficiency
}

// ProficiencyForScore maps a cumulative topic score to its tier
func ProficiencyForScore(score int) models.Level {
	level := models.LevelBeginner
	if score >= TopicIntermediateThreshold {
		level = models.LevelIntermediate
	}
	if score >= TopicAdvancedThreshold {
		level = models.LevelAdvanced
	}
	return level
}
