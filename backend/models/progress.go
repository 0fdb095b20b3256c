package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress is the single mutable record of a user's current reading state.
// History tables (ReadingSession, ExerciseRecord, DiagnosticResult) are folded
// into it but never read back to answer "what level is this user now".
type UserProgress struct {
	gorm.Model
	UserID                      uint   `gorm:"uniqueIndex;not null"`
	ReadingLevel                string `gorm:"default:beginner"` // beginner, intermediate, advanced
	StreakDays                  int    `gorm:"default:0"`
	LastActivity                *time.Time
	TotalReadingSeconds         int `gorm:"default:0"`
	TotalPassagesRead           int `gorm:"default:0"`
	TotalExercisesCompleted     int `gorm:"default:0"`
	TotalCorrectAnswers         int `gorm:"default:0"`
	TotalQuestions              int `gorm:"default:0"`
	AverageComprehensionScore   int `gorm:"default:0"`
	AverageWPM                  int `gorm:"default:0"`
	WPMSamples                  int `gorm:"default:0"` // submissions counted into AverageWPM
	LastSessionSeconds          int `gorm:"default:0"`
	LastDifficultWordPercentage float64
	Version                     int `gorm:"default:0"` // bumped on every serialized update
}

// ReadingSession is one timed reading activity. At most one session per
// (user, activity type) is in progress, enforced by a partial unique index;
// starting a new one reclaims it.
type ReadingSession struct {
	gorm.Model
	UserID         uint   `gorm:"index:idx_sessions_user_type;index:idx_open_session,unique,where:in_progress"`
	ActivityType   string `gorm:"index:idx_sessions_user_type;index:idx_open_session,unique,where:in_progress"` // diagnostic, daily
	StartTime      time.Time
	EndTime        *time.Time
	WordCount      int
	ReadingSeconds float64
	WordsPerMinute int
	InProgress     bool
}

// ExerciseRecord is an append-only log entry per completed exercise. Promotion
// decisions read the most recent records; nothing ever mutates one. The
// idempotency key is unique per user: two users may submit the same id.
type ExerciseRecord struct {
	gorm.Model
	UserID               uint   `gorm:"uniqueIndex:idx_exercise_user_submission"`
	SubmissionID         string `gorm:"uniqueIndex:idx_exercise_user_submission;not null"`
	CompletedAt          time.Time
	ComprehensionScore   int // 0-100
	DifficultWordPercent float64
	MinutesRead          int
	WordsPerMinute       int
}

// DiagnosticResult archives the one-time onboarding classification.
type DiagnosticResult struct {
	gorm.Model
	UserID             uint `gorm:"index"`
	ReadingLevel       string
	AccuracyScore      int
	ComprehensionScore int
	SpeedScore         int
	CompletedAt        time.Time
}
