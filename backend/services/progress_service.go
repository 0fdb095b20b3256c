// Package services wires the pure engine to the persistence layer: lazy
// progress creation, the session lifecycle, aggregate folding, and level
// promotion, with the concurrency discipline each of those needs.
package services

import (
	"errors"
	"log"
	"time"

	"readable/backend/engine"
	"readable/backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrProgressNotFound means the caller tried a stats-mutating operation
// before any progress record existed. Not retried here: the caller must
// seed state through GetProgress first.
var ErrProgressNotFound = errors.New("user progress not found")

// versionRetries bounds the optimistic-concurrency loop around the fields
// that cannot be written as pure increments.
const versionRetries = 5

type ProgressService struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewProgressService(db *gorm.DB, logger *log.Logger) *ProgressService {
	return &ProgressService{DB: db, Logger: logger}
}

// EnsureProgress creates the default progress record if absent. Safe under
// concurrent first access: the insert is DO NOTHING on conflict and the
// winner's row is read back.
func (ps *ProgressService) EnsureProgress(userID uint) (*models.UserProgress, error) {
	fresh := models.UserProgress{
		UserID:       userID,
		ReadingLevel: engine.LevelBeginner,
	}
	if err := ps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	var progress models.UserProgress
	if err := ps.DB.Where("user_id = ?", userID).First(&progress).Error; err != nil {
		return nil, err
	}
	return &progress, nil
}

// GetProgress returns the current progress, creating it lazily. A read that
// finds an idle gap persists the broken streak; it never extends one.
func (ps *ProgressService) GetProgress(userID uint) (*models.UserProgress, error) {
	progress, err := ps.EnsureProgress(userID)
	if err != nil {
		return nil, err
	}

	streak, changed := engine.StreakAfterRead(progress.LastActivity, progress.StreakDays, time.Now())
	if changed {
		// Guarded by the previous value so a concurrent write-path update
		// is not clobbered.
		res := ps.DB.Model(&models.UserProgress{}).
			Where("user_id = ? AND streak_days = ?", userID, progress.StreakDays).
			UpdateColumn("streak_days", streak)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			progress.StreakDays = streak
		}
	}
	return progress, nil
}

// StartSession opens (or reclaims) the reading session for one activity
// type. An abandoned open session is restarted in place rather than
// duplicated; the partial unique index on open sessions backs this up, so
// two concurrent starts cannot both insert.
func (ps *ProgressService) StartSession(userID uint, activityType string, wordCount int) (uint, error) {
	now := time.Now()

	for attempt := 0; attempt < 2; attempt++ {
		var open models.ReadingSession
		err := ps.DB.Where("user_id = ? AND activity_type = ? AND in_progress = ?", userID, activityType, true).
			Order("start_time DESC").
			First(&open).Error
		if err == nil {
			open.StartTime = now
			open.WordCount = wordCount
			open.EndTime = nil
			open.ReadingSeconds = 0
			open.WordsPerMinute = 0
			if err := ps.DB.Save(&open).Error; err != nil {
				return 0, err
			}
			return open.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}

		session := models.ReadingSession{
			UserID:       userID,
			ActivityType: activityType,
			StartTime:    now,
			WordCount:    wordCount,
			InProgress:   true,
		}
		err = ps.DB.Create(&session).Error
		if err == nil {
			return session.ID, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, err
		}
		// Lost the insert race; reclaim the winner's row.
	}
	return 0, errors.New("reading session start contention not resolved")
}

// FinishResult is what FinishSession hands back. Active is false when no
// open session existed; metrics may still be present if the caller supplied
// client-side fallback measurements.
type FinishResult struct {
	Active         bool
	ReadingSeconds float64
	WordsPerMinute int
}

// FinishSession finalizes the most recently started open session for the
// activity type. Finishing with nothing open is a valid no-op (double
// submit, lost timer); client-measured values are used then, so a page
// reload does not cost the reader their metrics.
func (ps *ProgressService) FinishSession(userID uint, activityType string, fallbackWords int, fallbackSeconds float64) (FinishResult, error) {
	var session models.ReadingSession
	err := ps.DB.Where("user_id = ? AND activity_type = ? AND in_progress = ?", userID, activityType, true).
		Order("start_time DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if fallbackSeconds > 0 || fallbackWords > 0 {
			m := engine.FallbackMetrics(fallbackSeconds, fallbackWords)
			return FinishResult{Active: false, ReadingSeconds: m.ReadingSeconds, WordsPerMinute: m.WordsPerMinute}, nil
		}
		return FinishResult{Active: false}, nil
	}
	if err != nil {
		return FinishResult{}, err
	}

	now := time.Now()
	metrics := engine.FinalizeSession(session.StartTime, now, session.WordCount)

	session.EndTime = &now
	session.ReadingSeconds = metrics.ReadingSeconds
	session.WordsPerMinute = metrics.WordsPerMinute
	session.InProgress = false
	if err := ps.DB.Save(&session).Error; err != nil {
		return FinishResult{}, err
	}

	return FinishResult{
		Active:         true,
		ReadingSeconds: metrics.ReadingSeconds,
		WordsPerMinute: metrics.WordsPerMinute,
	}, nil
}

// ExerciseInput is one completed exercise as submitted by the client.
type ExerciseInput struct {
	SubmissionID   string
	CorrectAnswers int
	TotalQuestions int
	MinutesRead    int
	PassagesRead   int
	DifficultWords int
	TotalWords     int
	WordsPerMinute int
}

// CompleteExercise folds one exercise into the running aggregates, appends
// the history record, and evaluates promotion. Simple counters go through a
// single atomic increment statement; the derived fields (averages, streak,
// level) go through an optimistic version loop since they need a read.
func (ps *ProgressService) CompleteExercise(userID uint, in ExerciseInput) (*models.UserProgress, error) {
	var progress models.UserProgress
	if err := ps.DB.Where("user_id = ?", userID).First(&progress).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}

	difficultPct := engine.DifficultWordPercent(in.DifficultWords, in.TotalWords)

	// History first: a replayed submission id for this user bails out before
	// any counter moves, which is what makes retries from the client safe.
	// Another user reusing the same id does not conflict.
	submissionID := in.SubmissionID
	if submissionID == "" {
		submissionID = uuid.NewString()
	}
	record := models.ExerciseRecord{
		UserID:               userID,
		SubmissionID:         submissionID,
		CompletedAt:          time.Now(),
		ComprehensionScore:   engine.ComprehensionAverage(in.CorrectAnswers, in.TotalQuestions),
		DifficultWordPercent: difficultPct,
		MinutesRead:          in.MinutesRead,
		WordsPerMinute:       in.WordsPerMinute,
	}
	if err := ps.DB.Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ps.snapshot(userID)
		}
		// Best-effort history: the aggregates stay authoritative even when
		// the record cannot be written. Promotion simply will not see this
		// exercise.
		ps.logf("exercise record append failed for user %d: %v", userID, err)
	}

	exercisesIncrement := 0
	if in.TotalQuestions > 0 {
		exercisesIncrement = 1
	}

	res := ps.DB.Model(&models.UserProgress{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"total_reading_seconds":          gorm.Expr("total_reading_seconds + ?", in.MinutesRead*60),
			"total_passages_read":            gorm.Expr("total_passages_read + ?", in.PassagesRead),
			"total_exercises_completed":      gorm.Expr("total_exercises_completed + ?", exercisesIncrement),
			"total_correct_answers":          gorm.Expr("total_correct_answers + ?", in.CorrectAnswers),
			"total_questions":                gorm.Expr("total_questions + ?", in.TotalQuestions),
			"last_session_seconds":           in.MinutesRead * 60,
			"last_difficult_word_percentage": difficultPct,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrProgressNotFound
	}

	if err := ps.updateDerived(userID, in.WordsPerMinute); err != nil {
		return nil, err
	}
	return ps.snapshot(userID)
}

// updateDerived recomputes streak, averages, and level under an optimistic
// version check. These fields depend on values just read, so a plain
// last-write-wins update could lose a concurrent exercise.
func (ps *ProgressService) updateDerived(userID uint, wordsPerMinute int) error {
	for attempt := 0; attempt < versionRetries; attempt++ {
		var progress models.UserProgress
		if err := ps.DB.Where("user_id = ?", userID).First(&progress).Error; err != nil {
			return err
		}

		now := time.Now()
		streak, _, _ := engine.NextStreak(progress.LastActivity, progress.StreakDays, now)

		avgComprehension := engine.ComprehensionAverage(progress.TotalCorrectAnswers, progress.TotalQuestions)

		avgWPM := progress.AverageWPM
		samples := progress.WPMSamples
		if wordsPerMinute > 0 {
			samples++
			avgWPM = engine.RunningMean(progress.AverageWPM, wordsPerMinute, samples)
		}

		level := progress.ReadingLevel
		recent, err := ps.recentOutcomes(userID)
		if err != nil {
			return err
		}
		level, _ = engine.Promote(level, recent)

		res := ps.DB.Model(&models.UserProgress{}).
			Where("user_id = ? AND version = ?", userID, progress.Version).
			UpdateColumns(map[string]interface{}{
				"streak_days":                 streak,
				"last_activity":               now,
				"average_comprehension_score": avgComprehension,
				"average_wpm":                 avgWPM,
				"wpm_samples":                 samples,
				"reading_level":               level,
				"version":                     progress.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		// Lost the race; reread and recompute.
	}
	return errors.New("progress update contention not resolved")
}

func (ps *ProgressService) recentOutcomes(userID uint) ([]engine.ExerciseOutcome, error) {
	var records []models.ExerciseRecord
	if err := ps.DB.Where("user_id = ?", userID).
		Order("completed_at DESC").
		Limit(engine.PromotionWindow).
		Find(&records).Error; err != nil {
		return nil, err
	}

	outcomes := make([]engine.ExerciseOutcome, 0, len(records))
	for _, r := range records {
		outcomes = append(outcomes, engine.ExerciseOutcome{
			ComprehensionScore:   r.ComprehensionScore,
			DifficultWordPercent: r.DifficultWordPercent,
		})
	}
	return outcomes, nil
}

// DiagnosticSubmission carries the raw onboarding signals plus the timing
// the diagnostic reading step measured.
type DiagnosticSubmission struct {
	DifficultWords       int
	TotalWords           int
	ComprehensionCorrect int
	ComprehensionTotal   int
	RecallMissed         int
	WordsPerMinute       int
	ReadingSeconds       int
}

// Credited reading time when the diagnostic session left no measurement.
const diagnosticFallbackSeconds = 5 * 60

// CompleteDiagnostic classifies the onboarding signals, seeds the reading
// level, archives the result, and counts the diagnostic as activity for
// streak purposes.
func (ps *ProgressService) CompleteDiagnostic(userID uint, sub DiagnosticSubmission) (*models.DiagnosticResult, *models.UserProgress, error) {
	var progress models.UserProgress
	if err := ps.DB.Where("user_id = ?", userID).First(&progress).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProgressNotFound
		}
		return nil, nil, err
	}

	input := engine.DiagnosticInput{
		DifficultWords:       sub.DifficultWords,
		TotalWords:           sub.TotalWords,
		ComprehensionCorrect: sub.ComprehensionCorrect,
		RecallMissed:         sub.RecallMissed,
	}
	level := engine.ClassifyDiagnostic(input)
	scores := engine.ScoreDiagnostic(input, sub.ComprehensionTotal, sub.WordsPerMinute)

	now := time.Now()
	result := models.DiagnosticResult{
		UserID:             userID,
		ReadingLevel:       level,
		AccuracyScore:      scores.Accuracy,
		ComprehensionScore: scores.Comprehension,
		SpeedScore:         scores.Speed,
		CompletedAt:        now,
	}
	if err := ps.DB.Create(&result).Error; err != nil {
		return nil, nil, err
	}

	readingSeconds := sub.ReadingSeconds
	if readingSeconds <= 0 {
		readingSeconds = diagnosticFallbackSeconds
	}

	seeded := false
	for attempt := 0; attempt < versionRetries; attempt++ {
		streak, _, _ := engine.NextStreak(progress.LastActivity, progress.StreakDays, now)
		res := ps.DB.Model(&models.UserProgress{}).
			Where("user_id = ? AND version = ?", userID, progress.Version).
			UpdateColumns(map[string]interface{}{
				"reading_level":         level,
				"total_reading_seconds": gorm.Expr("total_reading_seconds + ?", readingSeconds),
				"streak_days":           streak,
				"last_activity":         now,
				"version":               progress.Version + 1,
			})
		if res.Error != nil {
			return nil, nil, res.Error
		}
		if res.RowsAffected > 0 {
			seeded = true
			break
		}
		if err := ps.DB.Where("user_id = ?", userID).First(&progress).Error; err != nil {
			return nil, nil, err
		}
	}
	if !seeded {
		return nil, nil, errors.New("progress update contention not resolved")
	}

	snapshot, err := ps.snapshot(userID)
	if err != nil {
		return nil, nil, err
	}
	return &result, snapshot, nil
}

// LatestDiagnostic returns the most recent archived classification.
func (ps *ProgressService) LatestDiagnostic(userID uint) (*models.DiagnosticResult, error) {
	var result models.DiagnosticResult
	err := ps.DB.Where("user_id = ?", userID).
		Order("completed_at DESC").
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (ps *ProgressService) snapshot(userID uint) (*models.UserProgress, error) {
	var progress models.UserProgress
	if err := ps.DB.Where("user_id = ?", userID).First(&progress).Error; err != nil {
		return nil, err
	}
	return &progress, nil
}

func (ps *ProgressService) logf(format string, args ...interface{}) {
	if ps.Logger != nil {
		ps.Logger.Printf(format, args...)
	}
}
