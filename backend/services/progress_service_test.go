package services

import (
	"sync"
	"testing"
	"time"

	"readable/backend/engine"
	"readable/backend/models"
	"readable/backend/utils"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupService(t *testing.T) *ProgressService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, utils.Migrate(db))

	return NewProgressService(db, nil)
}

func TestGetProgress_CreatesDefault(t *testing.T) {
	ps := setupService(t)

	progress, err := ps.GetProgress(1)
	require.NoError(t, err)

	assert.Equal(t, uint(1), progress.UserID)
	assert.Equal(t, engine.LevelBeginner, progress.ReadingLevel)
	assert.Equal(t, 0, progress.StreakDays)
	assert.Nil(t, progress.LastActivity)
}

func TestGetProgress_SecondAccessReturnsSameRecord(t *testing.T) {
	ps := setupService(t)

	first, err := ps.GetProgress(1)
	require.NoError(t, err)
	second, err := ps.GetProgress(1)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	ps.DB.Model(&models.UserProgress{}).Where("user_id = ?", 1).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestGetProgress_ReadBreaksIdleStreak(t *testing.T) {
	ps := setupService(t)

	idle := time.Now().AddDate(0, 0, -10)
	require.NoError(t, ps.DB.Create(&models.UserProgress{
		UserID:       1,
		ReadingLevel: engine.LevelBeginner,
		StreakDays:   7,
		LastActivity: &idle,
	}).Error)

	progress, err := ps.GetProgress(1)
	require.NoError(t, err)

	assert.Equal(t, 0, progress.StreakDays, "idle streak must be persisted as broken")
	require.NotNil(t, progress.LastActivity)
	assert.WithinDuration(t, idle, *progress.LastActivity, time.Second,
		"a read must not move the activity date")
}

func TestGetProgress_ReadNeverIncrements(t *testing.T) {
	ps := setupService(t)

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, ps.DB.Create(&models.UserProgress{
		UserID:       1,
		ReadingLevel: engine.LevelBeginner,
		StreakDays:   3,
		LastActivity: &yesterday,
	}).Error)

	progress, err := ps.GetProgress(1)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.StreakDays)
}

func TestStartSession_ReclaimsOpenSession(t *testing.T) {
	ps := setupService(t)

	first, err := ps.StartSession(1, "daily", 100)
	require.NoError(t, err)

	second, err := ps.StartSession(1, "daily", 250)
	require.NoError(t, err)
	assert.Equal(t, first, second, "restart must reuse the open session")

	var count int64
	ps.DB.Model(&models.ReadingSession{}).Where("user_id = ?", 1).Count(&count)
	assert.Equal(t, int64(1), count)

	var session models.ReadingSession
	require.NoError(t, ps.DB.First(&session, second).Error)
	assert.Equal(t, 250, session.WordCount)
	assert.True(t, session.InProgress)
	assert.Nil(t, session.EndTime)
}

func TestStartSession_SeparatePerActivityType(t *testing.T) {
	ps := setupService(t)

	daily, err := ps.StartSession(1, "daily", 100)
	require.NoError(t, err)
	diagnostic, err := ps.StartSession(1, "diagnostic", 40)
	require.NoError(t, err)

	assert.NotEqual(t, daily, diagnostic)
}

func TestStartSession_OpenSessionUniquePerUserAndActivity(t *testing.T) {
	ps := setupService(t)

	openSession := func() models.ReadingSession {
		return models.ReadingSession{
			UserID:       1,
			ActivityType: "daily",
			StartTime:    time.Now(),
			InProgress:   true,
		}
	}

	first := openSession()
	require.NoError(t, ps.DB.Create(&first).Error)

	second := openSession()
	err := ps.DB.Create(&second).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey,
		"a second open session for the same activity must be rejected")

	// Finished sessions do not collide with each other or with the open one.
	for i := 0; i < 2; i++ {
		done := openSession()
		done.InProgress = false
		require.NoError(t, ps.DB.Create(&done).Error)
	}
}

func TestStartSession_LostInsertRaceReclaimsWinner(t *testing.T) {
	ps := setupService(t)

	// A competing open session lands between the lookup and the insert,
	// as a concurrent start would.
	raced := false
	err := ps.DB.Callback().Create().Before("gorm:create").Register("competing_open_session", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "reading_sessions" {
			return
		}
		raced = true
		now := time.Now()
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO reading_sessions (created_at, updated_at, user_id, activity_type, start_time, word_count, reading_seconds, words_per_minute, in_progress) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			now, now, 1, "daily", now, 80, 0.0, 0, true)
	})
	require.NoError(t, err)

	id, err := ps.StartSession(1, "daily", 150)
	require.NoError(t, err)

	var count int64
	ps.DB.Model(&models.ReadingSession{}).Where("user_id = ?", 1).Count(&count)
	assert.Equal(t, int64(1), count)

	var session models.ReadingSession
	require.NoError(t, ps.DB.First(&session, id).Error)
	assert.Equal(t, 150, session.WordCount, "losing the race must reclaim the winner's session")
	assert.True(t, session.InProgress)
}

func TestFinishSession_Finalizes(t *testing.T) {
	ps := setupService(t)

	id, err := ps.StartSession(1, "daily", 200)
	require.NoError(t, err)

	// Backdate the start so the derived metrics are deterministic enough
	// to assert on.
	start := time.Now().Add(-60 * time.Second)
	require.NoError(t, ps.DB.Model(&models.ReadingSession{}).
		Where("id = ?", id).
		UpdateColumn("start_time", start).Error)

	result, err := ps.FinishSession(1, "daily", 0, 0)
	require.NoError(t, err)

	assert.True(t, result.Active)
	assert.GreaterOrEqual(t, result.ReadingSeconds, 60.0)
	assert.InDelta(t, 200, result.WordsPerMinute, 10)

	var session models.ReadingSession
	require.NoError(t, ps.DB.First(&session, id).Error)
	assert.False(t, session.InProgress)
	assert.NotNil(t, session.EndTime)
}

func TestFinishSession_InstantFinishFloorsAtOneSecond(t *testing.T) {
	ps := setupService(t)

	_, err := ps.StartSession(1, "daily", 100)
	require.NoError(t, err)

	result, err := ps.FinishSession(1, "daily", 0, 0)
	require.NoError(t, err)

	assert.True(t, result.Active)
	assert.GreaterOrEqual(t, result.ReadingSeconds, 1.0)
}

func TestFinishSession_NoOpenSessionIsNoOp(t *testing.T) {
	ps := setupService(t)

	result, err := ps.FinishSession(1, "daily", 0, 0)
	require.NoError(t, err)
	assert.False(t, result.Active)
	assert.Zero(t, result.WordsPerMinute)
}

func TestFinishSession_ClientFallbackMetrics(t *testing.T) {
	ps := setupService(t)

	// Timer state lost (page reload): client measurements still produce
	// metrics.
	result, err := ps.FinishSession(1, "daily", 300, 120)
	require.NoError(t, err)

	assert.False(t, result.Active)
	assert.Equal(t, 120.0, result.ReadingSeconds)
	assert.Equal(t, 150, result.WordsPerMinute)
}

func TestFinishSession_DoubleSubmit(t *testing.T) {
	ps := setupService(t)

	_, err := ps.StartSession(1, "daily", 100)
	require.NoError(t, err)

	first, err := ps.FinishSession(1, "daily", 0, 0)
	require.NoError(t, err)
	assert.True(t, first.Active)

	second, err := ps.FinishSession(1, "daily", 0, 0)
	require.NoError(t, err)
	assert.False(t, second.Active, "second finish must be a no-op, not an error")
}

func TestCompleteExercise_RequiresProgress(t *testing.T) {
	ps := setupService(t)

	_, err := ps.CompleteExercise(1, ExerciseInput{TotalQuestions: 3})
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestCompleteExercise_Aggregates(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	progress, err := ps.CompleteExercise(1, ExerciseInput{
		CorrectAnswers: 3,
		TotalQuestions: 3,
		MinutesRead:    2,
		PassagesRead:   1,
		DifficultWords: 5,
		TotalWords:     100,
		WordsPerMinute: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, 120, progress.TotalReadingSeconds)
	assert.Equal(t, 1, progress.TotalPassagesRead)
	assert.Equal(t, 1, progress.TotalExercisesCompleted)
	assert.Equal(t, 3, progress.TotalCorrectAnswers)
	assert.Equal(t, 3, progress.TotalQuestions)
	assert.Equal(t, 100, progress.AverageComprehensionScore)
	assert.Equal(t, 200, progress.AverageWPM)
	assert.Equal(t, 1, progress.StreakDays)
	assert.NotNil(t, progress.LastActivity)
	assert.InDelta(t, 5.0, progress.LastDifficultWordPercentage, 0.001)
}

func TestCompleteExercise_ComprehensionWeightedByQuestions(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	_, err = ps.CompleteExercise(1, ExerciseInput{CorrectAnswers: 3, TotalQuestions: 3})
	require.NoError(t, err)

	progress, err := ps.CompleteExercise(1, ExerciseInput{CorrectAnswers: 0, TotalQuestions: 2})
	require.NoError(t, err)

	// 3/5 cumulative = 60, not the 50 an average of averages gives.
	assert.Equal(t, 60, progress.AverageComprehensionScore)
	assert.Equal(t, 5, progress.TotalQuestions)
}

func TestCompleteExercise_NoQuestionsDoesNotCountExercise(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	progress, err := ps.CompleteExercise(1, ExerciseInput{
		MinutesRead:  1,
		PassagesRead: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, progress.TotalExercisesCompleted)
	assert.Equal(t, 1, progress.TotalPassagesRead)
	assert.Equal(t, 0, progress.AverageComprehensionScore)
}

func TestCompleteExercise_IdempotentReplay(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	in := ExerciseInput{
		SubmissionID:   "retry-me",
		CorrectAnswers: 10,
		TotalQuestions: 10,
		MinutesRead:    2,
		PassagesRead:   1,
	}
	_, err = ps.CompleteExercise(1, in)
	require.NoError(t, err)

	progress, err := ps.CompleteExercise(1, in)
	require.NoError(t, err)

	assert.Equal(t, 10, progress.TotalQuestions, "replayed submission must not double count")
	assert.Equal(t, 1, progress.TotalExercisesCompleted)

	var count int64
	ps.DB.Model(&models.ExerciseRecord{}).Where("user_id = ?", 1).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCompleteExercise_SubmissionKeyScopedPerUser(t *testing.T) {
	ps := setupService(t)
	for _, id := range []uint{1, 2} {
		_, err := ps.EnsureProgress(id)
		require.NoError(t, err)
	}

	in := ExerciseInput{
		SubmissionID:   "attempt-1",
		CorrectAnswers: 3,
		TotalQuestions: 3,
	}
	_, err := ps.CompleteExercise(1, in)
	require.NoError(t, err)

	progress, err := ps.CompleteExercise(2, in)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalQuestions,
		"another user's submission id must not be treated as a replay")

	// The same user replaying the id still short-circuits.
	progress, err = ps.CompleteExercise(2, in)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalQuestions)
	assert.Equal(t, 1, progress.TotalExercisesCompleted)
}

func TestCompleteExercise_NoLostUpdates(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := ps.CompleteExercise(1, ExerciseInput{
			CorrectAnswers: 10,
			TotalQuestions: 10,
		})
		require.NoError(t, err)
	}

	progress, err := ps.GetProgress(1)
	require.NoError(t, err)
	assert.Equal(t, 20, progress.TotalQuestions)
	assert.Equal(t, 20, progress.TotalCorrectAnswers)
}

func TestCompleteExercise_ConcurrentNoLostUpdates(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	// The in-memory driver gives each pooled connection its own database,
	// so the pool is pinned to one connection; the goroutines still
	// interleave their statements across the multi-statement completion
	// path.
	sqlDB, err := ps.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ps.CompleteExercise(1, ExerciseInput{
				CorrectAnswers: 10,
				TotalQuestions: 10,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	progress, err := ps.GetProgress(1)
	require.NoError(t, err)
	assert.Equal(t, 20, progress.TotalQuestions)
	assert.Equal(t, 20, progress.TotalCorrectAnswers)
	assert.Equal(t, 2, progress.TotalExercisesCompleted)
}

func perfectExercise() ExerciseInput {
	return ExerciseInput{
		CorrectAnswers: 3,
		TotalQuestions: 3,
		MinutesRead:    1,
		PassagesRead:   1,
		DifficultWords: 2,
		TotalWords:     100, // 2% difficult
		WordsPerMinute: 180,
	}
}

func imperfectExercise() ExerciseInput {
	in := perfectExercise()
	in.CorrectAnswers = 2
	return in
}

func TestCompleteExercise_PromotionOnFifthPerfect(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		progress, err := ps.CompleteExercise(1, perfectExercise())
		require.NoError(t, err)
		assert.Equal(t, engine.LevelBeginner, progress.ReadingLevel,
			"promotion needs five records, had %d", i+1)
	}

	progress, err := ps.CompleteExercise(1, perfectExercise())
	require.NoError(t, err)
	assert.Equal(t, engine.LevelIntermediate, progress.ReadingLevel)
}

func TestCompleteExercise_ImperfectResetsWindow(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := ps.CompleteExercise(1, perfectExercise())
		require.NoError(t, err)
	}
	_, err = ps.CompleteExercise(1, imperfectExercise())
	require.NoError(t, err)

	progress, err := ps.CompleteExercise(1, perfectExercise())
	require.NoError(t, err)
	assert.Equal(t, engine.LevelBeginner, progress.ReadingLevel,
		"an imperfect exercise inside the window must block promotion")
}

func TestCompleteExercise_AdvancedIsTerminal(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)
	require.NoError(t, ps.DB.Model(&models.UserProgress{}).
		Where("user_id = ?", 1).
		UpdateColumn("reading_level", engine.LevelAdvanced).Error)

	for i := 0; i < 6; i++ {
		progress, err := ps.CompleteExercise(1, perfectExercise())
		require.NoError(t, err)
		assert.Equal(t, engine.LevelAdvanced, progress.ReadingLevel)
	}
}

func TestCompleteExercise_AverageWPMRunningMean(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	wpms := []int{200, 100, 150}
	var progress *models.UserProgress
	for _, wpm := range wpms {
		in := perfectExercise()
		in.WordsPerMinute = wpm
		progress, err = ps.CompleteExercise(1, in)
		require.NoError(t, err)
	}

	assert.Equal(t, 150, progress.AverageWPM)
	assert.Equal(t, 3, progress.WPMSamples)
}

func TestCompleteExercise_ZeroWPMNotSampled(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	in := perfectExercise()
	in.WordsPerMinute = 0
	progress, err := ps.CompleteExercise(1, in)
	require.NoError(t, err)

	assert.Equal(t, 0, progress.WPMSamples)
	assert.Equal(t, 0, progress.AverageWPM)
}

func TestCompleteDiagnostic_SeedsLevelAndArchives(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	result, progress, err := ps.CompleteDiagnostic(1, DiagnosticSubmission{
		DifficultWords:       1,
		TotalWords:           100,
		ComprehensionCorrect: 3,
		ComprehensionTotal:   3,
		RecallMissed:         0,
		WordsPerMinute:       200,
		ReadingSeconds:       45,
	})
	require.NoError(t, err)

	assert.Equal(t, engine.LevelAdvanced, result.ReadingLevel)
	assert.Equal(t, engine.LevelAdvanced, progress.ReadingLevel)
	assert.Equal(t, 45, progress.TotalReadingSeconds)
	assert.Equal(t, 1, progress.StreakDays)

	archived, err := ps.LatestDiagnostic(1)
	require.NoError(t, err)
	assert.Equal(t, result.ID, archived.ID)
	assert.Equal(t, 99, archived.AccuracyScore)
}

func TestCompleteDiagnostic_RequiresProgress(t *testing.T) {
	ps := setupService(t)

	_, _, err := ps.CompleteDiagnostic(1, DiagnosticSubmission{})
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestCompleteDiagnostic_ContentionSurfacesError(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	// Bump the version right after every read of the progress row, so the
	// guarded update can never win and the retry loop exhausts.
	err = ps.DB.Callback().Query().After("gorm:query").Register("contending_writer", func(tx *gorm.DB) {
		if tx.Statement.Table != "user_progresses" {
			return
		}
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"UPDATE user_progresses SET version = version + 1 WHERE user_id = ?", 1)
	})
	require.NoError(t, err)

	_, _, err = ps.CompleteDiagnostic(1, DiagnosticSubmission{TotalWords: 100})
	assert.Error(t, err, "exhausting the retry loop must not drop the tier seed silently")
}

func TestCompleteDiagnostic_FlatTimeCreditWithoutMeasurement(t *testing.T) {
	ps := setupService(t)
	_, err := ps.EnsureProgress(1)
	require.NoError(t, err)

	_, progress, err := ps.CompleteDiagnostic(1, DiagnosticSubmission{
		DifficultWords: 40,
		TotalWords:     100,
	})
	require.NoError(t, err)
	assert.Equal(t, diagnosticFallbackSeconds, progress.TotalReadingSeconds)
}
