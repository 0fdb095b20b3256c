package controllers

import (
	"errors"
	"readable/backend/config"
	"readable/backend/services"
	"readable/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ProgressController struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Progress *services.ProgressService
}

func NewProgressController(db *gorm.DB, cfg *config.Config, progress *services.ProgressService) *ProgressController {
	return &ProgressController{DB: db, Cfg: cfg, Progress: progress}
}

// GetStats godoc
// @Summary Get user reading stats
// @Description Returns the user's progress record, creating a default one on first access
// @Tags progress
// @Accept json
// @Produce json
// @Success 200 {object} models.UserProgress
// @Failure 401 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/stats [get]
func (pc *ProgressController) GetStats(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, pc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	progress, err := pc.Progress.GetProgress(userID)
	if err != nil {
		return utils.InternalServerError(c, "Could not load stats")
	}
	return c.JSON(progress)
}

type startReadingRequest struct {
	ExerciseType string `json:"exerciseType"`
	WordCount    int    `json:"wordCount"`
}

// StartReading opens (or restarts) the reading timer for an activity type.
func (pc *ProgressController) StartReading(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, pc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input startReadingRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if input.ExerciseType != "diagnostic" && input.ExerciseType != "daily" {
		return utils.BadRequest(c, "exerciseType must be diagnostic or daily")
	}

	sessionID, err := pc.Progress.StartSession(userID, input.ExerciseType, input.WordCount)
	if err != nil {
		return utils.InternalServerError(c, "Could not start reading session")
	}

	return c.JSON(fiber.Map{
		"sessionId": sessionID,
	})
}

type finishReadingRequest struct {
	ExerciseType string `json:"exerciseType"`
	// Client-measured fallbacks, used when no server session is open.
	WordCount          int     `json:"wordCount"`
	ReadingTimeSeconds float64 `json:"readingTimeSeconds"`
}

// FinishReading finalizes the open session and returns the derived metrics.
// Finishing with nothing open is not an error.
func (pc *ProgressController) FinishReading(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, pc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input finishReadingRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if input.ExerciseType != "diagnostic" && input.ExerciseType != "daily" {
		return utils.BadRequest(c, "exerciseType must be diagnostic or daily")
	}

	result, err := pc.Progress.FinishSession(userID, input.ExerciseType, input.WordCount, input.ReadingTimeSeconds)
	if err != nil {
		return utils.InternalServerError(c, "Could not finish reading session")
	}

	return c.JSON(fiber.Map{
		"active":         result.Active,
		"readingSeconds": result.ReadingSeconds,
		"wordsPerMinute": result.WordsPerMinute,
	})
}

type exerciseCompleteRequest struct {
	SubmissionID   string   `json:"submissionId"`
	MinutesRead    int      `json:"minutesRead"`
	PassagesRead   int      `json:"passagesRead"`
	CorrectAnswers int      `json:"correctAnswers"`
	TotalQuestions int      `json:"totalQuestions"`
	DifficultWords []string `json:"difficultWords"`
	TotalWords     int      `json:"totalWords"`
	WordsPerMinute int      `json:"wordsPerMinute"`
}

// ExerciseComplete godoc
// @Summary Record a completed exercise
// @Description Folds an exercise into the user's aggregates and evaluates level promotion
// @Tags progress
// @Accept json
// @Produce json
// @Param request body exerciseCompleteRequest true "Exercise results"
// @Success 200 {object} models.UserProgress
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/exercise-complete [post]
func (pc *ProgressController) ExerciseComplete(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, pc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input exerciseCompleteRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	progress, err := pc.Progress.CompleteExercise(userID, services.ExerciseInput{
		SubmissionID:   input.SubmissionID,
		CorrectAnswers: input.CorrectAnswers,
		TotalQuestions: input.TotalQuestions,
		MinutesRead:    input.MinutesRead,
		PassagesRead:   input.PassagesRead,
		DifficultWords: len(input.DifficultWords),
		TotalWords:     input.TotalWords,
		WordsPerMinute: input.WordsPerMinute,
	})
	if err != nil {
		if errors.Is(err, services.ErrProgressNotFound) {
			return utils.NotFound(c, "User stats not found. Please fetch stats first.")
		}
		return utils.InternalServerError(c, "Could not save exercise results")
	}

	return c.JSON(progress)
}
