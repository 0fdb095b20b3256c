package controllers

import (
	"errors"
	"readable/backend/config"
	"readable/backend/services"
	"readable/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DiagnosticController struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Progress *services.ProgressService
}

func NewDiagnosticController(db *gorm.DB, cfg *config.Config, progress *services.ProgressService) *DiagnosticController {
	return &DiagnosticController{DB: db, Cfg: cfg, Progress: progress}
}

type diagnosticCompleteRequest struct {
	DifficultWords       []string `json:"difficultWords"`
	TotalWords           int      `json:"totalWords"`
	ComprehensionCorrect int      `json:"comprehensionCorrect"`
	ComprehensionTotal   int      `json:"comprehensionTotal"`
	RecallMissed         int      `json:"recallMissed"`
	WordsPerMinute       int      `json:"wordsPerMinute"`
	ReadingTimeSeconds   int      `json:"readingTimeSeconds"`
}

// DiagnosticComplete godoc
// @Summary Complete the onboarding diagnostic
// @Description Classifies the diagnostic signals, seeds the reading level, and archives the result
// @Tags diagnostic
// @Accept json
// @Produce json
// @Param request body diagnosticCompleteRequest true "Diagnostic signals"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/diagnostic-complete [post]
func (dc *DiagnosticController) DiagnosticComplete(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, dc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input diagnosticCompleteRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	result, progress, err := dc.Progress.CompleteDiagnostic(userID, services.DiagnosticSubmission{
		DifficultWords:       len(input.DifficultWords),
		TotalWords:           input.TotalWords,
		ComprehensionCorrect: input.ComprehensionCorrect,
		ComprehensionTotal:   input.ComprehensionTotal,
		RecallMissed:         input.RecallMissed,
		WordsPerMinute:       input.WordsPerMinute,
		ReadingSeconds:       input.ReadingTimeSeconds,
	})
	if err != nil {
		if errors.Is(err, services.ErrProgressNotFound) {
			return utils.NotFound(c, "User stats not found. Please fetch stats first.")
		}
		return utils.InternalServerError(c, "Could not save diagnostic results")
	}

	return c.JSON(fiber.Map{
		"readingLevel": result.ReadingLevel,
		"result":       result,
		"progress":     progress,
	})
}

// GetDiagnosticResults returns the latest archived classification.
func (dc *DiagnosticController) GetDiagnosticResults(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, dc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	result, err := dc.Progress.LatestDiagnostic(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "No diagnostic results found")
		}
		return utils.InternalServerError(c, "Could not load diagnostic results")
	}

	return c.JSON(result)
}
