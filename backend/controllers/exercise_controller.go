package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"readable/backend/config"
	"readable/backend/engine"
	"readable/backend/models"
	"readable/backend/services"
	"readable/backend/simplifier"
	"readable/backend/utils"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ExerciseController struct {
	DB         *gorm.DB
	Cfg        *config.Config
	Progress   *services.ProgressService
	Simplifier *simplifier.Client
	Logger     *log.Logger
}

func NewExerciseController(db *gorm.DB, cfg *config.Config, progress *services.ProgressService, client *simplifier.Client, logger *log.Logger) *ExerciseController {
	return &ExerciseController{DB: db, Cfg: cfg, Progress: progress, Simplifier: client, Logger: logger}
}

// GetDailyExercise godoc
// @Summary Get a daily exercise passage
// @Description Picks a random passage and simplifies it for the user's reading level
// @Tags exercises
// @Accept json
// @Produce json
// @Param min_words query int false "Minimum passage word count" default(10)
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /exercises/daily [get]
func (ec *ExerciseController) GetDailyExercise(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, ec.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	minWords, _ := strconv.Atoi(c.Query("min_words", "10"))
	if minWords < 1 {
		minWords = 10
	}

	var progress models.UserProgress
	if err := ec.DB.Where("user_id = ?", userID).First(&progress).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "User stats not found. Please visit dashboard first.")
		}
		return utils.InternalServerError(c, "Could not query database")
	}
	readingLevel := progress.ReadingLevel
	if !engine.ValidLevel(readingLevel) {
		readingLevel = engine.LevelIntermediate
	}

	var passage models.Passage
	if err := ec.DB.Where("word_count >= ?", minWords).
		Order("RANDOM()").
		First(&passage).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "No passages found with at least "+strconv.Itoa(minWords)+" words")
		}
		return utils.InternalServerError(c, "Could not query database")
	}

	simplifiedText := passage.AdvancedText
	simplificationType := "original"

	// Advanced readers get the source text untouched; everyone else goes
	// through the remote simplifier, falling back to the stored reference
	// pairing when the service is unavailable.
	if readingLevel == engine.LevelBeginner || readingLevel == engine.LevelIntermediate {
		text, err := ec.Simplifier.SimplifyForTier(passage.AdvancedText, readingLevel)
		if err == nil {
			simplifiedText = text
			simplificationType = "simplified-" + readingLevel
		} else {
			ec.Logger.Printf("simplifier unavailable, using reference text: %v", err)
			if passage.ReferenceText == "" {
				return utils.BadGateway(c, "Simplifier service unavailable")
			}
			simplifiedText = passage.ReferenceText
			simplificationType = "data-" + readingLevel
		}
	}

	return c.JSON(fiber.Map{
		"original_text":         passage.AdvancedText,
		"simplified_text":       simplifiedText,
		"data_simplified_text":  passage.ReferenceText,
		"word_count":            len(strings.Fields(simplifiedText)),
		"source":                passage.Source,
		"original_difficulty":   engine.LevelAdvanced,
		"simplified_difficulty": readingLevel,
		"simplification_type":   simplificationType,
	})
}

// GetDailyComprehension returns the comprehension questions attached to a
// passage.
func (ec *ExerciseController) GetDailyComprehension(c *fiber.Ctx) error {
	if _, err := utils.ExtractUserIDFromToken(c, ec.Cfg); err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var passage models.Passage
	if err := ec.DB.Where("questions <> ''").
		Order("RANDOM()").
		First(&passage).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "No comprehension exercises available")
		}
		return utils.InternalServerError(c, "Could not query database")
	}

	var questions []models.PassageQuestion
	if err := json.Unmarshal([]byte(passage.Questions), &questions); err != nil {
		return utils.InternalServerError(c, "Malformed comprehension questions")
	}

	return c.JSON(fiber.Map{
		"text":      passage.AdvancedText,
		"questions": questions,
	})
}
