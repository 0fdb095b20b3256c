package controllers

import (
	"readable/backend/config"
	"readable/backend/models"
	"readable/backend/services"
	"readable/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserController struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Progress *services.ProgressService
}

func NewUserController(db *gorm.DB, cfg *config.Config, progress *services.ProgressService) *UserController {
	return &UserController{DB: db, Cfg: cfg, Progress: progress}
}

// GetProfile godoc
// @Summary Get user profile
// @Description Returns authenticated user's profile with reading progress
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/profile [get]
func (uc *UserController) GetProfile(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, uc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var user models.User
	if err := uc.DB.First(&user, userID).Error; err != nil {
		return utils.NotFound(c, "User not found")
	}

	progress, err := uc.Progress.GetProgress(userID)
	if err != nil {
		return utils.InternalServerError(c, "Could not load progress")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": user.CreatedAt,
		"progress":   progress,
	})
}
