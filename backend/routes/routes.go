package routes

import (
	"log"
	"readable/backend/config"
	"readable/backend/controllers"
	"readable/backend/middleware"
	"readable/backend/services"
	"readable/backend/simplifier"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg *config.Config, logger *log.Logger) {
	progressService := services.NewProgressService(db, logger)
	simplifierClient := simplifier.NewClient(cfg.SimplifierURL)

	// Auth routes
	authController := controllers.NewAuthController(db, cfg)
	app.Post("/api/auth/register", authController.Register)
	app.Post("/api/auth/login", authController.Login)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(cfg)

	// User routes
	userController := controllers.NewUserController(db, cfg, progressService)
	app.Get("/api/user/profile", authMiddleware, userController.GetProfile)

	// Progress routes
	progressController := controllers.NewProgressController(db, cfg, progressService)
	user := app.Group("/api/user", authMiddleware)
	user.Get("/stats", progressController.GetStats)
	user.Post("/start-reading", progressController.StartReading)
	user.Post("/finish-reading", progressController.FinishReading)
	user.Post("/exercise-complete", progressController.ExerciseComplete)

	// Diagnostic routes
	diagnosticController := controllers.NewDiagnosticController(db, cfg, progressService)
	user.Post("/diagnostic-complete", diagnosticController.DiagnosticComplete)
	user.Get("/diagnostic-results", diagnosticController.GetDiagnosticResults)

	// Exercise routes
	exerciseController := controllers.NewExerciseController(db, cfg, progressService, simplifierClient, logger)
	exercises := app.Group("/api/exercises", authMiddleware)
	exercises.Get("/daily", exerciseController.GetDailyExercise)
	exercises.Get("/daily-comprehension", exerciseController.GetDailyComprehension)

	// Simplifier proxy
	simplifyController := controllers.NewSimplifyController(cfg, simplifierClient, logger)
	app.Post("/api/simplify", authMiddleware, simplifyController.Simplify)
}
