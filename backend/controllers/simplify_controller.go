package controllers

import (
	"log"
	"readable/backend/config"
	"readable/backend/simplifier"
	"readable/backend/utils"

	"github.com/gofiber/fiber/v2"
)

type SimplifyController struct {
	Cfg        *config.Config
	Simplifier *simplifier.Client
	Logger     *log.Logger
}

func NewSimplifyController(cfg *config.Config, client *simplifier.Client, logger *log.Logger) *SimplifyController {
	return &SimplifyController{Cfg: cfg, Simplifier: client, Logger: logger}
}

type simplifyRequest struct {
	Text string `json:"text"`
}

// Simplify proxies a one-off simplification request to the remote service.
func (sc *SimplifyController) Simplify(c *fiber.Ctx) error {
	if _, err := utils.ExtractUserIDFromToken(c, sc.Cfg); err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input simplifyRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if input.Text == "" {
		return utils.BadRequest(c, "Missing text field")
	}

	simplified, err := sc.Simplifier.Simplify(input.Text)
	if err != nil {
		sc.Logger.Printf("simplify proxy failed: %v", err)
		return utils.BadGateway(c, "Simplifier service unavailable")
	}

	return c.JSON(fiber.Map{
		"original_text":   input.Text,
		"simplified_text": simplified,
	})
}
