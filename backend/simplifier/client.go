// Package simplifier is the client for the external text-simplification
// service. The contract is small: set a difficulty tier, then send text and
// get simplified text back. Nothing about the rewriting itself lives here.
package simplifier

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

const requestTimeout = 15 * time.Second

type Client struct {
	BaseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

type simplifyRequest struct {
	Text string `json:"text"`
}

type simplifyResponse struct {
	OriginalText   string `json:"original_text"`
	SimplifiedText string `json:"simplified_text"`
	Error          string `json:"error"`
}

type setTierRequest struct {
	Tier string `json:"tier"`
}

// SetTier tells the service which difficulty to target for subsequent
// Simplify calls.
func (cl *Client) SetTier(tier string) error {
	agent := fiber.Post(cl.BaseURL + "/api/simplify/set-tier")
	agent.Timeout(requestTimeout)
	agent.JSON(setTierRequest{Tier: tier})

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("simplifier set-tier: %w", errs[0])
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("simplifier set-tier: unexpected status %d", code)
	}
	return nil
}

// Simplify sends text to the service and returns the simplified version.
func (cl *Client) Simplify(text string) (string, error) {
	agent := fiber.Post(cl.BaseURL + "/api/simplify")
	agent.Timeout(requestTimeout)
	agent.JSON(simplifyRequest{Text: text})

	var out simplifyResponse
	code, _, errs := agent.Struct(&out)
	if len(errs) > 0 {
		return "", fmt.Errorf("simplifier: %w", errs[0])
	}
	if code != fiber.StatusOK {
		return "", fmt.Errorf("simplifier: unexpected status %d", code)
	}
	if out.SimplifiedText == "" {
		return "", fmt.Errorf("simplifier: empty simplified text in response")
	}
	return out.SimplifiedText, nil
}

// SimplifyForTier combines SetTier and Simplify, the sequence every caller
// wants.
func (cl *Client) SimplifyForTier(text, tier string) (string, error) {
	if err := cl.SetTier(tier); err != nil {
		return "", err
	}
	return cl.Simplify(text)
}
