// Package chat proxies free-form health questions to the upstream assistant.
package chat

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/animus/animus/internal/platform/remote"
)

// Apology is returned in place of the assistant reply when the upstream call fails.
const Apology = "Sorry, I could not process your request. Please try again."

const (
	systemPrompt = "You are Animus, a helpful health assistant. Answer clearly and briefly, " +
		"and recommend consulting a healthcare professional for medical decisions."
	maxTokens = 500
)

type Assistant interface {
	Chat(ctx context.Context, messages []remote.ChatMessage, maxTokens int) (string, error)
}

type Handler struct {
	assistant Assistant
	logger    zerolog.Logger
}

func NewHandler(assistant Assistant, logger zerolog.Logger) *Handler {
	return &Handler{assistant: assistant, logger: logger}
}

// RegisterRoutes mounts the chat endpoint. Extra middleware, such as a rate
// limiter, applies to this route only.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	api.POST("/chat", h.Ask, mw...)
}

type askRequest struct {
	Prompt string `json:"prompt"`
}

type askResponse struct {
	Reply string `json:"reply"`
	Error bool   `json:"error,omitempty"`
}

func (h *Handler) Ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}

	reply, err := h.assistant.Chat(c.Request().Context(), []remote.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, maxTokens)
	if err != nil || strings.TrimSpace(reply) == "" {
		h.logger.Warn().Err(err).Msg("chat request failed")
		return c.JSON(http.StatusOK, askResponse{Reply: Apology, Error: true})
	}
	return c.JSON(http.StatusOK, askResponse{Reply: reply})
}
