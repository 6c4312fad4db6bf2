package handlers

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/baiqwe/vidguide/internal/store"
	"github.com/baiqwe/vidguide/internal/types"
)

// PromptHandler manages operator prompt overrides per generation mode.
// Without an override the analysis engine uses its built-in template.
type PromptHandler struct {
	store *store.Store
	log   *logrus.Entry
}

// NewPromptHandler creates a new prompt handler
func NewPromptHandler(s *store.Store, log *logrus.Entry) *PromptHandler {
	return &PromptHandler{store: s, log: log}
}

// Get returns the stored override for a mode, or 404 when the built-in
// default is in effect.
func (h *PromptHandler) Get(c *fiber.Ctx) error {
	mode := c.Params("mode")
	tpl, err := h.store.GetPromptTemplate(mode)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{"error": "no override set, built-in template in use"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"mode": mode, "template": tpl})
}

// Set stores an override template for a mode.
func (h *PromptHandler) Set(c *fiber.Ctx) error {
	mode := c.Params("mode")
	if !types.ValidMode(mode) {
		return c.Status(400).JSON(fiber.Map{
			"error": "mode must be text_only or text_with_images",
			"code":  "ERR_BAD_MODE",
		})
	}

	var req struct {
		Template string `json:"template"`
	}
	if err := c.BodyParser(&req); err != nil || req.Template == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "template is required",
			"code":  "ERR_NO_TEMPLATE",
		})
	}

	if err := h.store.SetPromptTemplate(mode, req.Template); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	h.log.WithField("mode", mode).Info("prompt template override updated")
	return c.JSON(fiber.Map{"mode": mode})
}
