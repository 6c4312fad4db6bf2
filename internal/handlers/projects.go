package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/baiqwe/vidguide/internal/store"
	"github.com/baiqwe/vidguide/internal/types"
)

// ProjectHandler exposes the project queue over HTTP: intake, inspection and
// external reset. Processing itself stays with the worker poller.
type ProjectHandler struct {
	store *store.Store
	log   *logrus.Entry
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(s *store.Store, log *logrus.Entry) *ProjectHandler {
	return &ProjectHandler{store: s, log: log}
}

// CreateRequest represents the intake request body
type CreateRequest struct {
	VideoSourceURL string `json:"video_source_url"`
	GenerationMode string `json:"generation_mode"`
}

// Create enqueues a new pending project.
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	if req.VideoSourceURL == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "video_source_url is required",
			"code":  "ERR_NO_URL",
		})
	}
	if req.GenerationMode == "" {
		req.GenerationMode = types.ModeTextWithImages
	}
	if !types.ValidMode(req.GenerationMode) {
		return c.Status(400).JSON(fiber.Map{
			"error": "generation_mode must be text_only or text_with_images",
			"code":  "ERR_BAD_MODE",
		})
	}

	project := &types.Project{
		ID:             uuid.New().String(),
		VideoSourceURL: req.VideoSourceURL,
		GenerationMode: req.GenerationMode,
		CreditsCost:    types.MinCredits, // estimate until duration is known
	}
	if err := h.store.CreateProject(project); err != nil {
		h.log.WithError(err).Error("failed to create project")
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	h.log.WithFields(logrus.Fields{"project_id": project.ID, "mode": project.GenerationMode}).
		Info("project enqueued")
	return c.Status(201).JSON(fiber.Map{
		"id":     project.ID,
		"status": project.Status,
	})
}

// List returns recent projects.
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.store.ListProjects(50)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(projectViews(projects))
}

// Get returns a project with its persisted sections.
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.store.GetProject(c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Project not found"})
	}

	steps, err := h.store.ListSteps(project.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	view := projectView(project)
	stepViews := make([]fiber.Map, 0, len(steps))
	for _, s := range steps {
		stepViews = append(stepViews, fiber.Map{
			"order":             s.Order,
			"title":             s.Title,
			"content":           s.Content,
			"timestamp_seconds": s.TimestampSeconds,
			"image_path":        s.ImagePath,
		})
	}
	view["steps"] = stepViews
	return c.JSON(view)
}

// Reset returns a terminal project to pending for a fresh attempt, clearing
// its error and wiping previously persisted sections.
func (h *ProjectHandler) Reset(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.ResetProject(id); err != nil {
		return c.Status(409).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_NOT_RESETTABLE",
		})
	}
	h.log.WithField("project_id", id).Info("project reset to pending")
	return c.JSON(fiber.Map{"id": id, "status": types.StatusPending})
}

func projectView(p *types.Project) fiber.Map {
	return fiber.Map{
		"id":                     p.ID,
		"video_source_url":       p.VideoSourceURL,
		"status":                 p.Status,
		"generation_mode":        p.GenerationMode,
		"video_duration_seconds": p.DurationSeconds,
		"title":                  p.Title,
		"credits_cost":           p.CreditsCost,
		"error_message":          p.ErrorMessage,
		"created_at":             p.CreatedAt,
	}
}

func projectViews(projects []*types.Project) []fiber.Map {
	views := make([]fiber.Map, 0, len(projects))
	for _, p := range projects {
		views = append(views, projectView(p))
	}
	return views
}
