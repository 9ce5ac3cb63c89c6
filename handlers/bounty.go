// handlers/bounty.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"bounty-service/middleware"
	"bounty-service/services"
	"bounty-service/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// BountyHandler adapts the bounty manager's contract onto HTTP.
type BountyHandler struct {
	Manager *services.BountyManager
	Events  *services.EventBroadcaster
	Store   *services.BountyStore
	DB      *gorm.DB
}

func SetupBountyRoutes(app *fiber.App, h *BountyHandler) {
	// 🔓 Public routes — *no user context*, but **still require Gateway auth**
	app.Get("/bounties", h.ListBounties)
	app.Get("/bounties/:target", h.GetBountyByTarget)
	app.Get("/board", h.GetBoard)

	// 🔐 Secured routes — require user context (userID, roles), enforced via middleware
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/bounties", h.PlaceBounty)
	secured.Delete("/bounties/:target", h.RemoveBounty)
	secured.Post("/bounties/:target/claim", h.ClaimBounty)

	secured.Post("/tracking/:target", h.StartTracking)
	secured.Delete("/tracking", h.StopTracking)
	secured.Get("/tracking/:target", h.GetTrackingIndicator)

	secured.Get("/events", h.Events.StreamEventsSSE)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin")
	admin.Post("/bounties/random", h.GenerateRandomBounty)
	admin.Post("/save", h.SaveSnapshot)
}

// PlaceBounty places a bounty on a target, funded by the calling user.
func (h *BountyHandler) PlaceBounty(c *fiber.Ctx) error {
	placer := c.Locals("user_id").(string)

	var req struct {
		Target   string  `json:"target"`
		Reward   float64 `json:"reward"`
		Duration string  `json:"duration"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target is required"})
	}

	var duration time.Duration
	if req.Duration != "" {
		d, err := utils.ParseDuration(req.Duration)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		duration = d
	}

	bounty, err := h.Manager.PlaceBounty(placer, req.Target, req.Reward, duration)
	if err != nil {
		return bountyError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(bounty)
}

// RemoveBounty takes down the active bounty on a target (placer or admin).
func (h *BountyHandler) RemoveBounty(c *fiber.Ctx) error {
	remover := c.Locals("user_id").(string)

	bounty, err := h.Manager.RemoveBounty(remover, c.Params("target"), middleware.IsAdmin(c))
	if err != nil {
		return bountyError(c, err)
	}
	return c.JSON(bounty)
}

// ClaimBounty completes the active bounty on a target for the calling user.
func (h *BountyHandler) ClaimBounty(c *fiber.Ctx) error {
	hunter := c.Locals("user_id").(string)

	bounty, err := h.Manager.CompleteBounty(hunter, c.Params("target"))
	if err != nil {
		return bountyError(c, err)
	}
	return c.JSON(bounty)
}

// ListBounties returns all active bounties ordered by placement time.
func (h *BountyHandler) ListBounties(c *fiber.Ctx) error {
	return c.JSON(h.Manager.GetActiveBounties())
}

// GetBountyByTarget looks up the active bounty on a target.
func (h *BountyHandler) GetBountyByTarget(c *fiber.Ctx) error {
	target := c.Params("target")
	bounties := h.Manager.GetActiveBounties()
	for _, b := range bounties {
		if b.Target == target {
			return c.JSON(b)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active bounty on target"})
}

// GetBoard returns one page of the bounty board with navigation flags.
func (h *BountyHandler) GetBoard(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	return c.JSON(h.Manager.Board(page))
}

// StartTracking begins a tracking session and returns the initial indicator.
func (h *BountyHandler) StartTracking(c *fiber.Ctx) error {
	hunter := c.Locals("user_id").(string)

	indicator, err := h.Manager.StartTracking(hunter, c.Params("target"))
	if err != nil {
		return bountyError(c, err)
	}
	return c.JSON(indicator)
}

// StopTracking cancels the calling user's tracking session.
func (h *BountyHandler) StopTracking(c *fiber.Ctx) error {
	hunter := c.Locals("user_id").(string)
	h.Manager.StopTracking(hunter)
	return c.SendStatus(fiber.StatusNoContent)
}

// GetTrackingIndicator computes a one-shot indicator without a session.
func (h *BountyHandler) GetTrackingIndicator(c *fiber.Ctx) error {
	hunter := c.Locals("user_id").(string)

	indicator, err := h.Manager.GetTrackingIndicator(hunter, c.Params("target"))
	if err != nil {
		return bountyError(c, err)
	}
	return c.JSON(indicator)
}

// GenerateRandomBounty places a server-funded bounty on a random online user.
func (h *BountyHandler) GenerateRandomBounty(c *fiber.Ctx) error {
	if !middleware.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}

	var req struct {
		Reward   float64 `json:"reward"`
		Duration string  `json:"duration"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Reward <= 0 {
		req.Reward = 100
	}

	var duration time.Duration
	if req.Duration != "" {
		d, err := utils.ParseDuration(req.Duration)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		duration = d
	}

	bounty, err := h.Manager.GenerateRandomBounty(req.Reward, duration)
	if err != nil {
		return bountyError(c, err)
	}
	if bounty == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no eligible targets online"})
	}
	return c.Status(fiber.StatusCreated).JSON(bounty)
}

// SaveSnapshot persists the full bounty table and, when configured, uploads
// an R2 backup.
func (h *BountyHandler) SaveSnapshot(c *fiber.Ctx) error {
	if !middleware.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}

	if err := h.Store.SaveAll(h.DB); err != nil {
		log.Printf("Failed to save bounty snapshot: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save bounties"})
	}

	if utils.SnapshotBackupEnabled() {
		payload, _ := json.Marshal(h.Store.Records())
		key, err := utils.UploadSnapshotToR2(context.Background(), payload)
		if err != nil {
			log.Printf("Snapshot backup failed: %v", err)
		} else {
			log.Printf("Snapshot backup uploaded: %s", key)
		}
	}

	return c.JSON(fiber.Map{"saved": len(h.Store.Records())})
}

// bountyError maps the manager's error taxonomy onto HTTP statuses.
func bountyError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrDuplicateActiveBounty):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrNoActiveBounty), errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrPlaceCooldown):
		status = fiber.StatusTooManyRequests
	case errors.Is(err, services.ErrRewardTooLow), errors.Is(err, services.ErrInsufficientFunds), errors.Is(err, services.ErrInvalidTransition):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
