// handlers/admin_routes.go
package handlers

import (
	"context"
	"time"

	"dnd-mplus-bot/middleware"
	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"
	"dnd-mplus-bot/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Rotator interface {
	Run(ctx context.Context) (workers.RotationResult, error)
}

type Syncer interface {
	Run(ctx context.Context) (workers.SyncReport, error)
}

type SignupReader interface {
	Signups(ctx context.Context) ([]models.Registration, error)
	Info(ctx context.Context) (services.EventInfo, error)
}

// NextRunner reports upcoming scheduled jobs.
type NextRunner interface {
	NextRuns() map[string]time.Time
}

// AdminHandler serves the operator HTTP surface.
type AdminHandler struct {
	Signups   SignupReader
	Rotator   Rotator
	Syncer    Syncer
	Scheduler NextRunner
	Logger    *zap.Logger
}

func SetupAdminRoutes(app *fiber.App, h *AdminHandler, serviceToken string) {
	// 🔓 Public: liveness and metrics
	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// 🔐 Secured: service token plus operator audit
	secured := app.Group("/",
		middleware.AdminTokenMiddleware(serviceToken, h.Logger),
		middleware.OperatorContextMiddleware(h.Logger))

	secured.Get("/signups", h.ListSignups)
	secured.Get("/signups/info", h.SignupInfo)
	secured.Post("/admin/rotate", h.Rotate)
	secured.Post("/admin/sync", h.Sync)
}

func (h *AdminHandler) Health(c *fiber.Ctx) error {
	next := fiber.Map{}
	if h.Scheduler != nil {
		for name, t := range h.Scheduler.NextRuns() {
			next[name] = t.Format(time.RFC3339)
		}
	}
	return c.JSON(fiber.Map{"status": "ok", "next_runs": next})
}

func (h *AdminHandler) ListSignups(c *fiber.Ctx) error {
	rows, err := h.Signups.Signups(c.UserContext())
	if err != nil {
		h.Logger.Error("❌ Failed to list signups", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list signups"})
	}

	out := make([]models.SignupFields, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.NewSignupFields(r))
	}
	return c.JSON(fiber.Map{"count": len(out), "signups": out})
}

func (h *AdminHandler) SignupInfo(c *fiber.Ctx) error {
	info, err := h.Signups.Info(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to count signups"})
	}
	return c.JSON(fiber.Map{
		"signups":    info.Signups,
		"event_date": info.EventDate.Format("2006-01-02"),
		"link":       info.Link,
		"message":    info.Message(),
	})
}

func (h *AdminHandler) Rotate(c *fiber.Ctx) error {
	operator := middleware.Operator(c)
	res, err := h.Rotator.Run(c.UserContext())
	if err != nil {
		h.Logger.Error("❌ Manual rotation failed", zap.String("operator", operator), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	h.Logger.Info("🔄 Manual rotation", zap.String("operator", operator),
		zap.Bool("rotated", res.Rotated), zap.String("cutoff_sheet", res.CutoffSheet))
	return c.JSON(fiber.Map{
		"rotated":      res.Rotated,
		"cutoff_sheet": res.CutoffSheet,
		"archive_key":  res.ArchiveKey,
	})
}

func (h *AdminHandler) Sync(c *fiber.Ctx) error {
	operator := middleware.Operator(c)
	report, err := h.Syncer.Run(c.UserContext())
	if err != nil {
		h.Logger.Error("❌ Manual sync failed", zap.String("operator", operator), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	h.Logger.Info("🔁 Manual sync", zap.String("operator", operator), zap.Int("updated", report.Updated))
	return c.JSON(fiber.Map{
		"sheets":      report.Sheets,
		"total":       report.Total,
		"updated":     report.Updated,
		"not_found":   report.NotFound,
		"failed":      report.Failed,
		"skipped":     report.Skipped,
		"duration_ms": report.Duration.Milliseconds(),
	})
}
