package api

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"tapscore-bot/internal/utils"
)

const (
	adminTokenHeader    = "X-Admin-Token"
	webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// NewApp wires routes and middleware.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", h.Health)
	app.Post("/webhook", h.Webhook)

	api := app.Group("/api")
	api.Post("/score", h.SubmitScore)
	api.Get("/leaderboard", h.Leaderboard)
	api.Get("/balance/:user_id", h.Balance)
	api.Get("/channels", h.Channels)
	api.Post("/referral/claim", h.ClaimReferral)
	api.Get("/referral/stats/:user_id", h.ReferralStats)
	api.Post("/subscription/claim", h.ClaimSubscription)

	admin := api.Group("/admin", h.adminOnly)
	admin.Post("/channels", h.UpsertChannel)
	admin.Post("/reset", h.TriggerReset)

	return app
}

func (h *Handler) adminOnly(c *fiber.Ctx) error {
	if h.cfg.AdminToken == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin API disabled"})
	}
	if !utils.IsAllowedIP(c.IP(), h.cfg.AdminAllowedCIDRs) {
		h.log.Warn("admin request from disallowed ip", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	token := c.Get(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid admin token"})
	}
	return c.Next()
}
