package api

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"tapscore-bot/internal/bot"
	"tapscore-bot/internal/config"
	"tapscore-bot/internal/gameday"
	"tapscore-bot/internal/leaderboard"
	"tapscore-bot/internal/models"
	"tapscore-bot/internal/repository"
	"tapscore-bot/internal/rewards"
	"tapscore-bot/internal/telegram"
	"tapscore-bot/internal/worker"
)

type Handler struct {
	cfg       *config.Config
	store     repository.Store
	board     *leaderboard.Board
	engine    *rewards.Engine
	scheduler *worker.Scheduler
	bot       *bot.Bot
	days      gameday.Policy
	validate  *validator.Validate
	log       *zap.Logger
}

func New(
	cfg *config.Config,
	store repository.Store,
	board *leaderboard.Board,
	engine *rewards.Engine,
	scheduler *worker.Scheduler,
	bot *bot.Bot,
	days gameday.Policy,
	log *zap.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		board:     board,
		engine:    engine,
		scheduler: scheduler,
		bot:       bot,
		days:      days,
		validate:  newValidator(),
		log:       log,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

type scoreRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Name   string `json:"name" validate:"max=255"`
	Score  *int64 `json:"score" validate:"required,gte=0"`
}

type referralClaimRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Name   string `json:"name" validate:"max=255"`
}

type subscriptionClaimRequest struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	Channel string `json:"channel" validate:"required,max=64"`
}

type channelRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Reward   *int64 `json:"reward" validate:"omitempty,gte=0"`
}

type resetRequest struct {
	Day string `json:"day"`
}

type channelView struct {
	Username string `json:"username"`
	Reward   int64  `json:"reward"`
	Claimed  bool   `json:"claimed"`
}

// Webhook receives Telegram updates. A processing error answers 500 so Telegram redelivers.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	if h.cfg.WebhookSecret != "" && c.Get(webhookSecretHeader) != h.cfg.WebhookSecret {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var update telego.Update
	if err := c.BodyParser(&update); err != nil {
		h.log.Warn("failed to decode webhook", zap.Error(err))
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if err := h.bot.HandleUpdate(c.UserContext(), update); err != nil {
		h.log.Error("failed to process update", zap.Int("update_id", update.UpdateID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *Handler) SubmitScore(c *fiber.Ctx) error {
	var req scoreRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	day := h.days.Today()
	if err := h.board.SubmitScore(c.UserContext(), req.UserID, req.Name, *req.Score, day); err != nil {
		return h.fail(c, err)
	}

	rank, _, err := h.board.RankOf(c.UserContext(), req.UserID, day)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "day": day, "rank": rank})
}

func (h *Handler) Leaderboard(c *fiber.Ctx) error {
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		id, ok := parseUserID(raw)
		if !ok {
			return badUserID(c)
		}
		userID = id
	}

	day := c.Query("day", h.days.Today())
	if !gameday.Valid(day) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid day"})
	}

	view, err := h.board.Leaderboard(c.UserContext(), userID, day)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// Balance creates the user on first contact, so an unseen id reads as zero.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, ok := parseUserID(c.Params("user_id"))
	if !ok {
		return badUserID(c)
	}

	user, _, err := h.store.GetOrCreateUser(c.UserContext(), userID, "", "")
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"user_id": user.ID, "tokens": user.Tokens})
}

func (h *Handler) Channels(c *fiber.Ctx) error {
	var userID int64
	if raw := c.Query("user_id"); raw != "" {
		id, ok := parseUserID(raw)
		if !ok {
			return badUserID(c)
		}
		userID = id
	}

	channels, err := h.store.Channels(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}

	out := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		view := channelView{Username: ch.Username, Reward: ch.Reward}
		if userID > 0 {
			claimed, err := h.store.HasClaim(c.UserContext(), userID, models.ClaimSubscription, ch.Username)
			if err != nil {
				return h.fail(c, err)
			}
			view.Claimed = claimed
		}
		out = append(out, view)
	}
	return c.JSON(fiber.Map{"channels": out})
}

// ClaimReferral is called by the mini-app on open. It refreshes the caller's name and pays their referrer once.
func (h *Handler) ClaimReferral(c *fiber.Ctx) error {
	var req referralClaimRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	if _, _, err := h.store.GetOrCreateUser(c.UserContext(), req.UserID, "", req.Name); err != nil {
		return h.fail(c, err)
	}

	res, err := h.engine.ConfirmReferral(c.UserContext(), req.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) ReferralStats(c *fiber.Ctx) error {
	userID, ok := parseUserID(c.Params("user_id"))
	if !ok {
		return badUserID(c)
	}

	if _, _, err := h.store.GetOrCreateUser(c.UserContext(), userID, "", ""); err != nil {
		return h.fail(c, err)
	}
	stats, err := h.store.ReferralStats(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}

	resp := fiber.Map{
		"invited":   stats.Invited,
		"confirmed": stats.Confirmed,
		"earned":    stats.Earned,
		"reward":    rewards.ReferralReward,
	}
	if h.cfg.BotUsername != "" {
		resp["link"] = bot.ReferralLink(h.cfg.BotUsername, userID)
	}
	return c.JSON(resp)
}

func (h *Handler) ClaimSubscription(c *fiber.Ctx) error {
	var req subscriptionClaimRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	if _, _, err := h.store.GetOrCreateUser(c.UserContext(), req.UserID, "", ""); err != nil {
		return h.fail(c, err)
	}

	res, err := h.engine.ClaimSubscription(c.UserContext(), req.UserID, req.Channel)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) UpsertChannel(c *fiber.Ctx) error {
	var req channelRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	username := telegram.NormalizeChannel(req.Username)
	if username == "" {
		return h.fail(c, rewards.ErrInvalidChannel)
	}
	reward := rewards.DefaultChannelReward
	if req.Reward != nil {
		reward = *req.Reward
	}

	ch, err := h.store.UpsertChannel(c.UserContext(), username, reward)
	if err != nil {
		return h.fail(c, err)
	}
	h.log.Info("channel upserted", zap.String("channel", ch.Username), zap.Int64("amount", ch.Reward))
	return c.JSON(channelView{Username: ch.Username, Reward: ch.Reward})
}

// TriggerReset pays the given day (today by default) right away. It is not idempotent.
func (h *Handler) TriggerReset(c *fiber.Ctx) error {
	var req resetRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	if req.Day == "" {
		req.Day = c.Query("day")
	}

	dist, err := h.scheduler.TriggerNow(c.UserContext(), req.Day)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dist)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"day":    h.days.Today(),
	})
}

// parseBody decodes and validates a JSON body into dst. When it returns false
// the 400 response has already been written.
func (h *Handler) parseBody(c *fiber.Ctx, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}
	return true, nil
}

func parseUserID(value string) (int64, bool) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func badUserID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user_id"})
}

// fail maps service errors onto HTTP statuses.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, leaderboard.ErrInvalidScore),
		errors.Is(err, leaderboard.ErrInvalidUser),
		errors.Is(err, leaderboard.ErrInvalidDay),
		errors.Is(err, worker.ErrFutureDay),
		errors.Is(err, rewards.ErrInvalidUser),
		errors.Is(err, rewards.ErrInvalidChannel):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, telegram.ErrBotNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "subscription verification is not configured"})
	case errors.Is(err, rewards.ErrMembershipCheck):
		h.log.Warn("membership check failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "could not verify subscription, try again", "retryable": true})
	}

	h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid " + fe.Field() + ": failed " + fe.Tag()
	}
	return "invalid request"
}
