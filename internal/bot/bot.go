package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"tapscore-bot/internal/repository"
)

const referralPrefix = "ref_"

type Bot struct {
	Instance  *telego.Bot
	Store     repository.Store
	WebAppURL string
	Log       *zap.Logger
}

func NewBot(instance *telego.Bot, store repository.Store, webAppURL string, log *zap.Logger) *Bot {
	return &Bot{
		Instance:  instance,
		Store:     store,
		WebAppURL: webAppURL,
		Log:       log,
	}
}

// Start consumes updates through long polling. Cancelling ctx closes the update channel and returns.
func (b *Bot) Start(ctx context.Context) error {
	if b.Instance == nil {
		return fmt.Errorf("long polling needs a bot token")
	}

	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		return b.HandleUpdate(ctx.Context(), update)
	}, th.CommandEqual("start"))

	b.Log.Info("bot long polling started")
	return handler.Start()
}

// HandleUpdate processes one update. Only /start is meaningful; everything else is ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update telego.Update) error {
	message := update.Message
	if message == nil || message.From == nil {
		return nil
	}

	command, payload := splitCommand(message.Text)
	if command != "/start" {
		return nil
	}
	return b.handleStart(ctx, message, payload)
}

func (b *Bot) handleStart(ctx context.Context, message *telego.Message, payload string) error {
	from := message.From
	log := b.Log.With(zap.Int64("user_id", from.ID))

	user, created, err := b.Store.GetOrCreateUser(ctx, from.ID, from.Username, DisplayName(from))
	if err != nil {
		return err
	}
	if created {
		log.Info("new player")
	}

	// Only a first contact can carry a referrer. Users seen before keep whatever they have.
	if referrerID, ok := ParseReferrer(payload); ok && created && user.ReferrerID == nil {
		linked, err := b.Store.LinkReferrer(ctx, from.ID, referrerID)
		if err != nil {
			return err
		}
		if linked {
			log.Info("referrer linked", zap.Int64("referrer_id", referrerID))
		}
	}

	b.sendWelcome(ctx, message.Chat.ID, from.FirstName)
	return nil
}

func (b *Bot) sendWelcome(ctx context.Context, chatID int64, name string) {
	if b.Instance == nil {
		return
	}

	msg := tu.Message(
		tu.ID(chatID),
		fmt.Sprintf("Hi, %s! 👋\n\nTap to play, beat your best score and climb today's leaderboard. Top players get tokens every day.", name),
	)
	if b.WebAppURL != "" {
		msg = msg.WithReplyMarkup(tu.InlineKeyboard(
			tu.InlineKeyboardRow(
				tu.InlineKeyboardButton("🎮 Play").WithWebApp(&telego.WebAppInfo{URL: b.WebAppURL}),
			),
		))
	}

	if _, err := b.Instance.SendMessage(ctx, msg); err != nil {
		b.Log.Warn("failed to send welcome", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// ParseReferrer accepts "ref_<id>" and a bare "<id>".
func ParseReferrer(payload string) (int64, bool) {
	payload = strings.TrimPrefix(strings.TrimSpace(payload), referralPrefix)
	if payload == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ReferralLink builds the t.me deep link that carries userID as referrer.
func ReferralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, referralPrefix, userID)
}

func DisplayName(u *telego.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// splitCommand returns "/start" and "ref_1" for "/start@my_bot ref_1".
func splitCommand(text string) (string, string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", ""
	}
	command := parts[0]
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}
	payload := ""
	if len(parts) > 1 {
		payload = parts[1]
	}
	return command, payload
}
