package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"
)

var ErrBotNotConfigured = errors.New("telegram bot token is not configured")

// Client is the bot API surface the game needs: direct messages and channel membership.
// A Client without a bot silently drops messages and refuses membership checks.
type Client struct {
	Bot *telego.Bot
	log *zap.Logger
}

func NewClient(token string, log *zap.Logger, opts ...telego.BotOption) (*Client, error) {
	if token == "" {
		log.Warn("TELEGRAM_BOT_TOKEN is empty, notifications disabled and subscriptions cannot be verified")
		return &Client{log: log}, nil
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Client{Bot: bot, log: log}, nil
}

func (c *Client) Configured() bool {
	return c.Bot != nil
}

func (c *Client) SendMessage(ctx context.Context, userID int64, text string) error {
	if c.Bot == nil {
		return nil
	}
	if _, err := c.Bot.SendMessage(ctx, tu.Message(tu.ID(userID), text)); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", userID, err)
	}
	return nil
}

// IsChannelMember asks the platform whether userID currently belongs to channel.
func (c *Client) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	if c.Bot == nil {
		return false, ErrBotNotConfigured
	}

	member, err := c.Bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.Username(NormalizeChannel(channel)),
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to get %s membership for %d: %w", channel, userID, err)
	}
	return IsSubscribed(member), nil
}

// IsSubscribed reports whether a membership state counts as subscribed.
func IsSubscribed(member telego.ChatMember) bool {
	if member == nil {
		return false
	}
	switch member.MemberStatus() {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator, telego.MemberStatusMember:
		return true
	case telego.MemberStatusRestricted:
		if r, ok := member.(*telego.ChatMemberRestricted); ok {
			return r.IsMember
		}
	}
	return false
}

// NormalizeChannel turns "news", "@news" and "https://t.me/news" into "@news".
func NormalizeChannel(channel string) string {
	ch := strings.TrimSpace(channel)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		ch = strings.TrimPrefix(ch, prefix)
	}
	ch = strings.TrimPrefix(ch, "@")
	ch = strings.TrimRight(ch, "/")
	if ch == "" {
		return ""
	}
	return "@" + ch
}
