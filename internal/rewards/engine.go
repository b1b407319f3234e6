package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tapscore-bot/internal/leaderboard"
	"tapscore-bot/internal/models"
	"tapscore-bot/internal/repository"
	"tapscore-bot/internal/telegram"
)

const (
	ReferralReward       int64 = 500
	DefaultChannelReward int64 = 700
)

// Reason codes for results that credited nothing.
const (
	ReasonAlreadyClaimed   = "already_claimed"
	ReasonNotMember        = "not_member"
	ReasonNoReferrer       = "no_referrer"
	ReasonReferrerMissing  = "referrer_missing"
	ReasonAlreadyConfirmed = "already_confirmed"
)

var (
	ErrMembershipCheck = errors.New("membership check failed")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrInvalidUser     = errors.New("invalid user id")
)

type MembershipChecker interface {
	IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error)
}

type Notifier interface {
	Notify(userID int64, text string)
}

type Result struct {
	Credited bool   `json:"credited"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason,omitempty"`
}

type Payout struct {
	UserID int64 `json:"user_id"`
	Rank   int   `json:"rank"`
	Score  int64 `json:"score"`
	Amount int64 `json:"amount"`
}

type Distribution struct {
	Day     string   `json:"day"`
	RunID   string   `json:"run_id"`
	Payouts []Payout `json:"payouts"`
	Total   int64    `json:"total"`
}

type Engine struct {
	store    repository.Store
	board    *leaderboard.Board
	members  MembershipChecker
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewEngine(store repository.Store, board *leaderboard.Board, members MembershipChecker, notifier Notifier, log *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		board:    board,
		members:  members,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// ConfirmReferral pays the referrer of newUserID the first time the referred user opens the app.
func (e *Engine) ConfirmReferral(ctx context.Context, newUserID int64) (Result, error) {
	if newUserID <= 0 {
		return Result{}, ErrInvalidUser
	}

	referrerID, outcome, err := e.store.ConfirmReferral(ctx, newUserID, ReferralReward)
	if err != nil {
		return Result{}, err
	}

	switch outcome {
	case repository.ReferralCredited:
	case repository.ReferralAlreadyConfirmed:
		return Result{Reason: ReasonAlreadyConfirmed}, nil
	case repository.ReferralReferrerMissing:
		return Result{Reason: ReasonReferrerMissing}, nil
	default:
		return Result{Reason: ReasonNoReferrer}, nil
	}

	e.log.Info("referral confirmed",
		zap.Int64("user_id", newUserID), zap.Int64("referrer_id", referrerID), zap.Int64("amount", ReferralReward))
	e.notify(referrerID, fmt.Sprintf("🎉 Your friend joined the game! +%d tokens", ReferralReward))
	return Result{Credited: true, Amount: ReferralReward}, nil
}

// ClaimSubscription pays userID once per channel after the platform confirms membership.
func (e *Engine) ClaimSubscription(ctx context.Context, userID int64, channel string) (Result, error) {
	if userID <= 0 {
		return Result{}, ErrInvalidUser
	}
	channel = telegram.NormalizeChannel(channel)
	if channel == "" {
		return Result{}, ErrInvalidChannel
	}

	claimed, err := e.store.HasClaim(ctx, userID, models.ClaimSubscription, channel)
	if err != nil {
		return Result{}, err
	}
	if claimed {
		return Result{Reason: ReasonAlreadyClaimed}, nil
	}

	member, err := e.members.IsChannelMember(ctx, channel, userID)
	if errors.Is(err, telegram.ErrBotNotConfigured) {
		return Result{}, err
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMembershipCheck, err)
	}
	if !member {
		return Result{Reason: ReasonNotMember}, nil
	}

	amount := DefaultChannelReward
	ch, err := e.store.Channel(ctx, channel)
	switch {
	case err == nil:
		amount = ch.Reward
	case !errors.Is(err, repository.ErrNotFound):
		return Result{}, err
	}

	granted, err := e.store.GrantReward(ctx, &models.RewardClaim{
		UserID: userID,
		Class:  models.ClaimSubscription,
		Key:    channel,
		Amount: amount,
	})
	if err != nil {
		return Result{}, err
	}
	if !granted {
		return Result{Reason: ReasonAlreadyClaimed}, nil
	}

	e.log.Info("subscription reward granted",
		zap.Int64("user_id", userID), zap.String("channel", channel), zap.Int64("amount", amount))
	e.notify(userID, fmt.Sprintf("✅ Thanks for subscribing to %s! +%d tokens", channel, amount))
	return Result{Credited: true, Amount: amount}, nil
}

// RunDailyDistribution pays every ranked user of day according to PayoutFor and records last_reset.
// It does not guard against a second run for the same day; the scheduler does.
func (e *Engine) RunDailyDistribution(ctx context.Context, day string) (*Distribution, error) {
	return e.distribute(ctx, day, false)
}

// RunScheduledDistribution is RunDailyDistribution that also advances last_scheduled_day
// in the same transaction as the payouts.
func (e *Engine) RunScheduledDistribution(ctx context.Context, day string) (*Distribution, error) {
	return e.distribute(ctx, day, true)
}

func (e *Engine) distribute(ctx context.Context, day string, scheduled bool) (*Distribution, error) {
	entries, err := e.board.Rankings(ctx, day)
	if err != nil {
		return nil, err
	}

	dist := &Distribution{Day: day, RunID: uuid.New().String(), Payouts: make([]Payout, 0, len(entries))}
	claims := make([]models.RewardClaim, 0, len(entries))
	for _, entry := range entries {
		amount := PayoutFor(entry.Rank)
		dist.Payouts = append(dist.Payouts, Payout{UserID: entry.UserID, Rank: entry.Rank, Score: entry.Score, Amount: amount})
		dist.Total += amount
		claims = append(claims, models.RewardClaim{
			UserID: entry.UserID,
			Class:  models.ClaimDaily,
			Key:    day + "/" + dist.RunID,
			Amount: amount,
			Meta:   fmt.Sprintf(`{"day":%q,"rank":%d,"score":%d,"amount":%d}`, day, entry.Rank, entry.Score, amount),
		})
	}

	meta := map[string]string{
		models.MetaLastReset:    e.now().UTC().Format(time.RFC3339),
		models.MetaLastResetDay: day,
	}
	if scheduled {
		meta[models.MetaLastScheduledDay] = day
	}
	if err := e.store.GrantBatch(ctx, claims, meta); err != nil {
		return nil, fmt.Errorf("failed to distribute rewards for %s: %w", day, err)
	}

	e.log.Info("daily distribution done",
		zap.String("day", day), zap.String("run_id", dist.RunID),
		zap.Int("users", len(dist.Payouts)), zap.Int64("total", dist.Total))

	for _, p := range dist.Payouts {
		e.notify(p.UserID, fmt.Sprintf("🏆 Daily results for %s: you placed #%d with %d points. +%d tokens", day, p.Rank, p.Score, p.Amount))
	}
	return dist, nil
}

func (e *Engine) notify(userID int64, text string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(userID, text)
}

// PayoutFor returns the daily reward for a 1-based rank.
// Ranks 4-5 get the participation amount, ranks 6-10 get 30.
func PayoutFor(rank int) int64 {
	switch {
	case rank == 1:
		return 100
	case rank == 2:
		return 70
	case rank == 3:
		return 50
	case rank >= 6 && rank <= 10:
		return 30
	case rank >= 4:
		return 5
	}
	return 0
}
