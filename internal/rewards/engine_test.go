package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tapscore-bot/internal/leaderboard"
	"tapscore-bot/internal/models"
	"tapscore-bot/internal/repository"
	"tapscore-bot/internal/telegram"
	"tapscore-bot/internal/testutil"
)

const day = "2026-10-18"

type fakeMembers struct {
	member bool
	err    error
	calls  int
}

func (f *fakeMembers) IsChannelMember(_ context.Context, _ string, _ int64) (bool, error) {
	f.calls++
	return f.member, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeNotifier) Notify(userID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[userID] = append(f.sent[userID], text)
}

type fixture struct {
	engine   *Engine
	store    repository.Store
	board    *leaderboard.Board
	members  *fakeMembers
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	store := repository.New(testutil.NewDB(t))
	board := leaderboard.New(store)
	members := &fakeMembers{member: true}
	notifier := &fakeNotifier{}
	engine := NewEngine(store, board, members, notifier, zap.NewNop())
	engine.now = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }
	return &fixture{engine: engine, store: store, board: board, members: members, notifier: notifier}
}

func (f *fixture) user(t *testing.T, id int64) {
	_, _, err := f.store.GetOrCreateUser(context.Background(), id, "", "")
	require.NoError(t, err)
}

func (f *fixture) tokens(t *testing.T, id int64) int64 {
	u, err := f.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Tokens
}

func TestConfirmReferralCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.user(t, 2)
	_, err := f.store.LinkReferrer(ctx, 2, 1)
	require.NoError(t, err)

	res, err := f.engine.ConfirmReferral(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Result{Credited: true, Amount: ReferralReward}, res)

	res, err = f.engine.ConfirmReferral(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: ReasonAlreadyConfirmed}, res)

	assert.Equal(t, ReferralReward, f.tokens(t, 1))
	assert.Equal(t, int64(0), f.tokens(t, 2))
	assert.Len(t, f.notifier.sent[1], 1)
}

func TestReferrerNotCreditedWithoutAppOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.user(t, 2)
	_, err := f.store.LinkReferrer(ctx, 2, 1)
	require.NoError(t, err)

	require.NoError(t, f.board.SubmitScore(ctx, 2, "two", 10, day))

	assert.Equal(t, int64(0), f.tokens(t, 1))
	assert.Empty(t, f.notifier.sent)
}

func TestConfirmReferralWithoutReferrer(t *testing.T) {
	f := newFixture(t)
	f.user(t, 2)

	res, err := f.engine.ConfirmReferral(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: ReasonNoReferrer}, res)

	_, err = f.engine.ConfirmReferral(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestClaimSubscriptionCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	res, err := f.engine.ClaimSubscription(ctx, 1, "news")
	require.NoError(t, err)
	assert.Equal(t, Result{Credited: true, Amount: DefaultChannelReward}, res)

	res, err = f.engine.ClaimSubscription(ctx, 1, "@news")
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: ReasonAlreadyClaimed}, res)

	assert.Equal(t, 1, f.members.calls)
	assert.Equal(t, DefaultChannelReward, f.tokens(t, 1))
}

func TestClaimSubscriptionUsesChannelReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	_, err := f.store.UpsertChannel(ctx, "@art", 250)
	require.NoError(t, err)

	res, err := f.engine.ClaimSubscription(ctx, 1, "@art")
	require.NoError(t, err)
	assert.Equal(t, int64(250), res.Amount)
	assert.Equal(t, int64(250), f.tokens(t, 1))
}

func TestClaimSubscriptionNotMemberCanRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.members.member = false

	res, err := f.engine.ClaimSubscription(ctx, 1, "@news")
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: ReasonNotMember}, res)
	assert.Equal(t, int64(0), f.tokens(t, 1))

	has, err := f.store.HasClaim(ctx, 1, models.ClaimSubscription, "@news")
	require.NoError(t, err)
	assert.False(t, has)

	f.members.member = true
	res, err = f.engine.ClaimSubscription(ctx, 1, "@news")
	require.NoError(t, err)
	assert.True(t, res.Credited)
}

func TestClaimSubscriptionVerificationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.members.err = errors.New("connection reset")

	_, err := f.engine.ClaimSubscription(ctx, 1, "@news")
	require.ErrorIs(t, err, ErrMembershipCheck)

	has, err := f.store.HasClaim(ctx, 1, models.ClaimSubscription, "@news")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, int64(0), f.tokens(t, 1))
}

func TestClaimSubscriptionUnconfiguredBot(t *testing.T) {
	f := newFixture(t)
	f.user(t, 1)
	f.members.err = telegram.ErrBotNotConfigured

	_, err := f.engine.ClaimSubscription(context.Background(), 1, "@news")
	assert.ErrorIs(t, err, telegram.ErrBotNotConfigured)
	assert.NotErrorIs(t, err, ErrMembershipCheck)
}

func TestClaimSubscriptionInvalidChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ClaimSubscription(context.Background(), 1, " @ ")
	assert.ErrorIs(t, err, ErrInvalidChannel)
	assert.Equal(t, 0, f.members.calls)
}

func TestRunDailyDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scores := map[int64]int64{1: 100, 2: 90, 3: 80, 4: 70, 5: 60, 6: 50}
	for id, score := range scores {
		require.NoError(t, f.board.SubmitScore(ctx, id, "", score, day))
	}

	dist, err := f.engine.RunDailyDistribution(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, day, dist.Day)
	assert.Len(t, dist.Payouts, 6)
	assert.Equal(t, int64(260), dist.Total)

	want := map[int64]int64{1: 100, 2: 70, 3: 50, 4: 5, 5: 5, 6: 30}
	for id, amount := range want {
		assert.Equal(t, amount, f.tokens(t, id), "user %d", id)
	}

	last, err := f.store.Meta(ctx, models.MetaLastReset)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19T00:00:00Z", last)

	lastDay, err := f.store.Meta(ctx, models.MetaLastResetDay)
	require.NoError(t, err)
	assert.Equal(t, day, lastDay)

	assert.Len(t, f.notifier.sent, 6)
}

func TestRunDailyDistributionTwiceDoubleCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.board.SubmitScore(ctx, 1, "", 10, day))

	_, err := f.engine.RunDailyDistribution(ctx, day)
	require.NoError(t, err)
	_, err = f.engine.RunDailyDistribution(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, int64(200), f.tokens(t, 1))
}

func TestRunDailyDistributionEmptyDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dist, err := f.engine.RunDailyDistribution(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, dist.Payouts)

	lastDay, err := f.store.Meta(ctx, models.MetaLastResetDay)
	require.NoError(t, err)
	assert.Equal(t, day, lastDay)
}

func TestBalancesNeverDecrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.user(t, 2)
	_, err := f.store.LinkReferrer(ctx, 2, 1)
	require.NoError(t, err)

	prev := map[int64]int64{1: 0, 2: 0}
	check := func() {
		for id, before := range prev {
			now := f.tokens(t, id)
			assert.GreaterOrEqual(t, now, before)
			prev[id] = now
		}
	}

	steps := []func(){
		func() { require.NoError(t, f.board.SubmitScore(ctx, 1, "", 5, day)) },
		func() { _, _ = f.engine.ConfirmReferral(ctx, 2) },
		func() { _, _ = f.engine.ClaimSubscription(ctx, 2, "@news") },
		func() { require.NoError(t, f.board.SubmitScore(ctx, 2, "", 9, day)) },
		func() { _, _ = f.engine.RunDailyDistribution(ctx, day) },
		func() { _, _ = f.engine.ConfirmReferral(ctx, 2) },
		func() { _, _ = f.engine.ClaimSubscription(ctx, 2, "@news") },
	}
	for _, step := range steps {
		step()
		check()
	}
}

func TestPayoutFor(t *testing.T) {
	want := []int64{100, 70, 50, 5, 5, 30, 30, 30, 30, 30, 5, 5}
	for i, amount := range want {
		assert.Equal(t, amount, PayoutFor(i+1), "rank %d", i+1)
	}
	assert.Equal(t, int64(5), PayoutFor(500))
	assert.Equal(t, int64(0), PayoutFor(0))
}

func TestOnlyScheduledRunsAdvanceSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RunDailyDistribution(ctx, day)
	require.NoError(t, err)
	_, err = f.store.Meta(ctx, models.MetaLastScheduledDay)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.engine.RunScheduledDistribution(ctx, day)
	require.NoError(t, err)
	last, err := f.store.Meta(ctx, models.MetaLastScheduledDay)
	require.NoError(t, err)
	assert.Equal(t, day, last)
}
