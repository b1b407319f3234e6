package leaderboard

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapscore-bot/internal/models"
	"tapscore-bot/internal/repository"
	"tapscore-bot/internal/testutil"
)

const day = "2026-10-18"

func newBoard(t *testing.T) (*Board, repository.Store) {
	store := repository.New(testutil.NewDB(t))
	return New(store), store
}

func TestSubmitScoreKeepsBest(t *testing.T) {
	b, _ := newBoard(t)
	ctx := context.Background()

	for _, score := range []int64{15, 40, 12, 39} {
		require.NoError(t, b.SubmitScore(ctx, 1, "Ann", score, day))
	}

	entries, err := b.Rankings(ctx, day)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(40), entries[0].Score)
	assert.Equal(t, "Ann", entries[0].DisplayName)
}

func TestSubmitScoreCreatesUser(t *testing.T) {
	b, store := newBoard(t)
	ctx := context.Background()

	require.NoError(t, b.SubmitScore(ctx, 9, "Zed", 3, day))

	user, err := store.GetUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Tokens)
}

func TestSubmitScoreRejectsInvalidInput(t *testing.T) {
	b, _ := newBoard(t)
	ctx := context.Background()

	assert.ErrorIs(t, b.SubmitScore(ctx, 1, "Ann", -1, day), ErrInvalidScore)
	assert.ErrorIs(t, b.SubmitScore(ctx, 0, "Ann", 1, day), ErrInvalidUser)
	assert.ErrorIs(t, b.SubmitScore(ctx, 1, "Ann", 1, "yesterday"), ErrInvalidDay)

	entries, err := b.Rankings(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRankingsTieBreak(t *testing.T) {
	b, _ := newBoard(t)
	ctx := context.Background()

	require.NoError(t, b.SubmitScore(ctx, 30, "c", 50, day))
	require.NoError(t, b.SubmitScore(ctx, 10, "a", 50, day))
	require.NoError(t, b.SubmitScore(ctx, 20, "b", 70, day))
	require.NoError(t, b.SubmitScore(ctx, 5, "d", 10, day))

	entries, err := b.Rankings(ctx, day)
	require.NoError(t, err)

	var ids []int64
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	assert.Equal(t, []int64{20, 10, 30, 5}, ids)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 4, entries[3].Rank)
}

func TestRankIsTotalOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	rows := make([]models.ScoreRow, 200)
	for i := range rows {
		rows[i] = models.ScoreRow{UserID: int64(r.Intn(1000) + 1), Score: int64(r.Intn(10))}
	}

	entries := Rank(rows)
	require.Len(t, entries, len(rows))
	for i := 1; i < len(entries); i++ {
		a, b := entries[i-1], entries[i]
		assert.True(t, a.Score > b.Score || (a.Score == b.Score && a.UserID <= b.UserID),
			fmt.Sprintf("entries %d and %d out of order: %+v %+v", i-1, i, a, b))
		assert.Equal(t, i+1, b.Rank)
	}
}

func TestRankOf(t *testing.T) {
	b, store := newBoard(t)
	ctx := context.Background()

	require.NoError(t, b.SubmitScore(ctx, 1, "a", 10, day))
	require.NoError(t, b.SubmitScore(ctx, 2, "b", 20, day))
	_, _, err := store.GetOrCreateUser(ctx, 3, "", "idle")
	require.NoError(t, err)

	rank, ok, err := b.RankOf(ctx, 1, day)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, rank)

	rank, ok, err = b.RankOf(ctx, 3, day)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, rank)

	_, ok, err = b.RankOf(ctx, 404, day)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaderboardView(t *testing.T) {
	b, _ := newBoard(t)
	ctx := context.Background()

	for i := int64(1); i <= 12; i++ {
		require.NoError(t, b.SubmitScore(ctx, i, fmt.Sprintf("p%d", i), i*10, day))
	}

	view, err := b.Leaderboard(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, day, view.Day)
	assert.Len(t, view.Top, TopSize)
	assert.Equal(t, int64(12), view.Top[0].UserID)
	require.NotNil(t, view.Rank)
	assert.Equal(t, 12, *view.Rank)

	view, err = b.Leaderboard(ctx, 0, "2026-01-01")
	require.NoError(t, err)
	assert.Empty(t, view.Top)
	assert.NotNil(t, view.Top)
	assert.Nil(t, view.Rank)
}

func TestHeadNeverNil(t *testing.T) {
	assert.Equal(t, []Entry{}, head(nil, TopSize))
	assert.Equal(t, []Entry{}, head([]Entry{{Rank: 1}}, -1))

	entries := Rank([]models.ScoreRow{{UserID: 1, Score: 5}, {UserID: 2, Score: 9}, {UserID: 3, Score: 7}})
	top := head(entries, 2)
	require.Len(t, top, 2)
	assert.Equal(t, []int64{2, 3}, []int64{top[0].UserID, top[1].UserID})
}
