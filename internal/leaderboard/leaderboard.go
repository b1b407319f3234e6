package leaderboard

import (
	"context"
	"errors"
	"sort"

	"tapscore-bot/internal/gameday"
	"tapscore-bot/internal/models"
	"tapscore-bot/internal/repository"
)

const TopSize = 10

var (
	ErrInvalidScore = errors.New("invalid score")
	ErrInvalidUser  = errors.New("invalid user id")
	ErrInvalidDay   = errors.New("invalid day")
)

type Entry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	Score       int64  `json:"score"`
	DisplayName string `json:"name"`
}

type View struct {
	Day  string  `json:"day"`
	Top  []Entry `json:"top"`
	Rank *int    `json:"rank"`
}

type Board struct {
	store repository.Store
}

func New(store repository.Store) *Board {
	return &Board{store: store}
}

// SubmitScore records score as the user's result for day, keeping the best one.
func (b *Board) SubmitScore(ctx context.Context, userID int64, displayName string, score int64, day string) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	if score < 0 {
		return ErrInvalidScore
	}
	if !gameday.Valid(day) {
		return ErrInvalidDay
	}

	if _, _, err := b.store.GetOrCreateUser(ctx, userID, "", displayName); err != nil {
		return err
	}
	return b.store.UpsertBestScore(ctx, userID, day, score)
}

// Rankings returns every entry of day, best first.
func (b *Board) Rankings(ctx context.Context, day string) ([]Entry, error) {
	rows, err := b.store.DayScores(ctx, day)
	if err != nil {
		return nil, err
	}
	return Rank(rows), nil
}

// RankOf returns the 1-based position of userID on day. Known users without an entry
// are placed right after the last ranked entry; unknown users have no rank.
func (b *Board) RankOf(ctx context.Context, userID int64, day string) (int, bool, error) {
	entries, err := b.Rankings(ctx, day)
	if err != nil {
		return 0, false, err
	}
	return b.rankIn(ctx, entries, userID)
}

// Leaderboard is the public view: top entries of day plus the requester's rank, if any.
func (b *Board) Leaderboard(ctx context.Context, userID int64, day string) (*View, error) {
	entries, err := b.Rankings(ctx, day)
	if err != nil {
		return nil, err
	}

	view := &View{Day: day, Top: head(entries, TopSize)}

	if userID > 0 {
		rank, ok, err := b.rankIn(ctx, entries, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			view.Rank = &rank
		}
	}
	return view, nil
}

func (b *Board) rankIn(ctx context.Context, entries []Entry, userID int64) (int, bool, error) {
	for _, e := range entries {
		if e.UserID == userID {
			return e.Rank, true, nil
		}
	}

	_, err := b.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return len(entries) + 1, true, nil
}

// Rank orders rows by score descending, lower user id first on ties, and numbers them from 1.
// Payouts and the public view both go through here.
func Rank(rows []models.ScoreRow) []Entry {
	sorted := make([]models.ScoreRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Less(sorted[i], sorted[j])
	})

	entries := make([]Entry, len(sorted))
	for i, r := range sorted {
		entries[i] = Entry{Rank: i + 1, UserID: r.UserID, Score: r.Score, DisplayName: r.DisplayName}
	}
	return entries
}

func head(entries []Entry, n int) []Entry {
	if n < 0 {
		n = 0
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	if entries == nil {
		return []Entry{}
	}
	return entries
}

func Less(a, b models.ScoreRow) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.UserID < b.UserID
}
