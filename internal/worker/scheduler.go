package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tapscore-bot/internal/gameday"
	"tapscore-bot/internal/leaderboard"
	"tapscore-bot/internal/models"
	"tapscore-bot/internal/repository"
	"tapscore-bot/internal/rewards"
)

const guardTTL = 48 * time.Hour

var ErrFutureDay = errors.New("day has not started yet")

type Distributor interface {
	RunDailyDistribution(ctx context.Context, day string) (*rewards.Distribution, error)
	RunScheduledDistribution(ctx context.Context, day string) (*rewards.Distribution, error)
}

// Scheduler fires the daily distribution once per day at Hour in the game zone.
type Scheduler struct {
	Engine Distributor
	Store  repository.Store
	Redis  *redis.Client
	Days   gameday.Policy
	Hour   int
	Log    *zap.Logger
}

func NewScheduler(engine Distributor, store repository.Store, rdb *redis.Client, days gameday.Policy, hour int, log *zap.Logger) *Scheduler {
	return &Scheduler{
		Engine: engine,
		Store:  store,
		Redis:  rdb,
		Days:   days,
		Hour:   hour,
		Log:    log,
	}
}

// Start blocks until ctx is cancelled. A reset missed while the process was down is paid on startup.
func (s *Scheduler) Start(ctx context.Context) {
	now := s.now()
	next := s.Days.NextReset(now, s.Hour)
	s.Log.Info("daily reset scheduler started", zap.Int("hour", s.Hour), zap.Time("next", next))

	if _, err := s.RunScheduled(ctx, next.AddDate(0, 0, -1)); err != nil {
		s.Log.Error("catch-up distribution failed", zap.Error(err))
	}

	for {
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// The scheduled instant decides the day, not the wake-up time.
		if _, err := s.RunScheduled(ctx, next); err != nil {
			s.Log.Error("scheduled distribution failed", zap.Time("at", next), zap.Error(err))
		}
		next = s.Days.NextReset(next, s.Hour)
	}
}

// RunScheduled pays the day closing at `at` unless it was already paid.
func (s *Scheduler) RunScheduled(ctx context.Context, at time.Time) (bool, error) {
	day := s.Days.ClosingDay(at)
	log := s.Log.With(zap.String("day", day))

	last, err := s.Store.Meta(ctx, models.MetaLastScheduledDay)
	switch {
	case err == nil && last >= day:
		log.Info("daily reset already done, skipping", zap.String("last_scheduled_day", last))
		return false, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return false, err
	}

	key := guardKey(day)
	locked := false
	if s.Redis != nil {
		ok, err := s.Redis.SetNX(ctx, key, at.UTC().Format(time.RFC3339), guardTTL).Result()
		if err != nil {
			log.Warn("redis guard unavailable, relying on last_scheduled_day", zap.Error(err))
		} else if !ok {
			log.Info("daily reset guard already taken, skipping")
			return false, nil
		} else {
			locked = true
		}
	}

	if _, err := s.Engine.RunScheduledDistribution(ctx, day); err != nil {
		if locked {
			if delErr := s.Redis.Del(ctx, key).Err(); delErr != nil {
				log.Warn("failed to release daily reset guard", zap.Error(delErr))
			}
		}
		return false, err
	}
	return true, nil
}

// TriggerNow runs the distribution for day immediately, bypassing every guard.
// Running it twice for the same day pays twice. It leaves the scheduled run for day untouched.
func (s *Scheduler) TriggerNow(ctx context.Context, day string) (*rewards.Distribution, error) {
	today := s.Days.Day(s.now())
	if day == "" {
		day = today
	}
	if !gameday.Valid(day) {
		return nil, fmt.Errorf("%w: %q", leaderboard.ErrInvalidDay, day)
	}
	if day > today {
		return nil, fmt.Errorf("%w: %s", ErrFutureDay, day)
	}
	s.Log.Warn("manual daily reset triggered", zap.String("day", day))
	return s.Engine.RunDailyDistribution(ctx, day)
}

func (s *Scheduler) now() time.Time {
	if s.Days.Now != nil {
		return s.Days.Now()
	}
	return time.Now()
}

func guardKey(day string) string {
	return fmt.Sprintf("daily_reset:%s", day)
}
