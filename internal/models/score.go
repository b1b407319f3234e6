package models

import (
	"time"
)

type DailyScore struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"not null;uniqueIndex:ux_daily_scores_user_day,priority:1"`
	Day       string `gorm:"size:10;not null;uniqueIndex:ux_daily_scores_user_day,priority:2;index"`
	Score     int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScoreRow is a day's score joined with the owner's display name.
type ScoreRow struct {
	UserID      int64
	Score       int64
	DisplayName string
}
