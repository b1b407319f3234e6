package models

import (
	"time"
)

type Channel struct {
	Username  string `gorm:"primaryKey;size:255"` // stored with leading '@'
	Reward    int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
