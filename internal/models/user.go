package models

import (
	"time"
)

type User struct {
	ID                int64  `gorm:"primaryKey;autoIncrement:false"` // Telegram user id
	Username          string `gorm:"size:255"`
	DisplayName       string `gorm:"size:255"`
	Tokens            int64  `gorm:"not null;default:0"`
	ReferrerID        *int64 `gorm:"index"`
	ReferralConfirmed bool   `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
