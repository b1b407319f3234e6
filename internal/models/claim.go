package models

import (
	"time"
)

type ClaimClass string

const (
	ClaimReferral     ClaimClass = "referral"
	ClaimSubscription ClaimClass = "subscription"
	ClaimDaily        ClaimClass = "daily"
)

// RewardClaim proves a reward was granted. (UserID, Class, Key) is unique.
type RewardClaim struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    int64      `gorm:"not null;uniqueIndex:ux_reward_claims_key,priority:1"`
	Class     ClaimClass `gorm:"size:32;not null;uniqueIndex:ux_reward_claims_key,priority:2"`
	Key       string     `gorm:"column:claim_key;size:255;not null;uniqueIndex:ux_reward_claims_key,priority:3"`
	Amount    int64      `gorm:"not null"`
	Meta      string     `gorm:"size:512"`
	CreatedAt time.Time
}
