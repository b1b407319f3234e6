package models

import (
	"time"
)

const (
	MetaLastReset    = "last_reset"
	MetaLastResetDay = "last_reset_day"

	// MetaLastScheduledDay is written only by scheduled runs; manual resets never move it.
	MetaLastScheduledDay = "last_scheduled_day"
)

type Meta struct {
	Key       string `gorm:"column:meta_key;primaryKey;size:64"`
	Value     string `gorm:"size:255"`
	UpdatedAt time.Time
}
