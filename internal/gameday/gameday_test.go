package gameday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayUsesPolicyZone(t *testing.T) {
	msk, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	instant := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-01", New(time.UTC).Day(instant))
	assert.Equal(t, "2026-03-02", New(msk).Day(instant))
}

func TestTodayUsesInjectedClock(t *testing.T) {
	p := New(time.UTC)
	p.Now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }

	assert.Equal(t, "2026-10-18", p.Today())
}

func TestClosingDay(t *testing.T) {
	p := New(time.UTC)

	midnight := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-17", p.ClosingDay(midnight))

	evening := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-18", p.ClosingDay(evening))
}

func TestNextReset(t *testing.T) {
	p := New(time.UTC)

	before := time.Date(2026, 10, 18, 8, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC), p.NextReset(before, 21))

	exactly := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC), p.NextReset(exactly, 21))

	after := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), p.NextReset(after, 0))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("2026-10-18"))
	assert.False(t, Valid("18.10.2026"))
	assert.False(t, Valid(""))
}
