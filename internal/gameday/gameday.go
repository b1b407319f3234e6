// Package gameday fixes what "day" means for scores, rankings and resets.
//
// All callers go through one Policy so that a score submitted at 23:59 and a
// distribution fired at 00:00 agree on which bucket the score belongs to.
package gameday

import "time"

const Layout = "2006-01-02"

type Policy struct {
	Location *time.Location
	Now      func() time.Time
}

func New(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{Location: loc, Now: time.Now}
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Day returns the calendar date of t in the policy's zone.
func (p Policy) Day(t time.Time) string {
	return t.In(p.loc()).Format(Layout)
}

func (p Policy) Today() string {
	return p.Day(p.now())
}

// ClosingDay is the day that was in progress just before a reset firing at firedAt.
// A reset at 00:00 pays out yesterday; a reset at 21:00 pays out today.
func (p Policy) ClosingDay(firedAt time.Time) string {
	return p.Day(firedAt.Add(-time.Nanosecond))
}

// NextReset returns the first hour:00 strictly after now.
func (p Policy) NextReset(now time.Time, hour int) time.Time {
	local := now.In(p.loc())
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, p.loc())
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, p.loc())
	}
	return next
}

// Valid reports whether day is a well-formed YYYY-MM-DD date.
func Valid(day string) bool {
	_, err := time.Parse(Layout, day)
	return err == nil
}
