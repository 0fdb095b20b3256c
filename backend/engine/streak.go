// Package engine holds the pure scoring core: streak continuity, session
// metric derivation, the diagnostic classifier, aggregate maintenance, and
// level promotion. Nothing in here touches the database.
package engine

import "time"

// StreakDecision says what a new activity does to the streak counter.
type StreakDecision int

const (
	StreakStart     StreakDecision = iota // first-ever activity
	StreakKeep                            // already active today
	StreakIncrement                       // last activity was yesterday
	StreakReset                           // gap of two or more days
)

// NextStreak decides the streak after an activity happening "today".
// Comparison is by calendar day in today's location, not by elapsed hours,
// so 20:00 followed by 16:00 the next day still counts as consecutive.
// The returned bool reports whether lastActivity should move to today.
func NextStreak(lastActivity *time.Time, currentStreak int, today time.Time) (int, StreakDecision, bool) {
	if lastActivity == nil {
		return 1, StreakStart, true
	}

	switch daysBetween(*lastActivity, today) {
	case 0:
		return currentStreak, StreakKeep, true
	case 1:
		return currentStreak + 1, StreakIncrement, true
	default:
		return 1, StreakReset, true
	}
}

// StreakAfterRead applies the read-path rule: a pure read never extends a
// streak, but an idle gap it observes is persisted as broken. Returns the
// streak and whether it changed.
func StreakAfterRead(lastActivity *time.Time, currentStreak int, today time.Time) (int, bool) {
	if lastActivity == nil || currentStreak == 0 {
		return currentStreak, false
	}
	if daysBetween(*lastActivity, today) >= 2 {
		return 0, true
	}
	return currentStreak, false
}

// daysBetween counts midnight boundaries between two instants, evaluated in
// the location of the later one.
func daysBetween(earlier, later time.Time) int {
	loc := later.Location()
	earlier = earlier.In(loc)
	a := time.Date(earlier.Year(), earlier.Month(), earlier.Day(), 0, 0, 0, 0, loc)
	b := time.Date(later.Year(), later.Month(), later.Day(), 0, 0, 0, 0, loc)
	return int(b.Sub(a).Hours() / 24)
}
