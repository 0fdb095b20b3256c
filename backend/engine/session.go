package engine

import (
	"math"
	"time"
)

// SessionMetrics is the result of finalizing a reading session.
type SessionMetrics struct {
	ReadingSeconds float64
	WordsPerMinute int
}

// FinalizeSession derives elapsed time and reading speed from session
// timestamps. Duration is floored at one second so a double-click finish
// cannot divide by zero or report an absurd speed.
func FinalizeSession(start, end time.Time, wordCount int) SessionMetrics {
	seconds := math.Max(1, end.Sub(start).Seconds())
	return SessionMetrics{
		ReadingSeconds: seconds,
		WordsPerMinute: wordsPerMinute(wordCount, seconds),
	}
}

// FallbackMetrics recovers metrics from client-measured values when no
// server-side session is open (timer state lost to a page reload).
func FallbackMetrics(clientSeconds float64, wordCount int) SessionMetrics {
	seconds := math.Max(1, clientSeconds)
	return SessionMetrics{
		ReadingSeconds: seconds,
		WordsPerMinute: wordsPerMinute(wordCount, seconds),
	}
}

func wordsPerMinute(wordCount int, seconds float64) int {
	if wordCount <= 0 {
		return 0
	}
	return int(math.Round(float64(wordCount) / seconds * 60))
}
