package engine

import "math"

// Reading levels, from easiest to hardest.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// ValidLevel reports whether s names a known reading level.
func ValidLevel(s string) bool {
	return s == LevelBeginner || s == LevelIntermediate || s == LevelAdvanced
}

// DiagnosticInput carries the three independent onboarding test signals.
type DiagnosticInput struct {
	DifficultWords       int // words the reader marked as hard
	TotalWords           int // words shown in the reading step
	ComprehensionCorrect int // correct answers out of the 3-question set
	RecallMissed         int // true flashcard words the reader failed to pick
}

// ClassifyDiagnostic maps the onboarding signals to a reading level. Each
// signal votes for one level; the level with the most votes wins and ties
// lean toward the easier level.
func ClassifyDiagnostic(in DiagnosticInput) string {
	votes := []string{
		wordDifficultyVote(in.DifficultWordPercent()),
		comprehensionVote(in.ComprehensionCorrect),
		recallVote(in.RecallMissed),
	}

	var beginner, intermediate, advanced int
	for _, v := range votes {
		switch v {
		case LevelBeginner:
			beginner++
		case LevelIntermediate:
			intermediate++
		case LevelAdvanced:
			advanced++
		}
	}

	if beginner >= intermediate && beginner >= advanced {
		return LevelBeginner
	}
	if intermediate >= beginner && intermediate >= advanced {
		return LevelIntermediate
	}
	return LevelAdvanced
}

// DifficultWordPercent returns the share of shown words marked difficult,
// 0 when nothing was shown.
func (in DiagnosticInput) DifficultWordPercent() float64 {
	if in.TotalWords <= 0 {
		return 0
	}
	return float64(in.DifficultWords) / float64(in.TotalWords) * 100
}

// wordDifficultyVote: >30% difficult reads beginner, 10-20% intermediate.
// The 20-30% band falls through to advanced, matching the shipped behavior.
func wordDifficultyVote(pct float64) string {
	if pct > 30 {
		return LevelBeginner
	}
	if pct >= 10 && pct <= 20 {
		return LevelIntermediate
	}
	return LevelAdvanced
}

func comprehensionVote(correct int) string {
	switch correct {
	case 0, 1:
		return LevelBeginner
	case 2:
		return LevelIntermediate
	case 3:
		return LevelAdvanced
	default:
		return LevelBeginner
	}
}

// recallVote: missing two of the true words still reads advanced, matching
// the shipped behavior.
func recallVote(missed int) string {
	if missed > 2 {
		return LevelBeginner
	}
	if missed == 1 {
		return LevelIntermediate
	}
	return LevelAdvanced
}

// DiagnosticScores are the archived sub-scores of one classification run.
type DiagnosticScores struct {
	Accuracy      int
	Comprehension int
	Speed         int
}

// Fallbacks used when a diagnostic step produced no usable signal.
const (
	defaultComprehensionScore = 70
	defaultSpeedScore         = 72
)

// ScoreDiagnostic derives the 0-100 sub-scores stored alongside the level.
// Speed normalizes WPM over the 50-300 range.
func ScoreDiagnostic(in DiagnosticInput, comprehensionTotal, wordsPerMinute int) DiagnosticScores {
	accuracy := int(math.Round(100 - in.DifficultWordPercent()))

	comprehension := defaultComprehensionScore
	if comprehensionTotal > 0 {
		comprehension = int(math.Round(float64(in.ComprehensionCorrect) / float64(comprehensionTotal) * 100))
	}

	speed := defaultSpeedScore
	if wordsPerMinute > 0 {
		s := (float64(wordsPerMinute) - 50) / 250 * 100
		speed = int(math.Round(math.Min(100, math.Max(0, s))))
	}

	return DiagnosticScores{
		Accuracy:      accuracy,
		Comprehension: comprehension,
		Speed:         speed,
	}
}
