package engine

// PromotionWindow is how many of the most recent exercises must be perfect
// before the reading level moves up.
const PromotionWindow = 5

// Thresholds a single exercise must meet to count as perfect.
const (
	perfectComprehensionScore = 100
	maxDifficultWordPercent   = 5.0
)

// ExerciseOutcome is the slice of an exercise record the promotion rule
// inspects.
type ExerciseOutcome struct {
	ComprehensionScore   int
	DifficultWordPercent float64
}

// NextLevel is the promotion map. Advanced is terminal; unknown input maps
// to itself.
func NextLevel(level string) string {
	switch level {
	case LevelBeginner:
		return LevelIntermediate
	case LevelIntermediate:
		return LevelAdvanced
	default:
		return level
	}
}

// ShouldPromote applies the fixed-window rule to the most recent outcomes,
// newest first. Fewer than PromotionWindow records means no evaluation at
// all, and one imperfect exercise anywhere in the window blocks promotion
// until the window fills with perfect records again.
func ShouldPromote(recent []ExerciseOutcome) bool {
	if len(recent) < PromotionWindow {
		return false
	}
	for _, r := range recent[:PromotionWindow] {
		if r.ComprehensionScore != perfectComprehensionScore {
			return false
		}
		if r.DifficultWordPercent > maxDifficultWordPercent {
			return false
		}
	}
	return true
}

// Promote returns the level after evaluating the window and whether it
// changed.
func Promote(level string, recent []ExerciseOutcome) (string, bool) {
	if !ShouldPromote(recent) {
		return level, false
	}
	next := NextLevel(level)
	return next, next != level
}
