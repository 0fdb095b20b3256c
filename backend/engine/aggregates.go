package engine

import "math"

// ComprehensionAverage computes the cumulative comprehension score, weighted
// by question count. Two exercises of 3/3 and 0/2 average to 60, not 50: a
// ten-question exercise must count five times a two-question one.
func ComprehensionAverage(totalCorrect, totalQuestions int) int {
	if totalQuestions <= 0 {
		return 0
	}
	return int(math.Round(float64(totalCorrect) / float64(totalQuestions) * 100))
}

// RunningMean folds one new value into an integer running mean without
// rescanning history. Equal, up to rounding, to recomputing the mean of all
// newCount values from scratch.
func RunningMean(oldMean, newValue, newCount int) int {
	if newCount <= 0 {
		return 0
	}
	if newCount == 1 {
		return newValue
	}
	return int(math.Round(float64(oldMean) + (float64(newValue)-float64(oldMean))/float64(newCount)))
}

// DifficultWordPercent is the share of difficult words in one exercise,
// 0 when no words were shown.
func DifficultWordPercent(difficultWords, totalWords int) float64 {
	if totalWords <= 0 || difficultWords <= 0 {
		return 0
	}
	return float64(difficultWords) / float64(totalWords) * 100
}
