// Package scoring computes the 0-100 triage priority of a case file.
package scoring

import (
	"math"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
)

// Score weights.
const (
	urgencyWeight   = 15
	sentimentWeight = 10
	jurorWeight     = 10
)

// Repeat bonus by number of similar feedback items.
const (
	repeatBonusFew  = 6  // 1-2 matches
	repeatBonusSome = 12 // 3-4 matches
	repeatBonusMany = 20 // 5 or more

	fewMatchesMax  = 2
	someMatchesMax = 4
)

// PriorityScore returns clamp(0, 100, round(urgency*15 + |sentiment|*10 +
// avgJurorPriority*10 + repeatBonus)). An empty juror panel contributes 0.
func PriorityScore(urgency int, sentiment float64, jurors []domain.JurorVote, matchCount int) int {
	raw := float64(urgency)*urgencyWeight +
		math.Abs(sentiment)*sentimentWeight +
		averagePriority(jurors)*jurorWeight +
		float64(RepeatBonus(matchCount))

	score := int(math.Round(raw))

	switch {
	case score < domain.MinPriorityScore:
		return domain.MinPriorityScore
	case score > domain.MaxPriorityScore:
		return domain.MaxPriorityScore
	default:
		return score
	}
}

// RepeatBonus maps the similarity match count to its bonus.
func RepeatBonus(matchCount int) int {
	switch {
	case matchCount <= 0:
		return 0
	case matchCount <= fewMatchesMax:
		return repeatBonusFew
	case matchCount <= someMatchesMax:
		return repeatBonusSome
	default:
		return repeatBonusMany
	}
}

func averagePriority(jurors []domain.JurorVote) float64 {
	if len(jurors) == 0 {
		return 0
	}

	sum := 0

	for _, j := range jurors {
		sum += j.Priority
	}

	return float64(sum) / float64(len(jurors))
}
