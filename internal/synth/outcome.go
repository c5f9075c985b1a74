package synth

import (
	"fmt"
	"time"
)

// OutcomeMode selects how screening results and follow-up behaviour are drawn.
type OutcomeMode string

const (
	// ModeFlat draws results from fixed weights and completion from a flat
	// 75/25 split.
	ModeFlat OutcomeMode = "flat"
	// ModeConditioned draws follow-up need from a target rate and completion
	// from the feature model in FollowUpProbability.
	ModeConditioned OutcomeMode = "conditioned"
)

// ParseOutcomeMode validates a configured mode name.
func ParseOutcomeMode(s string) (OutcomeMode, error) {
	switch OutcomeMode(s) {
	case ModeFlat, ModeConditioned:
		return OutcomeMode(s), nil
	}
	return "", fmt.Errorf("unknown outcome mode %q (want %q or %q)", s, ModeFlat, ModeConditioned)
}

// AgeGroup buckets member ages for the follow-up model.
type AgeGroup string

const (
	AgeUnder40 AgeGroup = "Under 40"
	Age40To49  AgeGroup = "40-49"
	Age50To64  AgeGroup = "50-64"
	Age65Plus  AgeGroup = "65+"
)

// AgeGroupOf returns the bucket for a whole-year age.
func AgeGroupOf(age int) AgeGroup {
	switch {
	case age < 40:
		return AgeUnder40
	case age < 50:
		return Age40To49
	case age < 65:
		return Age50To64
	default:
		return Age65Plus
	}
}

// FollowUpFeatures are the inputs of the follow-up completion model.
type FollowUpFeatures struct {
	AgeGroup      AgeGroup
	Gender        string
	ScreeningType string
	DaysToResult  int
	DayOfWeek     time.Weekday
}

const (
	baseCompletionRate = 0.75
	minCompletionProb  = 0.20
	maxCompletionProb  = 0.95
)

var (
	ageGroupEffects = map[AgeGroup]float64{
		AgeUnder40: -0.15,
		Age40To49:  -0.05,
		Age50To64:  0.05,
		Age65Plus:  0.10,
	}
	screeningTypeEffects = map[string]float64{
		Mammogram:         0.08,
		Colonoscopy:       0.05,
		ProstateScreening: 0.00,
		CervicalScreening: 0.03,
	}
)

// FollowUpProbability composes the completion probability additively from the
// base rate and each feature effect, then clamps it to [0.20, 0.95].
func FollowUpProbability(f FollowUpFeatures) float64 {
	prob := baseCompletionRate

	prob += ageGroupEffects[f.AgeGroup]

	switch f.Gender {
	case GenderFemale:
		prob += 0.05
	case GenderMale:
		prob -= 0.03
	}

	prob += screeningTypeEffects[f.ScreeningType]

	switch {
	case f.DaysToResult <= 7:
		prob += 0.15
	case f.DaysToResult <= 14:
		prob += 0.05
	case f.DaysToResult > 21:
		prob -= 0.10
	}

	switch f.DayOfWeek {
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday:
		prob += 0.05
	case time.Friday:
	default:
		prob -= 0.08
	}

	return max(minCompletionProb, min(maxCompletionProb, prob))
}

// Outcome is the sampled result and follow-up state of one screening.
type Outcome struct {
	Result            string
	FollowUpNeeded    bool
	FollowUpCompleted *bool
}

var (
	flatResults = []Weighted[string]{
		{ResultNormal, 0.90},
		{ResultAbnormalBenign, 0.08},
		{ResultCancerDetected, 0.02},
	}
	followUpResults = []Weighted[string]{
		{ResultAbnormalBenign, 0.9},
		{ResultCancerDetected, 0.1},
	}
)

const flatCompletionRate = 0.75

// SampleOutcome draws the result and follow-up state. followUpRate and the
// features are only consulted in ModeConditioned.
func (g *Generator) SampleOutcome(mode OutcomeMode, followUpRate float64, f FollowUpFeatures) Outcome {
	if mode == ModeConditioned {
		if !g.chance(followUpRate) {
			return Outcome{Result: ResultNormal}
		}
		result := Choose(g, followUpResults)
		completed := g.chance(FollowUpProbability(f))
		return Outcome{Result: result, FollowUpNeeded: true, FollowUpCompleted: &completed}
	}

	result := Choose(g, flatResults)
	if result == ResultNormal {
		return Outcome{Result: result}
	}
	completed := g.chance(flatCompletionRate)
	return Outcome{Result: result, FollowUpNeeded: true, FollowUpCompleted: &completed}
}
