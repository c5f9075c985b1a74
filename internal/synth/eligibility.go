package synth

// EligibilityTable holds the screening-type distributions for each
// age/gender eligibility bucket.
type EligibilityTable struct {
	FemaleOver40 []Weighted[string]
	MaleOver50   []Weighted[string]
	Younger      []Weighted[string]
}

// FlatEligibility is used by the initial full-dataset generator.
var FlatEligibility = EligibilityTable{
	FemaleOver40: []Weighted[string]{
		{Mammogram, 0.7},
		{Colonoscopy, 0.3},
	},
	MaleOver50: []Weighted[string]{
		{Colonoscopy, 0.6},
		{ProstateScreening, 0.4},
	},
	Younger: []Weighted[string]{
		{CervicalScreening, 0.5},
		{GeneralHealthScreening, 0.5},
	},
}

// ConditionedEligibility is used together with the feature-conditioned
// outcome model.
var ConditionedEligibility = EligibilityTable{
	FemaleOver40: []Weighted[string]{
		{Mammogram, 0.60},
		{Colonoscopy, 0.30},
		{CervicalScreening, 0.10},
	},
	MaleOver50: []Weighted[string]{
		{Colonoscopy, 0.65},
		{ProstateScreening, 0.35},
	},
	Younger: []Weighted[string]{
		{CervicalScreening, 0.70},
		{GeneralHealthScreening, 0.30},
	},
}

// EligibilityFor returns the table paired with mode.
func EligibilityFor(mode OutcomeMode) EligibilityTable {
	if mode == ModeConditioned {
		return ConditionedEligibility
	}
	return FlatEligibility
}

// AssignScreeningType picks a screening type for a member of the given age
// and gender. Members aged 50+ outside the female/male buckets always get a
// colonoscopy and consume no draw.
func (g *Generator) AssignScreeningType(t EligibilityTable, age float64, gender string) string {
	switch {
	case gender == GenderFemale && age >= 40:
		return Choose(g, t.FemaleOver40)
	case gender == GenderMale && age >= 50:
		return Choose(g, t.MaleOver50)
	case age >= 50:
		return Colonoscopy
	default:
		return Choose(g, t.Younger)
	}
}
