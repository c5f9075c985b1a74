package synth

// intRange is a half-open integer range [lo, hi).
type intRange struct {
	lo, hi int
}

// turnaroundMixture is the 60/30/10 fast/moderate/slow mix of days-to-result.
var turnaroundMixture = []Weighted[intRange]{
	{intRange{7, 15}, 0.6},
	{intRange{15, 22}, 0.3},
	{intRange{22, 45}, 0.1},
}

var flatTurnaround = intRange{7, 21}

// SampleTurnaround draws days-to-result. The conditioned mode uses the
// right-skewed mixture, the flat mode a uniform 1–3 week range.
func (g *Generator) SampleTurnaround(mode OutcomeMode) int {
	r := flatTurnaround
	if mode == ModeConditioned {
		r = Choose(g, turnaroundMixture)
	}
	return g.between(r.lo, r.hi)
}

// ---------------------------------------------------------------------------
// Costs
// ---------------------------------------------------------------------------

var (
	screeningCosts = map[string]intRange{
		Mammogram:              {400, 500},
		Colonoscopy:            {1000, 1400},
		ProstateScreening:      {250, 350},
		CervicalScreening:      {200, 300},
		GeneralHealthScreening: {150, 250},
	}
	unknownScreeningCost = intRange{200, 500}
	flatScreeningCost    = intRange{200, 2000}

	claimAmountRange = intRange{500, 5000}
	paidAmountRange  = intRange{400, 4500}
)

// ScreeningCost draws a screening's cost. In the conditioned mode the range
// depends on the screening type.
func (g *Generator) ScreeningCost(mode OutcomeMode, screeningType string) int {
	if mode != ModeConditioned {
		return g.between(flatScreeningCost.lo, flatScreeningCost.hi)
	}
	r, ok := screeningCosts[screeningType]
	if !ok {
		r = unknownScreeningCost
	}
	return g.between(r.lo, r.hi)
}

// ClaimAmounts draws billed and paid amounts independently; paid can exceed
// billed.
func (g *Generator) ClaimAmounts() (claimed, paid int) {
	claimed = g.between(claimAmountRange.lo, claimAmountRange.hi)
	paid = g.between(paidAmountRange.lo, paidAmountRange.hi)
	return claimed, paid
}
