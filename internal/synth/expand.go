package synth

import (
	"errors"
	"fmt"
	"time"
)

// Demographics are the member attributes the screening model conditions on.
type Demographics struct {
	Age    float64
	Gender string
}

// ExpansionPlan describes how to extend an existing screenings table.
type ExpansionPlan struct {
	// LastSequence is the highest numeric suffix among existing screening ids.
	LastSequence int
	// Count is the number of screenings to append.
	Count int

	// Universes of ids already present in the table. No new reference
	// entities are created.
	MemberIDs   []string
	EmployerIDs []string
	ProviderIDs []string

	// Known holds real demographics for members found in a members table.
	// Members missing from it get simulated demographics.
	Known map[string]Demographics

	StartDate    time.Time
	EndDate      time.Time
	Mode         OutcomeMode
	FollowUpRate float64
}

var (
	simulatedAges = []Weighted[int]{
		{35, 0.10},
		{42, 0.20},
		{48, 0.20},
		{55, 0.25},
		{62, 0.15},
		{70, 0.10},
	}

	// ErrEmptyUniverse is returned when an existing table has no ids to reuse.
	ErrEmptyUniverse = errors.New("existing screenings reference no members, employers or providers")
)

func (p ExpansionPlan) validate() error {
	if p.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", p.Count)
	}
	if len(p.MemberIDs) == 0 || len(p.EmployerIDs) == 0 || len(p.ProviderIDs) == 0 {
		return ErrEmptyUniverse
	}
	if !p.EndDate.After(p.StartDate) {
		return errors.New("expansion end date must be after start date")
	}
	if _, err := ParseOutcomeMode(string(p.Mode)); err != nil {
		return err
	}
	return nil
}

// ExpandScreenings generates plan.Count new screenings whose ids continue
// after plan.LastSequence. Member, employer and provider are drawn
// independently from the existing universes.
func (g *Generator) ExpandScreenings(plan ExpansionPlan) ([]Screening, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}

	demographics := make(map[string]Demographics, len(plan.MemberIDs))
	for _, id := range plan.MemberIDs {
		if d, ok := plan.Known[id]; ok {
			demographics[id] = d
			continue
		}
		demographics[id] = Demographics{
			Age:    float64(Choose(g, simulatedAges)),
			Gender: Choose(g, genders),
		}
	}

	eligibility := EligibilityFor(plan.Mode)
	window := daysBetween(plan.StartDate, plan.EndDate)

	out := make([]Screening, 0, plan.Count)
	for i := 0; i < plan.Count; i++ {
		memberID := g.pick(plan.MemberIDs)
		employerID := g.pick(plan.EmployerIDs)
		providerID := g.pick(plan.ProviderIDs)
		d := demographics[memberID]

		screeningType := g.AssignScreeningType(eligibility, d.Age, d.Gender)
		screeningDate := addDays(plan.StartDate, g.between(0, window))
		days := g.SampleTurnaround(plan.Mode)
		resultDate := addDays(screeningDate, days)

		outcome := g.SampleOutcome(plan.Mode, plan.FollowUpRate, FollowUpFeatures{
			AgeGroup:      AgeGroupOf(int(d.Age)),
			Gender:        d.Gender,
			ScreeningType: screeningType,
			DaysToResult:  days,
			DayOfWeek:     resultDate.Weekday(),
		})

		out = append(out, Screening{
			ID:                ScreeningID(plan.LastSequence + i + 1),
			MemberID:          memberID,
			EmployerID:        employerID,
			ProviderID:        providerID,
			Type:              screeningType,
			ScreeningDate:     screeningDate,
			Result:            outcome.Result,
			ResultDate:        resultDate,
			FollowUpNeeded:    outcome.FollowUpNeeded,
			FollowUpCompleted: outcome.FollowUpCompleted,
			Cost:              g.ScreeningCost(plan.Mode, screeningType),
		})
	}
	return out, nil
}
