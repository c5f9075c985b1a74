package synth

import "time"

const lateResultDelayDays = 30

// ScreeningPlan carries the settings the screening stage needs.
type ScreeningPlan struct {
	Mode         OutcomeMode
	FollowUpRate float64
	EndDate      time.Time
	AsOf         time.Time
}

// GenerateScreenings produces 1–5 screenings per enrollment over the two
// years following enrollment. Draws dated after EndDate are skipped but still
// count against the member's screening total.
func (g *Generator) GenerateScreenings(plan ScreeningPlan, enrollments []Enrollment, members []Member, providers []Provider) []Screening {
	index := indexMembers(members)
	eligibility := EligibilityFor(plan.Mode)

	var out []Screening
	seq := 0
	for _, enr := range enrollments {
		member, ok := index[enr.MemberID]
		if !ok {
			continue
		}
		age := AgeOn(member.DateOfBirth, plan.AsOf)

		count := Choose(g, screeningsPerEnrollment)
		for s := 0; s < count; s++ {
			screeningDate := addDays(enr.EnrollmentDate, g.between(30, 730))
			if screeningDate.After(plan.EndDate) {
				continue
			}

			screeningType := g.AssignScreeningType(eligibility, age, member.Gender)
			providerID := providers[g.rng.Intn(len(providers))].ID
			days := g.SampleTurnaround(plan.Mode)
			resultDate := addDays(screeningDate, days)
			outcome := g.SampleOutcome(plan.Mode, plan.FollowUpRate, FollowUpFeatures{
				AgeGroup:      AgeGroupOf(int(age)),
				Gender:        member.Gender,
				ScreeningType: screeningType,
				DaysToResult:  days,
				DayOfWeek:     resultDate.Weekday(),
			})

			seq++
			out = append(out, Screening{
				ID:                ScreeningID(seq),
				MemberID:          enr.MemberID,
				EmployerID:        enr.EmployerID,
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
	}
	return out
}

// DelayResults pushes the result date of a random rate share of screenings
// 30 days later, simulating late-arriving lab data. Only result dates move,
// so they stay on or after the screening date.
func (g *Generator) DelayResults(screenings []Screening, rate float64) int {
	late := g.sample(len(screenings), int(float64(len(screenings))*rate))
	for _, idx := range late {
		screenings[idx].ResultDate = addDays(screenings[idx].ResultDate, lateResultDelayDays)
	}
	return len(late)
}

func indexMembers(members []Member) map[string]*Member {
	index := make(map[string]*Member, len(members))
	for i := range members {
		index[members[i].ID] = &members[i]
	}
	return index
}
