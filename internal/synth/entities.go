package synth

import (
	"fmt"
	"time"
)

const (
	enrollmentShare  = 0.95
	missingEmailRate = 0.02
	highRiskRate     = 0.15
	contractSpacing  = 30
)

var (
	contractEpoch = Date(2022, time.January, 1)
	memberEpoch   = Date(2022, time.January, 1)
	memberCutoff  = Date(2023, time.December, 31)
)

// GenerateEmployers produces n employers. Industries cycle through the
// industry pool and contract starts are spaced 30 days apart.
func (g *Generator) GenerateEmployers(n int) []Employer {
	out := make([]Employer, n)
	for i := 0; i < n; i++ {
		industry := industries[i%len(industries)]
		out[i] = Employer{
			ID:            FormatID(EmployerPrefix, employerWidth, i+1),
			Name:          fmt.Sprintf("%s Corp %c", industry, 'A'+rune(i%26)),
			Industry:      industry,
			EmployeeCount: employeeCounts[g.rng.Intn(len(employeeCounts))],
			State:         g.pick(states),
			ContractStart: addDays(contractEpoch, contractSpacing*i),
		}
	}
	return out
}

// memberAges returns n ages weighted toward screening-eligible years:
// 20% in [25,40), 60% in [40,65) and 20% in [65,80), in that order.
func (g *Generator) memberAges(n int) []int {
	younger := n * 20 / 100
	older := n * 20 / 100
	primary := n - younger - older

	ages := make([]int, 0, n)
	for i := 0; i < younger; i++ {
		ages = append(ages, g.between(25, 40))
	}
	for i := 0; i < primary; i++ {
		ages = append(ages, g.between(40, 65))
	}
	for i := 0; i < older; i++ {
		ages = append(ages, g.between(65, 80))
	}
	return ages
}

// GenerateMembers produces n members spread over employers. A fixed 2% of
// members get no email, for data-quality tests downstream.
func (g *Generator) GenerateMembers(n int, employers []Employer, asOf time.Time) []Member {
	ages := g.memberAges(n)
	created := spread(memberEpoch, memberCutoff, n)

	out := make([]Member, n)
	for i := 0; i < n; i++ {
		seq := i + 1
		out[i] = Member{
			ID:          FormatID(MemberPrefix, memberWidth, seq),
			EmployerID:  employers[g.rng.Intn(len(employers))].ID,
			FirstName:   fmt.Sprintf("FirstName%d", seq),
			LastName:    fmt.Sprintf("LastName%d", seq),
			DateOfBirth: birthDateFor(ages[i], asOf),
			Gender:      Choose(g, genders),
			State:       g.pick(states),
			ZipCode:     fmt.Sprintf("%d", g.between(10000, 99999)),
			Email:       fmt.Sprintf("member%d@example.com", seq),
			Phone:       fmt.Sprintf("555-%d-%d", g.between(100, 999), g.between(1000, 9999)),
			HighRisk:    g.chance(highRiskRate),
			CreatedAt:   created[i],
		}
	}

	for _, idx := range g.sample(n, int(float64(n)*missingEmailRate)) {
		out[idx].Email = ""
	}
	return out
}

// GenerateEnrollments enrolls a random 95% of members, in sampled order.
// Enrollment dates are spread evenly from start to end.
func (g *Generator) GenerateEnrollments(members []Member, start, end time.Time) []Enrollment {
	picked := g.sample(len(members), int(float64(len(members))*enrollmentShare))
	if len(picked) == 0 {
		return nil
	}
	dates := spread(start, end, len(picked))

	out := make([]Enrollment, len(picked))
	for i, idx := range picked {
		m := members[idx]
		out[i] = Enrollment{
			ID:             FormatID(EnrollmentPrefix, enrollmentWidth, i+1),
			MemberID:       m.ID,
			EmployerID:     m.EmployerID,
			EnrollmentDate: truncateDay(dates[i]),
			Channel:        Choose(g, enrollmentChannels),
			Status:         Choose(g, enrollmentStatuses),
			ConsentGiven:   true,
		}
	}
	return out
}

// GenerateProviders produces n providers.
func (g *Generator) GenerateProviders(n int) []Provider {
	out := make([]Provider, n)
	for i := 0; i < n; i++ {
		out[i] = Provider{
			ID:        FormatID(ProviderPrefix, providerWidth, i+1),
			Name:      fmt.Sprintf("Dr. %c. Provider%d", 'A'+rune(i%26), i),
			Specialty: g.pick(specialties),
			State:     g.pick(states),
			NPI:       fmt.Sprintf("NPI%d", 1000000000+g.rng.Int63n(9999999999-1000000000)),
		}
	}
	return out
}
