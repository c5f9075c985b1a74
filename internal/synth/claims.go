package synth

import "fmt"

// GenerateClaims bills 1–3 follow-up claims for every abnormal or
// cancer-detected screening, dated 1–89 days after the result.
func (g *Generator) GenerateClaims(screenings []Screening) []Claim {
	var out []Claim
	seq := 0
	for _, s := range screenings {
		if !s.NeedsClaims() {
			continue
		}
		vocab := claimVocabularyFor(s.Type)
		count := g.between(1, 4)
		for c := 0; c < count; c++ {
			claimDate := addDays(s.ResultDate, g.between(1, 90))
			claimed, paid := g.ClaimAmounts()

			seq++
			out = append(out, Claim{
				ID:                   FormatID(ClaimPrefix, claimWidth, seq),
				ScreeningID:          s.ID,
				MemberID:             s.MemberID,
				ProviderID:           s.ProviderID,
				ClaimDate:            claimDate,
				ServiceDate:          claimDate,
				ProcedureCode:        fmt.Sprintf("CPT%d", g.between(10000, 99999)),
				ProcedureDescription: g.pick(vocab.Procedures),
				DiagnosisCode:        g.pick(vocab.Diagnoses),
				ClaimAmount:          claimed,
				PaidAmount:           paid,
				Status:               Choose(g, claimStatuses),
			})
		}
	}
	return out
}
