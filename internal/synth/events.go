package synth

import (
	"fmt"
	"time"
)

// EngagementLevel drives how many portal events a member produces.
type EngagementLevel string

const (
	EngagementHigh   EngagementLevel = "high"
	EngagementMedium EngagementLevel = "medium"
	EngagementLow    EngagementLevel = "low"
)

var (
	engagementLevels = []Weighted[EngagementLevel]{
		{EngagementHigh, 0.7},
		{EngagementMedium, 0.2},
		{EngagementLow, 0.1},
	}
	engagementEvents = map[EngagementLevel]intRange{
		EngagementHigh:   {20, 100},
		EngagementMedium: {5, 20},
		EngagementLow:    {1, 5},
	}
)

const eventWindowDays = 730

// GenerateAppEvents produces portal events for every enrolled member. Event
// days fall within two years of enrollment; days after endDate are dropped.
func (g *Generator) GenerateAppEvents(enrollments []Enrollment, endDate time.Time) []AppEvent {
	var out []AppEvent
	seq := 0
	for _, enr := range enrollments {
		level := Choose(g, engagementLevels)
		r := engagementEvents[level]
		count := g.between(r.lo, r.hi)

		for e := 0; e < count; e++ {
			eventDay := addDays(enr.EnrollmentDate, g.between(0, eventWindowDays))
			if eventDay.After(endDate) {
				continue
			}

			seq++
			out = append(out, AppEvent{
				ID:         FormatID(EventPrefix, eventWidth, seq),
				MemberID:   enr.MemberID,
				EventType:  g.pick(eventTypes),
				Timestamp:  eventDay.Add(time.Duration(g.between(0, 24)) * time.Hour),
				SessionID:  fmt.Sprintf("SES%d", g.between(100000, 999999)),
				DeviceType: Choose(g, deviceTypes),
			})
		}
	}
	return out
}
