// Package synth produces the synthetic screening-program dataset: employers,
// members, enrollments, providers, screenings, claims and app events. Every
// draw goes through one seeded random source, so a seed and a Config fully
// determine the output.
package synth

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// Generator owns the seeded random source shared by every sampler in a run.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator seeded for reproducibility. Unlike demo
// seeders a zero seed is a valid, fixed seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// between draws a uniform integer in [lo, hi).
func (g *Generator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo)
}

// chance reports true with probability p.
func (g *Generator) chance(p float64) bool {
	return g.rng.Float64() < p
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// sample returns k distinct indexes of [0, n) in random order.
func (g *Generator) sample(n, k int) []int {
	if k > n {
		k = n
	}
	return g.rng.Perm(n)[:k]
}

// Weighted is one option of a discrete distribution.
type Weighted[T any] struct {
	Value  T
	Weight float64
}

// Choose draws one value from opts proportionally to the weights.
func Choose[T any](g *Generator, opts []Weighted[T]) T {
	var total float64
	for _, o := range opts {
		total += o.Weight
	}
	u := g.rng.Float64() * total
	for _, o := range opts {
		if u < o.Weight {
			return o.Value
		}
		u -= o.Weight
	}
	return opts[len(opts)-1].Value
}

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

// ID prefixes and zero-padded widths per entity.
const (
	EmployerPrefix   = "EMP"
	MemberPrefix     = "MEM"
	EnrollmentPrefix = "ENR"
	ProviderPrefix   = "PROV"
	ScreeningPrefix  = "SCR"
	ClaimPrefix      = "CLM"
	EventPrefix      = "EVT"

	employerWidth   = 3
	memberWidth     = 5
	enrollmentWidth = 5
	providerWidth   = 4
	screeningWidth  = 6
	claimWidth      = 6
	eventWidth      = 7
)

// FormatID renders prefix + n zero-padded to width digits.
func FormatID(prefix string, width, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// ScreeningID renders the n-th screening id (SCR000001 for n=1).
func ScreeningID(n int) string {
	return FormatID(ScreeningPrefix, screeningWidth, n)
}

// ParseSequence extracts the numeric suffix of id after prefix.
func ParseSequence(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Date helpers
// ---------------------------------------------------------------------------

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// daysBetween counts whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// spread returns n instants evenly spaced from start to end inclusive.
func spread(start, end time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	if n == 1 {
		out[0] = start
		return out
	}
	total := float64(end.Sub(start))
	for i := 0; i < n; i++ {
		offset := time.Duration(total * float64(i) / float64(n-1))
		out[i] = start.Add(offset).Truncate(time.Second)
	}
	return out
}

// AgeOn returns the fractional age in years at asOf.
func AgeOn(dob, asOf time.Time) float64 {
	return asOf.Sub(dob).Hours() / 24 / 365.25
}

// birthDateFor returns the calendar day that makes a member age years old
// at asOf.
func birthDateFor(age int, asOf time.Time) time.Time {
	offset := time.Duration(float64(age) * 365.25 * 24 * float64(time.Hour))
	return truncateDay(asOf.Add(-offset))
}
