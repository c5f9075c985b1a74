package synth

import (
	"errors"
	"fmt"
	"time"
)

// Config controls the volume and shape of a generation run.
type Config struct {
	Seed      int64
	Employers int
	Members   int
	Providers int

	// StartDate is the first enrollment date; EndDate bounds screening and
	// event dates; EnrollmentEndDate is the last enrollment date.
	StartDate         time.Time
	EndDate           time.Time
	EnrollmentEndDate time.Time
	// AsOf is the reference day that member ages are computed against.
	AsOf time.Time

	Mode           OutcomeMode
	FollowUpRate   float64
	LateResultRate float64
}

// DefaultConfig mirrors the reference warehouse seed set.
func DefaultConfig() Config {
	end := Date(2025, time.November, 13)
	return Config{
		Seed:              42,
		Employers:         10,
		Members:           1000,
		Providers:         50,
		StartDate:         Date(2023, time.January, 1),
		EndDate:           end,
		EnrollmentEndDate: Date(2024, time.December, 31),
		AsOf:              end,
		Mode:              ModeFlat,
		FollowUpRate:      0.75,
		LateResultRate:    0.05,
	}
}

// Fingerprint renders every field that influences the output, in a fixed
// order.
func (c Config) Fingerprint() string {
	return fmt.Sprintf(
		"seed=%d employers=%d members=%d providers=%d start=%s end=%s enrollment_end=%s as_of=%s mode=%s follow_up_rate=%g late_result_rate=%g",
		c.Seed, c.Employers, c.Members, c.Providers,
		c.StartDate.Format(time.DateOnly), c.EndDate.Format(time.DateOnly),
		c.EnrollmentEndDate.Format(time.DateOnly), c.AsOf.Format(time.DateOnly),
		c.Mode, c.FollowUpRate, c.LateResultRate,
	)
}

// Validate checks that the configuration can produce a consistent dataset.
func (c Config) Validate() error {
	var errs []error
	if c.Employers <= 0 {
		errs = append(errs, fmt.Errorf("employers must be positive, got %d", c.Employers))
	}
	if c.Members <= 0 {
		errs = append(errs, fmt.Errorf("members must be positive, got %d", c.Members))
	}
	if c.Providers <= 0 {
		errs = append(errs, fmt.Errorf("providers must be positive, got %d", c.Providers))
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() || c.EnrollmentEndDate.IsZero() || c.AsOf.IsZero() {
		errs = append(errs, errors.New("start, end, enrollment end and as-of dates are required"))
	} else {
		if !c.EndDate.After(c.StartDate) {
			errs = append(errs, errors.New("end date must be after start date"))
		}
		if c.EnrollmentEndDate.Before(c.StartDate) {
			errs = append(errs, errors.New("enrollment end date must not be before start date"))
		}
	}
	if _, err := ParseOutcomeMode(string(c.Mode)); err != nil {
		errs = append(errs, err)
	}
	if c.FollowUpRate < 0 || c.FollowUpRate > 1 {
		errs = append(errs, fmt.Errorf("follow-up rate must be within [0,1], got %v", c.FollowUpRate))
	}
	if c.LateResultRate < 0 || c.LateResultRate > 1 {
		errs = append(errs, fmt.Errorf("late result rate must be within [0,1], got %v", c.LateResultRate))
	}
	return errors.Join(errs...)
}
