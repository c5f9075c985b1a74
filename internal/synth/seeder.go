package synth

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Seeder: orchestrates full data generation
// ---------------------------------------------------------------------------

// Seeder runs the generation stages in dependency order, each stage reading
// the in-memory output of the previous ones.
type Seeder struct {
	config    Config
	generator *Generator
	logger    zerolog.Logger
}

// NewSeeder creates a Seeder for config. The logger receives per-stage
// progress; pass zerolog.Nop() to silence it.
func NewSeeder(config Config, logger zerolog.Logger) *Seeder {
	return &Seeder{
		config:    config,
		generator: NewGenerator(config.Seed),
		logger:    logger,
	}
}

// Generate produces a complete dataset. A Seeder is single-use: calling
// Generate twice continues the same random stream.
func (s *Seeder) Generate() (*Dataset, error) {
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation config: %w", err)
	}

	start := time.Now()
	g := s.generator
	cfg := s.config
	ds := &Dataset{}

	ds.Employers = g.GenerateEmployers(cfg.Employers)
	s.stage("employers", len(ds.Employers))

	ds.Members = g.GenerateMembers(cfg.Members, ds.Employers, cfg.AsOf)
	s.stage("members", len(ds.Members))

	ds.Enrollments = g.GenerateEnrollments(ds.Members, cfg.StartDate, cfg.EnrollmentEndDate)
	s.stage("enrollments", len(ds.Enrollments))

	ds.Providers = g.GenerateProviders(cfg.Providers)
	s.stage("providers", len(ds.Providers))

	ds.Screenings = g.GenerateScreenings(ScreeningPlan{
		Mode:         cfg.Mode,
		FollowUpRate: cfg.FollowUpRate,
		EndDate:      cfg.EndDate,
		AsOf:         cfg.AsOf,
	}, ds.Enrollments, ds.Members, ds.Providers)
	late := g.DelayResults(ds.Screenings, cfg.LateResultRate)
	s.logger.Info().
		Str("stage", "screenings").
		Int("rows", len(ds.Screenings)).
		Int("late_results", late).
		Str("mode", string(cfg.Mode)).
		Msg("generated")

	ds.Claims = g.GenerateClaims(ds.Screenings)
	s.stage("claims", len(ds.Claims))

	ds.AppEvents = g.GenerateAppEvents(ds.Enrollments, cfg.EndDate)
	s.stage("app_events", len(ds.AppEvents))

	s.logger.Debug().Dur("duration", time.Since(start)).Msg("dataset generated")
	return ds, nil
}

func (s *Seeder) stage(name string, rows int) {
	s.logger.Info().Str("stage", name).Int("rows", rows).Msg("generated")
}
