// Package sandbox serves reproducible synthetic seed datasets over HTTP for
// demo and integration environments. A dataset lives in memory until it is
// replaced or deleted.
package sandbox

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/screenseed/internal/platform/auth"
	"github.com/ehr/screenseed/internal/platform/reporting"
	"github.com/ehr/screenseed/internal/platform/seedio"
	"github.com/ehr/screenseed/internal/synth"
)

var (
	ErrNoDataset    = errors.New("no dataset generated")
	ErrUnknownTable = errors.New("unknown table")
)

// Caps on the entity counts a single request may ask for.
const (
	MaxMembers   = 50000
	MaxEmployers = 1000
	MaxProviders = 5000
)

// ---------------------------------------------------------------------------
// SeedRequest
// ---------------------------------------------------------------------------

// SeedRequest overrides the handler's base configuration. Absent fields keep
// the base value.
type SeedRequest struct {
	Seed              *int64   `json:"seed,omitempty"`
	Employers         *int     `json:"employers,omitempty"`
	Members           *int     `json:"members,omitempty"`
	Providers         *int     `json:"providers,omitempty"`
	StartDate         string   `json:"startDate,omitempty"`
	EndDate           string   `json:"endDate,omitempty"`
	EnrollmentEndDate string   `json:"enrollmentEndDate,omitempty"`
	AsOfDate          string   `json:"asOfDate,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	FollowUpRate      *float64 `json:"followUpRate,omitempty"`
	LateResultRate    *float64 `json:"lateResultRate,omitempty"`
}

// Apply returns base with r's overrides applied and validated.
func (r SeedRequest) Apply(base synth.Config) (synth.Config, error) {
	cfg := base
	if r.Seed != nil {
		cfg.Seed = *r.Seed
	}
	if r.Employers != nil {
		cfg.Employers = *r.Employers
	}
	if r.Members != nil {
		cfg.Members = *r.Members
	}
	if r.Providers != nil {
		cfg.Providers = *r.Providers
	}
	if r.FollowUpRate != nil {
		cfg.FollowUpRate = *r.FollowUpRate
	}
	if r.LateResultRate != nil {
		cfg.LateResultRate = *r.LateResultRate
	}
	if r.Mode != "" {
		mode, err := synth.ParseOutcomeMode(r.Mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}

	// An end date override without an as-of override moves the as-of day
	// along with it.
	asOfFollowsEnd := cfg.AsOf.Equal(cfg.EndDate)
	dates := []struct {
		name  string
		value string
		dst   *time.Time
	}{
		{"startDate", r.StartDate, &cfg.StartDate},
		{"endDate", r.EndDate, &cfg.EndDate},
		{"enrollmentEndDate", r.EnrollmentEndDate, &cfg.EnrollmentEndDate},
		{"asOfDate", r.AsOfDate, &cfg.AsOf},
	}
	for _, d := range dates {
		if d.value == "" {
			continue
		}
		t, err := seedio.ParseDate(d.value)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = t
	}
	if asOfFollowsEnd && r.AsOfDate == "" {
		cfg.AsOf = cfg.EndDate
	}

	limits := []struct {
		name  string
		value int
		max   int
	}{
		{"members", cfg.Members, MaxMembers},
		{"employers", cfg.Employers, MaxEmployers},
		{"providers", cfg.Providers, MaxProviders},
	}
	for _, l := range limits {
		if l.value > l.max {
			return cfg, fmt.Errorf("%s must not exceed %d, got %d", l.name, l.max, l.value)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Dataset
// ---------------------------------------------------------------------------

// Dataset is one generated dataset rendered to tables.
type Dataset struct {
	RunID       string
	Config      synth.Config
	Tables      []seedio.Table
	Stats       reporting.ScreeningStats
	GeneratedAt time.Time
	Duration    time.Duration
}

// Table returns the table called name.
func (d *Dataset) Table(name string) (*seedio.Table, error) {
	for i := range d.Tables {
		if d.Tables[i].Name == name {
			return &d.Tables[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnknownTable)
}

// Summary is the JSON view of a Dataset.
type Summary struct {
	RunID       string                   `json:"runId"`
	Seed        int64                    `json:"seed"`
	Mode        string                   `json:"mode"`
	StartDate   string                   `json:"startDate"`
	EndDate     string                   `json:"endDate"`
	Tables      []reporting.TableCount   `json:"tables"`
	Screenings  reporting.ScreeningStats `json:"screenings"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Duration    string                   `json:"duration"`
}

// Summary builds the JSON view of d.
func (d *Dataset) Summary() Summary {
	run := reporting.NewRunSummary(d.Tables, d.Config.StartDate, d.Config.EndDate, "")
	return Summary{
		RunID:       d.RunID,
		Seed:        d.Config.Seed,
		Mode:        string(d.Config.Mode),
		StartDate:   seedio.FormatDate(d.Config.StartDate),
		EndDate:     seedio.FormatDate(d.Config.EndDate),
		Tables:      run.Tables,
		Screenings:  d.Stats,
		GeneratedAt: d.GeneratedAt,
		Duration:    d.Duration.String(),
	}
}

// Generate runs the seeder for cfg and renders its tables.
func Generate(cfg synth.Config, logger zerolog.Logger) (*Dataset, error) {
	start := time.Now()
	ds, err := synth.NewSeeder(cfg, logger).Generate()
	if err != nil {
		return nil, err
	}
	out := &Dataset{
		RunID:       seedio.RunID(cfg),
		Config:      cfg,
		Tables:      seedio.Tables(ds),
		GeneratedAt: start.UTC(),
	}
	screenings, err := out.Table(seedio.ScreeningsTable)
	if err != nil {
		return nil, err
	}
	if out.Stats, err = reporting.ComputeScreeningStats(screenings); err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)
	return out, nil
}

// ---------------------------------------------------------------------------
// SeedHandler: Echo HTTP handlers
// ---------------------------------------------------------------------------

// SeedHandler provides HTTP endpoints for sandbox dataset management.
type SeedHandler struct {
	base       synth.Config
	logger     zerolog.Logger
	generateMW []echo.MiddlewareFunc
	observers  []Observer

	mu      sync.RWMutex
	current *Dataset
}

// Observer is notified when the served dataset changes.
type Observer interface {
	DatasetGenerated(ds *Dataset)
	DatasetReset()
}

// HandlerOption configures a SeedHandler.
type HandlerOption func(*SeedHandler)

// WithGenerateMiddleware adds middleware that runs only on dataset
// generation, after the role check.
func WithGenerateMiddleware(mw ...echo.MiddlewareFunc) HandlerOption {
	return func(h *SeedHandler) {
		h.generateMW = append(h.generateMW, mw...)
	}
}

// WithObserver registers o for dataset changes.
func WithObserver(o Observer) HandlerOption {
	return func(h *SeedHandler) {
		h.observers = append(h.observers, o)
	}
}

// NewSeedHandler creates a handler with no dataset. Requests override base.
func NewSeedHandler(base synth.Config, logger zerolog.Logger, opts ...HandlerOption) *SeedHandler {
	h := &SeedHandler{base: base, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	write := auth.RequireRole(auth.RoleSeeder)
	read := auth.RequireRole(auth.RoleViewer, auth.RoleSeeder)

	g.POST("/datasets", h.handleSeed, append([]echo.MiddlewareFunc{write}, h.generateMW...)...)
	g.GET("/datasets/current", h.handleCurrent, read)
	g.GET("/datasets/current/tables/:table", h.handleTable, read)
	g.DELETE("/datasets/current", h.handleReset, write)
}

// Current returns the dataset being served.
func (h *SeedHandler) Current() (*Dataset, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil, ErrNoDataset
	}
	return h.current, nil
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	var req SeedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg, err := req.Apply(h.base)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ds, err := Generate(cfg, h.logger)
	if err != nil {
		return fmt.Errorf("generating dataset: %w", err)
	}

	h.mu.Lock()
	h.current = ds
	h.mu.Unlock()
	for _, o := range h.observers {
		o.DatasetGenerated(ds)
	}

	h.logger.Info().
		Str("run_id", ds.RunID).
		Int64("seed", cfg.Seed).
		Int("members", cfg.Members).
		Dur("duration", ds.Duration).
		Msg("sandbox dataset generated")
	return c.JSON(http.StatusCreated, ds.Summary())
}

func (h *SeedHandler) handleCurrent(c echo.Context) error {
	ds, err := h.Current()
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, ds.Summary())
}

func (h *SeedHandler) handleTable(c echo.Context) error {
	ds, err := h.Current()
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	t, err := ds.Table(c.Param("table"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", t.FileName()))
	c.Response().WriteHeader(http.StatusOK)
	return t.Write(c.Response())
}

func (h *SeedHandler) handleReset(c echo.Context) error {
	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()
	for _, o := range h.observers {
		o.DatasetReset()
	}
	return c.NoContent(http.StatusNoContent)
}
