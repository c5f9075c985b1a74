package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/screenseed/internal/synth"
)

const dateLayout = "2006-01-02"

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	Seed              int64   `mapstructure:"SEED"`
	NumEmployers      int     `mapstructure:"NUM_EMPLOYERS"`
	NumMembers        int     `mapstructure:"NUM_MEMBERS"`
	NumProviders      int     `mapstructure:"NUM_PROVIDERS"`
	StartDate         string  `mapstructure:"START_DATE"`
	EndDate           string  `mapstructure:"END_DATE"`
	EnrollmentEndDate string  `mapstructure:"ENROLLMENT_END_DATE"`
	AsOfDate          string  `mapstructure:"AS_OF_DATE"`
	OutcomeMode       string  `mapstructure:"OUTCOME_MODE"`
	FollowUpRate      float64 `mapstructure:"FOLLOWUP_RATE"`
	LateResultRate    float64 `mapstructure:"LATE_RESULT_RATE"`
	OutputDir         string  `mapstructure:"OUTPUT_DIR"`

	ExpandStartDate   string `mapstructure:"EXPAND_START_DATE"`
	ExpandEndDate     string `mapstructure:"EXPAND_END_DATE"`
	ExpandOutcomeMode string `mapstructure:"EXPAND_OUTCOME_MODE"`

	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32  `mapstructure:"DB_MIN_CONNS"`
	WarehouseSchema string `mapstructure:"WAREHOUSE_SCHEMA"`

	S3Bucket string `mapstructure:"S3_BUCKET"`
	S3Prefix string `mapstructure:"S3_PREFIX"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	Port           string  `mapstructure:"PORT"`
	AuthSigningKey string  `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string  `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string  `mapstructure:"AUTH_AUDIENCE"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string  `mapstructure:"BODY_LIMIT"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"ENV", "LOG_LEVEL",
	"SEED", "NUM_EMPLOYERS", "NUM_MEMBERS", "NUM_PROVIDERS",
	"START_DATE", "END_DATE", "ENROLLMENT_END_DATE", "AS_OF_DATE",
	"OUTCOME_MODE", "FOLLOWUP_RATE", "LATE_RESULT_RATE", "OUTPUT_DIR",
	"EXPAND_START_DATE", "EXPAND_END_DATE", "EXPAND_OUTCOME_MODE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "WAREHOUSE_SCHEMA",
	"S3_BUCKET", "S3_PREFIX",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
	"PORT", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"CORS_ORIGINS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SEED", 42)
	v.SetDefault("NUM_EMPLOYERS", 10)
	v.SetDefault("NUM_MEMBERS", 1000)
	v.SetDefault("NUM_PROVIDERS", 50)
	v.SetDefault("START_DATE", "2023-01-01")
	v.SetDefault("END_DATE", "2025-11-13")
	v.SetDefault("ENROLLMENT_END_DATE", "2024-12-31")
	v.SetDefault("AS_OF_DATE", "") // "" -> END_DATE
	v.SetDefault("OUTCOME_MODE", string(synth.ModeFlat))
	v.SetDefault("FOLLOWUP_RATE", 0.75)
	v.SetDefault("LATE_RESULT_RATE", 0.05)
	v.SetDefault("OUTPUT_DIR", "seeds")

	v.SetDefault("EXPAND_START_DATE", "2023-01-01")
	v.SetDefault("EXPAND_END_DATE", "2025-03-31")
	v.SetDefault("EXPAND_OUTCOME_MODE", string(synth.ModeConditioned))

	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("WAREHOUSE_SCHEMA", "raw")

	v.SetDefault("S3_PREFIX", "seeds/")
	v.SetDefault("KAFKA_TOPIC", "app-events")

	v.SetDefault("PORT", "8000")
	v.SetDefault("RATE_LIMIT_RPS", 2)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
}

// Load reads .env (if present) and the environment on top of the defaults.
// Values are not validated; call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks every generation setting. Service settings (database,
// bucket, brokers) are checked by the commands that need them.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.SynthConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.ExpandWindow(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ExpandMode(); err != nil {
		errs = append(errs, fmt.Errorf("EXPAND_OUTCOME_MODE: %w", err))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR must not be empty"))
	}
	if c.DBMinConns < 0 || c.DBMaxConns < c.DBMinConns || c.DBMaxConns == 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS (%d) must be positive and at least DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// SynthConfig converts the generation settings. AS_OF_DATE defaults to
// END_DATE.
func (c *Config) SynthConfig() (synth.Config, error) {
	var errs []error
	date := func(key, value string) time.Time {
		t, err := time.Parse(dateLayout, value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be YYYY-MM-DD, got %q", key, value))
		}
		return t
	}

	cfg := synth.Config{
		Seed:              c.Seed,
		Employers:         c.NumEmployers,
		Members:           c.NumMembers,
		Providers:         c.NumProviders,
		StartDate:         date("START_DATE", c.StartDate),
		EndDate:           date("END_DATE", c.EndDate),
		EnrollmentEndDate: date("ENROLLMENT_END_DATE", c.EnrollmentEndDate),
		Mode:              synth.OutcomeMode(c.OutcomeMode),
		FollowUpRate:      c.FollowUpRate,
		LateResultRate:    c.LateResultRate,
	}
	cfg.AsOf = cfg.EndDate
	if c.AsOfDate != "" {
		cfg.AsOf = date("AS_OF_DATE", c.AsOfDate)
	}
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ExpandWindow returns the screening date window used by expansion.
func (c *Config) ExpandWindow() (start, end time.Time, err error) {
	if start, err = time.Parse(dateLayout, c.ExpandStartDate); err != nil {
		return start, end, fmt.Errorf("EXPAND_START_DATE must be YYYY-MM-DD, got %q", c.ExpandStartDate)
	}
	if end, err = time.Parse(dateLayout, c.ExpandEndDate); err != nil {
		return start, end, fmt.Errorf("EXPAND_END_DATE must be YYYY-MM-DD, got %q", c.ExpandEndDate)
	}
	if !end.After(start) {
		return start, end, errors.New("EXPAND_END_DATE must be after EXPAND_START_DATE")
	}
	return start, end, nil
}

// ExpandMode is the outcome mode used for appended screenings.
func (c *Config) ExpandMode() (synth.OutcomeMode, error) {
	return synth.ParseOutcomeMode(c.ExpandOutcomeMode)
}
