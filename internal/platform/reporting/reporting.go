package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// MeasureDefinition defines a reporting measure with its SQL query. The
// query names tables through the {schema} placeholder.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string           `json:"measure_id"`
	MeasureName string           `json:"measure_name"`
	Schema      string           `json:"schema"`
	Results     []map[string]any `json:"results"`
}

// PredefinedMeasures is the list of available warehouse measures. Seed
// columns are loaded as TEXT, so numeric and date columns are cast.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "screening-results",
		Name:        "Screening Results",
		Description: "Number of screenings per result",
		SQL:         `SELECT result, COUNT(*) AS total FROM {schema}.raw_screenings GROUP BY result ORDER BY total DESC, result`,
	},
	{
		ID:          "follow-up-completion",
		Name:        "Follow-Up Completion",
		Description: "Screenings needing follow-up and how many were completed, per screening type",
		SQL: `SELECT screening_type,
       COUNT(*) FILTER (WHERE follow_up_needed = 'True') AS needed,
       COUNT(*) FILTER (WHERE follow_up_completed = 'True') AS completed
  FROM {schema}.raw_screenings
 GROUP BY screening_type
 ORDER BY screening_type`,
	},
	{
		ID:          "time-to-result",
		Name:        "Time to Result",
		Description: "Average days between screening and result, per screening type",
		SQL: `SELECT screening_type,
       ROUND(AVG(result_date::date - screening_date::date), 1) AS avg_days
  FROM {schema}.raw_screenings
 GROUP BY screening_type
 ORDER BY screening_type`,
	},
	{
		ID:          "claims-by-status",
		Name:        "Claims by Status",
		Description: "Claim counts and amounts per claim status",
		SQL: `SELECT claim_status, COUNT(*) AS total,
       SUM(claim_amount::int) AS claimed, SUM(paid_amount::int) AS paid
  FROM {schema}.raw_claims
 GROUP BY claim_status
 ORDER BY total DESC`,
	},
	{
		ID:          "engagement-by-device",
		Name:        "Engagement by Device",
		Description: "App events and distinct members per device type",
		SQL: `SELECT device_type, COUNT(*) AS events, COUNT(DISTINCT member_id) AS members
  FROM {schema}.raw_app_events
 GROUP BY device_type
 ORDER BY events DESC`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// QueryFor renders the measure's SQL against schema.
func (m MeasureDefinition) QueryFor(schema string) string {
	return strings.ReplaceAll(m.SQL, "{schema}", pgx.Identifier{schema}.Sanitize())
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("reporting: "+format, args...)
}

// Querier runs a query. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Evaluator runs measures against one warehouse schema.
type Evaluator struct {
	db     Querier
	schema string
}

// NewEvaluator creates an evaluator for schema.
func NewEvaluator(db Querier, schema string) *Evaluator {
	return &Evaluator{db: db, schema: schema}
}

// Evaluate executes the measure identified by id.
func (e *Evaluator) Evaluate(ctx context.Context, id string) (*MeasureReport, error) {
	measure := FindMeasure(id)
	if measure == nil {
		return nil, errorf("unknown measure %q", id)
	}
	results, err := e.executeSQL(ctx, measure.QueryFor(e.schema))
	if err != nil {
		return nil, errorf("measure %s: %w", id, err)
	}
	return &MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		Schema:      e.schema,
		Results:     results,
	}, nil
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (e *Evaluator) executeSQL(ctx context.Context, sql string) ([]map[string]any, error) {
	rows, err := e.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// Handler provides HTTP handlers for the measures API.
type Handler struct {
	evaluator *Evaluator
}

// NewHandler creates a new reporting handler.
func NewHandler(evaluator *Evaluator) *Handler {
	return &Handler{evaluator: evaluator}
}

// RegisterRoutes registers the measures API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/measures", h.ListMeasures)
	api.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	id := c.Param("id")
	if FindMeasure(id) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}
	report, err := h.evaluator.Evaluate(c.Request().Context(), id)
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "measure evaluation timed out")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}
	return c.JSON(http.StatusOK, report)
}
