package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"

	"github.com/ehr/screenseed/internal/platform/seedio"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeRows struct {
	fields []string
	values [][]any
	pos    int
	err    error
}

func (r *fakeRows) Close() {}
func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.fields))
	for i, f := range r.fields {
		out[i] = pgconn.FieldDescription{Name: f}
	}
	return out
}
func (r *fakeRows) Scan(dest ...any) error { return errors.New("not supported") }
func (r *fakeRows) Values() ([]any, error) { return r.values[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte { return nil }
func (r *fakeRows) Conn() *pgx.Conn { return nil }

type fakeQuerier struct {
	sql  string
	rows *fakeRows
	err  error
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.sql = sql
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

// ---------------------------------------------------------------------------
// Measures
// ---------------------------------------------------------------------------

func TestPredefinedMeasures_HaveSQL(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range PredefinedMeasures {
		if m.SQL == "" || m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is incomplete", m.ID)
		}
		if !strings.Contains(m.SQL, "{schema}.") {
			t.Errorf("measure %s does not reference the schema placeholder", m.ID)
		}
		if seen[m.ID] {
			t.Errorf("duplicate measure id %s", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestFindMeasure(t *testing.T) {
	if m := FindMeasure("screening-results"); m == nil || m.Name != "Screening Results" {
		t.Fatalf("expected screening-results, got %+v", m)
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestQueryFor_QuotesSchema(t *testing.T) {
	sql := FindMeasure("screening-results").QueryFor("raw")
	if !strings.Contains(sql, `FROM "raw".raw_screenings`) {
		t.Errorf("schema not substituted: %s", sql)
	}
	if strings.Contains(sql, "{schema}") {
		t.Errorf("placeholder left in %s", sql)
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{
		fields: []string{"result", "total"},
		values: [][]any{{"Normal", int64(9)}, {"Cancer Detected", int64(1)}},
	}}
	report, err := NewEvaluator(q, "analytics").Evaluate(context.Background(), "screening-results")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(q.sql, `"analytics".raw_screenings`) {
		t.Errorf("unexpected sql: %s", q.sql)
	}
	if len(report.Results) != 2 || report.Results[0]["result"] != "Normal" || report.Results[1]["total"] != int64(1) {
		t.Errorf("unexpected results: %v", report.Results)
	}
}

func TestEvaluator_UnknownMeasure(t *testing.T) {
	if _, err := NewEvaluator(&fakeQuerier{}, "raw").Evaluate(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestEvaluator_QueryError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("connection refused")}
	if _, err := NewEvaluator(q, "raw").Evaluate(context.Background(), "claims-by-status"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestHandler_Routes(t *testing.T) {
	e := echo.New()
	q := &fakeQuerier{rows: &fakeRows{fields: []string{"device_type"}, values: [][]any{{"Mobile"}}}}
	NewHandler(NewEvaluator(q, "raw")).RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measures", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var defs []MeasureDefinition
	if err := json.Unmarshal(rec.Body.Bytes(), &defs); err != nil || len(defs) != len(PredefinedMeasures) {
		t.Fatalf("list: unexpected body %s (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measures/engagement-by-device/evaluate", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measures/missing/evaluate", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("evaluate missing: expected 404, got %d", rec.Code)
	}
}

func TestHandler_EvaluateTimeout(t *testing.T) {
	e := echo.New()
	q := &fakeQuerier{err: fmt.Errorf("query: %w", context.DeadlineExceeded)}
	NewHandler(NewEvaluator(q, "raw")).RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/measures/time-to-result/evaluate", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Summaries
// ---------------------------------------------------------------------------

func screeningsTable() *seedio.Table {
	return &seedio.Table{
		Name:   seedio.ScreeningsTable,
		Header: seedio.ScreeningColumns,
		Rows: [][]string{
			{"SCR000001", "MEM00001", "EMP001", "PROV0001", "Mammogram", "2024-01-01", "Normal", "2024-01-10", "False", "", "450"},
			{"SCR000002", "MEM00002", "EMP001", "PROV0001", "Colonoscopy", "2024-01-01", "Abnormal - Benign", "2024-01-10", "True", "True", "1200"},
			{"SCR000003", "MEM00003", "EMP001", "PROV0002", "Colonoscopy", "2024-01-01", "Cancer Detected", "2024-01-10", "True", "False", "1100"},
			{"SCR000004", "MEM00004", "EMP002", "PROV0002", "Mammogram", "2024-01-01", "Abnormal - Benign", "2024-01-10", "True", "True", "420"},
		},
	}
}

func TestComputeScreeningStats(t *testing.T) {
	stats, err := ComputeScreeningStats(screeningsTable())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 4 || stats.FollowUpNeeded != 3 || stats.FollowUpCompleted != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Results[0].Label != "Abnormal - Benign" || stats.Results[0].Count != 2 || stats.Results[0].Percent != 50 {
		t.Errorf("unexpected top result: %+v", stats.Results[0])
	}
	// Ties on count are ordered by name.
	if stats.Types[0].Label != "Colonoscopy" || stats.Types[1].Label != "Mammogram" {
		t.Errorf("unexpected type order: %+v", stats.Types)
	}
	if got := stats.CompletionRate(); got < 66.6 || got > 66.7 {
		t.Errorf("expected completion rate ~66.7, got %v", got)
	}
}

func TestComputeScreeningStats_MissingColumn(t *testing.T) {
	tbl := &seedio.Table{Name: "x", Header: []string{"screening_id"}}
	if _, err := ComputeScreeningStats(tbl); !errors.Is(err, seedio.ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestRunSummary_Render(t *testing.T) {
	tables := []seedio.Table{
		{Name: seedio.MembersTable, Rows: make([][]string, 1000)},
		{Name: seedio.AppEventsTable, Rows: make([][]string, 12345)},
	}
	s := NewRunSummary(tables, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC), "seeds")

	var buf bytes.Buffer
	s.Render(&buf, NewPrinter())
	out := buf.String()
	for _, want := range []string{"Members:", "1,000", "App Events:", "12,345", "2023-01-01 to 2025-11-13", "seeds"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderExpansion(t *testing.T) {
	tbl := screeningsTable()
	res := &seedio.ExpandResult{Existing: 2, Added: 2, Screenings: tbl, BackupPath: "seeds/raw_screenings_backup.csv"}

	var buf bytes.Buffer
	if err := RenderExpansion(&buf, NewPrinter(), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Total screenings:    4", "new 2 screenings only", "Follow-up completion rate:     66.7%", "raw_screenings_backup.csv"} {
		if !strings.Contains(out, want) {
			t.Errorf("expansion report missing %q:\n%s", want, out)
		}
	}
}
