package sandbox

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/screenseed/internal/platform/auth"
	"github.com/ehr/screenseed/internal/platform/seedio"
	"github.com/ehr/screenseed/internal/synth"
)

// ---------------------------------------------------------------------------
// Helper utilities
// ---------------------------------------------------------------------------

func smallConfig() synth.Config {
	cfg := synth.DefaultConfig()
	cfg.Employers = 2
	cfg.Members = 40
	cfg.Providers = 5
	return cfg
}

func setupTestEcho() (*echo.Echo, *SeedHandler) {
	e := echo.New()
	h := NewSeedHandler(smallConfig(), zerolog.Nop())
	g := e.Group("/api/v1", auth.DevAuthMiddleware())
	h.RegisterRoutes(g)
	return e, h
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// SeedRequest
// ---------------------------------------------------------------------------

func TestSeedRequest_Apply_KeepsBase(t *testing.T) {
	base := smallConfig()
	cfg, err := SeedRequest{}.Apply(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Fingerprint() != base.Fingerprint() {
		t.Errorf("expected base config unchanged, got %s", cfg.Fingerprint())
	}
}

func TestSeedRequest_Apply_Overrides(t *testing.T) {
	req := SeedRequest{
		Seed:         ptr(int64(7)),
		Members:      ptr(12),
		Mode:         "conditioned",
		EndDate:      "2025-06-30",
		FollowUpRate: ptr(0.5),
	}
	cfg, err := req.Apply(smallConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Seed != 7 || cfg.Members != 12 || cfg.Mode != synth.ModeConditioned || cfg.FollowUpRate != 0.5 {
		t.Errorf("overrides not applied: %s", cfg.Fingerprint())
	}
	want := synth.Date(2025, time.June, 30)
	if !cfg.EndDate.Equal(want) {
		t.Errorf("expected end date %v, got %v", want, cfg.EndDate)
	}
	if !cfg.AsOf.Equal(want) {
		t.Errorf("expected as-of to follow end date, got %v", cfg.AsOf)
	}
}

func TestSeedRequest_Apply_AtLimits(t *testing.T) {
	req := SeedRequest{Employers: ptr(MaxEmployers), Providers: ptr(MaxProviders)}
	cfg, err := req.Apply(smallConfig())
	if err != nil {
		t.Fatalf("Apply at limits: %v", err)
	}
	if cfg.Employers != MaxEmployers || cfg.Providers != MaxProviders {
		t.Errorf("unexpected counts: employers=%d providers=%d", cfg.Employers, cfg.Providers)
	}
}

func TestSeedRequest_Apply_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  SeedRequest
	}{
		{"unknown mode", SeedRequest{Mode: "random"}},
		{"bad date", SeedRequest{StartDate: "01/01/2023"}},
		{"zero members", SeedRequest{Members: ptr(0)}},
		{"too many members", SeedRequest{Members: ptr(MaxMembers + 1)}},
		{"too many employers", SeedRequest{Employers: ptr(MaxEmployers + 1)}},
		{"too many providers", SeedRequest{Providers: ptr(MaxProviders + 1)}},
		{"huge employers and providers", SeedRequest{Employers: ptr(2000000000), Providers: ptr(2000000000)}},
		{"rate out of range", SeedRequest{LateResultRate: ptr(1.5)}},
		{"end before start", SeedRequest{EndDate: "2022-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.req.Apply(smallConfig()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

func TestGenerate_RendersAllTables(t *testing.T) {
	ds, err := Generate(smallConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(ds.Tables) != 7 {
		t.Fatalf("expected 7 tables, got %d", len(ds.Tables))
	}
	members, err := ds.Table(seedio.MembersTable)
	if err != nil {
		t.Fatalf("members table: %v", err)
	}
	if len(members.Rows) != 40 {
		t.Errorf("expected 40 members, got %d", len(members.Rows))
	}
	screenings, _ := ds.Table(seedio.ScreeningsTable)
	if ds.Stats.Total != len(screenings.Rows) {
		t.Errorf("stats total %d != screenings %d", ds.Stats.Total, len(screenings.Rows))
	}
	if ds.RunID != seedio.RunID(smallConfig()) {
		t.Errorf("unexpected run id %s", ds.RunID)
	}
	if _, err := ds.Table("raw_patients"); err == nil {
		t.Error("expected unknown table error")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(smallConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(smallConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := range a.Tables {
		x, _ := a.Tables[i].Encode()
		y, _ := b.Tables[i].Encode()
		if !bytes.Equal(x, y) {
			t.Errorf("table %s differs between identical runs", a.Tables[i].Name)
		}
	}
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

func TestSeedHandler_Seed(t *testing.T) {
	e, h := setupTestEcho()

	rec := doRequest(e, http.MethodPost, "/api/v1/datasets", `{"seed":9,"members":25}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if summary.Seed != 9 || summary.Mode != "flat" {
		t.Errorf("unexpected summary %+v", summary)
	}
	if len(summary.Tables) != 7 || summary.Tables[1].Table != seedio.MembersTable || summary.Tables[1].Rows != 25 {
		t.Errorf("unexpected table counts %+v", summary.Tables)
	}
	if _, err := h.Current(); err != nil {
		t.Errorf("expected current dataset, got %v", err)
	}
}

func TestSeedHandler_Seed_BadRequest(t *testing.T) {
	e, h := setupTestEcho()

	for _, body := range []string{
		`{"mode":"random"}`,
		`{"members":`,
		`{"employers":2000000000}`,
		`{"providers":2000000000}`,
	} {
		rec := doRequest(e, http.MethodPost, "/api/v1/datasets", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
	if _, err := h.Current(); err != ErrNoDataset {
		t.Errorf("expected no dataset after failed requests, got %v", err)
	}
}

func TestSeedHandler_Current(t *testing.T) {
	e, _ := setupTestEcho()

	if rec := doRequest(e, http.MethodGet, "/api/v1/datasets/current", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before seeding, got %d", rec.Code)
	}

	doRequest(e, http.MethodPost, "/api/v1/datasets", `{}`)
	rec := doRequest(e, http.MethodGet, "/api/v1/datasets/current", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if summary.RunID == "" || summary.StartDate != "2023-01-01" {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestSeedHandler_Table(t *testing.T) {
	e, _ := setupTestEcho()

	if rec := doRequest(e, http.MethodGet, "/api/v1/datasets/current/tables/raw_members", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before seeding, got %d", rec.Code)
	}

	doRequest(e, http.MethodPost, "/api/v1/datasets", `{}`)
	rec := doRequest(e, http.MethodGet, "/api/v1/datasets/current/tables/raw_members", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 41 {
		t.Fatalf("expected header + 40 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(seedio.MemberColumns, ",") {
		t.Errorf("unexpected header %v", records[0])
	}

	if rec := doRequest(e, http.MethodGet, "/api/v1/datasets/current/tables/raw_patients", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown table, got %d", rec.Code)
	}
}

func TestSeedHandler_Reset(t *testing.T) {
	e, h := setupTestEcho()

	doRequest(e, http.MethodPost, "/api/v1/datasets", `{}`)
	rec := doRequest(e, http.MethodDelete, "/api/v1/datasets/current", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := h.Current(); err != ErrNoDataset {
		t.Errorf("expected no dataset after reset, got %v", err)
	}
	// Deleting again is still a 204.
	if rec := doRequest(e, http.MethodDelete, "/api/v1/datasets/current", ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 on repeat delete, got %d", rec.Code)
	}
}

func TestSeedHandler_GenerateMiddleware(t *testing.T) {
	e := echo.New()
	calls := 0
	counter := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			calls++
			return next(c)
		}
	}
	h := NewSeedHandler(smallConfig(), zerolog.Nop(), WithGenerateMiddleware(counter))
	h.RegisterRoutes(e.Group("/api/v1", auth.DevAuthMiddleware()))

	doRequest(e, http.MethodPost, "/api/v1/datasets", `{}`)
	doRequest(e, http.MethodGet, "/api/v1/datasets/current", "")
	doRequest(e, http.MethodDelete, "/api/v1/datasets/current", "")
	if calls != 1 {
		t.Errorf("expected generate middleware to run once, ran %d times", calls)
	}
}

type recordingObserver struct {
	generated []string
	resets    int
}

func (o *recordingObserver) DatasetGenerated(ds *Dataset) { o.generated = append(o.generated, ds.RunID) }
func (o *recordingObserver) DatasetReset()                { o.resets++ }

func TestSeedHandler_Observer(t *testing.T) {
	e := echo.New()
	obs := &recordingObserver{}
	h := NewSeedHandler(smallConfig(), zerolog.Nop(), WithObserver(obs))
	h.RegisterRoutes(e.Group("/api/v1", auth.DevAuthMiddleware()))

	doRequest(e, http.MethodPost, "/api/v1/datasets", `{"members":1000000}`)
	if len(obs.generated) != 0 {
		t.Fatalf("rejected request should not notify, got %v", obs.generated)
	}
	doRequest(e, http.MethodPost, "/api/v1/datasets", `{}`)
	doRequest(e, http.MethodDelete, "/api/v1/datasets/current", "")

	runID := seedio.RunID(smallConfig())
	if len(obs.generated) != 1 || obs.generated[0] != runID {
		t.Errorf("expected one notification for run %s, got %v", runID, obs.generated)
	}
	if obs.resets != 1 {
		t.Errorf("expected one reset, got %d", obs.resets)
	}
}

func TestSeedHandler_ViewerCannotSeed(t *testing.T) {
	key := []byte("sandbox-test-key")
	e := echo.New()
	h := NewSeedHandler(smallConfig(), zerolog.Nop())
	h.RegisterRoutes(e.Group("/api/v1", auth.JWTMiddleware(auth.JWTConfig{SigningKey: key})))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{auth.RoleViewer},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+signed)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodPost, "/api/v1/datasets"); code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer POST, got %d", code)
	}
	if code := send(http.MethodGet, "/api/v1/datasets/current"); code != http.StatusNotFound {
		t.Errorf("expected viewer GET to reach the handler (404), got %d", code)
	}
}
