package seedio

import (
	"strconv"
	"time"

	"github.com/ehr/screenseed/internal/synth"
)

// Table names in write order.
const (
	EmployersTable   = "raw_employers"
	MembersTable     = "raw_members"
	EnrollmentsTable = "raw_enrollments"
	ProvidersTable   = "raw_providers"
	ScreeningsTable  = "raw_screenings"
	ClaimsTable      = "raw_claims"
	AppEventsTable   = "raw_app_events"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// Column orders of every table.
var (
	EmployerColumns = []string{
		"employer_id", "employer_name", "industry", "employee_count", "state", "contract_start_date",
	}
	MemberColumns = []string{
		"member_id", "employer_id", "first_name", "last_name", "date_of_birth", "gender",
		"state", "zip_code", "email", "phone", "high_risk_flag", "created_at",
	}
	EnrollmentColumns = []string{
		"enrollment_id", "member_id", "employer_id", "enrollment_date", "enrollment_channel",
		"status", "consent_given",
	}
	ProviderColumns = []string{
		"provider_id", "provider_name", "specialty", "state", "npi_number",
	}
	ScreeningColumns = []string{
		"screening_id", "member_id", "employer_id", "provider_id", "screening_type",
		"screening_date", "result", "result_date", "follow_up_needed", "follow_up_completed", "cost",
	}
	ClaimColumns = []string{
		"claim_id", "member_id", "provider_id", "claim_date", "service_date", "procedure_code",
		"procedure_description", "diagnosis_code", "claim_amount", "paid_amount", "claim_status",
	}
	AppEventColumns = []string{
		"event_id", "member_id", "event_type", "event_timestamp", "session_id", "device_type",
	}
)

// ---------------------------------------------------------------------------
// Value formatting
// ---------------------------------------------------------------------------

// FormatDate renders a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a calendar date; a timestamp with a time part is accepted
// and truncated.
func ParseDate(s string) (time.Time, error) {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}

func formatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// FormatBool renders a boolean the way the warehouse seeds expect.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts True/False in any case plus 1/0.
func ParseBool(s string) (bool, bool) {
	switch s {
	case "True", "true", "TRUE", "1":
		return true, true
	case "False", "false", "FALSE", "0":
		return false, true
	}
	return false, false
}

func formatOptionalBool(b *bool) string {
	if b == nil {
		return ""
	}
	return FormatBool(*b)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// ---------------------------------------------------------------------------
// Dataset → tables
// ---------------------------------------------------------------------------

// Tables renders every table of ds in write order.
func Tables(ds *synth.Dataset) []Table {
	return []Table{
		employersTable(ds.Employers),
		membersTable(ds.Members),
		enrollmentsTable(ds.Enrollments),
		providersTable(ds.Providers),
		ScreeningsToTable(ds.Screenings),
		claimsTable(ds.Claims),
		appEventsTable(ds.AppEvents),
	}
}

func employersTable(rows []synth.Employer) Table {
	t := Table{Name: EmployersTable, Header: EmployerColumns}
	for _, e := range rows {
		t.Rows = append(t.Rows, []string{
			e.ID, e.Name, e.Industry, itoa(e.EmployeeCount), e.State, FormatDate(e.ContractStart),
		})
	}
	return t
}

func membersTable(rows []synth.Member) Table {
	t := Table{Name: MembersTable, Header: MemberColumns}
	for _, m := range rows {
		t.Rows = append(t.Rows, []string{
			m.ID, m.EmployerID, m.FirstName, m.LastName, FormatDate(m.DateOfBirth), m.Gender,
			m.State, m.ZipCode, m.Email, m.Phone, FormatBool(m.HighRisk), formatTimestamp(m.CreatedAt),
		})
	}
	return t
}

func enrollmentsTable(rows []synth.Enrollment) Table {
	t := Table{Name: EnrollmentsTable, Header: EnrollmentColumns}
	for _, e := range rows {
		t.Rows = append(t.Rows, []string{
			e.ID, e.MemberID, e.EmployerID, FormatDate(e.EnrollmentDate), e.Channel,
			e.Status, FormatBool(e.ConsentGiven),
		})
	}
	return t
}

func providersTable(rows []synth.Provider) Table {
	t := Table{Name: ProvidersTable, Header: ProviderColumns}
	for _, p := range rows {
		t.Rows = append(t.Rows, []string{p.ID, p.Name, p.Specialty, p.State, p.NPI})
	}
	return t
}

// ScreeningFields maps every screening column to its rendered value.
func ScreeningFields(s synth.Screening) map[string]string {
	return map[string]string{
		"screening_id":        s.ID,
		"member_id":           s.MemberID,
		"employer_id":         s.EmployerID,
		"provider_id":         s.ProviderID,
		"screening_type":      s.Type,
		"screening_date":      FormatDate(s.ScreeningDate),
		"result":              s.Result,
		"result_date":         FormatDate(s.ResultDate),
		"follow_up_needed":    FormatBool(s.FollowUpNeeded),
		"follow_up_completed": formatOptionalBool(s.FollowUpCompleted),
		"cost":                itoa(s.Cost),
	}
}

// ScreeningRows renders screenings in the given column order. Columns the
// generator does not produce are left empty.
func ScreeningRows(header []string, screenings []synth.Screening) [][]string {
	rows := make([][]string, 0, len(screenings))
	for _, s := range screenings {
		fields := ScreeningFields(s)
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = fields[col]
		}
		rows = append(rows, row)
	}
	return rows
}

// ScreeningsToTable renders screenings with the canonical column order.
func ScreeningsToTable(screenings []synth.Screening) Table {
	return Table{
		Name:   ScreeningsTable,
		Header: ScreeningColumns,
		Rows:   ScreeningRows(ScreeningColumns, screenings),
	}
}

func claimsTable(rows []synth.Claim) Table {
	t := Table{Name: ClaimsTable, Header: ClaimColumns}
	for _, c := range rows {
		t.Rows = append(t.Rows, []string{
			c.ID, c.MemberID, c.ProviderID, FormatDate(c.ClaimDate), FormatDate(c.ServiceDate),
			c.ProcedureCode, c.ProcedureDescription, c.DiagnosisCode,
			itoa(c.ClaimAmount), itoa(c.PaidAmount), c.Status,
		})
	}
	return t
}

func appEventsTable(rows []synth.AppEvent) Table {
	t := Table{Name: AppEventsTable, Header: AppEventColumns}
	for _, e := range rows {
		t.Rows = append(t.Rows, []string{
			e.ID, e.MemberID, e.EventType, formatTimestamp(e.Timestamp), e.SessionID, e.DeviceType,
		})
	}
	return t
}
