package seedio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/screenseed/internal/synth"
)

// DefaultExpandCount is the number of rows appended when neither Add nor
// Total is set.
const DefaultExpandCount = 500

// ExpandRequest describes one append run against an existing screenings
// file.
type ExpandRequest struct {
	Path string
	// MembersPath optionally points at a members table whose date_of_birth
	// and gender replace simulated demographics.
	MembersPath string

	// Add appends exactly *Add rows. Total appends enough rows to reach
	// *Total. At most one may be set; an explicit zero appends nothing.
	Add   *int
	Total *int

	Seed         int64
	StartDate    time.Time
	EndDate      time.Time
	AsOf         time.Time
	Mode         synth.OutcomeMode
	FollowUpRate float64
}

// ExpandResult reports what an expansion did.
type ExpandResult struct {
	Existing   int
	Added      int
	FirstID    string
	LastID     string
	BackupPath string
	// Screenings is the combined table as written.
	Screenings *Table
}

// Total is the row count after the expansion.
func (r *ExpandResult) Total() int {
	return r.Existing + r.Added
}

func (req ExpandRequest) count(existing int) (int, error) {
	switch {
	case req.Add != nil && req.Total != nil:
		return 0, errors.New("add and total are mutually exclusive")
	case req.Add != nil:
		if *req.Add < 0 {
			return 0, errors.New("add must not be negative")
		}
		return *req.Add, nil
	case req.Total != nil:
		if *req.Total < existing {
			return 0, fmt.Errorf("total %d is below the %d existing rows", *req.Total, existing)
		}
		return *req.Total - existing, nil
	}
	return DefaultExpandCount, nil
}

// Expand appends synthetic screenings to the file at req.Path. The file is
// only touched after every new row has been generated.
func Expand(req ExpandRequest, logger zerolog.Logger) (*ExpandResult, error) {
	snap, err := ReadSnapshot(req.Path)
	if err != nil {
		return nil, err
	}
	existing := snap.Table
	logger.Info().Str("file", req.Path).Int("rows", len(existing.Rows)).Msg("loaded existing screenings")

	count, err := req.count(len(existing.Rows))
	if err != nil {
		return nil, err
	}

	plan, err := planFromTable(existing)
	if err != nil {
		return nil, err
	}
	plan.Count = count
	plan.StartDate = req.StartDate
	plan.EndDate = req.EndDate
	plan.Mode = req.Mode
	plan.FollowUpRate = req.FollowUpRate

	if req.MembersPath != "" {
		known, err := knownDemographics(req.MembersPath, req.AsOf)
		if err != nil {
			return nil, err
		}
		plan.Known = known
		logger.Debug().Int("members", len(known)).Msg("loaded member demographics")
	}

	result := &ExpandResult{Existing: len(existing.Rows), Screenings: existing}
	if count == 0 {
		logger.Info().Msg("nothing to append")
		return result, nil
	}

	screenings, err := synth.NewGenerator(req.Seed).ExpandScreenings(plan)
	if err != nil {
		return nil, err
	}
	rows := ScreeningRows(existing.Header, screenings)
	if err := AppendRows(snap, rows); err != nil {
		return nil, err
	}

	combined := &Table{Name: existing.Name, Header: existing.Header}
	combined.Rows = append(append(combined.Rows, existing.Rows...), rows...)

	result.Added = len(screenings)
	result.FirstID = screenings[0].ID
	result.LastID = screenings[len(screenings)-1].ID
	result.BackupPath = BackupPath(req.Path)
	result.Screenings = combined

	logger.Info().
		Int("existing", result.Existing).
		Int("added", result.Added).
		Int("total", result.Total()).
		Str("first_id", result.FirstID).
		Str("last_id", result.LastID).
		Str("backup", result.BackupPath).
		Msg("expanded screenings")
	return result, nil
}

// planFromTable collects the id universes and the highest screening
// sequence of an existing table.
func planFromTable(t *Table) (synth.ExpansionPlan, error) {
	var plan synth.ExpansionPlan

	idCol, err := t.Column("screening_id")
	if err != nil {
		return plan, err
	}
	for _, row := range t.Rows {
		if n, ok := synth.ParseSequence(row[idCol], synth.ScreeningPrefix); ok && n > plan.LastSequence {
			plan.LastSequence = n
		}
	}

	for _, u := range []struct {
		column string
		ids    *[]string
	}{
		{"member_id", &plan.MemberIDs},
		{"employer_id", &plan.EmployerIDs},
		{"provider_id", &plan.ProviderIDs},
	} {
		ids, err := distinct(t, u.column)
		if err != nil {
			return plan, err
		}
		*u.ids = ids
	}
	return plan, nil
}

// distinct returns the sorted non-empty values of column.
func distinct(t *Table, column string) ([]string, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, row := range t.Rows {
		v := row[col]
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func knownDemographics(path string, asOf time.Time) (map[string]synth.Demographics, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	idCol, err := t.Column("member_id")
	if err != nil {
		return nil, err
	}
	dobCol, err := t.Column("date_of_birth")
	if err != nil {
		return nil, err
	}
	genderCol, err := t.Column("gender")
	if err != nil {
		return nil, err
	}

	known := make(map[string]synth.Demographics, len(t.Rows))
	for _, row := range t.Rows {
		dob, err := ParseDate(row[dobCol])
		if err != nil {
			return nil, fmt.Errorf("member %s: date_of_birth %q: %w", row[idCol], row[dobCol], err)
		}
		known[row[idCol]] = synth.Demographics{
			Age:    synth.AgeOn(dob, asOf),
			Gender: row[genderCol],
		}
	}
	return known, nil
}
