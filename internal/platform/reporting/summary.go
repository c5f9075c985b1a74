// Package reporting renders human-facing summaries of generated seed data
// and evaluates predefined measures against the loaded warehouse tables.
package reporting

import (
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ehr/screenseed/internal/platform/seedio"
)

const rule = "============================================================"

// NewPrinter returns the printer used for every report: English digit
// grouping, so 12345 renders as 12,345.
func NewPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

// TableCount is the number of rows written to one table.
type TableCount struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// RunSummary describes one generation run.
type RunSummary struct {
	Tables    []TableCount `json:"tables"`
	StartDate time.Time    `json:"startDate"`
	EndDate   time.Time    `json:"endDate"`
	OutputDir string       `json:"outputDir,omitempty"`
}

// NewRunSummary counts the rows of tables.
func NewRunSummary(tables []seedio.Table, start, end time.Time, outputDir string) RunSummary {
	s := RunSummary{StartDate: start, EndDate: end, OutputDir: outputDir}
	for _, t := range tables {
		s.Tables = append(s.Tables, TableCount{Table: t.Name, Rows: len(t.Rows)})
	}
	return s
}

// Render writes the summary block.
func (s RunSummary) Render(w io.Writer, p *message.Printer) {
	p.Fprintln(w, rule)
	p.Fprintln(w, "SYNTHETIC DATA GENERATION COMPLETE")
	p.Fprintln(w, rule)
	p.Fprintln(w, "\nData Summary:")
	for _, t := range s.Tables {
		p.Fprintf(w, "  %-16s %d\n", displayName(t.Table)+":", t.Rows)
	}
	p.Fprintf(w, "\nDate Range:  %s to %s\n", seedio.FormatDate(s.StartDate), seedio.FormatDate(s.EndDate))
	if s.OutputDir != "" {
		p.Fprintf(w, "Files saved to %s\n", s.OutputDir)
	}
	p.Fprintln(w, rule)
}

// displayName turns raw_app_events into "App Events".
func displayName(table string) string {
	words := strings.Split(strings.TrimPrefix(table, "raw_"), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ---------------------------------------------------------------------------
// Screening statistics
// ---------------------------------------------------------------------------

// Share is a labelled count with its share of the total, in percent.
type Share struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// ScreeningStats aggregates a screenings table.
type ScreeningStats struct {
	Total             int     `json:"total"`
	Results           []Share `json:"results"`
	Types             []Share `json:"types"`
	FollowUpNeeded    int     `json:"followUpNeeded"`
	FollowUpCompleted int     `json:"followUpCompleted"`
}

// NeededRate is the share of screenings that needed follow-up, in percent.
func (s ScreeningStats) NeededRate() float64 {
	return percent(s.FollowUpNeeded, s.Total)
}

// CompletionRate is the share of needed follow-ups that were completed, in
// percent.
func (s ScreeningStats) CompletionRate() float64 {
	return percent(s.FollowUpCompleted, s.FollowUpNeeded)
}

// ComputeScreeningStats aggregates t, which must carry the result,
// screening_type, follow_up_needed and follow_up_completed columns.
func ComputeScreeningStats(t *seedio.Table) (ScreeningStats, error) {
	var stats ScreeningStats
	cols := map[string]int{}
	for _, name := range []string{"result", "screening_type", "follow_up_needed", "follow_up_completed"} {
		i, err := t.Column(name)
		if err != nil {
			return stats, err
		}
		cols[name] = i
	}

	results := map[string]int{}
	types := map[string]int{}
	for _, row := range t.Rows {
		results[row[cols["result"]]]++
		types[row[cols["screening_type"]]]++
		if needed, _ := seedio.ParseBool(row[cols["follow_up_needed"]]); needed {
			stats.FollowUpNeeded++
			if done, _ := seedio.ParseBool(row[cols["follow_up_completed"]]); done {
				stats.FollowUpCompleted++
			}
		}
	}
	stats.Total = len(t.Rows)
	stats.Results = shares(results, stats.Total)
	stats.Types = shares(types, stats.Total)
	return stats, nil
}

// shares orders counts by count descending, then label.
func shares(counts map[string]int, total int) []Share {
	out := make([]Share, 0, len(counts))
	for label, n := range counts {
		out = append(out, Share{Label: label, Count: n, Percent: percent(n, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Render writes the result distribution, the follow-up analysis and the type
// distribution.
func (s ScreeningStats) Render(w io.Writer, p *message.Printer, title string) {
	p.Fprintf(w, "\nResult Distribution (%s, %d screenings):\n", title, s.Total)
	for _, r := range s.Results {
		p.Fprintf(w, "  %s: %d (%.1f%%)\n", r.Label, r.Count, r.Percent)
	}

	p.Fprintf(w, "\nFollow-Up Analysis (%s):\n", title)
	p.Fprintf(w, "  Screenings needing follow-up:  %d (%.1f%%)\n", s.FollowUpNeeded, s.NeededRate())
	p.Fprintf(w, "  Follow-ups completed:          %d\n", s.FollowUpCompleted)
	p.Fprintf(w, "  Follow-up completion rate:     %.1f%%\n", s.CompletionRate())

	p.Fprintln(w, "\nScreening Type Distribution:")
	for _, t := range s.Types {
		p.Fprintf(w, "  %-26s %d\n", t.Label, t.Count)
	}
}

// RenderExpansion writes the report printed after an expansion: statistics
// over the whole table and over the appended rows alone.
func RenderExpansion(w io.Writer, p *message.Printer, res *seedio.ExpandResult) error {
	all, err := ComputeScreeningStats(res.Screenings)
	if err != nil {
		return err
	}
	added := &seedio.Table{
		Name:   res.Screenings.Name,
		Header: res.Screenings.Header,
		Rows:   res.Screenings.Rows[res.Existing:],
	}
	fresh, err := ComputeScreeningStats(added)
	if err != nil {
		return err
	}

	p.Fprintln(w, rule)
	p.Fprintln(w, "SCREENING DATA EXPANSION COMPLETE")
	p.Fprintln(w, rule)
	p.Fprintf(w, "  Existing screenings: %d\n", res.Existing)
	p.Fprintf(w, "  New screenings:      %d\n", res.Added)
	p.Fprintf(w, "  Total screenings:    %d\n", res.Total())
	if res.BackupPath != "" {
		p.Fprintf(w, "  Backup:              %s\n", res.BackupPath)
	}
	all.Render(w, p, "all")
	if res.Added > 0 {
		p.Fprintf(w, "\nFollow-Up Analysis (new %d screenings only):\n", fresh.Total)
		p.Fprintf(w, "  Screenings needing follow-up:  %d (%.1f%%)\n", fresh.FollowUpNeeded, fresh.NeededRate())
		p.Fprintf(w, "  Follow-ups completed:          %d (%.1f%%)\n", fresh.FollowUpCompleted, fresh.CompletionRate())
	}
	p.Fprintln(w, rule)
	return nil
}
