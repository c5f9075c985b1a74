package seedio

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/screenseed/internal/synth"
)

func smallConfig() synth.Config {
	cfg := synth.DefaultConfig()
	cfg.Members = 200
	cfg.Providers = 10
	cfg.Employers = 5
	return cfg
}

func generate(t *testing.T, cfg synth.Config) *synth.Dataset {
	t.Helper()
	ds, err := synth.NewSeeder(cfg, zerolog.Nop()).Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return ds
}

// ---------------------------------------------------------------------------
// Table encoding
// ---------------------------------------------------------------------------

func TestTable_EncodeDecode(t *testing.T) {
	tbl := Table{
		Name:   "raw_things",
		Header: []string{"id", "note", "flag"},
		Rows: [][]string{
			{"1", "plain", "True"},
			{"2", "with, comma", ""},
			{"3", `with "quotes"`, "False"},
		},
	}
	data, err := tbl.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(data), "id,note,flag\n1,plain,True\n") {
		t.Fatalf("unexpected encoding:\n%s", data)
	}

	got, err := Decode("raw_things", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Rows) != 3 || got.Rows[1][1] != "with, comma" || got.Rows[2][1] != `with "quotes"` {
		t.Fatalf("decoded rows differ: %v", got.Rows)
	}
}

func TestDecode_PadsShortRowsAndStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a, b ,c\n1,2\n")...)
	got, err := Decode("t", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Header[0] != "a" || got.Header[1] != "b" {
		t.Errorf("header not cleaned: %q", got.Header)
	}
	if len(got.Rows[0]) != 3 || got.Rows[0][2] != "" {
		t.Errorf("short row not padded: %q", got.Rows[0])
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode("t", nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestTable_Column(t *testing.T) {
	tbl := Table{Name: "t", Header: []string{"a", "b"}}
	if i, err := tbl.Column("b"); err != nil || i != 1 {
		t.Errorf("expected 1, got %d (%v)", i, err)
	}
	if _, err := tbl.Column("z"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Dataset rendering
// ---------------------------------------------------------------------------

func TestTables_ShapeAndFormatting(t *testing.T) {
	ds := generate(t, smallConfig())
	tables := Tables(ds)

	wantNames := []string{
		EmployersTable, MembersTable, EnrollmentsTable, ProvidersTable,
		ScreeningsTable, ClaimsTable, AppEventsTable,
	}
	if len(tables) != len(wantNames) {
		t.Fatalf("expected %d tables, got %d", len(wantNames), len(tables))
	}
	for i, tbl := range tables {
		if tbl.Name != wantNames[i] {
			t.Errorf("table %d: expected %s, got %s", i, wantNames[i], tbl.Name)
		}
		for _, row := range tbl.Rows {
			if len(row) != len(tbl.Header) {
				t.Fatalf("%s: row width %d, header width %d", tbl.Name, len(row), len(tbl.Header))
			}
		}
	}

	members := tables[1]
	emailCol, _ := members.Column("email")
	createdCol, _ := members.Column("created_at")
	riskCol, _ := members.Column("high_risk_flag")
	nullEmails := 0
	for _, row := range members.Rows {
		if row[emailCol] == "" {
			nullEmails++
		}
		if _, err := time.Parse("2006-01-02 15:04:05", row[createdCol]); err != nil {
			t.Fatalf("created_at %q is not a timestamp: %v", row[createdCol], err)
		}
		if row[riskCol] != "True" && row[riskCol] != "False" {
			t.Fatalf("high_risk_flag %q is not True/False", row[riskCol])
		}
	}
	if nullEmails != 4 {
		t.Errorf("expected 4 empty emails, got %d", nullEmails)
	}

	screenings := tables[4]
	neededCol, _ := screenings.Column("follow_up_needed")
	completedCol, _ := screenings.Column("follow_up_completed")
	for _, row := range screenings.Rows {
		if (row[neededCol] == "False") != (row[completedCol] == "") {
			t.Fatalf("follow_up_completed %q inconsistent with needed %q", row[completedCol], row[neededCol])
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in     string
		want   bool
		wantOK bool
	}{
		{"True", true, true},
		{"false", false, true},
		{"1", true, true},
		{"", false, false},
		{"yes", false, false},
	}
	for _, tt := range tests {
		got, ok := ParseBool(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseBool(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseDate_TruncatesTimestamp(t *testing.T) {
	got, err := ParseDate("2024-03-05 13:14:15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(synth.Date(2024, time.March, 5)) {
		t.Errorf("expected 2024-03-05, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

func TestWriteDataset_ByteIdenticalForSameSeed(t *testing.T) {
	cfg := smallConfig()
	dirA := filepath.Join(t.TempDir(), "a")
	dirB := filepath.Join(t.TempDir(), "b")

	if _, err := WriteDataset(dirA, cfg, generate(t, cfg)); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if _, err := WriteDataset(dirB, cfg, generate(t, cfg)); err != nil {
		t.Fatalf("write b: %v", err)
	}

	entries, err := os.ReadDir(dirA)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 8 {
		t.Fatalf("expected 7 tables plus manifest, got %d files", len(entries))
	}
	for _, e := range entries {
		a, _ := os.ReadFile(filepath.Join(dirA, e.Name()))
		b, err := os.ReadFile(filepath.Join(dirB, e.Name()))
		if err != nil {
			t.Fatalf("missing %s in second run: %v", e.Name(), err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s differs between identical runs", e.Name())
		}
	}
}

func TestWriteDataset_Manifest(t *testing.T) {
	cfg := smallConfig()
	dir := t.TempDir()
	tables, err := WriteDataset(dir, cfg, generate(t, cfg))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.RunID != RunID(cfg) || m.Seed != cfg.Seed || m.Mode != "flat" {
		t.Errorf("unexpected manifest header: %+v", m)
	}
	if len(m.Tables) != len(tables) || m.Tables[1].Rows != 200 || m.Tables[1].File != "raw_members.csv" {
		t.Errorf("unexpected manifest tables: %+v", m.Tables)
	}

	other := cfg
	other.Seed = 7
	if RunID(other) == RunID(cfg) {
		t.Error("expected run id to change with the seed")
	}
}

func TestWriteDir_LeavesNoStagingBehind(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "seeds")
	if err := WriteDir(dir, []File{{Name: "a.csv", Data: []byte("x\n")}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 || entries[0].Name() != "seeds" {
		t.Errorf("expected only the output dir under root, got %v", entries)
	}
}

func TestListTables_SkipsBackupsAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"raw_b.csv", "raw_a.csv", "raw_a_backup.csv", ManifestFile, "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("h\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	paths, err := ListTables(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "raw_a.csv" || filepath.Base(paths[1]) != "raw_b.csv" {
		t.Errorf("unexpected listing: %v", paths)
	}
}

func TestReadTable_Missing(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
}

func TestBackupPath(t *testing.T) {
	got := BackupPath(filepath.Join("seeds", "raw_screenings.csv"))
	if got != filepath.Join("seeds", "raw_screenings_backup.csv") {
		t.Errorf("unexpected backup path %s", got)
	}
}

// ---------------------------------------------------------------------------
// Expansion
// ---------------------------------------------------------------------------

// writeScreenings writes the first n screenings of a generated dataset.
func writeScreenings(t *testing.T, dir string, n int) (string, []byte) {
	t.Helper()
	ds := generate(t, smallConfig())
	if len(ds.Screenings) < n {
		t.Fatalf("need %d screenings, generated %d", n, len(ds.Screenings))
	}
	data, err := ScreeningsToTable(ds.Screenings[:n]).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(dir, "raw_screenings.csv")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func intPtr(n int) *int { return &n }

func expandRequest(path string) ExpandRequest {
	return ExpandRequest{
		Path:         path,
		Seed:         42,
		StartDate:    synth.Date(2023, time.January, 1),
		EndDate:      synth.Date(2025, time.March, 31),
		AsOf:         synth.Date(2025, time.November, 13),
		Mode:         synth.ModeConditioned,
		FollowUpRate: 0.75,
	}
}

func TestExpand_SixtyPlusFiveHundred(t *testing.T) {
	dir := t.TempDir()
	path, original := writeScreenings(t, dir, 60)

	req := expandRequest(path)
	req.Add = intPtr(500)
	res, err := Expand(req, zerolog.Nop())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if res.Existing != 60 || res.Added != 500 || res.Total() != 560 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.FirstID != "SCR000061" || res.LastID != "SCR000560" {
		t.Errorf("unexpected id range %s..%s", res.FirstID, res.LastID)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read expanded: %v", err)
	}
	if !bytes.HasPrefix(written, original) {
		t.Fatal("existing rows were not preserved byte for byte")
	}
	backup, err := os.ReadFile(BackupPath(path))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.Equal(backup, original) {
		t.Error("backup differs from the original file")
	}

	tbl, err := ReadTable(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(tbl.Rows) != 560 {
		t.Fatalf("expected 560 rows, got %d", len(tbl.Rows))
	}
	idCol, _ := tbl.Column("screening_id")
	if tbl.Rows[60][idCol] != "SCR000061" || tbl.Rows[559][idCol] != "SCR000560" {
		t.Errorf("unexpected appended ids %s..%s", tbl.Rows[60][idCol], tbl.Rows[559][idCol])
	}
}

func TestExpand_KeepsHeaderOrderAndUniverses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw_screenings.csv")
	content := "cost,screening_id,member_id,employer_id,provider_id,screening_type,screening_date,result,result_date,follow_up_needed,follow_up_completed\n" +
		"300,SCR000007,MEM00002,EMP001,PROV0003,Mammogram,2024-01-02,Normal,2024-01-10,False,\n" +
		"450,SCR000003,MEM00009,EMP002,PROV0001,Colonoscopy,2024-02-02,Normal,2024-02-12,False,"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	req := expandRequest(path)
	req.Total = intPtr(12)
	res, err := Expand(req, zerolog.Nop())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if res.Added != 10 || res.FirstID != "SCR000008" {
		t.Fatalf("unexpected result: added=%d first=%s", res.Added, res.FirstID)
	}

	written, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(written), content+"\n") {
		t.Fatal("expected original content followed by a line break")
	}
	tbl, err := ReadTable(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if tbl.Header[0] != "cost" {
		t.Errorf("header order changed: %v", tbl.Header)
	}
	members := map[string]bool{"MEM00002": true, "MEM00009": true}
	for _, row := range tbl.Rows[2:] {
		if !members[row[2]] {
			t.Fatalf("appended row uses unknown member %s", row[2])
		}
		if row[3] != "EMP001" && row[3] != "EMP002" {
			t.Fatalf("appended row uses unknown employer %s", row[3])
		}
	}
}

func TestExpand_UsesMembersFile(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeScreenings(t, dir, 30)

	ds := generate(t, smallConfig())
	membersData, err := Tables(ds)[1].Encode()
	if err != nil {
		t.Fatal(err)
	}
	membersPath := filepath.Join(dir, "raw_members.csv")
	if err := os.WriteFile(membersPath, membersData, 0o644); err != nil {
		t.Fatal(err)
	}

	req := expandRequest(path)
	req.Add = intPtr(50)
	req.MembersPath = membersPath
	res, err := Expand(req, zerolog.Nop())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if res.Added != 50 {
		t.Fatalf("expected 50 rows, got %d", res.Added)
	}
}

func TestExpand_MissingInputHasNoSideEffects(t *testing.T) {
	dir := t.TempDir()
	req := expandRequest(filepath.Join(dir, "raw_screenings.csv"))
	_, err := Expand(req, zerolog.Nop())
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files to be created, got %v", entries)
	}
}

func TestExpand_TotalBelowExisting(t *testing.T) {
	dir := t.TempDir()
	path, original := writeScreenings(t, dir, 20)

	req := expandRequest(path)
	req.Total = intPtr(10)
	if _, err := Expand(req, zerolog.Nop()); err == nil {
		t.Fatal("expected an error")
	}
	written, _ := os.ReadFile(path)
	if !bytes.Equal(written, original) {
		t.Error("file changed after a rejected expansion")
	}
	if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
		t.Error("backup written for a rejected expansion")
	}
}

func TestExpand_DefaultCount(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeScreenings(t, dir, 5)
	res, err := Expand(expandRequest(path), zerolog.Nop())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if res.Added != DefaultExpandCount {
		t.Errorf("expected %d rows, got %d", DefaultExpandCount, res.Added)
	}
}

func TestExpand_NothingToAppend(t *testing.T) {
	for name, set := range map[string]func(*ExpandRequest){
		"add":   func(r *ExpandRequest) { r.Add = intPtr(0) },
		"total": func(r *ExpandRequest) { r.Total = intPtr(5) },
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path, original := writeScreenings(t, dir, 5)
			req := expandRequest(path)
			set(&req)

			res, err := Expand(req, zerolog.Nop())
			if err != nil {
				t.Fatalf("expand: %v", err)
			}
			if res.Added != 0 || res.Total() != 5 {
				t.Fatalf("expected nothing appended, got %+v", res)
			}
			written, _ := os.ReadFile(path)
			if !bytes.Equal(written, original) {
				t.Error("file changed when nothing was appended")
			}
			if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
				t.Error("backup written when nothing was appended")
			}
		})
	}
}

func TestExpand_NegativeAdd(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeScreenings(t, dir, 5)
	req := expandRequest(path)
	req.Add = intPtr(-1)
	if _, err := Expand(req, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a negative add")
	}
}
