package seedio

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/screenseed/internal/synth"
)

// ManifestFile is the name of the run manifest inside an output directory.
const ManifestFile = "_manifest.json"

// Manifest describes one generation run. It carries no wall-clock fields so
// identical runs produce identical manifests.
type Manifest struct {
	RunID  string          `json:"run_id"`
	Seed   int64           `json:"seed"`
	Mode   string          `json:"outcome_mode"`
	Tables []ManifestTable `json:"tables"`
}

// ManifestTable is one table entry in a Manifest.
type ManifestTable struct {
	Name string `json:"name"`
	File string `json:"file"`
	Rows int    `json:"rows"`
}

// RunID derives a stable run id from the configuration.
func RunID(cfg synth.Config) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(cfg.Fingerprint())).String()
}

// NewManifest builds the manifest for tables generated from cfg.
func NewManifest(cfg synth.Config, tables []Table) Manifest {
	m := Manifest{
		RunID:  RunID(cfg),
		Seed:   cfg.Seed,
		Mode:   string(cfg.Mode),
		Tables: make([]ManifestTable, 0, len(tables)),
	}
	for _, t := range tables {
		m.Tables = append(m.Tables, ManifestTable{Name: t.Name, File: t.FileName(), Rows: len(t.Rows)})
	}
	return m
}

// File renders the manifest as indented JSON.
func (m Manifest) File() (File, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return File{}, fmt.Errorf("encoding manifest: %w", err)
	}
	return File{Name: ManifestFile, Data: append(data, '\n')}, nil
}

// WriteDataset renders ds, writes every table plus the manifest into dir and
// returns the tables written.
func WriteDataset(dir string, cfg synth.Config, ds *synth.Dataset) ([]Table, error) {
	tables := Tables(ds)
	files, err := EncodeTables(tables)
	if err != nil {
		return nil, err
	}
	manifest, err := NewManifest(cfg, tables).File()
	if err != nil {
		return nil, err
	}
	if err := WriteDir(dir, append(files, manifest)); err != nil {
		return nil, err
	}
	return tables, nil
}
