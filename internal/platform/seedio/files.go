package seedio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const backupSuffix = "_backup"

// File is one named output file.
type File struct {
	Name string
	Data []byte
}

// EncodeTables renders every table into a File.
func EncodeTables(tables []Table) ([]File, error) {
	files := make([]File, 0, len(tables))
	for _, t := range tables {
		data, err := t.Encode()
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: t.FileName(), Data: data})
	}
	return files, nil
}

// WriteDir writes files into dir. Everything is first staged in a temporary
// directory beside dir and renamed into place only once every file has been
// written, so a failed run leaves no half-written table behind.
func WriteDir(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(filepath.Clean(dir)), ".screenseed-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, f := range files {
		if err := os.WriteFile(filepath.Join(staging, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("stage %s: %w", f.Name, err)
		}
	}
	for _, f := range files {
		if err := os.Rename(filepath.Join(staging, f.Name), filepath.Join(dir, f.Name)); err != nil {
			return fmt.Errorf("move %s into %s: %w", f.Name, dir, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// Snapshot is a table read from disk together with its exact bytes.
type Snapshot struct {
	Path  string
	Raw   []byte
	Table *Table
}

// ReadSnapshot reads and parses the CSV at path. A missing file yields an
// error wrapping ErrInputNotFound.
func ReadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrInputNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	t, err := Decode(TableName(path), raw)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Path: path, Raw: raw, Table: t}, nil
}

// ReadTable reads and parses the CSV at path.
func ReadTable(path string) (*Table, error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return snap.Table, nil
}

// TableName derives the table name from a file path.
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ListTables returns the CSV seed files in dir in name order. Backups are
// skipped.
func ListTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrInputNotFound)
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".csv" || strings.HasSuffix(TableName(name), backupSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// ---------------------------------------------------------------------------
// Appending
// ---------------------------------------------------------------------------

// BackupPath returns the sibling backup of path, e.g. raw_screenings.csv →
// raw_screenings_backup.csv.
func BackupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + backupSuffix + ext
}

// AppendRows backs up the snapshot's file and then replaces it with the
// original bytes followed by rows. Existing content is kept byte for byte.
func AppendRows(snap *Snapshot, rows [][]string) error {
	if err := os.WriteFile(BackupPath(snap.Path), snap.Raw, 0o644); err != nil {
		return fmt.Errorf("backup %s: %w", snap.Path, err)
	}

	encoded, err := EncodeRows(rows)
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(snap.Raw)+len(encoded)+1)
	data = append(data, snap.Raw...)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	data = append(data, encoded...)

	return writeFileAtomic(snap.Path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
