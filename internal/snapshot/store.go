// Package snapshot persists the latest unfiltered observations to a flat file
// that the event publisher replays.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// Store is a flat file holding one snapshot. Write fully overwrites it.
type Store interface {
	Path() string
	Write(rows []models.Observation) error
	Read() ([]models.Observation, error)
}

// Open picks the file format from the extension: .parquet or CSV otherwise.
func Open(path string) Store {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return &ParquetStore{path: path}
	}
	return &CSVStore{path: path}
}

// replaceFile writes through a temp file in the same directory so readers
// never observe a partial snapshot.
func replaceFile(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
