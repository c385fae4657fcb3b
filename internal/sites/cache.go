package sites

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

var cacheHeader = []string{"Site_Id", "SiteName", "Longitude", "Latitude", "Region"}

// ReadCache parses a site cache file. A missing file yields an error
// matching fs.ErrNotExist.
func ReadCache(path string) ([]models.Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(cacheHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read site cache %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read site cache %s: missing header", path)
	}

	out := make([]models.Site, 0, len(records)-1)
	for i, rec := range records[1:] {
		s, err := parseSite(rec)
		if err != nil {
			return nil, fmt.Errorf("site cache %s line %d: %w", path, i+2, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// WriteCache replaces the cache file atomically.
func WriteCache(path string, list []models.Site) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sites-*.csv")
	if err != nil {
		return fmt.Errorf("create site cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(cacheHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write site cache: %w", err)
	}
	for _, s := range list {
		err := w.Write([]string{
			strconv.Itoa(s.ID),
			s.Name,
			strconv.FormatFloat(s.Longitude, 'f', -1, 64),
			strconv.FormatFloat(s.Latitude, 'f', -1, 64),
			s.Region,
		})
		if err != nil {
			tmp.Close()
			return fmt.Errorf("write site cache: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write site cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close site cache: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func parseSite(rec []string) (models.Site, error) {
	id, err := strconv.Atoi(rec[0])
	if err != nil {
		return models.Site{}, fmt.Errorf("site id: %w", err)
	}
	lon, err := parseCoord(rec[2])
	if err != nil {
		return models.Site{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := parseCoord(rec[3])
	if err != nil {
		return models.Site{}, fmt.Errorf("latitude: %w", err)
	}
	return models.Site{ID: id, Name: rec[1], Longitude: lon, Latitude: lat, Region: rec[4]}, nil
}

// parseCoord treats an empty cell as an unknown location.
func parseCoord(v string) (float64, error) {
	if v == "" {
		return models.SentinelCoordinate, nil
	}
	return strconv.ParseFloat(v, 64)
}
