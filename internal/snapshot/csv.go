package snapshot

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/guregu/null"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

var csvHeader = []string{
	"Site_Id", "Date", "Hour", "HourDescription", "Value", "AirQualityCategory",
	"DeterminingPollutant", "ParameterCode", "ParameterDescription", "Units",
	"UnitsDescription", "Category", "SubCategory", "Frequency",
}

// CSVStore keeps the snapshot as a CSV file with one header row. Missing
// values are written as empty cells.
type CSVStore struct {
	path string
}

// Path returns the snapshot file location.
func (s *CSVStore) Path() string { return s.path }

// Write replaces the file with a header and rows.
func (s *CSVStore) Write(rows []models.Observation) error {
	return replaceFile(s.path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(csvHeader); err != nil {
			return err
		}
		for _, o := range rows {
			if err := w.Write(toRecord(o)); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// Read loads every row in file order.
func (s *CSVStore) Read() ([]models.Observation, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read snapshot %s: missing header", s.path)
	}

	out := make([]models.Observation, 0, len(records)-1)
	for i, rec := range records[1:] {
		o, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s line %d: %w", s.path, i+2, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func toRecord(o models.Observation) []string {
	return []string{
		strconv.Itoa(o.SiteID),
		o.Date.String(),
		intCell(o.Hour),
		stringCell(o.HourDescription),
		floatCell(o.Value),
		stringCell(o.AirQualityCategory),
		stringCell(o.DeterminingPollutant),
		o.ParameterCode,
		o.ParameterDescription,
		o.Units,
		o.UnitsDescription,
		o.Category,
		o.SubCategory,
		o.Frequency,
	}
}

func fromRecord(rec []string) (models.Observation, error) {
	var o models.Observation
	var err error

	if o.SiteID, err = strconv.Atoi(rec[0]); err != nil {
		return o, fmt.Errorf("Site_Id: %w", err)
	}
	if rec[1] != "" {
		if o.Date, err = models.ParseDate(rec[1]); err != nil {
			return o, err
		}
	}
	if rec[2] != "" {
		h, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return o, fmt.Errorf("Hour: %w", err)
		}
		o.Hour = null.IntFrom(h)
	}
	o.HourDescription = nullString(rec[3])
	if rec[4] != "" {
		v, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return o, fmt.Errorf("Value: %w", err)
		}
		o.Value = null.FloatFrom(v)
	}
	o.AirQualityCategory = nullString(rec[5])
	o.DeterminingPollutant = nullString(rec[6])
	o.ParameterCode = rec[7]
	o.ParameterDescription = rec[8]
	o.Units = rec[9]
	o.UnitsDescription = rec[10]
	o.Category = rec[11]
	o.SubCategory = rec[12]
	o.Frequency = rec[13]
	return o, nil
}

func intCell(v null.Int) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}

func floatCell(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

func stringCell(v null.String) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func nullString(cell string) null.String {
	return null.NewString(cell, cell != "")
}
