package snapshot

import (
	"fmt"
	"os"

	"github.com/guregu/null"
	"github.com/parquet-go/parquet-go"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// parquetRow is the on-disk layout; pointer fields are optional columns.
type parquetRow struct {
	SiteID               int64    `parquet:"site_id"`
	Date                 string   `parquet:"date"`
	Hour                 *int64   `parquet:"hour"`
	HourDescription      *string  `parquet:"hour_description"`
	Value                *float64 `parquet:"value"`
	AirQualityCategory   *string  `parquet:"air_quality_category"`
	DeterminingPollutant *string  `parquet:"determining_pollutant"`
	ParameterCode        string   `parquet:"parameter_code"`
	ParameterDescription string   `parquet:"parameter_description"`
	Units                string   `parquet:"unit"`
	UnitsDescription     string   `parquet:"unit_description"`
	Category             string   `parquet:"category"`
	SubCategory          string   `parquet:"subcategory"`
	Frequency            string   `parquet:"frequency"`
}

// ParquetStore keeps the snapshot as a single Parquet file.
type ParquetStore struct {
	path string
}

// Path returns the snapshot file location.
func (s *ParquetStore) Path() string { return s.path }

// Write replaces the file with rows.
func (s *ParquetStore) Write(rows []models.Observation) error {
	out := make([]parquetRow, 0, len(rows))
	for _, o := range rows {
		out = append(out, parquetRow{
			SiteID:               int64(o.SiteID),
			Date:                 o.Date.String(),
			Hour:                 o.Hour.Ptr(),
			HourDescription:      o.HourDescription.Ptr(),
			Value:                o.Value.Ptr(),
			AirQualityCategory:   o.AirQualityCategory.Ptr(),
			DeterminingPollutant: o.DeterminingPollutant.Ptr(),
			ParameterCode:        o.ParameterCode,
			ParameterDescription: o.ParameterDescription,
			Units:                o.Units,
			UnitsDescription:     o.UnitsDescription,
			Category:             o.Category,
			SubCategory:          o.SubCategory,
			Frequency:            o.Frequency,
		})
	}

	return replaceFile(s.path, func(f *os.File) error {
		w := parquet.NewGenericWriter[parquetRow](f)
		if _, err := w.Write(out); err != nil {
			return err
		}
		return w.Close()
	})
}

// Read loads every row in file order.
func (s *ParquetStore) Read() ([]models.Observation, error) {
	rows, err := parquet.ReadFile[parquetRow](s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	out := make([]models.Observation, 0, len(rows))
	for i, r := range rows {
		o := models.Observation{
			SiteID:               int(r.SiteID),
			Hour:                 null.IntFromPtr(r.Hour),
			HourDescription:      null.StringFromPtr(r.HourDescription),
			Value:                null.FloatFromPtr(r.Value),
			AirQualityCategory:   null.StringFromPtr(r.AirQualityCategory),
			DeterminingPollutant: null.StringFromPtr(r.DeterminingPollutant),
			ParameterCode:        r.ParameterCode,
			ParameterDescription: r.ParameterDescription,
			Units:                r.Units,
			UnitsDescription:     r.UnitsDescription,
			Category:             r.Category,
			SubCategory:          r.SubCategory,
			Frequency:            r.Frequency,
		}
		if r.Date != "" {
			if o.Date, err = models.ParseDate(r.Date); err != nil {
				return nil, fmt.Errorf("snapshot %s row %d: %w", s.path, i, err)
			}
		}
		out = append(out, o)
	}
	return out, nil
}
