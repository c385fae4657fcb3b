package etl

import (
	"fmt"
	"math"
	"time"

	"github.com/guregu/null"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// Flatten unnests the parameter object of every record, keeping nulls.
func Flatten(raw []models.RawObservation) []models.Observation {
	out := make([]models.Observation, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.Flatten())
	}
	return out
}

// Normalize flattens raw records, drops those without a value and backfills
// missing categories and pollutants with "Unknown". It returns the kept rows
// and the number dropped.
func Normalize(raw []models.RawObservation) ([]models.Observation, int) {
	out := make([]models.Observation, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		obs := r.Flatten()
		if !HasValue(obs.Value) {
			dropped++
			continue
		}
		obs.AirQualityCategory = orUnknown(obs.AirQualityCategory)
		obs.DeterminingPollutant = orUnknown(obs.DeterminingPollutant)
		out = append(out, obs)
	}
	return out, dropped
}

// HasValue reports whether v carries a real measurement.
func HasValue(v null.Float) bool {
	return v.Valid && !math.IsNaN(v.Float64)
}

// orUnknown backfills missing values only; an empty string is kept as sent.
func orUnknown(s null.String) null.String {
	if !s.Valid {
		return null.StringFrom(models.Unknown)
	}
	return s
}

// Window returns the closed interval [start, yesterday] with yesterday taken
// from now's calendar day.
func Window(start time.Time, now time.Time) (models.Date, models.Date, error) {
	from := models.DateOf(start)
	to := models.DateOf(now).AddDate(0, 0, -1)
	if to.Before(from.Time) {
		return models.Date{}, models.Date{}, fmt.Errorf("empty window: start %s is after %s", from, models.DateOf(to))
	}
	return from, models.DateOf(to), nil
}

// ValueString prints optional values for logging.
func ValueString(v null.Float) string {
	if !v.Valid {
		return "null"
	}
	return fmt.Sprintf("%.3f", v.Float64)
}
