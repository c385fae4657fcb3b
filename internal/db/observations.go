package db

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

const dropObservationTableSQL = `DROP TABLE IF EXISTS observation CASCADE`

const createObservationTableSQL = `CREATE TABLE IF NOT EXISTS observation (
    observation_id        SERIAL PRIMARY KEY,
    site_id               INTEGER NOT NULL,
    date                  DATE NOT NULL,
    hour                  INTEGER,
    hour_description      VARCHAR(20),
    value                 FLOAT,
    air_quality_category  VARCHAR(30),
    determining_pollutant VARCHAR(30),
    parameter_code        VARCHAR(30) NOT NULL,
    parameter_description VARCHAR(50),
    unit                  VARCHAR(20) NOT NULL,
    unit_description      VARCHAR(30),
    category              VARCHAR(20) NOT NULL,
    subcategory           VARCHAR(10) NOT NULL,
    frequency             VARCHAR(50) NOT NULL,
    CONSTRAINT site_id_fk FOREIGN KEY (site_id) REFERENCES site (site_id)
)`

const insertObservationSQL = `INSERT INTO observation (site_id, date, hour, hour_description,
    value, air_quality_category, determining_pollutant, parameter_code,
    parameter_description, unit, unit_description, category, subcategory, frequency)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

const listObservationsBase = `
    SELECT site_id, date, hour, hour_description, value, air_quality_category,
           determining_pollutant, parameter_code, parameter_description, unit,
           unit_description, category, subcategory, frequency
    FROM observation
    WHERE parameter_code = $1 AND category = $2 AND subcategory = $3
`

const observationSiteIDsSQL = `
    SELECT DISTINCT site_id
    FROM observation
    WHERE parameter_code = $1 AND category = $2 AND subcategory = $3
    ORDER BY site_id
`

// RowFailure records one observation that could not be inserted.
type RowFailure struct {
	Index int
	Err   error
}

// LoadResult summarises a Replace call.
type LoadResult struct {
	Inserted int
	Failures []RowFailure
}

// ReplaceObservations drops and recreates the observation table, then loads
// rows. Best-effort mode commits every row on its own and collects failures;
// atomic mode runs the whole reload in one transaction and leaves the
// previous table in place when anything fails.
//
// A failing schema statement aborts the load in both modes.
func (s *Store) ReplaceObservations(ctx context.Context, rows []models.Observation, atomic bool) (LoadResult, error) {
	if atomic {
		return s.replaceAtomic(ctx, rows)
	}
	return s.replaceBestEffort(ctx, rows)
}

func (s *Store) replaceBestEffort(ctx context.Context, rows []models.Observation) (LoadResult, error) {
	var result LoadResult
	if err := s.execSchema(ctx, "drop observation table", dropObservationTableSQL); err != nil {
		return result, err
	}
	if err := s.execSchema(ctx, "create observation table", createObservationTableSQL); err != nil {
		return result, err
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stmtCtx, cancel := s.stmtContext(ctx)
		_, err := s.pool.Exec(stmtCtx, insertObservationSQL, observationArgs(row)...)
		cancel()
		if err != nil {
			result.Failures = append(result.Failures, RowFailure{
				Index: i,
				Err:   &PersistenceError{Statement: "insert observation", Row: i, Err: err},
			})
			continue
		}
		result.Inserted++
	}
	return result, nil
}

func (s *Store) replaceAtomic(ctx context.Context, rows []models.Observation) (LoadResult, error) {
	var result LoadResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, dropObservationTableSQL); err != nil {
			return &PersistenceError{Statement: "drop observation table", Row: -1, Err: err}
		}
		if _, err := tx.Exec(ctx, createObservationTableSQL); err != nil {
			return &PersistenceError{Statement: "create observation table", Row: -1, Err: err}
		}
		if len(rows) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(insertObservationSQL, observationArgs(row)...)
		}
		res := tx.SendBatch(ctx, batch)
		for i := range rows {
			if _, err := res.Exec(); err != nil {
				res.Close()
				return &PersistenceError{Statement: "insert observation", Row: i, Err: err}
			}
		}
		return res.Close()
	})
	if err != nil {
		return LoadResult{}, err
	}
	result.Inserted = len(rows)
	return result, nil
}

func (s *Store) execSchema(ctx context.Context, name, sql string) error {
	ctx, cancel := s.stmtContext(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return &PersistenceError{Statement: name, Row: -1, Err: err}
	}
	return nil
}

func observationArgs(o models.Observation) []any {
	return []any{
		o.SiteID,
		o.Date.Time,
		o.Hour,
		o.HourDescription,
		o.Value,
		o.AirQualityCategory,
		o.DeterminingPollutant,
		o.ParameterCode,
		o.ParameterDescription,
		o.Units,
		o.UnitsDescription,
		o.Category,
		o.SubCategory,
		o.Frequency,
	}
}

// ObservationFilter selects rows of one parameter series. SiteID zero means all sites.
type ObservationFilter struct {
	ParameterCode string
	Category      string
	SubCategory   string
	SiteID        int
}

// ListObservations returns matching rows ordered by site, date and hour.
func (s *Store) ListObservations(ctx context.Context, f ObservationFilter) ([]models.Observation, error) {
	query := listObservationsBase
	args := []any{f.ParameterCode, f.Category, f.SubCategory}
	if f.SiteID != 0 {
		args = append(args, f.SiteID)
		query += " AND site_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY site_id, date, hour NULLS FIRST"

	ctx, cancel := s.stmtContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Observation, 0)
	for rows.Next() {
		var o models.Observation
		var paramDesc, unitDesc *string
		if err := rows.Scan(
			&o.SiteID,
			&o.Date.Time,
			&o.Hour,
			&o.HourDescription,
			&o.Value,
			&o.AirQualityCategory,
			&o.DeterminingPollutant,
			&o.ParameterCode,
			&paramDesc,
			&o.Units,
			&unitDesc,
			&o.Category,
			&o.SubCategory,
			&o.Frequency,
		); err != nil {
			return nil, err
		}
		if paramDesc != nil {
			o.ParameterDescription = *paramDesc
		}
		if unitDesc != nil {
			o.UnitsDescription = *unitDesc
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservationSiteIDs lists the sites that have rows for the filter's series.
func (s *Store) ObservationSiteIDs(ctx context.Context, f ObservationFilter) ([]int, error) {
	ctx, cancel := s.stmtContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, observationSiteIDsSQL, f.ParameterCode, f.Category, f.SubCategory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
