package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

const createSiteTableSQL = `CREATE TABLE IF NOT EXISTS site (
    site_id    INTEGER PRIMARY KEY,
    site_name  VARCHAR(100),
    region     VARCHAR(50),
    longitude  FLOAT,
    latitude   FLOAT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertSiteSQL = `INSERT INTO site (site_id, site_name, region, longitude, latitude, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (site_id) DO UPDATE
SET site_name = EXCLUDED.site_name,
    region = EXCLUDED.region,
    longitude = EXCLUDED.longitude,
    latitude = EXCLUDED.latitude,
    updated_at = NOW()`

const listSitesSQL = `
    SELECT site_id, COALESCE(site_name, ''), COALESCE(region, ''), longitude, latitude
    FROM site
    ORDER BY site_id
`

// EnsureSiteTable creates the site table when it does not exist.
func (s *Store) EnsureSiteTable(ctx context.Context) error {
	ctx, cancel := s.stmtContext(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, createSiteTableSQL); err != nil {
		return &PersistenceError{Statement: "create site table", Row: -1, Err: err}
	}
	return nil
}

// UpsertSites inserts/updates site metadata records in one batch.
func (s *Store) UpsertSites(ctx context.Context, list []models.Site) error {
	if len(list) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, site := range list {
		batch.Queue(upsertSiteSQL, site.ID, site.Name, site.Region, site.Longitude, site.Latitude)
	}

	ctx, cancel := s.stmtContext(ctx)
	defer cancel()
	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for i := range list {
		if _, err := res.Exec(); err != nil {
			return &PersistenceError{Statement: "upsert site", Row: i, Err: err}
		}
	}
	return nil
}

// ListSites returns the site table contents.
func (s *Store) ListSites(ctx context.Context) ([]models.Site, error) {
	ctx, cancel := s.stmtContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, listSitesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Site, 0)
	for rows.Next() {
		var site models.Site
		var lon, lat *float64
		if err := rows.Scan(&site.ID, &site.Name, &site.Region, &lon, &lat); err != nil {
			return nil, err
		}
		site.Longitude, site.Latitude = coordOrSentinel(lon), coordOrSentinel(lat)
		out = append(out, site)
	}
	return out, rows.Err()
}

func coordOrSentinel(v *float64) float64 {
	if v == nil {
		return models.SentinelCoordinate
	}
	return *v
}
