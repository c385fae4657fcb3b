package history

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aqwatch/aqms-pipeline/internal/db"
	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// ErrUnknownSite is returned for a site id missing from the site directory.
var ErrUnknownSite = errors.New("unknown site")

// Reader is the read side of the historical store.
type Reader interface {
	ListObservations(ctx context.Context, f db.ObservationFilter) ([]models.Observation, error)
	ObservationSiteIDs(ctx context.Context, f db.ObservationFilter) ([]int, error)
}

// Directory resolves site metadata.
type Directory interface {
	Lookup(id int) (models.Site, bool)
}

// SiteOption is one entry of the dashboard's site selector.
type SiteOption struct {
	SiteID int    `json:"site_id"`
	Label  string `json:"label"`
	Region string `json:"region"`
}

// Point is one (date, value) sample of a series.
type Point struct {
	Date     models.Date `json:"date"`
	Value    float64     `json:"value"`
	Category string      `json:"air_quality_category"`
}

// Series is the time-ordered history of one site.
type Series struct {
	Site      models.Site `json:"site"`
	Label     string      `json:"label"`
	Parameter string      `json:"parameter"`
	Unit      string      `json:"unit"`
	Points    []Point     `json:"points"`
}

// Service answers dashboard queries for one parameter series, e.g. daily
// PM2.5 averages.
type Service struct {
	store  Reader
	dir    Directory
	filter db.ObservationFilter
}

// New returns a Service for one parameter/category/sub-category series.
func New(store Reader, dir Directory, parameter, category, subCategory string) *Service {
	return &Service{
		store: store,
		dir:   dir,
		filter: db.ObservationFilter{
			ParameterCode: parameter,
			Category:      category,
			SubCategory:   subCategory,
		},
	}
}

// Options lists the sites that have data and are known to the directory,
// ordered by site id.
func (s *Service) Options(ctx context.Context) ([]SiteOption, error) {
	ids, err := s.store.ObservationSiteIDs(ctx, s.filter)
	if err != nil {
		return nil, fmt.Errorf("list series sites: %w", err)
	}
	sort.Ints(ids)

	out := make([]SiteOption, 0, len(ids))
	for _, id := range ids {
		site, ok := s.dir.Lookup(id)
		if !ok {
			continue
		}
		out = append(out, SiteOption{SiteID: id, Label: site.Label(), Region: site.Region})
	}
	return out, nil
}

// Series returns the date-ordered values of one site. A known site without
// rows yields an empty series.
func (s *Service) Series(ctx context.Context, siteID int) (Series, error) {
	site, ok := s.dir.Lookup(siteID)
	if !ok {
		return Series{}, fmt.Errorf("site %d: %w", siteID, ErrUnknownSite)
	}

	f := s.filter
	f.SiteID = siteID
	rows, err := s.store.ListObservations(ctx, f)
	if err != nil {
		return Series{}, fmt.Errorf("list observations for site %d: %w", siteID, err)
	}

	out := Series{
		Site:      site,
		Label:     site.Label(),
		Parameter: s.filter.ParameterCode,
		Points:    make([]Point, 0, len(rows)),
	}
	for _, r := range rows {
		if !r.Value.Valid {
			continue
		}
		if out.Unit == "" {
			out.Unit = r.Units
		}
		out.Points = append(out.Points, Point{
			Date:     r.Date,
			Value:    r.Value.Float64,
			Category: r.AirQualityCategory.String,
		})
	}
	sort.SliceStable(out.Points, func(i, j int) bool {
		return out.Points[i].Date.Before(out.Points[j].Date.Time)
	})
	return out, nil
}
