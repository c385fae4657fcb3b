package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aqwatch/aqms-pipeline/internal/db"
	"github.com/aqwatch/aqms-pipeline/internal/metrics"
	"github.com/aqwatch/aqms-pipeline/internal/models"
	"github.com/aqwatch/aqms-pipeline/internal/sites"
)

// Fetcher runs historical observation queries.
type Fetcher interface {
	FetchRange(ctx context.Context, req models.ObservationRequest) ([]models.RawObservation, error)
}

// Store is the relational target of the load step.
type Store interface {
	EnsureSiteTable(ctx context.Context) error
	UpsertSites(ctx context.Context, list []models.Site) error
	ReplaceObservations(ctx context.Context, rows []models.Observation, atomic bool) (db.LoadResult, error)
}

// Options selects the series and load behaviour of one run.
type Options struct {
	Regions     []string
	Parameter   string
	Category    string
	SubCategory string
	StartDate   time.Time
	// EndDate overrides the default end of yesterday when set.
	EndDate   time.Time
	Atomic    bool
	SyncSites bool
	DryRun    bool
}

// Report summarises one run.
type Report struct {
	From     models.Date
	To       models.Date
	Sites    int
	Fetched  int
	Dropped  int
	Inserted int
	Failed   int
}

// Job is the historical retrieve/transform/load pipeline.
type Job struct {
	fetcher Fetcher
	store   Store
	dir     *sites.Directory
	opts    Options
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewJob wires a job. store may be nil for dry runs.
func NewJob(fetcher Fetcher, store Store, dir *sites.Directory, opts Options, log logrus.FieldLogger) *Job {
	return &Job{fetcher: fetcher, store: store, dir: dir, opts: opts, log: log, now: time.Now}
}

// Run executes one full reload. The upstream fetch completes before any table
// is touched, so a failed fetch leaves the store as it was.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var rep Report

	from, to, err := j.window()
	if err != nil {
		return rep, err
	}
	rep.From, rep.To = from, to

	selected := j.dir.InRegions(j.opts.Regions)
	rep.Sites = len(selected)
	log := j.log.WithFields(logrus.Fields{
		"from":      from.String(),
		"to":        to.String(),
		"sites":     rep.Sites,
		"parameter": j.opts.Parameter,
	})

	var raw []models.RawObservation
	if len(selected) == 0 {
		log.Warn("no sites in the configured regions; loading an empty table")
	} else {
		raw, err = j.fetcher.FetchRange(ctx, models.ObservationRequest{
			Parameters:    []string{j.opts.Parameter},
			Sites:         sites.IDs(selected),
			StartDate:     from.Time,
			EndDate:       to.Time,
			Categories:    []string{j.opts.Category},
			SubCategories: []string{j.opts.SubCategory},
		})
		if err != nil {
			return rep, fmt.Errorf("fetch observations: %w", err)
		}
	}
	rep.Fetched = len(raw)
	metrics.ETLRows.WithLabelValues("fetched").Add(float64(rep.Fetched))

	rows, dropped := Normalize(raw)
	rep.Dropped = dropped
	metrics.ETLRows.WithLabelValues("dropped_null").Add(float64(dropped))
	log.WithField("fetched", rep.Fetched).WithField("dropped", dropped).Info("observations normalized")

	if j.opts.DryRun {
		for _, row := range rows {
			log.WithFields(logrus.Fields{
				"site_id": row.SiteID,
				"date":    row.Date.String(),
				"value":   ValueString(row.Value),
			}).Debug("dry-run: would insert")
		}
		log.WithField("rows", len(rows)).Info("dry-run: skipping load")
		return rep, nil
	}

	if j.opts.SyncSites {
		if err := j.store.EnsureSiteTable(ctx); err != nil {
			return rep, err
		}
		if err := j.store.UpsertSites(ctx, j.dir.All()); err != nil {
			return rep, err
		}
		log.WithField("synced", j.dir.Len()).Debug("site table synced")
	}

	res, err := j.store.ReplaceObservations(ctx, rows, j.opts.Atomic)
	rep.Inserted = res.Inserted
	rep.Failed = len(res.Failures)
	metrics.ETLRows.WithLabelValues("inserted").Add(float64(rep.Inserted))
	metrics.ETLRows.WithLabelValues("failed").Add(float64(rep.Failed))
	for _, f := range res.Failures {
		log.WithFields(logrus.Fields{
			"row":     f.Index + 1,
			"site_id": rows[f.Index].SiteID,
			"date":    rows[f.Index].Date.String(),
		}).WithError(f.Err).Warn("row insert failed; skipped")
	}
	if err != nil {
		return rep, fmt.Errorf("load observations: %w", err)
	}

	log.WithField("inserted", rep.Inserted).WithField("failed", rep.Failed).Info("historical load complete")
	return rep, nil
}

func (j *Job) window() (models.Date, models.Date, error) {
	from, to, err := Window(j.opts.StartDate, j.now())
	if j.opts.EndDate.IsZero() {
		return from, to, err
	}
	from, to = models.DateOf(j.opts.StartDate), models.DateOf(j.opts.EndDate)
	if to.Before(from.Time) {
		return models.Date{}, models.Date{}, fmt.Errorf("empty window: start %s is after end %s", from, to)
	}
	return from, to, nil
}
