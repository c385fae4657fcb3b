package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/aqwatch/aqms-pipeline/internal/aqms"
	"github.com/aqwatch/aqms-pipeline/internal/config"
	"github.com/aqwatch/aqms-pipeline/internal/db"
	"github.com/aqwatch/aqms-pipeline/internal/etl"
	"github.com/aqwatch/aqms-pipeline/internal/logging"
	"github.com/aqwatch/aqms-pipeline/internal/models"
	"github.com/aqwatch/aqms-pipeline/internal/scheduler"
	"github.com/aqwatch/aqms-pipeline/internal/sites"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("watcher failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("watcher", pflag.ContinueOnError)
	startDate := flags.String("start-date", cfg.ETL.StartDate.Format(models.DateLayout), "first day of the historical window (YYYY-MM-DD)")
	endDate := flags.String("end-date", "", "last day of the window (default: yesterday)")
	loadMode := flags.String("load-mode", cfg.ETL.LoadMode, "best-effort or atomic")
	every := flags.Duration("every", 0, "rerun the load on this interval (0 runs once)")
	refreshSites := flags.Bool("refresh-sites", false, "refetch the site directory instead of using the cache")
	dryRun := flags.Bool("dry-run", cfg.DryRun, "fetch and transform without writing")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	opts := etl.Options{
		Regions:     cfg.ETL.Regions,
		Parameter:   cfg.ETL.Parameter,
		Category:    cfg.ETL.Category,
		SubCategory: cfg.ETL.SubCategory,
		SyncSites:   cfg.ETL.SyncSites,
		DryRun:      *dryRun,
	}
	start, err := models.ParseDate(*startDate)
	if err != nil {
		return fmt.Errorf("invalid --start-date: %w", err)
	}
	opts.StartDate = start.Time
	if *endDate != "" {
		end, err := models.ParseDate(*endDate)
		if err != nil {
			return fmt.Errorf("invalid --end-date: %w", err)
		}
		opts.EndDate = end.Time
	}
	switch *loadMode {
	case config.LoadBestEffort:
	case config.LoadAtomic:
		opts.Atomic = true
	default:
		return fmt.Errorf("invalid --load-mode: %q", *loadMode)
	}

	logger, err := logging.New("watcher", cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := aqms.NewClient(cfg.Upstream.BaseURL, &http.Client{Timeout: cfg.Upstream.RequestTimeout})

	var store etl.Store
	if !opts.DryRun {
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL is required")
		}
		s, err := db.New(ctx, cfg.Database.URL, cfg.Database.StatementTimeout)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	job := func(ctx context.Context) error {
		load := sites.Load
		if *refreshSites {
			load = sites.Refresh
		}
		dir, err := load(ctx, client, cfg.SiteCachePath(), logger)
		if err != nil {
			return err
		}

		started := time.Now()
		rep, err := etl.NewJob(client, store, dir, opts, logger).Run(ctx)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"from":     rep.From.String(),
			"to":       rep.To.String(),
			"sites":    rep.Sites,
			"fetched":  rep.Fetched,
			"dropped":  rep.Dropped,
			"inserted": rep.Inserted,
			"failed":   rep.Failed,
			"dry_run":  opts.DryRun,
			"took":     time.Since(started).String(),
		}).Info("watcher run finished")
		return nil
	}

	if *every <= 0 {
		return job(ctx)
	}
	logger.WithField("every", every.String()).Info("scheduling historical load")
	return scheduler.Run(ctx, logger, "historical-load", *every, 0, job)
}
