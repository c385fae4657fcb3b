package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/aqwatch/aqms-pipeline/internal/aqms"
	"github.com/aqwatch/aqms-pipeline/internal/config"
	"github.com/aqwatch/aqms-pipeline/internal/logging"
	"github.com/aqwatch/aqms-pipeline/internal/scheduler"
	"github.com/aqwatch/aqms-pipeline/internal/snapshot"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("snapshot writer failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
	out := flags.String("out", cfg.SnapshotPath(), "snapshot file (.csv or .parquet)")
	every := flags.Duration("every", 0, "refresh the snapshot on this interval (0 runs once)")
	dryRun := flags.Bool("dry-run", cfg.DryRun, "fetch without writing the file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger, err := logging.New("snapshot", cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := aqms.NewClient(cfg.Upstream.BaseURL, &http.Client{Timeout: cfg.Upstream.RequestTimeout})
	w := snapshot.NewWriter(client, snapshot.Open(*out), logger, *dryRun)

	job := func(ctx context.Context) error {
		_, err := w.Run(ctx)
		return err
	}
	if *every <= 0 {
		return job(ctx)
	}
	logger.WithField("every", every.String()).Info("scheduling snapshot refresh")
	return scheduler.Run(ctx, logger, "snapshot", *every, cfg.Upstream.RequestTimeout, job)
}
