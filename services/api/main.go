package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/aqwatch/aqms-pipeline/internal/aqms"
	"github.com/aqwatch/aqms-pipeline/internal/config"
	"github.com/aqwatch/aqms-pipeline/internal/db"
	"github.com/aqwatch/aqms-pipeline/internal/history"
	"github.com/aqwatch/aqms-pipeline/internal/logging"
	"github.com/aqwatch/aqms-pipeline/internal/sites"
	httpserver "github.com/aqwatch/aqms-pipeline/services/api/http"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("api failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("api", pflag.ContinueOnError)
	port := flags.Int("port", cfg.HTTP.Port, "HTTP listen port")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	cfg.HTTP.Port = *port
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}

	logger, err := logging.New("api", cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.Database.URL, cfg.Database.StatementTimeout)
	if err != nil {
		return fmt.Errorf("db connection error: %w", err)
	}
	defer store.Close()

	client := aqms.NewClient(cfg.Upstream.BaseURL, &http.Client{Timeout: cfg.Upstream.RequestTimeout})
	dir, err := sites.Load(ctx, client, cfg.SiteCachePath(), logger)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.ListenAddr(), httpserver.Deps{
		History:    history.New(store, dir, cfg.ETL.Parameter, cfg.ETL.Category, cfg.ETL.SubCategory),
		Sites:      dir,
		Parameters: client,
		Ping:       store.Ping,
	}, logger)
	logger.WithField("addr", cfg.ListenAddr()).Info("REST API listening")

	return srv.Run(ctx)
}
