package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/aqwatch/aqms-pipeline/internal/config"
	"github.com/aqwatch/aqms-pipeline/internal/logging"
	"github.com/aqwatch/aqms-pipeline/internal/publisher"
	"github.com/aqwatch/aqms-pipeline/internal/pubsub"
	"github.com/aqwatch/aqms-pipeline/internal/snapshot"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("publisher failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("publisher", pflag.ContinueOnError)
	in := flags.String("in", cfg.SnapshotPath(), "snapshot file to replay (.csv or .parquet)")
	interval := flags.Duration("interval", cfg.Publisher.Interval, "minimum gap between events")
	loop := flags.Bool("loop", false, "replay the snapshot again after each pass")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger, err := logging.New("publisher", cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.Broker.ConnectTimeout)
	broker, err := pubsub.Dial(dialCtx, cfg.Broker.URL, pubsub.Options{
		ClientID:       cfg.Broker.ClientID,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		Log:            logger,
	})
	dialCancel()
	if err != nil {
		return err
	}
	defer broker.Close()

	pub := publisher.New(
		snapshot.Open(*in),
		broker,
		cfg.Broker.Topic,
		publisher.Filter{ParameterCode: cfg.Publisher.Parameter, Frequency: cfg.Publisher.Frequency},
		publisher.NewRatePacer(*interval),
		logger,
	)

	for {
		st, err := pub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			logger.WithField("published", st.Published).Info("publisher stopped")
			return nil
		}
		if err != nil || !*loop {
			return err
		}
		if st.Matched == 0 {
			return errors.New("snapshot has no matching rows to loop over")
		}
	}
}
