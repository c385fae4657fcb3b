package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/aqwatch/aqms-pipeline/internal/aqms"
	"github.com/aqwatch/aqms-pipeline/internal/config"
	"github.com/aqwatch/aqms-pipeline/internal/livemap"
	"github.com/aqwatch/aqms-pipeline/internal/logging"
	"github.com/aqwatch/aqms-pipeline/internal/pubsub"
	"github.com/aqwatch/aqms-pipeline/internal/sites"
	"github.com/aqwatch/aqms-pipeline/internal/ws"
	httpserver "github.com/aqwatch/aqms-pipeline/services/api/http"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("live map failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("live", pflag.ContinueOnError)
	port := flags.Int("port", cfg.HTTP.Port, "HTTP listen port")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	cfg.HTTP.Port = *port

	logger, err := logging.New("live", cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := aqms.NewClient(cfg.Upstream.BaseURL, &http.Client{Timeout: cfg.Upstream.RequestTimeout})
	dir, err := sites.Load(ctx, client, cfg.SiteCachePath(), logger)
	if err != nil {
		return err
	}

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

	hub := ws.New()
	go hub.Run(ctx)

	session := livemap.NewSession(dir, hub, logger)
	defer session.Close()

	subErr := make(chan error, 1)
	go func() {
		logger.WithField("topic", cfg.Broker.Topic).Info("subscribing")
		subErr <- broker.Subscribe(ctx, cfg.Broker.Topic, session.HandleMessage)
	}()

	srv := httpserver.New(cfg.ListenAddr(), httpserver.Deps{
		Sites:  dir,
		Live:   session,
		Stream: hub,
	}, logger)
	srvErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.ListenAddr()).Info("live map listening")
		srvErr <- srv.Run(ctx)
	}()

	select {
	case err := <-subErr:
		cancel()
		<-srvErr
		if err != nil {
			return fmt.Errorf("subscription ended: %w", err)
		}
		return nil
	case err := <-srvErr:
		cancel()
		<-subErr
		return err
	}
}
