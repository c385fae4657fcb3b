// Package pubsub hides the message broker behind a small interface. The
// transport is picked from the broker URL scheme:
//
//	mqtt://, tcp://, ssl://   MQTT (QoS 0, clean session, no retain)
//	kafka://host:9092,...     Kafka (no acks, start at latest offset)
//	redis://                  Redis PUBLISH/SUBSCRIBE
//	amqp://, amqps://         RabbitMQ topic exchange (?exchange=name)
//	mem://name                in-process broker shared by name
//
// Every transport is at-most-once: nothing is acknowledged or redelivered.
package pubsub

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Handler receives one message payload. Calls are sequential per subscription.
type Handler func(ctx context.Context, payload []byte)

// Broker publishes to and subscribes on named topics.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe blocks, delivering messages to h until ctx is cancelled
	// (returns nil) or the connection fails (returns the error).
	Subscribe(ctx context.Context, topic string, h Handler) error
	Close() error
}

// Options tunes the connection.
type Options struct {
	ClientID       string
	ConnectTimeout time.Duration
	Log            logrus.FieldLogger
}

func (o *Options) defaults() {
	if o.ClientID == "" {
		o.ClientID = "aqms-" + uuid.NewString()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Log == nil {
		l := logrus.New()
		l.SetOutput(nopWriter{})
		o.Log = l
	}
}

// Dial connects to the broker named by rawURL.
func Dial(ctx context.Context, rawURL string, opts Options) (Broker, error) {
	opts.defaults()
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}

	switch u.Scheme {
	case "mqtt", "tcp", "ssl", "mqtts":
		return dialMQTT(u, opts)
	case "kafka":
		return dialKafka(ctx, u, opts)
	case "redis", "rediss":
		return dialRedis(ctx, rawURL, opts)
	case "amqp", "amqps":
		return dialAMQP(u, opts)
	case "mem":
		return SharedMemory(u.Host), nil
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
