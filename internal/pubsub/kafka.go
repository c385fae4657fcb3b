package pubsub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type kafkaBroker struct {
	brokers []string
	writer  *kafka.Writer
	timeout time.Duration
	log     logrus.FieldLogger
}

func dialKafka(ctx context.Context, u *url.URL, opts Options) (*kafkaBroker, error) {
	brokers := strings.Split(u.Host, ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, errors.New("kafka url needs at least one broker")
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	conn, err := kafka.DialContext(dialCtx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka dial %s: %w", brokers[0], err)
	}
	_ = conn.Close()

	return &kafkaBroker{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireNone,
			WriteTimeout:           opts.ConnectTimeout,
			AllowAutoTopicCreation: true,
		},
		timeout: opts.ConnectTimeout,
		log:     opts.Log.WithField("broker", "kafka"),
	}, nil
}

// kafkaTopic maps MQTT-style topic paths onto legal Kafka topic names.
func kafkaTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (b *kafkaBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{Topic: kafkaTopic(topic), Value: payload})
}

func (b *kafkaBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		Topic:       kafkaTopic(topic),
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})
	defer r.Close()
	b.log.WithField("topic", topic).Info("kafka reader started")

	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka read %s: %w", topic, err)
		}
		h(ctx, msg.Value)
	}
}

func (b *kafkaBroker) Close() error {
	return b.writer.Close()
}
