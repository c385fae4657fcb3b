package pubsub

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const defaultExchange = "aqms"

type amqpBroker struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	exchange string
	log      logrus.FieldLogger
}

func dialAMQP(u *url.URL, opts Options) (*amqpBroker, error) {
	exchange := u.Query().Get("exchange")
	if exchange == "" {
		exchange = defaultExchange
	}
	clean := *u
	clean.RawQuery = ""

	conn, err := amqp.DialConfig(clean.String(), amqp.Config{
		Dial:       amqp.DefaultDial(opts.ConnectTimeout),
		Properties: amqp.Table{"connection_name": opts.ClientID},
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &amqpBroker{conn: conn, pub: ch, exchange: exchange, log: opts.Log.WithField("broker", "amqp")}, nil
}

func (b *amqpBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.pub.PublishWithContext(ctx, b.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         payload,
	})
}

func (b *amqpBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, topic, b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue to %s: %w", topic, err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	b.log.WithField("topic", topic).WithField("queue", q.Name).Info("rabbitmq consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			h(ctx, d.Body)
		}
	}
}

func (b *amqpBroker) Close() error {
	return b.conn.Close()
}
