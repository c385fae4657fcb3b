package pubsub

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const mqttQoS = 0

type mqttSub struct {
	topic   string
	handler mqtt.MessageHandler
}

type mqttBroker struct {
	client  mqtt.Client
	timeout time.Duration
	log     logrus.FieldLogger

	mu   sync.Mutex
	subs []mqttSub
	lost chan error
}

func dialMQTT(u *url.URL, opts Options) (*mqttBroker, error) {
	scheme := "tcp"
	if u.Scheme == "ssl" || u.Scheme == "mqtts" {
		scheme = "ssl"
	}
	host := u.Host
	if u.Port() == "" {
		host += ":1883"
	}

	b := &mqttBroker{
		timeout: opts.ConnectTimeout,
		log:     opts.Log.WithField("broker", "mqtt"),
		lost:    make(chan error, 1),
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(fmt.Sprintf("%s://%s", scheme, host))
	o.SetClientID(opts.ClientID)
	o.SetCleanSession(true)
	o.SetAutoReconnect(false)
	o.SetConnectTimeout(opts.ConnectTimeout)
	o.SetWriteTimeout(opts.ConnectTimeout)
	o.SetOrderMatters(true)
	if u.User != nil {
		o.SetUsername(u.User.Username())
		if p, ok := u.User.Password(); ok {
			o.SetPassword(p)
		}
	}
	o.SetOnConnectHandler(b.onConnect)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.WithError(err).Warn("mqtt connection lost")
		select {
		case b.lost <- err:
		default:
		}
	})

	b.client = mqtt.NewClient(o)
	tok := b.client.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", host, opts.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", host, err)
	}
	b.log.WithField("host", host).Info("mqtt connected")
	return b, nil
}

// onConnect (re)subscribes every registered topic.
func (b *mqttBroker) onConnect(c mqtt.Client) {
	b.mu.Lock()
	subs := append([]mqttSub(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		tok := c.Subscribe(s.topic, mqttQoS, s.handler)
		if tok.WaitTimeout(b.timeout) && tok.Error() != nil {
			b.log.WithError(tok.Error()).WithField("topic", s.topic).Error("mqtt resubscribe failed")
		}
	}
}

func (b *mqttBroker) Publish(_ context.Context, topic string, payload []byte) error {
	tok := b.client.Publish(topic, mqttQoS, false, payload)
	if !tok.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	return tok.Error()
}

func (b *mqttBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	handler := func(_ mqtt.Client, m mqtt.Message) {
		h(ctx, m.Payload())
	}
	b.mu.Lock()
	b.subs = append(b.subs, mqttSub{topic: topic, handler: handler})
	b.mu.Unlock()

	tok := b.client.Subscribe(topic, mqttQoS, handler)
	if !tok.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt subscribe %s: timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	b.log.WithField("topic", topic).Info("mqtt subscribed")

	select {
	case <-ctx.Done():
		b.client.Unsubscribe(topic).WaitTimeout(b.timeout)
		return nil
	case err := <-b.lost:
		return fmt.Errorf("mqtt connection lost: %w", err)
	}
}

func (b *mqttBroker) Close() error {
	b.client.Disconnect(250)
	return nil
}
