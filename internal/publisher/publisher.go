package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/aqwatch/aqms-pipeline/internal/events"
	"github.com/aqwatch/aqms-pipeline/internal/metrics"
	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// Pacer blocks until the next event may be sent.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewRatePacer returns a token bucket of burst one: the first Wait returns
// immediately and each later one at least interval after the previous.
// A zero interval disables pacing.
func NewRatePacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Source yields the snapshot rows to replay.
type Source interface {
	Read() ([]models.Observation, error)
}

// Sink is the broker side of the publisher.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Filter selects the rows that become events.
type Filter struct {
	ParameterCode string
	Frequency     string
}

// Match reports whether o is sent as an event.
func (f Filter) Match(o models.Observation) bool {
	return o.ParameterCode == f.ParameterCode && o.Frequency == f.Frequency
}

// Stats counts the outcome of one run.
type Stats struct {
	Read      int
	Matched   int
	Published int
	Failed    int
}

// Publisher replays the snapshot onto a topic, one event per matching row,
// in file order. Nothing is acknowledged or retried.
type Publisher struct {
	src    Source
	sink   Sink
	topic  string
	filter Filter
	pacer  Pacer
	log    logrus.FieldLogger
}

// New wires a Publisher for topic.
func New(src Source, sink Sink, topic string, filter Filter, pacer Pacer, log logrus.FieldLogger) *Publisher {
	return &Publisher{src: src, sink: sink, topic: topic, filter: filter, pacer: pacer, log: log}
}

// Run publishes the current snapshot once. It stops early only when ctx is
// cancelled; failed events are logged and skipped.
func (p *Publisher) Run(ctx context.Context) (Stats, error) {
	var st Stats
	rows, err := p.src.Read()
	if err != nil {
		return st, fmt.Errorf("read snapshot: %w", err)
	}
	st.Read = len(rows)
	log := p.log.WithField("topic", p.topic)

	for i, row := range rows {
		if !p.filter.Match(row) {
			continue
		}
		st.Matched++

		if err := p.pacer.Wait(ctx); err != nil {
			return st, err
		}

		entry := log.WithField("row", i).WithField("site_id", row.SiteID)
		payload, err := events.Encode(row)
		if err != nil {
			st.Failed++
			metrics.EventsPublished.WithLabelValues("encode_error").Inc()
			entry.WithError(err).Error("encode event")
			continue
		}
		if err := p.sink.Publish(ctx, p.topic, payload); err != nil {
			st.Failed++
			metrics.EventsPublished.WithLabelValues("publish_error").Inc()
			entry.WithError(err).Error("publish event")
			continue
		}
		st.Published++
		metrics.EventsPublished.WithLabelValues("ok").Inc()
		entry.Debug("event published")
	}

	log.WithFields(logrus.Fields{
		"read":      st.Read,
		"matched":   st.Matched,
		"published": st.Published,
		"failed":    st.Failed,
	}).Info("snapshot replay complete")
	return st, nil
}
