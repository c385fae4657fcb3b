package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

type sliceSource []models.Observation

func (s sliceSource) Read() ([]models.Observation, error) { return s, nil }

type recordingSink struct {
	topics   []string
	payloads [][]byte
	at       []time.Time
	failOn   int // 1-based publish attempt that fails; 0 never
	attempts int
}

func (r *recordingSink) Publish(_ context.Context, topic string, payload []byte) error {
	r.attempts++
	if r.attempts == r.failOn {
		return errors.New("broker unavailable")
	}
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	r.at = append(r.at, time.Now())
	return nil
}

type countingPacer struct{ waits int }

func (c *countingPacer) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

var pm25Hourly = Filter{ParameterCode: "PM2.5", Frequency: "Hourly average"}

func threeRowSnapshot() sliceSource {
	return sliceSource{
		{SiteID: 39, ParameterCode: "PM2.5", Frequency: "Hourly average", Value: null.FloatFrom(4.1)},
		{SiteID: 39, ParameterCode: "OZONE", Frequency: "Hourly average", Value: null.FloatFrom(2.2)},
		{SiteID: 107, ParameterCode: "PM2.5", Frequency: "Hourly average"},
	}
}

func TestRun_FiltersAndPaces(t *testing.T) {
	log, _ := test.NewNullLogger()
	sink := &recordingSink{}
	pacer := &countingPacer{}

	st, err := New(threeRowSnapshot(), sink, "aqms/observations", pm25Hourly, pacer, log).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Read != 3 || st.Matched != 2 || st.Published != 2 || st.Failed != 0 {
		t.Errorf("stats: %+v", st)
	}
	if pacer.waits != 2 {
		t.Errorf("pacer waits: got %d, want 2 (no trailing wait)", pacer.waits)
	}

	var first, second map[string]any
	_ = json.Unmarshal(sink.payloads[0], &first)
	_ = json.Unmarshal(sink.payloads[1], &second)
	if first["Site_Id"] != float64(39) || second["Site_Id"] != float64(107) {
		t.Errorf("publish order: %v then %v", first["Site_Id"], second["Site_Id"])
	}
	if second["Value"] != nil {
		t.Errorf("missing value should be null, got %v", second["Value"])
	}
	for _, topic := range sink.topics {
		if topic != "aqms/observations" {
			t.Errorf("topic: %s", topic)
		}
	}
}

func TestRun_PublishFailureIsSkipped(t *testing.T) {
	log, hook := test.NewNullLogger()
	sink := &recordingSink{failOn: 1}

	st, err := New(threeRowSnapshot(), sink, "t", pm25Hourly, &countingPacer{}, log).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Published != 1 || st.Failed != 1 || sink.attempts != 2 {
		t.Errorf("stats: %+v attempts=%d", st, sink.attempts)
	}
	if hook.LastEntry() == nil {
		t.Error("expected log entries")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := New(threeRowSnapshot(), &recordingSink{}, "t", pm25Hourly, &countingPacer{}, log).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if st.Published != 0 {
		t.Errorf("published %d events after cancel", st.Published)
	}
}

func TestRatePacer_SpacesEvents(t *testing.T) {
	log, _ := test.NewNullLogger()
	const interval = 40 * time.Millisecond
	rows := sliceSource{
		{SiteID: 1, ParameterCode: "PM2.5", Frequency: "Hourly average"},
		{SiteID: 2, ParameterCode: "PM2.5", Frequency: "Hourly average"},
		{SiteID: 3, ParameterCode: "PM2.5", Frequency: "Hourly average"},
	}
	sink := &recordingSink{}

	start := time.Now()
	if _, err := New(rows, sink, "t", pm25Hourly, NewRatePacer(interval), log).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sink.at[0].Sub(start); got > interval {
		t.Errorf("first event should go out immediately, waited %v", got)
	}
	if got := sink.at[2].Sub(start); got < 2*interval {
		t.Errorf("three events took %v, want at least %v", got, 2*interval)
	}
}
