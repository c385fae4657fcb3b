package livemap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null"
	"github.com/sirupsen/logrus"

	"github.com/aqwatch/aqms-pipeline/internal/events"
	"github.com/aqwatch/aqms-pipeline/internal/metrics"
	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// DefaultZoom is the initial zoom level of a new map.
const DefaultZoom = 8

// ErrClosed is returned by Handle after Close.
var ErrClosed = errors.New("live map session closed")

// Directory resolves sites for incoming events.
type Directory interface {
	Lookup(id int) (models.Site, bool)
	Located() []models.Site
}

// Sink receives the full map state after every handled event.
type Sink interface {
	Render(v View) error
}

// DisplayError wraps a failed render. The session keeps its state.
type DisplayError struct {
	Err error
}

func (e *DisplayError) Error() string { return fmt.Sprintf("render live map: %v", e.Err) }
func (e *DisplayError) Unwrap() error { return e.Err }

// Point is a map coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Marker is one received event placed on the map.
type Marker struct {
	Seq       int        `json:"seq"`
	SiteID    int        `json:"site_id"`
	Location  Point      `json:"location"`
	Category  string     `json:"category"`
	Value     null.Float `json:"value"`
	Timestamp string     `json:"timestamp"`
	Popup     string     `json:"popup"`
}

// View is a copy of the session state handed to sinks and HTTP callers.
type View struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Center    Point     `json:"center"`
	Zoom      int       `json:"zoom"`
	Markers   []Marker  `json:"markers"`
}

// Session owns the marker list of one subscriber lifetime. Markers are only
// ever appended: repeats of the same site each add a marker, and nothing is
// pruned until Close.
type Session struct {
	id   string
	dir  Directory
	sink Sink
	log  logrus.FieldLogger
	now  func() time.Time

	mu        sync.Mutex
	started   bool
	closed    bool
	startedAt time.Time
	center    Point
	zoom      int
	markers   []Marker
}

// NewSession starts an empty session rendering to sink.
func NewSession(dir Directory, sink Sink, log logrus.FieldLogger) *Session {
	id := uuid.NewString()
	return &Session{
		id:   id,
		dir:  dir,
		sink: sink,
		log:  log.WithField("session", id),
		now:  time.Now,
	}
}

// ID identifies the session in logs and views.
func (s *Session) ID() string { return s.id }

// HandleMessage adapts Handle to a broker callback; errors are already logged.
func (s *Session) HandleMessage(ctx context.Context, payload []byte) {
	_ = s.Handle(ctx, payload)
}

// Handle decodes one event, appends a marker when its site has a known
// location and re-renders the map. Events for unknown sites or sites
// without coordinates leave the state unchanged and are not errors.
func (s *Session) Handle(_ context.Context, payload []byte) error {
	obs, err := events.Decode(payload)
	if err != nil {
		metrics.EventsReceived.WithLabelValues("decode_error").Inc()
		s.log.WithError(err).Warn("dropping malformed event")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.started {
		s.initLocked()
	}

	log := s.log.WithField("site_id", obs.SiteID)
	site, ok := s.dir.Lookup(obs.SiteID)
	switch {
	case !ok:
		metrics.EventsReceived.WithLabelValues("unknown_site").Inc()
		log.Debug("event for unknown site")
	case !site.HasLocation():
		metrics.EventsReceived.WithLabelValues("sentinel").Inc()
		log.Debug("event for site without coordinates")
	default:
		s.markers = append(s.markers, newMarker(len(s.markers)+1, site, obs))
		metrics.EventsReceived.WithLabelValues("marker").Inc()
		metrics.Markers.Set(float64(len(s.markers)))
	}

	if err := s.sink.Render(s.viewLocked()); err != nil {
		metrics.RenderFailures.Inc()
		dErr := &DisplayError{Err: err}
		log.WithError(dErr).Error("render failed")
		return dErr
	}
	return nil
}

// View returns a snapshot of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Len returns the number of markers.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// Close ends the session and releases its markers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.markers = nil
	metrics.Markers.Set(0)
	s.log.Info("live map session closed")
}

// initLocked centers the map on the mean of all locatable sites.
func (s *Session) initLocked() {
	located := s.dir.Located()
	if n := len(located); n > 0 {
		var lat, lon float64
		for _, site := range located {
			lat += site.Latitude
			lon += site.Longitude
		}
		s.center = Point{Lat: lat / float64(n), Lon: lon / float64(n)}
	}
	s.zoom = DefaultZoom
	s.startedAt = s.now()
	s.started = true
	s.log.WithField("center", s.center).Info("live map session started")
}

func (s *Session) viewLocked() View {
	return View{
		SessionID: s.id,
		StartedAt: s.startedAt,
		Center:    s.center,
		Zoom:      s.zoom,
		Markers:   append([]Marker{}, s.markers...),
	}
}

func newMarker(seq int, site models.Site, o models.Observation) Marker {
	category := models.Unknown
	if o.AirQualityCategory.Valid && o.AirQualityCategory.String != "" {
		category = o.AirQualityCategory.String
	}
	ts := o.Date.String()
	if o.HourDescription.Valid && o.HourDescription.String != "" {
		ts += " " + o.HourDescription.String
	}
	if o.Value.Valid && (math.IsNaN(o.Value.Float64) || math.IsInf(o.Value.Float64, 0)) {
		o.Value = null.Float{}
	}
	value := "N/A"
	if o.Value.Valid {
		value = strconv.FormatFloat(o.Value.Float64, 'f', -1, 64)
	}
	param := o.ParameterCode
	if param == "" {
		param = "PM2.5"
	}
	return Marker{
		Seq:       seq,
		SiteID:    site.ID,
		Location:  Point{Lat: site.Latitude, Lon: site.Longitude},
		Category:  category,
		Value:     o.Value,
		Timestamp: ts,
		Popup: fmt.Sprintf("%s\nAirQualityCategory : %s\n%s Value: %s\nTimestamp: %s",
			site.Label(), category, param, value, ts),
	}
}
