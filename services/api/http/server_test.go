package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/aqwatch/aqms-pipeline/internal/history"
	"github.com/aqwatch/aqms-pipeline/internal/livemap"
	"github.com/aqwatch/aqms-pipeline/internal/models"
)

type fakeHistory struct {
	options []history.SiteOption
	series  map[int]history.Series
	err     error
}

func (f *fakeHistory) Options(context.Context) ([]history.SiteOption, error) {
	return f.options, f.err
}

func (f *fakeHistory) Series(_ context.Context, id int) (history.Series, error) {
	if f.err != nil {
		return history.Series{}, f.err
	}
	s, ok := f.series[id]
	if !ok {
		return history.Series{}, fmt.Errorf("site %d: %w", id, history.ErrUnknownSite)
	}
	return s, nil
}

type fakeSites []models.Site

func (f fakeSites) All() []models.Site { return f }

type fakeLive livemap.View

func (f fakeLive) View() livemap.View { return livemap.View(f) }

func newTestServer(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	return New(":0", deps, log).Engine()
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s response %q: %v", path, rec.Body.String(), err)
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	rec, body := get(t, newTestServer(t, Deps{}), "/healthz")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("got %d %v", rec.Code, body)
	}

	down := Deps{Ping: func(context.Context) error { return errors.New("pool closed") }}
	rec, _ = get(t, newTestServer(t, down), "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}
}

func TestHistorySites(t *testing.T) {
	h := &fakeHistory{options: []history.SiteOption{{SiteID: 39, Label: "39 - RANDWICK - Sydney East", Region: "Sydney East"}}}
	rec, body := get(t, newTestServer(t, Deps{History: h}), "/api/v1/history/sites")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if rec.Header().Get("X-API-Version") != "v1" {
		t.Errorf("missing version header")
	}
	data := body["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["label"] != "39 - RANDWICK - Sydney East" {
		t.Errorf("unexpected data: %v", data)
	}
}

func TestHistorySeries(t *testing.T) {
	h := &fakeHistory{series: map[int]history.Series{
		39: {Label: "39 - RANDWICK - Sydney East", Points: []history.Point{
			{Date: models.NewDate(2024, 3, 1), Value: 4.2, Category: "GOOD"},
		}},
	}}
	srv := newTestServer(t, Deps{History: h})

	rec, body := get(t, srv, "/api/v1/history/sites/39")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if n := body["meta"].(map[string]any)["count"]; n != float64(1) {
		t.Errorf("count = %v", n)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/history/sites/4242", http.StatusNotFound},
		{"/api/v1/history/sites/abc", http.StatusBadRequest},
		{"/api/v1/history/sites/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec, _ := get(t, srv, tt.path); rec.Code != tt.code {
			t.Errorf("%s: got %d, want %d", tt.path, rec.Code, tt.code)
		}
	}
}

func TestHistoryFailureIsGeneric(t *testing.T) {
	h := &fakeHistory{err: errors.New("pq: relation \"observation\" does not exist")}
	srv := newTestServer(t, Deps{History: h})

	for _, path := range []string{"/api/v1/history/sites", "/api/v1/history/sites/39"} {
		rec, body := get(t, srv, path)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: got %d", path, rec.Code)
		}
		if body["error"] != genericError {
			t.Errorf("%s: leaked error %v", path, body["error"])
		}
	}
}

func TestSitesAndLive(t *testing.T) {
	sites := fakeSites{{ID: 39, Name: "RANDWICK", Region: "Sydney East", Latitude: -33.93, Longitude: 151.24}}
	live := fakeLive{
		SessionID: "s-1",
		Zoom:      livemap.DefaultZoom,
		Markers:   []livemap.Marker{{Seq: 1, SiteID: 39, Category: "GOOD", Value: null.FloatFrom(3)}},
	}
	srv := newTestServer(t, Deps{Sites: sites, Live: live})

	rec, body := get(t, srv, "/api/v1/sites")
	if rec.Code != http.StatusOK || body["meta"].(map[string]any)["count"] != float64(1) {
		t.Fatalf("sites: %d %v", rec.Code, body)
	}

	rec, body = get(t, srv, "/api/v1/live/markers")
	if rec.Code != http.StatusOK {
		t.Fatalf("live: %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["session_id"] != "s-1" || len(data["markers"].([]any)) != 1 {
		t.Errorf("unexpected live view: %v", data)
	}
}

func TestOptionalRoutesAbsent(t *testing.T) {
	srv := newTestServer(t, Deps{})
	for _, path := range []string{"/api/v1/sites", "/api/v1/history/sites", "/api/v1/live/markers", "/ws/markers"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", path, rec.Code)
		}
	}
}
