package aqms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

const observationsFixture = `[
  {"Site_Id": 39, "Parameter": {"ParameterCode": "PM2.5", "Category": "Averages", "SubCategory": "Hourly", "Frequency": "Hourly average"},
   "Date": "2024-05-01", "Hour": 13, "HourDescription": "1 pm - 2 pm", "Value": 4.1,
   "AirQualityCategory": "GOOD", "DeterminingPollutant": null},
  {"Site_Id": 107, "Parameter": {"ParameterCode": "OZONE", "Category": "Averages", "SubCategory": "Hourly", "Frequency": "Hourly average"},
   "Date": "2024-05-01", "Hour": 13, "HourDescription": "1 pm - 2 pm", "Value": null,
   "AirQualityCategory": null, "DeterminingPollutant": null}
]`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", srv.Client())
}

func TestFetchAllSites(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != sitesPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing accept header")
		}
		_, _ = io.WriteString(w, `[{"Site_Id": 39, "SiteName": "RANDWICK", "Longitude": 151.24, "Latitude": -33.93, "Region": "Sydney East"},
			{"Site_Id": 2560, "SiteName": "MOBILE", "Longitude": -999, "Latitude": -999, "Region": "Sydney East"}]`)
	})

	sites, err := c.FetchAllSites(context.Background())
	if err != nil {
		t.Fatalf("FetchAllSites: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("got %d sites, want 2", len(sites))
	}
	if sites[0].Name != "RANDWICK" || sites[0].Region != "Sydney East" || !sites[0].HasLocation() {
		t.Errorf("unexpected first site: %+v", sites[0])
	}
	if sites[1].HasLocation() {
		t.Errorf("sentinel site should have no location: %+v", sites[1])
	}
}

func TestFetchLatest_SendsEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != observationsPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Errorf("expected empty body, got %q", body)
		}
		_, _ = io.WriteString(w, observationsFixture)
	})

	obs, err := c.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}
	if obs[0].Parameter.ParameterCode != "PM2.5" || obs[0].Hour.Int64 != 13 {
		t.Errorf("unexpected first observation: %+v", obs[0])
	}
	if obs[1].Value.Valid {
		t.Errorf("second observation should have null value")
	}
}

func TestFetchRange_SerializesRequest(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `[]`)
	})

	req := models.ObservationRequest{
		Parameters:    []string{"PM2.5"},
		Sites:         []int{39},
		StartDate:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Categories:    []string{"Averages"},
		SubCategories: []string{"Daily"},
	}
	obs, err := c.FetchRange(context.Background(), req)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(obs) != 0 {
		t.Errorf("got %d observations, want 0", len(obs))
	}
	if got["StartDate"] != "2023-01-01" || got["EndDate"] != "2024-05-01" {
		t.Errorf("dates not serialized as YYYY-MM-DD: %v", got)
	}
}

func TestFetchRange_RejectsInvertedWindow(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.FetchRange(context.Background(), models.ObservationRequest{
		Parameters: []string{"PM2.5"},
		StartDate:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if called {
		t.Error("upstream should not be called for an invalid request")
	}
}

func TestUpstreamErrors(t *testing.T) {
	cases := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "maintenance", http.StatusServiceUnavailable)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `[{"Site_Id": `)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			_, err := c.FetchLatest(context.Background())
			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upErr.Op != "latest" || upErr.StatusCode != tc.wantStatus {
				t.Errorf("unexpected error fields: %+v", upErr)
			}
		})
	}
}
