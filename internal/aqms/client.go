package aqms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aqwatch/aqms-pipeline/internal/metrics"
	"github.com/aqwatch/aqms-pipeline/internal/models"
)

const (
	sitesPath        = "/api/Data/get_SiteDetails"
	observationsPath = "/api/Data/get_Observations"
	parametersPath   = "/api/Data/get_ParameterDetails"
)

// UpstreamError reports a failed call to the AQMS API: a transport failure,
// a non-2xx status or a body that is not the expected JSON.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("aqms %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("aqms %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client talks to the NSW air quality data API. Calls are never retried.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
}

// NewClient returns a client for baseURL. A nil httpClient gets a 60s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		validate: validator.New(),
	}
}

// FetchAllSites retrieves the monitoring site directory.
func (c *Client) FetchAllSites(ctx context.Context) ([]models.Site, error) {
	var sites []models.Site
	if err := c.do(ctx, "sites", http.MethodGet, sitesPath, nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// FetchParameters retrieves the parameter catalogue.
func (c *Client) FetchParameters(ctx context.Context) ([]models.Parameter, error) {
	var params []models.Parameter
	if err := c.do(ctx, "parameters", http.MethodGet, parametersPath, nil, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// FetchLatest posts an empty body, which the API answers with today's
// observations for every site and parameter.
func (c *Client) FetchLatest(ctx context.Context) ([]models.RawObservation, error) {
	var obs []models.RawObservation
	if err := c.do(ctx, "latest", http.MethodPost, observationsPath, nil, &obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// FetchRange queries historical observations matching req.
func (c *Client) FetchRange(ctx context.Context, req models.ObservationRequest) ([]models.RawObservation, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid observation request: %w", err)
	}
	var obs []models.RawObservation
	if err := c.do(ctx, "range", http.MethodPost, observationsPath, req, &obs); err != nil {
		return nil, err
	}
	return obs, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, out any) error {
	started := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	}()

	body := io.Reader(http.NoBody)
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(op, "transport").Inc()
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamRequests.WithLabelValues(op, "status").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.UpstreamRequests.WithLabelValues(op, "decode").Inc()
		return &UpstreamError{Op: op, Err: fmt.Errorf("decode payload: %w", err)}
	}

	metrics.UpstreamRequests.WithLabelValues(op, "ok").Inc()
	return nil
}
