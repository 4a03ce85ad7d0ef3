// Partner API client.
//
// Every outbound request carries the configured X-Federation-Client header so
// partners can tell callers apart, runs under a bounded timeout, and is
// counted in Prometheus by instance and outcome. Partner failures are
// ordinary error returns here; the services above decide whether a failure is
// surfaced or recorded as data.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	// HeaderClientID identifies this deployment to partner instances.
	HeaderClientID = "X-Federation-Client"

	// maxBodyBytes caps how much of a partner response is read. Partner
	// payloads are small JSON documents; anything larger is suspect.
	maxBodyBytes = 1 << 20

	pathDirectories = "/federation/directories"
	pathSubmit      = "/federation/submit"
	pathHealth      = "/federation/health"
)

var partnerReqs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "federation_partner_requests_total",
		Help: "Total outbound requests to partner instances.",
	},
	[]string{"operation", "outcome"},
)

func init() {
	prometheus.MustRegister(partnerReqs)
}

// Client talks to partner federation APIs. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	clientID string
	logger   zerolog.Logger
}

// NewClient constructs a Client. timeout bounds every request issued through
// the client (per request, not cumulative); clientID is sent as
// X-Federation-Client on every call.
func NewClient(timeout time.Duration, clientID string, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		clientID: clientID,
		logger:   logger.With().Str("component", "partner_client").Logger(),
	}
}

// ListDirectories fetches the directories advertised by the instance at
// baseURL, preserving the instance's own ordering.
func (c *Client) ListDirectories(ctx context.Context, baseURL string) ([]RemoteDirectory, error) {
	var body directoriesResponse
	if err := c.getJSON(ctx, "list_directories", baseURL, pathDirectories, &body); err != nil {
		return nil, err
	}
	return body.Directories, nil
}

// Submit posts a submission to one directory of the instance at baseURL.
// A 2xx response without a submission id counts as a failure: the remote id
// is what makes the result row trackable.
func (c *Client) Submit(ctx context.Context, baseURL string, req SubmitRequest) (*SubmitResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode submit request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, baseURL, pathSubmit, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		partnerReqs.WithLabelValues("submit", "network_error").Inc()
		return nil, fmt.Errorf("submit to %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		partnerReqs.WithLabelValues("submit", "http_error").Inc()
		return nil, fmt.Errorf("submit to %s: partner returned %s", baseURL, resp.Status)
	}

	var out SubmitResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		partnerReqs.WithLabelValues("submit", "bad_response").Inc()
		return nil, fmt.Errorf("submit to %s: malformed response: %w", baseURL, err)
	}
	if out.SubmissionID == "" {
		partnerReqs.WithLabelValues("submit", "bad_response").Inc()
		return nil, fmt.Errorf("submit to %s: response missing submission id", baseURL)
	}

	partnerReqs.WithLabelValues("submit", "ok").Inc()
	return &out, nil
}

// Ping issues a bounded health request against the instance at baseURL.
// It never returns an error; failures are reported in the result so callers
// can sweep many instances without error plumbing.
func (c *Client) Ping(ctx context.Context, baseURL string) PingResult {
	start := time.Now()

	var body healthResponse
	if err := c.getJSON(ctx, "ping", baseURL, pathHealth, &body); err != nil {
		c.logger.Debug().Str("instance", baseURL).Err(err).Msg("ping failed")
		return PingResult{Healthy: false, Latency: time.Since(start), Error: err.Error()}
	}

	return PingResult{
		Healthy:    true,
		Version:    body.Version,
		Compatible: body.Compatible,
		Latency:    time.Since(start),
	}
}

// getJSON issues an instrumented GET and decodes the JSON body into dst.
func (c *Client) getJSON(ctx context.Context, op, baseURL, path string, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, baseURL, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		partnerReqs.WithLabelValues(op, "network_error").Inc()
		return fmt.Errorf("%s %s: %w", op, baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		partnerReqs.WithLabelValues(op, "http_error").Inc()
		return fmt.Errorf("%s %s: partner returned %s", op, baseURL, resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		partnerReqs.WithLabelValues(op, "bad_response").Inc()
		return fmt.Errorf("%s %s: malformed response: %w", op, baseURL, err)
	}

	partnerReqs.WithLabelValues(op, "ok").Inc()
	return nil
}

// newRequest builds a request against baseURL+path with the federation
// headers set. baseURL must be absolute http(s).
func (c *Client) newRequest(ctx context.Context, method, baseURL, path string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid instance URL %q", baseURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "go-federation-backend")
	if c.clientID != "" {
		req.Header.Set(HeaderClientID, c.clientID)
	}
	return req, nil
}
