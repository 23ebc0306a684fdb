// Package fleetdata is the HTTP client for the external vessel-data API.
//
// The API serves three resources: the vessel catalog (name → identifier),
// per-vessel data cards, and per-vessel recommendation sets. The client
// retries transient failures (5xx, transport errors) with exponential
// backoff and maps 404 to ErrNotFound; everything else surfaces as a
// wrapped error for the caller to log and translate into a user-facing
// message.
package fleetdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleetline/pelorus/common/retry"
	"github.com/fleetline/pelorus/internal/pelorus/directory"
)

// ErrNotFound is returned when the API reports 404 for a vessel or its
// recommendations.
var ErrNotFound = errors.New("fleetdata: not found")

const defaultTimeout = 15 * time.Second

// Vessel is the data card for one vessel as served by the API.
type Vessel struct {
	Identifier string  `json:"identifier"`
	Name       string  `json:"name"`
	Flag       string  `json:"flag,omitempty"`
	Type       string  `json:"type,omitempty"`
	RiskScore  float64 `json:"risk_score"`
	RiskLabel  string  `json:"risk_label,omitempty"`
	Position   string  `json:"position,omitempty"`
	UpdatedAt  string  `json:"updated_at,omitempty"`
}

// Recommendation is one entry of a vessel's recommendation set.
type Recommendation struct {
	Title    string `json:"title"`
	Severity string `json:"severity,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// RecommendationSet groups the recommendations for one vessel.
type RecommendationSet struct {
	VesselIdentifier string           `json:"vessel_identifier"`
	Items            []Recommendation `json:"items"`
	ReportURL        string           `json:"report_url,omitempty"`
}

// Config holds options for creating a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://fleet.example.com/api/v1".
	// Required; trailing slashes are trimmed.
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout is the per-request HTTP timeout. Defaults to 15 s.
	Timeout time.Duration
	// Retry overrides the backoff configuration. Zero value uses
	// retry.DefaultConfig.
	Retry retry.Config
}

// Client talks to the vessel-data API. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	retry   retry.Config
	http    *http.Client
}

// New creates a Client for the given configuration.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	r := cfg.Retry
	if r.MaxAttempts == 0 {
		r = retry.DefaultConfig
	}
	// Hard failures (404, 4xx) must not be retried.
	r.ShouldRetry = func(err error) bool {
		return !errors.Is(err, ErrNotFound) && !errors.Is(err, errPermanent)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		retry:   r,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// errPermanent marks non-404 client errors that retrying cannot fix.
var errPermanent = errors.New("fleetdata: permanent upstream error")

// Vessel fetches the data card for a vessel by name or identifier.
func (c *Client) Vessel(ctx context.Context, ref string) (*Vessel, error) {
	var v Vessel
	path := "/vessels/" + url.PathEscape(strings.TrimSpace(ref))
	if err := c.getJSON(ctx, path, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Recommendations fetches the recommendation set for a vessel identifier.
func (c *Client) Recommendations(ctx context.Context, identifier string) (*RecommendationSet, error) {
	var set RecommendationSet
	path := "/vessels/" + url.PathEscape(strings.TrimSpace(identifier)) + "/recommendations"
	if err := c.getJSON(ctx, path, &set); err != nil {
		return nil, err
	}
	if set.VesselIdentifier == "" {
		set.VesselIdentifier = identifier
	}
	return &set, nil
}

// Catalog fetches the full name→identifier catalog. Used once at startup to
// seed the vessel directory.
func (c *Client) Catalog(ctx context.Context) ([]directory.Record, error) {
	var payload struct {
		Vessels []directory.Record `json:"vessels"`
	}
	if err := c.getJSON(ctx, "/vessels", &payload); err != nil {
		return nil, err
	}
	if len(payload.Vessels) == 0 {
		return nil, fmt.Errorf("fleetdata: catalog is empty")
	}
	return payload.Vessels, nil
}

// getJSON performs a GET with retry and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("fleetdata: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("fleetdata: %s: %w", path, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fallthrough to decode below
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		case resp.StatusCode >= 500:
			return fmt.Errorf("fleetdata: %s: upstream status %d", path, resp.StatusCode)
		default:
			return fmt.Errorf("%w: %s: status %d", errPermanent, path, resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return fmt.Errorf("fleetdata: %s: read body: %w", path, err)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %s: decode: %v", errPermanent, path, err)
		}
		return nil
	})
}
