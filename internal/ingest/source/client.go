// Package source reads paginated resources from the Open Government Data (data.gov.in) REST API.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrUnexpectedStatus is returned when the API answers with a non 2xx status code.
var ErrUnexpectedStatus = errors.New("unexpected API response status")

// Page is one API response.
type Page struct {
	// Offset the page was requested at.
	Offset int
	// UpdatedDate is the resource update date from the response metadata, shared by every record of the page.
	UpdatedDate any `json:"updated_date"`
	// Records is possibly empty.
	Records []map[string]any `json:"records"`
}

// Config holds the connection settings of a data.gov.in resource.
type Config struct {
	BaseURL    string
	ResourceID string
	APIKey     string
	Timeout    time.Duration
}

// Client fetches pages of a single resource.
type Client struct {
	endpoint *url.URL
	apiKey   string
	http     *http.Client
	log      *slog.Logger
}

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// NewClient returns a client for the resource described by cfg.
func NewClient(cfg Config, args ...Options) (*Client, error) {
	if cfg.ResourceID == "" {
		return nil, errors.New("resource ID is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %v", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme and host are required", cfg.BaseURL)
	}

	opts := options{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		endpoint: base.JoinPath("resource", cfg.ResourceID),
		apiKey:   cfg.APIKey,
		http:     opts.httpClient,
		log:      opts.logger,
	}, nil
}

// FetchPage requests limit records starting at offset.
//
// There is no retry: any transport, status or decoding failure is returned to the caller.
func (c Client) FetchPage(ctx context.Context, offset, limit int) (Page, error) {
	u := *c.endpoint
	q := u.Query()
	q.Set("api-key", c.apiKey)
	q.Set("format", "json")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("Fetching page", "resource", c.endpoint.Path, "offset", offset, "limit", limit)
	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch page at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep a bounded excerpt of the body, the API explains failures there.
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("%w: %s at offset %d: %s", ErrUnexpectedStatus, resp.Status, offset, excerpt)
	}

	var p Page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Page{}, fmt.Errorf("failed to decode page at offset %d: %w", offset, err)
	}
	p.Offset = offset

	return p, nil
}
