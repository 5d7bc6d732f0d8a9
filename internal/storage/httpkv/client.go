// Package httpkv implements the remote event store client over the store
// service's HTTP key/value contract: JSON arrays of flat string-map
// events, one collection per list identity.
package httpkv

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

	"github.com/louisbranch/daylists/internal/changelog"
	"github.com/louisbranch/daylists/internal/storage"
)

const defaultTimeout = 10 * time.Second

// Client talks to a remote store service.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the store service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("store base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse store base url: %w", err)
	}

	client := &Client{
		base: baseURL,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Fetch returns the full event collection for a list. Transport failures
// surface as storage.ErrUnavailable so callers fall back to cached state;
// a malformed body is a distinct error and the collection is discarded,
// never partially trusted.
func (c *Client) Fetch(ctx context.Context, list changelog.ListID) ([]changelog.Event, error) {
	if err := list.Validate(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.eventsURL(list), nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w: %w", storage.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch events: %w: status %d", storage.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetch response: %w: %w", storage.ErrUnavailable, err)
	}

	events, err := changelog.UnmarshalEvents(body)
	if err != nil {
		return nil, fmt.Errorf("parse remote collection: %w", err)
	}
	return events, nil
}

// Append durably appends one event to the list's collection.
func (c *Client) Append(ctx context.Context, list changelog.ListID, evt changelog.Event) error {
	if err := list.Validate(); err != nil {
		return err
	}
	if err := evt.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(changelog.Encode(evt))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eventsURL(list), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("append event: %w: %w", storage.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("append event: %w: status %d", storage.ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("append event: status %d", resp.StatusCode)
	}
}

func (c *Client) eventsURL(list changelog.ListID) string {
	return fmt.Sprintf("%s/v1/lists/%s/%s/%s/events",
		c.base,
		url.PathEscape(list.Owner),
		url.PathEscape(string(list.Kind)),
		url.PathEscape(list.Day),
	)
}
