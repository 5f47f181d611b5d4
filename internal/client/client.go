// Package client talks to the minidns control API over HTTP.
//
// Failures come in two kinds so callers can tell them apart:
//   - *TransportError: the API could not be reached (refused, timeout, DNS)
//   - *StatusError: the API answered with an unexpected status
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIKeyHeader carries the shared secret expected by the API.
const APIKeyHeader = "X-API-Key"

// TransportError reports that no HTTP response was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: cannot reach minidns API: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a response with an unexpected status code.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Client is a control API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the API at baseURL (e.g. http://127.0.0.1:5080).
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListZones returns the zone names known to the server.
func (c *Client) ListZones(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/", "", http.StatusOK)
	if err != nil {
		return nil, err
	}
	return lines(body), nil
}

// AddZone creates a zone.
func (c *Client) AddZone(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodPut, zonePath(name), "", http.StatusCreated)
	return err
}

// DeleteZone removes a zone and its records.
func (c *Client) DeleteZone(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, zonePath(name), "", http.StatusNoContent)
	return err
}

// ShowZone returns the zone's record lines ("A name value").
func (c *Client) ShowZone(ctx context.Context, name string) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, zonePath(name), "", http.StatusOK)
	if err != nil {
		return nil, err
	}
	return lines(body), nil
}

// SetRecordA creates or overwrites the A record host in zone.
func (c *Client) SetRecordA(ctx context.Context, zone, host, addr string) error {
	_, err := c.do(ctx, http.MethodPut, recordPath(zone, host), addr, http.StatusCreated)
	return err
}

// DeleteRecord removes the record host from zone.
func (c *Client) DeleteRecord(ctx context.Context, zone, host string) error {
	_, err := c.do(ctx, http.MethodDelete, recordPath(zone, host), "", http.StatusNoContent)
	return err
}

// Purge deletes every zone and returns the names removed before the first
// failure.
func (c *Client) Purge(ctx context.Context) ([]string, error) {
	zones, err := c.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(zones))
	for _, z := range zones {
		if err := c.DeleteZone(ctx, z); err != nil {
			return removed, err
		}
		removed = append(removed, z)
	}
	return removed, nil
}

func (c *Client) do(ctx context.Context, method, path, body string, want int) (string, error) {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if body != "" {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransportError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode != want {
		return "", &StatusError{
			Method:  method,
			Path:    path,
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(data)),
		}
	}
	return string(data), nil
}

func zonePath(zone string) string {
	return "/" + url.PathEscape(zone)
}

func recordPath(zone, host string) string {
	return zonePath(zone) + "/" + url.PathEscape(host)
}

func lines(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return []string{}
	}
	return strings.Split(body, "\n")
}
