// Package client is the HTTP client for the hatd control surface, used by
// hatctl and by anything else that wants to drive a running daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hatdsl/hat/internal/api"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, into any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("%s %s: %s", method, path, strings.Join(apiErr.Errors, "; "))
		}
		// update_code answers 400 with a structured parse error instead.
		var update api.UpdateCodeResponse
		if json.Unmarshal(payload, &update) == nil && update.ParseError != nil {
			detail := update.ParseError
			return fmt.Errorf("%s:%d:%d: expected %s\nat: %s",
				detail.File, detail.Line, detail.Column,
				strings.Join(detail.Expected, ", "), detail.LineText)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if into != nil {
		if err := json.Unmarshal(payload, into); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &resp)
	return resp, err
}

func (c *Client) Devices(ctx context.Context) (api.DevicesResponse, error) {
	var resp api.DevicesResponse
	err := c.do(ctx, http.MethodGet, "/devices", nil, &resp)
	return resp, err
}

func (c *Client) Device(ctx context.Context, id string) (api.DeviceResponse, error) {
	var resp api.DeviceResponse
	err := c.do(ctx, http.MethodGet, "/device?id="+url.QueryEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) PossibleEvents(ctx context.Context) (api.PossibleEventsResponse, error) {
	var resp api.PossibleEventsResponse
	err := c.do(ctx, http.MethodGet, "/possible_events", nil, &resp)
	return resp, err
}

// HistoryOptions narrow a History call; zero values match everything.
type HistoryOptions struct {
	Integration string
	DeviceID    string
	EventType   string
	SinceID     int64
	Limit       int
}

func (c *Client) History(ctx context.Context, opts HistoryOptions) (api.HistoryResponse, error) {
	query := url.Values{}
	if opts.Integration != "" {
		query.Set("integration", opts.Integration)
	}
	if opts.DeviceID != "" {
		query.Set("device", opts.DeviceID)
	}
	if opts.EventType != "" {
		query.Set("type", opts.EventType)
	}
	if opts.SinceID > 0 {
		query.Set("since_id", strconv.FormatInt(opts.SinceID, 10))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/history"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp api.HistoryResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// ClearHistory deletes recorded events matching the filter options
// (SinceID and Limit are ignored). Without filters, all must be true;
// the server refuses broad clears otherwise.
func (c *Client) ClearHistory(ctx context.Context, opts HistoryOptions, all bool) (int64, error) {
	query := url.Values{}
	if opts.Integration != "" {
		query.Set("integration", opts.Integration)
	}
	if opts.DeviceID != "" {
		query.Set("device", opts.DeviceID)
	}
	if opts.EventType != "" {
		query.Set("type", opts.EventType)
	}
	if all {
		query.Set("all", "true")
	}

	path := "/history"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp api.ClearHistoryResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

func (c *Client) UpdateCode(ctx context.Context, filename, source string) error {
	return c.do(ctx, http.MethodPost, "/update_code", api.UpdateCodeRequest{
		Filename: filename,
		Source:   source,
	}, nil)
}
