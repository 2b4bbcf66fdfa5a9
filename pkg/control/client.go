package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/supervisor"
)

// Client talks to a running tradexd control server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) StatusAll(ctx context.Context) ([]ProgramStatus, error) {
	var statuses []ProgramStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/programs", &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (c *Client) Status(ctx context.Context, name string) (ProgramStatus, error) {
	var status ProgramStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/programs/"+url.PathEscape(name), &status)
	return status, err
}

func (c *Client) Start(ctx context.Context, name string) (ProgramStatus, error) {
	var status ProgramStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/programs/"+url.PathEscape(name)+"/start", &status)
	return status, err
}

func (c *Client) Stop(ctx context.Context, name string) (ProgramStatus, error) {
	var status ProgramStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/programs/"+url.PathEscape(name)+"/stop", &status)
	return status, err
}

func (c *Client) Restart(ctx context.Context, name string) (ProgramStatus, error) {
	var status ProgramStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/programs/"+url.PathEscape(name)+"/restart", &status)
	return status, err
}

func (c *Client) Reload(ctx context.Context) (ReloadResult, error) {
	var result ReloadResult
	err := c.do(ctx, http.MethodPost, "/api/v1/reload", &result)
	return result, err
}

func (c *Client) Events(ctx context.Context, limit int, program string) ([]supervisor.Event, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if program != "" {
		query.Set("program", program)
	}

	path := "/api/v1/events"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var events []supervisor.Event
	if err := c.do(ctx, http.MethodGet, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) TailLog(ctx context.Context, name, stream string, lines int) (LogLines, error) {
	query := url.Values{}
	if stream != "" {
		query.Set("stream", stream)
	}
	if lines > 0 {
		query.Set("lines", strconv.Itoa(lines))
	}

	path := "/api/v1/programs/" + url.PathEscape(name) + "/log"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var result LogLines
	err := c.do(ctx, http.MethodGet, path, &result)
	return result, err
}

// Healthz probes daemon liveness.
func (c *Client) Healthz(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil)
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return errors.NewInternalError("failed to build control request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewNetworkError("control server unreachable (is tradexd running?)", err).
			WithContext("url", c.baseURL+path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewIOError("failed to read control response", err)
	}

	if resp.StatusCode >= 400 {
		var apiError errorResponse
		if json.Unmarshal(body, &apiError) == nil && apiError.Error != "" {
			return fmt.Errorf("%s", apiError.Error)
		}
		return fmt.Errorf("control server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewInternalError("failed to decode control response", err)
	}
	return nil
}
