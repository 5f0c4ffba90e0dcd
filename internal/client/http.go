package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// requestTimeout bounds every call except StreamEvents.
const requestTimeout = 10 * time.Second

// HTTPClient implements GateClient over the controller's REST API.
type HTTPClient struct {
	baseURL string
	token   string

	rpc    *http.Client
	stream *http.Client
}

// NewHTTPClient targets baseURL, e.g. "http://localhost:8080". A non-empty
// token is sent as a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		rpc:     &http.Client{Timeout: requestTimeout},
		stream:  &http.Client{},
	}
}

func (c *HTTPClient) Close() error {
	c.rpc.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := c.call(ctx, http.MethodGet, "/v1/health", nil, &out)
	return out.Status, err
}

func (c *HTTPClient) Status(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.call(ctx, http.MethodGet, "/v1/status", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Machine(ctx context.Context) (*model.MachineConfig, error) {
	out := new(model.MachineConfig)
	if err := c.call(ctx, http.MethodGet, "/v1/machine", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	out := new(TriggerResponse)
	if err := c.call(ctx, http.MethodPost, "/v1/triggers", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamEvents follows GET /v1/events/stream and calls fn for each event
// until ctx is done, the server closes the stream, or fn returns an error.
// Empty topics and cycleID mean no filtering.
func (c *HTTPClient) StreamEvents(ctx context.Context, topics []string, cycleID string, fn func(Event) error) error {
	q := url.Values{}
	if len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	if cycleID != "" {
		q.Set("cycle", cycleID)
	}
	path := "/v1/events/stream"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses a text/event-stream body. Comment lines are skipped;
// multi-line data fields are joined with newlines.
func readEvents(r io.Reader, fn func(Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var ev Event
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(data) > 0 {
				ev.Data = json.RawMessage(strings.Join(data, "\n"))
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev, data = Event{}, nil
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "":
			// comment
		case "id":
			ev.ID, _ = strconv.ParseUint(value, 10, 64)
		case "event":
			ev.Topic = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

// APIError is a non-2xx answer from the controller.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call sends body as JSON and decodes a 2xx response into out.
func (c *HTTPClient) call(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.rpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// apiError builds an APIError, preferring the server's {"error": ...} body.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
