// Package client talks to a running tiermem server over its HTTP API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lazypower/tiermem/internal/engine"
	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/memory"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 30 * time.Second
)

// Client talks to the tiermem server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to
// TIERMEM_URL, then http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("TIERMEM_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// URL returns the server address the client talks to.
func (c *Client) URL() string { return c.serverURL }

func (c *Client) do(method, path string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.serverURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
		if resp.StatusCode == http.StatusNotFound {
			err = fmt.Errorf("%w: %v", memory.ErrNotFound, err)
		}
		return data, err
	}
	return data, nil
}

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(path string, body []byte) ([]byte, error) {
	if body == nil {
		body = []byte("{}")
	}
	return c.do(http.MethodPost, path, body)
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(path string) ([]byte, error) {
	return c.do(http.MethodGet, path, nil)
}

// Delete sends a DELETE request.
func (c *Client) Delete(path string) ([]byte, error) {
	return c.do(http.MethodDelete, path, nil)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) postJSON(path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data, err := c.Post(path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getJSON(path string, out any) error {
	data, err := c.Get(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Store ingests a trace and returns its id.
func (c *Client) Store(req engine.StoreRequest) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.postJSON("/api/traces", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Trace fetches one trace. A missing id wraps memory.ErrNotFound.
func (c *Client) Trace(id string) (memory.Trace, error) {
	var t memory.Trace
	err := c.getJSON("/api/traces/"+url.PathEscape(id), &t)
	return t, err
}

// Remove deletes a trace.
func (c *Client) Remove(id string) error {
	_, err := c.Delete("/api/traces/" + url.PathEscape(id))
	return err
}

// Retrieve runs a query.
func (c *Client) Retrieve(q engine.Query) (engine.Result, error) {
	var res engine.Result
	err := c.postJSON("/api/retrieve", q, &res)
	return res, err
}

// Tick forces one maintenance cycle.
func (c *Client) Tick() (engine.TickReport, error) {
	var r engine.TickReport
	err := c.postJSON("/api/tick", struct{}{}, &r)
	return r, err
}

// Stats returns the server's store statistics.
func (c *Client) Stats() (engine.Stats, error) {
	var s engine.Stats
	err := c.getJSON("/api/stats", &s)
	return s, err
}

// Path finds the shortest association path between two traces.
func (c *Client) Path(from, to string, maxHops int) ([]string, bool, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("max_hops", strconv.Itoa(maxHops))

	var resp struct {
		Found bool     `json:"found"`
		Path  []string `json:"path"`
	}
	if err := c.getJSON("/api/path?"+q.Encode(), &resp); err != nil {
		return nil, false, err
	}
	return resp.Path, resp.Found, nil
}

// SetPressure sets the server's memory pressure level.
func (c *Client) SetPressure(level string) error {
	return c.postJSON("/api/pressure", map[string]string{"level": level}, nil)
}

// Evictions lists the newest entries of the eviction log.
func (c *Client) Evictions(reason eviction.Reason, limit int) ([]eviction.Record, error) {
	q := url.Values{}
	if reason != "" {
		q.Set("reason", string(reason))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/evictions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var recs []eviction.Record
	err := c.getJSON(path, &recs)
	return recs, err
}
