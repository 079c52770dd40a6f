package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coffersTech/uploadlog/internal/model"
)

var (
	// ErrNotFound is returned when the server answers 404.
	ErrNotFound = errors.New("record not found")
	// ErrNotModified is returned by List when the server list matches the
	// last one this client saw.
	ErrNotModified = errors.New("list not modified")
)

// APIError is a non-2xx response from the record API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("record api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("record api: HTTP %d: %s", e.Status, e.Message)
}

// Client talks to the record API.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	mu    sync.Mutex
	etags map[bool]string // keyed by includeAll
}

// New creates a client for baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		etags:   make(map[bool]string),
	}
}

// List fetches the record list. When the server reports the list unchanged
// since the previous List with the same includeAll it returns ErrNotModified.
func (c *Client) List(ctx context.Context, includeAll bool) ([]model.Record, error) {
	target := c.BaseURL + "/records"
	if includeAll {
		target += "?includeAll=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if etag := c.etags[includeAll]; etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	c.mu.Unlock()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var records []model.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}

	c.mu.Lock()
	c.etags[includeAll] = resp.Header.Get("ETag")
	c.mu.Unlock()
	return records, nil
}

// ForgetListState drops remembered list validators so the next List
// always returns a body.
func (c *Client) ForgetListState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.etags = make(map[bool]string)
}

// Get fetches one record.
func (c *Client) Get(ctx context.Context, id int64) (model.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(id), nil)
	if err != nil {
		return model.Record{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return model.Record{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return model.Record{}, err
	}

	var rec model.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return model.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Download fetches one record as an attachment and returns the raw body
// with the filename the server suggested.
func (c *Client) Download(ctx context.Context, id int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(id)+"?download=1", nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("upload-%d.json", id)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return body, filename, nil
}

// Create posts a new record and returns the one the server stored.
func (c *Client) Create(ctx context.Context, rec model.NewRecord) (model.Record, error) {
	payload := struct {
		Name      string          `json:"name"`
		Timestamp string          `json:"timestamp,omitempty"`
		Meta      json.RawMessage `json:"meta,omitempty"`
	}{rec.Name, rec.Timestamp, model.CleanMeta(rec.Meta)}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.Record{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/records", bytes.NewReader(body))
	if err != nil {
		return model.Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return model.Record{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return model.Record{}, err
	}

	var created model.Record
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return model.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return created, nil
}

// Delete removes a record. A missing record yields ErrNotFound.
func (c *Client) Delete(ctx context.Context, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.recordURL(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	var ack struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil || !ack.OK {
		return fmt.Errorf("delete %d: unexpected response", id)
	}
	return nil
}

// Stats are the server's record counters.
type Stats struct {
	Records int            `json:"records"`
	Recent  int            `json:"recent"`
	Created int64          `json:"created"`
	Names   map[string]int `json:"names"`
}

// Stats fetches the server's record counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/stats", nil)
	if err != nil {
		return Stats{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return Stats{}, err
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

func (c *Client) recordURL(id int64) string {
	return c.BaseURL + "/records/" + url.PathEscape(fmt.Sprint(id))
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) != nil {
		body.Error = strings.TrimSpace(string(data))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}
