// Package homeassistant drives a battery inverter through the Home Assistant
// REST API and reads battery state and optimizer inputs from its entities.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/eosbridge/core/logger"
)

// ErrNotFound is returned for unknown entities.
var ErrNotFound = errors.New("entity not found")

// State is an entity state as returned by /api/states.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Available reports whether the state carries a value.
func (s State) Available() bool {
	switch strings.ToLower(s.State) {
	case "", "unknown", "unavailable", "none":
		return false
	}
	return true
}

// StatusError reports a non-success HTTP status from Home Assistant.
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("home assistant %s: status %d: %s", e.Path, e.Code, e.Body)
}

// Client is a minimal Home Assistant REST client authenticated with a long
// lived access token.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   logger.Logger
}

// NewClient creates a client for baseURL. A nil httpClient gets a client with
// the configured timeout.
func NewClient(cfg Config, httpClient *http.Client, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout()}
	}
	return &Client{
		base:  strings.TrimSuffix(cfg.URL, "/"),
		token: cfg.Token,
		http:  httpClient,
		log:   log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// State fetches the state of one entity.
func (c *Client) State(ctx context.Context, entityID string) (State, error) {
	var s State
	err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, &s)
	return s, err
}

// CallService calls domain.service with data.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	c.log.Debugw("ha service call", map[string]any{"service": domain + "." + service, "data": data})
	return c.do(ctx, http.MethodPost, "/api/services/"+url.PathEscape(domain)+"/"+url.PathEscape(service), data, nil)
}

// FireEvent fires a custom event on the Home Assistant bus.
func (c *Client) FireEvent(ctx context.Context, eventType string, data any) error {
	return c.do(ctx, http.MethodPost, "/api/events/"+url.PathEscape(eventType), data, nil)
}

// History returns the recorded states of entityID between from and to.
func (c *Client) History(ctx context.Context, entityID string, from, to time.Time) ([]State, error) {
	q := url.Values{}
	q.Set("filter_entity_id", entityID)
	q.Set("end_time", to.UTC().Format(time.RFC3339))
	q.Set("minimal_response", "")
	q.Set("no_attributes", "")
	path := "/api/history/period/" + url.PathEscape(from.UTC().Format(time.RFC3339)) + "?" + q.Encode()
	var out [][]State
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	var res []State
	for _, series := range out {
		res = append(res, series...)
	}
	return res, nil
}
