// Package eos talks to the EOS server and EVopt optimizer backends.
package eos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kilianp07/eosbridge/core/logger"
	"github.com/kilianp07/eosbridge/core/model"
	"github.com/kilianp07/eosbridge/core/optimizer"
)

const maxErrorBody = 512

// Client posts optimizer requests. The per attempt timeout comes from the
// caller's context.
type Client struct {
	http     *http.Client
	endpoint string
	log      logger.Logger
}

// Path returns the optimize endpoint path of a backend.
func Path(source model.PlanSource) string {
	if source == model.SourceEVopt {
		return "/api/optimize"
	}
	return "/optimize"
}

// NewClient builds a client for cfg.Source at cfg.URL. A nil httpClient uses
// http.DefaultClient.
func NewClient(cfg optimizer.Config, httpClient *http.Client, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:     httpClient,
		endpoint: strings.TrimSuffix(cfg.URL, "/") + Path(model.PlanSource(cfg.Source)),
		log:      log,
	}
}

// Optimize sends req and decodes the response. Non 2xx answers return a
// *optimizer.StatusError, undecodable bodies wrap ErrMalformedResponse.
func (c *Client) Optimize(ctx context.Context, req optimizer.Request) (optimizer.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return optimizer.Response{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return optimizer.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.log.Debugw("optimizer request", map[string]any{
		"endpoint":    c.endpoint,
		"slots":       len(req.EMS.PriceEURPerWh),
		"initial_soc": req.PVBattery.InitialSOC,
		"bytes":       len(body),
	})
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return optimizer.Response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return optimizer.Response{}, &optimizer.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	var out optimizer.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return optimizer.Response{}, fmt.Errorf("%w: %w", optimizer.ErrMalformedResponse, err)
	}
	return out, nil
}
