// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package youtube is the enrichment client facade over the YouTube Data
// API v3.
//
// The core consumes exactly two RPCs: per-video metadata lookup and the
// category catalog. Responses are decoded into generic maps; projection
// onto the persisted field set is the normalizer's job, not the client's.
//
// Resilience: a circuit breaker opens after repeated consecutive failures
// so a dead API is not hammered once per retry budget, and an optional
// rate limiter caps request throughput. Transient failures surface as
// ordinary errors for the coordinator's bounded retry loop; an invalid
// API key maps to ErrAPIKey, which is fatal for the run.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/watchvault/internal/logging"
)

// ErrAPIKey indicates the configured API key was rejected. Fatal:
// retrying cannot help, the run must surface this to the user.
var ErrAPIKey = errors.New("invalid API key")

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// Config configures the API client.
type Config struct {
	// BaseURL is the API root, e.g. https://www.googleapis.com/youtube/v3.
	BaseURL string

	// APIKey authenticates every request.
	APIKey string

	// Parts is the projection string sent with video lookups.
	Parts string

	// RequestsPerSecond caps request throughput. 0 disables limiting.
	RequestsPerSecond float64

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
}

// Client talks to the video platform API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	limiter    *rate.Limiter
}

// New creates a Client from the given configuration.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "youtube-api",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A rejected key is a configuration problem, not API health.
			return err == nil || errors.Is(err, ErrAPIKey)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		limiter:    limiter,
	}
}

// listResponse is the envelope shape shared by the consumed endpoints.
type listResponse struct {
	Items []map[string]any `json:"items"`
}

// apiError is the wire shape of an API error body.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// VideoInfo fetches metadata for a single video id. An empty item slice
// means the video is not currently available via the API.
func (c *Client) VideoInfo(ctx context.Context, videoID string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("part", c.cfg.Parts)
	params.Set("id", videoID)
	return c.list(ctx, "videos", params)
}

// Categories fetches the full video category catalog.
func (c *Client) Categories(ctx context.Context) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("regionCode", "US")
	return c.list(ctx, "videoCategories", params)
}

// list performs one GET against an API collection and decodes the item
// envelope.
func (c *Client) list(ctx context.Context, resource string, params url.Values) ([]map[string]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params.Set("key", c.cfg.APIKey)
	endpoint := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, resource, params.Encode())

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}

	var decoded listResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", resource, err)
	}
	return decoded.Items, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logging.Debug().Err(closeErr).Msg("Error closing response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// classifyError maps a non-200 response to ErrAPIKey when the decoded
// reason is keyInvalid; anything else is a transient failure the
// coordinator may retry.
func classifyError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return fmt.Errorf("api status %d (unreadable body)", resp.StatusCode)
	}

	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil {
		for _, e := range decoded.Error.Errors {
			if e.Reason == "keyInvalid" {
				return ErrAPIKey
			}
		}
		if decoded.Error.Message != "" {
			return fmt.Errorf("api status %d: %s", resp.StatusCode, decoded.Error.Message)
		}
	}
	return fmt.Errorf("api status %d: %s", resp.StatusCode, body)
}
