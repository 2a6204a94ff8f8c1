// Package beeminder is a thin client for the goal-tracking service REST API.
// It holds no state across calls; retry policy belongs to the caller.
package beeminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://www.beeminder.com/api/v1"
	// RequestTimeout bounds every call.
	RequestTimeout = 30 * time.Second
	// DefaultDatapointCount is used when FetchDatapoints is asked for <= 0.
	DefaultDatapointCount = 10

	maxResponseBytes = 8 << 20
)

type Client struct {
	baseURL   string
	http      *http.Client
	requestID func() string
	logger    *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default transport. The request timeout is
// still enforced per call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRequestIDFunc overrides idempotency key generation.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) { c.requestID = fn }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		baseURL:   baseURL,
		requestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		hc, err := NewHTTPClient()
		if err != nil {
			return nil, err
		}
		c.http = hc
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// FetchGoals returns every goal of the authenticated user in server order.
func (c *Client) FetchGoals(ctx context.Context, token string) ([]Goal, error) {
	var goals []Goal
	if err := c.get(ctx, "/users/me/goals.json", url.Values{"access_token": {token}}, &goals); err != nil {
		return nil, fmt.Errorf("fetch goals: %w", err)
	}
	return goals, nil
}

func (c *Client) FetchGoal(ctx context.Context, slug, token string) (Goal, error) {
	var g Goal
	path := "/users/me/goals/" + url.PathEscape(slug) + ".json"
	if err := c.get(ctx, path, url.Values{"access_token": {token}}, &g); err != nil {
		return Goal{}, fmt.Errorf("fetch goal %q: %w", slug, err)
	}
	return g, nil
}

func (c *Client) FetchUser(ctx context.Context, token string) (User, error) {
	var u User
	if err := c.get(ctx, "/users/me.json", url.Values{"access_token": {token}}, &u); err != nil {
		return User{}, fmt.Errorf("fetch user: %w", err)
	}
	return u, nil
}

// FetchDatapoints returns up to count recent datapoints sorted by timestamp
// ascending.
func (c *Client) FetchDatapoints(ctx context.Context, slug string, count int, token string) ([]Datapoint, error) {
	if count <= 0 {
		count = DefaultDatapointCount
	}
	q := url.Values{
		"access_token": {token},
		"count":        {fmt.Sprint(count)},
		"sort":         {"timestamp"},
	}
	var points []Datapoint
	path := "/users/me/goals/" + url.PathEscape(slug) + "/datapoints.json"
	if err := c.get(ctx, path, q, &points); err != nil {
		return nil, fmt.Errorf("fetch datapoints %q: %w", slug, err)
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})
	return points, nil
}

// CreateDatapoint posts one value. Every call carries a fresh idempotency
// key so a transport-level duplicate of this physical request is dropped
// server side; separate calls are always separate writes.
func (c *Client) CreateDatapoint(ctx context.Context, slug string, value float64, comment *string, token string) (Datapoint, error) {
	body := createDatapointRequest{
		Value:       value,
		Comment:     comment,
		RequestID:   c.requestID(),
		AccessToken: token,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Datapoint{}, fmt.Errorf("encode datapoint: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	path := "/users/me/goals/" + url.PathEscape(slug) + "/datapoints.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Datapoint{}, fmt.Errorf("create datapoint %q: %w", slug, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var dp Datapoint
	if err := c.do(req, &dp); err != nil {
		return Datapoint{}, fmt.Errorf("create datapoint %q: %w", slug, err)
	}
	c.logger.Debug("datapoint created", "goal", slug, "requestid", body.RequestID)
	return dp, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(req.Context().Err(), context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(req.Context().Err(), context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("%w: read body: %v", ErrInvalidResponse, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
