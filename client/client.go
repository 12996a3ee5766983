/*
Package client talks to the goal and KPI backends over HTTP.

PURPOSE:
  A thin JSON client: it builds URLs against the two configured bases,
  attaches the session token, decodes responses into loosely typed maps and
  turns non-2xx responses into *generic.APIError. Normalization of those
  maps happens in goals/ and service/, so the wire shapes stay visible here.

BASES:
  Goal base  (default http://localhost:8080/goal)
    /goal-settings, /goal-targets, /goal-daily-targets
  KPI base   (default http://localhost:8080)
    /ms-targets, /important-metrics, /ms-period-settings, /kpi-targets,
    /members, /kpi/yield, /kpi/yield/trend, /kpi/yield/breakdown

BEHAVIOR:
  - No retries. A failed request returns its error once.
  - No client-side timeout beyond the http.Client transport timeout.
  - Every request carries Accept: application/json and an X-Request-ID.

SEE ALSO:
  - client/goals.go: goal-base endpoints
  - client/kpi.go: KPI-base endpoints
  - service/goalsettings.go: caching and degrade-on-failure on top of this
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/session"
)

const (
	DefaultGoalBaseURL = "http://localhost:8080/goal"
	DefaultKPIBaseURL  = "http://localhost:8080"
	DefaultTimeout     = 10 * time.Second
)

type Config struct {
	GoalBaseURL string
	KPIBaseURL  string
	Timeout     time.Duration
}

type Client struct {
	goalBase   string
	kpiBase    string
	httpClient *http.Client
	session    session.Provider
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSession attaches the session provider used for Authorization.
func WithSession(p session.Provider) Option {
	return func(c *Client) { c.session = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		goalBase:   normalizeBase(cfg.GoalBaseURL, DefaultGoalBaseURL),
		kpiBase:    normalizeBase(cfg.KPIBaseURL, DefaultKPIBaseURL),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalizeBase(value, fallback string) string {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	return strings.TrimRight(base, "/")
}

func (c *Client) GoalBaseURL() string { return c.goalBase }
func (c *Client) KPIBaseURL() string  { return c.kpiBase }

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func joinURL(base, path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and decodes a JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, base, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, joinURL(base, path, query), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		if auth := c.session.Current().AuthHeader(); auth != "" {
			req.Header.Set("Authorization", auth)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", requestID),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &generic.APIError{Status: resp.StatusCode, Message: errorMessage(data), Path: path}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts error or message from a JSON error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}

func (c *Client) getGoal(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, c.goalBase, path, query, nil, out)
}

func (c *Client) putGoal(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPut, c.goalBase, path, nil, body, nil)
}

func (c *Client) getKPI(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, c.kpiBase, path, query, nil, out)
}

func (c *Client) putKPI(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPut, c.kpiBase, path, nil, body, nil)
}

func joinIDs(ids []generic.AdvisorID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}
