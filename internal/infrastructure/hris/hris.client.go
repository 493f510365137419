package hris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Client speaks the HRIS HTTP contract. It is safe for concurrent use by
// many agents.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *observability.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg config.HRISConfig, metrics *observability.Metrics, logger *observability.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	c := &Client{
		baseURL: cfg.APIURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		timeout: cfg.Timeout,
		metrics: metrics,
		logger:  logger,
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = NewBreaker(cfg.CircuitBreaker, metrics, logger)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BreakerState reports the circuit breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

type rawResponse struct {
	status int
	body   []byte
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, error) {
	resp, err := c.post(ctx, "login", LoginPath, "", req)
	if err != nil {
		return "", err
	}
	if !isSuccess(resp.status) {
		return "", errors.New(errors.ErrCodeAuthRejected,
			fmt.Sprintf("login returned HTTP %d", resp.status)).WithStatus(resp.status)
	}

	var parsed loginResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeMalformedResponse, "login response is not valid JSON")
	}
	if parsed.Data == nil || parsed.Data.Token == nil || *parsed.Data.Token == "" {
		return "", errors.New(errors.ErrCodeMalformedResponse, "login response has no data.token")
	}
	return *parsed.Data.Token, nil
}

// SubmitAttendance posts the clock-out action for the token's owner.
func (c *Client) SubmitAttendance(ctx context.Context, token string) error {
	resp, err := c.post(ctx, "submit", SubmitPath, token, nil)
	if err != nil {
		return err
	}
	if !isSuccess(resp.status) {
		return errors.New(errors.ErrCodeSubmitRejected,
			fmt.Sprintf("attendance submit returned HTTP %d", resp.status)).WithStatus(resp.status)
	}
	return nil
}

// Dashboard fetches today's attendance for the token's owner.
func (c *Client) Dashboard(ctx context.Context, token string) (*Attendance, error) {
	resp, err := c.post(ctx, "dashboard", DashboardPath, token, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, errors.New(errors.ErrCodeRequestRejected,
			fmt.Sprintf("dashboard returned HTTP %d", resp.status)).WithStatus(resp.status)
	}

	var parsed dashboardResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedResponse, "dashboard response is not valid JSON")
	}
	if parsed.Data == nil || parsed.Data.Attendance == nil {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "dashboard response has no data.attendance")
	}
	return &Attendance{
		TimeIn:  rawValue(parsed.Data.Attendance.TimeIn),
		TimeOut: rawValue(parsed.Data.Attendance.TimeOut),
	}, nil
}

func (c *Client) post(ctx context.Context, endpoint, path, token string, payload any) (*rawResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.execute(func() (*rawResponse, error) {
		return c.roundTrip(ctx, path, token, payload)
	})

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.status)
	}

	if err != nil {
		appErr := errors.Wrap(err, errors.ErrCodeTransport, fmt.Sprintf("%s request failed", endpoint))
		appErr.Details = map[string]string{"class": string(Classify(err))}
		c.logger.Debug(ctx, "HRIS request failed",
			zap.String("endpoint", endpoint),
			zap.String("class", string(Classify(err))),
			zap.Error(err),
		)
		if c.metrics != nil {
			c.metrics.RecordHRISCall(endpoint, status, time.Since(start), appErr)
		}
		return nil, appErr
	}

	if c.metrics != nil {
		var callErr error
		if !isSuccess(resp.status) {
			callErr = errors.ErrRequestRejected
		}
		c.metrics.RecordHRISCall(endpoint, status, time.Since(start), callErr)
	}
	return resp, nil
}

// execute routes a round trip through the breaker when one is configured.
// A 5xx answer is returned as a response, not an error, once the breaker has
// recorded it.
func (c *Client) execute(fn func() (*rawResponse, error)) (*rawResponse, error) {
	if c.breaker == nil {
		resp, err := fn()
		return unwrapServerStatus(resp, err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	var resp *rawResponse
	if result != nil {
		resp, _ = result.(*rawResponse)
	}
	return unwrapServerStatus(resp, err)
}

func unwrapServerStatus(resp *rawResponse, err error) (*rawResponse, error) {
	if statusErr, ok := err.(*serverStatusError); ok {
		return &rawResponse{status: statusErr.status, body: statusErr.body}, nil
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, path, token string, payload any) (*rawResponse, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return nil, &serverStatusError{status: res.StatusCode, body: data}
	}
	return &rawResponse{status: res.StatusCode, body: data}, nil
}

func isSuccess(status int) bool {
	return status == http.StatusOK
}
