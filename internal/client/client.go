package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/dataviz-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/dataviz-dashboard/internal/observability"
)

// DailyFields are the Open-Meteo daily variables requested for every city.
const DailyFields = "precipitation_sum,precipitation_probability_max,temperature_2m_max,temperature_2m_min"

// ForecastDays is how many days are requested upstream. The loader keeps 14.
const ForecastDays = 16

const (
	DefaultUserAgent = "msudenver-dataviz-class/1.0"
	DefaultTimeout   = 12 * time.Second
)

type ForecastClient interface {
	URL(lat, lon float64) string
	DailyForecast(ctx context.Context, lat, lon float64) (DailyPayload, error)
}

var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrNotFound        = errors.New("forecast endpoint not found")
	ErrTimeout         = errors.New("request timeout")
	ErrPayloadShape    = errors.New("unexpected payload shape")
)

// DailyPayload is the "daily" block of an Open-Meteo response. Value arrays
// are parallel to Time; null entries decode to nil.
type DailyPayload struct {
	Time                        []string   `json:"time"`
	PrecipitationSum            []*float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
	Temperature2mMax            []*float64 `json:"temperature_2m_max"`
	Temperature2mMin            []*float64 `json:"temperature_2m_min"`
}

type openMeteoResponse struct {
	Daily *DailyPayload `json:"daily"`
}

type OpenMeteoClient struct {
	apiURL    string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
}

// Option configures an OpenMeteoClient.
type Option func(*OpenMeteoClient)

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *OpenMeteoClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCircuitBreaker routes every upstream call through cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *OpenMeteoClient) { c.breaker = cb }
}

func NewOpenMeteoClient(apiURL string, timeout time.Duration, opts ...Option) (*OpenMeteoClient, error) {
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", apiURL, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &OpenMeteoClient{
		apiURL:    apiURL,
		userAgent: DefaultUserAgent,
		timeout:   timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the full request URL for a coordinate pair. It doubles as the
// forecast cache key.
func (c *OpenMeteoClient) URL(lat, lon float64) string {
	return BuildURL(c.apiURL, lat, lon)
}

// BuildURL appends the daily forecast query to base.
func BuildURL(base string, lat, lon float64) string {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("daily", DailyFields)
	params.Set("forecast_days", strconv.Itoa(ForecastDays))
	params.Set("timezone", "auto")
	return base + "?" + params.Encode()
}

// DailyForecast issues a single GET for the coordinates. There are no
// retries; callers fall back on any error.
func (c *OpenMeteoClient) DailyForecast(ctx context.Context, lat, lon float64) (DailyPayload, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, lat, lon)
	}
	var payload DailyPayload
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		payload, callErr = c.callAPI(ctx, lat, lon)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.ForecastAPICallsTotal.WithLabelValues("circuit_open").Inc()
		return DailyPayload{}, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return payload, err
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, lat, lon float64) (DailyPayload, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.URL(lat, lon), nil)
	if err != nil {
		observability.ForecastAPICallsTotal.WithLabelValues("error").Inc()
		return DailyPayload{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ForecastAPICallsTotal.WithLabelValues("error").Inc()
		observability.ForecastAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if isTimeout(err) {
			return DailyPayload{}, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return DailyPayload{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ForecastAPICallsTotal.WithLabelValues(status).Inc()
	observability.ForecastAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return DailyPayload{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return DailyPayload{}, fmt.Errorf("%w: read body: %w", ErrTimeout, err)
		}
		return DailyPayload{}, fmt.Errorf("read response body: %w", err)
	}
	return decodeDaily(body)
}

func decodeDaily(body []byte) (DailyPayload, error) {
	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return DailyPayload{}, fmt.Errorf("%w: parse response: %w", ErrPayloadShape, err)
	}
	if apiResp.Daily == nil {
		return DailyPayload{}, fmt.Errorf("%w: missing daily block", ErrPayloadShape)
	}
	if apiResp.Daily.Time == nil {
		return DailyPayload{}, fmt.Errorf("%w: missing daily.time", ErrPayloadShape)
	}
	return *apiResp.Daily, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
