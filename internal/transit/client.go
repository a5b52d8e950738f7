// Package transit calls the transit operations vendor's API for GPS
// playback and speed map data, and reshapes the returned path segments into
// flat tables and GeoJSON line features.
package transit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"corridorutils.mtcplanning.org/internal/clock"
	"corridorutils.mtcplanning.org/internal/logging"
	"corridorutils.mtcplanning.org/internal/metrics"
)

const (
	// DefaultBaseURL is the production transit vendor API host.
	DefaultBaseURL = "https://api.goswift.ly"

	// rateLimitWait is how long to wait after a 429 before retrying. The
	// vendor's usage quota resets slowly, hence the long interval.
	rateLimitWait = 1000 * time.Second

	// maxRateLimitAttempts bounds 429 retries before the error is surfaced.
	maxRateLimitAttempts = 10

	// maxResponseSize bounds API response reads.
	maxResponseSize = 100 * 1024 * 1024
)

// Credentials hold the vendor API key, loaded from a JSON file shaped
// {"key": ...}.
type Credentials struct {
	Key string `json:"key"`
}

// LoadCredentials reads the transit vendor API key from the JSON file at
// path. A missing key is a fatal, descriptive error.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("unable to read credentials file %s: %w", path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("unable to parse credentials file %s: %w", path, err)
	}
	if creds.Key == "" {
		return Credentials{}, fmt.Errorf(
			`credentials file %s must contain {"key": "<YOUR API KEY>"}`, path)
	}
	return creds, nil
}

// ClientOptions configures a transit API client. Zero values select
// production defaults.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// RequestsPerSecond paces outgoing calls client-side, below the
	// vendor's quota. Zero selects the default of 4.
	RequestsPerSecond int
}

// Client is a transit vendor API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// NewClient creates a transit API client.
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With(slog.String("component", "transit_client"))
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 4
	}

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(opts.RequestsPerSecond)), 1),
	}
}

// GPSPlaybackOptions select the vehicles and time window of a GPS playback
// query. AgencyKey and QueryDate are required; the rest narrow the result.
type GPSPlaybackOptions struct {
	AgencyKey string
	QueryDate string
	Route     string
	Vehicle   string
	BeginTime string
	EndTime   string
}

// GPSPlayback fetches raw GPS traces for an agency and date. The caller is
// responsible for ensuring option values conform to the vendor's accepted
// query parameters.
func (c *Client) GPSPlayback(ctx context.Context, opts GPSPlaybackOptions) (json.RawMessage, error) {
	if opts.AgencyKey == "" || opts.QueryDate == "" {
		return nil, fmt.Errorf("gps playback requires an agency key and a query date")
	}

	params := url.Values{}
	params.Set("queryDate", opts.QueryDate)
	setIfPresent(params, "route", opts.Route)
	setIfPresent(params, "vehicle", opts.Vehicle)
	setIfPresent(params, "beginTime", opts.BeginTime)
	setIfPresent(params, "endTime", opts.EndTime)

	return c.getJSON(ctx, "gps_playback", "/gps-playback/"+opts.AgencyKey, params)
}

// SpeedMapOptions select the route, direction, and date window of a speed
// map query.
type SpeedMapOptions struct {
	AgencyKey    string
	RouteKey     string
	Direction    string
	StartDate    string
	EndDate      string
	BeginTime    string
	EndTime      string
	DaysOfWeek   string
	ExcludeDates string
	Format       string
	Resolution   string
}

// SpeedMap fetches speed map segments for a route.
func (c *Client) SpeedMap(ctx context.Context, opts SpeedMapOptions) (json.RawMessage, error) {
	if opts.AgencyKey == "" || opts.RouteKey == "" {
		return nil, fmt.Errorf("speed map requires an agency key and a route key")
	}

	params := url.Values{}
	setIfPresent(params, "direction", opts.Direction)
	setIfPresent(params, "startDate", opts.StartDate)
	setIfPresent(params, "endDate", opts.EndDate)
	setIfPresent(params, "beginTime", opts.BeginTime)
	setIfPresent(params, "endTime", opts.EndTime)
	setIfPresent(params, "daysOfWeek", opts.DaysOfWeek)
	setIfPresent(params, "excludeDates", opts.ExcludeDates)
	setIfPresent(params, "format", opts.Format)
	setIfPresent(params, "resolution", opts.Resolution)

	return c.getJSON(ctx, "speed_map", "/speed-map/"+opts.AgencyKey+"/route/"+opts.RouteKey, params)
}

func setIfPresent(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

// getJSON performs a query-parameterized GET. A "too many requests" response
// sleeps a fixed long interval and retries, up to a bounded number of
// attempts; any other non-success status is surfaced immediately, uniformly,
// without retry.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("error waiting for rate limiter: %w", err)
	}

	params.Set("api_key", c.apiKey)
	requestURL := c.baseURL + path + "?" + params.Encode()

	for attempt := 1; ; attempt++ {
		body, status, err := c.doGet(ctx, endpoint, requestURL)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusTooManyRequests:
			if attempt >= maxRateLimitAttempts {
				return nil, fmt.Errorf("%s endpoint still rate limited after %d attempts", endpoint, attempt)
			}
			c.metrics.ObserveRateLimitRetry()
			logging.LogOperation(c.logger, "rate_limited_waiting_to_retry",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt))
			c.clock.Sleep(rateLimitWait)
		default:
			return nil, fmt.Errorf("%s endpoint returned HTTP status %d", endpoint, status)
		}
	}
}

func (c *Client) doGet(ctx context.Context, endpoint, requestURL string) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("error calling %s endpoint: %w", endpoint, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, endpoint+"_response_body")

	c.metrics.ObserveVendorRequest("transit", endpoint, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("error reading %s response: %w", endpoint, err)
	}
	if int64(len(body)) > maxResponseSize {
		return nil, 0, fmt.Errorf("%s response exceeds size limit of %d bytes", endpoint, maxResponseSize)
	}
	return body, resp.StatusCode, nil
}
