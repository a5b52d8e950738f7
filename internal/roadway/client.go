// Package roadway drives the roadway analytics vendor's report-generation
// API: authenticate, submit a corridor report request, poll the job until it
// completes, and download the resulting archive. It also loads downloaded
// archives and aggregates their segment-level travel times up to corridor
// level.
package roadway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"corridorutils.mtcplanning.org/internal/clock"
	"corridorutils.mtcplanning.org/internal/logging"
	"corridorutils.mtcplanning.org/internal/metrics"
	"corridorutils.mtcplanning.org/internal/models"
)

const (
	// DefaultBaseURL is the production roadway analytics API host.
	DefaultBaseURL = "https://roadway-analytics-api.inrix.com"

	// defaultPollInterval is how often the wait loop checks report status.
	defaultPollInterval = 10 * time.Second

	// defaultMaxWait is the ceiling on total report-generation wait time.
	defaultMaxWait = 10 * time.Minute

	// reportStateCompleted is the vendor's terminal success state.
	reportStateCompleted = "COMPLETED"

	// maxArchiveSize bounds downloaded archive reads.
	maxArchiveSize = 500 * 1024 * 1024
)

// Credentials are the vendor account credentials, loaded from a JSON file
// shaped {"email": ..., "password": ...}.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoadCredentials reads roadway vendor credentials from the JSON file at
// path. A missing required key is a fatal, descriptive error.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("unable to read credentials file %s: %w", path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("unable to parse credentials file %s: %w", path, err)
	}
	if creds.Email == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf(
			`credentials file %s must contain {"email": "<YOUR EMAIL>", "password": "<YOUR PASSWORD>"}`, path)
	}
	return creds, nil
}

// ReportRequest describes the corridor report to generate.
type ReportRequest struct {
	StartDate   string            `validate:"required,datetime=2006-01-02"`
	EndDate     string            `validate:"required,datetime=2006-01-02"`
	Corridors   []models.Corridor `validate:"required,min=1,dive"`
	Granularity int               `validate:"oneof=1 5 15 60"`
	MapVersion  string            `validate:"required"`
	Timezone    string
}

// reportDefinition is the vendor's report creation payload. Its shape mirrors
// the reportContents.json echoed back inside downloaded report archives.
type reportDefinition struct {
	Unit            string            `json:"unit"`
	Fields          []string          `json:"fields"`
	Corridors       []models.Corridor `json:"corridors"`
	Timezone        string            `json:"timezone"`
	DateRanges      []reportDateRange `json:"dateRanges"`
	MapVersion      string            `json:"mapVersion"`
	ReportType      string            `json:"reportType"`
	Granularity     int               `json:"granularity"`
	EmailAddresses  []string          `json:"emailAddresses"`
	IncludeClosures bool              `json:"includeClosures"`
}

type reportDateRange struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	DaysOfWeek []int  `json:"daysOfWeek"`
}

// reportFields is the fixed field list requested for data downloads.
var reportFields = []string{
	"LOCAL_DATE_TIME", "XDSEGID", "UTC_DATE_TIME", "SPEED", "NAS_SPEED",
	"REF_SPEED", "TRAVEL_TIME", "CVALUE", "SCORE", "CORRIDOR_REGION_NAME",
	"CLOSURE",
}

// ReportResult is the vendor's result descriptor for a completed report: one
// or more download locations.
type ReportResult struct {
	URLs []string `json:"urls"`
}

// ClientOptions configures a roadway API client. Zero values select
// production defaults.
type ClientOptions struct {
	BaseURL      string
	HTTPClient   *http.Client
	Clock        clock.Clock
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Client is a roadway analytics API client. It is not safe for concurrent
// use: Authenticate mutates the stored bearer token.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	clock        clock.Clock
	metrics      *metrics.Metrics
	logger       *slog.Logger
	validate     *validator.Validate
	pollInterval time.Duration
	maxWait      time.Duration
	token        string
}

// NewClient creates a roadway API client.
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
		opts.Logger = slog.Default().With(slog.String("component", "roadway_client"))
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}

	return &Client{
		baseURL:      opts.BaseURL,
		httpClient:   opts.HTTPClient,
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		validate:     validator.New(),
		pollInterval: opts.PollInterval,
		maxWait:      opts.MaxWait,
	}
}

// Authenticate exchanges credentials for a bearer token used by subsequent
// calls. Authentication failures propagate immediately; there is no retry.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) error {
	var resp struct {
		Result struct {
			AccessToken struct {
				Token string `json:"token"`
			} `json:"accessToken"`
		} `json:"result"`
	}

	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/auth", "auth", creds, false, &resp)
	if err != nil {
		return fmt.Errorf("roadway authentication failed: %w", err)
	}
	if resp.Result.AccessToken.Token == "" {
		return fmt.Errorf("roadway authentication response did not contain an access token")
	}
	c.token = resp.Result.AccessToken.Token
	return nil
}

// CreateCorridorReport submits a new corridor report request and returns the
// vendor-assigned report id.
func (c *Client) CreateCorridorReport(ctx context.Context, req ReportRequest) (string, error) {
	if err := c.validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid report request: %w", err)
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "America/Los_Angeles"
	}

	def := reportDefinition{
		Unit:      "IMPERIAL",
		Fields:    reportFields,
		Corridors: req.Corridors,
		Timezone:  timezone,
		DateRanges: []reportDateRange{{
			Start:      req.StartDate,
			End:        req.EndDate,
			DaysOfWeek: []int{1, 2, 3, 4, 5, 6, 7},
		}},
		MapVersion:      req.MapVersion,
		ReportType:      "DATA_DOWNLOAD",
		Granularity:     req.Granularity,
		EmailAddresses:  []string{},
		IncludeClosures: true,
	}

	var resp struct {
		ReportID string `json:"reportId"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/data-downloader", "create_report", def, true, &resp)
	if err != nil {
		return "", err
	}
	if resp.ReportID == "" {
		return "", fmt.Errorf("report creation response did not contain a report id")
	}
	return resp.ReportID, nil
}

// ReportStatus returns the vendor's current state string for the report.
func (c *Client) ReportStatus(ctx context.Context, reportID string) (string, error) {
	var resp struct {
		State string `json:"state"`
	}
	err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v1/report/status/"+reportID, "report_status", nil, true, &resp)
	if err != nil {
		return "", err
	}
	return resp.State, nil
}

// WaitForCompletion polls report status on a fixed interval until the vendor
// reports completion. It fails with a TimeoutError once total elapsed time
// exceeds the configured ceiling, and never before. Any non-success status
// response during polling is surfaced immediately rather than treated as a
// state transition.
func (c *Client) WaitForCompletion(ctx context.Context, reportID string) error {
	start := c.clock.Now()

	state, err := c.ReportStatus(ctx, reportID)
	if err != nil {
		return err
	}
	c.metrics.ObserveReportPoll()

	for state != reportStateCompleted {
		elapsed := c.clock.Now().Sub(start)
		logging.LogOperation(c.logger, "waiting_for_report_completion",
			slog.String("report_id", reportID),
			slog.String("state", state),
			slog.Duration("elapsed", elapsed))

		if elapsed >= c.maxWait {
			return &TimeoutError{Elapsed: elapsed, MaxWait: c.maxWait}
		}

		c.clock.Sleep(c.pollInterval)
		state, err = c.ReportStatus(ctx, reportID)
		if err != nil {
			return err
		}
		c.metrics.ObserveReportPoll()
	}
	return nil
}

// ReportResult fetches the result descriptor for a completed report.
func (c *Client) ReportResult(ctx context.Context, reportID string) (ReportResult, error) {
	var result ReportResult
	err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v1/data-downloader/"+reportID, "report_result", nil, true, &result)
	if err != nil {
		return ReportResult{}, err
	}
	return result, nil
}

// DownloadArchive fetches the report archive bytes from the result's single
// download location. A descriptor with more than one URL fails with an
// UnsupportedResultError.
func (c *Client) DownloadArchive(ctx context.Context, result ReportResult) ([]byte, error) {
	if len(result.URLs) == 0 {
		return nil, fmt.Errorf("report result contains no download URLs")
	}
	if len(result.URLs) > 1 {
		return nil, &UnsupportedResultError{URLCount: len(result.URLs)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.URLs[0], nil)
	if err != nil {
		return nil, fmt.Errorf("error creating archive download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading report archive: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "archive_response_body")

	c.metrics.ObserveVendorRequest("roadway", "download_archive", strconv.Itoa(resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download report archive: received HTTP status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading report archive: %w", err)
	}
	if int64(len(body)) > maxArchiveSize {
		return nil, fmt.Errorf("report archive exceeds size limit of %d bytes", maxArchiveSize)
	}
	return body, nil
}

// DownloadCorridorReport runs the full report workflow: load credentials,
// authenticate, create the report, wait for completion, and download the
// archive bytes. The caller decides whether to persist them.
func DownloadCorridorReport(ctx context.Context, client *Client, credsPath string, req ReportRequest) ([]byte, error) {
	logging.LogOperation(client.logger, "authenticating_with_roadway_vendor")
	creds, err := LoadCredentials(credsPath)
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx, creds); err != nil {
		return nil, err
	}

	logging.LogOperation(client.logger, "creating_corridor_report")
	reportID, err := client.CreateCorridorReport(ctx, req)
	if err != nil {
		return nil, err
	}
	logging.LogOperation(client.logger, "corridor_report_created",
		slog.String("report_id", reportID))

	if err := client.WaitForCompletion(ctx, reportID); err != nil {
		return nil, err
	}
	logging.LogOperation(client.logger, "corridor_report_ready",
		slog.String("report_id", reportID))

	result, err := client.ReportResult(ctx, reportID)
	if err != nil {
		return nil, err
	}
	archive, err := client.DownloadArchive(ctx, result)
	if err != nil {
		return nil, err
	}
	logging.LogOperation(client.logger, "corridor_report_downloaded",
		slog.String("report_id", reportID),
		slog.Int("bytes", len(archive)))

	return archive, nil
}

// doJSON performs an HTTP round trip with optional JSON body and bearer
// auth, decoding a JSON response into out. Any non-2xx status is an
// immediate error; this client never retries.
func (c *Client) doJSON(ctx context.Context, method, url, endpoint string, body any, withAuth bool, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling %s endpoint: %w", endpoint, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, endpoint+"_response_body")

	c.metrics.ObserveVendorRequest("roadway", endpoint, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s endpoint returned HTTP status %s", endpoint, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("error decoding %s response: %w", endpoint, err)
		}
	}
	return nil
}
