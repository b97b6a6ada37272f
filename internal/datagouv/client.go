// Package datagouv retrieves published datasets from the data.gouv.fr open
// data portal: dataset metadata from the JSON API, then the resource files
// attached to a dataset, with a fixed-interval retry policy around every HTTP
// fetch.
package datagouv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

// DefaultBaseURL is the production portal endpoint
const DefaultBaseURL = "https://www.data.gouv.fr"

// Resource describes a single downloadable file attached to a dataset
type Resource struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Format string `json:"format"`
}

// Dataset is the portal's dataset descriptor. Only the fields this client
// needs are mapped; the API returns many more.
type Dataset struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Resources []Resource `json:"resources"`
}

// URLFilter decides whether a resource URL should be downloaded
type URLFilter func(url string) bool

// RetriesExhaustedError is returned when every attempt at a fetch failed
type RetriesExhaustedError struct {
	URL      string
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts to fetch %s failed: %v", e.Attempts, e.URL, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsTransient returns true: a later run against the same URL may succeed
func (e *RetriesExhaustedError) IsTransient() bool {
	return true
}

// Options configures the portal client
type Options struct {
	// BaseURL of the portal. Default: DefaultBaseURL.
	BaseURL string

	// DatasetID identifies the dataset whose resources are fetched
	DatasetID string

	// Timeout for individual HTTP requests
	Timeout time.Duration

	// MaxRetries is the total number of attempts per fetch (minimum 1)
	MaxRetries int

	// SleepBetweenRetries is the fixed pause between failed attempts
	SleepBetweenRetries time.Duration
}

// DefaultOptions returns options with sensible defaults
func DefaultOptions() Options {
	return Options{
		BaseURL:             DefaultBaseURL,
		Timeout:             30 * time.Second,
		MaxRetries:          3,
		SleepBetweenRetries: 2 * time.Second,
	}
}

// Client is a session against one dataset of the portal. It caches the
// dataset descriptor and resource list across calls; force flags bypass the
// cache. Not safe for concurrent use.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector

	infos     *Dataset
	resources []Resource
}

// NewClient creates a new portal client
func NewClient(opts Options, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		opts:    opts,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// DatasetURL returns the dataset-info endpoint for the configured dataset
func (c *Client) DatasetURL() string {
	return fmt.Sprintf("%s/api/1/datasets/%s/", strings.TrimSuffix(c.opts.BaseURL, "/"), c.opts.DatasetID)
}

// FetchDatasetInfo retrieves the dataset descriptor, retrying failed attempts.
// The result is cached; force bypasses the cache and re-fetches.
func (c *Client) FetchDatasetInfo(ctx context.Context, force bool) (*Dataset, error) {
	if !force && c.infos != nil {
		return c.infos, nil
	}

	apiURL := c.DatasetURL()
	c.logger.Info(ctx, "[DATASET_FETCH] Fetching dataset infos", logging.Fields{
		"url": apiURL,
	})

	body, err := c.fetchWithRetry(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var ds Dataset
	if err := json.Unmarshal(body, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset response: %w", err)
	}

	c.infos = &ds
	return c.infos, nil
}

// ListResources returns the dataset's resource descriptors, populating the
// cached list via FetchDatasetInfo when absent or forced
func (c *Client) ListResources(ctx context.Context, force bool) ([]Resource, error) {
	if !force && len(c.resources) > 0 {
		return c.resources, nil
	}

	infos, err := c.FetchDatasetInfo(ctx, force)
	if err != nil {
		return nil, err
	}

	c.resources = infos.Resources
	return c.resources, nil
}

// FailedResource records a resource whose download attempts were all exhausted
type FailedResource struct {
	URL string
	Err error
}

// DownloadResult summarizes one DownloadResources run
type DownloadResult struct {
	Downloaded int
	Skipped    int
	Filtered   int
	Failed     []FailedResource
}

// DownloadResources downloads every resource of the dataset into destDir.
//
// Resources rejected by filter (when non-nil) and resources whose derived
// filename already exists on disk are skipped without issuing a request. A
// resource that fails all retry attempts is logged, recorded in the result,
// and does not abort the remaining resources. The returned error covers only
// failures that prevent the batch from running at all (resource listing,
// destination directory).
func (c *Client) DownloadResources(ctx context.Context, destDir string, force bool, filter URLFilter) (*DownloadResult, error) {
	resources, err := c.ListResources(ctx, force)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	result := &DownloadResult{}

	for _, resource := range resources {
		if filter != nil && !filter(resource.URL) {
			c.logger.Info(ctx, "[RESOURCE_FILTERED] Resource filtered out, skipping download", logging.Fields{
				"url": resource.URL,
			})
			c.metrics.RecordDownloadSkipped("filtered")
			result.Filtered++
			continue
		}

		filename := filepath.Join(destDir, resourceFilename(resource.URL))
		if _, err := os.Stat(filename); err == nil {
			c.logger.Info(ctx, "[RESOURCE_EXISTS] File already exists, skipping download", logging.Fields{
				"file": filename,
			})
			c.metrics.RecordDownloadSkipped("exists")
			result.Skipped++
			continue
		}

		c.logger.Info(ctx, "[RESOURCE_FETCH] Fetching resource", logging.Fields{
			"url": resource.URL,
		})

		if err := c.downloadResource(ctx, resource.URL, filename); err != nil {
			c.logger.Error(ctx, "[RESOURCE_FAILED] Failed to download resource", logging.Fields{
				"url":      resource.URL,
				"attempts": c.opts.MaxRetries,
			}, err)
			result.Failed = append(result.Failed, FailedResource{URL: resource.URL, Err: err})
			continue
		}

		result.Downloaded++
	}

	return result, nil
}

// downloadResource fetches one resource with the retry policy and writes the
// body atomically: full download to a temp file, then rename into place.
func (c *Client) downloadResource(ctx context.Context, resourceURL, filename string) error {
	timer := c.metrics.NewTimer(c.metrics.DownloadDuration)
	defer timer.ObserveDuration()

	body, err := c.fetchWithRetry(ctx, resourceURL)
	if err != nil {
		return err
	}

	tmp := filename + ".part"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("failed to write resource file: %w", err)
	}

	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize resource file: %w", err)
	}

	c.metrics.DownloadBytesTotal.Add(float64(len(body)))
	return nil
}

// fetchWithRetry GETs fetchURL, treating network errors and non-2xx statuses
// as failed attempts. It makes up to MaxRetries attempts with a fixed sleep
// between them, then returns a *RetriesExhaustedError.
func (c *Client) fetchWithRetry(ctx context.Context, fetchURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			c.metrics.DownloadRetriesTotal.Inc()
			if err := sleep(ctx, c.opts.SleepBetweenRetries); err != nil {
				return nil, err
			}
		}

		body, err := c.fetchOnce(ctx, fetchURL)
		if err == nil {
			c.metrics.RecordDownloadAttempt("success")
			return body, nil
		}

		c.metrics.RecordDownloadAttempt("failure")
		lastErr = err
		c.logger.Error(ctx, "[FETCH_ATTEMPT_FAILED] Fetch attempt failed", logging.Fields{
			"url":     fetchURL,
			"attempt": attempt,
		}, err)
	}

	return nil, &RetriesExhaustedError{
		URL:      fetchURL,
		Attempts: c.opts.MaxRetries,
		LastErr:  lastErr,
	}
}

// fetchOnce performs a single GET and reads the full body
func (c *Client) fetchOnce(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// resourceFilename derives the local filename from the last URL path segment
func resourceFilename(resourceURL string) string {
	if u, err := url.Parse(resourceURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}

	parts := strings.Split(resourceURL, "/")
	return parts[len(parts)-1]
}

// sleep pauses for d, honoring context cancellation
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
