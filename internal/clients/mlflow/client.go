// Package mlflow provides a client for the MLflow tracking and tracing REST API.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tracelens/internal/models"
)

// Client implements HTTP interaction with the MLflow API to fetch traces,
// experiments, and runs.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new MLflow client
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// doRequest performs an HTTP request against the MLflow REST API.
func (c *Client) doRequest(ctx context.Context, method, apiPath string, params url.Values, body interface{}) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	u.Path = apiPath
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mlflow request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code from mlflow: %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// GetExperiment fetches experiment metadata by ID.
func (c *Client) GetExperiment(ctx context.Context, experimentID string) (*models.ExperimentInfo, error) {
	params := url.Values{
		"experiment_id": []string{experimentID},
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/2.0/mlflow/experiments/get", params, nil)
	if err != nil {
		c.logger.Error("Failed to fetch experiment", "experimentID", experimentID, "error", err)
		return nil, err
	}

	var result struct {
		Experiment struct {
			ExperimentID     string `json:"experiment_id"`
			Name             string `json:"name"`
			ArtifactLocation string `json:"artifact_location"`
			Tags             []struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			} `json:"tags"`
		} `json:"experiment"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse experiment response: %w", err)
	}

	info := &models.ExperimentInfo{
		ExperimentID: result.Experiment.ExperimentID,
		Name:         result.Experiment.Name,
		ArtifactURI:  result.Experiment.ArtifactLocation,
		Tags:         map[string]string{},
	}
	for _, tag := range result.Experiment.Tags {
		info.Tags[tag.Key] = tag.Value
	}

	return info, nil
}

// SearchTraces fetches up to maxResults traces for an experiment, newest first.
func (c *Client) SearchTraces(ctx context.Context, experimentID string, maxResults int) ([]models.Trace, error) {
	params := url.Values{
		"experiment_ids": []string{experimentID},
		"max_results":    []string{strconv.Itoa(maxResults)},
		"order_by":       []string{"timestamp_ms DESC"},
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/2.0/mlflow/traces", params, nil)
	if err != nil {
		c.logger.Error("Failed to search traces", "experimentID", experimentID, "error", err)
		return nil, err
	}

	var result struct {
		Traces []traceDTO `json:"traces"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse trace search response: %w", err)
	}

	traces := make([]models.Trace, 0, len(result.Traces))
	for _, t := range result.Traces {
		traces = append(traces, t.toModel())
	}

	return traces, nil
}

// GetTrace fetches a single complete trace by its ID.
func (c *Client) GetTrace(ctx context.Context, traceID string) (*models.Trace, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/2.0/mlflow/traces/%s", traceID), nil, nil)
	if err != nil {
		c.logger.Error("Failed to fetch trace", "traceID", traceID, "error", err)
		return nil, err
	}

	var result struct {
		Trace traceDTO `json:"trace"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse trace response: %w", err)
	}

	trace := result.Trace.toModel()
	return &trace, nil
}

// SearchRuns searches runs within an experiment using an MLflow filter string.
func (c *Client) SearchRuns(ctx context.Context, experimentID, filter string, maxResults int) ([]RunInfo, error) {
	body := map[string]interface{}{
		"experiment_ids": []string{experimentID},
		"filter":         filter,
		"max_results":    maxResults,
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/2.0/mlflow/runs/search", nil, body)
	if err != nil {
		c.logger.Error("Failed to search runs", "experimentID", experimentID, "filter", filter, "error", err)
		return nil, err
	}

	var result struct {
		Runs []struct {
			Info RunInfo `json:"info"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse run search response: %w", err)
	}

	runs := make([]RunInfo, 0, len(result.Runs))
	for _, r := range result.Runs {
		runs = append(runs, r.Info)
	}

	return runs, nil
}

// CreateRun creates a run in the experiment with the given name and tags.
func (c *Client) CreateRun(ctx context.Context, experimentID, runName string, tags map[string]string) (*RunInfo, error) {
	tagList := make([]map[string]string, 0, len(tags)+1)
	tagList = append(tagList, map[string]string{"key": "mlflow.runName", "value": runName})
	for k, v := range tags {
		tagList = append(tagList, map[string]string{"key": k, "value": v})
	}

	body := map[string]interface{}{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    time.Now().UnixMilli(),
		"tags":          tagList,
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", nil, body)
	if err != nil {
		c.logger.Error("Failed to create run", "experimentID", experimentID, "runName", runName, "error", err)
		return nil, err
	}

	var result struct {
		Run struct {
			Info RunInfo `json:"info"`
		} `json:"run"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse run create response: %w", err)
	}

	return &result.Run.Info, nil
}

// UploadArtifact writes a text artifact at the given path under a run.
func (c *Client) UploadArtifact(ctx context.Context, runID, artifactPath string, content []byte) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = fmt.Sprintf("/api/2.0/mlflow-artifacts/artifacts/%s/%s", runID, artifactPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code from mlflow: %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// DownloadArtifact reads a text artifact at the given path under a run.
func (c *Client) DownloadArtifact(ctx context.Context, runID, artifactPath string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/2.0/mlflow-artifacts/artifacts/%s/%s", runID, artifactPath), nil, nil)
}

// RunInfo holds the identifying metadata of an MLflow run.
type RunInfo struct {
	RunID        string `json:"run_id"`
	RunName      string `json:"run_name"`
	ExperimentID string `json:"experiment_id"`
	Status       string `json:"status"`
	StartTime    int64  `json:"start_time"`
}
