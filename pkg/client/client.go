package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/G-Research/jobrunner/internal/common/apierrors"
)

type Result struct {
	Ok    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// Job is a job record as returned by the jobs api. Timestamps are epoch milliseconds.
type Job struct {
	Id         string  `json:"id"`
	Mode       string  `json:"mode"`
	Status     string  `json:"status"`
	CreatedAt  int64   `json:"createdAt"`
	StartedAt  *int64  `json:"startedAt,omitempty"`
	FinishedAt *int64  `json:"finishedAt,omitempty"`
	Result     *Result `json:"result,omitempty"`
}

func (job *Job) IsTerminal() bool {
	return job.Status == "done" || job.Status == "failed"
}

type SubmitResponse struct {
	Accepted bool   `json:"accepted"`
	JobId    string `json:"jobId"`
	Mode     string `json:"mode"`
	Status   string `json:"status"`
}

type Stats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

type submitRequest struct {
	Mode string `json:"mode,omitempty"`
}

// Submit queues a job with the given mode. An empty mode leaves the choice to the server.
func (c *Client) Submit(ctx context.Context, mode string) (*SubmitResponse, error) {
	body, err := json.Marshal(submitRequest{Mode: mode})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp := &SubmitResponse{}
	if err := c.do(ctx, http.MethodPost, "/jobs", body, http.StatusAccepted, resp); err != nil {
		return nil, errors.WithMessage(err, "error submitting job")
	}
	return resp, nil
}

// GetJob returns the current state of a job, or an *apierrors.ErrNotFound if the server doesn't know it.
func (c *Client) GetJob(ctx context.Context, jobId string) (*Job, error) {
	job := &Job{}
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobId), nil, http.StatusOK, job)
	if apierrors.IsNotFound(err) {
		return nil, &apierrors.ErrNotFound{Type: "job", Value: jobId}
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "error getting job %s", jobId)
	}
	return job, nil
}

// ListJobs returns every job the server knows about in submission order.
func (c *Client) ListJobs(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, http.StatusOK, &jobs); err != nil {
		return nil, errors.WithMessage(err, "error listing jobs")
	}
	return jobs, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := c.do(ctx, http.MethodGet, "/stats", nil, http.StatusOK, stats); err != nil {
		return nil, errors.WithMessage(err, "error getting stats")
	}
	return stats, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, expectedStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, reader)
	if err != nil {
		return errors.WithStack(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "error reading response from %s %s", method, path)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &apierrors.ErrNotFound{Value: path}
	}
	if resp.StatusCode != expectedStatus {
		message := string(data)
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			message = e.Error
		}
		return errors.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, message)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "error decoding response from %s %s", method, path)
	}
	return nil
}
