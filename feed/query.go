package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ResultFetcher returns the completed tabular result of a stored query as
// decodable text.
type ResultFetcher interface {
	FetchResult(ctx context.Context, queryID string) (string, error)
}

const (
	defaultPollInterval = 2 * time.Second
	maxErrorBody        = 4 << 10
)

// HTTPResultFetcher runs a stored query on the remote service and downloads
// its CSV result once the job finished.
type HTTPResultFetcher struct {
	baseURL      string
	token        string
	pollInterval time.Duration
	timeout      time.Duration
	client       *http.Client
}

func NewHTTPResultFetcher(cfg QueryConfig, token string) *HTTPResultFetcher {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &HTTPResultFetcher{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        token,
		pollInterval: poll,
		timeout:      cfg.Timeout,
		client:       &http.Client{},
	}
}

type jobStatus struct {
	State string `json:"state"`
	Error string `json:"error"`
}

func (f *HTTPResultFetcher) FetchResult(ctx context.Context, queryID string) (string, error) {
	if strings.TrimSpace(queryID) == "" {
		return "", fmt.Errorf("query id is empty")
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	jobID, err := f.submit(ctx, queryID)
	if err != nil {
		return "", fmt.Errorf("submit query %s: %w", queryID, err)
	}

	for {
		var st jobStatus
		if err := f.getJSON(ctx, "/jobs/"+url.PathEscape(jobID), &st); err != nil {
			return "", fmt.Errorf("job %s status: %w", jobID, err)
		}
		switch strings.ToLower(st.State) {
		case "succeeded", "completed", "done":
			body, err := f.get(ctx, "/jobs/"+url.PathEscape(jobID)+"/results")
			if err != nil {
				return "", fmt.Errorf("job %s results: %w", jobID, err)
			}
			return string(body), nil
		case "failed", "cancelled", "canceled":
			return "", fmt.Errorf("%w: job %s: %s", ErrQueryFailed, jobID, st.Error)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.pollInterval):
		}
	}
}

func (f *HTTPResultFetcher) submit(ctx context.Context, queryID string) (string, error) {
	req, err := f.newRequest(ctx, http.MethodPost, "/queries/"+url.PathEscape(queryID)+"/executions")
	if err != nil {
		return "", err
	}
	body, err := f.do(req)
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("submit response has no job_id")
	}
	return out.JobID, nil
}

func (f *HTTPResultFetcher) getJSON(ctx context.Context, path string, v any) error {
	body, err := f.get(ctx, path)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (f *HTTPResultFetcher) get(ctx context.Context, path string) ([]byte, error) {
	req, err := f.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	return f.do(req)
}

func (f *HTTPResultFetcher) newRequest(ctx context.Context, method string, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	return req, nil
}

func (f *HTTPResultFetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(resp.Body)
}
