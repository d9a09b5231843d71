package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Merger is an HTTP client for the external content-merging service.
type Merger struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewMerger(baseURL string, timeout time.Duration, httpClient *http.Client) *Merger {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Merger{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
	}
}

func (m *Merger) Merge(ctx context.Context, req MergeRequest) (MergeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return MergeResult{}, fmt.Errorf("encode merge request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/merge", bytes.NewReader(body))
	if err != nil {
		return MergeResult{}, fmt.Errorf("build merge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return MergeResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return MergeResult{}, fmt.Errorf("%w: merge returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var result MergeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return MergeResult{}, fmt.Errorf("%w: decode merge response: %v", ErrUnavailable, err)
	}
	return result, nil
}
