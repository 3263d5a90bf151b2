package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/practicetrack/api/internal/model"
)

// StatusNotifier delivers terminal job status to the originating
// collaborator.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, callbackURL string, cb *model.StatusCallback) error
}

// CallbackClient posts status callbacks to collaborator-provided URLs.
// Delivery is best effort; the pipeline never blocks a terminal state
// on a collaborator being reachable.
type CallbackClient struct {
	httpClient *http.Client
}

// NewCallbackClient creates a new callback client
func NewCallbackClient(timeout time.Duration) *CallbackClient {
	return &CallbackClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NotifyStatus posts a terminal status to the collaborator callback URL.
func (c *CallbackClient) NotifyStatus(ctx context.Context, callbackURL string, cb *model.StatusCallback) error {
	if callbackURL == "" {
		return nil
	}

	data, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("failed to marshal status callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	return nil
}
