// Package client implements the collector side of the wire contract: it
// uploads a finished report JSON to the aggregation service, retrying on
// transient failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/models"
)

// Config configures an Uploader.
type Config struct {
	ServerURL  string
	Token      string
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

// Uploader posts reports to the aggregation service.
type Uploader struct {
	config Config
	client *http.Client
}

// New creates an uploader with defaults filled in.
func New(config Config) *Uploader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &Uploader{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Upload posts one report, retrying transient failures. A 4xx answer is
// final and returned immediately: retrying a rejected report cannot
// succeed.
func (u *Uploader) Upload(ctx context.Context, report models.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= u.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(u.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = u.post(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if permanent, ok := lastErr.(*uploadRejected); ok {
			return permanent
		}
	}
	return fmt.Errorf("upload failed after %d attempts: %w", u.config.RetryCount+1, lastErr)
}

// uploadRejected marks a 4xx server answer that must not be retried.
type uploadRejected struct {
	status int
	body   string
}

func (e *uploadRejected) Error() string {
	return fmt.Sprintf("server rejected report: status %d: %s", e.status, e.body)
}

func (u *Uploader) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.config.ServerURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pulsewatch-report/1.0")
	if u.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+u.config.Token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &uploadRejected{status: resp.StatusCode, body: string(body)}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
