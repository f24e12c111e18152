package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Wollie333/vilo-sub009/shared/notify"
)

// WebhookClient forwards sync summaries to the configured HTTP endpoint
type WebhookClient struct {
	endpoint    string
	httpClient  *http.Client
	connected   bool
	delivered   int64
	failed      int64
	lastSuccess time.Time
	lastError   error
	mutex       sync.RWMutex
}

// NewWebhookClient creates a new webhook client
func NewWebhookClient(endpoint string) *WebhookClient {
	return &WebhookClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled reports whether an endpoint is configured
func (c *WebhookClient) Enabled() bool {
	return c.endpoint != ""
}

// SendSummary posts one sync summary
func (c *WebhookClient) SendSummary(ctx context.Context, summary notify.SyncSummary) error {
	payload := map[string]interface{}{
		"event_type": summary.EventType(),
		"data":       summary,
		"timestamp":  time.Now().UTC(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return c.fail(fmt.Errorf("failed to marshal sync summary: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return c.fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", summary.TenantID.String())
	req.Header.Set("X-Event-Type", summary.EventType())
	req.Header.Set("X-Event-ID", summary.EventID.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(fmt.Errorf("failed to send sync summary: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}

	c.mutex.Lock()
	c.connected = true
	c.delivered++
	c.lastSuccess = time.Now()
	c.lastError = nil
	c.mutex.Unlock()
	return nil
}

func (c *WebhookClient) fail(err error) error {
	c.mutex.Lock()
	c.failed++
	c.connected = false
	c.lastError = err
	c.mutex.Unlock()
	return err
}

// GetStatus returns the current delivery status
func (c *WebhookClient) GetStatus() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	status := map[string]interface{}{
		"enabled":      c.Enabled(),
		"connected":    c.connected,
		"endpoint":     c.endpoint,
		"delivered":    c.delivered,
		"failed":       c.failed,
		"last_success": c.lastSuccess,
	}
	if c.lastError != nil {
		status["last_error"] = c.lastError.Error()
	}
	return status
}
