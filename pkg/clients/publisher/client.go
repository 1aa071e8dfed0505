package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"curator/pkg/api/publisher"
	"curator/pkg/clients"
	"curator/pkg/logging"
)

// Client represents a publisher (approval/scheduling) API client
type Client struct {
	baseURL      string
	httpClient   *http.Client
	serviceToken string
	logger       logging.Logger
	readRetry    clients.RetryConfig
	writeRetry   clients.RetryConfig
}

// Config represents the configuration for the publisher client
type Config struct {
	BaseURL              string
	ServiceToken         string
	Timeout              time.Duration
	Logger               logging.Logger
	RetryConfig          *clients.RetryConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// NewClient creates a new publisher API client. Read calls retry with
// exponential backoff; mutation calls are issued exactly once, since the
// engine owns mutation retries and an issued batch must run to completion.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	readRetry := clients.DefaultRetryConfig()
	if config.RetryConfig != nil {
		readRetry = *config.RetryConfig
	}
	writeRetry := clients.NoRetryConfig()

	if config.CircuitBreakerConfig != nil {
		cb := clients.NewCircuitBreaker(*config.CircuitBreakerConfig)
		readRetry.CircuitBreaker = cb
		writeRetry.CircuitBreaker = cb
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: clients.DefaultTransport(),
	}

	return &Client{
		baseURL:      config.BaseURL,
		httpClient:   httpClient,
		serviceToken: config.ServiceToken,
		logger:       config.Logger,
		readRetry:    readRetry,
		writeRetry:   writeRetry,
	}
}

// BatchApprove approves a set of approval-queue items in one call
func (c *Client) BatchApprove(ctx context.Context, itemIDs []string) (*publisher.BatchActionResponse, error) {
	req := publisher.BatchApproveRequest{ItemIDs: itemIDs}
	return c.postBatch(ctx, "/approval-queue/batch/approve", req)
}

// BatchReject rejects a set of approval-queue items in one call
func (c *Client) BatchReject(ctx context.Context, itemIDs []string, reason, reasonText string) (*publisher.BatchActionResponse, error) {
	req := publisher.BatchRejectRequest{ItemIDs: itemIDs, Reason: reason, ReasonText: reasonText}
	return c.postBatch(ctx, "/approval-queue/batch/reject", req)
}

func (c *Client) postBatch(ctx context.Context, path string, payload interface{}) (*publisher.BatchActionResponse, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Service-Token", c.serviceToken)

	resp, err := clients.DoWithRetry(ctx, c.httpClient, httpReq, c.writeRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to call publisher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("publisher error (%d): %s", resp.StatusCode, string(body))
	}

	var result publisher.BatchActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// Reschedule moves a scheduled item to a new publish time
func (c *Client) Reschedule(ctx context.Context, itemID string, newPublishTime time.Time, force bool) (*publisher.RescheduleResponse, error) {
	req := publisher.RescheduleRequest{NewPublishTime: newPublishTime, Force: force}
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/schedule/%s/reschedule", c.baseURL, url.PathEscape(itemID))

	httpReq, err := http.NewRequestWithContext(ctx, "PATCH", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Service-Token", c.serviceToken)

	resp, err := clients.DoWithRetry(ctx, c.httpClient, httpReq, c.writeRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to call publisher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("publisher error (%d): %s", resp.StatusCode, string(body))
	}

	var result publisher.RescheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// RetryPublish asks the publisher to retry a failed publish. The item's
// status is not changed locally; the next calendar refresh reports it.
func (c *Client) RetryPublish(ctx context.Context, itemID string, force bool) (*publisher.RetryPublishResponse, error) {
	req := publisher.RetryPublishRequest{Force: force}
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/schedule/%s/retry-publish", c.baseURL, url.PathEscape(itemID))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Service-Token", c.serviceToken)

	resp, err := clients.DoWithRetry(ctx, c.httpClient, httpReq, c.writeRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to call publisher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("publisher error (%d): %s", resp.StatusCode, string(body))
	}

	var result publisher.RetryPublishResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// GetApprovalQueue fetches the items awaiting a human decision
func (c *Client) GetApprovalQueue(ctx context.Context) (*publisher.QueueResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/approval-queue", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("X-Service-Token", c.serviceToken)

	resp, err := clients.DoWithRetry(ctx, c.httpClient, httpReq, c.readRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to call publisher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("publisher error (%d): %s", resp.StatusCode, string(body))
	}

	var result publisher.QueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// GetCalendar fetches the scheduled items and server-reported conflicts for
// a time window. This is the canonical refresh source.
func (c *Client) GetCalendar(ctx context.Context, start, end time.Time) (*publisher.CalendarResponse, error) {
	endpoint := fmt.Sprintf("%s/schedule/calendar?start=%s&end=%s",
		c.baseURL,
		url.QueryEscape(start.Format(time.RFC3339)),
		url.QueryEscape(end.Format(time.RFC3339)))

	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("X-Service-Token", c.serviceToken)

	resp, err := clients.DoWithRetry(ctx, c.httpClient, httpReq, c.readRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to call publisher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("publisher error (%d): %s", resp.StatusCode, string(body))
	}

	var result publisher.CalendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}
