// Package backend implements the HTTP client for the support-platform
// REST API: paginated history, outbound sends, read markers and unread
// counts. Calls run through a circuit breaker so a degraded backend does
// not pile up blocked console requests.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatdesk/internal/errors"
	"chatdesk/internal/metrics"
	"chatdesk/internal/models"
	"chatdesk/pkg/backend/types"
	"chatdesk/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// Client is the operation surface the service layer consumes.
type Client interface {
	FetchMessagePage(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, correlationToken string, payload models.SendPayload) (*models.Message, error)
	MarkAsRead(ctx context.Context, conversationID, messageID string) error
	GetUnreadCount(ctx context.Context, conversationID string) (int, error)
}

type apiClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logrus.Logger
}

// Options configures the backend client.
type Options struct {
	Timeout            time.Duration
	CircuitMaxFailures uint32
	CircuitResetTime   time.Duration
}

// NewClient creates a backend API client.
func NewClient(baseURL string, opts Options, logger *logrus.Logger) Client {
	return &apiClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: opts.Timeout},
		breaker: circuitbreaker.New("backend", opts.CircuitMaxFailures, opts.CircuitResetTime),
		logger:  logger,
	}
}

func (c *apiClient) FetchMessagePage(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error) {
	endpoint := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))

	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var page types.PageResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	return page.ToModel(), nil
}

func (c *apiClient) SendMessage(ctx context.Context, conversationID, correlationToken string, payload models.SendPayload) (*models.Message, error) {
	endpoint := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))

	req := types.SendRequest{
		ClientTempID: correlationToken,
		Type:         string(payload.Type),
		Text:         payload.TextContent,
		Media:        payload.Media,
	}

	var confirmed types.APIMessage
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, &confirmed); err != nil {
		return nil, err
	}

	msg := confirmed.ToModel()
	return &msg, nil
}

func (c *apiClient) MarkAsRead(ctx context.Context, conversationID, messageID string) error {
	endpoint := fmt.Sprintf("/api/conversations/%s/read", url.PathEscape(conversationID))
	return c.doJSON(ctx, http.MethodPost, endpoint, types.MarkReadRequest{MessageID: messageID}, nil)
}

func (c *apiClient) GetUnreadCount(ctx context.Context, conversationID string) (int, error) {
	endpoint := fmt.Sprintf("/api/conversations/%s/unread", url.PathEscape(conversationID))

	var count types.UnreadCountResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &count); err != nil {
		return 0, err
	}

	return count.Count, nil
}

// doJSON performs a JSON request through the circuit breaker and decodes
// the response into out when out is non-nil.
func (c *apiClient) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		start := time.Now()

		var reader io.Reader
		if body != nil {
			jsonData, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal payload: %w", err)
			}
			reader = bytes.NewBuffer(jsonData)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return errors.NewBackendAPIError(endpoint, 0, err)
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.WithError(closeErr).Warn("Failed to close response body")
			}
		}()

		metrics.RecordTimer("backend_request_duration", time.Since(start), map[string]string{
			"method":      method,
			"status_code": strconv.Itoa(resp.StatusCode),
		}, "Backend API request duration")

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr types.ErrorResponse
			if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
				return errors.NewBackendAPIError(endpoint, resp.StatusCode,
					fmt.Errorf("backend returned %d: %s", resp.StatusCode, apiErr.Error))
			}
			return errors.NewBackendAPIError(endpoint, resp.StatusCode,
				fmt.Errorf("backend returned %d", resp.StatusCode))
		}

		if out == nil {
			// Drain so the connection can be reused
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		return nil
	})
}
