package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/t77yq/autocontrol/internal/model"
)

const maxResponseSize = 4 << 20

// EndpointSource provides the action endpoint URL
type EndpointSource interface {
	ScriptURL(ctx context.Context) (string, error)
}

// ActionInvokerConfig holds configuration for the HTTP action invoker
type ActionInvokerConfig struct {
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// HTTPActionInvoker posts actions to the configured endpoint
type HTTPActionInvoker struct {
	logger     *zap.Logger
	endpoint   EndpointSource
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPActionInvoker creates a new HTTP action invoker
func NewHTTPActionInvoker(endpoint EndpointSource, config ActionInvokerConfig, logger *zap.Logger) *HTTPActionInvoker {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &HTTPActionInvoker{
		logger:   logger.Named("invoker"),
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(limit, config.Burst),
	}
}

// Invoke posts the action and decodes the reply.
// Errors are *TransportError or *ApplicationError.
func (h *HTTPActionInvoker) Invoke(ctx context.Context, action model.Action) (*model.ActionResponse, error) {
	url, err := h.endpoint.ScriptURL(ctx)
	if err != nil {
		return nil, &TransportError{Action: action, Err: fmt.Errorf("failed to read endpoint: %w", err)}
	}
	if url == "" {
		return nil, &TransportError{Action: action, Err: ErrNoEndpoint}
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Action: action, Err: fmt.Errorf("rate limit: %w", err)}
	}

	body, err := json.Marshal(model.ActionRequest{Action: action})
	if err != nil {
		return nil, &TransportError{Action: action, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Action: action, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	// the endpoint only accepts simple requests
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	h.logger.Debug("Invoking action", zap.String("action", string(action)))

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Action: action, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Action: action, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var result model.ActionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &TransportError{
			Action: action,
			Err:    fmt.Errorf("invalid response (status %d): %w", resp.StatusCode, err),
		}
	}

	h.logger.Info("Action completed",
		zap.String("action", string(action)),
		zap.Bool("success", result.Success),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if !result.Success {
		return &result, &ApplicationError{Action: action, Message: result.Message}
	}
	return &result, nil
}
