package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a sink that logs every event
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Deliver logs event at info level.
func (s *LogSink) Deliver(ctx context.Context, event ports.Event) error {
	s.logger.Info(ctx, "Contract event", map[string]interface{}{
		"event_type":  "notification",
		"contract_id": event.ContractID,
		"action":      event.Action,
		"actor_id":    event.ActorID,
		"occurred_at": event.OccurredAt,
	})
	return nil
}

// WebhookSink POSTs each event as JSON to a fixed URL.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	logger     logger.Logger
}

// NewWebhookSink creates a sink posting events as JSON to url
func NewWebhookSink(url string, timeout time.Duration, log logger.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		logger: log,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver posts event; any non-2xx response is an error.
func (s *WebhookSink) Deliver(ctx context.Context, event ports.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	logger.LogPerformance(ctx, s.logger, "webhook_delivery", time.Since(start), map[string]interface{}{
		"status":      resp.StatusCode,
		"contract_id": event.ContractID,
	})

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
