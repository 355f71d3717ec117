// Package notifications delivers cycle events to outbound webhooks.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"rsi-cycle-tracker/cycle"
	"rsi-cycle-tracker/helpers"
	"rsi-cycle-tracker/metrics"
)

// WebhookConfig configures a WebhookManager.
type WebhookConfig struct {
	URLs       []string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// WebhookManager posts opened and closed cycles to every configured URL.
type WebhookManager struct {
	cfg     WebhookConfig
	client  *http.Client
	metrics *metrics.Metrics
	log     *zap.Logger
	wg      sync.WaitGroup
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	Event       string           `json:"event"`
	UserID      int64            `json:"user_id"`
	Symbol      string           `json:"symbol"`
	CycleNumber int              `json:"cycle_number"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Message     string           `json:"message"`
	Cycle       cycle.TradeCycle `json:"cycle"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(cfg WebhookConfig, m *metrics.Metrics, log *zap.Logger) *WebhookManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookManager{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		log:     log,
	}
}

// Publish implements cycle.EventSink. Trailing stop updates are not sent.
// Delivery is asynchronous.
func (wm *WebhookManager) Publish(_ context.Context, ev cycle.Event) {
	if len(wm.cfg.URLs) == 0 || ev.Type == cycle.EventTrailingUpdated {
		return
	}

	payloadBytes, err := json.Marshal(CreatePayload(ev))
	if err != nil {
		wm.log.Warn("⚠️ Failed to marshal webhook payload", zap.Error(err))
		return
	}

	for _, url := range wm.cfg.URLs {
		wm.wg.Add(1)
		go func(url string) {
			defer wm.wg.Done()
			wm.deliverWebhook(url, payloadBytes)
		}(url)
	}
}

// Wait blocks until in-flight deliveries finish.
func (wm *WebhookManager) Wait() {
	wm.wg.Wait()
}

// CreatePayload generates the webhook payload from an event
func CreatePayload(ev cycle.Event) WebhookPayload {
	c := ev.Cycle
	var message string
	switch ev.Type {
	case cycle.EventOpened:
		// Example: "🟢 BUY NABIL #3 at NPR 1,234.00 | RSI 72.10 | TSL NPR 1,172.30"
		message = fmt.Sprintf("🟢 BUY %s #%d at %s | RSI %.2f | TSL %s",
			c.Symbol, c.CycleNumber, helpers.FormatNPR(c.BuyPrice), c.BuyRSI, helpers.FormatNPR(c.TSLTriggerPrice))
	case cycle.EventClosed:
		if c.Exit != nil {
			message = fmt.Sprintf("🔴 SELL %s #%d at %s | P/L %s (%+.2f%%) | %s",
				c.Symbol, c.CycleNumber, helpers.FormatNPR(c.SellPrice), helpers.FormatNPR(c.ProfitLoss),
				c.ProfitLossPercent, c.SellReason)
		}
	default:
		message = fmt.Sprintf("%s %s #%d", ev.Type, c.Symbol, c.CycleNumber)
	}

	return WebhookPayload{
		Event:       string(ev.Type),
		UserID:      ev.UserID,
		Symbol:      c.Symbol,
		CycleNumber: c.CycleNumber,
		OccurredAt:  ev.At,
		Message:     message,
		Cycle:       c,
	}
}

func (wm *WebhookManager) deliverWebhook(url string, payload []byte) {
	var (
		statusCode int
		lastErr    error
	)
	for attempt := 1; attempt <= wm.cfg.Retries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "RSI-Cycle-Tracker/1.0")

		wm.log.Debug("🔹 Sending webhook", zap.String("url", url), zap.Int("attempt", attempt))

		resp, err := wm.client.Do(req)
		if err == nil {
			statusCode = resp.StatusCode
			resp.Body.Close()
			if statusCode >= 200 && statusCode < 300 {
				return
			}
			lastErr = fmt.Errorf("status %d", statusCode)
		} else {
			lastErr = err
		}

		// Wait before retry
		if attempt < wm.cfg.Retries {
			time.Sleep(wm.cfg.RetryDelay * time.Duration(attempt))
		}
	}

	wm.metrics.WebhookFailed()
	wm.log.Warn("⚠️ Webhook delivery failed",
		zap.String("url", url),
		zap.Int("status", statusCode),
		zap.Error(lastErr))
}
